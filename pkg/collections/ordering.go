package collections

import (
	"cmp"
	"errors"
	"fmt"
)

// ErrOutOfOrder is returned when a sequence that must be strictly ascending is not,
// either because two items are swapped or because an item is repeated.
var ErrOutOfOrder = errors.New("set out-of-order")

// Comparable is implemented by keys and values of the ordered containers.
// Compare returns a negative number, zero or a positive number when the
// receiver is less than, equal to or greater than other.
type Comparable[T any] interface {
	Compare(other T) int
}

// Ordered adapts a built-in ordered type to Comparable.
type Ordered[T cmp.Ordered] struct {
	V T
}

func (o Ordered[T]) Compare(other Ordered[T]) int {
	return cmp.Compare(o.V, other.V)
}

func (o Ordered[T]) String() string {
	return fmt.Sprint(o.V)
}

func compare[T Comparable[T]](a, b T) int {
	return a.Compare(b)
}

// isStrictlyAscending reports whether every item is greater than its predecessor
func isStrictlyAscending[T any](items []T, cmp func(a, b T) int) bool {
	for i := 1; i < len(items); i++ {
		if cmp(items[i-1], items[i]) >= 0 {
			return false
		}
	}
	return true
}

// isDisjoint walks two ascending sequences in lockstep and reports whether they share no item
func isDisjoint[A, B any](a []A, b []B, cmp func(a A, b B) int) bool {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch c := cmp(a[i], b[j]); {
		case c < 0:
			i++
		case c > 0:
			j++
		default:
			return false
		}
	}
	return true
}
