package collections

import (
	"fmt"
	"iter"
	"slices"
	"sort"
	"strings"

	"github.com/eigerco/pvmhost/pkg/serialization/codec/jam"
)

// OrderedSet is a set stored as a strictly ascending sequence. Its encoding is
// the compact number of items followed by each item in order.
// The zero value is an empty set.
type OrderedSet[T Comparable[T]] struct {
	items []T
}

// NewOrderedSet builds a set from items in any order, repeated items are stored once.
func NewOrderedSet[T Comparable[T]](items ...T) OrderedSet[T] {
	var s OrderedSet[T]
	s.Extend(items...)
	return s
}

// OrderedSetFromSorted takes ownership of items, failing unless they are strictly ascending.
func OrderedSetFromSorted[T Comparable[T]](items []T) (OrderedSet[T], error) {
	if !isStrictlyAscending(items, compare[T]) {
		return OrderedSet[T]{}, ErrOutOfOrder
	}
	if len(items) == 0 {
		items = nil
	}
	return OrderedSet[T]{items: items}, nil
}

func (s OrderedSet[T]) search(v T) (int, bool) {
	return sort.Find(len(s.items), func(i int) int {
		return v.Compare(s.items[i])
	})
}

func (s OrderedSet[T]) Len() int {
	return len(s.items)
}

func (s OrderedSet[T]) IsEmpty() bool {
	return len(s.items) == 0
}

func (s OrderedSet[T]) Contains(v T) bool {
	_, found := s.search(v)
	return found
}

// Insert adds v and reports whether it was not already present.
func (s *OrderedSet[T]) Insert(v T) bool {
	i, found := s.search(v)
	if found {
		return false
	}
	s.items = slices.Insert(s.items, i, v)
	return true
}

// Extend adds many items at once by sorting the concatenation and removing repeats.
func (s *OrderedSet[T]) Extend(items ...T) {
	if len(items) == 0 {
		return
	}
	merged := make([]T, 0, len(s.items)+len(items))
	merged = append(merged, s.items...)
	merged = append(merged, items...)
	slices.SortFunc(merged, compare[T])
	s.items = slices.CompactFunc(merged, func(a, b T) bool {
		return a.Compare(b) == 0
	})
}

func (s *OrderedSet[T]) Remove(v T) bool {
	i, found := s.search(v)
	if !found {
		return false
	}
	s.items = slices.Delete(s.items, i, i+1)
	if len(s.items) == 0 {
		s.items = nil
	}
	return true
}

// Items returns a copy of the ascending items.
func (s OrderedSet[T]) Items() []T {
	return slices.Clone(s.items)
}

func (s OrderedSet[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, v := range s.items {
			if !yield(v) {
				return
			}
		}
	}
}

func (s OrderedSet[T]) Clone() OrderedSet[T] {
	return OrderedSet[T]{items: slices.Clone(s.items)}
}

// IsDisjoint reports whether the two sets share no item.
func (s OrderedSet[T]) IsDisjoint(other OrderedSet[T]) bool {
	return isDisjoint(s.items, other.items, compare[T])
}

// IsSubset reports whether every item of s is in other.
func (s OrderedSet[T]) IsSubset(other OrderedSet[T]) bool {
	j := 0
	for _, v := range s.items {
		for j < len(other.items) && other.items[j].Compare(v) < 0 {
			j++
		}
		if j == len(other.items) || other.items[j].Compare(v) != 0 {
			return false
		}
		j++
	}
	return true
}

// Union merges two sets in a single linear pass.
func (s OrderedSet[T]) Union(other OrderedSet[T]) OrderedSet[T] {
	out := make([]T, 0, len(s.items)+len(other.items))
	i, j := 0, 0
	for i < len(s.items) && j < len(other.items) {
		switch c := s.items[i].Compare(other.items[j]); {
		case c < 0:
			out = append(out, s.items[i])
			i++
		case c > 0:
			out = append(out, other.items[j])
			j++
		default:
			out = append(out, s.items[i])
			i++
			j++
		}
	}
	out = append(out, s.items[i:]...)
	out = append(out, other.items[j:]...)
	if len(out) == 0 {
		out = nil
	}
	return OrderedSet[T]{items: out}
}

func (s OrderedSet[T]) MarshalJAM() ([]byte, error) {
	return jam.Marshal(s.items)
}

// UnmarshalJAM decodes the items and rejects any sequence that is not strictly ascending.
func (s *OrderedSet[T]) UnmarshalJAM(d *jam.Decoder) error {
	var items []T
	if err := d.Decode(&items); err != nil {
		return err
	}
	decoded, err := OrderedSetFromSorted(items)
	if err != nil {
		return err
	}
	*s = decoded
	return nil
}

func (s OrderedSet[T]) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range s.items {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%v", v)
	}
	sb.WriteByte(']')
	return sb.String()
}
