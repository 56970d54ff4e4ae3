package collections

import (
	"errors"
	"fmt"
	"slices"

	"github.com/eigerco/pvmhost/pkg/serialization/codec/jam"
)

var ErrTooLong = errors.New("too many items for fixed sequence")

// Length fixes the number of items of a FixedSequence at the type level, eg.
//
//	type Cores struct{}
//	func (Cores) Len() int { return 341 }
type Length interface {
	Len() int
}

// FixedSequence is a sequence of exactly N items. N is known out of band so
// the encoding carries no length prefix. The zero value holds N zero items.
type FixedSequence[T any, N Length] struct {
	items []T
}

func fixedLen[N Length]() int {
	var n N
	return n.Len()
}

// NewFixedSequence returns N copies of v.
func NewFixedSequence[T any, N Length](v T) FixedSequence[T, N] {
	return FixedSequenceFromFunc[T, N](func(int) T { return v })
}

// FixedSequenceFromFunc builds the sequence by calling f for every index in order.
func FixedSequenceFromFunc[T any, N Length](f func(i int) T) FixedSequence[T, N] {
	items := make([]T, fixedLen[N]())
	for i := range items {
		items[i] = f(i)
	}
	return FixedSequence[T, N]{items: items}
}

// Padded copies items to the start of the sequence and fills the remainder with
// zero values. It fails when there are more than N items.
func Padded[T any, N Length](items []T) (FixedSequence[T, N], error) {
	if n := fixedLen[N](); len(items) > n {
		return FixedSequence[T, N]{}, fmt.Errorf("%w: %d items, capacity %d", ErrTooLong, len(items), n)
	}
	return FixedSequenceFromFunc[T, N](func(i int) T {
		if i < len(items) {
			return items[i]
		}
		var zero T
		return zero
	}), nil
}

func (s *FixedSequence[T, N]) materialize() {
	if s.items == nil {
		s.items = make([]T, fixedLen[N]())
	}
}

func (s FixedSequence[T, N]) Len() int {
	return fixedLen[N]()
}

// Lookup returns the item at i, or false when i is not below N.
func (s FixedSequence[T, N]) Lookup(i int) (T, bool) {
	var zero T
	if i < 0 || i >= fixedLen[N]() {
		return zero, false
	}
	if s.items == nil {
		return zero, true
	}
	return s.items[i], true
}

// Get returns the item at i and panics when i is not below N.
func (s FixedSequence[T, N]) Get(i int) T {
	v, ok := s.Lookup(i)
	if !ok {
		panic(fmt.Sprintf("index %d out of range for fixed sequence of length %d", i, fixedLen[N]()))
	}
	return v
}

// Set replaces the item at i and panics when i is not below N.
func (s *FixedSequence[T, N]) Set(i int, v T) {
	if i < 0 || i >= fixedLen[N]() {
		panic(fmt.Sprintf("index %d out of range for fixed sequence of length %d", i, fixedLen[N]()))
	}
	s.materialize()
	s.items[i] = v
}

// Slice returns a copy of all N items.
func (s FixedSequence[T, N]) Slice() []T {
	if s.items == nil {
		return make([]T, fixedLen[N]())
	}
	return slices.Clone(s.items)
}

func (s FixedSequence[T, N]) Clone() FixedSequence[T, N] {
	return FixedSequence[T, N]{items: slices.Clone(s.items)}
}

func (s FixedSequence[T, N]) MarshalJAM() ([]byte, error) {
	var out []byte
	for _, v := range s.Slice() {
		b, err := jam.Marshal(v)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

// UnmarshalJAM reads exactly N items.
func (s *FixedSequence[T, N]) UnmarshalJAM(d *jam.Decoder) error {
	items := make([]T, fixedLen[N]())
	for i := range items {
		if err := d.Decode(&items[i]); err != nil {
			return fmt.Errorf("decoding item %d: %w", i, err)
		}
	}
	s.items = items
	return nil
}
