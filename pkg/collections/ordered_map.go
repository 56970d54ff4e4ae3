package collections

import (
	"fmt"
	"iter"
	"slices"
	"sort"
	"strings"

	"github.com/eigerco/pvmhost/pkg/serialization/codec/jam"
)

// Pair is a single key/value entry of an OrderedMap
type Pair[K, V any] struct {
	Key   K
	Value V
}

// OrderedMap is a mapping stored as pairs sorted by key with no duplicate keys.
// The sorted order is also its canonical encoding: the compact number of pairs
// followed by each key and value. The zero value is an empty map.
type OrderedMap[K Comparable[K], V any] struct {
	items []Pair[K, V]
}

// NewOrderedMap builds a map from pairs in any order, the last write for a repeated key wins.
func NewOrderedMap[K Comparable[K], V any](pairs ...Pair[K, V]) OrderedMap[K, V] {
	var m OrderedMap[K, V]
	m.Extend(pairs...)
	return m
}

// OrderedMapFromSorted takes ownership of already sorted pairs, failing if they are not
// strictly ascending by key.
func OrderedMapFromSorted[K Comparable[K], V any](pairs []Pair[K, V]) (OrderedMap[K, V], error) {
	if !isStrictlyAscending(pairs, comparePairKeys[K, V]) {
		return OrderedMap[K, V]{}, ErrOutOfOrder
	}
	if len(pairs) == 0 {
		pairs = nil
	}
	return OrderedMap[K, V]{items: pairs}, nil
}

func comparePairKeys[K Comparable[K], V any](a, b Pair[K, V]) int {
	return a.Key.Compare(b.Key)
}

func (m OrderedMap[K, V]) search(k K) (int, bool) {
	return sort.Find(len(m.items), func(i int) int {
		return k.Compare(m.items[i].Key)
	})
}

func (m OrderedMap[K, V]) Len() int {
	return len(m.items)
}

func (m OrderedMap[K, V]) IsEmpty() bool {
	return len(m.items) == 0
}

func (m OrderedMap[K, V]) Get(k K) (V, bool) {
	if i, found := m.search(k); found {
		return m.items[i].Value, true
	}
	var zero V
	return zero, false
}

func (m OrderedMap[K, V]) Contains(k K) bool {
	_, found := m.search(k)
	return found
}

// Insert places the pair at its sorted position, replacing and returning the
// previous value if the key was already present.
func (m *OrderedMap[K, V]) Insert(k K, v V) (V, bool) {
	i, found := m.search(k)
	if found {
		old := m.items[i].Value
		m.items[i].Value = v
		return old, true
	}
	m.items = slices.Insert(m.items, i, Pair[K, V]{Key: k, Value: v})
	var zero V
	return zero, false
}

// Extend adds many pairs at once: concatenate, sort by key and keep the last
// write for every repeated key. The result equals inserting the pairs one by one.
func (m *OrderedMap[K, V]) Extend(pairs ...Pair[K, V]) {
	if len(pairs) == 0 {
		return
	}
	merged := make([]Pair[K, V], 0, len(m.items)+len(pairs))
	merged = append(merged, m.items...)
	merged = append(merged, pairs...)
	slices.SortStableFunc(merged, comparePairKeys[K, V])

	out := merged[:0]
	for i := 0; i < len(merged); i++ {
		if i+1 < len(merged) && merged[i].Key.Compare(merged[i+1].Key) == 0 {
			continue
		}
		out = append(out, merged[i])
	}
	m.items = out
}

func (m *OrderedMap[K, V]) Remove(k K) (V, bool) {
	i, found := m.search(k)
	if !found {
		var zero V
		return zero, false
	}
	old := m.items[i].Value
	m.items = slices.Delete(m.items, i, i+1)
	if len(m.items) == 0 {
		m.items = nil
	}
	return old, true
}

// Retain drops every pair for which keep returns false.
func (m *OrderedMap[K, V]) Retain(keep func(k K, v V) bool) {
	m.items = slices.DeleteFunc(m.items, func(p Pair[K, V]) bool {
		return !keep(p.Key, p.Value)
	})
	if len(m.items) == 0 {
		m.items = nil
	}
}

func (m OrderedMap[K, V]) Keys() []K {
	keys := make([]K, len(m.items))
	for i, p := range m.items {
		keys[i] = p.Key
	}
	return keys
}

func (m OrderedMap[K, V]) Values() []V {
	values := make([]V, len(m.items))
	for i, p := range m.items {
		values[i] = p.Value
	}
	return values
}

// Pairs returns a copy of the sorted pairs.
func (m OrderedMap[K, V]) Pairs() []Pair[K, V] {
	return slices.Clone(m.items)
}

// All iterates the pairs in ascending key order.
func (m OrderedMap[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for _, p := range m.items {
			if !yield(p.Key, p.Value) {
				return
			}
		}
	}
}

// Clone returns a shallow copy; values are copied by assignment.
func (m OrderedMap[K, V]) Clone() OrderedMap[K, V] {
	return OrderedMap[K, V]{items: slices.Clone(m.items)}
}

// IsDisjoint reports whether no pair of m is also a pair of other.
func (m OrderedMap[K, V]) IsDisjoint(other OrderedMap[K, V], equal func(a, b V) bool) bool {
	i, j := 0, 0
	for i < len(m.items) && j < len(other.items) {
		switch c := m.items[i].Key.Compare(other.items[j].Key); {
		case c < 0:
			i++
		case c > 0:
			j++
		default:
			if equal(m.items[i].Value, other.items[j].Value) {
				return false
			}
			i++
			j++
		}
	}
	return true
}

// KeysDisjoint reports whether the two maps share no key.
func KeysDisjoint[K Comparable[K], V, W any](a OrderedMap[K, V], b OrderedMap[K, W]) bool {
	return isDisjoint(a.items, b.items, func(x Pair[K, V], y Pair[K, W]) int {
		return x.Key.Compare(y.Key)
	})
}

// KeysDisjointWithSet reports whether no key of m is in s.
func KeysDisjointWithSet[K Comparable[K], V any](m OrderedMap[K, V], s OrderedSet[K]) bool {
	return isDisjoint(m.items, s.items, func(x Pair[K, V], y K) int {
		return x.Key.Compare(y)
	})
}

func (m OrderedMap[K, V]) MarshalJAM() ([]byte, error) {
	return jam.Marshal(m.items)
}

// UnmarshalJAM decodes the pairs and rejects any sequence that is not strictly ascending by key.
func (m *OrderedMap[K, V]) UnmarshalJAM(d *jam.Decoder) error {
	var pairs []Pair[K, V]
	if err := d.Decode(&pairs); err != nil {
		return err
	}
	decoded, err := OrderedMapFromSorted(pairs)
	if err != nil {
		return err
	}
	*m = decoded
	return nil
}

func (m OrderedMap[K, V]) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, p := range m.items {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%v=>%v", p.Key, p.Value)
	}
	sb.WriteByte(']')
	return sb.String()
}
