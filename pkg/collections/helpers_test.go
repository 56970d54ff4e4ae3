package collections

import "cmp"

type key uint32

func (k key) Compare(other key) int {
	return cmp.Compare(k, other)
}

type four struct{}

func (four) Len() int { return 4 }
