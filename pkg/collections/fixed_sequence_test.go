package collections

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/pvmhost/pkg/serialization/codec/jam"
)

func TestFixedSequence(t *testing.T) {
	var zero FixedSequence[uint16, four]
	assert.Equal(t, 4, zero.Len())
	assert.Equal(t, []uint16{0, 0, 0, 0}, zero.Slice())

	s := FixedSequenceFromFunc[uint16, four](func(i int) uint16 { return uint16(i * 10) })
	assert.Equal(t, uint16(30), s.Get(3))

	s.Set(0, 7)
	assert.Equal(t, []uint16{7, 10, 20, 30}, s.Slice())

	_, ok := s.Lookup(4)
	assert.False(t, ok)
	assert.Panics(t, func() { s.Get(4) })
	assert.Panics(t, func() { s.Set(-1, 0) })
}

func TestFixedSequencePadded(t *testing.T) {
	s, err := Padded[uint8, four]([]uint8{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []uint8{1, 2, 0, 0}, s.Slice())

	_, err = Padded[uint8, four]([]uint8{1, 2, 3, 4, 5})
	assert.ErrorIs(t, err, ErrTooLong)
}

func TestFixedSequenceEncoding(t *testing.T) {
	s := NewFixedSequence[uint16, four](0x0102)
	b, err := jam.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 1, 2, 1, 2, 1, 2, 1}, b)

	var decoded FixedSequence[uint16, four]
	require.NoError(t, jam.Unmarshal(b, &decoded))
	assert.Equal(t, s.Slice(), decoded.Slice())

	err = jam.Unmarshal(b[:7], &decoded)
	assert.Error(t, err)
}
