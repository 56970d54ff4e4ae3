package jam_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/pvmhost/pkg/serialization/codec/jam"
)

type InnerStruct struct {
	Uint64 uint64
	Uint32 uint32
	Uint16 uint16
	Uint8  uint8
}

type TestStruct struct {
	IntField   int
	BoolField  bool
	LargeUint  uint
	Hash       *[32]byte
	InnerSlice []InnerStruct
	Blob       []byte
}

func TestMarshalUnmarshal(t *testing.T) {
	original := TestStruct{
		IntField:  7,
		BoolField: true,
		LargeUint: math.MaxUint,
		Hash:      &[32]byte{1, 2, 3, 31: 0xff},
		InnerSlice: []InnerStruct{
			{1, 2, 3, 4},
			{2, 3, 4, 5},
		},
		Blob: []byte("payload"),
	}

	marshaledData, err := jam.Marshal(original)
	require.NoError(t, err)

	var unmarshaled TestStruct
	err = jam.Unmarshal(marshaledData, &unmarshaled)
	require.NoError(t, err)

	assert.Equal(t, original, unmarshaled)
}

func TestCompactEncoding(t *testing.T) {
	tests := []struct {
		value    uint64
		expected []byte
	}{
		{0, []byte{0x00}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x80}},
		{1 << 14, []byte{0xc0, 0x00, 0x40}},
		{math.MaxUint64, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.expected, jam.EncodeCompact(tc.value))

		var decoded uint
		require.NoError(t, jam.Unmarshal(tc.expected, &decoded))
		assert.Equal(t, uint(tc.value), decoded)
	}
}

func TestNonCanonicalCompactRejected(t *testing.T) {
	var decoded uint
	err := jam.Unmarshal([]byte{0x80, 0x00}, &decoded)
	assert.ErrorIs(t, err, jam.ErrNonCanonicalInteger)
}

type tagged struct {
	Small  uint32 `jam:"length=3"`
	Gas    uint64 `jam:"encoding=compact"`
	Hidden string `jam:"-"`
}

func TestStructTags(t *testing.T) {
	in := tagged{Small: 0x010203, Gas: 300, Hidden: "not encoded"}
	b, err := jam.Marshal(in)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x03, 0x02, 0x01, 0x81, 0x2c}, b)

	var out tagged
	require.NoError(t, jam.Unmarshal(b, &out))
	assert.Equal(t, tagged{Small: 0x010203, Gas: 300}, out)
}

type evenOnly struct {
	Values []uint8
}

func (e *evenOnly) UnmarshalJAM(d *jam.Decoder) error {
	if err := d.Decode(&e.Values); err != nil {
		return err
	}
	for _, v := range e.Values {
		if v%2 != 0 {
			return assert.AnError
		}
	}
	return nil
}

func TestUnmarshalerHook(t *testing.T) {
	b, err := jam.Marshal([]uint8{2, 4})
	require.NoError(t, err)

	var ok struct{ E evenOnly }
	require.NoError(t, jam.Unmarshal(b, &ok))
	assert.Equal(t, []uint8{2, 4}, ok.E.Values)

	b, err = jam.Marshal([]uint8{2, 3})
	require.NoError(t, err)
	var bad evenOnly
	assert.ErrorIs(t, jam.Unmarshal(b, &bad), assert.AnError)
}

func TestOptionalPointer(t *testing.T) {
	type withOption struct {
		V *uint32
	}
	b, err := jam.Marshal(withOption{})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00}, b)

	v := uint32(5)
	b, err = jam.Marshal(withOption{V: &v})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x05, 0x00, 0x00, 0x00}, b)

	var out withOption
	require.NoError(t, jam.Unmarshal(b, &out))
	require.NotNil(t, out.V)
	assert.Equal(t, v, *out.V)
}

func TestBitSequence(t *testing.T) {
	bits := jam.BitSequence{true, false, true, false, false, false, false, false, true}
	b, err := jam.Marshal(bits)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0x05, 0x01}, b)

	dec := jam.NewDecoder(bytesReader([]byte{0x05, 0x01}))
	var out jam.BitSequence
	require.NoError(t, dec.DecodeFixedLength(&out, 2))
	assert.Equal(t, append(bits, false, false, false, false, false, false, false), out)
}

func TestFixedWidthHelpers(t *testing.T) {
	assert.Equal(t, []byte{0x34, 0x12, 0x00}, jam.EncodeUint64(0x1234, 3))
	assert.Equal(t, uint64(0x1234), jam.DecodeUint64([]byte{0x34, 0x12, 0x00}))
}

func TestStrings(t *testing.T) {
	type name string
	type entry struct {
		Label string
		Kind  name
	}
	in := entry{Label: "refine", Kind: "ab"}
	b, err := jam.Marshal(in)
	require.NoError(t, err)
	assert.Equal(t, append(append([]byte{6}, "refine"...), 2, 'a', 'b'), b)

	var out entry
	require.NoError(t, jam.Unmarshal(b, &out))
	assert.Equal(t, in, out)
}
