package pvm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/pvmhost/pkg/serialization/codec/jam"
)

func TestDeblob(t *testing.T) {
	code := []byte{byte(LoadImm), 7, 1, byte(Fallthrough), byte(Trap)}
	bitmask := jam.BitSequence{true, false, false, true, true}
	jumpTable := []uint64{3, 300}

	blob, err := Enblob(code, bitmask, jumpTable)
	require.NoError(t, err)
	// |j|, z, |c|, two 2 byte entries, code, one bitmask octet
	assert.Equal(t, []byte{2, 2, 5, 3, 0, 44, 1}, blob[:7])
	assert.Len(t, blob, 3+4+5+1)

	c, k, j, err := Deblob(blob)
	require.NoError(t, err)
	assert.Equal(t, code, c)
	assert.Equal(t, bitmask, k)
	assert.Equal(t, jumpTable, j)

	_, _, _, err = Deblob(append(blob, 0))
	assert.ErrorIs(t, err, ErrTrailingBytes)

	_, _, _, err = Deblob(blob[:len(blob)-1])
	assert.Error(t, err)
}

func TestPrecomputeSkipLengths(t *testing.T) {
	assert.Equal(t, []uint8{2, 1, 0, 0}, PrecomputeSkipLengths([]bool{true, false, false, true}))

	long := make([]bool, 40)
	long[0] = true
	skips := PrecomputeSkipLengths(long)
	assert.Equal(t, uint8(BitmaskMax), skips[0])
	assert.Equal(t, uint8(0), skips[39])
}

func TestParseBlob(t *testing.T) {
	program := &Program{
		ProgramMemorySizes: ProgramMemorySizes{InitialHeapPages: 2, StackSize: 0x1000},
		ROData:             []byte{1, 2},
		RWData:             []byte{3},
		CodeAndJumpTable:   []byte{0, 0, 1, 0, 1},
	}
	blob, err := program.MarshalJAM()
	require.NoError(t, err)

	parsed, err := ParseBlob(blob)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), parsed.ProgramMemorySizes.RODataSize)
	assert.Equal(t, uint32(1), parsed.ProgramMemorySizes.RWDataSize)
	assert.Equal(t, uint16(2), parsed.ProgramMemorySizes.InitialHeapPages)
	assert.Equal(t, uint32(0x1000), parsed.ProgramMemorySizes.StackSize)
	assert.Equal(t, program.ROData, parsed.ROData)
	assert.Equal(t, program.RWData, parsed.RWData)
	assert.Equal(t, program.CodeAndJumpTable, parsed.CodeAndJumpTable)

	_, err = ParseBlob(blob[:len(blob)-1])
	assert.Error(t, err)
}

func TestProgramContainer(t *testing.T) {
	program := &Program{CodeAndJumpTable: []byte{0, 0, 1, 0, 1}}
	blob, err := program.MarshalJAM()
	require.NoError(t, err)

	container := NewProgramContainer([]byte("counter v1"), blob, map[string]uint32{
		EntryRefine:     0,
		EntryAccumulate: 5,
		EntryOnTransfer: 10,
	})
	encoded, err := jam.Marshal(container)
	require.NoError(t, err)

	decoded, parsed, err := ParseContainer(encoded)
	require.NoError(t, err)
	assert.Equal(t, []byte("counter v1"), decoded.Metadata)
	assert.Equal(t, blob, decoded.Blob)
	assert.Equal(t, program.CodeAndJumpTable, parsed.CodeAndJumpTable)

	pc, err := decoded.EntryPoint(EntryAccumulate)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), pc)

	_, err = decoded.EntryPoint(EntryIsAuthorized)
	assert.ErrorIs(t, err, ErrUnknownEntryPoint)

	// entries are encoded in name order
	names := make([]string, 0, decoded.EntryPoints.Len())
	for name := range decoded.EntryPoints.All() {
		names = append(names, name.V)
	}
	assert.Equal(t, []string{EntryAccumulate, EntryOnTransfer, EntryRefine}, names)
}
