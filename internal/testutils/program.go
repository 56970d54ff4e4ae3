package testutils

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eigerco/pvmhost/internal/pvm"
	"github.com/eigerco/pvmhost/pkg/serialization/codec/jam"
)

// Instruction is one encoded instruction, its first byte is the opcode
type Instruction []byte

// immediate the shortest little-endian encoding that sign extends back to v
func immediate(v uint64) []byte {
	for n := 0; n < 4; n++ {
		shift := 64 - 8*uint(n)
		if n == 0 && v == 0 || n > 0 && uint64(int64(v<<shift)>>shift) == v {
			return jam.EncodeUint64(v, uint(n))
		}
	}
	return jam.EncodeUint64(v, 4)
}

func Trap() Instruction        { return Instruction{byte(pvm.Trap)} }
func Fallthrough() Instruction { return Instruction{byte(pvm.Fallthrough)} }

func Ecalli(hostCall uint64) Instruction {
	return append(Instruction{byte(pvm.Ecalli)}, immediate(hostCall)...)
}

func LoadImm(dst pvm.Reg, v uint64) Instruction {
	return append(Instruction{byte(pvm.LoadImm), byte(dst)}, immediate(v)...)
}

func LoadImm64(dst pvm.Reg, v uint64) Instruction {
	return append(Instruction{byte(pvm.LoadImm64), byte(dst)}, jam.EncodeUint64(v, 8)...)
}

func AddImm64(dst, src pvm.Reg, v uint64) Instruction {
	return append(Instruction{byte(pvm.AddImm64), byte(dst) | byte(src)<<4}, immediate(v)...)
}

func Add64(a, b, dst pvm.Reg) Instruction {
	return Instruction{byte(pvm.Add64), byte(a) | byte(b)<<4, byte(dst)}
}

func StoreIndU64(src, base pvm.Reg, offset uint64) Instruction {
	return append(Instruction{byte(pvm.StoreIndU64), byte(src) | byte(base)<<4}, immediate(offset)...)
}

func LoadIndU64(dst, base pvm.Reg, offset uint64) Instruction {
	return append(Instruction{byte(pvm.LoadIndU64), byte(dst) | byte(base)<<4}, immediate(offset)...)
}

// JumpInd jumps to φ[base] + offset, jump_ind ra 0 returns to the host
func JumpInd(base pvm.Reg, offset uint64) Instruction {
	return append(Instruction{byte(pvm.JumpInd), byte(base)}, immediate(offset)...)
}

// Halt jumps to the return address 2^32 − 2^16 held in ra by the standard initialization
func Halt() Instruction {
	return JumpInd(pvm.R0, 0)
}

// BranchNeImm branches by the relative offset when φ[reg] differs from v
func BranchNeImm(reg pvm.Reg, v uint64, offset int32) Instruction {
	imm := immediate(v)
	out := Instruction{byte(pvm.BranchNeImm), byte(reg) | byte(len(imm))<<4}
	out = append(out, imm...)
	return append(out, jam.EncodeUint64(uint64(uint32(offset)), 4)...)
}

// Code concatenates the instructions and marks the first byte of each in the bitmask
func Code(instructions ...Instruction) ([]byte, jam.BitSequence) {
	var code []byte
	var bitmask jam.BitSequence
	for _, instruction := range instructions {
		code = append(code, instruction...)
		bitmask = append(bitmask, true)
		for range instruction[1:] {
			bitmask = append(bitmask, false)
		}
	}
	return code, bitmask
}

// CodeBlob the deblob-able code section of the instructions with an empty jump table
func CodeBlob(t *testing.T, instructions ...Instruction) []byte {
	code, bitmask := Code(instructions...)
	blob, err := pvm.Enblob(code, bitmask, nil)
	require.NoError(t, err)
	return blob
}

// ProgramBlob a standard program blob with a page of stack around the instructions
func ProgramBlob(t *testing.T, roData, rwData []byte, instructions ...Instruction) []byte {
	program := &pvm.Program{
		ProgramMemorySizes: pvm.ProgramMemorySizes{StackSize: pvm.PageSize},
		ROData:             roData,
		RWData:             rwData,
		CodeAndJumpTable:   CodeBlob(t, instructions...),
	}
	blob, err := program.MarshalJAM()
	require.NoError(t, err)
	return blob
}
