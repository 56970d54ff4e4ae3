package pvm

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/eigerco/pvmhost/pkg/collections"
	"github.com/eigerco/pvmhost/pkg/serialization/codec/jam"
)

const BitmaskMax = 24

// named entry points of a program container
const (
	EntryRefine       = "refine"
	EntryAccumulate   = "accumulate"
	EntryOnTransfer   = "on_transfer"
	EntryIsAuthorized = "is_authorized"
)

var (
	ErrTrailingBytes     = errors.New("trailing bytes after program code")
	ErrUnknownEntryPoint = errors.New("unknown entry point")
)

type ProgramMemorySizes struct {
	RODataSize       uint32 `jam:"length=3"`
	RWDataSize       uint32 `jam:"length=3"`
	InitialHeapPages uint16 `jam:"length=2"`
	StackSize        uint32 `jam:"length=3"`
}

// Program let E3(|o|) ⌢ E3(|w|) ⌢ E2(z) ⌢ E3(s) ⌢ o ⌢ w ⌢ E4(|c|) ⌢ c = p (eq. A.38 v0.7.2)
type Program struct {
	ProgramMemorySizes ProgramMemorySizes
	ROData             []byte
	RWData             []byte
	CodeAndJumpTable   []byte
}

// ParseBlob let E3(|o|) ⌢ E3(|w|) ⌢ E2(z) ⌢ E3(s) ⌢ o ⌢ w ⌢ E4(|c|) ⌢ c = p (eq. A.38 v0.7.2)
func ParseBlob(data []byte) (program *Program, err error) {
	program = &Program{ProgramMemorySizes: ProgramMemorySizes{}}
	buff := bytes.NewBuffer(data)
	dec := jam.NewDecoder(buff)
	if err := dec.Decode(&program.ProgramMemorySizes); err != nil {
		return nil, err
	}
	if err := dec.DecodeFixedLength(&program.ROData, uint(program.ProgramMemorySizes.RODataSize)); err != nil {
		return nil, err
	}
	if int(program.ProgramMemorySizes.RODataSize) != len(program.ROData) {
		return nil, fmt.Errorf("ro data size mismatch")
	}
	if err := dec.DecodeFixedLength(&program.RWData, uint(program.ProgramMemorySizes.RWDataSize)); err != nil {
		return nil, err
	}
	if int(program.ProgramMemorySizes.RWDataSize) != len(program.RWData) {
		return nil, fmt.Errorf("rw data size mismatch")
	}

	var codeSize uint32
	if err := dec.Decode(&codeSize); err != nil {
		return nil, err
	}
	if len(buff.Bytes()) != int(codeSize) {
		return nil, fmt.Errorf("code size mismatch")
	}

	program.CodeAndJumpTable = buff.Bytes()
	return program, nil
}

// MarshalJAM is the inverse of ParseBlob
func (p *Program) MarshalJAM() ([]byte, error) {
	sizes := p.ProgramMemorySizes
	sizes.RODataSize = uint32(len(p.ROData))
	sizes.RWDataSize = uint32(len(p.RWData))
	out, err := jam.Marshal(sizes)
	if err != nil {
		return nil, err
	}
	out = append(out, p.ROData...)
	out = append(out, p.RWData...)
	out = append(out, jam.EncodeUint64(uint64(len(p.CodeAndJumpTable)), 4)...)
	return append(out, p.CodeAndJumpTable...), nil
}

type CodeAndJumpTableLengths struct {
	JumpTableEntryCount uint
	JumpTableEntrySize  byte
	CodeLength          uint
}

// Deblob deblob(p B) → (B, b, ⟦NR⟧) ∪ ∇ ↦ p = Ε(|j|) ⌢ E1(z) ⌢ E(|c|) ⌢ E_z(j) ⌢ E(c) ⌢ E(k), |k| = |c| (eq. A.2 v0.7.2)
func Deblob(bytecode []byte) ([]byte, jam.BitSequence, []uint64, error) {
	sizes := &CodeAndJumpTableLengths{}

	buff := bytes.NewBuffer(bytecode)
	dec := jam.NewDecoder(buff)
	// Ε(|j|) ⌢ E1(z) ⌢ E(|c|)
	if err := dec.Decode(sizes); err != nil {
		return nil, nil, nil, err
	}
	if sizes.JumpTableEntrySize > 4 {
		return nil, nil, nil, fmt.Errorf("jump table entry size %d too large", sizes.JumpTableEntrySize)
	}
	if sizes.JumpTableEntryCount*uint(sizes.JumpTableEntrySize)+sizes.CodeLength > uint(len(bytecode)) {
		return nil, nil, nil, fmt.Errorf("code and jump table lengths exceed blob size")
	}

	// E_z(j)
	jumpTable := make([]uint64, sizes.JumpTableEntryCount)
	for i := range jumpTable {
		if err := dec.DecodeFixedLength(&jumpTable[i], uint(sizes.JumpTableEntrySize)); err != nil {
			return nil, nil, nil, err
		}
	}
	// E(c)
	code := make([]byte, sizes.CodeLength)
	if err := dec.DecodeFixedLength(&code, sizes.CodeLength); err != nil {
		return nil, nil, nil, err
	}

	// E(k), packed into ⌈|c|/8⌉ octets
	var bitmask = jam.BitSequence{}
	if err := dec.DecodeFixedLength(&bitmask, (sizes.CodeLength+7)/8); err != nil {
		return nil, nil, nil, err
	}
	if buff.Len() != 0 {
		return nil, nil, nil, ErrTrailingBytes
	}

	return code, bitmask[:sizes.CodeLength], jumpTable, nil
}

// Enblob is the inverse of Deblob, the jump table entries use the smallest width that fits all of them
func Enblob(code []byte, bitmask jam.BitSequence, jumpTable []uint64) ([]byte, error) {
	if len(bitmask) != len(code) {
		return nil, fmt.Errorf("bitmask length %d does not match code length %d", len(bitmask), len(code))
	}
	var entrySize byte
	for _, target := range jumpTable {
		for target>>(8*uint(entrySize)) != 0 {
			entrySize++
		}
	}
	out, err := jam.Marshal(CodeAndJumpTableLengths{
		JumpTableEntryCount: uint(len(jumpTable)),
		JumpTableEntrySize:  entrySize,
		CodeLength:          uint(len(code)),
	})
	if err != nil {
		return nil, err
	}
	for _, target := range jumpTable {
		out = append(out, jam.EncodeUint64(target, uint(entrySize))...)
	}
	out = append(out, code...)
	packed := make([]byte, (len(bitmask)+7)/8)
	for i, b := range bitmask {
		if b {
			packed[i/8] |= 1 << (i % 8)
		}
	}
	return append(out, packed...), nil
}

// PrecomputeSkipLengths precomputes skip(i N) → N (eq. A.3 v0.7.2) for all positions.
func PrecomputeSkipLengths(bitmask []bool) []uint8 {
	n := len(bitmask)
	skipLengths := make([]uint8, n)

	distanceToNext := 0
	for i := n - 1; i >= 0; i-- {
		if distanceToNext > BitmaskMax {
			skipLengths[i] = BitmaskMax
		} else {
			skipLengths[i] = uint8(distanceToNext)
		}

		// Update distance for next iteration
		if bitmask[i] {
			distanceToNext = 0
		} else {
			distanceToNext++
		}
	}

	return skipLengths
}

// ProgramContainer wraps a program blob with metadata and its named entry points:
// E(metadata) ⌢ E(entries) ⌢ blob
type ProgramContainer struct {
	Metadata    []byte
	EntryPoints collections.OrderedMap[collections.Ordered[string], uint32]
	Blob        []byte
}

func NewProgramContainer(metadata []byte, blob []byte, entries map[string]uint32) ProgramContainer {
	c := ProgramContainer{Metadata: metadata, Blob: blob}
	for name, pc := range entries {
		c.EntryPoints.Insert(collections.Ordered[string]{V: name}, pc)
	}
	return c
}

// EntryPoint returns the instruction counter the named entry point starts at
func (c ProgramContainer) EntryPoint(name string) (uint32, error) {
	pc, ok := c.EntryPoints.Get(collections.Ordered[string]{V: name})
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownEntryPoint, name)
	}
	return pc, nil
}

func (c ProgramContainer) MarshalJAM() ([]byte, error) {
	out, err := jam.Marshal(c.Metadata)
	if err != nil {
		return nil, err
	}
	entries, err := jam.Marshal(c.EntryPoints)
	if err != nil {
		return nil, err
	}
	out = append(out, entries...)
	return append(out, c.Blob...), nil
}

// ParseContainer decodes a container and checks that its blob parses
func ParseContainer(data []byte) (ProgramContainer, *Program, error) {
	c := ProgramContainer{}
	buff := bytes.NewBuffer(data)
	dec := jam.NewDecoder(buff)
	if err := dec.Decode(&c.Metadata); err != nil {
		return ProgramContainer{}, nil, fmt.Errorf("decoding metadata: %w", err)
	}
	if err := dec.Decode(&c.EntryPoints); err != nil {
		return ProgramContainer{}, nil, fmt.Errorf("decoding entry points: %w", err)
	}
	c.Blob = bytes.Clone(buff.Bytes())
	program, err := ParseBlob(c.Blob)
	if err != nil {
		return ProgramContainer{}, nil, fmt.Errorf("parsing program blob: %w", err)
	}
	return c, program, nil
}
