package pvm

import (
	"github.com/eigerco/pvmhost/pkg/serialization/codec/jam"
)

func Instantiate(program []byte, instructionOffset uint64, gasLimit Gas, regs Registers, memory Memory) (*Instance, error) {
	code, bitmask, jumpTable, err := Deblob(program)
	if err != nil {
		return nil, err
	}

	skipLengths := PrecomputeSkipLengths(bitmask)

	// ϖ ≡ [0] ⌢ [n + 1 + skip(n) | n <− N_|c| ∧ kn = 1 ∧ cn ∈ T ] (eq. A.5 v0.7.2)
	basicBlockInstructions := map[uint64]struct{}{0: {}}

	for i, b := range bitmask {
		if b && Opcode(code[i]).IsBasicBlockTermination() {
			basicBlockInstructions[uint64(i)+1+uint64(skipLengths[i])] = struct{}{}
		}
	}

	return &Instance{
		memory:                 memory,
		regs:                   regs,
		instructionCounter:     instructionOffset,
		gasRemaining:           gasLimit,
		code:                   code,
		jumpTable:              jumpTable,
		bitmask:                bitmask,
		skipLengths:            skipLengths,
		basicBlockInstructions: basicBlockInstructions,
	}, nil
}

type Instance struct {
	memory                 Memory              // The memory sequence; a member of the set M (μ)
	regs                   Registers           // The registers (φ)
	instructionCounter     uint64              // The instruction counter (ı)
	gasRemaining           Gas                 // The gas counter (ϱ). For single step and basic invocation use Z_G (int64) according to GP the gas result can be negative
	code                   []byte              // ζ
	jumpTable              []uint64            // j
	bitmask                jam.BitSequence     // k
	skipLengths            []uint8             // skip(n) for every n < |c|
	basicBlockInstructions map[uint64]struct{} // ϖ

	skipLen uint64
}

// skipAt skip(n), positions past the end of the code are followed by an implicit 1 in k
func (i *Instance) skipAt(n uint64) uint64 {
	if n < uint64(len(i.skipLengths)) {
		return uint64(i.skipLengths[n])
	}
	return 0
}

// NextInstruction ı + 1 + skip(ı), the instruction that follows the current one
func (i *Instance) NextInstruction() uint64 {
	return i.instructionCounter + 1 + i.skipAt(i.instructionCounter)
}

// skip ı′ = ı + 1 + skip(ı) (eq. A.9 v0.7.2)
func (i *Instance) skip() {
	i.instructionCounter += 1 + i.skipLen
}

func (i *Instance) deductGas(cost Gas) error {
	if i.gasRemaining < cost {
		return ErrOutOfGas
	}
	i.gasRemaining -= cost
	return nil
}

// load E−1_n(μ↺_{a...+n}) where a is address and n is length
func (i *Instance) load(address uint64, length int) (uint64, error) {
	var buf [8]byte
	if err := i.memory.Read(uint32(address), buf[:length]); err != nil {
		return 0, err
	}
	return jam.DecodeUint64(buf[:length]), nil
}

// store μ′↺_{a...+n} = E_n(v) where a is address and n is the length in bytes
func (i *Instance) store(address uint64, length int, v uint64) error {
	if err := i.memory.Write(uint32(address), jam.EncodeUint64(v, uint(length))); err != nil {
		return err
	}
	i.skip()
	return nil
}

func (i *Instance) setAndSkip(dst Reg, value uint64) {
	i.regs[dst] = value
	i.skip()
}

// branch (b, C) =⇒ (ε, ı′) (eq. A.17 v0.7.2)
func (i *Instance) branch(condition bool, target uint64) error {
	if condition {
		// (☇, ı) if b ∉ ϖ
		if _, ok := i.basicBlockInstructions[target]; !ok {
			return ErrPanicf("jump to non-block-termination instruction target=%d", target)
		}
		// (▸, b) otherwise
		i.instructionCounter = target
	} else {
		// (▸, ı) if ¬C
		i.skip()
	}
	return nil
}

// djump (a) =⇒ (ε, ı′) (eq. A.18 v0.7.2)
func (i *Instance) djump(address uint32) error {
	// (∎, ı) if a = 2^32 − 2^16
	if address == AddressReturnToHost {
		return ErrHalt
	}

	// (☇, ı) if a = 0 ∨ a > |j| ⋅ ZA ∨ a mod ZA ≠ 0
	if address == 0 || uint64(address) > uint64(len(i.jumpTable))*DynamicAddressAlignment || address%DynamicAddressAlignment != 0 {
		return ErrPanicf("indirect jump to address %v invalid", address)
	}

	// (☇, ı) if j_(a/ZA)−1 ∉ ϖ
	instructionOffset := i.jumpTable[(address/DynamicAddressAlignment)-1]
	if _, ok := i.basicBlockInstructions[instructionOffset]; !ok {
		return ErrPanicf("indirect jump to address %v is non block-termination instruction", address)
	}

	// (▸, j_(a/ZA)−1) otherwise
	i.instructionCounter = instructionOffset
	return nil
}

func (i *Instance) Results() (uint64, Gas, Registers, Memory) {
	return i.instructionCounter, i.gasRemaining, i.regs, i.memory
}
