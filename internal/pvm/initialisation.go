package pvm

import (
	"errors"

	"github.com/eigerco/pvmhost/internal/safemath"
)

const (
	AddressSpaceSize               = 1 << 32
	DynamicAddressAlignment        = 2                           // Z_A = 2: The pvm dynamic address alignment factor (eq. A.18 v0.7.2)
	InputDataSize                  = 1 << 24                     // Z_I: The standard pvm program initialization input data size (eq. A.39 v0.7.2)
	MemoryZoneSize                 = 1 << 16                     // Z_Z: The standard pvm program initialization zone size (eq. A.39 v0.7.2)
	PageSize                       = 1 << 12                     // Z_P: The pvm memory page size (eq. 4.25)
	MaxPageIndex                   = AddressSpaceSize / PageSize // p = 2^32 / Z_P = 1 << 20
	AddressReturnToHost            = AddressSpaceSize - MemoryZoneSize
	StackAddressHigh               = AddressSpaceSize - 2*MemoryZoneSize - InputDataSize // 2^32 − 2Z_Z − Z_I
	ArgsAddressLow                 = AddressSpaceSize - MemoryZoneSize - InputDataSize   // 2^32 − Z_Z − Z_I
	RWAddressBase           uint64 = 2 * MemoryZoneSize
)

var (
	ErrMemoryLayoutOverflowsAddressSpace = errors.New("memory layout overflows address space")
)

// InitializeStandardProgram (eq. A.37 v0.7.2)
func InitializeStandardProgram(program *Program, argsData []byte) (Memory, Registers, error) {
	ram, err := InitializeMemory(program.ROData, program.RWData, argsData, program.ProgramMemorySizes.StackSize, program.ProgramMemorySizes.InitialHeapPages)
	if err != nil {
		return Memory{}, Registers{}, err
	}
	regs := InitializeRegisters(len(argsData))
	return ram, regs, nil
}

// InitializeMemory (eq. A.42 v0.7.2)
func InitializeMemory(roData, rwData, argsData []byte, stackSize uint32, initialPages uint16) (Memory, error) {
	stackSizeRounded2Page, err := roundUpToPage(stackSize) // P(s)
	if err != nil {
		return Memory{}, err
	}
	stackSizeRounded2Zone, err := roundUpToZone(stackSize) // Z(s)
	if err != nil {
		return Memory{}, err
	}
	rwDataRounded2Zone, err := roundUpToZone(uint32(len(rwData)) + uint32(initialPages)*PageSize)
	if err != nil {
		return Memory{}, err
	}
	rwDataRounded2Page, err := roundUpToPage(uint32(len(rwData)))
	if err != nil {
		return Memory{}, err
	}
	roDataRounded2Page, err := roundUpToPage(uint32(len(roData)))
	if err != nil {
		return Memory{}, err
	}
	roDataRounded2Zone, err := roundUpToZone(uint32(len(roData)))
	if err != nil {
		return Memory{}, err
	}
	argsDataRounded2Page, err := roundUpToPage(uint32(len(argsData)))
	if err != nil {
		return Memory{}, err
	}
	// 5Z_Z + Z(|o|) + Z(|w| + zZ_P) + Z(s) + Z_I ≤ 2^32 (eq. A.41 v0.7.2)
	v, ok := safemath.Mul[uint32](5, MemoryZoneSize)
	if !ok {
		return Memory{}, ErrMemoryLayoutOverflowsAddressSpace
	}
	v, ok = safemath.Add(v, rwDataRounded2Zone)
	if !ok {
		return Memory{}, ErrMemoryLayoutOverflowsAddressSpace
	}
	v, ok = safemath.Add(v, stackSizeRounded2Zone)
	if !ok {
		return Memory{}, ErrMemoryLayoutOverflowsAddressSpace
	}
	_, ok = safemath.Add(v, InputDataSize)
	if !ok {
		return Memory{}, ErrMemoryLayoutOverflowsAddressSpace
	}

	mem := NewMemory()
	// if Z_Z ≤ i < Z_Z + P(|o|): v = o_(i−Z_Z), a = R
	mem.mapRegion(MemoryZoneSize, roDataRounded2Page, roData, ReadOnly)
	// if 2Z_Z + Z(|o|) ≤ i < 2Z_Z + Z(|o|) + P(|w|) + zZ_P: v = w_(i−(2Z_Z+Z(|o|))), a = W
	mem.mapRegion(2*MemoryZoneSize+roDataRounded2Zone, rwDataRounded2Page+uint32(initialPages)*PageSize, rwData, ReadWrite)
	// if 2^32 − 2Z_Z − Z_I − P(s) ≤ i < 2^32 − 2Z_Z − Z_I: a = W
	mem.mapRegion(StackAddressHigh-stackSizeRounded2Page, stackSizeRounded2Page, nil, ReadWrite)
	// if 2^32 − Z_Z − Z_I ≤ i < 2^32 − Z_Z − Z_I + P(|a|): v = a_(i−(2^32−Z_Z−Z_I)), a = R
	mem.mapRegion(ArgsAddressLow, argsDataRounded2Page, argsData, ReadOnly)
	return mem, nil
}

// InitializeRegisters (eq. A.43 v0.7.2)
func InitializeRegisters(argsLen int) Registers {
	return Registers{
		R0: AddressReturnToHost, // 2^32 − 2^16 		if i = 0
		R1: StackAddressHigh,    // 2^32 − 2Z_Z − Z_I 	if i = 1
		R7: ArgsAddressLow,      // 2^32 − Z_Z − Z_I 	if i = 7
		R8: uint64(argsLen),     // |a| 				if i = 8
		// 0 otherwise
	}
}

// roundUpToPage let P(x ∈ N) ≡ Z_P⌈x/Z_P⌉ (eq. A.40 v0.7.2)
func roundUpToPage(value uint32) (uint32, error) {
	v, ok := safemath.Add(value, PageSize-1)
	if !ok {
		return 0, ErrMemoryLayoutOverflowsAddressSpace
	}
	roundedUpVal, ok := safemath.Mul(PageSize, v/PageSize)
	if !ok {
		return 0, ErrMemoryLayoutOverflowsAddressSpace
	}
	return roundedUpVal, nil
}

// roundUpToZone let Z(x ∈ N) ≡ Z_Z⌈x/Z_Z⌉ (eq. A.40 v0.7.2)
func roundUpToZone(value uint32) (uint32, error) {
	v, ok := safemath.Add(value, MemoryZoneSize-1)
	if !ok {
		return 0, ErrMemoryLayoutOverflowsAddressSpace
	}
	roundedUpVal, ok := safemath.Mul(MemoryZoneSize, v/MemoryZoneSize)
	if !ok {
		return 0, ErrMemoryLayoutOverflowsAddressSpace
	}
	return roundedUpVal, nil
}
