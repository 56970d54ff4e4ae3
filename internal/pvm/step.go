package pvm

// step Ψ1(B, B, ⟦NR⟧, NR, NG, ⟦NR⟧13, M) → ({☇, ∎, ▸} ∪ {F,-h} × NR, NR, ZG, ⟦NR⟧13, M) (A.6 v0.7.2)
// Returns the host call index alongside ErrHostCall, the instruction counter is left on the ecalli.
func (i *Instance) step() (uint64, error) {
	// ℓ ≡ skip(ı) (eq. A.20 v0.7.2)
	i.skipLen = i.skipAt(i.instructionCounter)

	// ζ ≡ c ⌢ [0, 0, ... ] (eq. A.4 v0.7.2), past the end of the code reads trap
	opcode := Opcode(i.at(i.instructionCounter))
	if i.instructionCounter < uint64(len(i.code)) && !i.bitmask[i.instructionCounter] {
		opcode = Trap
	}

	// ϱ′ = ϱ − ϱ∆ (eq. A.9 v0.7.2)
	if err := i.deductGas(InstructionCost); err != nil {
		return 0, err
	}

	switch opcode {
	case Trap:
		return 0, ErrPanicf("trap")
	case Fallthrough:
		i.skip()
	case Ecalli:
		// ε = ħ × νX
		return i.decodeArgsImm(), ErrHostCall
	case LoadImm64:
		i.setAndSkip(i.decodeArgsRegImmExt())
	case StoreImmU8, StoreImmU16, StoreImmU32, StoreImmU64:
		address, value := i.decodeArgsImm2()
		return 0, i.store(address, storeWidth(opcode-StoreImmU8), value)
	case Jump:
		return 0, i.branch(true, i.decodeArgsOffset())
	case JumpInd:
		base, offset := i.decodeArgsRegImm()
		return 0, i.djump(uint32(i.regs[base] + offset))
	case LoadImm:
		i.setAndSkip(i.decodeArgsRegImm())
	case LoadU8, LoadI8, LoadU16, LoadI16, LoadU32, LoadI32, LoadU64:
		dst, address := i.decodeArgsRegImm()
		return 0, i.loadInto(dst, address, opcode-LoadU8)
	case StoreU8, StoreU16, StoreU32, StoreU64:
		src, address := i.decodeArgsRegImm()
		return 0, i.store(address, storeWidth(opcode-StoreU8), i.regs[src])
	case StoreImmIndU8, StoreImmIndU16, StoreImmIndU32, StoreImmIndU64:
		base, offset, value := i.decodeArgsRegImm2()
		return 0, i.store(i.regs[base]+offset, storeWidth(opcode-StoreImmIndU8), value)
	case LoadImmJump:
		dst, value, target := i.decodeArgsRegImmOffset()
		i.regs[dst] = value
		return 0, i.branch(true, target)
	case BranchEqImm, BranchNeImm, BranchLtUImm, BranchLeUImm, BranchGeUImm,
		BranchGtUImm, BranchLtSImm, BranchLeSImm, BranchGeSImm, BranchGtSImm:
		reg, value, target := i.decodeArgsRegImmOffset()
		return 0, i.branch(compare(opcode, i.regs[reg], value), target)
	case MoveReg:
		dst, src := i.decodeArgsReg2()
		i.setAndSkip(dst, i.regs[src])
	case StoreIndU8, StoreIndU16, StoreIndU32, StoreIndU64:
		src, base, offset := i.decodeArgsReg2Imm()
		return 0, i.store(i.regs[base]+offset, storeWidth(opcode-StoreIndU8), i.regs[src])
	case LoadIndU8, LoadIndI8, LoadIndU16, LoadIndI16, LoadIndU32, LoadIndI32, LoadIndU64:
		dst, base, offset := i.decodeArgsReg2Imm()
		return 0, i.loadInto(dst, i.regs[base]+offset, opcode-LoadIndU8)
	case AddImm32:
		dst, src, value := i.decodeArgsReg2Imm()
		i.setAndSkip(dst, sext(uint64(uint32(i.regs[src]+value)), 4))
	case AndImm:
		dst, src, value := i.decodeArgsReg2Imm()
		i.setAndSkip(dst, i.regs[src]&value)
	case XorImm:
		dst, src, value := i.decodeArgsReg2Imm()
		i.setAndSkip(dst, i.regs[src]^value)
	case OrImm:
		dst, src, value := i.decodeArgsReg2Imm()
		i.setAndSkip(dst, i.regs[src]|value)
	case SetLtUImm:
		dst, src, value := i.decodeArgsReg2Imm()
		i.setAndSkip(dst, boolToUint64(i.regs[src] < value))
	case SetLtSImm:
		dst, src, value := i.decodeArgsReg2Imm()
		i.setAndSkip(dst, boolToUint64(int64(i.regs[src]) < int64(value)))
	case AddImm64:
		dst, src, value := i.decodeArgsReg2Imm()
		i.setAndSkip(dst, i.regs[src]+value)
	case MulImm64:
		dst, src, value := i.decodeArgsReg2Imm()
		i.setAndSkip(dst, i.regs[src]*value)
	case BranchEq, BranchNe, BranchLtU, BranchLtS, BranchGeU, BranchGeS:
		regA, regB, target := i.decodeArgsReg2Offset()
		return 0, i.branch(compare(opcode, i.regs[regA], i.regs[regB]), target)
	case Add32:
		regA, regB, dst := i.decodeArgsReg3()
		i.setAndSkip(dst, sext(uint64(uint32(i.regs[regA]+i.regs[regB])), 4))
	case Sub32:
		regA, regB, dst := i.decodeArgsReg3()
		i.setAndSkip(dst, sext(uint64(uint32(i.regs[regA]-i.regs[regB])), 4))
	case Add64:
		regA, regB, dst := i.decodeArgsReg3()
		i.setAndSkip(dst, i.regs[regA]+i.regs[regB])
	case Sub64:
		regA, regB, dst := i.decodeArgsReg3()
		i.setAndSkip(dst, i.regs[regA]-i.regs[regB])
	case Mul64:
		regA, regB, dst := i.decodeArgsReg3()
		i.setAndSkip(dst, i.regs[regA]*i.regs[regB])
	case ShloL64:
		regA, regB, dst := i.decodeArgsReg3()
		i.setAndSkip(dst, i.regs[regA]<<(i.regs[regB]%64))
	case ShloR64:
		regA, regB, dst := i.decodeArgsReg3()
		i.setAndSkip(dst, i.regs[regA]>>(i.regs[regB]%64))
	case And:
		regA, regB, dst := i.decodeArgsReg3()
		i.setAndSkip(dst, i.regs[regA]&i.regs[regB])
	case Xor:
		regA, regB, dst := i.decodeArgsReg3()
		i.setAndSkip(dst, i.regs[regA]^i.regs[regB])
	case Or:
		regA, regB, dst := i.decodeArgsReg3()
		i.setAndSkip(dst, i.regs[regA]|i.regs[regB])
	case SetLtU:
		regA, regB, dst := i.decodeArgsReg3()
		i.setAndSkip(dst, boolToUint64(i.regs[regA] < i.regs[regB]))
	case SetLtS:
		regA, regB, dst := i.decodeArgsReg3()
		i.setAndSkip(dst, boolToUint64(int64(i.regs[regA]) < int64(i.regs[regB])))
	default:
		return 0, ErrPanicf("invalid opcode %d at %d", opcode, i.instructionCounter)
	}
	return 0, nil
}

// loadInto loads an unsigned or sign extended value, variant counts from the u8 form (u8, i8, u16, i16, u32, i32, u64)
func (i *Instance) loadInto(dst Reg, address uint64, variant Opcode) error {
	length := 1 << (variant / 2)
	value, err := i.load(address, length)
	if err != nil {
		return err
	}
	if variant%2 == 1 {
		value = sext(value, uint64(length))
	}
	i.setAndSkip(dst, value)
	return nil
}

func storeWidth(variant Opcode) int {
	return 1 << variant
}

func compare(opcode Opcode, a, b uint64) bool {
	switch opcode {
	case BranchEqImm, BranchEq:
		return a == b
	case BranchNeImm, BranchNe:
		return a != b
	case BranchLtUImm, BranchLtU:
		return a < b
	case BranchLeUImm:
		return a <= b
	case BranchGeUImm, BranchGeU:
		return a >= b
	case BranchGtUImm:
		return a > b
	case BranchLtSImm, BranchLtS:
		return int64(a) < int64(b)
	case BranchLeSImm:
		return int64(a) <= int64(b)
	case BranchGeSImm, BranchGeS:
		return int64(a) >= int64(b)
	case BranchGtSImm:
		return int64(a) > int64(b)
	}
	return false
}

func boolToUint64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// at ζ_n
func (i *Instance) at(n uint64) byte {
	if n < uint64(len(i.code)) {
		return i.code[n]
	}
	return 0
}

// immediate X_l(E−1_l(ζ_{n...+l})) (eq. A.10 v0.7.2)
func (i *Instance) immediate(n uint64, length uint64) uint64 {
	var v uint64
	for k := uint64(0); k < length; k++ {
		v |= uint64(i.at(n+k)) << (8 * k)
	}
	return sext(v, length)
}

func (i *Instance) offset(n uint64, length uint64) uint64 {
	return uint64(uint32(i.instructionCounter + i.immediate(n, length)))
}

func reg(b byte) Reg {
	return Reg(min(12, b))
}

// decodeArgsImm lX = min(4, ℓ) (eq. A.21 v0.7.2)
func (i *Instance) decodeArgsImm() uint64 {
	return i.immediate(i.instructionCounter+1, min(4, i.skipLen))
}

// decodeArgsRegImmExt rA = min(12, ζı+1 mod 16), νX = E−1_8(ζı+2...+8) (eq. A.22 v0.7.2)
func (i *Instance) decodeArgsRegImmExt() (Reg, uint64) {
	var v uint64
	for k := uint64(0); k < 8; k++ {
		v |= uint64(i.at(i.instructionCounter+2+k)) << (8 * k)
	}
	return reg(i.at(i.instructionCounter+1) % 16), v
}

// decodeArgsImm2 lX = min(4, ζı+1 mod 8), lY = min(4, max(0, ℓ − lX − 1)) (eq. A.23 v0.7.2)
func (i *Instance) decodeArgsImm2() (uint64, uint64) {
	lX := min(4, uint64(i.at(i.instructionCounter+1)%8))
	lY := min(4, saturatingSub(i.skipLen, lX+1))
	return i.immediate(i.instructionCounter+2, lX), i.immediate(i.instructionCounter+2+lX, lY)
}

// decodeArgsOffset lX = min(4, ℓ), νX = ı + Z_lX(...) (eq. A.24 v0.7.2)
func (i *Instance) decodeArgsOffset() uint64 {
	return i.offset(i.instructionCounter+1, min(4, i.skipLen))
}

// decodeArgsRegImm rA = min(12, ζı+1 mod 16), lX = min(4, max(0, ℓ − 1)) (eq. A.25 v0.7.2)
func (i *Instance) decodeArgsRegImm() (Reg, uint64) {
	lX := min(4, saturatingSub(i.skipLen, 1))
	return reg(i.at(i.instructionCounter+1) % 16), i.immediate(i.instructionCounter+2, lX)
}

// decodeArgsRegImm2 lX = min(4, ⌊ζı+1 / 16⌋ mod 8), lY = min(4, max(0, ℓ − lX − 1)) (eq. A.26 v0.7.2)
func (i *Instance) decodeArgsRegImm2() (Reg, uint64, uint64) {
	b := i.at(i.instructionCounter + 1)
	lX := min(4, uint64(b/16%8))
	lY := min(4, saturatingSub(i.skipLen, lX+1))
	return reg(b % 16), i.immediate(i.instructionCounter+2, lX), i.immediate(i.instructionCounter+2+lX, lY)
}

// decodeArgsRegImmOffset as decodeArgsRegImm2 with νY = ı + Z_lY(...) (eq. A.27 v0.7.2)
func (i *Instance) decodeArgsRegImmOffset() (Reg, uint64, uint64) {
	b := i.at(i.instructionCounter + 1)
	lX := min(4, uint64(b/16%8))
	lY := min(4, saturatingSub(i.skipLen, lX+1))
	return reg(b % 16), i.immediate(i.instructionCounter+2, lX), i.offset(i.instructionCounter+2+lX, lY)
}

// decodeArgsReg2 rD = min(12, ζı+1 mod 16), rA = min(12, ⌊ζı+1 / 16⌋) (eq. A.28 v0.7.2)
func (i *Instance) decodeArgsReg2() (Reg, Reg) {
	b := i.at(i.instructionCounter + 1)
	return reg(b % 16), reg(b / 16)
}

// decodeArgsReg2Imm rA = min(12, ζı+1 mod 16), rB = min(12, ⌊ζı+1 / 16⌋), lX = min(4, max(0, ℓ − 1)) (eq. A.29 v0.7.2)
func (i *Instance) decodeArgsReg2Imm() (Reg, Reg, uint64) {
	b := i.at(i.instructionCounter + 1)
	lX := min(4, saturatingSub(i.skipLen, 1))
	return reg(b % 16), reg(b / 16), i.immediate(i.instructionCounter+2, lX)
}

// decodeArgsReg2Offset as decodeArgsReg2Imm with νX = ı + Z_lX(...) (eq. A.30 v0.7.2)
func (i *Instance) decodeArgsReg2Offset() (Reg, Reg, uint64) {
	b := i.at(i.instructionCounter + 1)
	lX := min(4, saturatingSub(i.skipLen, 1))
	return reg(b % 16), reg(b / 16), i.offset(i.instructionCounter+2, lX)
}

// decodeArgsReg3 rA = min(12, ζı+1 mod 16), rB = min(12, ⌊ζı+1 / 16⌋), rD = min(12, ζı+2) (eq. A.32 v0.7.2)
func (i *Instance) decodeArgsReg3() (Reg, Reg, Reg) {
	b := i.at(i.instructionCounter + 1)
	return reg(b % 16), reg(b / 16), reg(i.at(i.instructionCounter + 2))
}

func saturatingSub(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}

// sext X_n sign extends an n octet value to 64 bits (eq. A.16 v0.7.2)
func sext(value uint64, length uint64) uint64 {
	switch length {
	case 0:
		return 0
	case 8:
		return value
	}
	shift := 64 - 8*length
	return uint64(int64(value<<shift) >> shift)
}
