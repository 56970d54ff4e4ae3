package host_call

import (
	"errors"
	"math"

	"github.com/eigerco/pvmhost/internal/block"
	"github.com/eigerco/pvmhost/internal/constants"
	"github.com/eigerco/pvmhost/internal/crypto"
	"github.com/eigerco/pvmhost/internal/jamtime"
	"github.com/eigerco/pvmhost/internal/pvm"
	"github.com/eigerco/pvmhost/internal/service"
	"github.com/eigerco/pvmhost/pkg/serialization/codec/jam"
)

// the first pages of every machine are never addressable
const minimumPageIndex = 16

// invokeArgsSize E8(g) ⌢ E#8(w)
const invokeArgsSize = 8 + 13*8

// HistoricalLookup ΩH(ϱ, φ, µ, (m, e), s, d, t)
// t is the lookup anchor timeslot of the refine context
func HistoricalLookup(
	gas pvm.Gas,
	regs pvm.Registers,
	mem pvm.Memory,
	ctxPair pvm.RefineContextPair,
	serviceId block.ServiceId,
	serviceState service.ServiceState,
	t jamtime.Timeslot,
) (pvm.Gas, pvm.Registers, pvm.Memory, pvm.RefineContextPair, error) {
	if gas < HistoricalLookupCost {
		return gas, regs, mem, ctxPair, pvm.ErrOutOfGas
	}
	gas -= HistoricalLookupCost

	// let [h, o] = φ8..+2
	h, o := regs[pvm.A1], regs[pvm.A2]

	hashData, err := readBytes(mem, h, crypto.HashSize)
	if err != nil {
		return gas, regs, mem, ctxPair, err
	}

	omega7 := regs[pvm.A0]
	lookupID := serviceId
	if omega7 != math.MaxUint64 {
		if omega7 > math.MaxUint32 {
			return gas, withCode(regs, NONE), mem, ctxPair, nil
		}
		lookupID = block.ServiceId(omega7)
	}

	a, exists := serviceState[lookupID]
	if !exists {
		return gas, withCode(regs, NONE), mem, ctxPair, nil
	}

	// v = Λ(a, t, h)
	v := a.LookupPreimage(t, crypto.Hash(hashData))
	if v == nil {
		return gas, withCode(regs, NONE), mem, ctxPair, nil
	}

	if err := writeFromOffset(&mem, o, v, regs[pvm.A3], regs[pvm.A4]); err != nil {
		return gas, regs, mem, ctxPair, err
	}

	// φ′7 = |v|
	regs[pvm.A0] = uint64(len(v))

	return gas, regs, mem, ctxPair, nil
}

// Export ΩE(ϱ, φ, µ, (m, e), ς)
func Export(
	gas pvm.Gas,
	regs pvm.Registers,
	mem pvm.Memory,
	ctxPair pvm.RefineContextPair,
) (pvm.Gas, pvm.Registers, pvm.Memory, pvm.RefineContextPair, error) {
	if gas < ExportCost {
		return gas, regs, mem, ctxPair, pvm.ErrOutOfGas
	}
	gas -= ExportCost

	p := regs[pvm.A0] // φ7

	// let z = min(φ8, WG)
	z := min(regs[pvm.A1], constants.SegmentSize)

	data, err := readBytes(mem, p, z)
	if err != nil {
		return gas, regs, mem, ctxPair, err
	}

	// x = P_WG(µp..+z)
	segment := make(pvm.Segment, constants.SegmentSize)
	copy(segment, data)

	// FULL if ς + |e| ≥ WM, or the work item already exported all it declared
	exported := uint64(len(ctxPair.Segments))
	if ctxPair.ExportOffset+exported >= constants.MaxExportsPerPackage || exported >= uint64(ctxPair.ExportLimit) {
		return gas, withCode(regs, FULL), mem, ctxPair, nil
	}

	ctxPair.Segments = append(ctxPair.Segments, segment)

	// φ′7 = ς + |e|
	regs[pvm.A0] = ctxPair.ExportOffset + exported
	return gas, regs, mem, ctxPair, nil
}

// Machine ΩM(ϱ, φ, µ, (m, e))
func Machine(
	gas pvm.Gas,
	regs pvm.Registers,
	mem pvm.Memory,
	ctxPair pvm.RefineContextPair,
) (pvm.Gas, pvm.Registers, pvm.Memory, pvm.RefineContextPair, error) {
	if gas < MachineCost {
		return gas, regs, mem, ctxPair, pvm.ErrOutOfGas
	}
	gas -= MachineCost

	// let [po, pz, i] = φ7...10
	po, pz, i := regs[pvm.A0], regs[pvm.A1], regs[pvm.A2]

	// p = µ[po ... po+pz]
	p, err := readBytes(mem, po, pz)
	if err != nil {
		return gas, regs, mem, ctxPair, err
	}

	// HUH if deblob(p) = ∇
	if _, _, _, err = pvm.Deblob(p); err != nil {
		return gas, withCode(regs, HUH), mem, ctxPair, nil
	}

	if ctxPair.IntegratedPVMMap == nil {
		ctxPair.IntegratedPVMMap = make(map[uint64]pvm.IntegratedPVM)
	}

	// let n = min(n ∈ N, n ∉ K(m))
	n := findSmallestMissingKey(ctxPair.IntegratedPVMMap)

	// (φ′7, m′) = (n, m ∪ {n ↦ {p, u, i}}), u has no accessible pages
	ctxPair.IntegratedPVMMap[n] = pvm.IntegratedPVM{
		Code:               p,
		Ram:                pvm.NewMemory(),
		InstructionCounter: i,
	}
	regs[pvm.A0] = n

	return gas, regs, mem, ctxPair, nil
}

// Peek ΩP(ϱ, φ, µ, (m, e))
func Peek(
	gas pvm.Gas,
	regs pvm.Registers,
	mem pvm.Memory,
	ctxPair pvm.RefineContextPair,
) (pvm.Gas, pvm.Registers, pvm.Memory, pvm.RefineContextPair, error) {
	if gas < PeekCost {
		return gas, regs, mem, ctxPair, pvm.ErrOutOfGas
	}
	gas -= PeekCost

	// let [n, o, s, z] = φ7..+4
	n, o, s, z := regs[pvm.A0], regs[pvm.A1], regs[pvm.A2], regs[pvm.A3]

	// the outer destination must be writeable whatever the handle
	if !writeable(mem, o, z) {
		return gas, regs, mem, ctxPair, pvm.ErrPanicf("peek destination is not writeable: address %d length %d", o, z)
	}

	u, exists := ctxPair.IntegratedPVMMap[n]
	if !exists {
		return gas, withCode(regs, WHO), mem, ctxPair, nil
	}

	// (m[n]u)[s...s+z]
	data, err := readBytes(u.Ram, s, z)
	if err != nil {
		return gas, withCode(regs, OOB), mem, ctxPair, nil
	}

	// (φ′7, µ′) = (OK, µ′o...o+z = s)
	if err := mem.Write(uint32(o), data); err != nil {
		return gas, regs, mem, ctxPair, pvm.ErrPanicf("%v", err)
	}

	return gas, withCode(regs, OK), mem, ctxPair, nil
}

// Poke ΩO(ϱ, φ, µ, (m, e))
func Poke(
	gas pvm.Gas,
	regs pvm.Registers,
	mem pvm.Memory,
	ctxPair pvm.RefineContextPair,
) (pvm.Gas, pvm.Registers, pvm.Memory, pvm.RefineContextPair, error) {
	if gas < PokeCost {
		return gas, regs, mem, ctxPair, pvm.ErrOutOfGas
	}
	gas -= PokeCost

	// let [n, s, o, z] = φ7..+4
	n, s, o, z := regs[pvm.A0], regs[pvm.A1], regs[pvm.A2], regs[pvm.A3]

	data, err := readBytes(mem, s, z)
	if err != nil {
		return gas, regs, mem, ctxPair, err
	}

	u, exists := ctxPair.IntegratedPVMMap[n]
	if !exists {
		return gas, withCode(regs, WHO), mem, ctxPair, nil
	}

	if o > math.MaxUint32 {
		return gas, withCode(regs, OOB), mem, ctxPair, nil
	}
	if err := u.Ram.Write(uint32(o), data); err != nil {
		return gas, withCode(regs, OOB), mem, ctxPair, nil
	}

	// (φ′7, m′) = (OK, (m′[n]u)[o..o+z] = s)
	ctxPair.IntegratedPVMMap[n] = u
	return gas, withCode(regs, OK), mem, ctxPair, nil
}

// pageRange validates [p, p+c) against the addressable pages of a machine,
// rejecting p < 16 ∨ p + c ≥ 2^32/ZP
func pageRange(p, c uint64) (uint32, uint32, bool) {
	if p < minimumPageIndex || p+c < p || p+c >= pvm.MaxPageIndex {
		return 0, 0, false
	}
	return uint32(p), uint32(c), true
}

// Zero ΩZ(ϱ, φ, µ, (m, e))
func Zero(
	gas pvm.Gas,
	regs pvm.Registers,
	mem pvm.Memory,
	ctxPair pvm.RefineContextPair,
) (pvm.Gas, pvm.Registers, pvm.Memory, pvm.RefineContextPair, error) {
	if gas < ZeroCost {
		return gas, regs, mem, ctxPair, pvm.ErrOutOfGas
	}
	gas -= ZeroCost

	// let [n, p, c] = φ7..+3
	n, p, c := regs[pvm.A0], regs[pvm.A1], regs[pvm.A2]

	u, exists := ctxPair.IntegratedPVMMap[n]
	if !exists {
		return gas, withCode(regs, WHO), mem, ctxPair, nil
	}

	// HUH if p < 16 ∨ p + c ≥ 2^32/ZP
	pageIndex, count, ok := pageRange(p, c)
	if !ok {
		return gas, withCode(regs, HUH), mem, ctxPair, nil
	}

	// (u′V)pZP..+cZP = [0, 0, ...], (u′A)p..+c = [W, W, ...]
	if err := u.Ram.Zero(pageIndex, count); err != nil {
		return gas, withCode(regs, HUH), mem, ctxPair, nil
	}

	ctxPair.IntegratedPVMMap[n] = u
	return gas, withCode(regs, OK), mem, ctxPair, nil
}

// Void ΩV(ϱ, φ, µ, (m, e))
func Void(
	gas pvm.Gas,
	regs pvm.Registers,
	mem pvm.Memory,
	ctxPair pvm.RefineContextPair,
) (pvm.Gas, pvm.Registers, pvm.Memory, pvm.RefineContextPair, error) {
	if gas < VoidCost {
		return gas, regs, mem, ctxPair, pvm.ErrOutOfGas
	}
	gas -= VoidCost

	// let [n, p, c] = φ7..+3
	n, p, c := regs[pvm.A0], regs[pvm.A1], regs[pvm.A2]

	u, exists := ctxPair.IntegratedPVMMap[n]
	if !exists {
		return gas, withCode(regs, WHO), mem, ctxPair, nil
	}

	// HUH if p + c ≥ 2^32/ZP
	pageIndex, count, ok := pageRange(p, c)
	if !ok {
		return gas, withCode(regs, HUH), mem, ctxPair, nil
	}

	// HUH if (uA)p..+c ∋ ∅
	if err := u.Ram.Void(pageIndex, count); err != nil {
		return gas, withCode(regs, HUH), mem, ctxPair, nil
	}

	ctxPair.IntegratedPVMMap[n] = u
	return gas, withCode(regs, OK), mem, ctxPair, nil
}

// Invoke ΩK(ϱ, φ, µ, (m, e))
func Invoke(
	gas pvm.Gas,
	regs pvm.Registers,
	mem pvm.Memory,
	ctxPair pvm.RefineContextPair,
) (pvm.Gas, pvm.Registers, pvm.Memory, pvm.RefineContextPair, error) {
	if gas < InvokeCost {
		return gas, regs, mem, ctxPair, pvm.ErrOutOfGas
	}
	gas -= InvokeCost

	// let [n, o] = φ7,8
	pvmKey, addr := regs[pvm.A0], regs[pvm.A1]

	// let (g, w) = (g, w) ∶ E8(g) ⌢ E#8(w) = μo⋅⋅⋅+112 if No⋅⋅⋅+112 ⊂ V∗μ
	if !writeable(mem, addr, invokeArgsSize) {
		return gas, regs, mem, ctxPair, pvm.ErrPanicf("invoke arguments are not writeable: address %d", addr)
	}
	invokeGas, err := readNumber[pvm.Gas](mem, addr, 8)
	if err != nil {
		return gas, regs, mem, ctxPair, err
	}
	var invokeRegs pvm.Registers // w
	for i := range 13 {
		invokeReg, err := readNumber[uint64](mem, addr+uint64(i+1)*8, 8)
		if err != nil {
			return gas, regs, mem, ctxPair, err
		}
		invokeRegs[i] = invokeReg
	}

	machine, ok := ctxPair.IntegratedPVMMap[pvmKey]
	if !ok { // if n ∉ m
		return gas, withCode(regs, WHO), mem, ctxPair, nil
	}

	// let (c, i′, g′, w′, u′) = Ψ(m[n]p, m[n]i, g, w, m[n]u)
	instance, err := pvm.Instantiate(machine.Code, machine.InstructionCounter, invokeGas, invokeRegs, machine.Ram)
	if err != nil {
		return gas, withCode(regs, PANIC), mem, ctxPair, nil
	}
	hostCall, invokeErr := pvm.InvokeBasic(instance)
	resultInstr, resultGas, resultRegs, resultMem := instance.Results()

	// μ′o⋅⋅⋅+112 = E8(g′) ⌢ E#8(w′)
	out := make([]byte, 0, invokeArgsSize)
	out = append(out, jam.EncodeUint64(uint64(resultGas), 8)...)
	for _, r := range resultRegs {
		out = append(out, jam.EncodeUint64(r, 8)...)
	}
	if err := mem.Write(uint32(addr), out); err != nil {
		return gas, regs, mem, ctxPair, pvm.ErrPanicf("%v", err)
	}

	machine.Ram = resultMem
	machine.InstructionCounter = resultInstr

	var code uint64
	switch {
	case invokeErr == nil, errors.Is(invokeErr, pvm.ErrHalt):
		code = HALT
	case errors.Is(invokeErr, pvm.ErrOutOfGas):
		code = OOG
	case errors.Is(invokeErr, pvm.ErrHostCall):
		// m*[n]i = i′ + 1 + skip(i′)
		machine.InstructionCounter = instance.NextInstruction()
		regs[pvm.A1] = hostCall
		code = HOST
	default:
		pageFault := &pvm.ErrPageFault{}
		if errors.As(invokeErr, &pageFault) {
			regs[pvm.A1] = uint64(pageFault.Address)
			code = FAULT
		} else {
			code = PANIC
		}
	}

	ctxPair.IntegratedPVMMap[pvmKey] = machine
	regs[pvm.A0] = code
	return gas, regs, mem, ctxPair, nil
}

// Expunge ΩX(ϱ, φ, µ, (m, e))
func Expunge(
	gas pvm.Gas,
	regs pvm.Registers,
	mem pvm.Memory,
	ctxPair pvm.RefineContextPair,
) (pvm.Gas, pvm.Registers, pvm.Memory, pvm.RefineContextPair, error) {
	if gas < ExpungeCost {
		return gas, regs, mem, ctxPair, pvm.ErrOutOfGas
	}
	gas -= ExpungeCost

	n := regs[pvm.A0]

	machine, exists := ctxPair.IntegratedPVMMap[n]
	if !exists {
		return gas, withCode(regs, WHO), mem, ctxPair, nil
	}

	// (φ′7, m′) = (m[n]i, m ∖ n)
	regs[pvm.A0] = machine.InstructionCounter
	delete(ctxPair.IntegratedPVMMap, n)

	return gas, regs, mem, ctxPair, nil
}

func findSmallestMissingKey(m map[uint64]pvm.IntegratedPVM) uint64 {
	for n := uint64(0); ; n++ {
		if _, exists := m[n]; !exists {
			return n
		}
	}
}

// writeable reports whether every page of [addr, addr+length) accepts writes
func writeable(mem pvm.Memory, addr, length uint64) bool {
	if length == 0 {
		return true
	}
	if addr < 1<<16 || addr+length > pvm.AddressSpaceSize || addr+length < addr {
		return false
	}
	for idx := addr / pvm.PageSize; idx <= (addr+length-1)/pvm.PageSize; idx++ {
		if mem.GetAccess(uint32(idx)) != pvm.ReadWrite {
			return false
		}
	}
	return true
}
