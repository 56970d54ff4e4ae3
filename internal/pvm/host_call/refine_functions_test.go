package host_call_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/pvmhost/internal/block"
	"github.com/eigerco/pvmhost/internal/constants"
	"github.com/eigerco/pvmhost/internal/crypto"
	"github.com/eigerco/pvmhost/internal/jamtime"
	"github.com/eigerco/pvmhost/internal/pvm"
	"github.com/eigerco/pvmhost/internal/pvm/host_call"
	"github.com/eigerco/pvmhost/internal/service"
	. "github.com/eigerco/pvmhost/internal/testutils" //nolint:staticcheck
	"github.com/eigerco/pvmhost/pkg/serialization/codec/jam"
)

const initialGas = 100

// guestPage the first page of the read-write scratch area every test memory gets
const guestPage = 32

const guestAddr = guestPage * pvm.PageSize

func newGuestMemory(t *testing.T) pvm.Memory {
	mem := pvm.NewMemory()
	require.NoError(t, mem.Zero(guestPage, 8))
	return mem
}

func writeAt(t *testing.T, mem pvm.Memory, addr uint64, data []byte) {
	require.NoError(t, mem.Write(uint32(addr), data))
}

func readAt(t *testing.T, mem pvm.Memory, addr uint64, n int) []byte {
	out := make([]byte, n)
	require.NoError(t, mem.Read(uint32(addr), out))
	return out
}

func TestHistoricalLookup(t *testing.T) {
	serviceId := block.ServiceId(1)
	preimage := []byte("historical_data")
	h := crypto.HashData(preimage)

	sa := service.NewServiceAccount()
	sa.PreimageLookup[h] = preimage
	sa.PreimageMeta[service.PreImageMetaKey{Hash: h, Length: service.PreimageLength(len(preimage))}] = service.PreimageHistoricalTimeslots{0, 10}
	serviceState := service.ServiceState{serviceId: sa}

	ho, bo := uint64(guestAddr), uint64(guestAddr+100)

	tests := []struct {
		name     string
		anchor   jamtime.Timeslot
		service  uint64
		offset   uint64
		length   uint64
		expected []byte
		code     uint64
	}{
		{name: "available", anchor: 9, service: uint64(serviceId), length: uint64(len(preimage)), expected: preimage, code: uint64(len(preimage))},
		{name: "own service", anchor: 9, service: 1<<64 - 1, offset: 11, length: 100, expected: []byte("data"), code: uint64(len(preimage))},
		{name: "forgotten at anchor", anchor: 10, service: uint64(serviceId), length: 10, code: uint64(host_call.NONE)},
		{name: "unknown service", anchor: 9, service: 2, length: 10, code: uint64(host_call.NONE)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mem := newGuestMemory(t)
			writeAt(t, mem, ho, h[:])

			regs := pvm.Registers{pvm.A0: tc.service, pvm.A1: ho, pvm.A2: bo, pvm.A3: tc.offset, pvm.A4: tc.length}
			gas, regs, mem, _, err := host_call.HistoricalLookup(initialGas, regs, mem, pvm.RefineContextPair{}, serviceId, serviceState, tc.anchor)
			require.NoError(t, err)

			assert.Equal(t, pvm.Gas(90), gas)
			assert.Equal(t, tc.code, regs[pvm.A0])
			if tc.expected != nil {
				assert.Equal(t, tc.expected, readAt(t, mem, bo, len(tc.expected)))
			}
		})
	}
}

func TestExport(t *testing.T) {
	mem := newGuestMemory(t)
	data := []byte("export_data")
	writeAt(t, mem, guestAddr, data)

	ctxPair := pvm.RefineContextPair{ExportLimit: 2, ExportOffset: 10}
	regs := pvm.Registers{pvm.A0: guestAddr, pvm.A1: uint64(len(data))}

	for i := range 2 {
		var err error
		_, regs, mem, ctxPair, err = host_call.Export(initialGas, regs, mem, ctxPair)
		require.NoError(t, err)
		assert.Equal(t, uint64(10+i), regs[pvm.A0])
		regs[pvm.A0] = guestAddr
	}

	require.Len(t, ctxPair.Segments, 2)
	assert.Len(t, ctxPair.Segments[0], constants.SegmentSize)
	assert.Equal(t, data, []byte(ctxPair.Segments[0][:len(data)]))
	assert.Equal(t, make([]byte, constants.SegmentSize-len(data)), []byte(ctxPair.Segments[0][len(data):]))

	t.Run("full past the declared exports", func(t *testing.T) {
		_, regs, _, ctxPair, err := host_call.Export(initialGas, regs, mem, ctxPair)
		require.NoError(t, err)
		assert.Equal(t, uint64(host_call.FULL), regs[pvm.A0])
		assert.Len(t, ctxPair.Segments, 2)
	})
	t.Run("unreadable data panics", func(t *testing.T) {
		regs := pvm.Registers{pvm.A0: 0x10000, pvm.A1: 1}
		_, _, _, _, err := host_call.Export(initialGas, regs, mem, pvm.RefineContextPair{ExportLimit: 1})
		panicErr := &pvm.ErrPanic{}
		assert.ErrorAs(t, err, &panicErr)
	})
}

// nestedMachine writes the code blob into guest memory and creates a machine from it
func nestedMachine(t *testing.T, mem pvm.Memory, ctxPair pvm.RefineContextPair, instructions ...Instruction) (uint64, pvm.RefineContextPair) {
	blob := CodeBlob(t, instructions...)
	codeAddr := uint64(guestAddr + 4*pvm.PageSize)
	writeAt(t, mem, codeAddr, blob)

	regs := pvm.Registers{pvm.A0: codeAddr, pvm.A1: uint64(len(blob)), pvm.A2: 0}
	gas, regs, _, ctxPair, err := host_call.Machine(initialGas, regs, mem, ctxPair)
	require.NoError(t, err)
	require.Equal(t, pvm.Gas(90), gas)
	return regs[pvm.A0], ctxPair
}

const argsAddr = guestAddr + 6*pvm.PageSize

// writeInvokeArgs E8(g) ⌢ E#8(w)
func writeInvokeArgs(t *testing.T, mem pvm.Memory, gas uint64, regs pvm.Registers) {
	out := jam.EncodeUint64(gas, 8)
	for _, r := range regs {
		out = append(out, jam.EncodeUint64(r, 8)...)
	}
	writeAt(t, mem, argsAddr, out)
}

func readInvokeArgs(t *testing.T, mem pvm.Memory) (pvm.Gas, pvm.Registers) {
	b := readAt(t, mem, argsAddr, 112)
	var regs pvm.Registers
	for i := range regs {
		regs[i] = jam.DecodeUint64(b[8+8*i : 16+8*i])
	}
	return pvm.Gas(jam.DecodeUint64(b[:8])), regs
}

func invoke(t *testing.T, mem pvm.Memory, ctxPair pvm.RefineContextPair, n uint64) (pvm.Registers, pvm.RefineContextPair) {
	gas, regs, _, ctxPair, err := host_call.Invoke(initialGas, pvm.Registers{pvm.A0: n, pvm.A1: argsAddr}, mem, ctxPair)
	require.NoError(t, err)
	require.Equal(t, pvm.Gas(90), gas)
	return regs, ctxPair
}

func TestMachine(t *testing.T) {
	t.Run("handles are the smallest unused index", func(t *testing.T) {
		mem := newGuestMemory(t)
		ctxPair := pvm.RefineContextPair{}

		n0, ctxPair := nestedMachine(t, mem, ctxPair, Halt())
		n1, ctxPair := nestedMachine(t, mem, ctxPair, Halt())
		assert.Equal(t, uint64(0), n0)
		assert.Equal(t, uint64(1), n1)

		_, _, _, ctxPair, err := host_call.Expunge(initialGas, pvm.Registers{pvm.A0: n0}, mem, ctxPair)
		require.NoError(t, err)

		n2, _ := nestedMachine(t, mem, ctxPair, Halt())
		assert.Equal(t, uint64(0), n2)
	})
	t.Run("code that does not deblob", func(t *testing.T) {
		mem := newGuestMemory(t)
		writeAt(t, mem, guestAddr, []byte{0xff, 0xff, 0xff})
		regs := pvm.Registers{pvm.A0: guestAddr, pvm.A1: 3}
		_, regs, _, ctxPair, err := host_call.Machine(initialGas, regs, mem, pvm.RefineContextPair{})
		require.NoError(t, err)
		assert.Equal(t, uint64(host_call.HUH), regs[pvm.A0])
		assert.Empty(t, ctxPair.IntegratedPVMMap)
	})
	t.Run("unreadable code panics", func(t *testing.T) {
		regs := pvm.Registers{pvm.A0: guestAddr, pvm.A1: 3}
		_, _, _, _, err := host_call.Machine(initialGas, regs, pvm.NewMemory(), pvm.RefineContextPair{})
		panicErr := &pvm.ErrPanic{}
		assert.ErrorAs(t, err, &panicErr)
	})
}

func TestInvokeGasBudget(t *testing.T) {
	program := []Instruction{
		LoadImm(pvm.R7, 1),
		AddImm64(pvm.R7, pvm.R7, 2),
		Halt(),
	}

	mem := newGuestMemory(t)
	n, ctxPair := nestedMachine(t, mem, pvm.RefineContextPair{}, program...)

	const budget = 10
	writeInvokeArgs(t, mem, budget, pvm.Registers{pvm.R0: pvm.AddressReturnToHost})
	regs, _ := invoke(t, mem, ctxPair, n)
	assert.Equal(t, uint64(host_call.HALT), regs[pvm.A0])

	gas, childRegs := readInvokeArgs(t, mem)
	assert.Equal(t, pvm.Gas(budget-len(program)), gas)
	assert.Equal(t, uint64(3), childRegs[pvm.R7])
}

func TestInvokeOutOfGas(t *testing.T) {
	mem := newGuestMemory(t)
	n, ctxPair := nestedMachine(t, mem, pvm.RefineContextPair{}, LoadImm(pvm.R7, 1), Halt())

	writeInvokeArgs(t, mem, 0, pvm.Registers{pvm.R0: pvm.AddressReturnToHost})
	regs, ctxPair := invoke(t, mem, ctxPair, n)
	assert.Equal(t, uint64(host_call.OOG), regs[pvm.A0])

	gas, childRegs := readInvokeArgs(t, mem)
	assert.Equal(t, pvm.Gas(0), gas)
	assert.Equal(t, uint64(0), childRegs[pvm.R7])
	assert.Equal(t, uint64(0), ctxPair.IntegratedPVMMap[n].InstructionCounter)
}

func TestInvokeHostCallResumes(t *testing.T) {
	mem := newGuestMemory(t)
	n, ctxPair := nestedMachine(t, mem, pvm.RefineContextPair{}, Ecalli(5), LoadImm(pvm.R7, 7), Halt())

	writeInvokeArgs(t, mem, 10, pvm.Registers{pvm.R0: pvm.AddressReturnToHost})
	regs, ctxPair := invoke(t, mem, ctxPair, n)
	assert.Equal(t, uint64(host_call.HOST), regs[pvm.A0])
	assert.Equal(t, uint64(5), regs[pvm.A1])
	// the counter moved past the two byte ecalli
	assert.Equal(t, uint64(2), ctxPair.IntegratedPVMMap[n].InstructionCounter)

	gas, _ := readInvokeArgs(t, mem)
	assert.Equal(t, pvm.Gas(9), gas)

	// resume with the registers and gas written back by the first invoke
	regs, ctxPair = invoke(t, mem, ctxPair, n)
	assert.Equal(t, uint64(host_call.HALT), regs[pvm.A0])
	gas, childRegs := readInvokeArgs(t, mem)
	assert.Equal(t, pvm.Gas(7), gas)
	assert.Equal(t, uint64(7), childRegs[pvm.R7])

	_, regs, _, ctxPair, err := host_call.Expunge(initialGas, pvm.Registers{pvm.A0: n}, mem, ctxPair)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), regs[pvm.A0])
	assert.NotContains(t, ctxPair.IntegratedPVMMap, n)
}

func TestNestedMemory(t *testing.T) {
	const childPage = 32
	const childAddr = childPage * pvm.PageSize

	mem := newGuestMemory(t)
	n, ctxPair := nestedMachine(t, mem, pvm.RefineContextPair{},
		LoadIndU64(pvm.R7, pvm.R8, 0),
		AddImm64(pvm.R7, pvm.R7, 1),
		StoreIndU64(pvm.R7, pvm.R8, 8),
		Halt(),
	)
	childRegs := pvm.Registers{pvm.R0: pvm.AddressReturnToHost, pvm.R8: childAddr}

	t.Run("page fault before the page is zeroed", func(t *testing.T) {
		writeInvokeArgs(t, mem, 100, childRegs)
		regs, _ := invoke(t, mem, ctxPair, n)
		assert.Equal(t, uint64(host_call.FAULT), regs[pvm.A0])
		assert.Equal(t, uint64(childAddr), regs[pvm.A1])
	})

	var err error
	var regs pvm.Registers
	_, regs, _, ctxPair, err = host_call.Zero(initialGas, pvm.Registers{pvm.A0: n, pvm.A1: childPage, pvm.A2: 1}, mem, ctxPair)
	require.NoError(t, err)
	require.Equal(t, uint64(host_call.OK), regs[pvm.A0])

	// poke(n, outer_src, inner_dst, len)
	writeAt(t, mem, guestAddr, jam.EncodeUint64(41, 8))
	_, regs, _, ctxPair, err = host_call.Poke(initialGas, pvm.Registers{pvm.A0: n, pvm.A1: guestAddr, pvm.A2: childAddr, pvm.A3: 8}, mem, ctxPair)
	require.NoError(t, err)
	require.Equal(t, uint64(host_call.OK), regs[pvm.A0])

	// the machine restarts from its counter, which the fault left on the first load
	writeInvokeArgs(t, mem, 100, childRegs)
	regs, ctxPair = invoke(t, mem, ctxPair, n)
	require.Equal(t, uint64(host_call.HALT), regs[pvm.A0])

	// peek(n, outer_dst, inner_src, len)
	_, regs, mem, ctxPair, err = host_call.Peek(initialGas, pvm.Registers{pvm.A0: n, pvm.A1: guestAddr + 64, pvm.A2: childAddr + 8, pvm.A3: 8}, mem, ctxPair)
	require.NoError(t, err)
	require.Equal(t, uint64(host_call.OK), regs[pvm.A0])
	assert.Equal(t, uint64(42), jam.DecodeUint64(readAt(t, mem, guestAddr+64, 8)))

	t.Run("peek outside the inner memory", func(t *testing.T) {
		_, regs, _, _, err := host_call.Peek(initialGas, pvm.Registers{pvm.A0: n, pvm.A1: guestAddr, pvm.A2: childAddr + pvm.PageSize, pvm.A3: 8}, mem, ctxPair)
		require.NoError(t, err)
		assert.Equal(t, uint64(host_call.OOB), regs[pvm.A0])
	})
	t.Run("peek into unwriteable outer memory panics", func(t *testing.T) {
		_, _, _, _, err := host_call.Peek(initialGas, pvm.Registers{pvm.A0: n, pvm.A1: 0x10000, pvm.A2: childAddr, pvm.A3: 8}, mem, ctxPair)
		panicErr := &pvm.ErrPanic{}
		assert.ErrorAs(t, err, &panicErr)
	})
	t.Run("unknown handle", func(t *testing.T) {
		_, regs, _, _, err := host_call.Poke(initialGas, pvm.Registers{pvm.A0: n + 1, pvm.A1: guestAddr, pvm.A2: childAddr, pvm.A3: 8}, mem, ctxPair)
		require.NoError(t, err)
		assert.Equal(t, uint64(host_call.WHO), regs[pvm.A0])
	})
	t.Run("zero is idempotent and clears", func(t *testing.T) {
		_, regs, _, ctxPair, err := host_call.Zero(initialGas, pvm.Registers{pvm.A0: n, pvm.A1: childPage, pvm.A2: 1}, mem, ctxPair)
		require.NoError(t, err)
		assert.Equal(t, uint64(host_call.OK), regs[pvm.A0])
		out := make([]byte, 16)
		require.NoError(t, ctxPair.IntegratedPVMMap[n].Ram.Read(childAddr, out))
		assert.Equal(t, make([]byte, 16), out)
	})
	t.Run("zero below the first addressable page", func(t *testing.T) {
		_, regs, _, _, err := host_call.Zero(initialGas, pvm.Registers{pvm.A0: n, pvm.A1: 15, pvm.A2: 1}, mem, ctxPair)
		require.NoError(t, err)
		assert.Equal(t, uint64(host_call.HUH), regs[pvm.A0])
	})
	t.Run("zero past the address space", func(t *testing.T) {
		_, regs, _, _, err := host_call.Zero(initialGas, pvm.Registers{pvm.A0: n, pvm.A1: pvm.MaxPageIndex - 1, pvm.A2: 2}, mem, ctxPair)
		require.NoError(t, err)
		assert.Equal(t, uint64(host_call.HUH), regs[pvm.A0])
	})
	t.Run("last addressable page", func(t *testing.T) {
		last := uint64(pvm.MaxPageIndex - 2)
		_, regs, _, ctxPair, err := host_call.Zero(initialGas, pvm.Registers{pvm.A0: n, pvm.A1: last, pvm.A2: 1}, mem, ctxPair)
		require.NoError(t, err)
		assert.Equal(t, uint64(host_call.OK), regs[pvm.A0])
		assert.Equal(t, pvm.ReadWrite, ctxPair.IntegratedPVMMap[n].Ram.GetAccess(uint32(last)))

		_, regs, _, ctxPair, err = host_call.Void(initialGas, pvm.Registers{pvm.A0: n, pvm.A1: last, pvm.A2: 1}, mem, ctxPair)
		require.NoError(t, err)
		assert.Equal(t, uint64(host_call.OK), regs[pvm.A0])
		assert.Equal(t, pvm.Inaccessible, ctxPair.IntegratedPVMMap[n].Ram.GetAccess(uint32(last)))
	})
	t.Run("range ending on the page count boundary", func(t *testing.T) {
		boundary := uint64(pvm.MaxPageIndex - 1)
		_, regs, _, ctxPair, err := host_call.Zero(initialGas, pvm.Registers{pvm.A0: n, pvm.A1: boundary, pvm.A2: 1}, mem, ctxPair)
		require.NoError(t, err)
		assert.Equal(t, uint64(host_call.HUH), regs[pvm.A0])
		assert.Equal(t, pvm.Inaccessible, ctxPair.IntegratedPVMMap[n].Ram.GetAccess(uint32(boundary)))

		_, regs, _, _, err = host_call.Void(initialGas, pvm.Registers{pvm.A0: n, pvm.A1: boundary, pvm.A2: 1}, mem, ctxPair)
		require.NoError(t, err)
		assert.Equal(t, uint64(host_call.HUH), regs[pvm.A0])
	})
	t.Run("void of a range with an unallocated page", func(t *testing.T) {
		_, regs, _, ctxPair, err := host_call.Void(initialGas, pvm.Registers{pvm.A0: n, pvm.A1: childPage, pvm.A2: 2}, mem, ctxPair)
		require.NoError(t, err)
		assert.Equal(t, uint64(host_call.HUH), regs[pvm.A0])
		assert.Equal(t, pvm.ReadWrite, ctxPair.IntegratedPVMMap[n].Ram.GetAccess(childPage))
	})
	t.Run("void deallocates", func(t *testing.T) {
		_, regs, _, ctxPair, err := host_call.Void(initialGas, pvm.Registers{pvm.A0: n, pvm.A1: childPage, pvm.A2: 1}, mem, ctxPair)
		require.NoError(t, err)
		assert.Equal(t, uint64(host_call.OK), regs[pvm.A0])
		assert.Equal(t, pvm.Inaccessible, ctxPair.IntegratedPVMMap[n].Ram.GetAccess(childPage))
	})
}

func TestNestedMachineUnknownHandle(t *testing.T) {
	mem := newGuestMemory(t)
	calls := map[string]func(pvm.Gas, pvm.Registers, pvm.Memory, pvm.RefineContextPair) (pvm.Gas, pvm.Registers, pvm.Memory, pvm.RefineContextPair, error){
		"peek":    host_call.Peek,
		"poke":    host_call.Poke,
		"zero":    host_call.Zero,
		"void":    host_call.Void,
		"invoke":  host_call.Invoke,
		"expunge": host_call.Expunge,
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			regs := pvm.Registers{pvm.A0: 3, pvm.A1: argsAddr, pvm.A2: guestPage, pvm.A3: 1}
			gas, regs, _, _, err := call(initialGas, regs, mem, pvm.RefineContextPair{})
			require.NoError(t, err)
			assert.Equal(t, pvm.Gas(90), gas)
			assert.Equal(t, uint64(host_call.WHO), regs[pvm.A0])
		})
	}
}

func TestRefineCallsOutOfGas(t *testing.T) {
	_, _, _, _, err := host_call.Machine(5, pvm.Registers{}, pvm.NewMemory(), pvm.RefineContextPair{})
	assert.ErrorIs(t, err, pvm.ErrOutOfGas)
	_, _, _, _, err = host_call.Invoke(9, pvm.Registers{}, pvm.NewMemory(), pvm.RefineContextPair{})
	assert.ErrorIs(t, err, pvm.ErrOutOfGas)
}
