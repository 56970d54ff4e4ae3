package pvm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/pvmhost/internal/pvm"
	. "github.com/eigerco/pvmhost/internal/testutils" //nolint:staticcheck
)

func run(t *testing.T, gas pvm.Gas, regs pvm.Registers, mem pvm.Memory, instructions ...Instruction) (*pvm.Instance, uint64, error) {
	instance, err := pvm.Instantiate(CodeBlob(t, instructions...), 0, gas, regs, mem)
	require.NoError(t, err)
	hostCall, err := pvm.InvokeBasic(instance)
	return instance, hostCall, err
}

func TestGasAccounting(t *testing.T) {
	regs := pvm.Registers{pvm.R0: pvm.AddressReturnToHost}
	program := []Instruction{
		LoadImm(pvm.R7, 40),
		AddImm64(pvm.R7, pvm.R7, 2),
		Fallthrough(),
		Halt(),
	}

	instance, _, err := run(t, 100, regs, pvm.NewMemory(), program...)
	require.ErrorIs(t, err, pvm.ErrHalt)

	_, gas, regsOut, _ := instance.Results()
	assert.Equal(t, pvm.Gas(100-len(program)), gas)
	assert.Equal(t, uint64(42), regsOut[pvm.R7])
}

func TestOutOfGas(t *testing.T) {
	t.Run("zero gas fails before the first instruction", func(t *testing.T) {
		instance, _, err := run(t, 0, pvm.Registers{}, pvm.NewMemory(), LoadImm(pvm.R7, 1), Halt())
		require.ErrorIs(t, err, pvm.ErrOutOfGas)

		pc, gas, regs, _ := instance.Results()
		assert.Equal(t, uint64(0), pc)
		assert.Equal(t, pvm.Gas(0), gas)
		assert.Equal(t, uint64(0), regs[pvm.R7])
	})
	t.Run("runs out part way", func(t *testing.T) {
		instance, _, err := run(t, 2, pvm.Registers{}, pvm.NewMemory(), LoadImm(pvm.R7, 1), LoadImm(pvm.R8, 2), LoadImm(pvm.R9, 3))
		require.ErrorIs(t, err, pvm.ErrOutOfGas)

		_, gas, regs, _ := instance.Results()
		assert.Equal(t, pvm.Gas(0), gas)
		assert.Equal(t, uint64(2), regs[pvm.R8])
		assert.Equal(t, uint64(0), regs[pvm.R9])
	})
}

func TestExitReasons(t *testing.T) {
	t.Run("trap panics", func(t *testing.T) {
		_, _, err := run(t, 10, pvm.Registers{}, pvm.NewMemory(), Trap())
		panicErr := &pvm.ErrPanic{}
		assert.ErrorAs(t, err, &panicErr)
	})
	t.Run("running off the end of the code panics", func(t *testing.T) {
		_, _, err := run(t, 10, pvm.Registers{}, pvm.NewMemory(), LoadImm(pvm.R7, 1))
		panicErr := &pvm.ErrPanic{}
		assert.ErrorAs(t, err, &panicErr)
	})
	t.Run("host call leaves the counter on the ecalli", func(t *testing.T) {
		instance, hostCall, err := run(t, 10, pvm.Registers{}, pvm.NewMemory(), Fallthrough(), Ecalli(27), Halt())
		require.ErrorIs(t, err, pvm.ErrHostCall)
		assert.Equal(t, uint64(27), hostCall)

		pc, _, _, _ := instance.Results()
		assert.Equal(t, uint64(1), pc)
		assert.Equal(t, uint64(3), instance.NextInstruction())
	})
	t.Run("page fault reports the page", func(t *testing.T) {
		regs := pvm.Registers{pvm.R8: 0x20000}
		_, _, err := run(t, 10, regs, pvm.NewMemory(), StoreIndU64(pvm.R7, pvm.R8, 0))
		pageFault := &pvm.ErrPageFault{}
		require.ErrorAs(t, err, &pageFault)
		assert.Equal(t, uint32(0x20000), pageFault.Address)
	})
	t.Run("invalid dynamic jump panics", func(t *testing.T) {
		_, _, err := run(t, 10, pvm.Registers{pvm.R0: 3}, pvm.NewMemory(), Halt())
		panicErr := &pvm.ErrPanic{}
		assert.ErrorAs(t, err, &panicErr)
	})
}

func TestLoopWithBranch(t *testing.T) {
	// r7 counts down from 3, r8 accumulates 5 per iteration
	program := []Instruction{
		LoadImm(pvm.R7, 3),
		Fallthrough(),
		AddImm64(pvm.R8, pvm.R8, 5),
		AddImm64(pvm.R7, pvm.R7, ^uint64(0)),
		BranchNeImm(pvm.R7, 0, -6),
		Halt(),
	}
	instance, _, err := run(t, 100, pvm.Registers{pvm.R0: pvm.AddressReturnToHost}, pvm.NewMemory(), program...)
	require.ErrorIs(t, err, pvm.ErrHalt)

	_, gas, regs, _ := instance.Results()
	assert.Equal(t, uint64(15), regs[pvm.R8])
	// load_imm, fallthrough, 3 × (add, add, branch), halt
	assert.Equal(t, pvm.Gas(100-2-9-1), gas)
}

func TestLoadStoreRoundTrip(t *testing.T) {
	mem := pvm.NewMemory()
	require.NoError(t, mem.Zero(32, 1))
	regs := pvm.Registers{pvm.R0: pvm.AddressReturnToHost, pvm.R8: 32 * pvm.PageSize}

	instance, _, err := run(t, 100, regs, mem,
		LoadImm64(pvm.R7, 0x0102030405060708),
		StoreIndU64(pvm.R7, pvm.R8, 8),
		LoadIndU64(pvm.R9, pvm.R8, 8),
		Halt(),
	)
	require.ErrorIs(t, err, pvm.ErrHalt)
	_, _, regsOut, memOut := instance.Results()
	assert.Equal(t, uint64(0x0102030405060708), regsOut[pvm.R9])

	b := make([]byte, 8)
	require.NoError(t, memOut.Read(32*pvm.PageSize+8, b))
	assert.Equal(t, []byte{8, 7, 6, 5, 4, 3, 2, 1}, b)
}

func TestInvokeWholeProgram(t *testing.T) {
	// copy the two argument bytes into rw data and return them
	rwAddress := uint64(2*pvm.MemoryZoneSize + pvm.MemoryZoneSize)
	blob := ProgramBlob(t, []byte{0xAA}, make([]byte, 8),
		LoadIndU64(pvm.R9, pvm.R7, 0),
		LoadImm(pvm.R10, rwAddress),
		StoreIndU64(pvm.R9, pvm.R10, 0),
		LoadImm(pvm.R7, rwAddress),
		Ecalli(0),
		Halt(),
	)

	hostCalls := 0
	host := func(hostCall uint64, gas pvm.Gas, regs pvm.Registers, mem pvm.Memory, x int) (pvm.Gas, pvm.Registers, pvm.Memory, int, error) {
		hostCalls++
		return gas - 10, regs, mem, x + int(hostCall) + 1, nil
	}
	args := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	gasUsed, result, x, err := pvm.InvokeWholeProgram(blob, 0, 1000, args, host, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, hostCalls)
	assert.Equal(t, 1, x)
	assert.Equal(t, pvm.UGas(6+10), gasUsed)
	assert.Equal(t, args, result)
}

func TestInvokeWholeProgramMalformedBlob(t *testing.T) {
	_, _, _, err := pvm.InvokeWholeProgram([]byte{1, 2, 3}, 0, 1000, nil, func(uint64, pvm.Gas, pvm.Registers, pvm.Memory, struct{}) (pvm.Gas, pvm.Registers, pvm.Memory, struct{}, error) {
		t.Fatal("host call reached")
		return 0, pvm.Registers{}, pvm.Memory{}, struct{}{}, nil
	}, struct{}{})
	panicErr := &pvm.ErrPanic{}
	assert.ErrorAs(t, err, &panicErr)
}
