package host_call_test

import (
	"math"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/eigerco/pvmhost/internal/pvm"
	"github.com/eigerco/pvmhost/internal/pvm/host_call"
	"github.com/eigerco/pvmhost/internal/service"
	"github.com/eigerco/pvmhost/internal/state"
)

// allocated the bytes allocated while running fn
func allocated(fn func()) uint64 {
	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	fn()
	runtime.ReadMemStats(&after)
	return after.TotalAlloc - before.TotalAlloc
}

func TestOversizedLengthsPanicWithoutAllocating(t *testing.T) {
	// the range starts in accessible memory and runs far past it
	const huge = math.MaxUint32 - guestAddr

	calls := map[string]func(mem pvm.Memory) error{
		"write key": func(mem pvm.Memory) error {
			_, _, _, _, err := host_call.Write(initialGas, pvm.Registers{pvm.A0: guestAddr, pvm.A1: huge}, mem, richAccount())
			return err
		},
		"write value": func(mem pvm.Memory) error {
			regs := pvm.Registers{pvm.A0: guestAddr, pvm.A1: 1, pvm.A2: guestAddr, pvm.A3: huge}
			_, _, _, _, err := host_call.Write(initialGas, regs, mem, richAccount())
			return err
		},
		"read key": func(mem pvm.Memory) error {
			regs := pvm.Registers{pvm.A0: math.MaxUint64, pvm.A1: guestAddr, pvm.A2: huge}
			_, _, _, err := host_call.Read(initialGas, regs, mem, richAccount(), callerId, service.ServiceState{callerId: richAccount()})
			return err
		},
		"provide": func(mem pvm.Memory) error {
			ctxPair := newContextPair(service.ServiceState{callerId: richAccount()}, state.PrivilegedServices{})
			regs := pvm.Registers{pvm.R7: math.MaxUint64, pvm.R8: guestAddr, pvm.R9: huge}
			_, _, _, _, err := host_call.Provide(initialGas, regs, mem, ctxPair, callerId)
			return err
		},
		"machine": func(mem pvm.Memory) error {
			_, _, _, _, err := host_call.Machine(initialGas, pvm.Registers{pvm.A0: guestAddr, pvm.A1: huge}, mem, pvm.RefineContextPair{})
			return err
		},
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			mem := newGuestMemory(t)
			var err error
			bytes := allocated(func() {
				err = call(mem)
			})
			panicErr := &pvm.ErrPanic{}
			assert.ErrorAs(t, err, &panicErr)
			assert.Less(t, bytes, uint64(1<<20))
		})
	}
}

func TestMemoryCheck(t *testing.T) {
	mem := newGuestMemory(t)

	assert.NoError(t, mem.Check(guestAddr, 8*pvm.PageSize, pvm.ReadWrite))
	assert.NoError(t, mem.Check(0, 0, pvm.ReadOnly))

	var fault *pvm.ErrPageFault
	assert.ErrorAs(t, mem.Check(guestAddr, 8*pvm.PageSize+1, pvm.ReadOnly), &fault)
	assert.Equal(t, uint32(guestAddr+8*pvm.PageSize), fault.Address)

	assert.Error(t, mem.Check(math.MaxUint32, 2, pvm.ReadOnly))
	assert.ErrorIs(t, mem.Check(0x100, 1, pvm.ReadOnly), pvm.ErrForbiddenMemoryAccess)
}
