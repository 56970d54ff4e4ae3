package invocations

import (
	"errors"
	"math"

	"github.com/eigerco/pvmhost/internal/pvm"
	"github.com/eigerco/pvmhost/pkg/guest"
)

var ErrHeapExhausted = errors.New("native guest heap exhausted")

// nativeHost runs a Go guest against the same host call functions a program blob
// sees. Guest memory starts at the read-write base and grows page by page.
type nativeHost[X any] struct {
	mem      pvm.Memory
	gas      pvm.Gas
	x        X
	hostCall pvm.HostCall[X]
	heapEnd  uint32
}

// abort unwinds the guest when a host call ends the invocation
type abort struct {
	err error
}

func (h *nativeHost[X]) Ecalli(index uint64, regs *guest.Registers) {
	var err error
	r := pvm.Registers(*regs)
	h.gas, r, h.mem, h.x, err = h.hostCall(index, h.gas, r, h.mem, h.x)
	*regs = guest.Registers(r)
	if err != nil {
		panic(abort{err: err})
	}
}

func (h *nativeHost[X]) ReadMemory(addr uint32, data []byte) error {
	return h.mem.Read(addr, data)
}

func (h *nativeHost[X]) WriteMemory(addr uint32, data []byte) error {
	return h.mem.Write(addr, data)
}

func (h *nativeHost[X]) Sbrk(size uint32) (uint32, error) {
	addr := h.heapEnd
	end := uint64(addr) + uint64(size)
	if end > pvm.StackAddressHigh {
		return 0, ErrHeapExhausted
	}
	// pages up to the rounded heap end are already backed
	first := (uint64(addr) + pvm.PageSize - 1) / pvm.PageSize
	last := (end + pvm.PageSize - 1) / pvm.PageSize
	if last > first {
		if err := h.mem.Zero(uint32(first), uint32(last-first)); err != nil {
			return 0, err
		}
	}
	h.heapEnd = uint32(end)
	return addr, nil
}

func (h *nativeHost[X]) run(entry guest.Entry, args []byte) (result []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			if a, ok := r.(abort); ok {
				err = a.err
				return
			}
			err = pvm.ErrPanicf("guest panic: %v", r)
		}
	}()
	return entry(guest.NewEnv(h), args), nil
}

// invokeNative mirrors pvm.InvokeWholeProgram for a native guest. Only host calls
// are charged, the guest's own work is free.
func invokeNative[X any](entry guest.Entry, initialGas pvm.UGas, args []byte, hostFunc pvm.HostCall[X], x X) (pvm.UGas, []byte, X, error) {
	if initialGas > math.MaxInt64 {
		initialGas = math.MaxInt64
	}
	h := &nativeHost[X]{
		mem:      pvm.NewMemory(),
		gas:      pvm.Gas(initialGas),
		x:        x,
		hostCall: hostFunc,
		heapEnd:  uint32(pvm.RWAddressBase),
	}
	result, err := h.run(entry, args)
	// u = ϱ − max(ϱ′, 0)
	gasUsed := initialGas - pvm.UGas(max(h.gas, 0))
	if err != nil {
		return gasUsed, []byte{}, h.x, err
	}
	return gasUsed, result, h.x, nil
}

// Code the code an invocation runs, a program container or a native guest
type Code struct {
	Container []byte
	Native    guest.Entry
}

// invoke runs the named entry point of the code
func invoke[X any](code Code, entryPoint string, gas pvm.UGas, args []byte, hostFunc pvm.HostCall[X], x X) (pvm.UGas, []byte, X, error) {
	if code.Native != nil {
		return invokeNative(code.Native, gas, args, hostFunc, x)
	}
	container, _, err := pvm.ParseContainer(code.Container)
	if err != nil {
		return 0, []byte{}, x, pvm.ErrPanicf("%v", err)
	}
	pc, err := container.EntryPoint(entryPoint)
	if err != nil {
		return 0, []byte{}, x, pvm.ErrPanicf("%v", err)
	}
	return pvm.InvokeWholeProgram(container.Blob, uint64(pc), gas, args, hostFunc, x)
}

// failed reports whether err is an irregular termination of the guest
func failed(err error) bool {
	errPanic := &pvm.ErrPanic{}
	return errors.Is(err, pvm.ErrOutOfGas) || errors.As(err, &errPanic)
}

