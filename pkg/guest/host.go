package guest

import (
	"fmt"
	"math"
)

// Registers the guest register file, arguments go in φ7 to φ12
type Registers [13]uint64

const (
	a0 = 7 + iota
	a1
	a2
	a3
	a4
	a5
)

// Host numbering of the host calls, stable across protocol versions
const (
	gasCall = iota
	lookupCall
	readCall
	writeCall
	infoCall
	blessCall
	assignCall
	designateCall
	checkpointCall
	newCall
	upgradeCall
	transferCall
	ejectCall
	queryCall
	solicitCall
	forgetCall
	yieldCall
	historicalLookupCall
	fetchCall
	exportCall
	machineCall
	peekCall
	pokeCall
	zeroCall
	voidCall
	invokeCall
	expungeCall
	provideCall

	logCall = 100
)

// Host the raw boundary a guest runs against. Ecalli suspends the guest for the
// numbered host call, the host reads the arguments from and writes the results to regs.
// Memory addresses are in the guest address space.
type Host interface {
	Ecalli(index uint64, regs *Registers)
	ReadMemory(addr uint32, data []byte) error
	WriteMemory(addr uint32, data []byte) error
	// Sbrk grows the guest heap by size bytes and returns the address of the new region
	Sbrk(size uint32) (uint32, error)
}

// Env the environment handed to an entry point. The wrappers stage their arguments
// in a scratch region of guest memory that is reused across calls.
type Env struct {
	host        Host
	scratch     uint32
	scratchSize uint32
}

func NewEnv(host Host) *Env {
	return &Env{host: host}
}

// buffer returns the address of a scratch region of at least size bytes
func (e *Env) buffer(size uint64) uint32 {
	if size > math.MaxUint32 {
		panic(fmt.Sprintf("scratch region of %d bytes exceeds the address space", size))
	}
	if uint32(size) <= e.scratchSize {
		return e.scratch
	}
	addr, err := e.host.Sbrk(uint32(size))
	if err != nil {
		panic(fmt.Sprintf("growing scratch region to %d bytes: %v", size, err))
	}
	e.scratch, e.scratchSize = addr, uint32(size)
	return addr
}

func (e *Env) store(addr uint32, data []byte) {
	if err := e.host.WriteMemory(addr, data); err != nil {
		panic(fmt.Sprintf("writing %d bytes at %#x: %v", len(data), addr, err))
	}
}

func (e *Env) load(addr uint32, length uint64) []byte {
	data := make([]byte, length)
	if err := e.host.ReadMemory(addr, data); err != nil {
		panic(fmt.Sprintf("reading %d bytes at %#x: %v", length, addr, err))
	}
	return data
}

// call issues the host call with args in φ7 onwards and returns φ7 and φ8
func (e *Env) call(index uint64, args ...uint64) (ReturnCode, uint64) {
	var regs Registers
	copy(regs[a0:], args)
	e.host.Ecalli(index, &regs)
	return ReturnCode(regs[a0]), regs[a1]
}

// staged lays out the inputs back to back in scratch memory followed by out bytes
// of output space, it returns the address of each input and of the output.
func (e *Env) staged(out uint64, inputs ...[]byte) ([]uint32, uint32) {
	total := out
	for _, in := range inputs {
		total += uint64(len(in))
	}
	addr := e.buffer(total)
	addrs := make([]uint32, len(inputs))
	for i, in := range inputs {
		addrs[i] = addr
		e.store(addr, in)
		addr += uint32(len(in))
	}
	return addrs, addr
}

// fetchVariable reads a value of unknown length, the first call reports the length
// and the second copies it out
func (e *Env) fetchVariable(inputs [][]byte, do func(in []uint32, out uint32, length uint64) ReturnCode) ([]byte, bool) {
	in, out := e.staged(0, inputs...)
	n, ok := do(in, out, 0).IntoOption()
	if !ok {
		return nil, false
	}
	in, out = e.staged(n, inputs...)
	if _, ok := do(in, out, n).IntoOption(); !ok {
		return nil, false
	}
	return e.load(out, n), true
}
