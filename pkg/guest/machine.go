package guest

import (
	"fmt"

	"github.com/eigerco/pvmhost/pkg/serialization/codec/jam"
)

// Invoke outcome codes reported in φ7 by invoke
const (
	haltCode = iota
	panicCode
	faultCode
	hostCode
	outOfGasCode
)

type OutcomeKind uint8

const (
	Halt OutcomeKind = iota
	Panic
	Fault
	HostCall
	OutOfGas
)

func (k OutcomeKind) String() string {
	switch k {
	case Halt:
		return "halt"
	case Panic:
		return "panic"
	case Fault:
		return "fault"
	case HostCall:
		return "host call"
	case OutOfGas:
		return "out of gas"
	}
	return fmt.Sprintf("outcome(%d)", uint8(k))
}

// InvokeOutcome why a nested machine stopped. Address is set for a fault, Index for a host call.
type InvokeOutcome struct {
	Kind    OutcomeKind
	Address uint32
	Index   uint64
}

// InvokeResult the machine state after an invocation returned
type InvokeResult struct {
	Outcome InvokeOutcome
	Gas     int64
	Regs    Registers
}

// invokeArgsSize E8(g) ⌢ E#8(w)
const invokeArgsSize = 8 + 13*8

// Machine a handle to a nested machine owned by the refine invocation
type Machine struct {
	env    *Env
	handle uint64
}

// Machine creates a nested machine running code from instruction pc, memory starts empty
func (e *Env) Machine(code []byte, pc uint64) (Machine, error) {
	in, _ := e.staged(0, code)
	r, _ := e.call(machineCall, uint64(in[0]), uint64(len(code)), pc)
	handle, err := r.IntoResult()
	if err != nil {
		return Machine{}, err
	}
	return Machine{env: e, handle: handle}, nil
}

func (m Machine) Handle() uint64 { return m.handle }

// Peek copies len(dst) bytes of the machine memory at addr
func (m Machine) Peek(dst []byte, addr uint32) error {
	_, out := m.env.staged(uint64(len(dst)))
	r, _ := m.env.call(peekCall, m.handle, uint64(out), uint64(addr), uint64(len(dst)))
	if err := r.intoUnit(); err != nil {
		return err
	}
	copy(dst, m.env.load(out, uint64(len(dst))))
	return nil
}

// Poke copies data into the machine memory at addr
func (m Machine) Poke(addr uint32, data []byte) error {
	in, _ := m.env.staged(0, data)
	r, _ := m.env.call(pokeCall, m.handle, uint64(in[0]), uint64(addr), uint64(len(data)))
	return r.intoUnit()
}

// Zero makes count pages from page readable, writeable and zeroed
func (m Machine) Zero(page, count uint32) error {
	r, _ := m.env.call(zeroCall, m.handle, uint64(page), uint64(count))
	return r.intoUnit()
}

// Void makes count pages from page inaccessible
func (m Machine) Void(page, count uint32) error {
	r, _ := m.env.call(voidCall, m.handle, uint64(page), uint64(count))
	return r.intoUnit()
}

// Invoke runs the machine until it stops with the given gas and registers
func (m Machine) Invoke(gas int64, regs Registers) (InvokeResult, error) {
	args := make([]byte, 0, invokeArgsSize)
	args = append(args, jam.EncodeUint64(uint64(gas), 8)...)
	for _, r := range regs {
		args = append(args, jam.EncodeUint64(r, 8)...)
	}
	in, _ := m.env.staged(0, args)
	r, r8 := m.env.call(invokeCall, m.handle, uint64(in[0]))
	code, err := r.IntoResult()
	if err != nil {
		return InvokeResult{}, err
	}

	out := m.env.load(in[0], invokeArgsSize)
	result := InvokeResult{Gas: int64(jam.DecodeUint64(out[:8]))}
	for i := range result.Regs {
		result.Regs[i] = jam.DecodeUint64(out[8+8*i : 16+8*i])
	}
	switch code {
	case haltCode:
		result.Outcome = InvokeOutcome{Kind: Halt}
	case panicCode:
		result.Outcome = InvokeOutcome{Kind: Panic}
	case faultCode:
		result.Outcome = InvokeOutcome{Kind: Fault, Address: narrow(r8)}
	case hostCode:
		result.Outcome = InvokeOutcome{Kind: HostCall, Index: r8}
	case outOfGasCode:
		result.Outcome = InvokeOutcome{Kind: OutOfGas}
	default:
		panic(fmt.Sprintf("unknown invoke outcome %d", code))
	}
	return result, nil
}

// Expunge destroys the machine and returns its final instruction counter
func (m Machine) Expunge() (uint64, error) {
	r, _ := m.env.call(expungeCall, m.handle)
	return r.IntoResult()
}

// PeekValue reads a T from the machine memory. T must have a fixed size encoding,
// its size is taken from the encoding of the zero value.
func PeekValue[T any](m Machine, addr uint32) (T, error) {
	var v T
	zero, err := jam.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("encoding %T: %v", v, err))
	}
	b := make([]byte, len(zero))
	if err := m.Peek(b, addr); err != nil {
		return v, err
	}
	if err := jam.Unmarshal(b, &v); err != nil {
		panic(fmt.Sprintf("decoding %T: %v", v, err))
	}
	return v, nil
}

// PokeValue writes the fixed size encoding of v into the machine memory
func PokeValue[T any](m Machine, addr uint32, v T) error {
	b, err := jam.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("encoding %T: %v", v, err))
	}
	return m.Poke(addr, b)
}
