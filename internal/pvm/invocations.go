package pvm

import (
	"errors"
	"math"
)

// HostCall the generic Ω function definition Ω⟨X⟩ ≡ (N, NG, ⟦NR⟧13, M, X) → ({ ▸, ∎, ☇, ∞ }, NG, ⟦NR⟧13, M, X) (eq. A.36 v0.7.2)
type HostCall[X any] func(hostCall uint64, gasCounter Gas, regs Registers, mem Memory, x X) (Gas, Registers, Memory, X, error)

// InvokeWholeProgram the marshalling whole-program pvm machine state-transition function: (ΨM eq. A.44 v0.7.2)
// returns gas used and:
// if error is nil (meaning halt or ∎) should return a result as bytes otherwise
// error as one of:
// - ErrOutOfGas (∞)
// - ErrPanic (☇)
func InvokeWholeProgram[X any](p []byte, entryPoint uint64, initialGas UGas, args []byte, hostFunc HostCall[X], x X) (UGas, []byte, X, error) {
	program, err := ParseBlob(p)
	if err != nil {
		return 0, nil, x, ErrPanicf("%v", err)
	}
	ram, regs, err := InitializeStandardProgram(program, args)
	if err != nil {
		return 0, nil, x, ErrPanicf("%v", err)
	}
	if initialGas > math.MaxInt64 {
		initialGas = math.MaxInt64
	}
	i, err := Instantiate(program.CodeAndJumpTable, entryPoint, Gas(initialGas), regs, ram)
	if err != nil {
		return 0, nil, x, ErrPanicf("%v", err)
	}
	x1, err := InvokeHostCall(i, hostFunc, x)
	if err == nil {
		return 0, nil, x1, ErrPanicf("abnormal program termination, program should finish with one of: halt, out-of-gas, panic or page-fault")
	}

	_, gasRemaining, regs, memory1 := i.Results()
	// u = ϱ − max(ϱ′, 0)
	gasUsed := initialGas - UGas(max(gasRemaining, 0))

	if errors.Is(err, ErrHalt) {
		maybeAddr := regs[R7]
		if maybeAddr > math.MaxUint32 || regs[R8] > math.MaxUint32 {
			return gasUsed, []byte{}, x1, nil
		}
		result := make([]byte, regs[R8])
		if err := memory1.Read(uint32(maybeAddr), result); err != nil {
			// (u, [], x′) if ε = ∎ ∧ Nφ′7...+φ′8 ⊄ Vμ′
			return gasUsed, []byte{}, x1, nil
		}

		// (u, μ′φ′7⋅⋅⋅+φ′8, x′) if ε = ∎ ∧ Nφ′7⋅⋅⋅+φ′8 ⊆ Vμ′
		return gasUsed, result, x1, nil
	}
	// if ε = ∞
	if errors.Is(err, ErrOutOfGas) {
		return gasUsed, []byte{}, x1, err
	}
	errPageFault := &ErrPageFault{}
	if errors.As(err, &errPageFault) {
		return gasUsed, []byte{}, x1, ErrPanicf("%v", err)
	}
	// otherwise
	return gasUsed, nil, x1, err
}

// InvokeHostCall host call invocation (ΨH eq. A.35 v0.7.2)
func InvokeHostCall[X any](
	i *Instance,
	hostCall HostCall[X], x X,
) (X, error) {
	for {
		hostCallIndex, err := InvokeBasic(i)
		if !errors.Is(err, ErrHostCall) {
			return x, err
		}
		i.gasRemaining, i.regs, i.memory, x, err = hostCall(hostCallIndex, i.gasRemaining, i.regs, i.memory, x)
		if err != nil {
			return x, err
		}
		i.instructionCounter = i.NextInstruction()
	}
}

// InvokeBasic basic definition (Ψ eq. A.1 v0.7.2), runs until the first exit reason
func InvokeBasic(i *Instance) (hostCall uint64, err error) {
	defer func() {
		if recoveredErr := recover(); recoveredErr != nil {
			err = ErrPanicf("unexpected program termination: %v", recoveredErr)
		}
	}()
	for {
		if hostCall, err := i.step(); err != nil {
			return hostCall, err
		}
	}
}
