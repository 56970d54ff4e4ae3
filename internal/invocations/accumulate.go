package invocations

import (
	"github.com/eigerco/pvmhost/internal/block"
	"github.com/eigerco/pvmhost/internal/crypto"
	"github.com/eigerco/pvmhost/internal/jamtime"
	"github.com/eigerco/pvmhost/internal/pvm"
	"github.com/eigerco/pvmhost/internal/pvm/host_call"
	"github.com/eigerco/pvmhost/internal/service"
	"github.com/eigerco/pvmhost/internal/state"
	"github.com/eigerco/pvmhost/pkg/guest"
	"github.com/eigerco/pvmhost/pkg/log"
	"github.com/eigerco/pvmhost/pkg/serialization/codec/jam"
)

// AccumulationOutput (O) (eq. 12.23 v0.7.2)
type AccumulationOutput struct {
	AccumulationState state.AccumulationState    // e ∈ S
	DeferredTransfers []service.DeferredTransfer // t ∈ ⟦X⟧
	Result            *crypto.Hash               // y ∈ H?
	GasUsed           uint64                     // u ∈ NG
	ProvidedPreimages []block.Preimage           // p ∈ {(N_S, B)}
}

// AccumulateInput the arguments of one service accumulation
type AccumulateInput struct {
	Timeslot  jamtime.Timeslot // t
	ServiceId block.ServiceId  // s
	Gas       uint64           // g
	Operands  [][]byte         // o, already encoded
	Entropy   crypto.Hash      // η′0
}

// Accumulate ΨA(e, t, s, g, o) → O (eq. B.9 v0.7.2)
// The given state is never modified, the output carries the new state. Provided
// preimages of a successful accumulation are already applied to the output state.
func (h *Host) Accumulate(accState state.AccumulationState, in AccumulateInput) (AccumulationOutput, error) {
	serviceIndex := in.ServiceId
	account, ok := accState.ServiceState[serviceIndex]
	if !ok {
		return AccumulationOutput{AccumulationState: accState}, nil
	}
	code, ok := h.serviceCode(account, guest.AccumulateEntry)
	if !ok {
		return AccumulationOutput{AccumulationState: accState}, nil
	}

	// I(e, s)²
	ctx, err := newCtx(accState.Clone(), serviceIndex, in.Entropy, in.Timeslot)
	if err != nil {
		log.Internal.Error().Err(err).Msg("error creating accumulation context")
		return AccumulationOutput{}, err
	}
	ctxPair := pvm.NewAccumulateContextPair(ctx)

	// E(t, s, ↕o)
	args, err := jam.Marshal(guest.AccumulateArgs{
		Timeslot:  uint32(in.Timeslot),
		ServiceId: uint32(serviceIndex),
		Operands:  uint32(len(in.Operands)),
	})
	if err != nil {
		return AccumulationOutput{}, err
	}

	entropy := in.Entropy
	fetchSource := host_call.FetchSource{Entropy: &entropy, Items: in.Operands}

	// F (eq. B.10 v0.7.2)
	hostCallFunc := func(hostCall uint64, gasCounter pvm.Gas, regs pvm.Registers, mem pvm.Memory, ctx pvm.AccumulateContextPair) (pvm.Gas, pvm.Registers, pvm.Memory, pvm.AccumulateContextPair, error) {
		// s = (xu)d[xs]
		currentService := ctx.RegularCtx.ServiceAccount()
		serviceState := ctx.RegularCtx.AccumulationState.ServiceState

		var err error
		switch hostCall {
		case host_call.GasID:
			gasCounter, regs, err = host_call.GasRemaining(gasCounter, regs)
		case host_call.FetchID:
			gasCounter, regs, mem, err = host_call.Fetch(gasCounter, regs, mem, fetchSource)
		case host_call.LookupID:
			gasCounter, regs, mem, err = host_call.Lookup(gasCounter, regs, mem, currentService, serviceIndex, serviceState)
		case host_call.ReadID:
			gasCounter, regs, mem, err = host_call.Read(gasCounter, regs, mem, currentService, serviceIndex, serviceState)
		case host_call.WriteID:
			gasCounter, regs, mem, currentService, err = host_call.Write(gasCounter, regs, mem, currentService)
			serviceState[serviceIndex] = currentService
		case host_call.InfoID:
			gasCounter, regs, mem, err = host_call.Info(gasCounter, regs, mem, serviceIndex, serviceState)
		case host_call.BlessID:
			gasCounter, regs, mem, ctx, err = host_call.Bless(gasCounter, regs, mem, ctx)
		case host_call.AssignID:
			gasCounter, regs, mem, ctx, err = host_call.Assign(gasCounter, regs, mem, ctx)
		case host_call.DesignateID:
			gasCounter, regs, mem, ctx, err = host_call.Designate(gasCounter, regs, mem, ctx)
		case host_call.CheckpointID:
			gasCounter, regs, mem, ctx, err = host_call.Checkpoint(gasCounter, regs, mem, ctx)
		case host_call.NewID:
			gasCounter, regs, mem, ctx, err = host_call.New(gasCounter, regs, mem, ctx)
		case host_call.UpgradeID:
			gasCounter, regs, mem, ctx, err = host_call.Upgrade(gasCounter, regs, mem, ctx)
		case host_call.TransferID:
			gasCounter, regs, mem, ctx, err = host_call.Transfer(gasCounter, regs, mem, ctx)
		case host_call.EjectID:
			gasCounter, regs, mem, ctx, err = host_call.Eject(gasCounter, regs, mem, ctx, in.Timeslot)
		case host_call.QueryID:
			gasCounter, regs, mem, ctx, err = host_call.Query(gasCounter, regs, mem, ctx)
		case host_call.SolicitID:
			gasCounter, regs, mem, ctx, err = host_call.Solicit(gasCounter, regs, mem, ctx, in.Timeslot)
		case host_call.ForgetID:
			gasCounter, regs, mem, ctx, err = host_call.Forget(gasCounter, regs, mem, ctx, in.Timeslot)
		case host_call.YieldID:
			gasCounter, regs, mem, ctx, err = host_call.Yield(gasCounter, regs, mem, ctx)
		case host_call.ProvideID:
			gasCounter, regs, mem, ctx, err = host_call.Provide(gasCounter, regs, mem, ctx, serviceIndex)
		case host_call.LogID:
			gasCounter, regs, mem, err = host_call.Log(gasCounter, regs, mem, nil, &serviceIndex)
		default:
			gasCounter, regs, err = host_call.Unknown(gasCounter, regs)
		}
		// otherwise if ϱ′ < 0
		if gasCounter < 0 {
			return 0, regs, mem, ctx, pvm.ErrOutOfGas
		}
		return gasCounter, regs, mem, ctx, err
	}

	gasUsed, ret, ctxPair, err := invoke(code, pvm.EntryAccumulate, pvm.UGas(in.Gas), args, hostCallFunc, ctxPair)
	if err != nil {
		if !failed(err) {
			return AccumulationOutput{}, err
		}
		// C(g, ∞ ∨ ☇) = (u, ye, yt, yy, yp)
		log.Internal.Warn().
			Uint32("service", uint32(serviceIndex)).
			Str("reason", err.Error()).
			Msg("accumulation failed, reverting to the last checkpoint")
		return finish(ctxPair.ExceptionalCtx, uint64(gasUsed), in.Timeslot), nil
	}

	output := finish(ctxPair.RegularCtx, uint64(gasUsed), in.Timeslot)
	// C(g, o ∈ H) = (u, xe, xt, o, xp)
	if len(ret) == crypto.HashSize {
		result := crypto.Hash(ret)
		output.Result = &result
	}
	return output, nil
}

// finish the accumulation output of the surviving context with its provided preimages applied
func finish(ctx pvm.AccumulateContext, gasUsed uint64, timeslot jamtime.Timeslot) AccumulationOutput {
	for _, p := range ctx.ProvidedPreimages {
		account, ok := ctx.AccumulationState.ServiceState[p.ServiceIndex]
		if !ok {
			continue
		}
		account = account.Clone()
		if err := account.AddPreimage(p.Data, timeslot); err != nil {
			log.Internal.Debug().Err(err).Uint32("service", uint32(p.ServiceIndex)).Msg("provided preimage no longer solicited")
			continue
		}
		ctx.AccumulationState.ServiceState[p.ServiceIndex] = account
	}
	return AccumulationOutput{
		AccumulationState: ctx.AccumulationState,
		DeferredTransfers: ctx.DeferredTransfers,
		Result:            ctx.AccumulationHash,
		GasUsed:           gasUsed,
		ProvidedPreimages: ctx.ProvidedPreimages,
	}
}

// newCtx I(u, s) (eq. B.10 v0.7.2)
func newCtx(u state.AccumulationState, serviceIndex block.ServiceId, entropy crypto.Hash, timeslot jamtime.Timeslot) (pvm.AccumulateContext, error) {
	seed, err := newServiceID(serviceIndex, entropy, timeslot)
	if err != nil {
		return pvm.AccumulateContext{}, err
	}
	return pvm.AccumulateContext{
		ServiceId:         serviceIndex,
		AccumulationState: u,
		NewServiceId:      service.DeriveIndex(seed, u.ServiceState),
		DeferredTransfers: []service.DeferredTransfer{},
		ProvidedPreimages: []block.Preimage{},
	}, nil
}

// newServiceID E4^-1(H(E(s, η′0, Ht)))
func newServiceID(serviceIndex block.ServiceId, entropy crypto.Hash, timeslot jamtime.Timeslot) (block.ServiceId, error) {
	hashBytes, err := jam.Marshal(struct {
		ServiceID block.ServiceId `jam:"encoding=compact"`
		Entropy   crypto.Hash
		Timeslot  jamtime.Timeslot `jam:"encoding=compact"`
	}{
		ServiceID: serviceIndex,
		Entropy:   entropy,
		Timeslot:  timeslot,
	})
	if err != nil {
		return 0, err
	}
	hashData := crypto.HashData(hashBytes)
	return block.ServiceId(jam.DecodeUint64(hashData[:4])), nil
}
