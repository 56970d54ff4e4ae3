package invocations

import (
	"github.com/eigerco/pvmhost/internal/block"
	"github.com/eigerco/pvmhost/internal/constants"
	"github.com/eigerco/pvmhost/internal/crypto"
	"github.com/eigerco/pvmhost/internal/jamtime"
	"github.com/eigerco/pvmhost/internal/pvm"
	"github.com/eigerco/pvmhost/internal/pvm/host_call"
	"github.com/eigerco/pvmhost/internal/service"
	"github.com/eigerco/pvmhost/pkg/guest"
	"github.com/eigerco/pvmhost/pkg/log"
	"github.com/eigerco/pvmhost/pkg/serialization/codec/jam"
)

// AuthorizeInput the parts of a work package the is-authorized invocation needs
type AuthorizeInput struct {
	Core          block.CoreIndex  // c
	AuthServiceId block.ServiceId  // ph
	CodeHash      crypto.Hash      // pu
	LookupAnchor  jamtime.Timeslot // (px)t
	Payloads      [][]byte         // wy of every item of the package
}

// AuthorizeOutput the authorizer trace and the gas it used. Err is ErrBad, ErrBig,
// pvm.ErrOutOfGas or a *pvm.ErrPanic when the package is not authorized.
type AuthorizeOutput struct {
	Trace   []byte
	GasUsed uint64
	Err     error
}

type emptyContext struct{}

// IsAuthorized ΨI(p, c) (eq. B.1 v0.7.2)
func (h *Host) IsAuthorized(serviceState service.ServiceState, in AuthorizeInput) (AuthorizeOutput, error) {
	code, err := h.authorizerCode(serviceState, in)
	if err != nil {
		return AuthorizeOutput{Err: err}, nil
	}

	// E2(c)
	args, err := jam.Marshal(uint16(in.Core))
	if err != nil {
		return AuthorizeOutput{}, err
	}
	core := uint16(in.Core)
	fetchSource := host_call.FetchSource{Payloads: in.Payloads}

	// F ∈ Ω⟨{}⟩
	hostCallFunc := func(hostCall uint64, gasCounter pvm.Gas, regs pvm.Registers, mem pvm.Memory, ctx emptyContext) (pvm.Gas, pvm.Registers, pvm.Memory, emptyContext, error) {
		var err error
		switch hostCall {
		case host_call.GasID:
			gasCounter, regs, err = host_call.GasRemaining(gasCounter, regs)
		case host_call.FetchID:
			gasCounter, regs, mem, err = host_call.Fetch(gasCounter, regs, mem, fetchSource)
		case host_call.LogID:
			gasCounter, regs, mem, err = host_call.Log(gasCounter, regs, mem, &core, nil)
		default:
			gasCounter, regs, err = host_call.Unknown(gasCounter, regs)
		}
		if gasCounter < 0 {
			return 0, regs, mem, ctx, pvm.ErrOutOfGas
		}
		return gasCounter, regs, mem, ctx, err
	}

	// (g, r, ∅) = ΨM(pc, 0, GI, E2(c), F, ∅)
	gasUsed, trace, _, err := invoke(code, pvm.EntryIsAuthorized, constants.MaxAllocatedGasIsAuthorized, args, hostCallFunc, emptyContext{})
	if err != nil {
		if !failed(err) {
			return AuthorizeOutput{}, err
		}
		log.Internal.Debug().
			Uint16("core", core).
			Str("reason", err.Error()).
			Msg("authorization failed")
		return AuthorizeOutput{GasUsed: uint64(gasUsed), Err: err}, nil
	}
	return AuthorizeOutput{Trace: trace, GasUsed: uint64(gasUsed)}, nil
}

func (h *Host) authorizerCode(serviceState service.ServiceState, in AuthorizeInput) (Code, error) {
	if a, ok := h.nativeAuthorizer(in.CodeHash); ok {
		return Code{Native: guest.IsAuthorizedEntry(a)}, nil
	}
	// Λ(δ[ph], (px)t, pu)
	account, ok := serviceState[in.AuthServiceId]
	if !ok {
		return Code{}, ErrBad
	}
	c := account.LookupPreimage(in.LookupAnchor, in.CodeHash)
	if c == nil {
		return Code{}, ErrBad
	}
	if len(c) > constants.MaxSizeAuthorizationCode {
		return Code{}, ErrBig
	}
	return Code{Container: c}, nil
}
