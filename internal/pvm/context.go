package pvm

import (
	"bytes"
	"slices"

	"github.com/eigerco/pvmhost/internal/block"
	"github.com/eigerco/pvmhost/internal/crypto"
	"github.com/eigerco/pvmhost/internal/service"
	"github.com/eigerco/pvmhost/internal/state"
)

// AccumulateContext L ≡ (s ∈ NS, e ∈ S, i ∈ NS, t ∈ ⟦X⟧, y ∈ H?, p ∈ {( NS, B )}) (eq. B.7 v0.7.2)
type AccumulateContext struct {
	ServiceId         block.ServiceId            // s
	AccumulationState state.AccumulationState    // e
	NewServiceId      block.ServiceId            // i
	DeferredTransfers []service.DeferredTransfer // t
	AccumulationHash  *crypto.Hash               // y
	ProvidedPreimages []block.Preimage           // p
}

func (s *AccumulateContext) Clone() AccumulateContext {
	cc := AccumulateContext{
		ServiceId:         s.ServiceId,
		AccumulationState: s.AccumulationState.Clone(),
		NewServiceId:      s.NewServiceId,
		DeferredTransfers: slices.Clone(s.DeferredTransfers),
		ProvidedPreimages: make([]block.Preimage, len(s.ProvidedPreimages)),
	}
	if s.AccumulationHash != nil {
		cc.AccumulationHash = new(crypto.Hash)
		*cc.AccumulationHash = *s.AccumulationHash
	}
	for i, p := range s.ProvidedPreimages {
		cc.ProvidedPreimages[i] = block.Preimage{
			ServiceIndex: p.ServiceIndex,
			Data:         bytes.Clone(p.Data),
		}
	}
	return cc
}

// ServiceAccount ∀x ∈ L ∶ xs ≡ (x_e)d[x_s] (eq. B.8 v0.7.2)
func (s *AccumulateContext) ServiceAccount() service.ServiceAccount {
	return s.AccumulationState.ServiceState[s.ServiceId]
}

// AccumulateContextPair the regular and exceptional dimensions (x, y) of an accumulate invocation.
// Privileges is the privileged services record as it was when the invocation started,
// bless, assign and designate authorize their caller against it.
type AccumulateContextPair struct {
	RegularCtx     AccumulateContext // x
	ExceptionalCtx AccumulateContext // y
	Privileges     state.PrivilegedServices
}

// NewAccumulateContextPair starts both dimensions from the same context
func NewAccumulateContextPair(ctx AccumulateContext) AccumulateContextPair {
	return AccumulateContextPair{
		RegularCtx:     ctx,
		ExceptionalCtx: ctx.Clone(),
		Privileges:     ctx.AccumulationState.PrivilegedServices.Clone(),
	}
}

type IntegratedPVM struct {
	Code               []byte //p program code
	Ram                Memory //u RAM
	InstructionCounter uint64 //i  instruction counter
}

// Segment an exported data segment of WG octets
type Segment []byte

// RefineContextPair (m, e) the nested machines and the exported segments of a refine invocation
type RefineContextPair struct {
	IntegratedPVMMap map[uint64]IntegratedPVM //m
	Segments         []Segment                //e
	ExportLimit      int                      // the number of segments the work item declared it exports
	ExportOffset     uint64                   // exports of the preceding work items in the package
}
