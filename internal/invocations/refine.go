package invocations

import (
	"context"
	"errors"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

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

var (
	// ErrBad the service or its code is not available at the lookup anchor (BAD)
	ErrBad = errors.New("service code not available")
	// ErrBig the service code exceeds WC (BIG)
	ErrBig = errors.New("service code too big")
)

// RefineItem a work item together with the package data its refinement can see
type RefineItem struct {
	Core         block.CoreIndex  // c
	Index        uint32           // i
	ServiceId    block.ServiceId  // ws
	CodeHash     crypto.Hash      // wc
	Payload      []byte           // wy
	Gas          uint64           // wg
	ExportCount  int              // we
	PackageHash  crypto.Hash      // H(p)
	LookupAnchor jamtime.Timeslot // (px)t
	Payloads     [][]byte         // wy of every item of the package
	ExportOffset uint64           // ς
}

// RefineOutput the refinement of one work item. Err is ErrBad, ErrBig, pvm.ErrOutOfGas
// or a *pvm.ErrPanic when the item did not produce a result.
type RefineOutput struct {
	Result  []byte
	Exports []pvm.Segment
	GasUsed uint64
	Err     error
}

// Refine ΨR(c, i, p, ...) (eq. B.5 v0.7.2)
func (h *Host) Refine(serviceState service.ServiceState, item RefineItem) (RefineOutput, error) {
	code, err := h.refineCode(serviceState, item)
	if err != nil {
		return RefineOutput{Err: err}, nil
	}

	// E(c, i, ws, ↕wy, H(p))
	args, err := jam.Marshal(guest.RefineArgs{
		Core:        uint16(item.Core),
		Item:        item.Index,
		ServiceId:   uint32(item.ServiceId),
		Payload:     item.Payload,
		PackageHash: guest.Hash(item.PackageHash),
	})
	if err != nil {
		return RefineOutput{}, err
	}

	core := uint16(item.Core)
	serviceIndex := item.ServiceId
	fetchSource := host_call.FetchSource{Payloads: item.Payloads}

	// F ∈ Ω⟨(D⟨N → M⟩, ⟦G⟧)⟩
	hostCallFunc := func(hostCall uint64, gasCounter pvm.Gas, regs pvm.Registers, mem pvm.Memory, ctxPair pvm.RefineContextPair) (pvm.Gas, pvm.Registers, pvm.Memory, pvm.RefineContextPair, error) {
		var err error
		switch hostCall {
		case host_call.GasID:
			gasCounter, regs, err = host_call.GasRemaining(gasCounter, regs)
		case host_call.FetchID:
			gasCounter, regs, mem, err = host_call.Fetch(gasCounter, regs, mem, fetchSource)
		case host_call.HistoricalLookupID:
			gasCounter, regs, mem, ctxPair, err = host_call.HistoricalLookup(gasCounter, regs, mem, ctxPair, serviceIndex, serviceState, item.LookupAnchor)
		case host_call.ExportID:
			gasCounter, regs, mem, ctxPair, err = host_call.Export(gasCounter, regs, mem, ctxPair)
		case host_call.MachineID:
			gasCounter, regs, mem, ctxPair, err = host_call.Machine(gasCounter, regs, mem, ctxPair)
		case host_call.PeekID:
			gasCounter, regs, mem, ctxPair, err = host_call.Peek(gasCounter, regs, mem, ctxPair)
		case host_call.PokeID:
			gasCounter, regs, mem, ctxPair, err = host_call.Poke(gasCounter, regs, mem, ctxPair)
		case host_call.ZeroID:
			gasCounter, regs, mem, ctxPair, err = host_call.Zero(gasCounter, regs, mem, ctxPair)
		case host_call.VoidID:
			gasCounter, regs, mem, ctxPair, err = host_call.Void(gasCounter, regs, mem, ctxPair)
		case host_call.InvokeID:
			gasCounter, regs, mem, ctxPair, err = host_call.Invoke(gasCounter, regs, mem, ctxPair)
		case host_call.ExpungeID:
			gasCounter, regs, mem, ctxPair, err = host_call.Expunge(gasCounter, regs, mem, ctxPair)
		case host_call.LogID:
			gasCounter, regs, mem, err = host_call.Log(gasCounter, regs, mem, &core, &serviceIndex)
		default:
			gasCounter, regs, err = host_call.Unknown(gasCounter, regs)
		}
		if gasCounter < 0 {
			return 0, regs, mem, ctxPair, pvm.ErrOutOfGas
		}
		return gasCounter, regs, mem, ctxPair, err
	}

	// (u, r, (m, e)) = ΨM(c, 0, wg, a, F, (∅, []))
	gasUsed, result, ctxPair, err := invoke(code, pvm.EntryRefine, pvm.UGas(item.Gas), args, hostCallFunc, pvm.RefineContextPair{
		IntegratedPVMMap: make(map[uint64]pvm.IntegratedPVM),
		Segments:         []pvm.Segment{},
		ExportLimit:      item.ExportCount,
		ExportOffset:     item.ExportOffset,
	})
	if err != nil {
		if !failed(err) {
			return RefineOutput{}, err
		}
		// if r ∈ {∞, ☇} then (r, [], u)
		log.Internal.Debug().
			Uint32("service", uint32(serviceIndex)).
			Uint32("item", item.Index).
			Str("reason", err.Error()).
			Msg("refine failed")
		return RefineOutput{GasUsed: uint64(gasUsed), Err: err}, nil
	}
	return RefineOutput{Result: result, Exports: ctxPair.Segments, GasUsed: uint64(gasUsed)}, nil
}

func (h *Host) refineCode(serviceState service.ServiceState, item RefineItem) (Code, error) {
	// if s ∉ K(δ) ∨ Λ(δ[s], (px)t, wc) = ∅ then BAD
	account, ok := serviceState[item.ServiceId]
	if !ok {
		return Code{}, ErrBad
	}
	c := account.LookupPreimage(item.LookupAnchor, item.CodeHash)
	if c == nil {
		return Code{}, ErrBad
	}
	// a native service stands in for the code once it is available at the anchor
	if s, ok := h.nativeService(item.CodeHash); ok {
		return Code{Native: guest.RefineEntry(s)}, nil
	}
	// if |Λ(δ[s], (px)t, wc)| > WC then BIG
	if len(c) > constants.MaxSizeServiceCode {
		return Code{}, ErrBig
	}
	return Code{Container: c}, nil
}

// RefineAll refines every item of a package in parallel. Each refinement has its own
// nested machines and exports, item i exports after the exports of items 0 to i−1.
func (h *Host) RefineAll(ctx context.Context, serviceState service.ServiceState, items []RefineItem) ([]RefineOutput, error) {
	items = slices.Clone(items)
	var offset uint64
	for i := range items {
		items[i].ExportOffset = offset
		offset += uint64(items[i].ExportCount)
	}

	outputs := make([]RefineOutput, len(items))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, item := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			output, err := h.Refine(serviceState, item)
			if err != nil {
				return err
			}
			outputs[i] = output
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outputs, nil
}
