package invocations

import (
	"maps"
	"slices"

	"github.com/eigerco/pvmhost/internal/block"
	"github.com/eigerco/pvmhost/internal/jamtime"
	"github.com/eigerco/pvmhost/internal/pvm"
	"github.com/eigerco/pvmhost/internal/pvm/host_call"
	"github.com/eigerco/pvmhost/internal/safemath"
	"github.com/eigerco/pvmhost/internal/service"
	"github.com/eigerco/pvmhost/pkg/guest"
	"github.com/eigerco/pvmhost/pkg/log"
	"github.com/eigerco/pvmhost/pkg/serialization/codec/jam"
)

// OnTransfer On-Transfer service-account invocation ΨT(d, t, s, t) (eq. B.15 v0.6.7).
// The transferred balance is credited before the code runs, the only other alteration
// it facilitates is to the storage of the receiving account.
func (h *Host) OnTransfer(serviceState service.ServiceState, timeslot jamtime.Timeslot, serviceIndex block.ServiceId, transfers []service.DeferredTransfer) (service.ServiceAccount, uint64, error) {
	serviceAccount := serviceState[serviceIndex].Clone()
	if len(transfers) == 0 {
		return serviceAccount, 0, nil
	}

	var gas uint64
	for _, transfer := range transfers {
		var ok bool
		if gas, ok = safemath.Add(gas, transfer.GasLimit); !ok {
			return serviceAccount, 0, safemath.ErrOverflow
		}
		if serviceAccount.Balance, ok = safemath.Add(serviceAccount.Balance, transfer.Balance); !ok {
			log.Internal.Error().Uint32("service", uint32(serviceIndex)).Msg("balance overflow when crediting deferred transfers")
			return serviceState[serviceIndex], 0, safemath.ErrOverflow
		}
	}

	code, ok := h.serviceCode(serviceAccount, guest.OnTransferEntry)
	if !ok {
		return serviceAccount, 0, nil
	}

	// E(t, s, ↕t)
	args, err := jam.Marshal(guest.OnTransferArgs{
		Timeslot:  uint32(timeslot),
		ServiceId: uint32(serviceIndex),
		Transfers: uint32(len(transfers)),
	})
	if err != nil {
		return serviceAccount, 0, err
	}
	items := make([][]byte, len(transfers))
	for i, transfer := range transfers {
		if items[i], err = jam.Marshal(transfer); err != nil {
			return serviceAccount, 0, err
		}
	}
	fetchSource := host_call.FetchSource{Items: items}

	hostCallFunc := func(hostCall uint64, gasCounter pvm.Gas, regs pvm.Registers, mem pvm.Memory, serviceAccount service.ServiceAccount) (pvm.Gas, pvm.Registers, pvm.Memory, service.ServiceAccount, error) {
		// the receiver as it is now, the rest of the state as it was
		view := maps.Clone(serviceState)
		view[serviceIndex] = serviceAccount

		var err error
		switch hostCall {
		case host_call.GasID:
			gasCounter, regs, err = host_call.GasRemaining(gasCounter, regs)
		case host_call.FetchID:
			gasCounter, regs, mem, err = host_call.Fetch(gasCounter, regs, mem, fetchSource)
		case host_call.LookupID:
			gasCounter, regs, mem, err = host_call.Lookup(gasCounter, regs, mem, serviceAccount, serviceIndex, view)
		case host_call.ReadID:
			gasCounter, regs, mem, err = host_call.Read(gasCounter, regs, mem, serviceAccount, serviceIndex, view)
		case host_call.WriteID:
			gasCounter, regs, mem, serviceAccount, err = host_call.Write(gasCounter, regs, mem, serviceAccount)
		case host_call.InfoID:
			gasCounter, regs, mem, err = host_call.Info(gasCounter, regs, mem, serviceIndex, view)
		case host_call.LogID:
			gasCounter, regs, mem, err = host_call.Log(gasCounter, regs, mem, nil, &serviceIndex)
		default:
			gasCounter, regs, err = host_call.Unknown(gasCounter, regs)
		}
		if gasCounter < 0 {
			return 0, regs, mem, serviceAccount, pvm.ErrOutOfGas
		}
		return gasCounter, regs, mem, serviceAccount, err
	}

	gasUsed, _, newServiceAccount, err := invoke(code, pvm.EntryOnTransfer, pvm.UGas(gas), args, hostCallFunc, serviceAccount)
	if err != nil {
		if !failed(err) {
			return serviceAccount, uint64(gasUsed), err
		}
		log.Internal.Warn().
			Uint32("service", uint32(serviceIndex)).
			Str("reason", err.Error()).
			Msg("on-transfer failed")
	}
	return newServiceAccount, uint64(gasUsed), nil
}

// DeliverTransfers groups the deferred transfers of an accumulation round by receiver
// and runs the on-transfer invocation of every receiver in ascending service order.
// It returns the new state and the gas each receiver used.
func (h *Host) DeliverTransfers(serviceState service.ServiceState, timeslot jamtime.Timeslot, transfers []service.DeferredTransfer) (service.ServiceState, map[block.ServiceId]uint64, error) {
	byReceiver := make(map[block.ServiceId][]service.DeferredTransfer)
	for _, t := range transfers {
		byReceiver[t.ReceiverServiceIndex] = append(byReceiver[t.ReceiverServiceIndex], t)
	}

	newState := maps.Clone(serviceState)
	gasUsed := make(map[block.ServiceId]uint64, len(byReceiver))
	for _, receiver := range slices.Sorted(maps.Keys(byReceiver)) {
		if _, ok := serviceState[receiver]; !ok {
			log.Internal.Warn().Uint32("service", uint32(receiver)).Msg("dropping transfers to a missing service")
			continue
		}
		account, used, err := h.OnTransfer(serviceState, timeslot, receiver, byReceiver[receiver])
		if err != nil {
			return nil, nil, err
		}
		newState[receiver] = account
		gasUsed[receiver] = used
	}
	return newState, gasUsed, nil
}
