package host_call

import (
	"bytes"
	"math"

	"github.com/eigerco/pvmhost/internal/block"
	"github.com/eigerco/pvmhost/internal/constants"
	"github.com/eigerco/pvmhost/internal/crypto"
	"github.com/eigerco/pvmhost/internal/jamtime"
	"github.com/eigerco/pvmhost/internal/preimage"
	"github.com/eigerco/pvmhost/internal/pvm"
	"github.com/eigerco/pvmhost/internal/safemath"
	"github.com/eigerco/pvmhost/internal/service"
	"github.com/eigerco/pvmhost/internal/state"
	"github.com/eigerco/pvmhost/pkg/collections"
	"github.com/eigerco/pvmhost/pkg/serialization/codec/jam"
)

// alwaysAccumulateEntrySize E4(s) ⌢ E8(g)
const alwaysAccumulateEntrySize = 12

func isServiceId(v uint64) bool {
	return v <= math.MaxUint32
}

// Bless ΩB(ϱ, φ, μ, (x, y))
func Bless(gas pvm.Gas, regs pvm.Registers, mem pvm.Memory, ctxPair pvm.AccumulateContextPair) (pvm.Gas, pvm.Registers, pvm.Memory, pvm.AccumulateContextPair, error) {
	if gas < BlessCost {
		return gas, regs, mem, ctxPair, pvm.ErrOutOfGas
	}
	gas -= BlessCost

	// let [m, a, v, o, n] = φ7...12
	managerServiceId, assignersAddr, designateServiceId, addr, servicesNr := regs[pvm.R7], regs[pvm.R8], regs[pvm.R9], regs[pvm.R10], regs[pvm.R11]

	// let z = {(s ↦ g) where E4(s) ⌢ E8(g) = μ_o+12i⋅⋅⋅+12 | i ∈ Nn} if No⋅⋅⋅+12n ⊂ Vμ otherwise ∇
	size, ok := safemath.Mul(servicesNr, alwaysAccumulateEntrySize)
	if !ok {
		return gas, regs, mem, ctxPair, pvm.ErrPanicf("always accumulate list overflows memory")
	}
	entries, err := readBytes(mem, addr, size)
	if err != nil {
		return gas, regs, mem, ctxPair, err
	}
	gasPerServiceId := make([]collections.Pair[block.ServiceId, uint64], 0, servicesNr)
	for i := 0; i < len(entries); i += alwaysAccumulateEntrySize {
		entry := entries[i : i+alwaysAccumulateEntrySize]
		gasPerServiceId = append(gasPerServiceId, collections.Pair[block.ServiceId, uint64]{
			Key:   block.ServiceId(jam.DecodeUint64(entry[:4])),
			Value: jam.DecodeUint64(entry[4:]),
		})
	}

	// let a = E4^-1(μa⋅⋅⋅+4C) if Na⋅⋅⋅+4C ⊆ Vµ otherwise ∇
	assignersBytes, err := readBytes(mem, assignersAddr, 4*uint64(constants.TotalNumberOfCores))
	if err != nil {
		return gas, regs, mem, ctxPair, err
	}
	assigners := collections.FixedSequenceFromFunc[block.ServiceId, state.CoreCount](func(i int) block.ServiceId {
		return block.ServiceId(jam.DecodeUint64(assignersBytes[4*i : 4*i+4]))
	})

	// a caller without the manager role leaves the privileges untouched
	if ctxPair.Privileges.ManagerServiceId != ctxPair.RegularCtx.ServiceId {
		return gas, withCode(regs, OK), mem, ctxPair, nil
	}

	// (▸, WHO, ...) otherwise if (m, v) ∉ NS²
	if !isServiceId(managerServiceId) || !isServiceId(designateServiceId) {
		return gas, withCode(regs, WHO), mem, ctxPair, nil
	}

	// (▸, OK, (m, a, v, z)) otherwise
	ctxPair.RegularCtx.AccumulationState.PrivilegedServices = state.PrivilegedServices{
		ManagerServiceId:        block.ServiceId(managerServiceId),
		AssignedServiceIds:      assigners,
		DesignateServiceId:      block.ServiceId(designateServiceId),
		AmountOfGasPerServiceId: collections.NewOrderedMap(gasPerServiceId...),
	}
	return gas, withCode(regs, OK), mem, ctxPair, nil
}

// Assign ΩA(ϱ, φ, μ, (x, y))
//
// let [c, o] = φ7,8
// let q = [μo+32i···+32 | i ← NQ] if No···+32Q ⊆ Vμ, ∇ otherwise
//
// (ε', φ'7, (x'e)q[c]) =
//
//	(☇, φ7, (xe)q[c])     if q = ∇
//	(▸, CORE, (xe)q[c])   otherwise if c ≥ C
//	(▸, OK, (xe)q[c])     otherwise if xs ≠ χa[c], the queue is left untouched
//	(▸, OK, q)            otherwise
func Assign(gas pvm.Gas, regs pvm.Registers, mem pvm.Memory, ctxPair pvm.AccumulateContextPair) (pvm.Gas, pvm.Registers, pvm.Memory, pvm.AccumulateContextPair, error) {
	if gas < AssignCost {
		return gas, regs, mem, ctxPair, pvm.ErrOutOfGas
	}
	gas -= AssignCost

	core, addr := regs[pvm.R7], regs[pvm.R8]

	queueBytes, err := readBytes(mem, addr, crypto.HashSize*constants.PendingAuthorizersQueueSize)
	if err != nil {
		return gas, regs, mem, ctxPair, err
	}
	queue := collections.FixedSequenceFromFunc[crypto.Hash, state.AuthorizerQueueLength](func(i int) crypto.Hash {
		return crypto.Hash(queueBytes[crypto.HashSize*i : crypto.HashSize*(i+1)])
	})

	if core >= uint64(constants.TotalNumberOfCores) {
		return gas, withCode(regs, CORE), mem, ctxPair, nil
	}

	if !ctxPair.Privileges.IsAssigner(block.CoreIndex(core), ctxPair.RegularCtx.ServiceId) {
		return gas, withCode(regs, OK), mem, ctxPair, nil
	}

	ctxPair.RegularCtx.AccumulationState.PendingAuthorizersQueues.Set(int(core), queue)
	return gas, withCode(regs, OK), mem, ctxPair, nil
}

// Designate ΩD(ϱ, φ, μ, (x, y))
func Designate(gas pvm.Gas, regs pvm.Registers, mem pvm.Memory, ctxPair pvm.AccumulateContextPair) (pvm.Gas, pvm.Registers, pvm.Memory, pvm.AccumulateContextPair, error) {
	if gas < DesignateCost {
		return gas, regs, mem, ctxPair, pvm.ErrOutOfGas
	}
	gas -= DesignateCost

	// let v = [μo+336i⋅⋅⋅+336 | i ← NV] if No⋅⋅⋅+336V ⊆ Vμ, ∇ otherwise
	keysBytes, err := readBytes(mem, regs[pvm.R7], crypto.ValidatorKeySetLength*constants.NumberOfValidators)
	if err != nil {
		return gas, regs, mem, ctxPair, err
	}

	// (▸, OK, ...) otherwise if xs ≠ χv, the validator keys are left untouched
	if ctxPair.Privileges.DesignateServiceId != ctxPair.RegularCtx.ServiceId {
		return gas, withCode(regs, OK), mem, ctxPair, nil
	}

	ctxPair.RegularCtx.AccumulationState.ValidatorKeys = collections.FixedSequenceFromFunc[crypto.ValidatorKey, state.ValidatorCount](func(i int) crypto.ValidatorKey {
		return crypto.ValidatorKey(keysBytes[crypto.ValidatorKeySetLength*i : crypto.ValidatorKeySetLength*(i+1)])
	})
	return gas, withCode(regs, OK), mem, ctxPair, nil
}

// Checkpoint ΩC(ϱ, φ, μ, (x, y))
func Checkpoint(gas pvm.Gas, regs pvm.Registers, mem pvm.Memory, ctxPair pvm.AccumulateContextPair) (pvm.Gas, pvm.Registers, pvm.Memory, pvm.AccumulateContextPair, error) {
	if gas < CheckpointCost {
		return gas, regs, mem, ctxPair, pvm.ErrOutOfGas
	}
	gas -= CheckpointCost

	// y′ = x
	ctxPair.ExceptionalCtx = ctxPair.RegularCtx.Clone()

	// Set the new ϱ' value into φ′7
	regs[pvm.R7] = uint64(gas)

	return gas, regs, mem, ctxPair, nil
}

// New ΩN(ϱ, φ, μ, (x, y))
//
// let [o, l, g, m, f] = φ7...+5
// let c = µo...+32 if No...+32 ⊆ Vµ ∧ l ∈ N_2^32, ∇ otherwise
// let a = (c, s▸▸{}, l▸▸{((c, l) ↦ [])}, b▸▸at, g, m, f) if c ≠ ∇
// let s = xs except sb = (xs)b − at
//
//	(☇, φ7, xi, (xe)d)           if c = ∇
//	(▸, HUH, xi, (xe)d)          otherwise if f ≠ 0 ∧ xs ≠ χm
//	(▸, CASH, xi, (xe)d)         otherwise if sb < (xs)t
//	(▸, xi, i*, (xe)d ∪ d)       otherwise
//	                              where i* = check(S + (xi − S + 42) mod (2³² − S − 2⁸))
//	                              and d = {(xi ↦ a), (xs ↦ s)}
func New(gas pvm.Gas, regs pvm.Registers, mem pvm.Memory, ctxPair pvm.AccumulateContextPair) (pvm.Gas, pvm.Registers, pvm.Memory, pvm.AccumulateContextPair, error) {
	if gas < NewCost {
		return gas, regs, mem, ctxPair, pvm.ErrOutOfGas
	}
	gas -= NewCost

	addr, preimageLength, gasLimitAccumulator, gasLimitTransfer, gratisStorageOffset := regs[pvm.R7], regs[pvm.R8], regs[pvm.R9], regs[pvm.R10], regs[pvm.R11]

	codeHashBytes, err := readBytes(mem, addr, crypto.HashSize)
	if err != nil {
		return gas, regs, mem, ctxPair, err
	}
	if preimageLength > math.MaxUint32 {
		return gas, regs, mem, ctxPair, pvm.ErrPanicf("preimage length exceeds 2^32")
	}

	xsId := ctxPair.RegularCtx.ServiceId
	if gratisStorageOffset != 0 && xsId != ctxPair.Privileges.ManagerServiceId {
		return gas, withCode(regs, HUH), mem, ctxPair, nil
	}

	account := service.NewServiceAccount()
	account.CodeHash = crypto.Hash(codeHashBytes)
	account.GasLimitForAccumulator = gasLimitAccumulator
	account.GasLimitOnTransfer = gasLimitTransfer
	account.GratisStorageOffset = gratisStorageOffset
	account.PreimageMeta[service.PreImageMetaKey{Hash: account.CodeHash, Length: service.PreimageLength(preimageLength)}] = service.PreimageHistoricalTimeslots{}

	// b: a_t
	account.Balance = account.ThresholdBalance()

	// (▸, CASH, ...) if (xs)b − at < (xs)t
	xs := ctxPair.RegularCtx.ServiceAccount()
	required, ok := safemath.Add(account.Balance, xs.ThresholdBalance())
	if !ok || xs.Balance < required {
		return gas, withCode(regs, CASH), mem, ctxPair, nil
	}

	s := xs.Clone()
	s.Balance -= account.Balance

	newId := ctxPair.RegularCtx.NewServiceId
	serviceState := ctxPair.RegularCtx.AccumulationState.ServiceState
	serviceState[newId] = account
	serviceState[xsId] = s

	regs[pvm.R7] = uint64(newId)
	ctxPair.RegularCtx.NewServiceId = service.BumpIndex(newId, serviceState)

	return gas, regs, mem, ctxPair, nil
}

// Upgrade ΩU(ϱ, φ, μ, (x, y))
func Upgrade(gas pvm.Gas, regs pvm.Registers, mem pvm.Memory, ctxPair pvm.AccumulateContextPair) (pvm.Gas, pvm.Registers, pvm.Memory, pvm.AccumulateContextPair, error) {
	if gas < UpgradeCost {
		return gas, regs, mem, ctxPair, pvm.ErrOutOfGas
	}
	gas -= UpgradeCost

	// let [o, g, m] = φ7...10
	addr, gasLimitAccumulator, gasLimitTransfer := regs[pvm.R7], regs[pvm.R8], regs[pvm.R9]

	// c = μo⋅⋅⋅+32 if No⋅⋅⋅+32 ⊂ Vμ otherwise ∇
	codeHash, err := readBytes(mem, addr, crypto.HashSize)
	if err != nil {
		return gas, regs, mem, ctxPair, err
	}

	// (φ′7, (X′s)c, (X′s)g , (X′s)m) = (OK, c, g, m) if c ≠ ∇
	currentService := ctxPair.RegularCtx.ServiceAccount()
	currentService.CodeHash = crypto.Hash(codeHash)
	currentService.GasLimitForAccumulator = gasLimitAccumulator
	currentService.GasLimitOnTransfer = gasLimitTransfer
	ctxPair.RegularCtx.AccumulationState.ServiceState[ctxPair.RegularCtx.ServiceId] = currentService
	return gas, withCode(regs, OK), mem, ctxPair, nil
}

// Transfer ΩT(ϱ, φ, μ, (x, y))
// On success the gas limit handed to the receiver is charged on top of the base cost.
func Transfer(gas pvm.Gas, regs pvm.Registers, mem pvm.Memory, ctxPair pvm.AccumulateContextPair) (pvm.Gas, pvm.Registers, pvm.Memory, pvm.AccumulateContextPair, error) {
	if gas < TransferBaseCost {
		return gas, regs, mem, ctxPair, pvm.ErrOutOfGas
	}
	gas -= TransferBaseCost

	// let (d, a, l, o) = φ7..11
	receiverId, amount, gasLimit, o := regs[pvm.R7], regs[pvm.R8], regs[pvm.R9], regs[pvm.R10]

	// m = μo⋅⋅⋅+WT if No⋅⋅⋅+WT ⊂ Vμ otherwise ∇
	m, err := readBytes(mem, o, constants.TransferMemoSizeBytes)
	if err != nil {
		return gas, regs, mem, ctxPair, err
	}

	if !isServiceId(receiverId) {
		return gas, withCode(regs, WHO), mem, ctxPair, nil
	}
	receiverService, ok := ctxPair.RegularCtx.AccumulationState.ServiceState[block.ServiceId(receiverId)]
	if !ok {
		return gas, withCode(regs, WHO), mem, ctxPair, nil
	}

	// LOW if l < d[d]m
	if gasLimit < receiverService.GasLimitOnTransfer {
		return gas, withCode(regs, LOW), mem, ctxPair, nil
	}

	// let b = (xs)b − a, CASH if b < (xs)t
	account := ctxPair.RegularCtx.ServiceAccount()
	if amount > account.Balance || account.Balance-amount < account.ThresholdBalance() {
		return gas, withCode(regs, CASH), mem, ctxPair, nil
	}

	if gasLimit > uint64(gas) {
		return gas, regs, mem, ctxPair, pvm.ErrOutOfGas
	}

	account = account.Clone()
	account.Balance -= amount
	ctxPair.RegularCtx.AccumulationState.ServiceState[ctxPair.RegularCtx.ServiceId] = account
	ctxPair.RegularCtx.DeferredTransfers = append(ctxPair.RegularCtx.DeferredTransfers, service.DeferredTransfer{
		SenderServiceIndex:   ctxPair.RegularCtx.ServiceId,
		ReceiverServiceIndex: block.ServiceId(receiverId),
		Balance:              amount,
		Memo:                 service.Memo(m),
		GasLimit:             gasLimit,
	})
	gas -= pvm.Gas(gasLimit)
	return gas, withCode(regs, OK), mem, ctxPair, nil
}

// Eject ΩJ(ϱ, φ, μ, (x, y), t)
func Eject(gas pvm.Gas, regs pvm.Registers, mem pvm.Memory, ctxPair pvm.AccumulateContextPair, timeslot jamtime.Timeslot) (pvm.Gas, pvm.Registers, pvm.Memory, pvm.AccumulateContextPair, error) {
	if gas < EjectCost {
		return gas, regs, mem, ctxPair, pvm.ErrOutOfGas
	}
	gas -= EjectCost

	d, o := regs[pvm.R7], regs[pvm.R8]

	// let h = μo..o+32 if Zo..o+32 ⊂ Vμ
	h, err := readBytes(mem, o, crypto.HashSize)
	if err != nil {
		return gas, regs, mem, ctxPair, err
	}

	xsId := ctxPair.RegularCtx.ServiceId
	if !isServiceId(d) || block.ServiceId(d) == xsId {
		return gas, withCode(regs, WHO), mem, ctxPair, nil
	}

	target, ok := ctxPair.RegularCtx.AccumulationState.ServiceState[block.ServiceId(d)]
	if !ok {
		return gas, withCode(regs, WHO), mem, ctxPair, nil
	}

	// WHO if d_c ≠ E32(x_s)
	var ejectHash crypto.Hash
	copy(ejectHash[:], jam.EncodeUint64(uint64(xsId), 4))
	if target.CodeHash != ejectHash {
		return gas, withCode(regs, WHO), mem, ctxPair, nil
	}

	// HUH if d_i ≠ 2
	if target.TotalItems() != 2 {
		return gas, withCode(regs, HUH), mem, ctxPair, nil
	}

	// l = max(81, d_o) − 81
	l := max(81, target.TotalStorageSize()) - 81
	if l > math.MaxUint32 {
		return gas, withCode(regs, HUH), mem, ctxPair, nil
	}

	record, ok := target.PreimageMeta[service.PreImageMetaKey{Hash: crypto.Hash(h), Length: service.PreimageLength(l)}]
	if !ok || preimage.StatusOf(record) != preimage.Unrequested || !preimage.Expired(record[1], timeslot, constants.PreimageExpulsionPeriod) {
		return gas, withCode(regs, HUH), mem, ctxPair, nil
	}

	// s'_b = (x_s)_b + d_b
	xs := ctxPair.RegularCtx.ServiceAccount().Clone()
	xs.Balance = safemath.SaturatingAdd(xs.Balance, target.Balance)

	delete(ctxPair.RegularCtx.AccumulationState.ServiceState, block.ServiceId(d))
	ctxPair.RegularCtx.AccumulationState.ServiceState[xsId] = xs

	return gas, withCode(regs, OK), mem, ctxPair, nil
}

// readPreimageKey reads (h, z) of the preimage query, solicit and forget calls
func readPreimageKey(mem pvm.Memory, addr, length uint64) (service.PreImageMetaKey, bool, error) {
	h, err := readBytes(mem, addr, crypto.HashSize)
	if err != nil {
		return service.PreImageMetaKey{}, false, err
	}
	if length > math.MaxUint32 {
		return service.PreImageMetaKey{}, false, nil
	}
	return service.PreImageMetaKey{Hash: crypto.Hash(h), Length: service.PreimageLength(length)}, true, nil
}

// Query ΩQ(ϱ, φ, μ, (x, y))
func Query(gas pvm.Gas, regs pvm.Registers, mem pvm.Memory, ctxPair pvm.AccumulateContextPair) (pvm.Gas, pvm.Registers, pvm.Memory, pvm.AccumulateContextPair, error) {
	if gas < QueryCost {
		return gas, regs, mem, ctxPair, pvm.ErrOutOfGas
	}
	gas -= QueryCost

	key, valid, err := readPreimageKey(mem, regs[pvm.R7], regs[pvm.R8])
	if err != nil {
		return gas, regs, mem, ctxPair, err
	}

	// let a = (xs)l[h, z] if (h, z) ∈ K((xs)l)
	record, exists := ctxPair.RegularCtx.ServiceAccount().PreimageMeta[key]
	if !valid || !exists {
		// a = ∇ => (NONE, 0)
		regs[pvm.R8] = 0
		return gas, withCode(regs, NONE), mem, ctxPair, nil
	}

	regs[pvm.R7], regs[pvm.R8] = preimage.Pack(record)
	return gas, regs, mem, ctxPair, nil
}

// Solicit ΩS(ϱ, φ, μ, (x, y), t)
func Solicit(gas pvm.Gas, regs pvm.Registers, mem pvm.Memory, ctxPair pvm.AccumulateContextPair, timeslot jamtime.Timeslot) (pvm.Gas, pvm.Registers, pvm.Memory, pvm.AccumulateContextPair, error) {
	if gas < SolicitCost {
		return gas, regs, mem, ctxPair, pvm.ErrOutOfGas
	}
	gas -= SolicitCost

	key, valid, err := readPreimageKey(mem, regs[pvm.R7], regs[pvm.R8])
	if err != nil {
		return gas, regs, mem, ctxPair, err
	}
	if !valid {
		return gas, withCode(regs, HUH), mem, ctxPair, nil
	}

	a := ctxPair.RegularCtx.ServiceAccount().Clone()
	record, exists := a.PreimageMeta[key]
	updated, err := preimage.Solicit(record, exists, timeslot)
	if err != nil {
		return gas, withCode(regs, HUH), mem, ctxPair, nil
	}
	if a.PreimageMeta == nil {
		a.PreimageMeta = make(map[service.PreImageMetaKey]service.PreimageHistoricalTimeslots)
	}
	a.PreimageMeta[key] = updated

	// FULL if ab < at
	if a.Balance < a.ThresholdBalance() {
		return gas, withCode(regs, FULL), mem, ctxPair, nil
	}

	ctxPair.RegularCtx.AccumulationState.ServiceState[ctxPair.RegularCtx.ServiceId] = a
	return gas, withCode(regs, OK), mem, ctxPair, nil
}

// Forget ΩF(ϱ, φ, μ, (x, y), t)
func Forget(gas pvm.Gas, regs pvm.Registers, mem pvm.Memory, ctxPair pvm.AccumulateContextPair, timeslot jamtime.Timeslot) (pvm.Gas, pvm.Registers, pvm.Memory, pvm.AccumulateContextPair, error) {
	if gas < ForgetCost {
		return gas, regs, mem, ctxPair, pvm.ErrOutOfGas
	}
	gas -= ForgetCost

	key, valid, err := readPreimageKey(mem, regs[pvm.R7], regs[pvm.R8])
	if err != nil {
		return gas, regs, mem, ctxPair, err
	}
	if !valid {
		return gas, withCode(regs, HUH), mem, ctxPair, nil
	}

	a := ctxPair.RegularCtx.ServiceAccount().Clone()
	record, exists := a.PreimageMeta[key]
	updated, drop, err := preimage.Forget(record, exists, timeslot, constants.PreimageExpulsionPeriod)
	if err != nil {
		// not requested, or still inside the expulsion period
		return gas, withCode(regs, HUH), mem, ctxPair, nil
	}

	if drop {
		// K(al) = K((xs)l) ∖ {(h, z)}, K(ap) = K((xs)p) ∖ {h}
		delete(a.PreimageMeta, key)
		delete(a.PreimageLookup, key.Hash)
	} else {
		a.PreimageMeta[key] = updated
	}

	ctxPair.RegularCtx.AccumulationState.ServiceState[ctxPair.RegularCtx.ServiceId] = a
	return gas, withCode(regs, OK), mem, ctxPair, nil
}

// Yield ΩY(ϱ, φ, μ, (x, y))
func Yield(gas pvm.Gas, regs pvm.Registers, mem pvm.Memory, ctxPair pvm.AccumulateContextPair) (pvm.Gas, pvm.Registers, pvm.Memory, pvm.AccumulateContextPair, error) {
	if gas < YieldCost {
		return gas, regs, mem, ctxPair, pvm.ErrOutOfGas
	}
	gas -= YieldCost

	hBytes, err := readBytes(mem, regs[pvm.R7], crypto.HashSize)
	if err != nil {
		return gas, regs, mem, ctxPair, err
	}

	// (φ′7, x′_y) = (OK, h)
	h := crypto.Hash(hBytes)
	ctxPair.RegularCtx.AccumulationHash = &h

	return gas, withCode(regs, OK), mem, ctxPair, nil
}

// Provide ΩP(ϱ, φ, µ, (x, y), s)
func Provide(gas pvm.Gas, regs pvm.Registers, mem pvm.Memory, ctxPair pvm.AccumulateContextPair, serviceId block.ServiceId) (pvm.Gas, pvm.Registers, pvm.Memory, pvm.AccumulateContextPair, error) {
	if gas < ProvideCost {
		return gas, regs, mem, ctxPair, pvm.ErrOutOfGas
	}
	gas -= ProvideCost

	omega7, o, z := regs[pvm.R7], regs[pvm.R8], regs[pvm.R9]

	// i = µ[o..o+z]
	i, err := readBytes(mem, o, z)
	if err != nil {
		return gas, regs, mem, ctxPair, err
	}

	// s* = s if φ7 = 2^64 − 1, φ7 otherwise
	ss := serviceId
	if omega7 != math.MaxUint64 {
		if !isServiceId(omega7) {
			return gas, withCode(regs, WHO), mem, ctxPair, nil
		}
		ss = block.ServiceId(omega7)
	}

	a, ok := ctxPair.RegularCtx.AccumulationState.ServiceState[ss]
	if !ok {
		return gas, withCode(regs, WHO), mem, ctxPair, nil
	}

	// HUH if al[H(i), z] ≠ []
	record, ok := a.PreimageMeta[service.PreImageMetaKey{Hash: crypto.HashData(i), Length: service.PreimageLength(z)}]
	if !ok || preimage.StatusOf(record) != preimage.Unprovided {
		return gas, withCode(regs, HUH), mem, ctxPair, nil
	}

	// HUH if (s*, i) ∈ xp
	for _, p := range ctxPair.RegularCtx.ProvidedPreimages {
		if p.ServiceIndex == ss && bytes.Equal(p.Data, i) {
			return gas, withCode(regs, HUH), mem, ctxPair, nil
		}
	}

	// x′p = xp ∪ {(s*, i)}
	ctxPair.RegularCtx.ProvidedPreimages = append(ctxPair.RegularCtx.ProvidedPreimages, block.Preimage{
		ServiceIndex: ss,
		Data:         i,
	})

	return gas, withCode(regs, OK), mem, ctxPair, nil
}
