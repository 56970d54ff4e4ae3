package host_call

import (
	"bytes"
	"fmt"
	"math"
	"slices"

	"github.com/eigerco/pvmhost/internal/block"
	"github.com/eigerco/pvmhost/internal/constants"
	"github.com/eigerco/pvmhost/internal/crypto"
	"github.com/eigerco/pvmhost/internal/pvm"
	"github.com/eigerco/pvmhost/internal/service"
	"github.com/eigerco/pvmhost/pkg/log"
	"github.com/eigerco/pvmhost/pkg/serialization/codec/jam"
)

// Fetch data kinds selected by φ10
const (
	FetchChainConstants = 0
	FetchEntropy        = 1
	FetchPayload        = 13
	FetchAllItems       = 14
	FetchItem           = 15
)

// FetchSource the data an invocation exposes through the fetch host call.
// Items are already encoded operands (accumulate) or transfers (on-transfer).
type FetchSource struct {
	Entropy  *crypto.Hash // n
	Payloads [][]byte     // y of every work item of the package
	Items    [][]byte     // o
}

// GasRemaining ΩG(ϱ, φ, ...)
func GasRemaining(gas pvm.Gas, regs pvm.Registers) (pvm.Gas, pvm.Registers, error) {
	if gas < GasRemainingCost {
		return gas, regs, pvm.ErrOutOfGas
	}
	gas -= GasRemainingCost

	// Set the new ϱ' value into φ′7
	regs[pvm.A0] = uint64(gas)

	return gas, regs, nil
}

// Fetch ΩY(ϱ, φ, µ, ...) restricted to the kinds an invocation of this host can serve,
// any other kind reads as absent
func Fetch(gas pvm.Gas, regs pvm.Registers, mem pvm.Memory, src FetchSource) (pvm.Gas, pvm.Registers, pvm.Memory, error) {
	if gas < FetchCost {
		return gas, regs, mem, pvm.ErrOutOfGas
	}
	gas -= FetchCost

	output := regs[pvm.A0] // φ7
	offset := regs[pvm.A1] // φ8
	length := regs[pvm.A2] // φ9
	dataID := regs[pvm.A3] // φ10
	idx := regs[pvm.A4]    // φ11

	var v []byte
	switch dataID {
	case FetchChainConstants:
		v = GetChainConstants()
	case FetchEntropy:
		if src.Entropy != nil {
			v = src.Entropy[:]
		}
	case FetchPayload:
		if idx < uint64(len(src.Payloads)) {
			v = src.Payloads[idx]
		}
	case FetchAllItems:
		if len(src.Items) > 0 {
			// E(↕o)
			prefix, err := jam.Marshal(uint(len(src.Items)))
			if err != nil {
				return gas, regs, mem, pvm.ErrPanicf("%v", err)
			}
			v = slices.Concat(append([][]byte{prefix}, src.Items...)...)
		}
	case FetchItem:
		if idx < uint64(len(src.Items)) {
			v = src.Items[idx]
		}
	}

	if v == nil {
		return gas, withCode(regs, NONE), mem, nil
	}

	if err := writeFromOffset(&mem, output, v, offset, length); err != nil {
		return gas, regs, mem, err
	}

	regs[pvm.A0] = uint64(len(v))
	return gas, regs, mem, nil
}

// resolveAccount a = s if φ7 ∈ {s, 2^64 − 1}, d[φ7] if φ7 ∈ K(d), ∅ otherwise
func resolveAccount(omega7 uint64, s service.ServiceAccount, serviceId block.ServiceId, serviceState service.ServiceState) (service.ServiceAccount, bool) {
	if omega7 == math.MaxUint64 || omega7 == uint64(serviceId) {
		return s, true
	}
	if omega7 > math.MaxUint32 {
		return service.ServiceAccount{}, false
	}
	a, ok := serviceState[block.ServiceId(omega7)]
	return a, ok
}

// Lookup ΩL(ϱ, φ, μ, s, s, d)
func Lookup(gas pvm.Gas, regs pvm.Registers, mem pvm.Memory, s service.ServiceAccount, serviceId block.ServiceId, serviceState service.ServiceState) (pvm.Gas, pvm.Registers, pvm.Memory, error) {
	if gas < LookupCost {
		return gas, regs, mem, pvm.ErrOutOfGas
	}
	gas -= LookupCost

	// let [h, o] = φ₈‥₊₂
	h, o := regs[pvm.A1], regs[pvm.A2]

	// let v = ∇ if N_h‥₊₃₂ ⊄ Vμ
	key, err := readBytes(mem, h, crypto.HashSize)
	if err != nil {
		return gas, regs, mem, err
	}

	a, ok := resolveAccount(regs[pvm.A0], s, serviceId, serviceState)
	if !ok {
		return gas, withCode(regs, NONE), mem, nil
	}

	// let v = ∅ otherwise if μ_h‥₊₃₂ ∉ K(aₚ)
	v, exists := a.PreimageLookup[crypto.Hash(key)]
	if !exists {
		return gas, withCode(regs, NONE), mem, nil
	}

	// let f = min(φ₁₀, |v|), l = min(φ₁₁, |v| − f), μ′_o‥₊l = v_f‥₊l
	if err := writeFromOffset(&mem, o, v, regs[pvm.A3], regs[pvm.A4]); err != nil {
		return gas, regs, mem, err
	}

	regs[pvm.A0] = uint64(len(v))
	return gas, regs, mem, nil
}

// Read ΩR(ϱ, φ, μ, s, s, d)
func Read(gas pvm.Gas, regs pvm.Registers, mem pvm.Memory, s service.ServiceAccount, serviceId block.ServiceId, serviceState service.ServiceState) (pvm.Gas, pvm.Registers, pvm.Memory, error) {
	if gas < ReadCost {
		return gas, regs, mem, pvm.ErrOutOfGas
	}
	gas -= ReadCost

	// let [ko, kz, o] = φ8..+3
	ko, kz, o := regs[pvm.A1], regs[pvm.A2], regs[pvm.A3]

	k, err := readBytes(mem, ko, kz)
	if err != nil {
		return gas, regs, mem, err
	}

	a, ok := resolveAccount(regs[pvm.A0], s, serviceId, serviceState)
	if !ok {
		return gas, withCode(regs, NONE), mem, nil
	}

	v, exists := a.GetStorage(k)
	if !exists {
		return gas, withCode(regs, NONE), mem, nil
	}

	if err = writeFromOffset(&mem, o, v, regs[pvm.A4], regs[pvm.A5]); err != nil {
		return gas, regs, mem, err
	}

	regs[pvm.A0] = uint64(len(v))
	return gas, regs, mem, nil
}

// Write ΩW(ϱ, φ, μ, s, s)
// The returned account is s itself on every path that does not commit the write.
func Write(gas pvm.Gas, regs pvm.Registers, mem pvm.Memory, s service.ServiceAccount) (pvm.Gas, pvm.Registers, pvm.Memory, service.ServiceAccount, error) {
	if gas < WriteCost {
		return gas, regs, mem, s, pvm.ErrOutOfGas
	}
	gas -= WriteCost

	ko, kz, vo, vz := regs[pvm.A0], regs[pvm.A1], regs[pvm.A2], regs[pvm.A3]

	k, err := readBytes(mem, ko, kz)
	if err != nil {
		return gas, regs, mem, s, err
	}

	a := s.Clone()
	if vz == 0 {
		a.DeleteStorage(k)
	} else {
		v, err := readBytes(mem, vo, vz)
		if err != nil {
			return gas, regs, mem, s, err
		}
		a.InsertStorage(k, v)
	}

	// let l = |s_s[k]| if k ∈ K(s_s), NONE otherwise
	l := uint64(NONE)
	if old, ok := s.GetStorage(k); ok {
		l = uint64(len(old))
	}

	// (▸, FULL, s) if a_t > a_b
	if a.ThresholdBalance() > a.Balance {
		return gas, withCode(regs, FULL), mem, s, nil
	}

	regs[pvm.A0] = l
	return gas, regs, mem, a, nil
}

// Info ΩI(ϱ, φ, μ, s, d)
func Info(gas pvm.Gas, regs pvm.Registers, mem pvm.Memory, serviceId block.ServiceId, serviceState service.ServiceState) (pvm.Gas, pvm.Registers, pvm.Memory, error) {
	if gas < InfoCost {
		return gas, regs, mem, pvm.ErrOutOfGas
	}
	gas -= InfoCost

	omega7, o := regs[pvm.A0], regs[pvm.A1]

	account, exists := serviceState[serviceId]
	if omega7 != math.MaxUint64 {
		if omega7 > math.MaxUint32 {
			return gas, withCode(regs, NONE), mem, nil
		}
		account, exists = serviceState[block.ServiceId(omega7)]
	}
	if !exists {
		return gas, withCode(regs, NONE), mem, nil
	}

	// E(ac, E(ab, at, ag, am, ao), E(ai))
	v, err := jam.Marshal(account.Info())
	if err != nil {
		return gas, regs, mem, pvm.ErrPanicf("%v", err)
	}

	if err = writeFromOffset(&mem, o, v, regs[pvm.A2], regs[pvm.A3]); err != nil {
		return gas, regs, mem, err
	}

	// φ′7 = |v|
	regs[pvm.A0] = uint64(len(v))

	return gas, regs, mem, nil
}

// Log a debugging message from the service or authorizer to the node operator.
// It never fails the invocation, unreadable target or message bytes are logged as an error.
func Log(gas pvm.Gas, regs pvm.Registers, mem pvm.Memory, core *uint16, serviceId *block.ServiceId) (pvm.Gas, pvm.Registers, pvm.Memory, error) {
	if gas < LogCost {
		return gas, regs, mem, pvm.ErrOutOfGas
	}
	gas -= LogCost

	fullMsg := &bytes.Buffer{}

	switch regs[pvm.A0] {
	case 0:
		fullMsg.WriteString("FATAL")
	case 1:
		fullMsg.WriteString("WARNING")
	case 2:
		fullMsg.WriteString("INFO")
	case 3:
		fullMsg.WriteString("HELP")
	case 4:
		fullMsg.WriteString("PEDANT")
	default:
		fullMsg.WriteString("UNKNOWN")
	}

	if core != nil {
		_, _ = fmt.Fprintf(fullMsg, "@%d", *core)
	}
	if serviceId != nil {
		_, _ = fmt.Fprintf(fullMsg, "#%d", *serviceId)
	}

	to, tz, xo, xz := regs[pvm.A1], regs[pvm.A2], regs[pvm.A3], regs[pvm.A4]

	if to != 0 && tz != 0 {
		target, err := readBytes(mem, to, tz)
		if err != nil {
			log.VM.Error().Msgf("unable to access memory for target: address %d length %d", to, tz)
		}
		_, _ = fmt.Fprintf(fullMsg, " %s", target)
	}

	msg, err := readBytes(mem, xo, xz)
	if err != nil {
		log.VM.Error().Msgf("unable to access memory for message: address %d length %d", xo, xz)
	}
	_, _ = fmt.Fprintf(fullMsg, " %s", msg)

	log.VM.Info().Str("msg", fullMsg.String()).Msg("Service log")
	return gas, withCode(regs, WHAT), mem, nil
}

// encodedChainConstants c = E(E8(BI), E8(BL), E8(BS), E2(C), E4(D), E8(GA), E8(GI), E8(GR),
// E2(Q), E2(V), E4(WC), E4(WE), E4(WG), E4(WM), E4(WP), E4(WT), E4(S))
var encodedChainConstants = slices.Concat(
	jam.EncodeUint64(constants.AdditionalMinimumBalancePerItem, 8),      // BI
	jam.EncodeUint64(constants.AdditionalMinimumBalancePerOctet, 8),     // BL
	jam.EncodeUint64(constants.BasicMinimumBalance, 8),                  // BS
	jam.EncodeUint64(uint64(constants.TotalNumberOfCores), 2),           // C
	jam.EncodeUint64(constants.PreimageExpulsionPeriod, 4),              // D
	jam.EncodeUint64(constants.MaxAllocatedGasAccumulation, 8),          // GA
	jam.EncodeUint64(constants.MaxAllocatedGasIsAuthorized, 8),          // GI
	jam.EncodeUint64(constants.MaxAllocatedGasRefine, 8),                // GR
	jam.EncodeUint64(constants.PendingAuthorizersQueueSize, 2),          // Q
	jam.EncodeUint64(constants.NumberOfValidators, 2),                   // V
	jam.EncodeUint64(constants.MaxSizeServiceCode, 4),                   // W_C
	jam.EncodeUint64(constants.ErasureCodingChunkSize, 4),               // W_E
	jam.EncodeUint64(constants.SegmentSize, 4),                          // W_G
	jam.EncodeUint64(constants.MaxExportsPerPackage, 4),                 // W_M
	jam.EncodeUint64(constants.NumberOfErasureCodecPiecesInSegment, 4),  // W_P
	jam.EncodeUint64(constants.TransferMemoSizeBytes, 4),                // W_T
	jam.EncodeUint64(constants.MinimumPublicServiceIndex, 4),            // S
)

func GetChainConstants() []byte {
	return encodedChainConstants
}
