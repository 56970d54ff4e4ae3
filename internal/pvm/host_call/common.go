package host_call

import (
	"math"

	"github.com/eigerco/pvmhost/internal/pvm"
	"github.com/eigerco/pvmhost/pkg/serialization/codec/jam"
)

const (
	GasRemainingCost pvm.Gas = 10
	LookupCost
	ReadCost
	WriteCost
	InfoCost
	BlessCost
	AssignCost
	DesignateCost
	CheckpointCost
	NewCost
	UpgradeCost
	TransferBaseCost
	EjectCost
	QueryCost
	SolicitCost
	ForgetCost
	YieldCost
	ProvideCost
	HistoricalLookupCost
	FetchCost
	ExportCost
	MachineCost
	PeekCost
	PokeCost
	ZeroCost
	VoidCost
	InvokeCost
	ExpungeCost
	LogCost
	UnknownCost
)

// host call indices, these are part of the guest ABI and never change
const (
	GasID = iota
	LookupID
	ReadID
	WriteID
	InfoID

	// Accumulate Functions
	BlessID
	AssignID
	DesignateID
	CheckpointID
	NewID
	UpgradeID
	TransferID
	EjectID
	QueryID
	SolicitID
	ForgetID
	YieldID

	// Refine Functions
	HistoricalLookupID
	FetchID
	ExportID
	MachineID
	PeekID
	PokeID
	ZeroID
	VoidID
	InvokeID
	ExpungeID

	ProvideID

	LogID = 100
)

type Code uint64

const (
	NONE Code = math.MaxUint64 - iota
	WHAT
	OOB
	WHO
	FULL
	CORE
	CASH
	LOW
	HUH
	OK Code = 0
)

// LowestError every value at or above it is an error code
const LowestError = HUH

// Inner pvm invocations have their own set of result codes
const (
	HALT  = 0 // The invocation completed and halted normally.
	PANIC = 1 // The invocation completed with a panic.
	FAULT = 2 // The invocation completed with a page fault.
	HOST  = 3 // The invocation completed with a host-call fault.
	OOG   = 4 // The invocation completed by running out of gas.
)

func (r Code) String() string {
	switch r {
	case NONE:
		return "item does not exist"
	case WHAT:
		return "name unknown"
	case OOB:
		return "the return value for memory index provided is not accessible"
	case WHO:
		return "index unknown"
	case FULL:
		return "storage full"
	case CORE:
		return "core index unknown"
	case CASH:
		return "insufficient funds"
	case LOW:
		return "gas limit too low"
	case HUH:
		return "the item is already solicited or cannot be forgotten"
	case OK:
		return "success"
	}
	return "unknown"
}

// HostCallName returns a human-readable name for a host call ID
func HostCallName(id uint64) string {
	switch id {
	case GasID:
		return "gas"
	case LookupID:
		return "lookup"
	case ReadID:
		return "read"
	case WriteID:
		return "write"
	case InfoID:
		return "info"
	case BlessID:
		return "bless"
	case AssignID:
		return "assign"
	case DesignateID:
		return "designate"
	case CheckpointID:
		return "checkpoint"
	case NewID:
		return "new"
	case UpgradeID:
		return "upgrade"
	case TransferID:
		return "transfer"
	case EjectID:
		return "eject"
	case QueryID:
		return "query"
	case SolicitID:
		return "solicit"
	case ForgetID:
		return "forget"
	case YieldID:
		return "yield"
	case HistoricalLookupID:
		return "historical_lookup"
	case FetchID:
		return "fetch"
	case ExportID:
		return "export"
	case MachineID:
		return "machine"
	case PeekID:
		return "peek"
	case PokeID:
		return "poke"
	case ZeroID:
		return "zero"
	case VoidID:
		return "void"
	case InvokeID:
		return "invoke"
	case ExpungeID:
		return "expunge"
	case ProvideID:
		return "provide"
	case LogID:
		return "log"
	default:
		return "unknown"
	}
}

// Unknown an index no host call is bound to, only the base charge is taken and φ7 = WHAT
func Unknown(gas pvm.Gas, regs pvm.Registers) (pvm.Gas, pvm.Registers, error) {
	if gas < UnknownCost {
		return gas, regs, pvm.ErrOutOfGas
	}
	return gas - UnknownCost, withCode(regs, WHAT), nil
}

func readNumber[U interface{ ~uint32 | ~uint64 | ~int64 }](mem pvm.Memory, addr uint64, length int) (u U, err error) {
	b, err := readBytes(mem, addr, uint64(length))
	if err != nil {
		return 0, err
	}
	return U(jam.DecodeUint64(b)), nil
}

// readBytes μ_addr...+length, any fault panics the caller
func readBytes(mem pvm.Memory, addr, length uint64) ([]byte, error) {
	if addr > math.MaxUint32 || length > math.MaxUint32 {
		return nil, pvm.ErrPanicf("inaccessible memory, address out of range")
	}
	// the range is checked before the buffer is sized by a guest controlled length
	if err := mem.Check(uint32(addr), length, pvm.ReadOnly); err != nil {
		return nil, pvm.ErrPanicf("%v", err)
	}
	b := make([]byte, length)
	if err := mem.Read(uint32(addr), b); err != nil {
		return nil, pvm.ErrPanicf("%v", err)
	}
	return b, nil
}

func withCode(regs pvm.Registers, s Code) pvm.Registers {
	regs[pvm.A0] = uint64(s)
	return regs
}

func writeFromOffset(
	mem *pvm.Memory,
	addressToWrite uint64,
	data []byte,
	offset uint64,
	length uint64,
) error {
	vLen := uint64(len(data))

	f := min(offset, vLen)
	l := min(length, vLen-f)

	if l > 0 {
		sliceToWrite := data[f : f+l]
		if addressToWrite > math.MaxUint32 {
			return pvm.ErrPanicf("inaccessible memory, address out of range")
		}
		if err := mem.Write(uint32(addressToWrite), sliceToWrite); err != nil {
			return pvm.ErrPanicf("out-of-bounds write at address %d", addressToWrite)
		}
	}
	return nil
}
