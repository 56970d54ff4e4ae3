// Package guest is the service side of the host-call boundary. Host calls report
// success, absence and failure through one 64 bit register, the wrappers here turn
// that register into Go values and errors so the sentinel values never reach
// service code.
package guest

import (
	"fmt"
	"math"
)

// ReturnCode the raw φ7 value a host call returned
type ReturnCode uint64

const (
	NONE ReturnCode = math.MaxUint64 - iota // the item does not exist
	WHAT                                    // name unknown
	OOB                                     // memory index not accessible
	WHO                                     // index unknown
	FULL                                    // storage full
	CORE                                    // core index unknown
	CASH                                    // insufficient funds
	LOW                                     // gas limit too low
	HUH                                     // action invalid
	OK  ReturnCode = 0
)

// LowestError every code at or above it is not a value
const LowestError = HUH

// ApiError a protocol level failure of a host call
type ApiError uint8

const (
	OutOfBounds ApiError = iota + 1
	IndexUnknown
	StorageFull
	BadCore
	NoCash
	GasLimitTooLow
	ActionInvalid
	UnknownCall
)

func (e ApiError) Error() string {
	switch e {
	case OutOfBounds:
		return "memory index not accessible"
	case IndexUnknown:
		return "index unknown"
	case StorageFull:
		return "storage full"
	case BadCore:
		return "core index unknown"
	case NoCash:
		return "insufficient funds"
	case GasLimitTooLow:
		return "gas limit too low"
	case ActionInvalid:
		return "action invalid"
	case UnknownCall:
		return "unknown host call"
	}
	return fmt.Sprintf("api error %d", uint8(e))
}

// Code returns the register value the host reports the error with
func (e ApiError) Code() ReturnCode {
	switch e {
	case OutOfBounds:
		return OOB
	case IndexUnknown:
		return WHO
	case StorageFull:
		return FULL
	case BadCore:
		return CORE
	case NoCash:
		return CASH
	case GasLimitTooLow:
		return LOW
	case ActionInvalid:
		return HUH
	case UnknownCall:
		return WHAT
	}
	panic(fmt.Sprintf("api error %d has no return code", uint8(e)))
}

func (r ReturnCode) apiError() (ApiError, bool) {
	switch r {
	case OOB:
		return OutOfBounds, true
	case WHO:
		return IndexUnknown, true
	case FULL:
		return StorageFull, true
	case CORE:
		return BadCore, true
	case CASH:
		return NoCash, true
	case LOW:
		return GasLimitTooLow, true
	case HUH:
		return ActionInvalid, true
	case WHAT:
		return UnknownCall, true
	}
	return 0, false
}

// IsValue reports whether r carries a value rather than a sentinel
func (r ReturnCode) IsValue() bool {
	return r < LowestError
}

// IntoOption NONE is absence, any error code is a contract violation
func (r ReturnCode) IntoOption() (uint64, bool) {
	if r.IsValue() {
		return uint64(r), true
	}
	if r == NONE {
		return 0, false
	}
	panic(fmt.Sprintf("unexpected host call return code %#x", uint64(r)))
}

// IntoResult NONE is a contract violation here, error codes map to their ApiError
func (r ReturnCode) IntoResult() (uint64, error) {
	if r.IsValue() {
		return uint64(r), nil
	}
	if apiErr, ok := r.apiError(); ok {
		return 0, apiErr
	}
	panic(fmt.Sprintf("unexpected host call return code %#x", uint64(r)))
}

// IntoOptionResult for calls that can both find nothing and fail
func (r ReturnCode) IntoOptionResult() (uint64, bool, error) {
	if r == NONE {
		return 0, false, nil
	}
	v, err := r.IntoResult()
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

func (r ReturnCode) IntoU32Option() (uint32, bool) {
	v, ok := r.IntoOption()
	return narrow(v), ok
}

func (r ReturnCode) IntoU32Result() (uint32, error) {
	v, err := r.IntoResult()
	return narrow(v), err
}

func narrow(v uint64) uint32 {
	if v > math.MaxUint32 {
		panic(fmt.Sprintf("host call value %d does not fit in 32 bits", v))
	}
	return uint32(v)
}

// intoUnit for calls that only report OK or an error
func (r ReturnCode) intoUnit() error {
	_, err := r.IntoResult()
	return err
}
