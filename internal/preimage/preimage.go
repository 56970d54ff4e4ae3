// Package preimage holds the request record state machine of solicited preimages.
// A record is keyed by (hash, length) and holds between zero and three timeslots:
//
//	[]          requested but not provided
//	[x]         provided at x
//	[x, y]      provided at x, forgotten at y
//	[x, y, z]   provided at x, forgotten at y, requested again at z
package preimage

import (
	"errors"
	"fmt"

	"github.com/eigerco/pvmhost/internal/jamtime"
)

var (
	ErrNotRequested     = errors.New("preimage not requested")
	ErrAlreadyRequested = errors.New("preimage already requested")
	ErrAlreadyProvided  = errors.New("preimage already provided")
)

// ErrNotYet is returned by Forget when the expulsion period of a forgotten
// preimage has not elapsed yet.
type ErrNotYet struct {
	SuccessAfter jamtime.Timeslot
}

func (e *ErrNotYet) Error() string {
	return fmt.Sprintf("preimage can not be forgotten before timeslot %d", e.SuccessAfter)
}

type Status uint8

const (
	Unprovided  Status = iota // []
	Provided                  // [x]
	Unrequested               // [x, y]
	Rerequested               // [x, y, z]
)

func (s Status) String() string {
	switch s {
	case Unprovided:
		return "unprovided"
	case Provided:
		return "provided"
	case Unrequested:
		return "unrequested"
	case Rerequested:
		return "rerequested"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// StatusOf decodes a record. Records longer than three slots cannot be produced
// by the transitions below, so meeting one is a broken invariant.
func StatusOf(record []jamtime.Timeslot) Status {
	if len(record) > 3 {
		panic(fmt.Sprintf("preimage request record with %d timeslots", len(record)))
	}
	return Status(len(record))
}

// Solicit requests a preimage. A missing record becomes [] and an unrequested
// record [x, y] becomes [x, y, now]. Any other record can not be solicited.
func Solicit(record []jamtime.Timeslot, exists bool, now jamtime.Timeslot) ([]jamtime.Timeslot, error) {
	if !exists {
		return []jamtime.Timeslot{}, nil
	}
	if StatusOf(record) == Unrequested {
		return []jamtime.Timeslot{record[0], record[1], now}, nil
	}
	return nil, ErrAlreadyRequested
}

// Forget applies the forget transition with expulsion period d (eq. B.24 v0.6.7).
// The returned drop flag tells the caller to remove both the record and the preimage.
func Forget(record []jamtime.Timeslot, exists bool, now, d jamtime.Timeslot) (updated []jamtime.Timeslot, drop bool, err error) {
	if !exists {
		return nil, false, ErrNotRequested
	}
	switch StatusOf(record) {
	case Unprovided:
		return nil, true, nil
	case Provided:
		return []jamtime.Timeslot{record[0], now}, false, nil
	case Unrequested:
		if expired(record[1], now, d) {
			return nil, true, nil
		}
		return record, false, &ErrNotYet{SuccessAfter: record[1].Add(uint32(d))}
	default:
		if expired(record[1], now, d) {
			return []jamtime.Timeslot{record[2], now}, false, nil
		}
		return record, false, &ErrNotYet{SuccessAfter: record[1].Add(uint32(d))}
	}
}

// expired is y < now - d, written without underflow
func expired(y, now, d jamtime.Timeslot) bool {
	return uint64(y)+uint64(d) < uint64(now)
}

// Expired reports whether a record forgotten at y can be expunged at now
func Expired(y, now, d jamtime.Timeslot) bool {
	return expired(y, now, d)
}

// Provide marks an unprovided record as provided at now
func Provide(record []jamtime.Timeslot, now jamtime.Timeslot) ([]jamtime.Timeslot, error) {
	if StatusOf(record) != Unprovided {
		return nil, ErrAlreadyProvided
	}
	return []jamtime.Timeslot{now}, nil
}

// Available is the historical availability function I(l, t) (eq. 9.7 v0.6.7)
func Available(record []jamtime.Timeslot, t jamtime.Timeslot) bool {
	switch StatusOf(record) {
	case Unprovided:
		return false
	case Provided:
		return record[0] <= t
	case Unrequested:
		return record[0] <= t && t < record[1]
	default:
		return (record[0] <= t && t < record[1]) || record[2] <= t
	}
}
