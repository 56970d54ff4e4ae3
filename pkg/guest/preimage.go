package guest

import (
	"errors"
	"fmt"

	"github.com/eigerco/pvmhost/internal/constants"
	"github.com/eigerco/pvmhost/internal/jamtime"
	"github.com/eigerco/pvmhost/internal/preimage"
)

// LookupRequestStatus the request record of a solicited preimage as reported by query
type LookupRequestStatus struct {
	Slots []jamtime.Timeslot
}

// DecodeLookupRequestStatus unpacks the two words of a query result, a discriminant
// above three is a contract violation
func DecodeLookupRequestStatus(r7, r8 uint64) LookupRequestStatus {
	slots, ok := preimage.Unpack(r7, r8)
	if !ok {
		panic(fmt.Sprintf("invalid lookup request status discriminant %d", uint32(r7)))
	}
	return LookupRequestStatus{Slots: slots}
}

func (s LookupRequestStatus) Status() preimage.Status {
	return preimage.StatusOf(s.Slots)
}

// ProvidedAt the slot the preimage was provided at, if it is currently held
func (s LookupRequestStatus) ProvidedAt() (jamtime.Timeslot, bool) {
	switch s.Status() {
	case preimage.Provided:
		return s.Slots[0], true
	case preimage.Rerequested:
		return s.Slots[0], true
	}
	return 0, false
}

type ForgetKind uint8

const (
	// ForgetDrop the request was never provided and is dropped with its deposit
	ForgetDrop ForgetKind = iota
	// ForgetUnrequest the preimage becomes unavailable for lookup, the deposit stays
	ForgetUnrequest
	// ForgetExpunge the record and the preimage are removed with their deposit
	ForgetExpunge
	// ForgetNotYetUnrequest forget fails until SuccessAfter, then unrequests
	ForgetNotYetUnrequest
	// ForgetNotYetExpunge forget fails until SuccessAfter, then expunges
	ForgetNotYetExpunge
)

// ForgetImplication what a forget of the request would do
type ForgetImplication struct {
	Kind         ForgetKind
	SuccessAfter jamtime.Timeslot
}

// ForgetImplication the effect of calling forget on this record at now
func (s LookupRequestStatus) ForgetImplication(now jamtime.Timeslot) ForgetImplication {
	_, drop, err := preimage.Forget(s.Slots, true, now, constants.PreimageExpulsionPeriod)
	status := s.Status()
	var notYet *preimage.ErrNotYet
	switch {
	case errors.As(err, &notYet) && status == preimage.Unrequested:
		return ForgetImplication{Kind: ForgetNotYetExpunge, SuccessAfter: notYet.SuccessAfter}
	case errors.As(err, &notYet):
		return ForgetImplication{Kind: ForgetNotYetUnrequest, SuccessAfter: notYet.SuccessAfter}
	case status == preimage.Unprovided:
		return ForgetImplication{Kind: ForgetDrop}
	case drop:
		return ForgetImplication{Kind: ForgetExpunge}
	}
	return ForgetImplication{Kind: ForgetUnrequest}
}
