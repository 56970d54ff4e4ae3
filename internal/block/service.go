package block

import (
	"cmp"
)

// ServiceId NS ≡ N_2^32 the set of service identifiers (eq. 9.1 v0.7.2)
type ServiceId uint32

// Compare orders service ids numerically.
func (s ServiceId) Compare(other ServiceId) int {
	return cmp.Compare(s, other)
}

// CoreIndex NC the index of a compute core
type CoreIndex uint16

// Compare orders core indices numerically.
func (c CoreIndex) Compare(other CoreIndex) int {
	return cmp.Compare(c, other)
}

// Preimage a blob provided for a service, either through the extrinsic or the provide host call.
type Preimage struct {
	ServiceIndex ServiceId
	Data         []byte
}
