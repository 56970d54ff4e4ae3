package preimage

import (
	"math"

	"github.com/eigerco/pvmhost/internal/jamtime"
)

// Pack returns the two register words the query host call reports for a record:
//
//	[]        (0, 0)
//	[x]       (1 + x·2^32, 0)
//	[x, y]    (2 + x·2^32, y)
//	[x, y, z] (3 + x·2^32, y + z·2^32)
func Pack(record []jamtime.Timeslot) (uint64, uint64) {
	switch StatusOf(record) {
	case Unprovided:
		return 0, 0
	case Provided:
		return 1 + uint64(record[0])<<32, 0
	case Unrequested:
		return 2 + uint64(record[0])<<32, uint64(record[1])
	default:
		return 3 + uint64(record[0])<<32, uint64(record[1]) + uint64(record[2])<<32
	}
}

// Unpack reverses Pack. It reports false for a discriminant above three.
func Unpack(r7, r8 uint64) ([]jamtime.Timeslot, bool) {
	x := jamtime.Timeslot(r7 >> 32)
	switch r7 & math.MaxUint32 {
	case 0:
		return []jamtime.Timeslot{}, true
	case 1:
		return []jamtime.Timeslot{x}, true
	case 2:
		return []jamtime.Timeslot{x, jamtime.Timeslot(r8)}, true
	case 3:
		return []jamtime.Timeslot{x, jamtime.Timeslot(r8 & math.MaxUint32), jamtime.Timeslot(r8 >> 32)}, true
	}
	return nil, false
}
