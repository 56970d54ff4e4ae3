package jamtime

import (
	"cmp"
	"math"
	"time"
)

const (
	TimeslotDuration = 6 * time.Second
)

// Timeslot represents a 6-second window in JAM time
type Timeslot uint32

// Add returns ts + n, saturating at the last representable timeslot
func (ts Timeslot) Add(n uint32) Timeslot {
	if uint64(ts)+uint64(n) > math.MaxUint32 {
		return math.MaxUint32
	}
	return ts + Timeslot(n)
}

// NextTimeslot returns the next timeslot
func (ts Timeslot) NextTimeslot() Timeslot {
	return ts.Add(1)
}

// PreviousTimeslot returns the previous timeslot
func (ts Timeslot) PreviousTimeslot() Timeslot {
	if ts == 0 {
		return ts
	}
	return ts - 1
}

func (ts Timeslot) Compare(other Timeslot) int {
	return cmp.Compare(ts, other)
}
