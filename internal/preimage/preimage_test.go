package preimage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/pvmhost/internal/jamtime"
)

const expulsionPeriod = jamtime.Timeslot(19_200)

func TestLifecycle(t *testing.T) {
	record, err := Solicit(nil, false, 0)
	require.NoError(t, err)
	assert.Equal(t, Unprovided, StatusOf(record))

	record, err = Provide(record, 0)
	require.NoError(t, err)
	assert.Equal(t, []jamtime.Timeslot{0}, record)

	record, drop, err := Forget(record, true, 0, expulsionPeriod)
	require.NoError(t, err)
	assert.False(t, drop)
	assert.Equal(t, Unrequested, StatusOf(record))
	assert.Equal(t, []jamtime.Timeslot{0, 0}, record)

	unchanged, drop, err := Forget(record, true, expulsionPeriod, expulsionPeriod)
	var notYet *ErrNotYet
	require.ErrorAs(t, err, &notYet)
	assert.Equal(t, expulsionPeriod, notYet.SuccessAfter)
	assert.False(t, drop)
	assert.Equal(t, record, unchanged)

	_, drop, err = Forget(record, true, expulsionPeriod+1, expulsionPeriod)
	require.NoError(t, err)
	assert.True(t, drop)
}

func TestForgetUnprovidedDrops(t *testing.T) {
	_, drop, err := Forget([]jamtime.Timeslot{}, true, 5, expulsionPeriod)
	require.NoError(t, err)
	assert.True(t, drop)

	_, _, err = Forget(nil, false, 5, expulsionPeriod)
	assert.ErrorIs(t, err, ErrNotRequested)
}

func TestRerequest(t *testing.T) {
	record, err := Solicit([]jamtime.Timeslot{1, 2}, true, 10)
	require.NoError(t, err)
	assert.Equal(t, Rerequested, StatusOf(record))
	assert.Equal(t, []jamtime.Timeslot{1, 2, 10}, record)

	_, err = Solicit(record, true, 11)
	assert.ErrorIs(t, err, ErrAlreadyRequested)
	_, err = Solicit([]jamtime.Timeslot{}, true, 11)
	assert.ErrorIs(t, err, ErrAlreadyRequested)

	unchanged, _, err := Forget(record, true, 2+expulsionPeriod, expulsionPeriod)
	var notYet *ErrNotYet
	require.ErrorAs(t, err, &notYet)
	assert.Equal(t, record, unchanged)

	record, drop, err := Forget(record, true, 3+expulsionPeriod, expulsionPeriod)
	require.NoError(t, err)
	assert.False(t, drop)
	assert.Equal(t, []jamtime.Timeslot{10, 3 + expulsionPeriod}, record)
}

func TestProvideOnlyUnprovided(t *testing.T) {
	_, err := Provide([]jamtime.Timeslot{3}, 4)
	assert.ErrorIs(t, err, ErrAlreadyProvided)
}

func TestStatusOfPanicsOnLongRecord(t *testing.T) {
	assert.Panics(t, func() { StatusOf([]jamtime.Timeslot{1, 2, 3, 4}) })
}

func TestAvailable(t *testing.T) {
	tests := []struct {
		record []jamtime.Timeslot
		t      jamtime.Timeslot
		want   bool
	}{
		{[]jamtime.Timeslot{}, 5, false},
		{[]jamtime.Timeslot{5}, 4, false},
		{[]jamtime.Timeslot{5}, 5, true},
		{[]jamtime.Timeslot{5, 8}, 7, true},
		{[]jamtime.Timeslot{5, 8}, 8, false},
		{[]jamtime.Timeslot{5, 8, 10}, 9, false},
		{[]jamtime.Timeslot{5, 8, 10}, 10, true},
		{[]jamtime.Timeslot{5, 8, 10}, 6, true},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Available(tc.record, tc.t), "record %v at %d", tc.record, tc.t)
	}
}

func TestPackUnpack(t *testing.T) {
	tests := []struct {
		record []jamtime.Timeslot
		r7, r8 uint64
	}{
		{[]jamtime.Timeslot{}, 0, 0},
		{[]jamtime.Timeslot{7}, 1 + 7<<32, 0},
		{[]jamtime.Timeslot{7, 9}, 2 + 7<<32, 9},
		{[]jamtime.Timeslot{7, 9, 11}, 3 + 7<<32, 9 + 11<<32},
	}
	for _, tc := range tests {
		r7, r8 := Pack(tc.record)
		assert.Equal(t, tc.r7, r7)
		assert.Equal(t, tc.r8, r8)

		record, ok := Unpack(r7, r8)
		require.True(t, ok)
		assert.Equal(t, tc.record, record)
	}

	_, ok := Unpack(4, 0)
	assert.False(t, ok)
}
