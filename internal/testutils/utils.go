package testutils

import (
	"crypto/rand"
	"fmt"
	"testing"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/pvmhost/internal/block"
	"github.com/eigerco/pvmhost/internal/crypto"
	"github.com/eigerco/pvmhost/internal/jamtime"
)

func RandomHash(t *testing.T) crypto.Hash {
	hash := make([]byte, crypto.HashSize)
	_, err := rand.Read(hash)
	require.NoError(t, err)
	return crypto.Hash(hash)
}

func RandomBytes(t *testing.T, n int) []byte {
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func RandomValidatorKey(t *testing.T) crypto.ValidatorKey {
	return crypto.ValidatorKey(RandomBytes(t, crypto.ValidatorKeySetLength))
}

func RandomServiceId(t *testing.T) block.ServiceId {
	var b [4]byte
	_, err := rand.Read(b[:])
	require.NoError(t, err)
	return block.ServiceId(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
}

func RandomTimeslot(t *testing.T) jamtime.Timeslot {
	var b [2]byte
	_, err := rand.Read(b[:])
	require.NoError(t, err)
	return jamtime.Timeslot(uint32(b[0]) | uint32(b[1])<<8)
}

// DiffDump renders a unified diff of the %+v dumps of two values, empty when they print the same
func DiffDump(expected, actual any) string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(fmt.Sprintf("%+v\n", expected)),
		B:        difflib.SplitLines(fmt.Sprintf("%+v\n", actual)),
		FromFile: "expected",
		ToFile:   "actual",
		Context:  2,
	})
	if err != nil {
		return err.Error()
	}
	return diff
}
