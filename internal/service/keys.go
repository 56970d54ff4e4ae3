package service

import (
	"encoding/binary"
	"math"

	"github.com/eigerco/pvmhost/internal/block"
	"github.com/eigerco/pvmhost/internal/crypto"
)

const (
	// Chapter component for service account state keys.
	ChapterServiceIndex uint8 = 255
	// Hash component for storage state keys begins with this value little endian encoded.
	HashStorageIndex uint32 = math.MaxUint32
	// Hash component for preimage lookup state keys begins with this value little endian encoded.
	HashPreimageLookupIndex uint32 = math.MaxUint32 - 1
)

// StateKey is a 31 octet key of the merklized state. Distinct inputs may collide.
type StateKey [31]byte

// AccountKey is the key of the account record itself (eq. D.1 v0.6.7)
func AccountKey(s block.ServiceId) StateKey {
	var id [4]byte
	binary.LittleEndian.PutUint32(id[:], uint32(s))

	var result StateKey
	result[0] = ChapterServiceIndex
	result[1] = id[0]
	result[3] = id[1]
	result[5] = id[2]
	result[7] = id[3]
	return result
}

// serviceDictKey interleaves E4(s) with the first four octets of H(h) (eq. D.1 v0.6.7)
func serviceDictKey(s block.ServiceId, hashComponent []byte) StateKey {
	var id [4]byte
	binary.LittleEndian.PutUint32(id[:], uint32(s))
	hash := crypto.HashData(hashComponent)

	var result StateKey
	for i := 0; i < 4; i++ {
		result[2*i] = id[i]
		result[2*i+1] = hash[i]
	}
	copy(result[8:], hash[4:])
	return result
}

func prefixed(index uint32, rest []byte) []byte {
	out := make([]byte, 4+len(rest))
	binary.LittleEndian.PutUint32(out, index)
	copy(out[4:], rest)
	return out
}

// StorageKey ∀(s ↦ a) ∈ δ, (k ↦ v) ∈ as ∶ C(s, E4(2^32 − 1) ⌢ k) (eq. D.2 v0.6.7)
func StorageKey(s block.ServiceId, key []byte) StateKey {
	return serviceDictKey(s, prefixed(HashStorageIndex, key))
}

// PreimageLookupKey ∀(s ↦ a) ∈ δ, (h ↦ p) ∈ ap ∶ C(s, E4(2^32 − 2) ⌢ h) (eq. D.2 v0.6.7)
func PreimageLookupKey(s block.ServiceId, h crypto.Hash) StateKey {
	return serviceDictKey(s, prefixed(HashPreimageLookupIndex, h[:]))
}

// PreimageMetaKey ∀(s ↦ a) ∈ δ, ((h, l) ↦ t) ∈ al ∶ C(s, E4(l) ⌢ h) (eq. D.2 v0.6.7)
func PreimageMetaKey(s block.ServiceId, key PreImageMetaKey) StateKey {
	return serviceDictKey(s, prefixed(uint32(key.Length), key.Hash[:]))
}
