package crypto

import (
	"bytes"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

type Hash [HashSize]byte

// HashData H(m) the blake2b-256 hash of the input
func HashData(data []byte) Hash {
	return blake2b.Sum256(data)
}

// HashConcat hashes the concatenation of the given byte sequences without
// building the concatenated slice first.
func HashConcat(parts ...[]byte) Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err) // only fails for an oversized key
	}
	for _, p := range parts {
		h.Write(p)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Compare orders hashes lexicographically by their bytes.
func (h Hash) Compare(other Hash) int {
	return bytes.Compare(h[:], other[:])
}

func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// ValidatorKey is the opaque 336 octet validator key set k ∈ K (eq. 6.8 v0.7.2)
type ValidatorKey [ValidatorKeySetLength]byte
