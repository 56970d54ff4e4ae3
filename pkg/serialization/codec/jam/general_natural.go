package jam

import (
	"encoding/binary"
	"math"
	"math/bits"
)

// serializeUint64 implements the general natural formula E(x) able to encode naturals of up to 2^64 (eq. C.6 v0.7.2)
func serializeUint64(x uint64) []byte {
	var l uint8
	// Determine the length needed to represent the value
	for l = 0; l < 8; l++ {
		if x < (1 << (7 * (l + 1))) {
			break
		}
	}
	out := make([]byte, 0, l+1)
	if l < 8 {
		prefix := uint8((256 - (1 << (8 - l))) + (x>>(8*l))&math.MaxUint8)
		out = append(out, prefix)
	} else {
		out = append(out, math.MaxUint8)
	}
	for i := 0; i < int(l); i++ {
		out = append(out, uint8((x>>(8*i))&math.MaxUint8))
	}
	return out
}

// compactLength l the number of octets following the prefix byte of a compact natural
func compactLength(prefix byte) uint8 {
	return uint8(bits.LeadingZeros8(^prefix))
}

// deserializeUint64WithLength deserializes a compact natural whose prefix announced `l` trailing octets
func deserializeUint64WithLength(serialized []byte, l uint8, u *uint64) error {
	*u = 0

	n := len(serialized)
	if n == 0 {
		return nil
	}

	if l == 8 {
		if serialized[0] != math.MaxUint8 {
			return errFirstByteNineByteSerialization
		}
		*u = binary.LittleEndian.Uint64(serialized[1:9])
		return nil
	}

	for i := uint8(0); i < l; i++ {
		*u |= uint64(serialized[i+1]) << (8 * i)
	}
	*u |= uint64(serialized[0]&(math.MaxUint8>>l)) << (8 * l)

	return nil
}

// EncodeCompact the general natural encoding of x
func EncodeCompact(x uint64) []byte {
	return serializeUint64(x)
}
