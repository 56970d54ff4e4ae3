package jam

// serializeTrivialNatural E_l(x) the trivial little-endian encoding of x in l octets (eq. C.5 v0.7.2)
func serializeTrivialNatural[T ~uint8 | ~uint16 | ~uint32 | ~uint64](x T, l uint) []byte {
	out := make([]byte, l)
	for i := uint(0); i < l && i < 8; i++ {
		out[i] = byte(uint64(x) >> (8 * i))
	}
	return out
}

// deserializeTrivialNatural E_l^-1(b)
func deserializeTrivialNatural[T ~uint8 | ~uint16 | ~uint32 | ~uint64](serialized []byte, u *T) {
	var v uint64
	for i := 0; i < len(serialized) && i < 8; i++ {
		v |= uint64(serialized[i]) << (8 * i)
	}
	*u = T(v)
}

// EncodeUint64 E_l(x) for up to eight octets
func EncodeUint64(x uint64, l uint) []byte {
	return serializeTrivialNatural(x, l)
}

// DecodeUint64 E^-1 of up to eight little-endian octets
func DecodeUint64(b []byte) uint64 {
	var v uint64
	deserializeTrivialNatural(b, &v)
	return v
}
