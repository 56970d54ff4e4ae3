package guest

import (
	"fmt"

	"github.com/eigerco/pvmhost/pkg/serialization/codec/jam"
)

// GetValue reads the value stored under the encoding of key and decodes it as a T,
// nil service is the caller. A value that does not decode as a T is a contract violation.
func GetValue[T any](e *Env, service *uint32, key any) (T, bool) {
	var v T
	b, ok := e.Read(service, encodeKey(key))
	if !ok {
		return v, false
	}
	if err := jam.Unmarshal(b, &v); err != nil {
		panic(fmt.Sprintf("decoding %T: %v", v, err))
	}
	return v, true
}

// SetValue stores the encoding of value under the encoding of key in the caller's storage
func SetValue[T any](e *Env, key any, value T) error {
	b, err := jam.Marshal(value)
	if err != nil {
		panic(fmt.Sprintf("encoding %T: %v", value, err))
	}
	_, _, err = e.Write(encodeKey(key), b)
	return err
}

// RemoveValue removes the value stored under the encoding of key
func RemoveValue(e *Env, key any) (bool, error) {
	_, existed, err := e.Remove(encodeKey(key))
	return existed, err
}

// encodeKey a []byte key is used as is so typed values can sit next to raw Read and Write keys
func encodeKey(key any) []byte {
	if b, ok := key.([]byte); ok {
		return b
	}
	b, err := jam.Marshal(key)
	if err != nil {
		panic(fmt.Sprintf("encoding key %T: %v", key, err))
	}
	return b
}
