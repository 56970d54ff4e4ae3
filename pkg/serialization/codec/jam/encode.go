package jam

import (
	"bytes"
	"fmt"
	"io"
	"reflect"
	"strconv"
)

// Marshaler is the interface implemented by types that can marshal themselves
// into valid JAM encoded data.
type Marshaler interface {
	MarshalJAM() ([]byte, error)
}

func Marshal(v any) ([]byte, error) {
	buffer := bytes.NewBuffer(nil)
	bw := byteWriter{Writer: buffer}
	if err := bw.marshal(v); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

type byteWriter struct {
	io.Writer
}

func (bw *byteWriter) marshal(in any) error {
	if marshaler, ok := in.(Marshaler); ok {
		b, err := marshaler.MarshalJAM()
		if err != nil {
			return err
		}
		_, err = bw.Write(b)
		return err
	}

	switch v := in.(type) {
	case int:
		return bw.encodeCompact(uint64(v))
	case uint:
		return bw.encodeCompact(uint64(v))
	case uint8, uint16, uint32, uint64, int8, int16, int32, int64:
		l, err := IntLength(v)
		if err != nil {
			return err
		}
		return bw.encodeFixedWidth(v, l)
	case []byte:
		return bw.encodeBytes(v)
	case string:
		return bw.encodeBytes([]byte(v))
	case BitSequence:
		return bw.encodeBits(v)
	case bool:
		return bw.encodeBool(v)
	default:
		return bw.handleReflectTypes(v)
	}
}

func (bw *byteWriter) handleReflectTypes(in any) error {
	val := reflect.ValueOf(in)
	switch val.Kind() {
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return bw.encodeCustomPrimitive(val)
	case reflect.String:
		return bw.encodeBytes([]byte(val.String()))
	case reflect.Ptr:
		if err := bw.writePointerMarker(val.IsNil()); err != nil {
			return err
		}
		if val.IsNil() {
			return nil
		}
		return bw.marshal(val.Elem().Interface())
	case reflect.Struct:
		return bw.encodeStruct(val)
	case reflect.Array:
		if val.Type().Elem().Kind() == reflect.Uint8 {
			return bw.encodeByteArray(val)
		}
		return bw.encodeArray(val)
	case reflect.Slice:
		if val.Type().Elem().Kind() == reflect.Uint8 {
			return bw.encodeBytes(val.Bytes())
		}
		return bw.encodeSlice(val)
	default:
		return fmt.Errorf(ErrUnsupportedType, in)
	}
}

// encodeCustomPrimitive encodes named primitive types (eg. ServiceId) as their underlying kind
func (bw *byteWriter) encodeCustomPrimitive(val reflect.Value) error {
	switch val.Kind() {
	case reflect.Bool:
		return bw.encodeBool(val.Bool())
	case reflect.Int, reflect.Uint:
		return bw.encodeCompact(convertToUint(val))
	case reflect.Int8, reflect.Uint8:
		return bw.encodeFixedWidth(uint8(convertToUint(val)), 1)
	case reflect.Int16, reflect.Uint16:
		return bw.encodeFixedWidth(uint16(convertToUint(val)), 2)
	case reflect.Int32, reflect.Uint32:
		return bw.encodeFixedWidth(uint32(convertToUint(val)), 4)
	case reflect.Int64, reflect.Uint64:
		return bw.encodeFixedWidth(convertToUint(val), 8)
	default:
		return fmt.Errorf(ErrUnsupportedType, val.Interface())
	}
}

func convertToUint(val reflect.Value) uint64 {
	if val.CanInt() {
		return uint64(val.Int())
	}
	return val.Uint()
}

func (bw *byteWriter) encodeSlice(v reflect.Value) error {
	if err := bw.encodeLength(v.Len()); err != nil {
		return err
	}
	return bw.encodeArray(v)
}

func (bw *byteWriter) encodeArray(v reflect.Value) error {
	for i := 0; i < v.Len(); i++ {
		if err := bw.marshal(v.Index(i).Interface()); err != nil {
			return err
		}
	}
	return nil
}

// encodeByteArray writes fixed size octet sequences ([N]byte, hashes) without a length prefix
func (bw *byteWriter) encodeByteArray(v reflect.Value) error {
	b := make([]byte, v.Len())
	reflect.Copy(reflect.ValueOf(b), v)
	_, err := bw.Write(b)
	return err
}

func (bw *byteWriter) encodeBool(l bool) error {
	b := byte(0x00)
	if l {
		b = 0x01
	}
	_, err := bw.Write([]byte{b})
	return err
}

func (bw *byteWriter) encodeBytes(b []byte) error {
	if err := bw.encodeLength(len(b)); err != nil {
		return err
	}
	_, err := bw.Write(b)
	return err
}

func (bw *byteWriter) encodeBits(bitSequence BitSequence) error {
	length := (len(bitSequence) + 7) / 8
	if err := bw.encodeLength(length); err != nil {
		return err
	}
	_, err := bw.Write(packBits(bitSequence, length))
	return err
}

func packBits(bitSequence BitSequence, length int) []byte {
	bb := make([]byte, length)
	for i, b := range bitSequence {
		if b {
			bb[i/8] |= byte(1 << (i % 8))
		}
	}
	return bb
}

func (bw *byteWriter) encodeFixedWidth(i any, l uint) error {
	val := reflect.ValueOf(i)

	if val.Kind() == reflect.Ptr {
		if err := bw.writePointerMarker(val.IsNil()); err != nil {
			return err
		}
		if val.IsNil() {
			return nil
		}
		val = val.Elem()
	}

	switch val.Kind() {
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint,
		reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int:
		_, err := bw.Write(serializeTrivialNatural(convertToUint(val), l))
		return err
	default:
		return fmt.Errorf(ErrUnsupportedType, i)
	}
}

func (bw *byteWriter) writePointerMarker(isNil bool) error {
	marker := byte(0x00)
	if !isNil {
		marker = byte(0x01)
	}
	_, err := bw.Write([]byte{marker})
	return err
}

func (bw *byteWriter) encodeStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// Skip unexported fields
		if !field.CanInterface() {
			continue
		}
		if tag, ok := fieldType.Tag.Lookup("jam"); ok {
			if tag == "-" {
				continue
			}

			tagValues := parseTag(tag)
			encodingType, encodingTagFound := tagValues["encoding"]
			if length, found := tagValues["length"]; found {
				// "length" and "encoding" are mutually exclusive
				if encodingTagFound {
					return fmt.Errorf(ErrConflictingTags, fieldType.Name)
				}

				size, err := strconv.ParseUint(length, 10, 64)
				if err != nil {
					return fmt.Errorf(ErrInvalidLengthValue, fieldType.Name, err)
				}

				if err := bw.encodeFixedWidth(field.Interface(), uint(size)); err != nil {
					return fmt.Errorf(ErrEncodingStructField, fieldType.Name, err)
				}
				continue
			}
			if encodingTagFound && encodingType == "compact" {
				switch field.Kind() {
				case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
					if err := bw.encodeCompact(field.Uint()); err != nil {
						return fmt.Errorf(ErrEncodingStructField, fieldType.Name, err)
					}
					continue
				default:
					return fmt.Errorf(ErrUnSuportedFieldForCompactEncoding, field.Kind())
				}
			}
		}

		if err := bw.marshal(field.Interface()); err != nil {
			return fmt.Errorf(ErrEncodingStructField, fieldType.Name, err)
		}
	}

	return nil
}

func (bw *byteWriter) encodeLength(l int) error {
	return bw.encodeCompact(uint64(l))
}

// encodeCompact encodes an uint64 using the general compact natural number encoding (eq. C.6 v0.7.2)
func (bw *byteWriter) encodeCompact(i uint64) error {
	_, err := bw.Write(serializeUint64(i))
	return err
}
