package jam

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"reflect"
	"strconv"
)

// Unmarshaler is the interface implemented by types that decode themselves
// from the decoder stream, eg. to validate invariants of canonical containers.
type Unmarshaler interface {
	UnmarshalJAM(d *Decoder) error
}

var unmarshalerType = reflect.TypeOf((*Unmarshaler)(nil)).Elem()

func Unmarshal(data []byte, dst any) error {
	return NewDecoder(bytes.NewReader(data)).Decode(dst)
}

func NewDecoder(reader io.Reader) *Decoder {
	return &Decoder{byteReader{reader}}
}

type Decoder struct {
	byteReader
}

func (d *Decoder) Decode(dst any) error {
	dstv := reflect.ValueOf(dst)
	if dstv.Kind() != reflect.Ptr || dstv.IsNil() {
		return fmt.Errorf(ErrUnsupportedType, dst)
	}

	return d.unmarshal(d, indirect(dstv))
}

// DecodeFixedLength decodes integers of `length` octets, octet sequences and
// bit sequences of a length known out of band
func (d *Decoder) DecodeFixedLength(dst any, length uint) error {
	dstv := reflect.ValueOf(dst)
	if dstv.Kind() != reflect.Ptr || dstv.IsNil() {
		return fmt.Errorf(ErrUnsupportedType, dst)
	}
	dstv = indirect(dstv)

	switch dstv.Interface().(type) {
	case int8, uint8, int16, uint16, int32, uint32, int64, uint64:
		return d.decodeFixedWidth(dstv, length)
	case []byte:
		return d.decodeBytesFixedLength(dstv, length)
	case BitSequence:
		v, err := d.decodeBitsFixedLength(length)
		if err != nil {
			return err
		}
		dstv.Set(reflect.ValueOf(v))
		return nil
	default:
		return fmt.Errorf(ErrUnsupportedType, dst)
	}
}

// DecodeLength reads a compact natural as used for sequence prefixes
func (d *Decoder) DecodeLength() (uint64, error) {
	return d.decodeCompact()
}

type byteReader struct {
	io.Reader
}

func (br *byteReader) unmarshal(d *Decoder, value reflect.Value) error {
	if value.CanAddr() && value.Addr().Type().Implements(unmarshalerType) {
		return value.Addr().Interface().(Unmarshaler).UnmarshalJAM(d)
	}

	switch value.Kind() {
	case reflect.Bool:
		return br.decodeBool(value)
	case reflect.Int, reflect.Uint:
		v, err := br.decodeCompact()
		if err != nil {
			return err
		}
		setUint(value, v)
		return nil
	case reflect.Int8, reflect.Uint8:
		return br.decodeFixedWidth(value, 1)
	case reflect.Int16, reflect.Uint16:
		return br.decodeFixedWidth(value, 2)
	case reflect.Int32, reflect.Uint32:
		return br.decodeFixedWidth(value, 4)
	case reflect.Int64, reflect.Uint64:
		return br.decodeFixedWidth(value, 8)
	case reflect.String:
		var b []byte
		if err := br.decodeBytes(reflect.ValueOf(&b).Elem()); err != nil {
			return err
		}
		value.SetString(string(b))
		return nil
	case reflect.Ptr:
		return br.decodePointer(d, value)
	case reflect.Struct:
		return br.decodeStruct(d, value)
	case reflect.Array:
		return br.decodeArray(d, value)
	case reflect.Slice:
		if value.Type() == reflect.TypeOf(BitSequence{}) {
			return br.decodeBits(value)
		}
		if value.Type().Elem().Kind() == reflect.Uint8 {
			return br.decodeBytes(value)
		}
		return br.decodeSlice(d, value)
	default:
		return fmt.Errorf(ErrUnsupportedType, value.Interface())
	}
}

func setUint(value reflect.Value, v uint64) {
	if value.CanInt() {
		value.SetInt(int64(v))
		return
	}
	value.SetUint(v)
}

func (br *byteReader) ReadOctet() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(br.Reader, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (br *byteReader) decodePointer(d *Decoder, value reflect.Value) error {
	isNil, err := br.readPointerMarker()
	if err != nil {
		return err
	}

	if isNil {
		value.Set(reflect.Zero(value.Type()))
		return nil
	}

	if value.IsNil() {
		value.Set(reflect.New(value.Type().Elem()))
	}

	return br.unmarshal(d, value.Elem())
}

func (br *byteReader) decodeSlice(d *Decoder, value reflect.Value) error {
	l, err := br.decodeCompact()
	if err != nil {
		return err
	}
	if l > math.MaxUint32 {
		return ErrExceedingByteArrayLimit
	}
	temp := reflect.MakeSlice(value.Type(), 0, 0)
	for i := uint64(0); i < l; i++ {
		elem := reflect.New(value.Type().Elem()).Elem()
		if err := br.unmarshal(d, elem); err != nil {
			return err
		}
		temp = reflect.Append(temp, elem)
	}
	value.Set(temp)

	return nil
}

func (br *byteReader) decodeArray(d *Decoder, value reflect.Value) error {
	if value.Type().Elem().Kind() == reflect.Uint8 {
		b := make([]byte, value.Len())
		if _, err := io.ReadFull(br.Reader, b); err != nil {
			return fmt.Errorf(ErrReadingBytes, err)
		}
		reflect.Copy(value, reflect.ValueOf(b))
		return nil
	}
	for i := 0; i < value.Len(); i++ {
		if err := br.unmarshal(d, value.Index(i)); err != nil {
			return err
		}
	}
	return nil
}

func (br *byteReader) decodeStruct(d *Decoder, value reflect.Value) error {
	t := value.Type()

	for i := 0; i < value.NumField(); i++ {
		field := value.Field(i)
		fieldType := t.Field(i)

		// Skip unexported fields
		if !field.CanSet() {
			continue
		}
		if tag, ok := fieldType.Tag.Lookup("jam"); ok {
			if tag == "-" {
				continue
			}
			tagValues := parseTag(tag)
			if length, found := tagValues["length"]; found {
				size, err := strconv.ParseUint(length, 10, 64)
				if err != nil {
					return fmt.Errorf(ErrInvalidLengthValue, fieldType.Name, err)
				}
				if err := br.decodeFixedWidth(field, uint(size)); err != nil {
					return fmt.Errorf(ErrDecodingStructField, fieldType.Name, err)
				}
				continue
			}
			if tagValues["encoding"] == "compact" {
				v, err := br.decodeCompact()
				if err != nil {
					return fmt.Errorf(ErrDecodingStructField, fieldType.Name, err)
				}
				setUint(field, v)
				continue
			}
		}

		if err := br.unmarshal(d, field); err != nil {
			return fmt.Errorf(ErrDecodingStructField, fieldType.Name, err)
		}
	}

	return nil
}

func (br *byteReader) decodeBool(value reflect.Value) error {
	rb, err := br.ReadOctet()
	if err != nil {
		return err
	}

	switch rb {
	case 0x00:
		value.SetBool(false)
	case 0x01:
		value.SetBool(true)
	default:
		return ErrDecodingBool
	}

	return nil
}

// decodeCompact reads a general natural (eq. C.6 v0.7.2)
func (br *byteReader) decodeCompact() (uint64, error) {
	prefix, err := br.ReadOctet()
	if err != nil {
		return 0, fmt.Errorf(ErrReadingByte, err)
	}

	l := compactLength(prefix)
	serialized := make([]byte, int(l)+1)
	serialized[0] = prefix
	if _, err := io.ReadFull(br.Reader, serialized[1:]); err != nil {
		return 0, fmt.Errorf(ErrReadingBytes, err)
	}

	var v uint64
	if err := deserializeUint64WithLength(serialized, l, &v); err != nil {
		return 0, fmt.Errorf(ErrDecodingUint, err)
	}
	if !bytes.Equal(serializeUint64(v), serialized) {
		return 0, ErrNonCanonicalInteger
	}
	return v, nil
}

func (br *byteReader) decodeBytes(dstv reflect.Value) error {
	length, err := br.decodeCompact()
	if err != nil {
		return err
	}
	if length > math.MaxUint32 {
		return ErrExceedingByteArrayLimit
	}
	return br.decodeBytesFixedLength(dstv, uint(length))
}

func (br *byteReader) decodeBytesFixedLength(dstv reflect.Value, length uint) error {
	if length > math.MaxUint32 {
		return ErrExceedingByteArrayLimit
	}

	b := make([]byte, length)
	if _, err := io.ReadFull(br.Reader, b); err != nil {
		return fmt.Errorf(ErrReadingBytes, err)
	}

	dstv.Set(reflect.ValueOf(b).Convert(dstv.Type()))
	return nil
}

func (br *byteReader) decodeBits(dstv reflect.Value) error {
	length, err := br.decodeCompact()
	if err != nil {
		return err
	}
	if length > math.MaxUint32 {
		return ErrExceedingByteArrayLimit
	}
	v, err := br.decodeBitsFixedLength(uint(length))
	if err != nil {
		return err
	}
	dstv.Set(reflect.ValueOf(v).Convert(dstv.Type()))
	return nil
}

// decodeBitsFixedLength reads `bytesLength` octets and unpacks them into bits
func (br *byteReader) decodeBitsFixedLength(bytesLength uint) (BitSequence, error) {
	if bytesLength > math.MaxUint32 {
		return nil, ErrExceedingByteArrayLimit
	}
	bb := make([]byte, bytesLength)
	if _, err := io.ReadFull(br.Reader, bb); err != nil {
		return nil, err
	}
	v := make(BitSequence, bytesLength*8)
	for i := range v {
		pow2 := byte(1 << (i % 8))
		v[i] = bb[i/8]&pow2 == pow2
	}
	return v, nil
}

// decodeFixedWidth E_{l∈N}(N_{2^8l} → Yl) (eq. C.5 v0.7.2)
func (br *byteReader) decodeFixedWidth(dstv reflect.Value, length uint) error {
	if dstv.Kind() == reflect.Ptr {
		isNil, err := br.readPointerMarker()
		if err != nil {
			return err
		}
		if isNil {
			dstv.Set(reflect.Zero(dstv.Type()))
			return nil
		}
		if dstv.IsNil() {
			dstv.Set(reflect.New(dstv.Type().Elem()))
		}
		dstv = dstv.Elem()
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(br.Reader, buf); err != nil {
		return fmt.Errorf(ErrReadingByte, err)
	}

	switch dstv.Kind() {
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint,
		reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int:
		var v uint64
		deserializeTrivialNatural(buf, &v)
		setUint(dstv, v)
		return nil
	default:
		return fmt.Errorf(ErrUnsupportedType, dstv.Type())
	}
}

func (br *byteReader) readPointerMarker() (bool, error) {
	marker, err := br.ReadOctet()
	if err != nil {
		return false, err
	}

	switch marker {
	case 0x00:
		return true, nil
	case 0x01:
		return false, nil
	default:
		return false, ErrInvalidPointer
	}
}

// indirect recursively dereferences pointers, allocating new pointers as needed,
// until it reaches a non-pointer value.
func indirect(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		v = v.Elem()
	}
	return v
}
