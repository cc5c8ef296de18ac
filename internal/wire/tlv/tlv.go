package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderLen is the per-field overhead: id (2) + type (1) + length (4).
const HeaderLen = 7

var (
	ErrShortFieldHeader = errors.New("tlv: short field header")
	ErrShortFieldValue  = errors.New("tlv: short field value")
	ErrTypeMismatch     = errors.New("tlv: field type mismatch")
	ErrValueLength      = errors.New("tlv: invalid value length")
)

// Field type IDs.
const (
	TypeU32    uint8 = 1
	TypeU64    uint8 = 2
	TypeI64    uint8 = 3
	TypeBool   uint8 = 4
	TypeString uint8 = 5
	TypeBytes  uint8 = 6
)

// Field is one typed value in a frame payload.
type Field struct {
	ID    uint16
	Type  uint8
	Value []byte
}

func U32(id uint16, v uint32) Field {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return Field{ID: id, Type: TypeU32, Value: buf}
}

func U64(id uint16, v uint64) Field {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return Field{ID: id, Type: TypeU64, Value: buf}
}

func I64(id uint16, v int64) Field {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(v))
	return Field{ID: id, Type: TypeI64, Value: buf}
}

func Bool(id uint16, v bool) Field {
	b := byte(0)
	if v {
		b = 1
	}
	return Field{ID: id, Type: TypeBool, Value: []byte{b}}
}

func String(id uint16, v string) Field {
	return Field{ID: id, Type: TypeString, Value: []byte(v)}
}

func Bytes(id uint16, v []byte) Field {
	buf := make([]byte, len(v))
	copy(buf, v)
	return Field{ID: id, Type: TypeBytes, Value: buf}
}

// AsU32 returns the field value as uint32.
func (f Field) AsU32() (uint32, error) {
	if f.Type != TypeU32 {
		return 0, fmt.Errorf("%w: field %d", ErrTypeMismatch, f.ID)
	}
	if len(f.Value) != 4 {
		return 0, fmt.Errorf("%w: field %d", ErrValueLength, f.ID)
	}
	return binary.BigEndian.Uint32(f.Value), nil
}

// AsU64 returns the field value as uint64.
func (f Field) AsU64() (uint64, error) {
	if f.Type != TypeU64 {
		return 0, fmt.Errorf("%w: field %d", ErrTypeMismatch, f.ID)
	}
	if len(f.Value) != 8 {
		return 0, fmt.Errorf("%w: field %d", ErrValueLength, f.ID)
	}
	return binary.BigEndian.Uint64(f.Value), nil
}

// AsI64 returns the field value as int64.
func (f Field) AsI64() (int64, error) {
	if f.Type != TypeI64 {
		return 0, fmt.Errorf("%w: field %d", ErrTypeMismatch, f.ID)
	}
	if len(f.Value) != 8 {
		return 0, fmt.Errorf("%w: field %d", ErrValueLength, f.ID)
	}
	return int64(binary.BigEndian.Uint64(f.Value)), nil
}

// AsBool returns the field value as bool.
func (f Field) AsBool() (bool, error) {
	if f.Type != TypeBool {
		return false, fmt.Errorf("%w: field %d", ErrTypeMismatch, f.ID)
	}
	if len(f.Value) != 1 {
		return false, fmt.Errorf("%w: field %d", ErrValueLength, f.ID)
	}
	switch f.Value[0] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: field %d bool byte %d", ErrValueLength, f.ID, f.Value[0])
	}
}

// AsString returns the field value as string.
func (f Field) AsString() (string, error) {
	if f.Type != TypeString {
		return "", fmt.Errorf("%w: field %d", ErrTypeMismatch, f.ID)
	}
	return string(f.Value), nil
}

// AsBytes returns a copy of the field value.
func (f Field) AsBytes() ([]byte, error) {
	if f.Type != TypeBytes {
		return nil, fmt.Errorf("%w: field %d", ErrTypeMismatch, f.ID)
	}
	buf := make([]byte, len(f.Value))
	copy(buf, f.Value)
	return buf, nil
}

func EncodeField(f Field) []byte {
	buf := make([]byte, HeaderLen+len(f.Value))
	binary.BigEndian.PutUint16(buf[0:2], f.ID)
	buf[2] = f.Type
	binary.BigEndian.PutUint32(buf[3:7], uint32(len(f.Value)))
	copy(buf[7:], f.Value)
	return buf
}

func EncodeFields(fields []Field) []byte {
	out := make([]byte, 0)
	for _, f := range fields {
		out = append(out, EncodeField(f)...)
	}
	return out
}

func DecodeFields(payload []byte) ([]Field, error) {
	fields := make([]Field, 0)
	i := 0
	for i < len(payload) {
		if len(payload)-i < HeaderLen {
			return nil, ErrShortFieldHeader
		}
		id := binary.BigEndian.Uint16(payload[i : i+2])
		typeID := payload[i+2]
		l := binary.BigEndian.Uint32(payload[i+3 : i+7])
		i += HeaderLen
		if uint32(len(payload)-i) < l {
			return nil, ErrShortFieldValue
		}
		val := make([]byte, l)
		copy(val, payload[i:i+int(l)])
		i += int(l)
		fields = append(fields, Field{ID: id, Type: typeID, Value: val})
	}
	return fields, nil
}

// Get returns the first field with the given id.
func Get(fields []Field, id uint16) (Field, bool) {
	for _, f := range fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}
