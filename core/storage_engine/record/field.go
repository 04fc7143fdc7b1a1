package record

import (
	"bytes"
	"cmp"
	"encoding/binary"
	"fmt"
	"math"

	flushmanager "github.com/sushant-115/minisql/core/write_engine/flush_manager"
)

// TypeID identifies the type of a field.
type TypeID uint8

const (
	TypeInvalid TypeID = iota
	TypeInt            // int32
	TypeFloat          // float32
	TypeChar           // length-prefixed bytes, at most the column length
)

func (t TypeID) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeChar:
		return "char"
	default:
		return "invalid"
	}
}

// Field is a single typed value of a row. The zero Field is invalid.
type Field struct {
	typ    TypeID
	isNull bool
	i      int32
	f      float32
	s      []byte
}

func NewIntField(v int32) Field     { return Field{typ: TypeInt, i: v} }
func NewFloatField(v float32) Field { return Field{typ: TypeFloat, f: v} }
func NewCharField(v string) Field   { return Field{typ: TypeChar, s: []byte(v)} }
func NewNullField(t TypeID) Field   { return Field{typ: t, isNull: true} }

func (f Field) Type() TypeID   { return f.typ }
func (f Field) IsNull() bool   { return f.isNull }
func (f Field) Int() int32     { return f.i }
func (f Field) Float() float32 { return f.f }
func (f Field) Char() string   { return string(f.s) }

func (f Field) String() string {
	if f.isNull {
		return "null"
	}
	switch f.typ {
	case TypeInt:
		return fmt.Sprint(f.i)
	case TypeFloat:
		return fmt.Sprint(f.f)
	case TypeChar:
		return string(f.s)
	default:
		return "<invalid>"
	}
}

// SerializedSize is the number of payload bytes the field writes. Null fields write nothing.
func (f Field) SerializedSize() int {
	if f.isNull {
		return 0
	}
	switch f.typ {
	case TypeChar:
		return 4 + len(f.s)
	default:
		return 4
	}
}

// SerializeTo writes the field into buf and returns the bytes written.
func (f Field) SerializeTo(buf []byte) int {
	if f.isNull {
		return 0
	}
	switch f.typ {
	case TypeInt:
		binary.LittleEndian.PutUint32(buf, uint32(f.i))
		return 4
	case TypeFloat:
		binary.LittleEndian.PutUint32(buf, math.Float32bits(f.f))
		return 4
	case TypeChar:
		binary.LittleEndian.PutUint32(buf, uint32(len(f.s)))
		copy(buf[4:], f.s)
		return 4 + len(f.s)
	default:
		panic(fmt.Sprintf("serialize of field with type %d", f.typ))
	}
}

// DeserializeField reads a non-null field of type t from buf.
func DeserializeField(buf []byte, t TypeID) (Field, int, error) {
	n, err := fieldLen(buf, t)
	if err != nil {
		return Field{}, 0, err
	}
	switch t {
	case TypeInt:
		return NewIntField(int32(binary.LittleEndian.Uint32(buf))), n, nil
	case TypeFloat:
		return NewFloatField(math.Float32frombits(binary.LittleEndian.Uint32(buf))), n, nil
	default:
		s := make([]byte, n-4)
		copy(s, buf[4:n])
		return Field{typ: TypeChar, s: s}, n, nil
	}
}

// fieldLen returns the encoded length of the non-null field at the start of buf.
func fieldLen(buf []byte, t TypeID) (int, error) {
	switch t {
	case TypeInt, TypeFloat:
		if len(buf) < 4 {
			return 0, fmt.Errorf("%w: short %s field", flushmanager.ErrDeserialization, t)
		}
		return 4, nil
	case TypeChar:
		if len(buf) < 4 {
			return 0, fmt.Errorf("%w: short char length", flushmanager.ErrDeserialization)
		}
		n := int(binary.LittleEndian.Uint32(buf))
		if n > len(buf)-4 {
			return 0, fmt.Errorf("%w: char length %d exceeds buffer", flushmanager.ErrDeserialization, n)
		}
		return 4 + n, nil
	default:
		return 0, fmt.Errorf("%w: unknown type %d", flushmanager.ErrDeserialization, t)
	}
}

// Compare orders two fields of the same type. Null sorts before every value.
func (f Field) Compare(o Field) int {
	switch {
	case f.isNull && o.isNull:
		return 0
	case f.isNull:
		return -1
	case o.isNull:
		return 1
	}
	switch f.typ {
	case TypeInt:
		return cmp.Compare(f.i, o.i)
	case TypeFloat:
		return cmp.Compare(f.f, o.f)
	default:
		return bytes.Compare(f.s, o.s)
	}
}

// compareEncoded compares two encoded non-null fields of type t without decoding into a Field.
func compareEncoded(a, b []byte, t TypeID) int {
	switch t {
	case TypeInt:
		return cmp.Compare(int32(binary.LittleEndian.Uint32(a)), int32(binary.LittleEndian.Uint32(b)))
	case TypeFloat:
		return cmp.Compare(math.Float32frombits(binary.LittleEndian.Uint32(a)), math.Float32frombits(binary.LittleEndian.Uint32(b)))
	default:
		na := binary.LittleEndian.Uint32(a)
		nb := binary.LittleEndian.Uint32(b)
		return bytes.Compare(a[4:4+na], b[4:4+nb])
	}
}
