// Package chunk models the atomic unit of logged data: an immutable columnar
// batch of rows plus its timeline columns, and the framed encoding chunks are
// persisted with.
package chunk

import (
	"github.com/hupe1980/lakecat/schema"
)

// Kind identifies the concrete type stored in a Value.
type Kind uint8

const (
	// KindNull represents a null cell.
	KindNull Kind = iota
	// KindBool represents a boolean cell.
	KindBool
	// KindInt represents an integer cell.
	KindInt
	// KindFloat represents a float cell.
	KindFloat
	// KindString represents a string cell.
	KindString
	// KindBytes represents an opaque binary cell.
	KindBytes
	// KindFloatList represents a float32 vector cell (embeddings).
	KindFloatList
	// KindList represents a batch of nested values. Each element is one
	// instance; its position in the batch is its instance id.
	KindList
)

// Value is a single typed cell of a column.
//
// The representation avoids reflection so filtering and index builds stay
// predictable. It is also the persisted form; keep the field tags stable.
type Value struct {
	Kind Kind      `json:"k"`
	B    bool      `json:"b,omitempty"`
	I64  int64     `json:"i,omitempty"`
	F64  float64   `json:"f,omitempty"`
	S    string    `json:"s,omitempty"`
	Raw  []byte    `json:"y,omitempty"`
	F32s []float32 `json:"v,omitempty"`
	A    []Value   `json:"a,omitempty"`
}

// Null returns a null value.
func Null() Value { return Value{Kind: KindNull} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{Kind: KindBool, B: b} }

// Int returns an integer value.
func Int(i int64) Value { return Value{Kind: KindInt, I64: i} }

// Float returns a float value.
func Float(f float64) Value { return Value{Kind: KindFloat, F64: f} }

// String returns a string value.
func String(s string) Value { return Value{Kind: KindString, S: s} }

// Bytes returns a binary value.
func Bytes(b []byte) Value { return Value{Kind: KindBytes, Raw: b} }

// FloatList returns an embedding value.
func FloatList(v []float32) Value { return Value{Kind: KindFloatList, F32s: v} }

// List returns a batched value; element order defines instance ids.
func List(elems ...Value) Value { return Value{Kind: KindList, A: elems} }

// PhysicalType maps the value's kind to its schema-level physical type.
func (v Value) PhysicalType() schema.PhysicalType {
	switch v.Kind {
	case KindBool:
		return schema.TypeBool
	case KindInt:
		return schema.TypeInt
	case KindFloat:
		return schema.TypeFloat
	case KindString:
		return schema.TypeString
	case KindBytes:
		return schema.TypeBytes
	case KindFloatList:
		return schema.TypeFloatList
	case KindList:
		return schema.TypeList
	default:
		return schema.TypeInvalid
	}
}

// IsNull reports whether the cell is null.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Instances returns the batch elements of the value. Non-list values are a
// batch of one.
func (v Value) Instances() []Value {
	if v.Kind == KindList {
		return v.A
	}
	return []Value{v}
}
