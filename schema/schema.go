// Package schema models the schema-on-read type system: column descriptors,
// physical types and the union/compatibility merge that defines a dataset's
// schema as the union of its layers' schemas.
package schema

import (
	"fmt"
	"sort"
	"strings"
)

// ReservedPrefix marks entity paths used for recording-level properties.
// Columns under this prefix are excluded from query results unless a caller
// opts in explicitly.
const ReservedPrefix = "/__properties"

// PhysicalType is the storage-level type of a column.
type PhysicalType uint8

const (
	// TypeInvalid is the zero value; never valid in a committed schema.
	TypeInvalid PhysicalType = iota
	// TypeBool is a boolean column.
	TypeBool
	// TypeInt is a 64-bit signed integer column.
	TypeInt
	// TypeFloat is a 64-bit float column.
	TypeFloat
	// TypeString is a UTF-8 string column.
	TypeString
	// TypeBytes is an opaque binary column.
	TypeBytes
	// TypeFloatList is a list-of-float32 column (embeddings, tensors).
	TypeFloatList
	// TypeList is a list of nested values (batched instances).
	TypeList
)

// String returns the type name used in error messages and manifests.
func (t PhysicalType) String() string {
	switch t {
	case TypeBool:
		return "Bool"
	case TypeInt:
		return "Int"
	case TypeFloat:
		return "Float"
	case TypeString:
		return "String"
	case TypeBytes:
		return "Bytes"
	case TypeFloatList:
		return "FloatList"
	case TypeList:
		return "List"
	default:
		return "Invalid"
	}
}

// ColumnDescriptor addresses one logged column: the entity path it was
// logged under plus the archetype/component pair naming its semantic role.
type ColumnDescriptor struct {
	EntityPath string `json:"entity_path"`
	Archetype  string `json:"archetype,omitempty"`
	Component  string `json:"component"`
}

// Display returns the composite "Archetype:Component" form used for fuzzy
// component matching (e.g. "SeriesLines:width").
func (d ColumnDescriptor) Display() string {
	if d.Archetype == "" {
		return d.Component
	}
	return d.Archetype + ":" + d.Component
}

// IsReserved reports whether the column lives under the reserved
// recording-properties prefix.
func (d ColumnDescriptor) IsReserved() bool {
	return strings.HasPrefix(d.EntityPath, ReservedPrefix)
}

func (d ColumnDescriptor) String() string {
	return d.EntityPath + "#" + d.Display()
}

// Column is one entry of a schema: a descriptor plus its physical type.
type Column struct {
	Desc ColumnDescriptor `json:"desc"`
	Type PhysicalType     `json:"type"`
}

// Schema maps column descriptors to their physical types.
//
// A Schema is a value type; Union returns a new Schema and never mutates its
// receivers, so schemas can be shared across goroutines once built.
type Schema map[ColumnDescriptor]PhysicalType

// Clone returns a copy of the schema.
func (s Schema) Clone() Schema {
	out := make(Schema, len(s))
	for d, t := range s {
		out[d] = t
	}
	return out
}

// Union merges two schemas. It fails with an IncompatibleError if both
// declare the same (entity path, archetype, component) triple with different
// physical types; this is the only mandatory schema constraint.
func Union(a, b Schema) (Schema, error) {
	out := a.Clone()
	for d, t := range b {
		if existing, ok := out[d]; ok && existing != t {
			return nil, &IncompatibleError{Desc: d, Existing: existing, Incoming: t}
		}
		out[d] = t
	}
	return out, nil
}

// Columns returns the schema's columns sorted by descriptor. Sorting makes
// repeated reads of an unchanged dataset schema byte-identical.
func (s Schema) Columns() []Column {
	cols := make([]Column, 0, len(s))
	for d, t := range s {
		cols = append(cols, Column{Desc: d, Type: t})
	}
	sort.Slice(cols, func(i, j int) bool {
		a, b := cols[i].Desc, cols[j].Desc
		if a.EntityPath != b.EntityPath {
			return a.EntityPath < b.EntityPath
		}
		if a.Archetype != b.Archetype {
			return a.Archetype < b.Archetype
		}
		return a.Component < b.Component
	})
	return cols
}

// FromColumns rebuilds a Schema from its column list. It is the inverse of
// Columns and exists because struct-keyed maps have no JSON form; manifests
// persist schemas as sorted column lists.
func FromColumns(cols []Column) Schema {
	s := make(Schema, len(cols))
	for _, c := range cols {
		s[c.Desc] = c.Type
	}
	return s
}

// EntityPaths returns the sorted set of distinct entity paths in the schema.
func (s Schema) EntityPaths() []string {
	seen := make(map[string]struct{})
	for d := range s {
		seen[d.EntityPath] = struct{}{}
	}
	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// IncompatibleError reports a physical-type conflict for one column triple.
//
// The conflicting descriptor and both types are carried so callers can
// surface exactly which column a rejected registration collided on.
type IncompatibleError struct {
	Desc     ColumnDescriptor
	Existing PhysicalType
	Incoming PhysicalType
}

func (e *IncompatibleError) Error() string {
	return fmt.Sprintf("schema incompatibility on %s: existing type %s, incoming type %s",
		e.Desc, e.Existing, e.Incoming)
}
