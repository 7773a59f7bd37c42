// Package scalar implements the range index kind: a btree over one scalar
// column supporting point and inclusive-range predicates.
package scalar

import (
	"fmt"

	"github.com/google/btree"
	"github.com/hupe1980/lakecat/chunk"
)

// Op is a predicate operator.
type Op uint8

const (
	// OpEq matches values equal to the operand.
	OpEq Op = iota
	// OpLt matches values strictly below the operand.
	OpLt
	// OpLe matches values at or below the operand.
	OpLe
	// OpGt matches values strictly above the operand.
	OpGt
	// OpGe matches values at or above the operand.
	OpGe
	// OpRange matches values within the inclusive [Value, Upper] interval.
	OpRange
)

// Predicate is a point or range condition on the indexed column.
type Predicate struct {
	Op    Op
	Value chunk.Value
	// Upper is the inclusive upper bound for OpRange.
	Upper chunk.Value
}

type item struct {
	key keyOf
	id  uint32
}

// keyOf is a totally ordered projection of an indexable value. Values of
// different kinds sort by kind, so a mixed-type column still has a total
// order (mixed types are legal only pre-schema-check).
type keyOf struct {
	kind chunk.Kind
	i64  int64
	f64  float64
	s    string
	b    bool
}

func makeKey(v chunk.Value) (keyOf, error) {
	switch v.Kind {
	case chunk.KindInt:
		return keyOf{kind: v.Kind, i64: v.I64}, nil
	case chunk.KindFloat:
		return keyOf{kind: v.Kind, f64: v.F64}, nil
	case chunk.KindString:
		return keyOf{kind: v.Kind, s: v.S}, nil
	case chunk.KindBool:
		return keyOf{kind: v.Kind, b: v.B}, nil
	default:
		return keyOf{}, fmt.Errorf("value kind %d is not scalar-indexable", v.Kind)
	}
}

func (k keyOf) less(o keyOf) bool {
	if k.kind != o.kind {
		return k.kind < o.kind
	}
	switch k.kind {
	case chunk.KindInt:
		return k.i64 < o.i64
	case chunk.KindFloat:
		return k.f64 < o.f64
	case chunk.KindString:
		return k.s < o.s
	case chunk.KindBool:
		return !k.b && o.b
	default:
		return false
	}
}

func lessItem(a, b item) bool {
	if a.key.less(b.key) {
		return true
	}
	if b.key.less(a.key) {
		return false
	}
	return a.id < b.id
}

// Index is a btree-backed scalar index over values identified by dense
// uint32 ids. Build-then-query; no mutation after the build finishes.
type Index struct {
	tree *btree.BTreeG[item]
}

// New creates an empty scalar index.
func New() *Index {
	return &Index{tree: btree.NewG(32, lessItem)}
}

// Add indexes one value.
func (ix *Index) Add(id uint32, v chunk.Value) error {
	key, err := makeKey(v)
	if err != nil {
		return err
	}
	ix.tree.ReplaceOrInsert(item{key: key, id: id})
	return nil
}

// Search returns the ids matching the predicate in ascending value order.
func (ix *Index) Search(p Predicate) ([]uint32, error) {
	key, err := makeKey(p.Value)
	if err != nil {
		return nil, err
	}

	var out []uint32
	collectIf := func(cond func(k keyOf) bool) func(item) bool {
		return func(it item) bool {
			if !cond(it.key) {
				return false
			}
			out = append(out, it.id)
			return true
		}
	}

	switch p.Op {
	case OpEq:
		ix.tree.AscendGreaterOrEqual(item{key: key}, collectIf(func(k keyOf) bool {
			return !key.less(k)
		}))
	case OpLt:
		ix.tree.AscendLessThan(item{key: key}, func(it item) bool {
			out = append(out, it.id)
			return true
		})
	case OpLe:
		ix.tree.Ascend(collectIf(func(k keyOf) bool {
			return !key.less(k)
		}))
	case OpGt:
		ix.tree.AscendGreaterOrEqual(item{key: key}, func(it item) bool {
			if !key.less(it.key) {
				return true // still equal, skip
			}
			out = append(out, it.id)
			return true
		})
	case OpGe:
		ix.tree.AscendGreaterOrEqual(item{key: key}, func(it item) bool {
			out = append(out, it.id)
			return true
		})
	case OpRange:
		upper, err := makeKey(p.Upper)
		if err != nil {
			return nil, err
		}
		ix.tree.AscendGreaterOrEqual(item{key: key}, collectIf(func(k keyOf) bool {
			return !upper.less(k)
		}))
	default:
		return nil, fmt.Errorf("unknown scalar predicate op %d", p.Op)
	}
	return out, nil
}

// Len returns the number of indexed values.
func (ix *Index) Len() int { return ix.tree.Len() }
