package scalar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lakecat/chunk"
)

func intIndex(t *testing.T, values ...int64) *Index {
	t.Helper()
	ix := New()
	for i, v := range values {
		require.NoError(t, ix.Add(uint32(i), chunk.Int(v)))
	}
	return ix
}

func TestPredicates(t *testing.T) {
	// ids:      0   1   2   3   4
	ix := intIndex(t, 10, 20, 30, 20, 40)

	tests := []struct {
		name string
		pred Predicate
		want []uint32
	}{
		{"eq", Predicate{Op: OpEq, Value: chunk.Int(20)}, []uint32{1, 3}},
		{"eq miss", Predicate{Op: OpEq, Value: chunk.Int(25)}, nil},
		{"lt", Predicate{Op: OpLt, Value: chunk.Int(30)}, []uint32{0, 1, 3}},
		{"le", Predicate{Op: OpLe, Value: chunk.Int(20)}, []uint32{0, 1, 3}},
		{"gt", Predicate{Op: OpGt, Value: chunk.Int(20)}, []uint32{2, 4}},
		{"ge", Predicate{Op: OpGe, Value: chunk.Int(30)}, []uint32{2, 4}},
		{"range inclusive", Predicate{Op: OpRange, Value: chunk.Int(20), Upper: chunk.Int(30)}, []uint32{1, 3, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ix.Search(tt.pred)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStringValues(t *testing.T) {
	ix := New()
	require.NoError(t, ix.Add(0, chunk.String("banana")))
	require.NoError(t, ix.Add(1, chunk.String("apple")))
	require.NoError(t, ix.Add(2, chunk.String("cherry")))

	got, err := ix.Search(Predicate{Op: OpGe, Value: chunk.String("banana")})
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 2}, got)
}

func TestFloatRange(t *testing.T) {
	ix := New()
	for i, v := range []float64{0.5, 1.5, 2.5} {
		require.NoError(t, ix.Add(uint32(i), chunk.Float(v)))
	}

	got, err := ix.Search(Predicate{Op: OpRange, Value: chunk.Float(1.0), Upper: chunk.Float(2.0)})
	require.NoError(t, err)
	assert.Equal(t, []uint32{1}, got)
}

func TestNonIndexableKinds(t *testing.T) {
	ix := New()
	require.Error(t, ix.Add(0, chunk.FloatList([]float32{1})))
	require.Error(t, ix.Add(0, chunk.Null()))

	_, err := ix.Search(Predicate{Op: OpEq, Value: chunk.Bytes([]byte("x"))})
	require.Error(t, err)
}

func TestLen(t *testing.T) {
	ix := intIndex(t, 1, 2, 3)
	assert.Equal(t, 3, ix.Len())
}
