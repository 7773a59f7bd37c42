package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetric(t *testing.T) {
	for name, want := range map[string]Metric{
		"":       MetricL2,
		"l2":     MetricL2,
		"cosine": MetricCosine,
		"dot":    MetricDot,
	} {
		m, err := ParseMetric(name)
		require.NoError(t, err)
		assert.Equal(t, want, m)
	}

	_, err := ParseMetric("hamming")
	require.Error(t, err)
}

func TestDistances(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}

	assert.InDelta(t, 2.0, squaredL2(a, b), 1e-6)
	assert.InDelta(t, 0.0, squaredL2(a, a), 1e-6)

	assert.InDelta(t, 1.0, cosineDistance(a, b), 1e-6)
	assert.InDelta(t, 0.0, cosineDistance(a, a), 1e-6)

	assert.InDelta(t, 0.0, negDot(a, b), 1e-6)
	assert.InDelta(t, -1.0, negDot(a, a), 1e-6)
}

func TestFlatSearchExact(t *testing.T) {
	vectors := [][]float32{
		{0, 0}, {1, 1}, {10, 10}, {0.5, 0.5},
	}
	ix, err := Build(vectors, 1, MetricL2)
	require.NoError(t, err)

	got, err := ix.Search([]float32{0.6, 0.6}, 2, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint32(3), got[0].ID)
	assert.Equal(t, uint32(1), got[1].ID)
	assert.LessOrEqual(t, got[0].Score, got[1].Score)
}

func TestIVFSearchFindsCluster(t *testing.T) {
	// Two well-separated clusters; probing must find the right one.
	var vectors [][]float32
	for i := range 50 {
		vectors = append(vectors, []float32{float32(i%5) * 0.01, 0})
	}
	for i := range 50 {
		vectors = append(vectors, []float32{100 + float32(i%5)*0.01, 0})
	}

	ix, err := Build(vectors, 4, MetricL2)
	require.NoError(t, err)

	got, err := ix.Search([]float32{100, 0}, 5, 2)
	require.NoError(t, err)
	require.Len(t, got, 5)
	for _, r := range got {
		assert.GreaterOrEqual(t, r.ID, uint32(50), "hit from the wrong cluster")
	}
}

func TestSearchValidation(t *testing.T) {
	ix, err := Build([][]float32{{1, 2}}, 1, MetricL2)
	require.NoError(t, err)

	_, err = ix.Search([]float32{1, 2}, 0, 0)
	require.Error(t, err)

	_, err = ix.Search([]float32{1, 2, 3}, 1, 0)
	require.Error(t, err)
}

func TestBuildValidation(t *testing.T) {
	_, err := Build([][]float32{{1, 2}, {1}}, 1, MetricL2)
	require.Error(t, err)

	empty, err := Build(nil, 4, MetricCosine)
	require.NoError(t, err)
	got, err := empty.Search([]float32{1}, 3, 0)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Zero(t, empty.Len())
}

func TestTrainCentroidsDeterministic(t *testing.T) {
	vectors := [][]float32{
		{0, 0}, {0, 1}, {10, 10}, {10, 11}, {20, 20}, {20, 21},
	}
	a := trainCentroids(vectors, 3, squaredL2, 10)
	b := trainCentroids(vectors, 3, squaredL2, 10)
	assert.Equal(t, a, b)

	// k capped at n.
	c := trainCentroids(vectors[:2], 5, squaredL2, 10)
	assert.Len(t, c, 2)
}

func TestTopK(t *testing.T) {
	acc := newTopK(3)
	for i, score := range []float32{5, 1, 4, 2, 3} {
		acc.offer(Result{ID: uint32(i), Score: score})
	}
	got := acc.results()
	require.Len(t, got, 3)
	assert.Equal(t, []float32{1, 2, 3}, []float32{got[0].Score, got[1].Score, got[2].Score})
}
