package vector

import (
	"fmt"
	"math"
)

const (
	defaultMaxIter = 20
	defaultNProbe  = 4
)

// Index is an IVF approximate-nearest-neighbor index over vectors
// identified by dense uint32 ids. Build-then-query; no mutation after Build.
type Index struct {
	metric Metric
	dist   DistanceFunc
	dim    int

	centroids [][]float32
	lists     [][]uint32
	vectors   [][]float32
}

// Build trains the index over the given vectors. numPartitions is the IVF
// list count; values <= 1 degrade to exact (flat) search.
func Build(vectors [][]float32, numPartitions int, metric Metric) (*Index, error) {
	dist, err := Provider(metric)
	if err != nil {
		return nil, err
	}
	ix := &Index{metric: metric, dist: dist, vectors: vectors}
	if len(vectors) == 0 {
		return ix, nil
	}
	ix.dim = len(vectors[0])
	for i, v := range vectors {
		if len(v) != ix.dim {
			return nil, fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), ix.dim)
		}
	}

	if numPartitions <= 1 {
		numPartitions = 1
	}
	if numPartitions == 1 {
		ix.centroids = nil
		return ix, nil
	}

	ix.centroids = trainCentroids(vectors, numPartitions, dist, defaultMaxIter)
	ix.lists = make([][]uint32, len(ix.centroids))
	for i, v := range vectors {
		best := -1
		minDist := float32(math.MaxFloat32)
		for j, c := range ix.centroids {
			if d := dist(v, c); d < minDist {
				minDist = d
				best = j
			}
		}
		ix.lists[best] = append(ix.lists[best], uint32(i))
	}
	return ix, nil
}

// Search returns up to k nearest neighbors of q in ascending distance
// order. nprobe controls how many IVF lists are scanned; 0 uses a default.
func (ix *Index) Search(q []float32, k, nprobe int) ([]Result, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if len(ix.vectors) == 0 {
		return nil, nil
	}
	if len(q) != ix.dim {
		return nil, fmt.Errorf("query dimension %d, index dimension %d", len(q), ix.dim)
	}

	acc := newTopK(k)

	if ix.centroids == nil {
		for i, v := range ix.vectors {
			acc.offer(Result{ID: uint32(i), Score: ix.dist(q, v)})
		}
		return acc.results(), nil
	}

	if nprobe <= 0 {
		nprobe = defaultNProbe
	}
	if nprobe > len(ix.centroids) {
		nprobe = len(ix.centroids)
	}

	probe := newTopK(nprobe)
	for j, c := range ix.centroids {
		probe.offer(Result{ID: uint32(j), Score: ix.dist(q, c)})
	}
	for _, list := range probe.results() {
		for _, id := range ix.lists[list.ID] {
			acc.offer(Result{ID: id, Score: ix.dist(q, ix.vectors[id])})
		}
	}
	return acc.results(), nil
}

// Len returns the number of indexed vectors.
func (ix *Index) Len() int { return len(ix.vectors) }
