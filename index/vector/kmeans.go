package vector

import (
	"math"
	"math/rand"
)

// trainCentroids trains k centroids over the given vectors with Lloyd's
// algorithm. Returns fewer than k centroids when there are fewer vectors.
func trainCentroids(vectors [][]float32, k int, dist DistanceFunc, maxIter int) [][]float32 {
	n := len(vectors)
	if n == 0 {
		return nil
	}
	if k > n {
		k = n
	}
	dim := len(vectors[0])

	// Seed from random data points. A fixed source keeps builds
	// reproducible for a fixed input order.
	rng := rand.New(rand.NewSource(int64(n)*31 + int64(k)))
	centroids := make([][]float32, k)
	for i, p := range rng.Perm(n)[:k] {
		c := make([]float32, dim)
		copy(c, vectors[p])
		centroids[i] = c
	}

	assignments := make([]int, n)
	for iter := 0; iter < maxIter; iter++ {
		changed := false

		for i, vec := range vectors {
			best := -1
			minDist := float32(math.MaxFloat32)
			for j, c := range centroids {
				if d := dist(vec, c); d < minDist {
					minDist = d
					best = j
				}
			}
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		sums := make([][]float32, k)
		counts := make([]int, k)
		for i := range sums {
			sums[i] = make([]float32, dim)
		}
		for i, vec := range vectors {
			a := assignments[i]
			counts[a]++
			for d, v := range vec {
				sums[a][d] += v
			}
		}
		for j := range centroids {
			if counts[j] == 0 {
				// Empty cluster: reseed from a random point.
				copy(centroids[j], vectors[rng.Intn(n)])
				continue
			}
			inv := 1 / float32(counts[j])
			for d := range centroids[j] {
				centroids[j][d] = sums[j][d] * inv
			}
		}
	}
	return centroids
}
