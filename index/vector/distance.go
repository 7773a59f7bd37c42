// Package vector implements the approximate-nearest-neighbor index kind: an
// IVF (inverted file) structure with k-means-trained partitions and a
// configurable distance metric.
package vector

import (
	"fmt"
	"math"
)

// Metric is the distance metric used for vector comparison.
type Metric int

const (
	// MetricL2 is squared Euclidean distance.
	MetricL2 Metric = iota
	// MetricCosine is cosine distance (1 - cosine similarity).
	MetricCosine
	// MetricDot is negative dot product (so smaller is closer).
	MetricDot
)

// String returns the metric name.
func (m Metric) String() string {
	switch m {
	case MetricL2:
		return "l2"
	case MetricCosine:
		return "cosine"
	case MetricDot:
		return "dot"
	default:
		return "unknown"
	}
}

// ParseMetric parses a metric name.
func ParseMetric(s string) (Metric, error) {
	switch s {
	case "", "l2":
		return MetricL2, nil
	case "cosine":
		return MetricCosine, nil
	case "dot":
		return MetricDot, nil
	default:
		return 0, fmt.Errorf("unknown distance metric %q", s)
	}
}

// DistanceFunc computes the distance between two equal-length vectors;
// smaller means closer for every metric.
type DistanceFunc func(a, b []float32) float32

// Provider returns the distance function for a metric.
func Provider(m Metric) (DistanceFunc, error) {
	switch m {
	case MetricL2:
		return squaredL2, nil
	case MetricCosine:
		return cosineDistance, nil
	case MetricDot:
		return negDot, nil
	default:
		return nil, fmt.Errorf("invalid distance metric: %d", m)
	}
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func negDot(a, b []float32) float32 {
	return -dot(a, b)
}

func cosineDistance(a, b []float32) float32 {
	ab := dot(a, b)
	aa := dot(a, a)
	bb := dot(b, b)
	if aa == 0 || bb == 0 {
		return 1
	}
	return 1 - ab/float32(math.Sqrt(float64(aa))*math.Sqrt(float64(bb)))
}
