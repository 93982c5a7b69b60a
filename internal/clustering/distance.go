package clustering

import (
	"fmt"
	"math"
)

// Metric names a distance function over embedding vectors.
type Metric string

const (
	MetricEuclidean Metric = "euclidean"
	MetricCosine    Metric = "cosine"
)

// ParseMetric validates a metric name. Empty means euclidean.
func ParseMetric(name string) (Metric, error) {
	switch Metric(name) {
	case "", MetricEuclidean:
		return MetricEuclidean, nil
	case MetricCosine:
		return MetricCosine, nil
	default:
		return "", fmt.Errorf("unknown distance metric %q", name)
	}
}

func (m Metric) distance() func(a, b []float64) float64 {
	if m == MetricCosine {
		return cosineDistance
	}
	return euclideanDistance
}

func euclideanDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// cosineDistance is 1 - cosine similarity, in [0, 2].
// Zero vectors are treated as orthogonal to everything.
func cosineDistance(a, b []float64) float64 {
	var dot, magA, magB float64
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return 1.0
	}

	similarity := dot / (math.Sqrt(magA) * math.Sqrt(magB))

	// Clamp floating point drift
	if similarity > 1.0 {
		similarity = 1.0
	} else if similarity < -1.0 {
		similarity = -1.0
	}
	return 1.0 - similarity
}
