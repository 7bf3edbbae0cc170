package cluster

import (
	"hash/fnv"
	"math"
	"math/rand"
)

// Seed derives the deterministic rng seed for a topic. Every run over the
// same topic projects and partitions identically.
func Seed(topicID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(topicID))
	return int64(h.Sum64() & math.MaxInt64)
}

// Project2D maps embeddings onto a plane with a seeded gaussian random
// projection, then min-max normalizes both axes to [0,1]. Vectors must all
// share a dimension; an empty input returns nil.
func Project2D(seed int64, vectors [][]float32) [][2]float64 {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	rng := rand.New(rand.NewSource(seed))

	basis := [2][]float64{make([]float64, dim), make([]float64, dim)}
	for axis := 0; axis < 2; axis++ {
		for d := 0; d < dim; d++ {
			basis[axis][d] = rng.NormFloat64()
		}
	}

	points := make([][2]float64, len(vectors))
	minX, maxX := math.MaxFloat64, -math.MaxFloat64
	minY, maxY := math.MaxFloat64, -math.MaxFloat64
	for i, v := range vectors {
		var x, y float64
		for d := 0; d < dim && d < len(v); d++ {
			x += float64(v[d]) * basis[0][d]
			y += float64(v[d]) * basis[1][d]
		}
		points[i] = [2]float64{x, y}
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}

	normalize := func(v, lo, hi float64) float64 {
		if hi-lo < 1e-12 {
			return 0.5
		}
		return (v - lo) / (hi - lo)
	}
	for i := range points {
		points[i][0] = normalize(points[i][0], minX, maxX)
		points[i][1] = normalize(points[i][1], minY, maxY)
	}
	return points
}
