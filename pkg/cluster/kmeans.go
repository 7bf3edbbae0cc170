package cluster

import (
	"math"
	"math/rand"
)

// kmeans partitions vectors into k groups with k-means++ seeding. The rng
// is seeded by the caller, so the same input always yields the same
// partition. Returns the assignment index per vector and the centroids.
func kmeans(vectors [][]float32, k int, rng *rand.Rand) ([]int, [][]float32) {
	n := len(vectors)
	if n == 0 || k <= 0 {
		return nil, nil
	}
	if k > n {
		k = n
	}

	centroids := seedCentroids(vectors, k, rng)
	assignment := make([]int, n)

	const maxIterations = 50
	for iter := 0; iter < maxIterations; iter++ {
		changed := false
		for i, v := range vectors {
			best := 0
			bestDist := math.MaxFloat64
			for c, centroid := range centroids {
				if d := squaredDistance(v, centroid); d < bestDist {
					bestDist = d
					best = c
				}
			}
			if assignment[i] != best {
				assignment[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}
		centroids = recomputeCentroids(vectors, assignment, centroids, k)
	}

	return assignment, centroids
}

// seedCentroids implements k-means++: the first centroid is drawn uniformly,
// each following one proportional to squared distance from the nearest
// already-chosen centroid.
func seedCentroids(vectors [][]float32, k int, rng *rand.Rand) [][]float32 {
	centroids := make([][]float32, 0, k)
	centroids = append(centroids, cloneVector(vectors[rng.Intn(len(vectors))]))

	dists := make([]float64, len(vectors))
	for len(centroids) < k {
		total := 0.0
		for i, v := range vectors {
			best := math.MaxFloat64
			for _, c := range centroids {
				if d := squaredDistance(v, c); d < best {
					best = d
				}
			}
			dists[i] = best
			total += best
		}
		if total == 0 {
			// all remaining points coincide with a centroid
			centroids = append(centroids, cloneVector(vectors[rng.Intn(len(vectors))]))
			continue
		}
		target := rng.Float64() * total
		for i := range vectors {
			target -= dists[i]
			if target <= 0 {
				centroids = append(centroids, cloneVector(vectors[i]))
				break
			}
		}
	}
	return centroids
}

func recomputeCentroids(vectors [][]float32, assignment []int, previous [][]float32, k int) [][]float32 {
	dim := len(vectors[0])
	sums := make([][]float64, k)
	counts := make([]int, k)
	for i := range sums {
		sums[i] = make([]float64, dim)
	}
	for i, v := range vectors {
		c := assignment[i]
		counts[c]++
		for d := range v {
			sums[c][d] += float64(v[d])
		}
	}

	out := make([][]float32, k)
	for c := 0; c < k; c++ {
		if counts[c] == 0 {
			out[c] = previous[c]
			continue
		}
		centroid := make([]float32, dim)
		for d := 0; d < dim; d++ {
			centroid[d] = float32(sums[c][d] / float64(counts[c]))
		}
		out[c] = centroid
	}
	return out
}

func squaredDistance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// Distance is the euclidean distance between two embeddings.
func Distance(a, b []float32) float64 {
	return math.Sqrt(squaredDistance(a, b))
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
