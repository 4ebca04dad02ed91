package selection

import (
	"math"
	"math/rand"
)

// maxKMeansIterations caps the Lloyd iterations; small labeling batches
// converge well before this.
const maxKMeansIterations = 25

// kmeans partitions points into at most k clusters and returns the final
// assignment (point index to cluster index) and centroids. The whole run is
// deterministic for a given seed. Clusters may end up empty for degenerate
// inputs (duplicate points); empty clusters keep their last centroid and
// simply attract no members.
func kmeans(points [][]float32, k int, seed int64) ([]int, [][]float32) {
	if k > len(points) {
		k = len(points)
	}

	// Farthest-point initialization: seed the first centroid from the rng,
	// then greedily take the point farthest from the centroids chosen so
	// far. Spreads the initial centroids across the data so separated
	// regions each get one.
	rng := rand.New(rand.NewSource(seed))
	chosen := make([]bool, len(points))
	first := rng.Intn(len(points))
	chosen[first] = true

	centroids := make([][]float32, 0, k)
	centroids = append(centroids, append([]float32(nil), points[first]...))

	minDist := make([]float64, len(points))
	for i, p := range points {
		minDist[i] = euclidean(p, centroids[0])
	}
	for len(centroids) < k {
		best := -1
		bestDist := math.Inf(-1)
		for i := range points {
			if !chosen[i] && minDist[i] > bestDist {
				bestDist = minDist[i]
				best = i
			}
		}
		chosen[best] = true
		centroids = append(centroids, append([]float32(nil), points[best]...))
		for i, p := range points {
			if d := euclidean(p, centroids[len(centroids)-1]); d < minDist[i] {
				minDist[i] = d
			}
		}
	}

	assignment := make([]int, len(points))
	for iter := 0; iter < maxKMeansIterations; iter++ {
		changed := false
		for i, p := range points {
			best := 0
			bestDist := math.Inf(1)
			for c, centroid := range centroids {
				if d := euclidean(p, centroid); d < bestDist {
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

		dims := len(points[0])
		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dims)
		}
		for i, p := range points {
			c := assignment[i]
			counts[c]++
			for d, v := range p {
				sums[c][d] += float64(v)
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue
			}
			for d := range centroids[c] {
				centroids[c][d] = float32(sums[c][d] / float64(counts[c]))
			}
		}
	}

	return assignment, centroids
}
