// Package selection implements the active-learning sample selection
// strategies. All functions are pure: same inputs and seed, same output.
package selection

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/google/uuid"
)

// Strategy names a selection algorithm.
type Strategy string

const (
	// StrategyMaxDistance greedily picks the candidate farthest from the
	// reference set and everything selected so far (farthest-first).
	StrategyMaxDistance Strategy = "max_distance"
	// StrategyClustering partitions candidates with k-means and picks the
	// candidate nearest each non-empty cluster centroid.
	StrategyClustering Strategy = "clustering"
	// StrategyRandom is a seeded uniform sample without replacement.
	StrategyRandom Strategy = "random"
)

var ErrUnknownStrategy = errors.New("unknown selection strategy")

// ParseStrategy validates a strategy name.
func ParseStrategy(name string) (Strategy, error) {
	switch Strategy(name) {
	case StrategyMaxDistance, StrategyClustering, StrategyRandom:
		return Strategy(name), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}

// SelectBatch returns an ordered batch of candidate ids, at most batchSize
// long, drawn without repetition. The reference set is the already-labeled
// vectors that diversity strategies measure distance against; it may be
// empty. Distances are Euclidean throughout.
func SelectBatch(candidates, reference map[uuid.UUID][]float32, strategy Strategy, batchSize int, seed int64) ([]uuid.UUID, error) {
	if _, err := ParseStrategy(string(strategy)); err != nil {
		return nil, err
	}
	if len(candidates) == 0 || batchSize <= 0 {
		return []uuid.UUID{}, nil
	}
	if batchSize > len(candidates) {
		batchSize = len(candidates)
	}

	ids := sortedIDs(candidates)

	switch strategy {
	case StrategyRandom:
		return randomSelection(ids, batchSize, seed), nil
	case StrategyClustering:
		return clusteringSelection(candidates, reference, ids, batchSize, seed), nil
	default:
		return maxDistanceSelection(candidates, reference, ids, batchSize), nil
	}
}

// maxDistanceSelection is farthest-first (core-set) selection. minDist[c] is
// the distance from c to the nearest point in reference ∪ selected; each
// round picks the argmax, ties broken by ascending id via the iteration
// order of the pre-sorted id slice.
func maxDistanceSelection(candidates, reference map[uuid.UUID][]float32, sortedCandidates []uuid.UUID, batchSize int) []uuid.UUID {
	minDist := make(map[uuid.UUID]float64, len(candidates))
	for _, id := range sortedCandidates {
		minDist[id] = math.Inf(1)
		for _, ref := range reference {
			if d := euclidean(candidates[id], ref); d < minDist[id] {
				minDist[id] = d
			}
		}
	}

	selected := make([]uuid.UUID, 0, batchSize)
	remaining := sortedCandidates

	for len(selected) < batchSize {
		best := -1
		bestDist := math.Inf(-1)
		for i, id := range remaining {
			if minDist[id] > bestDist {
				bestDist = minDist[id]
				best = i
			}
		}

		pick := remaining[best]
		selected = append(selected, pick)
		remaining = append(remaining[:best:best], remaining[best+1:]...)

		for _, id := range remaining {
			if d := euclidean(candidates[id], candidates[pick]); d < minDist[id] {
				minDist[id] = d
			}
		}
	}
	return selected
}

// clusteringSelection runs k-means with k = batchSize and returns the member
// nearest each non-empty centroid. Degenerate inputs can converge to fewer
// than batchSize clusters; the shortfall is filled by farthest-first over
// the leftover candidates, measured against reference plus the picks so far.
func clusteringSelection(candidates, reference map[uuid.UUID][]float32, sortedCandidates []uuid.UUID, batchSize int, seed int64) []uuid.UUID {
	points := make([][]float32, len(sortedCandidates))
	for i, id := range sortedCandidates {
		points[i] = candidates[id]
	}

	assignment, centroids := kmeans(points, batchSize, seed)

	selected := make([]uuid.UUID, 0, batchSize)
	taken := make(map[uuid.UUID]bool, batchSize)
	for c := range centroids {
		best := -1
		bestDist := math.Inf(1)
		for i, id := range sortedCandidates {
			if assignment[i] != c || taken[id] {
				continue
			}
			if d := euclidean(points[i], centroids[c]); d < bestDist {
				bestDist = d
				best = i
			}
		}
		if best >= 0 {
			selected = append(selected, sortedCandidates[best])
			taken[sortedCandidates[best]] = true
		}
	}

	if len(selected) < batchSize {
		// Fill the shortfall with farthest-first over the leftovers,
		// treating reference plus the picks so far as the labeled set.
		leftovers := make(map[uuid.UUID][]float32)
		leftoverIDs := make([]uuid.UUID, 0, len(sortedCandidates)-len(selected))
		for _, id := range sortedCandidates {
			if !taken[id] {
				leftovers[id] = candidates[id]
				leftoverIDs = append(leftoverIDs, id)
			}
		}
		ref := make(map[uuid.UUID][]float32, len(reference)+len(selected))
		for id, v := range reference {
			ref[id] = v
		}
		for _, id := range selected {
			ref[id] = candidates[id]
		}
		fill := maxDistanceSelection(leftovers, ref, leftoverIDs, batchSize-len(selected))
		selected = append(selected, fill...)
	}
	return selected
}

func randomSelection(sortedCandidates []uuid.UUID, batchSize int, seed int64) []uuid.UUID {
	rng := rand.New(rand.NewSource(seed))
	shuffled := make([]uuid.UUID, len(sortedCandidates))
	copy(shuffled, sortedCandidates)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled[:batchSize]
}

// sortedIDs returns the map keys in ascending byte order, the canonical
// candidate ordering used for deterministic tie-breaking.
func sortedIDs(vectors map[uuid.UUID][]float32) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(vectors))
	for id := range vectors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
	return ids
}

func euclidean(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
