// Package vectors provides an in-memory similarity index over a project's
// feature vectors. The index is a pure cache: it is rebuilt lazily from the
// durable store, and dropping it is never a correctness issue.
package vectors

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rohitpai/labelforge/pkg/models"
)

// Source is the durable store the index rebuilds from.
type Source interface {
	GetFeatureVectors(ctx context.Context, projectID uuid.UUID) ([]*models.FeatureVector, error)
}

// Neighbor is one nearest-neighbor search hit.
type Neighbor struct {
	ImageID  uuid.UUID `json:"image_id"`
	Distance float64   `json:"distance"`
}

type projectIndex struct {
	ids     []uuid.UUID
	vectors map[uuid.UUID][]float32
}

// Index caches per-project vector sets loaded from a Source. Safe for
// concurrent use.
type Index struct {
	source Source

	mu      sync.RWMutex
	indexes map[uuid.UUID]*projectIndex
}

// NewIndex creates an empty Index backed by the given source.
func NewIndex(source Source) *Index {
	return &Index{
		source:  source,
		indexes: make(map[uuid.UUID]*projectIndex),
	}
}

// Invalidate drops the cached index for a project. Called after a job
// writes new vectors; the next read rebuilds.
func (ix *Index) Invalidate(projectID uuid.UUID) {
	ix.mu.Lock()
	delete(ix.indexes, projectID)
	ix.mu.Unlock()
}

// Vectors returns the project's vectors keyed by image id, loading from the
// source on first use. Callers must not mutate the returned map.
func (ix *Index) Vectors(ctx context.Context, projectID uuid.UUID) (map[uuid.UUID][]float32, error) {
	pi, err := ix.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return pi.vectors, nil
}

// NearestNeighbors returns up to k vectors closest to the query by Euclidean
// distance, nearest first. Brute force over the project's vectors; labeling
// pools are small enough that no approximate structure is needed.
func (ix *Index) NearestNeighbors(ctx context.Context, projectID uuid.UUID, query []float32, k int) ([]Neighbor, error) {
	pi, err := ix.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if k <= 0 || len(pi.ids) == 0 {
		return []Neighbor{}, nil
	}

	neighbors := make([]Neighbor, 0, len(pi.ids))
	for _, id := range pi.ids {
		v := pi.vectors[id]
		if len(v) != len(query) {
			return nil, fmt.Errorf("query has %d dimensions, index has %d", len(query), len(v))
		}
		neighbors = append(neighbors, Neighbor{ImageID: id, Distance: euclidean(query, v)})
	}

	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Distance != neighbors[j].Distance {
			return neighbors[i].Distance < neighbors[j].Distance
		}
		return neighbors[i].ImageID.String() < neighbors[j].ImageID.String()
	})

	if k < len(neighbors) {
		neighbors = neighbors[:k]
	}
	return neighbors, nil
}

func (ix *Index) load(ctx context.Context, projectID uuid.UUID) (*projectIndex, error) {
	ix.mu.RLock()
	pi, ok := ix.indexes[projectID]
	ix.mu.RUnlock()
	if ok {
		return pi, nil
	}

	fvs, err := ix.source.GetFeatureVectors(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("rebuild vector index: %w", err)
	}

	pi = &projectIndex{
		ids:     make([]uuid.UUID, 0, len(fvs)),
		vectors: make(map[uuid.UUID][]float32, len(fvs)),
	}
	for _, fv := range fvs {
		pi.ids = append(pi.ids, fv.ImageID)
		pi.vectors[fv.ImageID] = fv.Vector
	}

	ix.mu.Lock()
	// Another goroutine may have rebuilt concurrently; either copy is
	// equally fresh, keep the existing one.
	if existing, ok := ix.indexes[projectID]; ok {
		pi = existing
	} else {
		ix.indexes[projectID] = pi
	}
	ix.mu.Unlock()
	return pi, nil
}

func euclidean(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
