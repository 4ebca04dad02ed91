package vectors_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rohitpai/labelforge/internal/vectors"
	"github.com/rohitpai/labelforge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource serves canned vectors and counts loads, so tests can observe
// lazy rebuilds.
type fakeSource struct {
	vectors map[uuid.UUID][]*models.FeatureVector
	loads   int
}

func (f *fakeSource) GetFeatureVectors(_ context.Context, projectID uuid.UUID) ([]*models.FeatureVector, error) {
	f.loads++
	return f.vectors[projectID], nil
}

func newFakeSource(projectID uuid.UUID, vecs map[uuid.UUID][]float32) *fakeSource {
	var fvs []*models.FeatureVector
	for id, v := range vecs {
		fvs = append(fvs, &models.FeatureVector{
			ImageID:     id,
			ProjectID:   projectID,
			Vector:      v,
			GeneratedAt: time.Now().UTC(),
		})
	}
	return &fakeSource{vectors: map[uuid.UUID][]*models.FeatureVector{projectID: fvs}}
}

func TestIndex_LazyRebuildOnce(t *testing.T) {
	projectID := uuid.New()
	a, b := uuid.New(), uuid.New()
	src := newFakeSource(projectID, map[uuid.UUID][]float32{a: {0, 0}, b: {3, 4}})
	ix := vectors.NewIndex(src)

	got, err := ix.Vectors(context.Background(), projectID)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 1, src.loads)

	// Second read is served from cache.
	_, err = ix.Vectors(context.Background(), projectID)
	require.NoError(t, err)
	assert.Equal(t, 1, src.loads)
}

func TestIndex_InvalidateTriggersRebuild(t *testing.T) {
	projectID := uuid.New()
	a := uuid.New()
	src := newFakeSource(projectID, map[uuid.UUID][]float32{a: {1}})
	ix := vectors.NewIndex(src)

	_, err := ix.Vectors(context.Background(), projectID)
	require.NoError(t, err)
	require.Equal(t, 1, src.loads)

	ix.Invalidate(projectID)
	_, err = ix.Vectors(context.Background(), projectID)
	require.NoError(t, err)
	assert.Equal(t, 2, src.loads)
}

func TestIndex_EmptyProjectIsNotAnError(t *testing.T) {
	ix := vectors.NewIndex(&fakeSource{vectors: map[uuid.UUID][]*models.FeatureVector{}})

	got, err := ix.Vectors(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNearestNeighbors_OrderedByDistance(t *testing.T) {
	projectID := uuid.New()
	near, mid, far := uuid.New(), uuid.New(), uuid.New()
	src := newFakeSource(projectID, map[uuid.UUID][]float32{
		near: {1, 0},
		mid:  {5, 0},
		far:  {50, 0},
	})
	ix := vectors.NewIndex(src)

	got, err := ix.NearestNeighbors(context.Background(), projectID, []float32{0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, near, got[0].ImageID)
	assert.InDelta(t, 1.0, got[0].Distance, 1e-9)
	assert.Equal(t, mid, got[1].ImageID)
	assert.InDelta(t, 5.0, got[1].Distance, 1e-9)
}

func TestNearestNeighbors_KLargerThanIndex(t *testing.T) {
	projectID := uuid.New()
	a := uuid.New()
	src := newFakeSource(projectID, map[uuid.UUID][]float32{a: {2}})
	ix := vectors.NewIndex(src)

	got, err := ix.NearestNeighbors(context.Background(), projectID, []float32{0}, 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestNearestNeighbors_DimensionMismatch(t *testing.T) {
	projectID := uuid.New()
	src := newFakeSource(projectID, map[uuid.UUID][]float32{uuid.New(): {1, 2, 3}})
	ix := vectors.NewIndex(src)

	_, err := ix.NearestNeighbors(context.Background(), projectID, []float32{1}, 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimensions")
}
