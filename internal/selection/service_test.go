package selection_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rohitpai/labelforge/internal/selection"
	"github.com/rohitpai/labelforge/internal/store"
	"github.com/rohitpai/labelforge/internal/vectors"
	"github.com/rohitpai/labelforge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProjectStore struct {
	projectID uuid.UUID
	images    []*models.Image
	listCalls int
}

func (f *fakeProjectStore) GetProject(_ context.Context, id uuid.UUID) (*models.Project, error) {
	if id != f.projectID {
		return nil, store.ErrNotFound
	}
	return &models.Project{ID: id, Name: "p", Status: models.ProjectStatusAnnotating}, nil
}

func (f *fakeProjectStore) ListImages(_ context.Context, projectID uuid.UUID, labelStates ...string) ([]*models.Image, error) {
	f.listCalls++
	var out []*models.Image
	for _, img := range f.images {
		if img.ProjectID != projectID {
			continue
		}
		for _, s := range labelStates {
			if img.LabelState == s {
				out = append(out, img)
				break
			}
		}
	}
	return out, nil
}

type fakeVectorSource struct {
	vectors map[uuid.UUID][]float32
	project uuid.UUID
}

func (f *fakeVectorSource) GetFeatureVectors(_ context.Context, projectID uuid.UUID) ([]*models.FeatureVector, error) {
	var out []*models.FeatureVector
	if projectID != f.project {
		return out, nil
	}
	for id, v := range f.vectors {
		out = append(out, &models.FeatureVector{ImageID: id, ProjectID: projectID, Vector: v})
	}
	return out, nil
}

type fakeCache struct {
	entries map[string][]byte
}

func newFakeCache() *fakeCache { return &fakeCache{entries: make(map[string][]byte)} }

func (c *fakeCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.entries[key] = value
	return nil
}

func (c *fakeCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := c.entries[key]
	return v, ok, nil
}

func (c *fakeCache) Delete(_ context.Context, key string) error {
	delete(c.entries, key)
	return nil
}

func (c *fakeCache) Ping(_ context.Context) error { return nil }

func (c *fakeCache) SetJobSnapshot(_ context.Context, _ uuid.UUID, _ []byte, _ time.Duration) error {
	return nil
}

func (c *fakeCache) GetJobSnapshot(_ context.Context, _ uuid.UUID) ([]byte, bool, error) {
	return nil, false, nil
}

func (c *fakeCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

// serviceFixture wires a service over n line vectors where images [0,labeled)
// are labeled and the rest unlabeled.
func serviceFixture(n, labeled int) (*selection.Service, *fakeProjectStore, uuid.UUID) {
	projectID := uuid.New()
	vecs := lineVectors(n)

	ps := &fakeProjectStore{projectID: projectID}
	for i := 0; i < n; i++ {
		state := models.LabelStateUnlabeled
		if i < labeled {
			state = models.LabelStateLabeled
		}
		ps.images = append(ps.images, &models.Image{
			ID: seqID(i), ProjectID: projectID, LabelState: state,
		})
	}

	ix := vectors.NewIndex(&fakeVectorSource{vectors: vecs, project: projectID})
	svc := selection.NewService(ps, ix, nil, 42)
	return svc, ps, projectID
}

func TestSelectForLabeling_ProjectNotFound(t *testing.T) {
	svc, _, _ := serviceFixture(5, 0)

	_, err := svc.SelectForLabeling(context.Background(), uuid.New(), selection.StrategyRandom, 3, nil)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSelectForLabeling_NoVectors(t *testing.T) {
	projectID := uuid.New()
	ps := &fakeProjectStore{projectID: projectID}
	ix := vectors.NewIndex(&fakeVectorSource{project: projectID})
	svc := selection.NewService(ps, ix, nil, 42)

	_, err := svc.SelectForLabeling(context.Background(), projectID, selection.StrategyMaxDistance, 3, nil)
	require.ErrorIs(t, err, selection.ErrNoVectors)
}

func TestSelectForLabeling_SplitsCandidatesAndReference(t *testing.T) {
	svc, _, projectID := serviceFixture(10, 4)

	result, err := svc.SelectForLabeling(context.Background(), projectID, selection.StrategyMaxDistance, 3, nil)
	require.NoError(t, err)

	assert.Equal(t, 6, result.CandidateCount)
	assert.Equal(t, 4, result.ReferenceCount)
	assert.Len(t, result.ImageIDs, 3)

	// Only unlabeled images (ids 4..9) may be proposed.
	for _, id := range result.ImageIDs {
		for i := 0; i < 4; i++ {
			assert.NotEqual(t, seqID(i), id)
		}
	}
}

func TestSelectForLabeling_MachineLabeledIsNeitherCandidateNorReference(t *testing.T) {
	projectID := uuid.New()

	// One machine-labeled image at [0] and two unlabeled candidates at [1]
	// and [9]. Unverified machine output must not act as a reference point,
	// so the reference set is empty and farthest-first falls back to its
	// smallest-id tie-break instead of chasing the point farthest from [0].
	vecs := map[uuid.UUID][]float32{
		seqID(0): {0},
		seqID(1): {1},
		seqID(2): {9},
	}
	ps := &fakeProjectStore{projectID: projectID, images: []*models.Image{
		{ID: seqID(0), ProjectID: projectID, LabelState: models.LabelStateMachineLabeled},
		{ID: seqID(1), ProjectID: projectID, LabelState: models.LabelStateUnlabeled},
		{ID: seqID(2), ProjectID: projectID, LabelState: models.LabelStateUnlabeled},
	}}
	ix := vectors.NewIndex(&fakeVectorSource{vectors: vecs, project: projectID})
	svc := selection.NewService(ps, ix, nil, 42)

	result, err := svc.SelectForLabeling(context.Background(), projectID, selection.StrategyMaxDistance, 1, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, result.CandidateCount)
	assert.Equal(t, 0, result.ReferenceCount)
	require.Len(t, result.ImageIDs, 1)
	assert.Equal(t, seqID(1), result.ImageIDs[0])
}

func TestSelectForLabeling_ReferenceIsLabeledAndConfirmedOnly(t *testing.T) {
	projectID := uuid.New()
	vecs := lineVectors(4)
	ps := &fakeProjectStore{projectID: projectID, images: []*models.Image{
		{ID: seqID(0), ProjectID: projectID, LabelState: models.LabelStateLabeled},
		{ID: seqID(1), ProjectID: projectID, LabelState: models.LabelStateConfirmed},
		{ID: seqID(2), ProjectID: projectID, LabelState: models.LabelStateMachineLabeled},
		{ID: seqID(3), ProjectID: projectID, LabelState: models.LabelStateUnlabeled},
	}}
	ix := vectors.NewIndex(&fakeVectorSource{vectors: vecs, project: projectID})
	svc := selection.NewService(ps, ix, nil, 42)

	result, err := svc.SelectForLabeling(context.Background(), projectID, selection.StrategyMaxDistance, 1, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.CandidateCount)
	assert.Equal(t, 2, result.ReferenceCount)
	assert.Equal(t, []uuid.UUID{seqID(3)}, result.ImageIDs)
}

func TestSelectForLabeling_DefaultSeedApplied(t *testing.T) {
	svc, _, projectID := serviceFixture(10, 0)

	result, err := svc.SelectForLabeling(context.Background(), projectID, selection.StrategyRandom, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(42), result.Seed)

	seed := int64(7)
	result, err = svc.SelectForLabeling(context.Background(), projectID, selection.StrategyRandom, 3, &seed)
	require.NoError(t, err)
	assert.Equal(t, int64(7), result.Seed)
}

func TestSelectForLabeling_CachesByRequest(t *testing.T) {
	projectID := uuid.New()
	vecs := lineVectors(6)
	ps := &fakeProjectStore{projectID: projectID}
	for i := 0; i < 6; i++ {
		ps.images = append(ps.images, &models.Image{
			ID: seqID(i), ProjectID: projectID, LabelState: models.LabelStateUnlabeled,
		})
	}
	ix := vectors.NewIndex(&fakeVectorSource{vectors: vecs, project: projectID})
	fc := newFakeCache()
	svc := selection.NewService(ps, ix, fc, 42)

	first, err := svc.SelectForLabeling(context.Background(), projectID, selection.StrategyMaxDistance, 2, nil)
	require.NoError(t, err)
	listCallsAfterFirst := ps.listCalls

	second, err := svc.SelectForLabeling(context.Background(), projectID, selection.StrategyMaxDistance, 2, nil)
	require.NoError(t, err)

	assert.Equal(t, first.ImageIDs, second.ImageIDs)
	assert.Equal(t, listCallsAfterFirst, ps.listCalls, "cache hit must not rescan images")

	// A different batch size is a different cache entry and recomputes.
	_, err = svc.SelectForLabeling(context.Background(), projectID, selection.StrategyMaxDistance, 3, nil)
	require.NoError(t, err)
	assert.Greater(t, ps.listCalls, listCallsAfterFirst)
}
