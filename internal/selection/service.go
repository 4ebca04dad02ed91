package selection

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rohitpai/labelforge/internal/cache"
	"github.com/rohitpai/labelforge/internal/vectors"
	"github.com/rohitpai/labelforge/pkg/models"
)

// ErrNoVectors is returned when a project has no feature vectors yet, so
// there is nothing to select from. Callers should run an embedding job first.
var ErrNoVectors = errors.New("project has no feature vectors")

// Selection results only change when vectors or label states do, so a short
// cache keeps repeated polls from recomputing the batch.
const resultTTL = 30 * time.Second

// projectStore is the slice of the store the service reads from.
type projectStore interface {
	GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error)
	ListImages(ctx context.Context, projectID uuid.UUID, labelStates ...string) ([]*models.Image, error)
}

// Result is one computed labeling batch.
type Result struct {
	ImageIDs       []uuid.UUID `json:"image_ids"`
	Strategy       Strategy    `json:"strategy"`
	Seed           int64       `json:"seed"`
	CandidateCount int         `json:"candidate_count"`
	ReferenceCount int         `json:"reference_count"`
}

// Service computes labeling batches for a project from its vector index.
type Service struct {
	store       projectStore
	index       *vectors.Index
	cache       cache.Cache
	defaultSeed int64
}

// NewService creates a selection service. cache may be nil, in which case
// every request recomputes.
func NewService(s projectStore, ix *vectors.Index, c cache.Cache, defaultSeed int64) *Service {
	return &Service{store: s, index: ix, cache: c, defaultSeed: defaultSeed}
}

// SelectForLabeling proposes the next batch of images to label. Candidates
// are the project's unlabeled images that have a feature vector; the
// reference set the batch diversifies against is the labeled and confirmed
// vectors only. Machine-labeled images are in neither set: their labels are
// unverified and must not steer the diversity strategies.
// seed is optional; the configured default applies when nil.
func (s *Service) SelectForLabeling(ctx context.Context, projectID uuid.UUID, strategy Strategy, batchSize int, seed *int64) (*Result, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}

	effectiveSeed := s.defaultSeed
	if seed != nil {
		effectiveSeed = *seed
	}

	cacheKey := cache.SelectionKey(projectID, requestHash(strategy, batchSize, effectiveSeed))
	if s.cache != nil {
		if raw, found, err := s.cache.Get(ctx, cacheKey); err == nil && found {
			var cached Result
			if json.Unmarshal(raw, &cached) == nil {
				return &cached, nil
			}
		}
	}

	vecs, err := s.index.Vectors(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, ErrNoVectors
	}

	unlabeled, err := s.store.ListImages(ctx, projectID, models.LabelStateUnlabeled)
	if err != nil {
		return nil, err
	}
	labeled, err := s.store.ListImages(ctx, projectID, models.LabelStateLabeled, models.LabelStateConfirmed)
	if err != nil {
		return nil, err
	}

	candidates := make(map[uuid.UUID][]float32, len(unlabeled))
	for _, img := range unlabeled {
		if v, ok := vecs[img.ID]; ok {
			candidates[img.ID] = v
		}
	}
	reference := make(map[uuid.UUID][]float32, len(labeled))
	for _, img := range labeled {
		if v, ok := vecs[img.ID]; ok {
			reference[img.ID] = v
		}
	}

	ids, err := SelectBatch(candidates, reference, strategy, batchSize, effectiveSeed)
	if err != nil {
		return nil, err
	}

	result := &Result{
		ImageIDs:       ids,
		Strategy:       strategy,
		Seed:           effectiveSeed,
		CandidateCount: len(candidates),
		ReferenceCount: len(reference),
	}

	if s.cache != nil {
		if raw, err := json.Marshal(result); err == nil {
			s.cache.Set(ctx, cacheKey, raw, resultTTL)
		}
	}
	return result, nil
}

func requestHash(strategy Strategy, batchSize int, seed int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%d", strategy, batchSize, seed)))
	return hex.EncodeToString(sum[:8])
}
