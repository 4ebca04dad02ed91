package ml

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/rohitpai/labelforge/pkg/models"
)

// MockBackend satisfies Backend for tests and local development. The default
// behaviors are deterministic: Embed derives the vector from the image path,
// Train reports a smoothly decreasing loss curve, Detect returns one box.
// Any of the funcs can be overridden per test.
type MockBackend struct {
	Name_      string
	Dims       int
	EmbedFunc  func(ctx context.Context, imagePath string) ([]float32, error)
	TrainFunc  func(ctx context.Context, manifest DatasetManifest, cfg TrainConfig, onEpoch func(EpochMetrics)) (string, EpochMetrics, error)
	DetectFunc func(ctx context.Context, modelRef, imagePath string, confidence float64) ([]Detection, error)
}

func (m *MockBackend) Name() string { return m.Name_ }

func (m *MockBackend) Dimensions() int { return m.Dims }

func (m *MockBackend) Embed(ctx context.Context, imagePath string) ([]float32, error) {
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, imagePath)
	}
	return deterministicVector(imagePath, m.Dims), nil
}

func (m *MockBackend) Train(ctx context.Context, manifest DatasetManifest, cfg TrainConfig, onEpoch func(EpochMetrics)) (string, EpochMetrics, error) {
	if m.TrainFunc != nil {
		return m.TrainFunc(ctx, manifest, cfg, onEpoch)
	}

	var final EpochMetrics
	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		if ctx.Err() != nil {
			return "", final, ctx.Err()
		}
		progress := float64(epoch) / float64(cfg.Epochs)
		final = EpochMetrics{
			Epoch:     epoch,
			BoxLoss:   1.0 - 0.8*progress,
			ClsLoss:   0.9 - 0.7*progress,
			Precision: 0.5 + 0.4*progress,
			Recall:    0.4 + 0.5*progress,
			MAP50:     0.3 + 0.6*progress,
		}
		if onEpoch != nil {
			onEpoch(final)
		}
	}
	return fmt.Sprintf("mock-model-%s", manifest.ProjectID), final, nil
}

func (m *MockBackend) Detect(ctx context.Context, modelRef, imagePath string, confidence float64) ([]Detection, error) {
	if m.DetectFunc != nil {
		return m.DetectFunc(ctx, modelRef, imagePath, confidence)
	}
	return []Detection{{
		ClassIndex: 0,
		BBox:       models.BBox{X: 0.5, Y: 0.5, W: 0.2, H: 0.2},
		Confidence: 0.9,
	}}, nil
}

// NewMockBackend returns a MockBackend with the default deterministic
// behaviors and the given embedding dimensionality.
func NewMockBackend(dims int) *MockBackend {
	return &MockBackend{Name_: "mock", Dims: dims}
}

// NewFailingBackend returns a MockBackend whose every capability returns err.
func NewFailingBackend(dims int, err error) *MockBackend {
	return &MockBackend{
		Name_: "mock-failing",
		Dims:  dims,
		EmbedFunc: func(_ context.Context, _ string) ([]float32, error) {
			return nil, err
		},
		TrainFunc: func(_ context.Context, _ DatasetManifest, _ TrainConfig, _ func(EpochMetrics)) (string, EpochMetrics, error) {
			return "", EpochMetrics{}, err
		},
		DetectFunc: func(_ context.Context, _, _ string, _ float64) ([]Detection, error) {
			return nil, err
		},
	}
}

// deterministicVector hashes the seed string into a unit-scale vector so the
// same input always embeds identically.
func deterministicVector(seed string, dims int) []float32 {
	v := make([]float32, dims)
	h := fnv.New64a()
	for i := range v {
		h.Write([]byte(seed))
		h.Write([]byte{byte(i)})
		v[i] = float32(h.Sum64()%1000) / 1000.0
	}
	return v
}

var _ Backend = (*MockBackend)(nil)
