// Package ml defines the contracts for the external model capabilities the
// labeling loop consumes: embedding extraction, detector training, and
// detection. The models themselves are black boxes behind a Backend.
package ml

import (
	"context"

	"github.com/rohitpai/labelforge/pkg/models"
)

// TrainConfig tunes one training run.
type TrainConfig struct {
	Epochs    int `json:"epochs"`
	BatchSize int `json:"batch_size"`
}

// EpochMetrics is the per-epoch metric row reported during training.
type EpochMetrics struct {
	Epoch     int     `json:"epoch"`
	BoxLoss   float64 `json:"box_loss"`
	ClsLoss   float64 `json:"cls_loss"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	MAP50     float64 `json:"map50"`
}

// Detection is one predicted box. ClassIndex is the model's class index,
// which callers map back to project class ids by position.
type Detection struct {
	ClassIndex int         `json:"class_index"`
	BBox       models.BBox `json:"bbox"`
	Confidence float64     `json:"confidence"`
}

// ManifestLabel is one ground-truth box in a dataset manifest.
type ManifestLabel struct {
	ClassIndex int         `json:"class_index"`
	BBox       models.BBox `json:"bbox"`
}

// ManifestImage is one labeled image in a dataset manifest.
type ManifestImage struct {
	ImageID  string          `json:"image_id"`
	FilePath string          `json:"file_path"`
	Width    int             `json:"width"`
	Height   int             `json:"height"`
	Labels   []ManifestLabel `json:"labels"`
}

// DatasetManifest describes the training dataset built from a project's
// labeled images. Class names are ordered; index in the slice is the class
// index the trained model reports.
type DatasetManifest struct {
	ProjectID string          `json:"project_id"`
	Classes   []string        `json:"classes"`
	Images    []ManifestImage `json:"images"`
}

// Backend provides the three model capabilities. Implementations must be
// safe for concurrent use; all calls may be slow and honor ctx cancellation.
type Backend interface {
	Name() string

	// Dimensions is the fixed length of vectors returned by Embed.
	Dimensions() int

	// Embed extracts a feature vector for one image.
	Embed(ctx context.Context, imagePath string) ([]float32, error)

	// Train runs one training job over the manifest. onEpoch is invoked
	// once per completed epoch, in order, from the calling goroutine's
	// perspective (it may block training); a cancelled ctx stops training
	// at the next epoch boundary. Returns the model artifact reference and
	// the final epoch's metrics.
	Train(ctx context.Context, manifest DatasetManifest, cfg TrainConfig, onEpoch func(EpochMetrics)) (string, EpochMetrics, error)

	// Detect runs the trained model on one image, dropping predictions
	// below the confidence threshold.
	Detect(ctx context.Context, modelRef, imagePath string, confidence float64) ([]Detection, error)
}
