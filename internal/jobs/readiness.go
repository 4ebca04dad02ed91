package jobs

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rohitpai/labelforge/pkg/models"
)

// Readiness is the synchronous pre-flight answer to "may a training job
// start for this project". The same check gates SubmitTrain.
type Readiness struct {
	Ready            bool   `json:"ready"`
	LabeledImages    int    `json:"labeled_images"`
	MinLabeledImages int    `json:"min_labeled_images"`
	ClassCount       int    `json:"class_count"`
	Reason           string `json:"reason,omitempty"`
}

// TrainingReadiness checks the training preconditions: at least the
// configured minimum of labeled (or confirmed) images, and at least one
// class defined.
func (r *Runner) TrainingReadiness(ctx context.Context, projectID uuid.UUID) (*Readiness, error) {
	if _, err := r.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}

	labeled, err := r.store.CountImages(ctx, projectID, models.LabelStateLabeled, models.LabelStateConfirmed)
	if err != nil {
		return nil, err
	}
	classes, err := r.store.ListClasses(ctx, projectID)
	if err != nil {
		return nil, err
	}

	readiness := &Readiness{
		LabeledImages:    labeled,
		MinLabeledImages: r.cfg.MinLabeledImages,
		ClassCount:       len(classes),
	}

	var reasons []string
	if labeled < r.cfg.MinLabeledImages {
		reasons = append(reasons, fmt.Sprintf("need at least %d labeled images, have %d", r.cfg.MinLabeledImages, labeled))
	}
	if len(classes) == 0 {
		reasons = append(reasons, "no classes defined")
	}

	readiness.Ready = len(reasons) == 0
	readiness.Reason = strings.Join(reasons, "; ")
	return readiness, nil
}
