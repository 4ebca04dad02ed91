package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rohitpai/labelforge/internal/ml"
	"github.com/rohitpai/labelforge/pkg/models"
)

// runTrain builds a dataset manifest from the project's labeled images and
// hands it to the model backend. Each epoch's metrics become one progress
// entry, and the cancel flag is checked at every epoch boundary, so
// cancellation latency is bounded by one epoch.
func (r *Runner) runTrain(ctx context.Context, t task) ([]byte, error) {
	// Readiness was checked at submission; labels may have changed since.
	readiness, err := r.TrainingReadiness(ctx, t.projectID)
	if err != nil {
		return nil, err
	}
	if !readiness.Ready {
		return nil, fmt.Errorf("%w: %s", ErrNotReady, readiness.Reason)
	}

	manifest, err := r.buildManifest(ctx, t.projectID)
	if err != nil {
		return nil, err
	}

	r.setProjectStatus(ctx, t.projectID, models.ProjectStatusTraining)

	trainCtx, stopTraining := context.WithCancel(ctx)
	defer stopTraining()

	cancelled := false
	onEpoch := func(m ml.EpochMetrics) {
		entry, _ := json.Marshal(m)
		if err := r.store.AppendJobProgress(ctx, t.jobID, entry); err != nil {
			// Progress loss is not fatal to the training run.
			return
		}
		if r.cancelRequested(ctx, t.jobID) {
			cancelled = true
			stopTraining()
		}
	}

	trainCfg := ml.TrainConfig{Epochs: t.train.Epochs, BatchSize: t.train.BatchSize}
	modelRef, final, err := r.backend.Train(trainCtx, manifest, trainCfg, onEpoch)
	if err != nil {
		if cancelled && errors.Is(err, context.Canceled) {
			return nil, errCancelled
		}
		return nil, err
	}

	if err := r.store.SetProjectModelRef(ctx, t.projectID, modelRef); err != nil {
		return nil, err
	}

	// Only a completed run advances the workflow; failed and cancelled runs
	// leave the project status untouched.
	r.setProjectStatus(ctx, t.projectID, models.ProjectStatusAnnotating)

	return json.Marshal(map[string]any{
		"model_ref":     modelRef,
		"image_count":   len(manifest.Images),
		"final_metrics": final,
	})
}

// buildManifest assembles the training dataset from labeled and confirmed
// images. Class indices are assigned by class id order; the detector reports
// the same indices back at inference time.
func (r *Runner) buildManifest(ctx context.Context, projectID uuid.UUID) (ml.DatasetManifest, error) {
	images, err := r.store.ListImages(ctx, projectID, models.LabelStateLabeled, models.LabelStateConfirmed)
	if err != nil {
		return ml.DatasetManifest{}, err
	}
	classes, err := r.store.ListClasses(ctx, projectID)
	if err != nil {
		return ml.DatasetManifest{}, err
	}

	imageIDs := make([]uuid.UUID, len(images))
	for i, img := range images {
		imageIDs[i] = img.ID
	}
	annotations, err := r.store.ListAnnotationsByImages(ctx, imageIDs)
	if err != nil {
		return ml.DatasetManifest{}, err
	}

	classIndex := make(map[int]int, len(classes))
	classNames := make([]string, len(classes))
	for i, c := range classes {
		classIndex[c.ID] = i
		classNames[i] = c.Name
	}

	labelsByImage := make(map[uuid.UUID][]ml.ManifestLabel)
	for _, ann := range annotations {
		idx, ok := classIndex[ann.ClassID]
		if !ok {
			continue
		}
		labelsByImage[ann.ImageID] = append(labelsByImage[ann.ImageID], ml.ManifestLabel{
			ClassIndex: idx,
			BBox:       ann.BBox,
		})
	}

	manifest := ml.DatasetManifest{
		ProjectID: projectID.String(),
		Classes:   classNames,
		Images:    make([]ml.ManifestImage, 0, len(images)),
	}
	for _, img := range images {
		manifest.Images = append(manifest.Images, ml.ManifestImage{
			ImageID:  img.ID.String(),
			FilePath: img.FilePath,
			Width:    img.Width,
			Height:   img.Height,
			Labels:   labelsByImage[img.ID],
		})
	}
	return manifest, nil
}
