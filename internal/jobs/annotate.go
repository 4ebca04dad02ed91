package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rohitpai/labelforge/pkg/models"
)

// runAnnotate runs the trained detector over every unlabeled image and
// writes the predictions as machine-authored annotations. Already-processed
// images carry the machine_labeled state and are not candidates on a re-run,
// so re-running after a failure is safe. Cancellation is checked between
// batches; cancellation latency is bounded by one batch.
func (r *Runner) runAnnotate(ctx context.Context, t task) ([]byte, error) {
	project, err := r.store.GetProject(ctx, t.projectID)
	if err != nil {
		return nil, err
	}
	if project.ModelRef == nil || *project.ModelRef == "" {
		return nil, fmt.Errorf("%w: no trained model for project", ErrNotReady)
	}
	modelRef := *project.ModelRef

	images, err := r.store.ListImages(ctx, t.projectID, models.LabelStateUnlabeled)
	if err != nil {
		return nil, err
	}
	classes, err := r.store.ListClasses(ctx, t.projectID)
	if err != nil {
		return nil, err
	}

	// The detector reports class indices in the order classes were listed
	// when the manifest was built; map them back to class ids by position.
	classIDs := make([]int, len(classes))
	for i, c := range classes {
		classIDs[i] = c.ID
	}

	r.setProjectStatus(ctx, t.projectID, models.ProjectStatusAutoAnnotating)

	annotated := 0
	boxes := 0
	batchSize := r.cfg.AnnotateBatchSize
	for start := 0; start < len(images); start += batchSize {
		if r.cancelRequested(ctx, t.jobID) {
			return nil, errCancelled
		}

		end := start + batchSize
		if end > len(images) {
			end = len(images)
		}

		for _, img := range images[start:end] {
			detections, err := r.backend.Detect(ctx, modelRef, img.FilePath, t.confidence)
			if err != nil {
				return nil, err
			}

			for _, det := range detections {
				if det.ClassIndex < 0 || det.ClassIndex >= len(classIDs) {
					continue
				}
				confidence := det.Confidence
				ann := &models.Annotation{
					ID:         uuid.New(),
					ImageID:    img.ID,
					ClassID:    classIDs[det.ClassIndex],
					BBox:       det.BBox,
					Confidence: &confidence,
					Source:     models.AnnotationSourceMachine,
					CreatedAt:  time.Now().UTC(),
				}
				if err := r.store.CreateAnnotation(ctx, ann); err != nil {
					return nil, err
				}
				boxes++
			}

			if err := r.store.UpdateImageLabelState(ctx, img.ID, models.LabelStateMachineLabeled); err != nil {
				return nil, err
			}
			annotated++
		}

		entry, _ := json.Marshal(map[string]int{
			"processed": annotated,
			"total":     len(images),
		})
		if err := r.store.AppendJobProgress(ctx, t.jobID, entry); err != nil {
			return nil, err
		}
	}

	// Only a completed run advances the workflow; failed and cancelled runs
	// leave the project status untouched.
	r.setProjectStatus(ctx, t.projectID, models.ProjectStatusCompleted)

	return json.Marshal(map[string]int{
		"annotated_count":  annotated,
		"annotation_count": boxes,
	})
}
