package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rohitpai/labelforge/pkg/models"
)

// runEmbed extracts a feature vector for every image in the project that
// lacks one. Already-embedded images are skipped, so re-running after a
// failure is cheap and idempotent. Cancellation is checked between batches;
// cancellation latency is bounded by one batch.
func (r *Runner) runEmbed(ctx context.Context, t task) ([]byte, error) {
	images, err := r.store.ListImages(ctx, t.projectID)
	if err != nil {
		return nil, err
	}
	have, err := r.store.ListImageIDsWithVectors(ctx, t.projectID)
	if err != nil {
		return nil, err
	}

	var pending []*models.Image
	for _, img := range images {
		if !have[img.ID] {
			pending = append(pending, img)
		}
	}

	r.setProjectStatus(ctx, t.projectID, models.ProjectStatusEmbedding)

	embedded := 0
	batchSize := r.cfg.EmbedBatchSize
	for start := 0; start < len(pending); start += batchSize {
		if r.cancelRequested(ctx, t.jobID) {
			return nil, errCancelled
		}

		end := start + batchSize
		if end > len(pending) {
			end = len(pending)
		}

		for _, img := range pending[start:end] {
			vector, err := r.backend.Embed(ctx, img.FilePath)
			if err != nil {
				return nil, err
			}
			fv := &models.FeatureVector{
				ImageID:     img.ID,
				ProjectID:   t.projectID,
				Vector:      vector,
				GeneratedAt: time.Now().UTC(),
			}
			if err := r.store.PutFeatureVector(ctx, fv); err != nil {
				return nil, err
			}
			embedded++
		}

		entry, _ := json.Marshal(map[string]int{
			"processed": embedded,
			"total":     len(pending),
		})
		if err := r.store.AppendJobProgress(ctx, t.jobID, entry); err != nil {
			return nil, err
		}
	}

	// New vectors invalidate the derived similarity index.
	r.index.Invalidate(t.projectID)

	// Only a completed run advances the workflow; failed and cancelled runs
	// leave the project status untouched.
	r.setProjectStatus(ctx, t.projectID, models.ProjectStatusAnnotating)

	return json.Marshal(map[string]int{
		"embedded_count": embedded,
		"skipped_count":  len(images) - len(pending),
	})
}
