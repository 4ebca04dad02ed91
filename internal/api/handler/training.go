package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/rohitpai/labelforge/internal/api/response"
	"github.com/rohitpai/labelforge/internal/jobs"
	"github.com/rohitpai/labelforge/pkg/models"
)

const (
	defaultEpochs    = 50
	maxEpochs        = 500
	defaultBatchSize = 16
	maxTrainBatch    = 128
)

// TrainSubmitter defines the interface the handler depends on.
type TrainSubmitter interface {
	SubmitTrain(ctx context.Context, projectID uuid.UUID, params jobs.TrainParams) (*models.Job, error)
}

// NewSubmitTrainingHandler returns an http.HandlerFunc for
// POST /api/v1/projects/{projectID}/training.
func NewSubmitTrainingHandler(svc TrainSubmitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, ok := parseProjectID(w, r)
		if !ok {
			return
		}

		var req struct {
			Epochs    int `json:"epochs"`
			BatchSize int `json:"batch_size"`
		}
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
				return
			}
		}

		if req.Epochs == 0 {
			req.Epochs = defaultEpochs
		}
		if req.Epochs < 1 || req.Epochs > maxEpochs {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"epochs must be between 1 and 500", nil)
			return
		}

		if req.BatchSize == 0 {
			req.BatchSize = defaultBatchSize
		}
		if req.BatchSize < 1 || req.BatchSize > maxTrainBatch {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"batch_size must be between 1 and 128", nil)
			return
		}

		job, err := svc.SubmitTrain(r.Context(), projectID, jobs.TrainParams{
			Epochs:    req.Epochs,
			BatchSize: req.BatchSize,
		})
		if err != nil {
			submitError(w, err)
			return
		}

		acceptedJob(w, job)
	}
}
