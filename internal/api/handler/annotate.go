package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/rohitpai/labelforge/internal/api/response"
	"github.com/rohitpai/labelforge/pkg/models"
)

const defaultConfidenceThreshold = 0.25

// AnnotateSubmitter defines the interface the handler depends on.
type AnnotateSubmitter interface {
	SubmitAnnotate(ctx context.Context, projectID uuid.UUID, confidence float64) (*models.Job, error)
}

// NewAutoAnnotateHandler returns an http.HandlerFunc for
// POST /api/v1/projects/{projectID}/annotations/auto.
func NewAutoAnnotateHandler(svc AnnotateSubmitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, ok := parseProjectID(w, r)
		if !ok {
			return
		}

		var req struct {
			ConfidenceThreshold *float64 `json:"confidence_threshold"`
		}
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
				return
			}
		}

		confidence := defaultConfidenceThreshold
		if req.ConfidenceThreshold != nil {
			confidence = *req.ConfidenceThreshold
		}
		if confidence <= 0 || confidence >= 1 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"confidence_threshold must be between 0 and 1 exclusive", nil)
			return
		}

		job, err := svc.SubmitAnnotate(r.Context(), projectID, confidence)
		if err != nil {
			submitError(w, err)
			return
		}

		acceptedJob(w, job)
	}
}
