// Package handler holds the HTTP handlers for the labeling API. Each handler
// depends on a narrow interface so tests can swap in fakes.
package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rohitpai/labelforge/internal/api/response"
	"github.com/rohitpai/labelforge/internal/jobs"
	"github.com/rohitpai/labelforge/internal/store"
	"github.com/rohitpai/labelforge/pkg/models"
)

func parseProjectID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "projectID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid project ID format", nil)
		return uuid.Nil, false
	}
	return id, true
}

// jobAccepted is the 202 payload for every job submission endpoint.
type jobAccepted struct {
	JobID  string `json:"job_id"`
	Kind   string `json:"kind"`
	Status string `json:"status"`
}

func acceptedJob(w http.ResponseWriter, job *models.Job) {
	response.Accepted(w, jobAccepted{
		JobID:  job.ID.String(),
		Kind:   job.Kind,
		Status: job.Status,
	})
}

// submitError maps job submission failures onto the error envelope.
func submitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Project not found", nil)
	case errors.Is(err, store.ErrConflict):
		response.Error(w, http.StatusConflict, "CONFLICT",
			"An active job of this kind already exists for the project", nil)
	case errors.Is(err, jobs.ErrNotReady):
		response.Error(w, http.StatusUnprocessableEntity, "NOT_READY", err.Error(), nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}
