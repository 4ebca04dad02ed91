package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rohitpai/labelforge/internal/api/response"
	"github.com/rohitpai/labelforge/internal/cache"
	"github.com/rohitpai/labelforge/internal/store"
	"github.com/rohitpai/labelforge/pkg/models"
)

// Terminal jobs are immutable, so their snapshots can sit in Redis for a
// while without going stale.
const jobSnapshotTTL = 5 * time.Minute

// JobStore defines the interface the job handlers depend on.
type JobStore interface {
	GetJob(ctx context.Context, id uuid.UUID, afterSeq int) (*models.Job, error)
	RequestJobCancel(ctx context.Context, id uuid.UUID) error
}

type jobSnapshot struct {
	JobID           string                    `json:"job_id"`
	ProjectID       string                    `json:"project_id"`
	Kind            string                    `json:"kind"`
	Status          string                    `json:"status"`
	CancelRequested bool                      `json:"cancel_requested"`
	Result          json.RawMessage           `json:"result,omitempty"`
	Error           *string                   `json:"error,omitempty"`
	CreatedAt       time.Time                 `json:"created_at"`
	StartedAt       *time.Time                `json:"started_at,omitempty"`
	FinishedAt      *time.Time                `json:"finished_at,omitempty"`
	Progress        []models.JobProgressEntry `json:"progress"`
}

func snapshotOf(job *models.Job) jobSnapshot {
	progress := job.Progress
	if progress == nil {
		progress = []models.JobProgressEntry{}
	}
	return jobSnapshot{
		JobID:           job.ID.String(),
		ProjectID:       job.ProjectID.String(),
		Kind:            job.Kind,
		Status:          job.Status,
		CancelRequested: job.CancelRequested,
		Result:          job.Result,
		Error:           job.ErrorMessage,
		CreatedAt:       job.CreatedAt,
		StartedAt:       job.StartedAt,
		FinishedAt:      job.FinishedAt,
		Progress:        progress,
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
// The optional ?after=k query returns only progress entries with seq > k.
// c may be nil.
func NewGetJobHandler(s JobStore, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid job ID format", nil)
			return
		}

		after := 0
		if raw := r.URL.Query().Get("after"); raw != "" {
			after, err = strconv.Atoi(raw)
			if err != nil || after < 0 {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"after must be a non-negative integer", nil)
				return
			}
		}

		// Full snapshots of terminal jobs are served from Redis.
		if c != nil && after == 0 {
			if raw, found, err := c.GetJobSnapshot(r.Context(), jobID); err == nil && found {
				response.JSON(w, json.RawMessage(raw))
				return
			}
		}

		job, err := s.GetJob(r.Context(), jobID, after)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		snapshot := snapshotOf(job)
		if c != nil && after == 0 && models.TerminalJobStatus(job.Status) {
			if raw, err := json.Marshal(snapshot); err == nil {
				c.SetJobSnapshot(r.Context(), jobID, raw, jobSnapshotTTL)
			}
		}

		response.JSON(w, snapshot)
	}
}

// NewCancelJobHandler returns an http.HandlerFunc for DELETE /api/v1/jobs/{jobID}.
// Cancellation is cooperative: this only sets the flag; the worker honors it
// at its next checkpoint.
func NewCancelJobHandler(s JobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid job ID format", nil)
			return
		}

		if err := s.RequestJobCancel(r.Context(), jobID); err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
			case errors.Is(err, store.ErrInvalidTransition):
				response.Error(w, http.StatusConflict, "INVALID_TRANSITION",
					"Job has already finished", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}

		response.Accepted(w, map[string]string{
			"job_id": jobID.String(),
			"status": "cancel_requested",
		})
	}
}
