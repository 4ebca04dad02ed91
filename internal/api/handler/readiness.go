package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rohitpai/labelforge/internal/api/response"
	"github.com/rohitpai/labelforge/internal/cache"
	"github.com/rohitpai/labelforge/internal/jobs"
	"github.com/rohitpai/labelforge/internal/store"
)

// Readiness flips only when labels or classes change, so a short cache
// absorbs tight polling from labeling UIs.
const readinessTTL = 10 * time.Second

// ReadinessChecker defines the interface the handler depends on.
type ReadinessChecker interface {
	TrainingReadiness(ctx context.Context, projectID uuid.UUID) (*jobs.Readiness, error)
}

// NewReadinessHandler returns an http.HandlerFunc for
// GET /api/v1/projects/{projectID}/readiness. c may be nil.
func NewReadinessHandler(svc ReadinessChecker, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, ok := parseProjectID(w, r)
		if !ok {
			return
		}

		if c != nil {
			if raw, found, err := c.Get(r.Context(), cache.ReadinessKey(projectID)); err == nil && found {
				response.JSON(w, json.RawMessage(raw))
				return
			}
		}

		readiness, err := svc.TrainingReadiness(r.Context(), projectID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Project not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		if c != nil {
			if raw, err := json.Marshal(readiness); err == nil {
				c.Set(r.Context(), cache.ReadinessKey(projectID), raw, readinessTTL)
			}
		}

		response.JSON(w, readiness)
	}
}
