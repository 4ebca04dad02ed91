package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/rohitpai/labelforge/internal/api/response"
	"github.com/rohitpai/labelforge/internal/selection"
	"github.com/rohitpai/labelforge/internal/store"
)

const (
	defaultSelectionBatch = 10
	maxSelectionBatch     = 500
)

// Selector defines the interface the handler depends on.
type Selector interface {
	SelectForLabeling(ctx context.Context, projectID uuid.UUID, strategy selection.Strategy, batchSize int, seed *int64) (*selection.Result, error)
}

// NewSelectionHandler returns an http.HandlerFunc for
// GET /api/v1/projects/{projectID}/selection.
func NewSelectionHandler(svc Selector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, ok := parseProjectID(w, r)
		if !ok {
			return
		}

		strategyParam := r.URL.Query().Get("strategy")
		if strategyParam == "" {
			strategyParam = string(selection.StrategyMaxDistance)
		}
		strategy, err := selection.ParseStrategy(strategyParam)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
			return
		}

		batchSize := defaultSelectionBatch
		if raw := r.URL.Query().Get("batch_size"); raw != "" {
			batchSize, err = strconv.Atoi(raw)
			if err != nil || batchSize < 1 || batchSize > maxSelectionBatch {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"batch_size must be an integer between 1 and 500", nil)
				return
			}
		}

		var seed *int64
		if raw := r.URL.Query().Get("seed"); raw != "" {
			v, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"seed must be an integer", nil)
				return
			}
			seed = &v
		}

		result, err := svc.SelectForLabeling(r.Context(), projectID, strategy, batchSize, seed)
		if err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Project not found", nil)
			case errors.Is(err, selection.ErrNoVectors):
				response.Error(w, http.StatusUnprocessableEntity, "NOT_READY",
					"Project has no feature vectors; run an embedding job first", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}

		ids := make([]string, len(result.ImageIDs))
		for i, id := range result.ImageIDs {
			ids[i] = id.String()
		}

		response.Collection(w, ids, map[string]any{
			"strategy":        result.Strategy,
			"seed":            result.Seed,
			"candidate_count": result.CandidateCount,
			"reference_count": result.ReferenceCount,
		})
	}
}
