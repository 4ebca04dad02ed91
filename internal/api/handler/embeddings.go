package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/rohitpai/labelforge/pkg/models"
)

// EmbedSubmitter defines the interface the handler depends on.
type EmbedSubmitter interface {
	SubmitEmbed(ctx context.Context, projectID uuid.UUID) (*models.Job, error)
}

// NewSubmitEmbeddingsHandler returns an http.HandlerFunc for
// POST /api/v1/projects/{projectID}/embeddings.
func NewSubmitEmbeddingsHandler(svc EmbedSubmitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, ok := parseProjectID(w, r)
		if !ok {
			return
		}

		job, err := svc.SubmitEmbed(r.Context(), projectID)
		if err != nil {
			submitError(w, err)
			return
		}

		acceptedJob(w, job)
	}
}
