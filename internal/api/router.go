package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/rohitpai/labelforge/internal/api/middleware"
	"github.com/rohitpai/labelforge/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler    http.HandlerFunc
	SubmitEmbeddings http.HandlerFunc
	SelectionHandler http.HandlerFunc
	ReadinessHandler http.HandlerFunc
	SubmitTraining   http.HandlerFunc
	AutoAnnotate     http.HandlerFunc
	GetJobHandler    http.HandlerFunc
	CancelJobHandler http.HandlerFunc
	CreateKeyHandler http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/projects/{projectID}/embeddings", orNotImplemented(deps.SubmitEmbeddings))
		r.Get("/api/v1/projects/{projectID}/selection", orNotImplemented(deps.SelectionHandler))
		r.Get("/api/v1/projects/{projectID}/readiness", orNotImplemented(deps.ReadinessHandler))
		r.Post("/api/v1/projects/{projectID}/training", orNotImplemented(deps.SubmitTraining))
		r.Post("/api/v1/projects/{projectID}/annotations/auto", orNotImplemented(deps.AutoAnnotate))

		r.Get("/api/v1/jobs/{jobID}", orNotImplemented(deps.GetJobHandler))
		r.Delete("/api/v1/jobs/{jobID}", orNotImplemented(deps.CancelJobHandler))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope("admin"))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
