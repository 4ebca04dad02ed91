package ml

import (
	"fmt"

	"github.com/rohitpai/labelforge/internal/config"
)

// NewBackend constructs the configured model backend.
// Called once at server startup.
func NewBackend(cfg config.MLConfig) (Backend, error) {
	switch cfg.Backend {
	case "http":
		return NewHTTPBackend(cfg), nil
	case "mock":
		return NewMockBackend(cfg.EmbeddingDims), nil
	default:
		return nil, fmt.Errorf("unknown ML backend %q: must be one of http, mock", cfg.Backend)
	}
}
