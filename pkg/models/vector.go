package models

import (
	"time"

	"github.com/google/uuid"
)

// FeatureVector is the embedding for one image. At most one per image; the
// embed job replaces it wholesale on regeneration and never mutates it.
type FeatureVector struct {
	ImageID     uuid.UUID `db:"image_id"     json:"image_id"`
	ProjectID   uuid.UUID `db:"project_id"   json:"project_id"`
	Vector      []float32 `db:"vector"       json:"vector"`
	GeneratedAt time.Time `db:"generated_at" json:"generated_at"`
}

// VectorStats reports embedding coverage for a project. Ready is true iff
// the project has at least one image and every image has a vector; a project
// with no images has nothing to select from and is never ready.
type VectorStats struct {
	ProjectID   uuid.UUID `json:"project_id"`
	WithVectors int       `json:"with_vectors"`
	TotalImages int       `json:"total_images"`
	Ready       bool      `json:"ready"`
}
