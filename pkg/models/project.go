package models

import (
	"time"

	"github.com/google/uuid"
)

// Project workflow statuses. A project moves through these as the labeling
// loop progresses; the status is informational and never gates job creation.
const (
	ProjectStatusUploading      = "uploading"
	ProjectStatusEmbedding      = "embedding"
	ProjectStatusAnnotating     = "annotating"
	ProjectStatusTraining       = "training"
	ProjectStatusAutoAnnotating = "auto_annotating"
	ProjectStatusCompleted      = "completed"
)

// Project is one labeling effort: a set of images, a set of classes, and at
// most one trained model artifact at a time.
type Project struct {
	ID          uuid.UUID `db:"id"          json:"id"`
	Name        string    `db:"name"        json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	Status      string    `db:"status"      json:"status"`
	ModelRef    *string   `db:"model_ref"   json:"model_ref,omitempty"`
	CreatedAt   time.Time `db:"created_at"  json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"  json:"updated_at"`
}
