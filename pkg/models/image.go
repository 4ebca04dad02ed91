package models

import (
	"time"

	"github.com/google/uuid"
)

// Image label states. Only unlabeled images are selection candidates;
// labeled and confirmed images form the reference set for diversity sampling.
const (
	LabelStateUnlabeled      = "unlabeled"
	LabelStateLabeled        = "labeled"
	LabelStateMachineLabeled = "machine_labeled"
	LabelStateConfirmed      = "confirmed"
)

// Image is one uploaded item in a project.
type Image struct {
	ID         uuid.UUID `db:"id"          json:"id"`
	ProjectID  uuid.UUID `db:"project_id"  json:"project_id"`
	Filename   string    `db:"filename"    json:"filename"`
	FilePath   string    `db:"file_path"   json:"file_path"`
	Width      int       `db:"width"       json:"width"`
	Height     int       `db:"height"      json:"height"`
	LabelState string    `db:"label_state" json:"label_state"`
	CreatedAt  time.Time `db:"created_at"  json:"created_at"`
}

// Class is one annotation class defined for a project.
type Class struct {
	ID        int       `db:"id"         json:"id"`
	ProjectID uuid.UUID `db:"project_id" json:"project_id"`
	Name      string    `db:"name"       json:"name"`
	Color     string    `db:"color"      json:"color"`
}
