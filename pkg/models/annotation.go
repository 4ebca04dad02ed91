package models

import (
	"time"

	"github.com/google/uuid"
)

// Annotation sources.
const (
	AnnotationSourceManual  = "manual"
	AnnotationSourceMachine = "machine"
)

// BBox is a bounding box in normalized YOLO format: center x/y and
// width/height, all in [0, 1] relative to the image dimensions.
type BBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Annotation is one bounding box on one image. Confidence is nil for manual
// annotations and set to the detector score for machine-authored ones.
type Annotation struct {
	ID         uuid.UUID `db:"id"         json:"id"`
	ImageID    uuid.UUID `db:"image_id"   json:"image_id"`
	ClassID    int       `db:"class_id"   json:"class_id"`
	BBox       BBox      `db:"bbox"       json:"bbox"`
	Confidence *float64  `db:"confidence" json:"confidence,omitempty"`
	Source     string    `db:"source"     json:"source"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
