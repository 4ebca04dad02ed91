package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/rohitpai/labelforge/pkg/models"
)

var ErrNotFound = errors.New("resource not found")

// ErrConflict is returned when creating a job while another job of the same
// (project, kind) is still pending or running.
var ErrConflict = errors.New("conflicting active job")

// ErrInvalidTransition is returned when a terminal-state job is mutated
// again. It surfaces races between a cancel request and a worker's own
// terminal transition; callers observe it and move on.
var ErrInvalidTransition = errors.New("invalid job state transition")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error

	GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error)
	UpdateProjectStatus(ctx context.Context, id uuid.UUID, status string) error
	SetProjectModelRef(ctx context.Context, id uuid.UUID, modelRef string) error

	ListImages(ctx context.Context, projectID uuid.UUID, labelStates ...string) ([]*models.Image, error)
	CountImages(ctx context.Context, projectID uuid.UUID, labelStates ...string) (int, error)
	UpdateImageLabelState(ctx context.Context, imageID uuid.UUID, state string) error

	ListClasses(ctx context.Context, projectID uuid.UUID) ([]*models.Class, error)
	CreateAnnotation(ctx context.Context, ann *models.Annotation) error
	ListAnnotationsByImages(ctx context.Context, imageIDs []uuid.UUID) ([]*models.Annotation, error)

	PutFeatureVector(ctx context.Context, fv *models.FeatureVector) error
	GetFeatureVectors(ctx context.Context, projectID uuid.UUID) ([]*models.FeatureVector, error)
	ListImageIDsWithVectors(ctx context.Context, projectID uuid.UUID) (map[uuid.UUID]bool, error)
	VectorStats(ctx context.Context, projectID uuid.UUID) (*models.VectorStats, error)

	CreateJob(ctx context.Context, projectID uuid.UUID, kind string) (*models.Job, error)
	GetJob(ctx context.Context, id uuid.UUID, afterSeq int) (*models.Job, error)
	GetActiveJob(ctx context.Context, projectID uuid.UUID, kind string) (*models.Job, error)
	AppendJobProgress(ctx context.Context, id uuid.UUID, entry json.RawMessage) error
	StartJob(ctx context.Context, id uuid.UUID) error
	CompleteJob(ctx context.Context, id uuid.UUID, result json.RawMessage) error
	FailJob(ctx context.Context, id uuid.UUID, errorMessage string) error
	CancelJob(ctx context.Context, id uuid.UUID) error
	RequestJobCancel(ctx context.Context, id uuid.UUID) error
	JobCancelRequested(ctx context.Context, id uuid.UUID) (bool, error)
}
