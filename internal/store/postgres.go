package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rohitpai/labelforge/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Projects ---

func (s *PostgresStore) GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	var p models.Project
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, description, status, model_ref, created_at, updated_at
		 FROM projects WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Description, &p.Status, &p.ModelRef, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) UpdateProjectStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE projects SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update project status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetProjectModelRef(ctx context.Context, id uuid.UUID, modelRef string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE projects SET model_ref = $2, updated_at = NOW() WHERE id = $1`, id, modelRef)
	if err != nil {
		return fmt.Errorf("set project model ref: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Images ---

func (s *PostgresStore) ListImages(ctx context.Context, projectID uuid.UUID, labelStates ...string) ([]*models.Image, error) {
	query := `SELECT id, project_id, filename, file_path, width, height, label_state, created_at
	          FROM images WHERE project_id = $1`
	args := []any{projectID}
	if len(labelStates) > 0 {
		query += ` AND label_state = ANY($2)`
		args = append(args, labelStates)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	var images []*models.Image
	for rows.Next() {
		var img models.Image
		if err := rows.Scan(&img.ID, &img.ProjectID, &img.Filename, &img.FilePath,
			&img.Width, &img.Height, &img.LabelState, &img.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		images = append(images, &img)
	}
	return images, rows.Err()
}

func (s *PostgresStore) CountImages(ctx context.Context, projectID uuid.UUID, labelStates ...string) (int, error) {
	query := `SELECT COUNT(*) FROM images WHERE project_id = $1`
	args := []any{projectID}
	if len(labelStates) > 0 {
		query += ` AND label_state = ANY($2)`
		args = append(args, labelStates)
	}

	var count int
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count images: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) UpdateImageLabelState(ctx context.Context, imageID uuid.UUID, state string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE images SET label_state = $2 WHERE id = $1`, imageID, state)
	if err != nil {
		return fmt.Errorf("update image label state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Classes and annotations ---

func (s *PostgresStore) ListClasses(ctx context.Context, projectID uuid.UUID) ([]*models.Class, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, project_id, name, color FROM classes WHERE project_id = $1 ORDER BY id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	defer rows.Close()

	var classes []*models.Class
	for rows.Next() {
		var c models.Class
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Name, &c.Color); err != nil {
			return nil, fmt.Errorf("scan class: %w", err)
		}
		classes = append(classes, &c)
	}
	return classes, rows.Err()
}

func (s *PostgresStore) CreateAnnotation(ctx context.Context, ann *models.Annotation) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO annotations (id, image_id, class_id, bbox, confidence, source, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ann.ID, ann.ImageID, ann.ClassID, ann.BBox, ann.Confidence, ann.Source, ann.CreatedAt)
	if err != nil {
		return fmt.Errorf("create annotation: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAnnotationsByImages(ctx context.Context, imageIDs []uuid.UUID) ([]*models.Annotation, error) {
	if len(imageIDs) == 0 {
		return []*models.Annotation{}, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, image_id, class_id, bbox, confidence, source, created_at
		 FROM annotations WHERE image_id = ANY($1) ORDER BY image_id, created_at`, imageIDs)
	if err != nil {
		return nil, fmt.Errorf("list annotations by images: %w", err)
	}
	defer rows.Close()

	var anns []*models.Annotation
	for rows.Next() {
		var a models.Annotation
		if err := rows.Scan(&a.ID, &a.ImageID, &a.ClassID, &a.BBox,
			&a.Confidence, &a.Source, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan annotation: %w", err)
		}
		anns = append(anns, &a)
	}
	return anns, rows.Err()
}

// --- Feature vectors ---

func (s *PostgresStore) PutFeatureVector(ctx context.Context, fv *models.FeatureVector) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO feature_vectors (image_id, project_id, vector, generated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (image_id) DO UPDATE SET
		   vector = EXCLUDED.vector,
		   generated_at = EXCLUDED.generated_at`,
		fv.ImageID, fv.ProjectID, fv.Vector, fv.GeneratedAt)
	if err != nil {
		return fmt.Errorf("put feature vector: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetFeatureVectors(ctx context.Context, projectID uuid.UUID) ([]*models.FeatureVector, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT image_id, project_id, vector, generated_at
		 FROM feature_vectors WHERE project_id = $1 ORDER BY image_id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("get feature vectors: %w", err)
	}
	defer rows.Close()

	var vectors []*models.FeatureVector
	for rows.Next() {
		var fv models.FeatureVector
		if err := rows.Scan(&fv.ImageID, &fv.ProjectID, &fv.Vector, &fv.GeneratedAt); err != nil {
			return nil, fmt.Errorf("scan feature vector: %w", err)
		}
		vectors = append(vectors, &fv)
	}
	return vectors, rows.Err()
}

func (s *PostgresStore) ListImageIDsWithVectors(ctx context.Context, projectID uuid.UUID) (map[uuid.UUID]bool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT image_id FROM feature_vectors WHERE project_id = $1`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list image ids with vectors: %w", err)
	}
	defer rows.Close()

	ids := make(map[uuid.UUID]bool)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan image id: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

func (s *PostgresStore) VectorStats(ctx context.Context, projectID uuid.UUID) (*models.VectorStats, error) {
	stats := &models.VectorStats{ProjectID: projectID}
	err := s.pool.QueryRow(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM images WHERE project_id = $1),
		   (SELECT COUNT(*) FROM feature_vectors WHERE project_id = $1)`,
		projectID,
	).Scan(&stats.TotalImages, &stats.WithVectors)
	if err != nil {
		return nil, fmt.Errorf("vector stats: %w", err)
	}
	// An empty project is never ready: there is nothing to select from.
	stats.Ready = stats.TotalImages > 0 && stats.WithVectors >= stats.TotalImages
	return stats, nil
}

// --- Jobs ---

// CreateJob inserts a new pending job. The partial unique index on
// (project_id, kind) over active statuses makes this an atomic
// conditional insert: concurrent creates race on the index and exactly
// one succeeds, regardless of how many server instances are running.
func (s *PostgresStore) CreateJob(ctx context.Context, projectID uuid.UUID, kind string) (*models.Job, error) {
	job := &models.Job{
		ID:        uuid.New(),
		ProjectID: projectID,
		Kind:      kind,
		Status:    models.JobStatusPending,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, project_id, kind, status, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		job.ID, job.ProjectID, job.Kind, job.Status, job.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID, afterSeq int) (*models.Job, error) {
	var j models.Job
	err := s.pool.QueryRow(ctx,
		`SELECT id, project_id, kind, status, result, error_message, cancel_requested,
		        created_at, started_at, finished_at
		 FROM jobs WHERE id = $1`, id,
	).Scan(&j.ID, &j.ProjectID, &j.Kind, &j.Status, &j.Result, &j.ErrorMessage,
		&j.CancelRequested, &j.CreatedAt, &j.StartedAt, &j.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT seq, entry, created_at FROM job_progress
		 WHERE job_id = $1 AND seq > $2 ORDER BY seq`, id, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("get job progress: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p models.JobProgressEntry
		if err := rows.Scan(&p.Seq, &p.Entry, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan job progress: %w", err)
		}
		j.Progress = append(j.Progress, p)
	}
	return &j, rows.Err()
}

func (s *PostgresStore) GetActiveJob(ctx context.Context, projectID uuid.UUID, kind string) (*models.Job, error) {
	var j models.Job
	err := s.pool.QueryRow(ctx,
		`SELECT id, project_id, kind, status, result, error_message, cancel_requested,
		        created_at, started_at, finished_at
		 FROM jobs WHERE project_id = $1 AND kind = $2 AND status IN ('pending', 'running')`,
		projectID, kind,
	).Scan(&j.ID, &j.ProjectID, &j.Kind, &j.Status, &j.Result, &j.ErrorMessage,
		&j.CancelRequested, &j.CreatedAt, &j.StartedAt, &j.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get active job: %w", err)
	}
	return &j, nil
}

// AppendJobProgress atomically appends one progress entry with the next
// sequence number. Entries are never rewritten.
func (s *PostgresStore) AppendJobProgress(ctx context.Context, id uuid.UUID, entry json.RawMessage) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO job_progress (job_id, seq, entry)
		 SELECT j.id,
		        COALESCE((SELECT MAX(seq) FROM job_progress WHERE job_id = j.id), 0) + 1,
		        $2
		 FROM jobs j WHERE j.id = $1`, id, entry)
	if err != nil {
		return fmt.Errorf("append job progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) StartJob(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'running', started_at = NOW()
		 WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return fmt.Errorf("start job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, id)
	}
	return nil
}

func (s *PostgresStore) CompleteJob(ctx context.Context, id uuid.UUID, result json.RawMessage) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'completed', result = $2, finished_at = NOW()
		 WHERE id = $1 AND status IN ('pending', 'running')`, id, result)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, id)
	}
	return nil
}

func (s *PostgresStore) FailJob(ctx context.Context, id uuid.UUID, errorMessage string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'failed', error_message = $2, finished_at = NOW()
		 WHERE id = $1 AND status IN ('pending', 'running')`, id, errorMessage)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, id)
	}
	return nil
}

func (s *PostgresStore) CancelJob(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'cancelled', finished_at = NOW()
		 WHERE id = $1 AND status IN ('pending', 'running')`, id)
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, id)
	}
	return nil
}

// RequestJobCancel sets the cancel flag. Idempotent; legal any time before a
// terminal state. The running body observes the flag at its checkpoints.
func (s *PostgresStore) RequestJobCancel(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET cancel_requested = TRUE
		 WHERE id = $1 AND status IN ('pending', 'running')`, id)
	if err != nil {
		return fmt.Errorf("request job cancel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, id)
	}
	return nil
}

func (s *PostgresStore) JobCancelRequested(ctx context.Context, id uuid.UUID) (bool, error) {
	var requested bool
	err := s.pool.QueryRow(ctx,
		`SELECT cancel_requested FROM jobs WHERE id = $1`, id).Scan(&requested)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("job cancel requested: %w", err)
	}
	return requested, nil
}

// transitionError distinguishes "job does not exist" from "job is already
// terminal" after a guarded update matched zero rows.
func (s *PostgresStore) transitionError(ctx context.Context, id uuid.UUID) error {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get job status: %w", err)
	}
	return fmt.Errorf("%w: job is %s", ErrInvalidTransition, status)
}

// isUniqueViolation checks if a pgx error is a unique constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
