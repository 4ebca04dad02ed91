// Package jobs runs the long, resource-heavy operations (embedding passes,
// training, batch inference) off the request path. Submission creates a
// durable job record and returns immediately; a fixed-size worker pool
// executes the body, appends progress, and records exactly one terminal
// state. Cancellation is cooperative: bodies observe the cancel flag at
// batch or epoch checkpoints.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/rohitpai/labelforge/internal/config"
	"github.com/rohitpai/labelforge/internal/ml"
	"github.com/rohitpai/labelforge/internal/store"
	"github.com/rohitpai/labelforge/internal/vectors"
	"github.com/rohitpai/labelforge/pkg/models"
)

// ErrNotReady is returned when a job's preconditions are unmet: too few
// labeled images or no classes for training, no trained model for
// auto-annotation.
var ErrNotReady = errors.New("project is not ready")

// errCancelled is the internal signal a body returns after observing the
// cancel flag at a checkpoint.
var errCancelled = errors.New("job cancelled")

// TrainParams tunes one training job.
type TrainParams struct {
	Epochs    int
	BatchSize int
}

type task struct {
	jobID     uuid.UUID
	projectID uuid.UUID
	kind      string

	train      TrainParams
	confidence float64
}

// Runner owns the worker pool. One Runner per process; the
// at-most-one-active-job invariant is enforced by the store at create time,
// so multiple Runner instances across processes stay correct.
type Runner struct {
	store   store.Store
	backend ml.Backend
	index   *vectors.Index
	cfg     config.JobsConfig

	queue chan task
	wg    sync.WaitGroup
}

// NewRunner creates a Runner. Call Start before submitting.
func NewRunner(s store.Store, backend ml.Backend, index *vectors.Index, cfg config.JobsConfig) *Runner {
	return &Runner{
		store:   s,
		backend: backend,
		index:   index,
		cfg:     cfg,
		queue:   make(chan task, 128),
	}
}

// Start launches the worker pool. Workers exit when ctx is done; Wait blocks
// until in-flight bodies finish.
func (r *Runner) Start(ctx context.Context) {
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case t := <-r.queue:
					r.execute(ctx, t)
				}
			}
		}()
	}
}

// Wait blocks until all workers have exited.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// SubmitEmbed creates and enqueues an embedding job for the project.
func (r *Runner) SubmitEmbed(ctx context.Context, projectID uuid.UUID) (*models.Job, error) {
	return r.submit(ctx, task{projectID: projectID, kind: models.JobKindEmbed})
}

// SubmitTrain creates and enqueues a training job. Fails with ErrNotReady if
// the readiness preconditions are unmet, before any job record is created.
func (r *Runner) SubmitTrain(ctx context.Context, projectID uuid.UUID, params TrainParams) (*models.Job, error) {
	readiness, err := r.TrainingReadiness(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !readiness.Ready {
		return nil, fmt.Errorf("%w: %s", ErrNotReady, readiness.Reason)
	}
	return r.submit(ctx, task{projectID: projectID, kind: models.JobKindTrain, train: params})
}

// SubmitAnnotate creates and enqueues an auto-annotation job. Fails with
// ErrNotReady if the project has no trained model artifact.
func (r *Runner) SubmitAnnotate(ctx context.Context, projectID uuid.UUID, confidence float64) (*models.Job, error) {
	project, err := r.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.ModelRef == nil || *project.ModelRef == "" {
		return nil, fmt.Errorf("%w: no trained model for project", ErrNotReady)
	}
	return r.submit(ctx, task{projectID: projectID, kind: models.JobKindAnnotate, confidence: confidence})
}

func (r *Runner) submit(ctx context.Context, t task) (*models.Job, error) {
	if _, err := r.store.GetProject(ctx, t.projectID); err != nil {
		return nil, err
	}

	job, err := r.store.CreateJob(ctx, t.projectID, t.kind)
	if err != nil {
		return nil, err
	}
	t.jobID = job.ID

	select {
	case r.queue <- t:
	default:
		// Queue saturated; fail the record rather than block the request.
		msg := "worker queue is full"
		if ferr := r.store.FailJob(ctx, job.ID, msg); ferr != nil {
			slog.Error("failed to fail queued job", "job_id", job.ID, "error", ferr)
		}
		return nil, fmt.Errorf("submit job: %s", msg)
	}

	slog.Info("job submitted", "job_id", job.ID, "project_id", t.projectID, "kind", t.kind)
	return job, nil
}

// execute runs one job body and records its terminal state. A body error
// never escapes: it becomes a failed job, and the pool moves on.
func (r *Runner) execute(ctx context.Context, t task) {
	log := slog.With("job_id", t.jobID, "project_id", t.projectID, "kind", t.kind)

	if err := r.store.StartJob(ctx, t.jobID); err != nil {
		log.Error("start job", "error", err)
		return
	}
	log.Info("job started")

	result, err := r.runBody(ctx, t)
	switch {
	case errors.Is(err, errCancelled):
		if terr := r.store.CancelJob(ctx, t.jobID); terr != nil && !errors.Is(terr, store.ErrInvalidTransition) {
			log.Error("cancel job", "error", terr)
		}
		log.Info("job cancelled")
	case err != nil:
		// Error message preserved verbatim for diagnostics.
		if terr := r.store.FailJob(ctx, t.jobID, err.Error()); terr != nil && !errors.Is(terr, store.ErrInvalidTransition) {
			log.Error("fail job", "error", terr)
		}
		log.Error("job failed", "error", err)
	default:
		if terr := r.store.CompleteJob(ctx, t.jobID, result); terr != nil && !errors.Is(terr, store.ErrInvalidTransition) {
			log.Error("complete job", "error", terr)
		}
		log.Info("job completed")
	}
}

func (r *Runner) runBody(ctx context.Context, t task) (result []byte, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job body panicked: %v", rec)
		}
	}()

	switch t.kind {
	case models.JobKindEmbed:
		return r.runEmbed(ctx, t)
	case models.JobKindTrain:
		return r.runTrain(ctx, t)
	case models.JobKindAnnotate:
		return r.runAnnotate(ctx, t)
	default:
		return nil, fmt.Errorf("unknown job kind %q", t.kind)
	}
}

// cancelRequested reads the job's cancel flag; checked at body checkpoints.
// A read failure is treated as "not cancelled" so a transient store error
// cannot cancel work spuriously.
func (r *Runner) cancelRequested(ctx context.Context, jobID uuid.UUID) bool {
	requested, err := r.store.JobCancelRequested(ctx, jobID)
	if err != nil {
		slog.Warn("read cancel flag", "job_id", jobID, "error", err)
		return false
	}
	return requested
}

// setProjectStatus is best effort: the workflow status is informational and
// must not fail a job.
func (r *Runner) setProjectStatus(ctx context.Context, projectID uuid.UUID, status string) {
	if err := r.store.UpdateProjectStatus(ctx, projectID, status); err != nil {
		slog.Warn("update project status", "project_id", projectID, "status", status, "error", err)
	}
}
