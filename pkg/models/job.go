package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Job kinds. At most one job per (project, kind) may be pending or running.
const (
	JobKindEmbed    = "embed"
	JobKindTrain    = "train"
	JobKindAnnotate = "annotate"
)

const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)

// TerminalJobStatus reports whether a status is one of the three terminal
// states. Once terminal, a job's status, result, and error are immutable.
func TerminalJobStatus(status string) bool {
	return status == JobStatusCompleted || status == JobStatusFailed || status == JobStatusCancelled
}

// Job tracks one asynchronous operation (embed, train, annotate). The API
// returns a job id on submission; the client polls until a terminal status.
type Job struct {
	ID              uuid.UUID       `db:"id"               json:"id"`
	ProjectID       uuid.UUID       `db:"project_id"       json:"project_id"`
	Kind            string          `db:"kind"             json:"kind"`
	Status          string          `db:"status"           json:"status"`
	Result          json.RawMessage `db:"result"           json:"result,omitempty"`
	ErrorMessage    *string         `db:"error_message"    json:"error_message,omitempty"`
	CancelRequested bool            `db:"cancel_requested" json:"cancel_requested"`
	CreatedAt       time.Time       `db:"created_at"       json:"created_at"`
	StartedAt       *time.Time      `db:"started_at"       json:"started_at,omitempty"`
	FinishedAt      *time.Time      `db:"finished_at"      json:"finished_at,omitempty"`

	// Progress entries in append order. A poller that has seen entries up to
	// sequence k can request only entries with Seq > k.
	Progress []JobProgressEntry `json:"progress,omitempty"`
}

// JobProgressEntry is one append-only progress record for a job.
type JobProgressEntry struct {
	Seq       int             `db:"seq"        json:"seq"`
	Entry     json.RawMessage `db:"entry"      json:"entry"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}
