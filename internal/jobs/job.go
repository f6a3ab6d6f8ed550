// Package jobs exposes branch execution to remote callers as asynchronous
// jobs: kickoff returns immediately with an opaque id, a worker runs the
// turn to a terminal state, and pollers observe read-only snapshots.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Status is a job lifecycle state. Transitions only move forward; a job
// never leaves a terminal status.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusRunning Status = "RUNNING"
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
	StatusTimeout Status = "TIMEOUT"
)

var statusRank = map[Status]int{
	StatusPending: 0,
	StatusRunning: 1,
	StatusSuccess: 2,
	StatusFailure: 2,
	StatusTimeout: 2,
}

// Terminal reports whether no further transition can occur.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailure || s == StatusTimeout
}

// ErrNotFound is returned when a job id is unknown.
var ErrNotFound = errors.New("jobs: job not found")

// Job is one unit of asynchronous work. The owning worker is the only
// writer after creation; pollers receive copies.
type Job struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	Status         Status          `json:"status"`
	ProgressNote   string          `json:"progress_note,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// advance moves the job to next if that is a forward transition. It returns
// false (and changes nothing) for backward or post-terminal transitions.
func (j *Job) advance(next Status) bool {
	if j.Status.Terminal() {
		return false
	}
	if statusRank[next] < statusRank[j.Status] {
		return false
	}
	j.Status = next
	j.UpdatedAt = time.Now().UTC()
	return true
}

// JobStore persists job snapshots so terminal jobs stay retrievable across
// restarts. Eviction is an operator concern.
type JobStore interface {
	SaveJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
}
