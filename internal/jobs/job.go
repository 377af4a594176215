// Package jobs runs sync work in the background and tracks its state.
//
// A job moves waiting → active → completed | failed | cancelled. At most one
// unfinished job exists per target; a second trigger joins the first.
package jobs

import (
	"errors"
	"time"

	"github.com/toozej/smartlists/internal/types"
)

// Kind selects the handler that runs a job.
type Kind string

const (
	KindSyncPlaylist  Kind = "sync-playlist"
	KindSyncAll       Kind = "sync-all"
	KindMirrorLibrary Kind = "mirror-library"
	KindSeed          Kind = "seed"
)

// State is a job lifecycle state.
type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

var (
	// ErrJobNotFound is returned for unknown or expired job IDs.
	ErrJobNotFound = errors.New("job not found")
	// ErrUnknownKind is returned when no handler is registered for a kind.
	ErrUnknownKind = errors.New("no handler for job kind")
	// ErrNotRunning is returned when cancelling a job this process does not run.
	ErrNotRunning = errors.New("job is not running in this process")
)

// Payload describes the work to do.
type Payload struct {
	Kind   Kind   `json:"kind"`
	Target string `json:"target"`
	Force  bool   `json:"force"`
	// IdempotencyKey makes the payload run at most once successfully.
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

// LockKey is the mutual-exclusion key for the payload's target.
func (p Payload) LockKey() string {
	return string(p.Kind) + ":" + p.Target
}

// Progress is the latest progress report of an active job.
type Progress struct {
	Phase      string `json:"phase"`
	Current    int    `json:"current"`
	Total      int    `json:"total"`
	Percentage int    `json:"percentage"`
}

// Job is a queued or finished unit of work.
type Job struct {
	ID         string            `json:"id"`
	Payload    Payload           `json:"payload"`
	State      State             `json:"state"`
	Progress   Progress          `json:"progress"`
	Result     *types.SyncResult `json:"result,omitempty"`
	Error      string            `json:"error,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
	StartedAt  *time.Time        `json:"startedAt,omitempty"`
	FinishedAt *time.Time        `json:"finishedAt,omitempty"`
}
