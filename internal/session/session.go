// Package session starts and tracks external coding-agent runs. A
// Runner owns the lifecycle of each session; callers poll Status and
// may Kill a session that overstays its budget.
package session

import (
	"context"
	"time"
)

// State is a session's lifecycle stage.
type State string

const (
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	// StateNotFound means the runner has no record of the session.
	// This happens when the runner restarted or already reaped the
	// session; callers decide what to assume about the work.
	StateNotFound State = "not_found"
)

// Spec describes one agent run.
type Spec struct {
	TaskID  string
	Prompt  string
	WorkDir string
	Timeout time.Duration // 0 = runner default
}

// Status is a point-in-time view of a session.
type Status struct {
	ID       string
	State    State
	ExitCode int
	Output   string // tail of the agent's output, for block reasons
	Error    string
	Started  time.Time
	Ended    time.Time
}

// Runner starts agent sessions and reports on them.
type Runner interface {
	// Start launches a session and returns its id. The session
	// outlives the passed context; use Kill to stop it.
	Start(ctx context.Context, spec Spec) (string, error)

	// Status reports the session's current state. Unknown ids return
	// a Status with StateNotFound, not an error.
	Status(ctx context.Context, id string) (Status, error)

	// Kill terminates a running session. Killing a finished or
	// unknown session is a no-op.
	Kill(ctx context.Context, id string) error
}
