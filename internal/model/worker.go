package model

import "time"

// WorkerStatus is a worker slot's lifecycle state.
type WorkerStatus string

const (
	WorkerIdle    WorkerStatus = "idle"
	WorkerWorking WorkerStatus = "working"
	WorkerStopped WorkerStatus = "stopped"
)

// WorkerHeartbeat is the liveness record a worker slot writes on every
// monitor tick. At most one active SessionID per slot.
type WorkerHeartbeat struct {
	Slot       string       `json:"slot" validate:"required"`
	Status     WorkerStatus `json:"status" validate:"required,oneof=idle working stopped"`
	Task       string       `json:"task,omitempty"`
	SessionID  string       `json:"session_id,omitempty"`
	LastBeatAt time.Time    `json:"last_beat_at"`
}

// Project groups tasks under a repository.
type Project struct {
	ID        string    `json:"id" validate:"required"`
	Name      string    `json:"name" validate:"required"`
	RepoURL   string    `json:"repo_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
