package model

import "time"

// AgentStatus is an agent's availability on the board.
type AgentStatus string

const (
	AgentOnline  AgentStatus = "online"
	AgentOffline AgentStatus = "offline"
	AgentBusy    AgentStatus = "busy"
)

// Agent is a registered worker identity on the board.
// Workload is derived from the task store (open tasks assigned to the
// agent) and is never persisted independently of it.
type Agent struct {
	ID              string      `json:"id" validate:"required"`
	Name            string      `json:"name,omitempty"`
	Roles           []string    `json:"roles,omitempty"`
	Status          AgentStatus `json:"status" validate:"required,oneof=online offline busy"`
	Workload        int         `json:"workload"`
	LastHeartbeatAt time.Time   `json:"last_heartbeat_at"`
	InstanceID      string      `json:"instance_id,omitempty"`
}

// Stale reports whether the agent has missed its heartbeat window.
func (a *Agent) Stale(window time.Duration, now time.Time) bool {
	return now.Sub(a.LastHeartbeatAt) > window
}
