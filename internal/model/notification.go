package model

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType classifies the state transition that produced a
// notification.
type NotificationType string

const (
	NotifyAssigned  NotificationType = "task_assigned"
	NotifyCompleted NotificationType = "task_completed"
	NotifyBlocked   NotificationType = "task_blocked"
)

// Notification is a user-facing event derived from a task transition.
// Undelivered notifications are retained until delivery is confirmed;
// pruning only touches delivered entries past the retention window.
type Notification struct {
	ID        string           `json:"id" validate:"required"`
	AgentID   string           `json:"agent_id" validate:"required"`
	Type      NotificationType `json:"type" validate:"required"`
	Title     string           `json:"title"`
	Text      string           `json:"text,omitempty"`
	TaskID    string           `json:"task_id,omitempty"`
	Read      bool             `json:"read"`
	Delivered bool             `json:"delivered"`
	CreatedAt time.Time        `json:"created_at"`
}

// NewNotification creates an unread, undelivered notification.
func NewNotification(agentID string, typ NotificationType, title, text, taskID string) *Notification {
	return &Notification{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		Type:      typ,
		Title:     title,
		Text:      text,
		TaskID:    taskID,
		CreatedAt: time.Now(),
	}
}
