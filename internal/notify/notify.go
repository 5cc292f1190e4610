// Package notify fans task transitions out to the notification log.
// Delivery is best-effort; transitions never fail because a
// notification could not be written.
package notify

import (
	"fmt"

	"github.com/lpappas98/claw-control-center/internal/model"
	"github.com/lpappas98/claw-control-center/internal/store"
)

// Sink receives task lifecycle events.
type Sink interface {
	TaskAssigned(agentID string, task *model.Task) error
	TaskCompleted(agentID string, task *model.Task) error
	TaskBlocked(agentID string, task *model.Task, reason string) error
}

// StoreSink persists events to a NotificationLog.
type StoreSink struct {
	log *store.NotificationLog
}

func NewStoreSink(log *store.NotificationLog) *StoreSink {
	return &StoreSink{log: log}
}

func (s *StoreSink) TaskAssigned(agentID string, task *model.Task) error {
	return s.log.Add(model.NewNotification(agentID, model.NotifyAssigned,
		fmt.Sprintf("Assigned: %s", task.Title), "", task.ID))
}

func (s *StoreSink) TaskCompleted(agentID string, task *model.Task) error {
	return s.log.Add(model.NewNotification(agentID, model.NotifyCompleted,
		fmt.Sprintf("Completed: %s", task.Title), "", task.ID))
}

func (s *StoreSink) TaskBlocked(agentID string, task *model.Task, reason string) error {
	return s.log.Add(model.NewNotification(agentID, model.NotifyBlocked,
		fmt.Sprintf("Blocked: %s", task.Title), reason, task.ID))
}

// NopSink discards all events. Used when no notification store is
// configured, and in tests.
type NopSink struct{}

func (NopSink) TaskAssigned(string, *model.Task) error        { return nil }
func (NopSink) TaskCompleted(string, *model.Task) error       { return nil }
func (NopSink) TaskBlocked(string, *model.Task, string) error { return nil }
