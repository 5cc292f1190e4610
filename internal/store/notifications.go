package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/lpappas98/claw-control-center/internal/logging"
	"github.com/lpappas98/claw-control-center/internal/model"
)

// DefaultMaxNotifications caps the notification document. Eviction
// removes the oldest delivered entries first; undelivered entries are
// kept until delivery is confirmed or they age past pruning.
const DefaultMaxNotifications = 500

type notificationDoc struct {
	Version       int                   `json:"version"`
	Notifications []*model.Notification `json:"notifications"`
}

// NotificationLog is the fire-and-forget record of user-facing events
// derived from task transitions.
type NotificationLog struct {
	mu   sync.RWMutex
	path string
	flk  *flock.Flock
	log  *logging.Logger
	max  int
	doc  *notificationDoc
}

// OpenNotifications opens the notification store at path.
func OpenNotifications(path string, log *logging.Logger) (*NotificationLog, error) {
	flk, err := lockFile(path)
	if err != nil {
		return nil, err
	}

	n := &NotificationLog{
		path: path,
		flk:  flk,
		log:  log,
		max:  DefaultMaxNotifications,
		doc:  &notificationDoc{Version: 1},
	}

	doc := &notificationDoc{Version: 1}
	if loadOrEmpty(path, doc, log) {
		n.doc = doc
	}
	if n.doc.Notifications == nil {
		n.doc.Notifications = make([]*model.Notification, 0)
	}
	return n, nil
}

// Close releases the store's file lock.
func (n *NotificationLog) Close() error {
	return n.flk.Unlock()
}

func (n *NotificationLog) save() error {
	return writeDoc(n.path, n.doc)
}

// Add persists a notification, evicting old delivered entries if the
// store is at capacity.
func (n *NotificationLog) Add(note *model.Notification) error {
	if err := model.Validate(note); err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if len(n.doc.Notifications) >= n.max {
		kept := n.doc.Notifications[:0]
		evicted := 0
		over := len(n.doc.Notifications) - n.max + 1
		for _, x := range n.doc.Notifications {
			if x.Delivered && evicted < over {
				evicted++
				continue
			}
			kept = append(kept, x)
		}
		n.doc.Notifications = kept
	}

	cp := *note
	n.doc.Notifications = append(n.doc.Notifications, &cp)
	return n.save()
}

// ListForAgent returns the agent's notifications, newest first.
func (n *NotificationLog) ListForAgent(agentID string, unreadOnly bool) []*model.Notification {
	n.mu.RLock()
	defer n.mu.RUnlock()

	var out []*model.Notification
	for _, x := range n.doc.Notifications {
		if x.AgentID != agentID {
			continue
		}
		if unreadOnly && x.Read {
			continue
		}
		cp := *x
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// MarkRead flags a notification as read.
func (n *NotificationLog) MarkRead(id string) error {
	return n.mark(id, func(x *model.Notification) { x.Read = true })
}

// MarkDelivered confirms delivery, making the entry prunable.
func (n *NotificationLog) MarkDelivered(id string) error {
	return n.mark(id, func(x *model.Notification) { x.Delivered = true })
}

func (n *NotificationLog) mark(id string, fn func(*model.Notification)) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, x := range n.doc.Notifications {
		if x.ID == id {
			fn(x)
			return n.save()
		}
	}
	return fmt.Errorf("notification %s: %w", id, ErrNotFound)
}

// Prune removes delivered notifications older than retention.
// Undelivered entries are never pruned here.
func (n *NotificationLog) Prune(retention time.Duration) int {
	n.mu.Lock()
	defer n.mu.Unlock()

	cutoff := time.Now().Add(-retention)
	kept := n.doc.Notifications[:0]
	removed := 0
	for _, x := range n.doc.Notifications {
		if x.Delivered && x.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, x)
	}
	n.doc.Notifications = kept
	if removed > 0 {
		if err := n.save(); err != nil {
			n.log.Err(err).Msg("persisting pruned notifications")
		}
	}
	return removed
}

// Len returns the number of stored notifications.
func (n *NotificationLog) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.doc.Notifications)
}
