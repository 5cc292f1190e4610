// Package model defines the shared records for the control center:
// tasks, agents, notifications, worker heartbeats, and projects.
// Records are validated at the store boundary; optional fields are pointers.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Lane is a task's stage in the kanban-style workflow.
type Lane string

const (
	LaneQueued     Lane = "queued"
	LaneInProgress Lane = "in_progress"
	LaneReview     Lane = "review"
	LaneBlocked    Lane = "blocked"
	LaneDone       Lane = "done"
)

// laneAliasDevelopment is the deprecated name for LaneInProgress still
// emitted by older clients. Accepted on input, never stored or emitted.
const laneAliasDevelopment = "development"

// NormalizeLane parses a lane string, mapping the deprecated "development"
// alias to in_progress. Returns false for unknown values.
func NormalizeLane(s string) (Lane, bool) {
	if s == laneAliasDevelopment {
		return LaneInProgress, true
	}
	l := Lane(s)
	switch l {
	case LaneQueued, LaneInProgress, LaneReview, LaneBlocked, LaneDone:
		return l, true
	}
	return "", false
}

// Terminal reports whether the lane ends the task lifecycle.
func (l Lane) Terminal() bool {
	return l == LaneDone
}

// Priority orders tasks from P0 (most urgent) to P3.
type Priority string

const (
	PriorityP0 Priority = "P0"
	PriorityP1 Priority = "P1"
	PriorityP2 Priority = "P2"
	PriorityP3 Priority = "P3"
)

// TimeEntry is one logged span of work on a task.
type TimeEntry struct {
	AgentID string     `json:"agent_id" validate:"required"`
	Hours   float64    `json:"hours" validate:"gte=0"`
	Start   *time.Time `json:"start,omitempty"`
	End     *time.Time `json:"end,omitempty"`
	Note    string     `json:"note,omitempty"`
}

// Commit identifies one commit attached to a task's work record.
type Commit struct {
	SHA     string `json:"sha" validate:"required"`
	Message string `json:"message,omitempty"`
}

// WorkRecord accumulates evidence of work done on a task. Commits and
// artifacts are de-duplicated on merge by SHA and path respectively.
type WorkRecord struct {
	Commits     []Commit  `json:"commits,omitempty"`
	TestResults string    `json:"test_results,omitempty"`
	Artifacts   []string  `json:"artifacts,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
	UpdatedBy   string    `json:"updated_by,omitempty"`
}

// Task is a unit of work on the shared board.
type Task struct {
	ID             string      `json:"id" validate:"required"`
	Title          string      `json:"title" validate:"required,min=1,max=255"`
	Description    string      `json:"description,omitempty"`
	Priority       Priority    `json:"priority" validate:"required,oneof=P0 P1 P2 P3"`
	Lane           Lane        `json:"lane" validate:"required,oneof=queued in_progress review blocked done"`
	AssignedTo     string      `json:"assigned_to,omitempty"`
	Tags           []string    `json:"tags,omitempty"`
	DependsOn      []string    `json:"depends_on,omitempty"`
	EstimatedHours float64     `json:"estimated_hours,omitempty"`
	ActualHours    float64     `json:"actual_hours"` // always sum of TimeEntries
	TimeEntries    []TimeEntry `json:"time_entries,omitempty"`
	Work           *WorkRecord `json:"work,omitempty"`
	ClaimedAt      *time.Time  `json:"claimed_at,omitempty"`
	ClaimedBy      string      `json:"claimed_by,omitempty"`
	BlockedAt      *time.Time  `json:"blocked_at,omitempty"`
	BlockedReason  string      `json:"blocked_reason,omitempty"`
	BlockedBy      string      `json:"blocked_by,omitempty"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at" validate:"required"`
	UpdatedAt      time.Time   `json:"updated_at" validate:"required"`
}

// NewTask creates a queued task with defaults applied.
func NewTask(title string) *Task {
	now := time.Now()
	return &Task{
		ID:        uuid.NewString(),
		Title:     title,
		Priority:  PriorityP2,
		Lane:      LaneQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// RecomputeActualHours restores the ActualHours invariant from TimeEntries.
func (t *Task) RecomputeActualHours() {
	var sum float64
	for _, e := range t.TimeEntries {
		sum += e.Hours
	}
	t.ActualHours = sum
}

// Text returns the text the assignment engine classifies on.
func (t *Task) Text() string {
	if t.Description == "" {
		return t.Title
	}
	return t.Title + " " + t.Description
}

// MergeWork folds new work evidence into the task's work record,
// de-duplicating commits by SHA and artifacts by path.
func (t *Task) MergeWork(w WorkRecord) {
	if t.Work == nil {
		t.Work = &WorkRecord{}
	}

	seen := make(map[string]bool, len(t.Work.Commits))
	for _, c := range t.Work.Commits {
		seen[c.SHA] = true
	}
	for _, c := range w.Commits {
		if c.SHA == "" || seen[c.SHA] {
			continue
		}
		seen[c.SHA] = true
		t.Work.Commits = append(t.Work.Commits, c)
	}

	have := make(map[string]bool, len(t.Work.Artifacts))
	for _, a := range t.Work.Artifacts {
		have[a] = true
	}
	for _, a := range w.Artifacts {
		if a == "" || have[a] {
			continue
		}
		have[a] = true
		t.Work.Artifacts = append(t.Work.Artifacts, a)
	}

	if w.TestResults != "" {
		t.Work.TestResults = w.TestResults
	}
	if w.Notes != "" {
		t.Work.Notes = w.Notes
	}
	t.Work.UpdatedAt = time.Now()
	t.Work.UpdatedBy = w.UpdatedBy
}
