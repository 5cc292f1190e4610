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

// DefaultMaxTasks caps the task document. When the cap is exceeded the
// oldest done tasks are evicted first; live tasks are never evicted.
const DefaultMaxTasks = 1000

// taskDoc is the serialized task store document.
type taskDoc struct {
	Version int           `json:"version"`
	Tasks   []*model.Task `json:"tasks"`
}

// TaskStore is the durable record of tasks and the single source of
// truth the rest of the system reads and mutates.
type TaskStore struct {
	mu       sync.RWMutex
	path     string
	flk      *flock.Flock
	log      *logging.Logger
	maxTasks int
	doc      *taskDoc
	index    map[string]*model.Task
}

// TaskOption configures a TaskStore.
type TaskOption func(*TaskStore)

// WithMaxTasks overrides the task document cap.
func WithMaxTasks(n int) TaskOption {
	return func(s *TaskStore) {
		if n > 0 {
			s.maxTasks = n
		}
	}
}

// OpenTasks opens the task store at path, loading existing state.
func OpenTasks(path string, log *logging.Logger, opts ...TaskOption) (*TaskStore, error) {
	flk, err := lockFile(path)
	if err != nil {
		return nil, err
	}

	s := &TaskStore{
		path:     path,
		flk:      flk,
		log:      log,
		maxTasks: DefaultMaxTasks,
		doc:      &taskDoc{Version: 1},
	}
	for _, opt := range opts {
		opt(s)
	}

	doc := &taskDoc{Version: 1}
	if loadOrEmpty(path, doc, log) {
		s.doc = doc
	}
	if s.doc.Tasks == nil {
		s.doc.Tasks = make([]*model.Task, 0)
	}
	s.reindex()
	return s, nil
}

// Close releases the store's file lock.
func (s *TaskStore) Close() error {
	return s.flk.Unlock()
}

func (s *TaskStore) reindex() {
	s.index = make(map[string]*model.Task, len(s.doc.Tasks))
	for _, t := range s.doc.Tasks {
		s.index[t.ID] = t
	}
}

// save must be called with the write lock held.
func (s *TaskStore) save() error {
	return writeDoc(s.path, s.doc)
}

// Create validates and persists a new task. Zero fields get defaults:
// queued lane, P2 priority, fresh id and timestamps. A task arriving
// with undone dependencies is placed in blocked, never queued.
func (s *TaskStore) Create(t *model.Task) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if t.ID == "" {
		t.ID = model.NewTask(t.Title).ID
	}
	if t.Lane == "" {
		t.Lane = model.LaneQueued
	}
	if t.Priority == "" {
		t.Priority = model.PriorityP2
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	t.RecomputeActualHours()
	s.blockOnUnmetDeps(t)

	if err := model.Validate(t); err != nil {
		return nil, err
	}
	if _, exists := s.index[t.ID]; exists {
		return nil, fmt.Errorf("task %s already exists", t.ID)
	}

	s.evictIfFull()

	cp := cloneTask(t)
	s.doc.Tasks = append(s.doc.Tasks, cp)
	s.index[cp.ID] = cp

	if err := s.save(); err != nil {
		s.doc.Tasks = s.doc.Tasks[:len(s.doc.Tasks)-1]
		delete(s.index, cp.ID)
		return nil, err
	}
	return cloneTask(cp), nil
}

// evictIfFull removes the oldest done tasks to stay under the cap.
// Must be called with the write lock held.
func (s *TaskStore) evictIfFull() {
	if len(s.doc.Tasks) < s.maxTasks {
		return
	}
	kept := s.doc.Tasks[:0]
	over := len(s.doc.Tasks) - s.maxTasks + 1
	done := make([]*model.Task, 0, over)
	for _, t := range s.doc.Tasks {
		if t.Lane == model.LaneDone && len(done) < over {
			done = append(done, t)
			continue
		}
		kept = append(kept, t)
	}
	if len(done) == 0 {
		return
	}
	s.doc.Tasks = kept
	s.reindex()
	s.log.WarnCtx("task store at capacity, evicted oldest done tasks", map[string]any{
		"evicted": len(done),
	})
}

// Get returns a copy of the task with the given id.
func (s *TaskStore) Get(id string) (*model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.index[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return cloneTask(t), nil
}

// TaskFilter narrows List results. Zero fields match everything.
type TaskFilter struct {
	Lane       model.Lane
	AssignedTo string
	Tag        string
	Priority   model.Priority
}

func (f TaskFilter) matches(t *model.Task) bool {
	if f.Lane != "" && t.Lane != f.Lane {
		return false
	}
	if f.AssignedTo != "" && t.AssignedTo != f.AssignedTo {
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if f.Tag != "" {
		found := false
		for _, tag := range t.Tags {
			if tag == f.Tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// List returns copies of matching tasks ordered by creation time, then
// id for a stable order.
func (s *TaskStore) List(f TaskFilter) []*model.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Task, 0, len(s.doc.Tasks))
	for _, t := range s.doc.Tasks {
		if f.matches(t) {
			out = append(out, cloneTask(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Mutate applies fn to the task under the store's exclusive lock and
// persists the result. If fn returns an error the task is left
// untouched; this is the atomic check-then-set every lane transition
// goes through.
func (s *TaskStore) Mutate(id string, fn func(*model.Task) error) (*model.Task, error) {
	return s.MutateDeps(id, func(t *model.Task, _ []string) error { return fn(t) })
}

// MutateDeps is Mutate with the task's unmet dependencies resolved
// under the same lock, for transitions gated on dependency state.
func (s *TaskStore) MutateDeps(id string, fn func(t *model.Task, unmet []string) error) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.index[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}

	work := cloneTask(t)
	if err := fn(work, s.unmetLocked(t)); err != nil {
		return nil, err
	}
	work.ID = id // id is immutable
	work.UpdatedAt = time.Now()
	work.RecomputeActualHours()

	if err := model.Validate(work); err != nil {
		return nil, err
	}

	*t = *work
	if err := s.save(); err != nil {
		return nil, err
	}
	return cloneTask(t), nil
}

// LogTime appends a time entry and restores the actual-hours invariant.
func (s *TaskStore) LogTime(id string, entry model.TimeEntry) (*model.Task, error) {
	return s.Mutate(id, func(t *model.Task) error {
		if entry.AgentID == "" {
			return fmt.Errorf("time entry requires an agent id")
		}
		if entry.Hours < 0 {
			return fmt.Errorf("time entry hours must be non-negative")
		}
		t.TimeEntries = append(t.TimeEntries, entry)
		return nil
	})
}

// AddDependency records that id depends on depID. Self and unknown
// dependencies are rejected. A task gaining a dependency on undone
// work leaves the claimable lanes for blocked; the auto-unblock sweep
// returns it to queued once the dependency is done.
func (s *TaskStore) AddDependency(id, depID string) (*model.Task, error) {
	if id == depID {
		return nil, fmt.Errorf("task %s cannot depend on itself", id)
	}
	s.mu.RLock()
	_, ok := s.index[depID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("dependency %s: %w", depID, ErrNotFound)
	}
	return s.Mutate(id, func(t *model.Task) error {
		for _, d := range t.DependsOn {
			if d == depID {
				return nil
			}
		}
		t.DependsOn = append(t.DependsOn, depID)
		s.blockOnUnmetDeps(t)
		return nil
	})
}

// blockOnUnmetDeps moves a task out of queued/in_progress when any of
// its dependencies is undone. Must be called with the write lock held.
func (s *TaskStore) blockOnUnmetDeps(t *model.Task) {
	if t.Lane != model.LaneQueued && t.Lane != model.LaneInProgress {
		return
	}
	if len(s.unmetLocked(t)) == 0 {
		return
	}
	now := time.Now()
	t.Lane = model.LaneBlocked
	t.BlockedAt = &now
	t.BlockedReason = "waiting on dependencies"
	t.BlockedBy = "system"
}

// UnmetDependencies returns the task's dependencies that are not done.
// Dangling references count as unmet.
func (s *TaskStore) UnmetDependencies(id string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.index[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return s.unmetLocked(t), nil
}

// unmetLocked must be called with the lock held.
func (s *TaskStore) unmetLocked(t *model.Task) []string {
	var unmet []string
	for _, depID := range t.DependsOn {
		dep, ok := s.index[depID]
		if !ok || dep.Lane != model.LaneDone {
			unmet = append(unmet, depID)
		}
	}
	return unmet
}

// ActiveCount returns the agent's workload: assigned tasks not done.
func (s *TaskStore) ActiveCount(agentID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, t := range s.doc.Tasks {
		if t.AssignedTo == agentID && t.Lane != model.LaneDone {
			n++
		}
	}
	return n
}

// Delete removes a task permanently. Irreversible.
func (s *TaskStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.index[id]
	if !ok {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	old := s.doc.Tasks
	kept := make([]*model.Task, 0, len(old)-1)
	for _, x := range old {
		if x.ID != id {
			kept = append(kept, x)
		}
	}
	s.doc.Tasks = kept
	delete(s.index, id)
	if err := s.save(); err != nil {
		s.doc.Tasks = old
		s.index[id] = t
		return err
	}
	return nil
}

// Len returns the number of stored tasks.
func (s *TaskStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.doc.Tasks)
}

// cloneTask deep-copies a task so callers never share slices or
// pointers with the store's in-memory document.
func cloneTask(t *model.Task) *model.Task {
	cp := *t
	if t.Tags != nil {
		cp.Tags = append([]string(nil), t.Tags...)
	}
	if t.DependsOn != nil {
		cp.DependsOn = append([]string(nil), t.DependsOn...)
	}
	if t.TimeEntries != nil {
		cp.TimeEntries = append([]model.TimeEntry(nil), t.TimeEntries...)
	}
	if t.Work != nil {
		w := *t.Work
		if t.Work.Commits != nil {
			w.Commits = append([]model.Commit(nil), t.Work.Commits...)
		}
		if t.Work.Artifacts != nil {
			w.Artifacts = append([]string(nil), t.Work.Artifacts...)
		}
		cp.Work = &w
	}
	cp.ClaimedAt = cloneTime(t.ClaimedAt)
	cp.BlockedAt = cloneTime(t.BlockedAt)
	cp.CompletedAt = cloneTime(t.CompletedAt)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
