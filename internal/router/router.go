// Package router drives tasks through the board's lanes. Every
// transition goes through the task store's Mutate so the check and
// the write happen under one lock.
package router

import (
	"errors"
	"fmt"
	"time"

	"github.com/lpappas98/claw-control-center/internal/assign"
	"github.com/lpappas98/claw-control-center/internal/logging"
	"github.com/lpappas98/claw-control-center/internal/model"
	"github.com/lpappas98/claw-control-center/internal/notify"
	"github.com/lpappas98/claw-control-center/internal/store"
)

// defaultActor is recorded on transitions that arrive without an
// acting agent.
const defaultActor = "system"

// ConflictError is returned when a claim loses the race for a task.
type ConflictError struct {
	TaskID       string
	CurrentLane  model.Lane
	CurrentAgent string
}

func (e *ConflictError) Error() string {
	if e.CurrentAgent != "" {
		return fmt.Sprintf("task %s already claimed by %s (lane %s)", e.TaskID, e.CurrentAgent, e.CurrentLane)
	}
	return fmt.Sprintf("task %s is not claimable (lane %s)", e.TaskID, e.CurrentLane)
}

// Router applies lane transitions and fans the resulting events out
// to the notification sink. Sink failures are logged, never returned:
// a transition that committed stays committed.
type Router struct {
	tasks  *store.TaskStore
	agents *store.AgentRegistry
	engine *assign.Engine
	sink   notify.Sink
	log    *logging.Logger
}

func New(tasks *store.TaskStore, agents *store.AgentRegistry, sink notify.Sink) *Router {
	if sink == nil {
		sink = notify.NopSink{}
	}
	return &Router{
		tasks:  tasks,
		agents: agents,
		engine: assign.New(),
		sink:   sink,
		log:    logging.Component("router"),
	}
}

// Claim moves a queued task to in_progress on behalf of agentID. It
// is the only precondition-gated transition: claiming anything but a
// queued task, or a task still waiting on undone dependencies, returns
// a ConflictError describing the current holder.
func (r *Router) Claim(taskID, agentID string) (*model.Task, error) {
	if agentID == "" {
		return nil, errors.New("claim requires an agent id")
	}
	t, err := r.tasks.MutateDeps(taskID, func(t *model.Task, unmet []string) error {
		if t.Lane != model.LaneQueued || len(unmet) > 0 {
			return &ConflictError{
				TaskID:       t.ID,
				CurrentLane:  t.Lane,
				CurrentAgent: t.ClaimedBy,
			}
		}
		now := time.Now()
		t.Lane = model.LaneInProgress
		t.AssignedTo = agentID
		t.ClaimedBy = agentID
		t.ClaimedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.log.InfoCtx("task claimed", map[string]any{"task": taskID, "agent": agentID})
	r.emit(func() error { return r.sink.TaskAssigned(agentID, t) })
	return t, nil
}

// Complete moves a task to review. Completion is accepted from any
// lane so that late or duplicated reports from workers are harmless.
func (r *Router) Complete(taskID, actor string) (*model.Task, error) {
	actor = orSystem(actor)
	t, err := r.tasks.Mutate(taskID, func(t *model.Task) error {
		if t.Lane == model.LaneReview {
			return nil // already there; idempotent
		}
		now := time.Now()
		t.Lane = model.LaneReview
		t.CompletedAt = &now
		t.BlockedAt = nil
		t.BlockedReason = ""
		t.BlockedBy = ""
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.log.InfoCtx("task completed", map[string]any{"task": taskID, "actor": actor})
	if t.AssignedTo != "" {
		r.emit(func() error { return r.sink.TaskCompleted(t.AssignedTo, t) })
	}
	return t, nil
}

// MarkBlocked moves a task to blocked with a reason.
func (r *Router) MarkBlocked(taskID, actor, reason string) (*model.Task, error) {
	actor = orSystem(actor)
	t, err := r.tasks.Mutate(taskID, func(t *model.Task) error {
		now := time.Now()
		t.Lane = model.LaneBlocked
		t.BlockedAt = &now
		t.BlockedReason = reason
		t.BlockedBy = actor
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.log.WarnCtx("task blocked", map[string]any{"task": taskID, "actor": actor, "reason": reason})
	if t.AssignedTo != "" {
		r.emit(func() error { return r.sink.TaskBlocked(t.AssignedTo, t, reason) })
	}
	return t, nil
}

// Release clears a task's claim so any agent can pick it up again. A
// task still waiting on undone dependencies goes back to blocked, not
// queued; everything else returns to the queue.
func (r *Router) Release(taskID, actor string) (*model.Task, error) {
	actor = orSystem(actor)
	t, err := r.tasks.MutateDeps(taskID, func(t *model.Task, unmet []string) error {
		t.AssignedTo = ""
		t.ClaimedBy = ""
		t.ClaimedAt = nil
		t.BlockedAt = nil
		t.BlockedReason = ""
		t.BlockedBy = ""
		t.Lane = model.LaneQueued
		if len(unmet) > 0 {
			now := time.Now()
			t.Lane = model.LaneBlocked
			t.BlockedAt = &now
			t.BlockedReason = "waiting on dependencies"
			t.BlockedBy = defaultActor
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.log.InfoCtx("task released", map[string]any{"task": taskID, "actor": actor})
	return t, nil
}

// RecordWork merges work evidence (commits, test results, artifacts)
// into the task without changing its lane.
func (r *Router) RecordWork(taskID, actor string, work model.WorkRecord) (*model.Task, error) {
	work.UpdatedBy = orSystem(actor)
	return r.tasks.Mutate(taskID, func(t *model.Task) error {
		t.MergeWork(work)
		return nil
	})
}

// AutoUnblock re-queues every blocked task whose dependencies are all
// done. Running it twice in a row is a no-op; it returns the ids it
// moved.
func (r *Router) AutoUnblock() []string {
	var moved []string
	for _, t := range r.tasks.List(store.TaskFilter{Lane: model.LaneBlocked}) {
		unmet, err := r.tasks.UnmetDependencies(t.ID)
		if err != nil || len(unmet) > 0 {
			continue
		}
		if _, err := r.Release(t.ID, defaultActor); err != nil {
			r.log.Err(err).Str("task", t.ID).Msg("auto-unblock failed")
			continue
		}
		moved = append(moved, t.ID)
	}
	if len(moved) > 0 {
		r.log.InfoCtx("auto-unblocked tasks", map[string]any{"count": len(moved)})
	}
	return moved
}

// AutoAssign picks the best online agent for a queued task and claims
// it on their behalf.
func (r *Router) AutoAssign(taskID string) (*model.Task, error) {
	t, err := r.tasks.Get(taskID)
	if err != nil {
		return nil, err
	}
	agentID, ok := r.engine.SelectBestAgent(t, r.withWorkloads(r.agents.List()))
	if !ok {
		return nil, errors.New("no online agents available")
	}
	return r.Claim(taskID, agentID)
}

// Suggest runs the assignment engine over every queued task without
// claiming anything.
func (r *Router) Suggest() []assign.Suggestion {
	queued := r.tasks.List(store.TaskFilter{Lane: model.LaneQueued})
	return r.engine.SuggestAssignments(queued, r.withWorkloads(r.agents.List()))
}

// withWorkloads overwrites each agent's stored workload with the live
// count of open tasks. Workload is derived state; the board is the
// source of truth.
func (r *Router) withWorkloads(agents []*model.Agent) []*model.Agent {
	for _, a := range agents {
		a.Workload = r.tasks.ActiveCount(a.ID)
	}
	return agents
}

func (r *Router) emit(fn func() error) {
	if err := fn(); err != nil {
		r.log.Err(err).Msg("notification delivery failed")
	}
}

func orSystem(actor string) string {
	if actor == "" {
		return defaultActor
	}
	return actor
}
