package router

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/lpappas98/claw-control-center/internal/logging"
	"github.com/lpappas98/claw-control-center/internal/model"
	"github.com/lpappas98/claw-control-center/internal/notify"
	"github.com/lpappas98/claw-control-center/internal/store"
)

func newTestRouter(t *testing.T) (*Router, *store.TaskStore, *store.AgentRegistry, *store.NotificationLog) {
	t.Helper()
	dir := t.TempDir()
	log := logging.Component("test")

	tasks, err := store.OpenTasks(filepath.Join(dir, "tasks.json"), log)
	if err != nil {
		t.Fatalf("OpenTasks() error: %v", err)
	}
	t.Cleanup(func() { tasks.Close() })

	agents, err := store.OpenAgents(filepath.Join(dir, "agents.json"), log)
	if err != nil {
		t.Fatalf("OpenAgents() error: %v", err)
	}
	t.Cleanup(func() { agents.Close() })

	notes, err := store.OpenNotifications(filepath.Join(dir, "notifications.json"), log)
	if err != nil {
		t.Fatalf("OpenNotifications() error: %v", err)
	}
	t.Cleanup(func() { notes.Close() })

	r := New(tasks, agents, notify.NewStoreSink(notes))
	return r, tasks, agents, notes
}

func mustCreate(t *testing.T, tasks *store.TaskStore, title string) *model.Task {
	t.Helper()
	tk, err := tasks.Create(model.NewTask(title))
	if err != nil {
		t.Fatalf("Create(%q) error: %v", title, err)
	}
	return tk
}

func TestClaimMovesQueuedTask(t *testing.T) {
	r, tasks, _, notes := newTestRouter(t)
	tk := mustCreate(t, tasks, "Add api endpoint")

	got, err := r.Claim(tk.ID, "agent-1")
	if err != nil {
		t.Fatalf("Claim() error: %v", err)
	}
	if got.Lane != model.LaneInProgress {
		t.Errorf("lane = %s, want %s", got.Lane, model.LaneInProgress)
	}
	if got.ClaimedBy != "agent-1" || got.AssignedTo != "agent-1" {
		t.Errorf("claim attribution = %q/%q, want agent-1", got.ClaimedBy, got.AssignedTo)
	}
	if got.ClaimedAt == nil {
		t.Error("ClaimedAt not set")
	}

	got2, _ := tasks.Get(tk.ID)
	if got2.Lane != model.LaneInProgress {
		t.Errorf("persisted lane = %s, want %s", got2.Lane, model.LaneInProgress)
	}

	ns := notes.ListForAgent("agent-1", false)
	if len(ns) != 1 || ns[0].Type != model.NotifyAssigned {
		t.Errorf("notifications = %v, want one %s", ns, model.NotifyAssigned)
	}
}

func TestClaimConflict(t *testing.T) {
	r, tasks, _, _ := newTestRouter(t)
	tk := mustCreate(t, tasks, "Fix the build")

	if _, err := r.Claim(tk.ID, "agent-1"); err != nil {
		t.Fatalf("first Claim() error: %v", err)
	}

	_, err := r.Claim(tk.ID, "agent-2")
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("second Claim() error = %v, want ConflictError", err)
	}
	if conflict.CurrentLane != model.LaneInProgress || conflict.CurrentAgent != "agent-1" {
		t.Errorf("conflict = %+v, want in_progress/agent-1", conflict)
	}

	// The losing claim must not have touched the task.
	got, _ := tasks.Get(tk.ID)
	if got.ClaimedBy != "agent-1" {
		t.Errorf("ClaimedBy = %q, want agent-1", got.ClaimedBy)
	}
}

func TestClaimConcurrentSingleWinner(t *testing.T) {
	r, tasks, _, _ := newTestRouter(t)
	tk := mustCreate(t, tasks, "Contested task")

	type result struct {
		agent string
		err   error
	}
	results := make(chan result, 2)
	start := make(chan struct{})
	for _, agent := range []string{"agent-1", "agent-2"} {
		go func(agent string) {
			<-start
			_, err := r.Claim(tk.ID, agent)
			results <- result{agent, err}
		}(agent)
	}
	close(start)

	var winner string
	var conflicts []*ConflictError
	for i := 0; i < 2; i++ {
		res := <-results
		if res.err == nil {
			if winner != "" {
				t.Fatal("both claims succeeded")
			}
			winner = res.agent
			continue
		}
		var conflict *ConflictError
		if !errors.As(res.err, &conflict) {
			t.Fatalf("Claim() error = %v, want ConflictError", res.err)
		}
		conflicts = append(conflicts, conflict)
	}

	if winner == "" {
		t.Fatal("no claim succeeded")
	}
	if len(conflicts) != 1 {
		t.Fatalf("conflicts = %d, want exactly one loser", len(conflicts))
	}
	if conflicts[0].CurrentAgent != winner || conflicts[0].CurrentLane != model.LaneInProgress {
		t.Errorf("conflict = %+v, want in_progress held by %s", conflicts[0], winner)
	}
}

func TestClaimRejectsUnmetDependencies(t *testing.T) {
	r, tasks, _, _ := newTestRouter(t)

	dep := mustCreate(t, tasks, "Schema migration")
	if _, err := tasks.Mutate(dep.ID, func(t *model.Task) error {
		t.Lane = model.LaneDone
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	child := model.NewTask("Use new schema")
	child.DependsOn = []string{dep.ID}
	if _, err := tasks.Create(child); err != nil {
		t.Fatal(err)
	}

	// The dependency vanishes while the child sits in the queue; the
	// dangling reference counts as unmet and the claim must not land.
	if err := tasks.Delete(dep.ID); err != nil {
		t.Fatal(err)
	}

	_, err := r.Claim(child.ID, "agent-1")
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Claim() error = %v, want ConflictError", err)
	}

	got, _ := tasks.Get(child.ID)
	if got.Lane != model.LaneQueued || got.ClaimedBy != "" {
		t.Errorf("rejected claim touched the task: %+v", got)
	}
}

func TestClaimRequiresAgent(t *testing.T) {
	r, tasks, _, _ := newTestRouter(t)
	tk := mustCreate(t, tasks, "Anything")

	if _, err := r.Claim(tk.ID, ""); err == nil {
		t.Error("Claim() with empty agent succeeded, want error")
	}
}

func TestClaimUnknownTask(t *testing.T) {
	r, _, _, _ := newTestRouter(t)

	if _, err := r.Claim("nope", "agent-1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Claim() error = %v, want ErrNotFound", err)
	}
}

func TestCompleteMovesToReview(t *testing.T) {
	r, tasks, _, notes := newTestRouter(t)
	tk := mustCreate(t, tasks, "Ship it")
	if _, err := r.Claim(tk.ID, "agent-1"); err != nil {
		t.Fatal(err)
	}

	got, err := r.Complete(tk.ID, "")
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if got.Lane != model.LaneReview {
		t.Errorf("lane = %s, want %s", got.Lane, model.LaneReview)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}

	ns := notes.ListForAgent("agent-1", false)
	if len(ns) != 2 {
		t.Fatalf("notifications = %d, want 2 (assigned + completed)", len(ns))
	}
	if ns[0].Type != model.NotifyCompleted {
		t.Errorf("newest notification type = %s, want %s", ns[0].Type, model.NotifyCompleted)
	}
}

func TestCompleteFromQueuedIsAllowed(t *testing.T) {
	r, tasks, _, _ := newTestRouter(t)
	tk := mustCreate(t, tasks, "Quick fix")

	got, err := r.Complete(tk.ID, "reviewer")
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if got.Lane != model.LaneReview {
		t.Errorf("lane = %s, want %s", got.Lane, model.LaneReview)
	}
}

func TestMarkBlockedAndRelease(t *testing.T) {
	r, tasks, _, _ := newTestRouter(t)
	tk := mustCreate(t, tasks, "Waiting on upstream")
	if _, err := r.Claim(tk.ID, "agent-1"); err != nil {
		t.Fatal(err)
	}

	blocked, err := r.MarkBlocked(tk.ID, "agent-1", "upstream outage")
	if err != nil {
		t.Fatalf("MarkBlocked() error: %v", err)
	}
	if blocked.Lane != model.LaneBlocked || blocked.BlockedReason != "upstream outage" || blocked.BlockedBy != "agent-1" {
		t.Errorf("blocked task = %+v", blocked)
	}
	if blocked.BlockedAt == nil {
		t.Error("BlockedAt not set")
	}

	released, err := r.Release(tk.ID, "")
	if err != nil {
		t.Fatalf("Release() error: %v", err)
	}
	if released.Lane != model.LaneQueued {
		t.Errorf("lane = %s, want %s", released.Lane, model.LaneQueued)
	}
	if released.ClaimedBy != "" || released.AssignedTo != "" || released.ClaimedAt != nil {
		t.Errorf("release did not clear claim: %+v", released)
	}
	if released.BlockedReason != "" || released.BlockedAt != nil {
		t.Errorf("release did not clear block: %+v", released)
	}
}

func TestReleaseReblocksUnmetDependencies(t *testing.T) {
	r, tasks, _, _ := newTestRouter(t)

	dep := mustCreate(t, tasks, "Schema migration")
	if _, err := tasks.Mutate(dep.ID, func(t *model.Task) error {
		t.Lane = model.LaneDone
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	child := model.NewTask("Use new schema")
	child.DependsOn = []string{dep.ID}
	if _, err := tasks.Create(child); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Claim(child.ID, "agent-1"); err != nil {
		t.Fatal(err)
	}

	// The dependency regresses while the task is in flight; releasing
	// the claim must not leave the task claimable.
	if err := tasks.Delete(dep.ID); err != nil {
		t.Fatal(err)
	}

	got, err := r.Release(child.ID, "")
	if err != nil {
		t.Fatalf("Release() error: %v", err)
	}
	if got.Lane != model.LaneBlocked {
		t.Errorf("lane = %s, want blocked while dependencies are unmet", got.Lane)
	}
	if got.ClaimedBy != "" || got.AssignedTo != "" {
		t.Errorf("release did not clear claim: %+v", got)
	}
}

func TestMarkBlockedDefaultsActor(t *testing.T) {
	r, tasks, _, _ := newTestRouter(t)
	tk := mustCreate(t, tasks, "Mystery failure")

	got, err := r.MarkBlocked(tk.ID, "", "flaky network")
	if err != nil {
		t.Fatal(err)
	}
	if got.BlockedBy != "system" {
		t.Errorf("BlockedBy = %q, want system", got.BlockedBy)
	}
}

func TestRecordWorkMerges(t *testing.T) {
	r, tasks, _, _ := newTestRouter(t)
	tk := mustCreate(t, tasks, "Implement feature")

	_, err := r.RecordWork(tk.ID, "agent-1", model.WorkRecord{
		Commits:   []model.Commit{{SHA: "abc", Message: "first"}},
		Artifacts: []string{"out.txt"},
	})
	if err != nil {
		t.Fatalf("RecordWork() error: %v", err)
	}

	got, err := r.RecordWork(tk.ID, "agent-1", model.WorkRecord{
		Commits:     []model.Commit{{SHA: "abc"}, {SHA: "def"}},
		TestResults: "42 passed",
	})
	if err != nil {
		t.Fatalf("RecordWork() error: %v", err)
	}
	if len(got.Work.Commits) != 2 {
		t.Errorf("commits = %v, want abc and def", got.Work.Commits)
	}
	if got.Work.TestResults != "42 passed" {
		t.Errorf("test results = %q", got.Work.TestResults)
	}
	if got.Work.UpdatedBy != "agent-1" {
		t.Errorf("UpdatedBy = %q, want agent-1", got.Work.UpdatedBy)
	}
	if got.Lane != model.LaneQueued {
		t.Errorf("RecordWork changed lane to %s", got.Lane)
	}
}

func TestAutoUnblock(t *testing.T) {
	r, tasks, _, _ := newTestRouter(t)

	dep := mustCreate(t, tasks, "Schema migration")
	blocked := mustCreate(t, tasks, "Use new schema")
	if _, err := tasks.AddDependency(blocked.ID, dep.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := r.MarkBlocked(blocked.ID, "agent-1", "waiting on schema"); err != nil {
		t.Fatal(err)
	}

	// Dependency still open: nothing moves.
	if moved := r.AutoUnblock(); len(moved) != 0 {
		t.Fatalf("AutoUnblock() moved %v with unmet deps", moved)
	}

	if _, err := tasks.Mutate(dep.ID, func(t *model.Task) error {
		t.Lane = model.LaneDone
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	moved := r.AutoUnblock()
	if len(moved) != 1 || moved[0] != blocked.ID {
		t.Fatalf("AutoUnblock() = %v, want [%s]", moved, blocked.ID)
	}
	got, _ := tasks.Get(blocked.ID)
	if got.Lane != model.LaneQueued {
		t.Errorf("lane = %s, want %s", got.Lane, model.LaneQueued)
	}

	// Second sweep is a no-op.
	if moved := r.AutoUnblock(); len(moved) != 0 {
		t.Errorf("second AutoUnblock() = %v, want none", moved)
	}
}

func TestAutoAssignPicksBestAgent(t *testing.T) {
	r, tasks, agents, _ := newTestRouter(t)

	if _, err := agents.Heartbeat(model.Agent{ID: "d1", Name: "d1", Roles: []string{"designer"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := agents.Heartbeat(model.Agent{ID: "b1", Name: "b1", Roles: []string{"backend-dev"}}); err != nil {
		t.Fatal(err)
	}

	tk := mustCreate(t, tasks, "Design the login form")
	got, err := r.AutoAssign(tk.ID)
	if err != nil {
		t.Fatalf("AutoAssign() error: %v", err)
	}
	if got.ClaimedBy != "d1" {
		t.Errorf("ClaimedBy = %q, want d1", got.ClaimedBy)
	}
}

func TestAutoAssignWithoutAgents(t *testing.T) {
	r, tasks, _, _ := newTestRouter(t)
	tk := mustCreate(t, tasks, "Anything")

	if _, err := r.AutoAssign(tk.ID); err == nil {
		t.Error("AutoAssign() succeeded with no agents, want error")
	}
}
