package history

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func run(id, outcome string, start time.Time, dur time.Duration) Run {
	return Run{
		ID:        id,
		Slot:      "worker-1",
		AgentID:   "agent-1",
		TaskID:    "task-" + id,
		TaskTitle: "Task " + id,
		Outcome:   outcome,
		StartedAt: start,
		EndedAt:   start.Add(dur),
	}
}

func TestRecordAndRecentRuns(t *testing.T) {
	a := openTestArchive(t)
	base := time.Date(2026, 8, 1, 22, 0, 0, 0, time.UTC)

	if err := a.RecordRun(run("r1", "completed", base, 30*time.Minute)); err != nil {
		t.Fatalf("RecordRun() error: %v", err)
	}
	if err := a.RecordRun(run("r2", "failed", base.Add(time.Hour), 10*time.Minute)); err != nil {
		t.Fatalf("RecordRun() error: %v", err)
	}

	runs, err := a.RecentRuns(10)
	if err != nil {
		t.Fatalf("RecentRuns() error: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("RecentRuns() returned %d runs, want 2", len(runs))
	}
	if runs[0].ID != "r2" {
		t.Errorf("newest run = %s, want r2", runs[0].ID)
	}
	if got := runs[1].Duration(); got != 30*time.Minute {
		t.Errorf("duration = %v, want 30m", got)
	}
}

func TestRecordRunUpsertsOutcome(t *testing.T) {
	a := openTestArchive(t)
	base := time.Now().UTC().Truncate(time.Second)

	if err := a.RecordRun(run("r1", "failed", base, time.Minute)); err != nil {
		t.Fatal(err)
	}
	r := run("r1", "completed", base, 2*time.Minute)
	if err := a.RecordRun(r); err != nil {
		t.Fatalf("second RecordRun() error: %v", err)
	}

	runs, err := a.RecentRuns(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Outcome != "completed" {
		t.Errorf("runs = %+v, want single completed run", runs)
	}
}

func TestRecordRunRequiresID(t *testing.T) {
	a := openTestArchive(t)
	if err := a.RecordRun(Run{}); err == nil {
		t.Error("RecordRun() with empty id succeeded, want error")
	}
}

func TestSummarize(t *testing.T) {
	a := openTestArchive(t)
	base := time.Date(2026, 8, 1, 22, 0, 0, 0, time.UTC)

	for i, outcome := range []string{"completed", "completed", "failed"} {
		r := run(string(rune('a'+i)), outcome, base.Add(time.Duration(i)*time.Hour), time.Hour)
		if err := a.RecordRun(r); err != nil {
			t.Fatal(err)
		}
	}

	s, err := a.Summarize(time.Time{})
	if err != nil {
		t.Fatalf("Summarize() error: %v", err)
	}
	if s.Total != 3 || s.ByOutcome["completed"] != 2 || s.ByOutcome["failed"] != 1 {
		t.Errorf("summary = %+v", s)
	}
	if s.TotalHours < 2.9 || s.TotalHours > 3.1 {
		t.Errorf("total hours = %f, want ~3", s.TotalHours)
	}

	// A window after all runs sees nothing.
	s, err = a.Summarize(base.Add(24 * time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if s.Total != 0 {
		t.Errorf("windowed summary = %+v, want empty", s)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	a, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.RecordRun(run("r1", "completed", time.Now().UTC(), time.Minute)); err != nil {
		t.Fatal(err)
	}
	a.Close()

	// Reopening must not re-run migrations destructively.
	b, err := Open(path)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer b.Close()
	runs, err := b.RecentRuns(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Errorf("runs after reopen = %d, want 1", len(runs))
	}
}
