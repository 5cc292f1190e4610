package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/lpappas98/claw-control-center/internal/logging"
	"github.com/lpappas98/claw-control-center/internal/model"
)

func openTestWorkers(t *testing.T) *WorkerBoard {
	t.Helper()
	w, err := OpenWorkers(filepath.Join(t.TempDir(), "workers.json"), logging.Component("test"))
	if err != nil {
		t.Fatalf("OpenWorkers: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

func TestWorkerBoard_BeatUpserts(t *testing.T) {
	w := openTestWorkers(t)

	if err := w.Beat(model.WorkerHeartbeat{Slot: "worker-0", Status: model.WorkerIdle}); err != nil {
		t.Fatalf("Beat: %v", err)
	}
	got, err := w.Get("worker-0")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != model.WorkerIdle {
		t.Errorf("status = %q, want idle", got.Status)
	}
	if got.LastBeatAt.IsZero() {
		t.Error("expected beat timestamp")
	}

	if err := w.Beat(model.WorkerHeartbeat{Slot: "worker-0", Status: model.WorkerWorking, Task: "t1", SessionID: "s1"}); err != nil {
		t.Fatalf("Beat: %v", err)
	}
	got, _ = w.Get("worker-0")
	if got.Status != model.WorkerWorking || got.Task != "t1" || got.SessionID != "s1" {
		t.Errorf("heartbeat not replaced: %+v", got)
	}
}

func TestWorkerBoard_BeatValidates(t *testing.T) {
	w := openTestWorkers(t)

	if err := w.Beat(model.WorkerHeartbeat{Status: model.WorkerIdle}); err == nil {
		t.Error("expected error for missing slot")
	}
	if err := w.Beat(model.WorkerHeartbeat{Slot: "worker-0", Status: "napping"}); err == nil {
		t.Error("expected error for invalid status")
	}
}

func TestWorkerBoard_ListOrderedBySlot(t *testing.T) {
	w := openTestWorkers(t)

	for _, slot := range []string{"worker-2", "worker-0", "worker-1"} {
		if err := w.Beat(model.WorkerHeartbeat{Slot: slot, Status: model.WorkerIdle}); err != nil {
			t.Fatal(err)
		}
	}

	got := w.List()
	if len(got) != 3 || got[0].Slot != "worker-0" || got[2].Slot != "worker-2" {
		t.Errorf("unexpected order: %v", got)
	}

	if _, err := w.Get("worker-9"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
