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

type workerDoc struct {
	Version int                               `json:"version"`
	Workers map[string]*model.WorkerHeartbeat `json:"workers"`
}

// WorkerBoard holds the per-slot heartbeat records workers write on
// every monitor tick. Each worker owns only its own record.
type WorkerBoard struct {
	mu   sync.RWMutex
	path string
	flk  *flock.Flock
	log  *logging.Logger
	doc  *workerDoc
}

// OpenWorkers opens the worker heartbeat store at path.
func OpenWorkers(path string, log *logging.Logger) (*WorkerBoard, error) {
	flk, err := lockFile(path)
	if err != nil {
		return nil, err
	}

	w := &WorkerBoard{
		path: path,
		flk:  flk,
		log:  log,
		doc:  &workerDoc{Version: 1, Workers: make(map[string]*model.WorkerHeartbeat)},
	}

	doc := &workerDoc{Version: 1}
	if loadOrEmpty(path, doc, log) && doc.Workers != nil {
		w.doc = doc
	}
	return w, nil
}

// Close releases the store's file lock.
func (w *WorkerBoard) Close() error {
	return w.flk.Unlock()
}

// Beat upserts a worker slot's heartbeat, stamping the beat time.
func (w *WorkerBoard) Beat(hb model.WorkerHeartbeat) error {
	if hb.Slot == "" {
		return fmt.Errorf("worker slot required")
	}
	hb.LastBeatAt = time.Now()
	if err := model.Validate(&hb); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.doc.Workers[hb.Slot] = &hb
	return writeDoc(w.path, w.doc)
}

// Get returns a copy of the slot's heartbeat.
func (w *WorkerBoard) Get(slot string) (*model.WorkerHeartbeat, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	hb, ok := w.doc.Workers[slot]
	if !ok {
		return nil, fmt.Errorf("worker %s: %w", slot, ErrNotFound)
	}
	cp := *hb
	return &cp, nil
}

// List returns all heartbeats ordered by slot.
func (w *WorkerBoard) List() []*model.WorkerHeartbeat {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]*model.WorkerHeartbeat, 0, len(w.doc.Workers))
	for _, hb := range w.doc.Workers {
		cp := *hb
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}
