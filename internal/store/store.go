// Package store implements the JSON-file-backed stores for tasks,
// agents, notifications, worker heartbeats, and projects. Each store
// owns one JSON document: mutations load the whole document, change it
// in memory, and atomically replace the file (write-temp-then-rename).
// A flock guards each file against a second control-center process.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/lpappas98/claw-control-center/internal/logging"
)

// ErrNotFound reports a missing task, agent, or notification id.
var ErrNotFound = errors.New("not found")

// readDoc loads a JSON document into v. A missing file returns
// os.ErrNotExist; malformed JSON returns a parse error the caller is
// expected to downgrade to empty state (availability over durability).
func readDoc(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return os.ErrNotExist
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return nil
}

// writeDoc atomically replaces the document at path.
func writeDoc(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(path), err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing %s: %w", filepath.Base(path), err)
	}
	return nil
}

// lockFile acquires the store's process lock, creating the directory
// first. The lock is held for the store's lifetime.
func lockFile(path string) (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating store dir: %w", err)
	}
	flk := flock.New(path + ".lock")
	locked, err := flk.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", filepath.Base(path), err)
	}
	if !locked {
		return nil, fmt.Errorf("store %s is locked by another process", filepath.Base(path))
	}
	return flk, nil
}

// loadOrEmpty reads a document into v. Corrupt JSON is downgraded to
// empty state with a logged warning; the caller must discard v when
// false is returned, since Unmarshal may have partially filled it.
// Missing files are silently empty.
func loadOrEmpty(path string, v any, log *logging.Logger) bool {
	err := readDoc(path, v)
	if err == nil {
		return true
	}
	if errors.Is(err, os.ErrNotExist) {
		return true
	}
	log.WarnCtx("store file unreadable, starting empty", map[string]any{
		"path":  path,
		"error": err.Error(),
	})
	return false
}
