// Package history keeps a durable archive of finished worker runs in
// SQLite. Live board state stays in the JSON stores; this is the
// append-only record behind status and stats output.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Archive wraps the SQLite connection and path.
type Archive struct {
	sql  *sql.DB
	path string
}

// DefaultPath returns the default archive path.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "clawcenter", "history.db")
}

// Open opens or creates the archive, applies pragmas, and runs
// migrations.
func Open(dbPath string) (*Archive, error) {
	if dbPath == "" {
		dbPath = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("creating archive dir: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping archive: %w", err)
	}
	if err := applyPragmas(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	if err := migrate(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return &Archive{sql: sqlDB, path: dbPath}, nil
}

// Close closes the underlying connection.
func (a *Archive) Close() error {
	if a == nil || a.sql == nil {
		return nil
	}
	return a.sql.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("setting pragma %q: %w", pragma, err)
		}
	}
	return nil
}

// Run is one archived worker session.
type Run struct {
	ID        string
	Slot      string
	AgentID   string
	TaskID    string
	TaskTitle string
	Outcome   string
	Error     string
	StartedAt time.Time
	EndedAt   time.Time
}

// Duration is the wall time the run took.
func (r Run) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// RecordRun appends a finished run to the archive.
func (a *Archive) RecordRun(r Run) error {
	if r.ID == "" {
		return errors.New("run id is required")
	}
	_, err := a.sql.Exec(`
		INSERT INTO run_history (id, slot, agent_id, task_id, task_title, outcome, error, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			outcome = excluded.outcome,
			error = excluded.error,
			ended_at = excluded.ended_at`,
		r.ID, r.Slot, r.AgentID, r.TaskID, r.TaskTitle, r.Outcome, r.Error,
		r.StartedAt.UTC(), r.EndedAt.UTC())
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}

// RecentRuns returns the newest runs, most recent first.
func (a *Archive) RecentRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := a.sql.Query(`
		SELECT id, slot, agent_id, task_id, task_title, outcome, error, started_at, ended_at
		FROM run_history
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Slot, &r.AgentID, &r.TaskID, &r.TaskTitle,
			&r.Outcome, &r.Error, &r.StartedAt, &r.EndedAt); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Summary aggregates archived runs by outcome.
type Summary struct {
	Total      int
	ByOutcome  map[string]int
	TotalHours float64
}

// Summarize reports archive totals since the given time. A zero time
// covers everything.
func (a *Archive) Summarize(since time.Time) (Summary, error) {
	rows, err := a.sql.Query(`
		SELECT outcome, COUNT(*), COALESCE(SUM(julianday(ended_at) - julianday(started_at)) * 24, 0)
		FROM run_history
		WHERE started_at >= ?
		GROUP BY outcome`, since.UTC())
	if err != nil {
		return Summary{}, fmt.Errorf("summarizing runs: %w", err)
	}
	defer rows.Close()

	s := Summary{ByOutcome: make(map[string]int)}
	for rows.Next() {
		var outcome string
		var count int
		var hours float64
		if err := rows.Scan(&outcome, &count, &hours); err != nil {
			return Summary{}, fmt.Errorf("scanning summary: %w", err)
		}
		s.ByOutcome[outcome] = count
		s.Total += count
		s.TotalHours += hours
	}
	return s, rows.Err()
}
