package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockRunner simulates agent sessions without spawning anything.
// Selected by the session.mode=mock configuration; also used in
// tests. Each session runs for Delay and then lands on Outcome.
type MockRunner struct {
	Outcome State         // StateSucceeded unless set
	Delay   time.Duration // how long a session reports running
	Output  string
	Err     string

	mu       sync.Mutex
	sessions map[string]time.Time
	killed   map[string]bool
}

func NewMockRunner() *MockRunner {
	return &MockRunner{
		Outcome:  StateSucceeded,
		sessions: make(map[string]time.Time),
		killed:   make(map[string]bool),
	}
}

func (m *MockRunner) Start(_ context.Context, spec Spec) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	m.sessions[id] = time.Now()
	return id, nil
}

func (m *MockRunner) Status(_ context.Context, id string) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	started, ok := m.sessions[id]
	if !ok {
		return Status{ID: id, State: StateNotFound}, nil
	}
	st := Status{ID: id, Started: started, Output: m.Output, Error: m.Err}
	switch {
	case m.killed[id]:
		st.State = StateFailed
		st.Error = "killed"
	case time.Since(started) < m.Delay:
		st.State = StateRunning
	default:
		st.State = m.Outcome
		st.Ended = started.Add(m.Delay)
	}
	return st, nil
}

func (m *MockRunner) Kill(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; ok {
		m.killed[id] = true
	}
	return nil
}

// Forget drops a session so later Status calls report StateNotFound.
func (m *MockRunner) Forget(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	delete(m.killed, id)
}

// ForgetAll drops every session, simulating a runner restart.
func (m *MockRunner) ForgetAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = make(map[string]time.Time)
	m.killed = make(map[string]bool)
}
