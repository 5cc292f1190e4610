package session

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lpappas98/claw-control-center/internal/logging"
)

// DefaultTimeout bounds a session when Spec.Timeout is zero. MaxTimeout
// is a hard cap: no session runs longer regardless of configuration.
const (
	DefaultTimeout = 30 * time.Minute
	MaxTimeout     = 2 * time.Hour
)

// outputTail limits how much agent output a Status carries.
const outputTail = 4096

// CommandRunner executes shell commands. Allows mocking in tests.
type CommandRunner interface {
	Run(ctx context.Context, name string, args []string, dir string, stdin string) (stdout, stderr string, exitCode int, err error)
}

// OSRunner is the default CommandRunner using os/exec.
type OSRunner struct{}

func (OSRunner) Run(ctx context.Context, name string, args []string, dir string, stdin string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if dir != "" {
		cmd.Dir = dir
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	err := cmd.Run()

	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}

	return stdoutBuf.String(), stderrBuf.String(), exitCode, err
}

type execSession struct {
	status Status
	cancel context.CancelFunc
	done   chan struct{}
}

// ExecRunner runs each session as one invocation of the configured
// agent binary. Sessions live in memory; a restart forgets them,
// which surfaces to callers as StateNotFound.
type ExecRunner struct {
	binary  string
	args    []string
	timeout time.Duration
	runner  CommandRunner
	log     *logging.Logger

	mu       sync.Mutex
	sessions map[string]*execSession
}

// ExecOption configures an ExecRunner.
type ExecOption func(*ExecRunner)

// WithBinary sets the agent binary and its fixed leading arguments.
func WithBinary(path string, args ...string) ExecOption {
	return func(r *ExecRunner) {
		r.binary = path
		r.args = args
	}
}

// WithTimeout sets the default session timeout.
func WithTimeout(d time.Duration) ExecOption {
	return func(r *ExecRunner) {
		r.timeout = d
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func WithCommandRunner(cr CommandRunner) ExecOption {
	return func(r *ExecRunner) {
		r.runner = cr
	}
}

// NewExecRunner creates a runner that spawns the claude CLI by
// default.
func NewExecRunner(opts ...ExecOption) *ExecRunner {
	r := &ExecRunner{
		binary:   "claude",
		args:     []string{"--print"},
		timeout:  DefaultTimeout,
		runner:   OSRunner{},
		log:      logging.Component("session"),
		sessions: make(map[string]*execSession),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the agent binary in a background goroutine and
// returns immediately.
func (r *ExecRunner) Start(_ context.Context, spec Spec) (string, error) {
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	if timeout > MaxTimeout {
		timeout = MaxTimeout
	}

	id := uuid.NewString()
	runCtx, cancel := context.WithTimeout(context.Background(), timeout)
	s := &execSession{
		status: Status{ID: id, State: StateRunning, Started: time.Now()},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	args := append(append([]string(nil), r.args...), spec.Prompt)
	r.log.InfoCtx("session started", map[string]any{
		"session": id, "task": spec.TaskID, "binary": r.binary,
	})

	go func() {
		defer cancel()
		defer close(s.done)

		stdout, stderr, exitCode, err := r.runner.Run(runCtx, r.binary, args, spec.WorkDir, "")

		r.mu.Lock()
		defer r.mu.Unlock()
		s.status.Ended = time.Now()
		s.status.ExitCode = exitCode
		s.status.Output = tail(stdout, outputTail)
		switch {
		case runCtx.Err() == context.DeadlineExceeded:
			s.status.State = StateFailed
			s.status.Error = "session timed out"
		case err != nil:
			s.status.State = StateFailed
			s.status.Error = firstNonEmpty(tail(stderr, outputTail), err.Error())
		case exitCode != 0:
			s.status.State = StateFailed
			s.status.Error = tail(stderr, outputTail)
		default:
			s.status.State = StateSucceeded
		}
		r.log.InfoCtx("session finished", map[string]any{
			"session": id, "task": spec.TaskID, "state": string(s.status.State), "exit": exitCode,
		})
	}()

	return id, nil
}

func (r *ExecRunner) Status(_ context.Context, id string) (Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return Status{ID: id, State: StateNotFound}, nil
	}
	return s.status, nil
}

func (r *ExecRunner) Kill(_ context.Context, id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	s.cancel()
	<-s.done
	return nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}
