// Package worker runs supervisor slots: each slot claims one task at
// a time, hands it to an agent session, and reports the outcome back
// to the control center.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lpappas98/claw-control-center/internal/logging"
	"github.com/lpappas98/claw-control-center/internal/model"
	"github.com/lpappas98/claw-control-center/internal/retry"
	"github.com/lpappas98/claw-control-center/internal/session"
)

// Outcome classifies how a supervised session ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimeout   Outcome = "timeout"
	// OutcomeAssumeCompleted is used when the runner lost track of
	// the session. The work may well have finished; completing the
	// task is the recoverable guess, because a reviewer will catch a
	// task that was not actually done, while a silently re-queued
	// finished task duplicates work.
	OutcomeAssumeCompleted Outcome = "assume_completed"
	// OutcomeAborted means the worker shut down mid-session. The task
	// is not reported anywhere; its claim stays with this agent until
	// a release sweep recovers it.
	OutcomeAborted Outcome = "aborted"
)

// Config holds a supervisor slot's settings.
type Config struct {
	Slot            string
	AgentID         string
	Roles           []string
	WorkDir         string
	PollInterval    time.Duration // queue poll when idle
	MonitorInterval time.Duration // session check while working
	SessionTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = 15 * time.Second
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = session.DefaultTimeout
	}
	if c.SessionTimeout > session.MaxTimeout {
		c.SessionTimeout = session.MaxTimeout
	}
	return c
}

// RunResult is handed to the optional observer after each task.
type RunResult struct {
	TaskID    string
	SessionID string
	Outcome   Outcome
	Duration  time.Duration
	Error     string
}

// Supervisor owns one worker slot.
type Supervisor struct {
	cfg    Config
	api    TaskAPI
	runner session.Runner
	rp     retry.Policy
	log    *logging.Logger

	// observer, when set, receives every finished run. The worker
	// command uses it to archive history.
	observer func(RunResult)
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithRetryPolicy overrides the reporting retry policy.
func WithRetryPolicy(p retry.Policy) SupervisorOption {
	return func(s *Supervisor) { s.rp = p }
}

// WithObserver registers a callback for finished runs.
func WithObserver(fn func(RunResult)) SupervisorOption {
	return func(s *Supervisor) { s.observer = fn }
}

// NewSupervisor creates a supervisor for one slot.
func NewSupervisor(cfg Config, api TaskAPI, runner session.Runner, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		cfg:    cfg.withDefaults(),
		api:    api,
		runner: runner,
		rp:     retry.DefaultPolicy(),
		log:    logging.Component("worker").WithComponent(cfg.Slot),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run polls for work until ctx is canceled. On shutdown it writes a
// stopped heartbeat and abandons any in-flight session; the claim
// stays with this agent until a release sweep recovers it.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.api.RegisterAgent(ctx, model.Agent{
		ID:     s.cfg.AgentID,
		Name:   s.cfg.AgentID,
		Roles:  s.cfg.Roles,
		Status: model.AgentOnline,
	}); err != nil {
		return fmt.Errorf("registering agent: %w", err)
	}
	s.log.InfoCtx("worker started", map[string]any{"agent": s.cfg.AgentID})

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		s.beat(ctx, model.WorkerIdle, "", "")

		task, ok := s.nextTask(ctx)
		if ok {
			s.runTask(ctx, task)
		}

		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case <-ticker.C:
		}
	}
}

// nextTask claims the first claimable queued task. Claim conflicts
// are expected under contention and just mean another worker was
// faster.
func (s *Supervisor) nextTask(ctx context.Context) (*model.Task, bool) {
	tasks, err := s.api.QueuedTasks(ctx)
	if err != nil {
		s.log.Err(err).Msg("listing queued tasks")
		return nil, false
	}

	for _, t := range tasks {
		if t.AssignedTo != "" && t.AssignedTo != s.cfg.AgentID {
			continue
		}
		claimed, err := s.api.Claim(ctx, t.ID, s.cfg.AgentID)
		if err != nil {
			if errors.Is(err, ErrConflict) {
				continue
			}
			s.log.Err(err).Str("task", t.ID).Msg("claiming task")
			return nil, false
		}
		return claimed, true
	}
	return nil, false
}

// runTask drives one task through a session from start to reported
// outcome.
func (s *Supervisor) runTask(ctx context.Context, task *model.Task) {
	start := time.Now()
	id, err := s.runner.Start(ctx, session.Spec{
		TaskID:  task.ID,
		Prompt:  session.BuildPrompt(task),
		WorkDir: s.cfg.WorkDir,
		Timeout: s.cfg.SessionTimeout,
	})
	if err != nil {
		s.log.Err(err).Str("task", task.ID).Msg("starting session")
		s.report(ctx, task, RunResult{
			TaskID:  task.ID,
			Outcome: OutcomeFailed,
			Error:   fmt.Sprintf("starting session: %v", err),
		})
		return
	}
	s.log.InfoCtx("session running", map[string]any{"task": task.ID, "session": id})

	res := s.monitor(ctx, task, id)
	res.Duration = time.Since(start)
	s.report(ctx, task, res)
}

// monitor polls the session until it leaves the running state,
// refreshing the slot heartbeat on every tick.
func (s *Supervisor) monitor(ctx context.Context, task *model.Task, sessionID string) RunResult {
	deadline := time.Now().Add(s.cfg.SessionTimeout)
	ticker := time.NewTicker(s.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		s.beat(ctx, model.WorkerWorking, task.ID, sessionID)

		st, err := s.runner.Status(ctx, sessionID)
		if err != nil {
			s.log.Err(err).Str("session", sessionID).Msg("checking session")
		} else {
			switch st.State {
			case session.StateSucceeded:
				return RunResult{TaskID: task.ID, SessionID: sessionID, Outcome: OutcomeCompleted}
			case session.StateFailed:
				return RunResult{TaskID: task.ID, SessionID: sessionID, Outcome: OutcomeFailed, Error: st.Error}
			case session.StateNotFound:
				// The runner forgot the session, likely a restart.
				s.log.WarnCtx("session lost, assuming completed", map[string]any{
					"task": task.ID, "session": sessionID,
				})
				return RunResult{TaskID: task.ID, SessionID: sessionID, Outcome: OutcomeAssumeCompleted}
			}
		}

		if time.Now().After(deadline) {
			_ = s.runner.Kill(ctx, sessionID)
			return RunResult{
				TaskID:    task.ID,
				SessionID: sessionID,
				Outcome:   OutcomeTimeout,
				Error:     fmt.Sprintf("session timed out after %s", s.cfg.SessionTimeout),
			}
		}

		select {
		case <-ctx.Done():
			return RunResult{TaskID: task.ID, SessionID: sessionID, Outcome: OutcomeAborted}
		case <-ticker.C:
		}
	}
}

// report pushes the outcome to the control center. Reporting retries
// transient transport failures; a 4xx answer means the server heard
// us and disagreed, so it is final.
func (s *Supervisor) report(ctx context.Context, task *model.Task, res RunResult) {
	if res.Outcome == OutcomeAborted {
		s.log.WarnCtx("task abandoned, claim left for a release sweep", map[string]any{"task": task.ID})
		if s.observer != nil {
			s.observer(res)
		}
		return
	}

	var err error
	switch res.Outcome {
	case OutcomeCompleted, OutcomeAssumeCompleted:
		err = s.rp.Do(ctx, func() error {
			e := s.api.Complete(ctx, task.ID, s.cfg.AgentID)
			if e != nil && !IsTransient(e) {
				return retry.Permanent(e)
			}
			return e
		})
	case OutcomeFailed, OutcomeTimeout:
		reason := res.Error
		if reason == "" {
			reason = "session failed"
		}
		err = s.rp.Do(ctx, func() error {
			e := s.api.MarkBlocked(ctx, task.ID, s.cfg.AgentID, reason)
			if e != nil && !IsTransient(e) {
				return retry.Permanent(e)
			}
			return e
		})
	}
	if err != nil {
		s.log.Err(err).Str("task", task.ID).Str("outcome", string(res.Outcome)).Msg("reporting outcome")
	} else {
		s.log.InfoCtx("task finished", map[string]any{
			"task": task.ID, "outcome": string(res.Outcome), "duration": res.Duration.String(),
		})
	}

	if s.observer != nil {
		s.observer(res)
	}
}

// beat writes the slot heartbeat; a missed beat is logged and
// tolerated, staleness detection on the server covers the gap.
func (s *Supervisor) beat(ctx context.Context, status model.WorkerStatus, taskID, sessionID string) {
	hb := model.WorkerHeartbeat{
		Slot:      s.cfg.Slot,
		Status:    status,
		Task:      taskID,
		SessionID: sessionID,
	}
	if err := s.api.Heartbeat(ctx, hb); err != nil {
		s.log.Err(err).Msg("writing heartbeat")
	}
}

// shutdown writes the final stopped heartbeat with a fresh context,
// the run context is already canceled.
func (s *Supervisor) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.beat(ctx, model.WorkerStopped, "", "")
	s.log.Info("worker stopped")
}
