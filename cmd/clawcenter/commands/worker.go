package commands

import (
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lpappas98/claw-control-center/internal/config"
	"github.com/lpappas98/claw-control-center/internal/history"
	"github.com/lpappas98/claw-control-center/internal/logging"
	"github.com/lpappas98/claw-control-center/internal/session"
	"github.com/lpappas98/claw-control-center/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run worker slots against the control center",
	Long: `Start one or more worker slots.

Each slot registers an agent, claims queued tasks, runs an agent
session per task, and reports completion or blocking back to the
server. Finished runs are archived to the local history database.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if slots, _ := cmd.Flags().GetInt("slots"); slots > 0 {
			cfg.Worker.Slots = slots
		}
		if cfg.Worker.Slots < 1 {
			cfg.Worker.Slots = 1
		}
		if err := initLogging(cfg); err != nil {
			return err
		}
		log := logging.Component("worker")

		runner := newRunner(cfg)
		api := worker.NewClient(serverURL(cmd, cfg))

		archive, err := history.Open(cfg.History.Path)
		if err != nil {
			return err
		}
		defer archive.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var wg sync.WaitGroup
		for i := 1; i <= cfg.Worker.Slots; i++ {
			slot := fmt.Sprintf("%s-%d", cfg.Worker.AgentPrefix, i)
			sup := worker.NewSupervisor(worker.Config{
				Slot:            slot,
				AgentID:         slot,
				Roles:           cfg.Worker.Roles,
				WorkDir:         cfg.Worker.WorkDir,
				PollInterval:    cfg.Worker.PollInterval,
				MonitorInterval: cfg.Worker.MonitorInterval,
				SessionTimeout:  cfg.Session.Timeout,
			}, api, runner, worker.WithObserver(archiveRun(archive, slot, log)))

			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := sup.Run(ctx); err != nil {
					log.Err(err).Str("slot", slot).Msg("supervisor exited")
				}
			}()
		}
		wg.Wait()
		return nil
	},
}

func init() {
	workerCmd.Flags().Int("slots", 0, "Number of worker slots (overrides config)")
	rootCmd.AddCommand(workerCmd)
}

// newRunner builds the session runner the config asks for.
func newRunner(cfg *config.Config) session.Runner {
	if cfg.Session.Mode == "mock" {
		return session.NewMockRunner()
	}
	return session.NewExecRunner(
		session.WithBinary(cfg.Session.Binary, cfg.Session.Args...),
		session.WithTimeout(cfg.Session.Timeout),
	)
}

// archiveRun records every finished run in the history database.
func archiveRun(archive *history.Archive, slot string, log *logging.Logger) func(worker.RunResult) {
	return func(res worker.RunResult) {
		id := res.SessionID
		if id == "" {
			// Sessions that failed to start never got an id.
			id = uuid.NewString()
		}
		now := time.Now()
		err := archive.RecordRun(history.Run{
			ID:        id,
			Slot:      slot,
			AgentID:   slot,
			TaskID:    res.TaskID,
			Outcome:   string(res.Outcome),
			Error:     res.Error,
			StartedAt: now.Add(-res.Duration),
			EndedAt:   now,
		})
		if err != nil {
			log.Err(err).Str("task", res.TaskID).Msg("archiving run")
		}
	}
}
