package commands

import (
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/lpappas98/claw-control-center/internal/config"
	"github.com/lpappas98/claw-control-center/internal/logging"
	"github.com/lpappas98/claw-control-center/internal/model"
	"github.com/lpappas98/claw-control-center/internal/notify"
	"github.com/lpappas98/claw-control-center/internal/router"
	"github.com/lpappas98/claw-control-center/internal/server"
	"github.com/lpappas98/claw-control-center/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control center server",
	Long: `Start the task board server.

Serves the REST API, owns the JSON stores, and runs the periodic
maintenance sweeps: auto-unblocking tasks whose dependencies are done,
marking silent agents offline, and pruning old records.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := initLogging(cfg); err != nil {
			return err
		}
		log := logging.Component("serve")

		dataDir := cfg.Server.DataDir
		tasks, err := store.OpenTasks(filepath.Join(dataDir, "tasks.json"), log)
		if err != nil {
			return err
		}
		defer tasks.Close()
		agents, err := store.OpenAgents(filepath.Join(dataDir, "agents.json"), log)
		if err != nil {
			return err
		}
		defer agents.Close()
		notes, err := store.OpenNotifications(filepath.Join(dataDir, "notifications.json"), log)
		if err != nil {
			return err
		}
		defer notes.Close()
		workers, err := store.OpenWorkers(filepath.Join(dataDir, "workers.json"), log)
		if err != nil {
			return err
		}
		defer workers.Close()
		projects, err := store.OpenProjects(filepath.Join(dataDir, "projects.json"), log)
		if err != nil {
			return err
		}
		defer projects.Close()
		seedProjects(projects, cfg.Projects, log)

		rt := router.New(tasks, agents, notify.NewStoreSink(notes))

		sched := cron.New()
		if cfg.Sweeps.Cron != "" {
			_, err = sched.AddFunc(cfg.Sweeps.Cron, func() {
				rt.AutoUnblock()
				if n := agents.MarkStale(cfg.Sweeps.HeartbeatWindow); n > 0 {
					log.InfoCtx("marked stale agents offline", map[string]any{"count": n})
				}
				if n := agents.Prune(cfg.Sweeps.AgentRetention); n > 0 {
					log.InfoCtx("pruned stale agents", map[string]any{"count": n})
				}
				if n := notes.Prune(cfg.Sweeps.NotificationRetention); n > 0 {
					log.InfoCtx("pruned old notifications", map[string]any{"count": n})
				}
			})
			if err != nil {
				return err
			}
			sched.Start()
			defer sched.Stop()
		}

		srv := server.New(cfg.Server.Addr, &server.Handlers{
			Tasks:         tasks,
			Agents:        agents,
			Notifications: notes,
			Workers:       workers,
			Router:        rt,
			Version:       Version,
			StartAt:       time.Now(),
			Log:           logging.Component("server"),
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return srv.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// seedProjects upserts configured projects into the store so the
// board always knows them. Existing entries are left alone.
func seedProjects(projects *store.ProjectStore, entries []config.ProjectEntry, log *logging.Logger) {
	for _, e := range entries {
		exists := false
		for _, p := range projects.List() {
			if p.Name == e.Name {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		if _, err := projects.Add(model.Project{Name: e.Name, RepoURL: e.RepoURL}); err != nil {
			log.Err(err).Str("project", e.Name).Msg("seeding project")
		}
	}
}
