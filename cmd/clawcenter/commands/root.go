// Package commands implements the clawcenter CLI commands using cobra.
package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/lpappas98/claw-control-center/internal/config"
	"github.com/lpappas98/claw-control-center/internal/logging"
)

var (
	// Version is set at build time
	Version = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:   "clawcenter",
	Short: "Local control center for AI coding-agent workers",
	Long: `Clawcenter coordinates a fleet of local AI coding agents against a
shared task board: tasks move through lanes, workers claim them,
spawn agent sessions, and report the results back.

Run 'clawcenter serve' for the board server and 'clawcenter worker'
for one or more worker slots.`,
	Version: Version,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file path (default ~/.config/clawcenter/config.yaml)")
	rootCmd.PersistentFlags().String("server", "", "Control center URL (overrides config)")
}

// loadConfig reads the config selected by the --config flag.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

// initLogging sets up the global logger from config.
func initLogging(cfg *config.Config) error {
	return logging.Init(logging.Config{
		Level:         cfg.Logging.Level,
		Path:          cfg.Logging.Path,
		Format:        cfg.Logging.Format,
		RetentionDays: cfg.Logging.RetentionDays,
	})
}

// serverURL resolves the API base URL: flag first, then config.
func serverURL(cmd *cobra.Command, cfg *config.Config) string {
	if url, _ := cmd.Flags().GetString("server"); url != "" {
		return url
	}
	return cfg.Worker.ServerURL
}
