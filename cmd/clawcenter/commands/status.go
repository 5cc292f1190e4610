package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lpappas98/claw-control-center/internal/history"
	"github.com/lpappas98/claw-control-center/internal/model"
	"github.com/lpappas98/claw-control-center/internal/worker"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show board and worker status",
	Long: `Display the board summary: tasks per lane, agents online, and the
recent worker run history from the local archive.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		last, _ := cmd.Flags().GetInt("last")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		client := worker.NewClient(serverURL(cmd, cfg))

		st, err := client.Status(cmd.Context())
		if err != nil {
			return fmt.Errorf("fetching status: %w", err)
		}
		printBoardStatus(st)

		workers, err := client.Workers(cmd.Context())
		if err == nil && len(workers) > 0 {
			fmt.Println()
			printWorkers(workers)
		}

		archive, err := history.Open(cfg.History.Path)
		if err != nil {
			return nil // no local archive on this machine
		}
		defer archive.Close()

		runs, err := archive.RecentRuns(last)
		if err != nil || len(runs) == 0 {
			return nil
		}
		fmt.Println()
		printRuns(runs)
		return nil
	},
}

func init() {
	statusCmd.Flags().IntP("last", "n", 5, "Show last N archived runs")
	rootCmd.AddCommand(statusCmd)
}

func printBoardStatus(st *worker.BoardStatus) {
	styles := newBoardStyles()
	fmt.Println(styles.Title.Render("Board"))

	lanes := []string{"queued", "in_progress", "review", "blocked", "done"}
	for _, lane := range lanes {
		style := styles.Value
		switch lane {
		case "blocked":
			if st.Tasks[lane] > 0 {
				style = styles.Warn
			}
		case "done":
			style = styles.Success
		}
		fmt.Printf("  %s %s\n",
			styles.Label.Render(fmt.Sprintf("%-12s", lane)),
			style.Render(fmt.Sprintf("%d", st.Tasks[lane])))
	}

	fmt.Printf("  %s %s\n",
		styles.Label.Render(fmt.Sprintf("%-12s", "agents")),
		styles.Value.Render(fmt.Sprintf("%d online / %d total", st.AgentsOnline, st.AgentsTotal)))
	fmt.Printf("  %s %s\n",
		styles.Label.Render(fmt.Sprintf("%-12s", "uptime")),
		styles.Muted.Render((time.Duration(st.UptimeSeconds)*time.Second).String()))
}

func printWorkers(ws []*model.WorkerHeartbeat) {
	styles := newBoardStyles()
	fmt.Println(styles.Title.Render("Workers"))
	for _, w := range ws {
		status := styles.Value.Render(string(w.Status))
		switch w.Status {
		case "working":
			status = styles.Success.Render(string(w.Status))
		case "stopped":
			status = styles.Muted.Render(string(w.Status))
		}
		line := fmt.Sprintf("  %s %s", styles.Label.Render(fmt.Sprintf("%-12s", w.Slot)), status)
		if w.Task != "" {
			line += styles.Muted.Render("  task=" + w.Task)
		}
		fmt.Println(line)
	}
}

func printRuns(runs []history.Run) {
	styles := newBoardStyles()
	fmt.Println(styles.Title.Render(fmt.Sprintf("Last %d runs", len(runs))))
	for _, r := range runs {
		outcome := styles.Value
		switch r.Outcome {
		case "completed", "assume_completed":
			outcome = styles.Success
		case "failed", "timeout":
			outcome = styles.Error
		}
		fmt.Printf("  %s  %s  %s %s\n",
			styles.Muted.Render(r.StartedAt.Local().Format("Jan 02 15:04")),
			outcome.Render(fmt.Sprintf("%-16s", r.Outcome)),
			styles.Value.Render(truncate(r.TaskTitle, 40)),
			styles.Muted.Render(r.Duration().Round(time.Second).String()))
	}
}
