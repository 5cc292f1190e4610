package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lpappas98/claw-control-center/internal/model"
	"github.com/lpappas98/claw-control-center/internal/worker"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks on the board",
}

var taskAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a task to the queue",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := taskClient(cmd)
		if err != nil {
			return err
		}

		desc, _ := cmd.Flags().GetString("description")
		priority, _ := cmd.Flags().GetString("priority")
		tags, _ := cmd.Flags().GetStringSlice("tags")
		deps, _ := cmd.Flags().GetStringSlice("depends-on")
		hours, _ := cmd.Flags().GetFloat64("estimate")

		t, err := client.CreateTask(cmd.Context(), worker.CreateTaskRequest{
			Title:          strings.Join(args, " "),
			Description:    desc,
			Priority:       priority,
			Tags:           tags,
			DependsOn:      deps,
			EstimatedHours: hours,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Created task %s\n", t.ID)
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := taskClient(cmd)
		if err != nil {
			return err
		}
		lane, _ := cmd.Flags().GetString("lane")

		tasks, err := client.Tasks(cmd.Context(), lane)
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			fmt.Println("No tasks.")
			return nil
		}
		printTaskTable(tasks)
		return nil
	},
}

var taskShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one task in full",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := taskClient(cmd)
		if err != nil {
			return err
		}
		t, err := client.Task(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printTaskDetail(t)
		return nil
	},
}

var taskClaimCmd = &cobra.Command{
	Use:   "claim <id>",
	Short: "Claim a queued task for an agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := taskClient(cmd)
		if err != nil {
			return err
		}
		agent, _ := cmd.Flags().GetString("agent")
		if agent == "" {
			return fmt.Errorf("--agent is required")
		}
		t, err := client.Claim(cmd.Context(), args[0], agent)
		if err != nil {
			return err
		}
		fmt.Printf("Task %s claimed by %s\n", t.ID, agent)
		return nil
	},
}

var taskCompleteCmd = &cobra.Command{
	Use:   "complete <id>",
	Short: "Move a task to review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := taskClient(cmd)
		if err != nil {
			return err
		}
		agent, _ := cmd.Flags().GetString("agent")
		if err := client.Complete(cmd.Context(), args[0], agent); err != nil {
			return err
		}
		fmt.Printf("Task %s moved to review\n", args[0])
		return nil
	},
}

var taskBlockCmd = &cobra.Command{
	Use:   "block <id> <reason>",
	Short: "Mark a task blocked",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := taskClient(cmd)
		if err != nil {
			return err
		}
		agent, _ := cmd.Flags().GetString("agent")
		reason := strings.Join(args[1:], " ")
		if err := client.MarkBlocked(cmd.Context(), args[0], agent, reason); err != nil {
			return err
		}
		fmt.Printf("Task %s blocked: %s\n", args[0], reason)
		return nil
	},
}

var taskReleaseCmd = &cobra.Command{
	Use:   "release <id>",
	Short: "Return a task to the queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := taskClient(cmd)
		if err != nil {
			return err
		}
		agent, _ := cmd.Flags().GetString("agent")
		if err := client.Release(cmd.Context(), args[0], agent); err != nil {
			return err
		}
		fmt.Printf("Task %s released to queue\n", args[0])
		return nil
	},
}

var taskLogTimeCmd = &cobra.Command{
	Use:   "log-time <id>",
	Short: "Log hours worked on a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := taskClient(cmd)
		if err != nil {
			return err
		}
		agent, _ := cmd.Flags().GetString("agent")
		if agent == "" {
			return fmt.Errorf("--agent is required")
		}
		hours, _ := cmd.Flags().GetFloat64("hours")
		if hours <= 0 {
			return fmt.Errorf("--hours must be positive")
		}
		note, _ := cmd.Flags().GetString("note")

		t, err := client.LogTime(cmd.Context(), args[0], agent, hours, note)
		if err != nil {
			return err
		}
		fmt.Printf("Logged %.1fh on task %s (%.1fh total)\n", hours, t.ID, t.ActualHours)
		return nil
	},
}

var taskAssignCmd = &cobra.Command{
	Use:   "assign <id>",
	Short: "Auto-assign a task to the best available agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := taskClient(cmd)
		if err != nil {
			return err
		}
		t, err := client.AutoAssign(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Task %s assigned to %s\n", t.ID, t.ClaimedBy)
		return nil
	},
}

func init() {
	taskAddCmd.Flags().StringP("description", "d", "", "Task description")
	taskAddCmd.Flags().StringP("priority", "p", "", "Priority (P0-P3)")
	taskAddCmd.Flags().StringSlice("tags", nil, "Tags")
	taskAddCmd.Flags().StringSlice("depends-on", nil, "Task ids this task depends on")
	taskAddCmd.Flags().Float64("estimate", 0, "Estimated hours")

	taskListCmd.Flags().StringP("lane", "l", "", "Filter by lane")

	for _, c := range []*cobra.Command{taskClaimCmd, taskCompleteCmd, taskBlockCmd, taskReleaseCmd, taskLogTimeCmd} {
		c.Flags().StringP("agent", "a", "", "Acting agent id")
	}
	taskLogTimeCmd.Flags().Float64("hours", 0, "Hours worked")
	taskLogTimeCmd.Flags().String("note", "", "Entry note")

	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskShowCmd, taskClaimCmd,
		taskCompleteCmd, taskBlockCmd, taskReleaseCmd, taskLogTimeCmd, taskAssignCmd)
	rootCmd.AddCommand(taskCmd)
}

func taskClient(cmd *cobra.Command) (*worker.Client, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return worker.NewClient(serverURL(cmd, cfg)), nil
}

func printTaskTable(tasks []*model.Task) {
	styles := newBoardStyles()
	fmt.Printf("%s\n", styles.Title.Render(fmt.Sprintf("%d tasks", len(tasks))))
	for _, t := range tasks {
		lane := styles.Value
		switch t.Lane {
		case model.LaneBlocked:
			lane = styles.Warn
		case model.LaneDone:
			lane = styles.Success
		}
		owner := t.AssignedTo
		if owner == "" {
			owner = "-"
		}
		shortID := t.ID
		if len(shortID) > 8 {
			shortID = shortID[:8]
		}
		fmt.Printf("  %s  %s  %s  %s  %s\n",
			styles.Muted.Render(shortID),
			styles.Label.Render(string(t.Priority)),
			lane.Render(fmt.Sprintf("%-11s", t.Lane)),
			styles.Value.Render(truncate(t.Title, 48)),
			styles.Muted.Render(owner))
	}
}

func printTaskDetail(t *model.Task) {
	styles := newBoardStyles()
	fmt.Println(styles.Title.Render(t.Title))
	row := func(label, value string) {
		if value == "" {
			return
		}
		fmt.Printf("  %s %s\n", styles.Label.Render(fmt.Sprintf("%-12s", label)), styles.Value.Render(value))
	}
	row("id", t.ID)
	row("lane", string(t.Lane))
	row("priority", string(t.Priority))
	row("assigned", t.AssignedTo)
	row("tags", strings.Join(t.Tags, ", "))
	row("depends on", strings.Join(t.DependsOn, ", "))
	if t.EstimatedHours > 0 {
		row("estimate", fmt.Sprintf("%.1fh", t.EstimatedHours))
	}
	if t.ActualHours > 0 {
		row("actual", fmt.Sprintf("%.1fh", t.ActualHours))
	}
	row("blocked", t.BlockedReason)
	if t.Description != "" {
		fmt.Printf("\n%s\n", t.Description)
	}
	if t.Work != nil && len(t.Work.Commits) > 0 {
		fmt.Printf("\n%s\n", styles.Label.Render("commits"))
		for _, c := range t.Work.Commits {
			fmt.Printf("  %s %s\n", styles.Muted.Render(c.SHA), styles.Value.Render(c.Message))
		}
	}
}
