package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lpappas98/claw-control-center/internal/model"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List registered agents",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := taskClient(cmd)
		if err != nil {
			return err
		}
		agents, err := client.Agents(cmd.Context())
		if err != nil {
			return err
		}
		if len(agents) == 0 {
			fmt.Println("No agents registered.")
			return nil
		}
		printAgents(agents)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(agentsCmd)
}

func printAgents(agents []*model.Agent) {
	styles := newBoardStyles()
	fmt.Println(styles.Title.Render(fmt.Sprintf("%d agents", len(agents))))
	for _, a := range agents {
		status := styles.Muted
		switch a.Status {
		case model.AgentOnline:
			status = styles.Success
		case model.AgentBusy:
			status = styles.Warn
		}
		seen := "never"
		if !a.LastHeartbeatAt.IsZero() {
			seen = time.Since(a.LastHeartbeatAt).Round(time.Second).String() + " ago"
		}
		fmt.Printf("  %s  %s  %s  %s  %s\n",
			styles.Value.Render(fmt.Sprintf("%-16s", a.ID)),
			status.Render(fmt.Sprintf("%-8s", a.Status)),
			styles.Label.Render(fmt.Sprintf("load %d", a.Workload)),
			styles.Muted.Render(strings.Join(a.Roles, ",")),
			styles.Muted.Render(seen))
	}
}
