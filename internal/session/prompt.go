package session

import (
	"fmt"
	"strings"

	"github.com/lpappas98/claw-control-center/internal/model"
)

// BuildPrompt renders the task into the prompt handed to the agent
// CLI. The structure is fixed so agents see a consistent brief.
func BuildPrompt(t *model.Task) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Task: %s\n\n", t.Title)
	if t.Description != "" {
		sb.WriteString("## Problem\n\n")
		sb.WriteString(t.Description)
		sb.WriteString("\n\n")
	}

	sb.WriteString("## Scope\n\n")
	fmt.Fprintf(&sb, "- Priority: %s\n", t.Priority)
	if len(t.Tags) > 0 {
		fmt.Fprintf(&sb, "- Tags: %s\n", strings.Join(t.Tags, ", "))
	}
	if t.EstimatedHours > 0 {
		fmt.Fprintf(&sb, "- Estimated effort: %.1f hours\n", t.EstimatedHours)
	}
	sb.WriteString("\n")

	sb.WriteString("## Acceptance criteria\n\n")
	sb.WriteString("- Implement the change described above.\n")
	sb.WriteString("- All existing tests pass; new behavior is covered by tests.\n")
	sb.WriteString("- Commit your work with a descriptive message.\n")

	return sb.String()
}
