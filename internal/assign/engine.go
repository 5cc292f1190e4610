// Package assign implements role-based task-to-agent assignment.
// Scoring is a pure function over task text and the current agent
// list; callers persist the result.
package assign

import (
	"regexp"
	"sort"
	"strings"

	"github.com/lpappas98/claw-control-center/internal/model"
)

// roleRule maps a role to the keywords that identify its work.
// Primary keywords classify the task and score +3; each secondary
// match adds +2.
type roleRule struct {
	role      string
	primary   []string
	secondary []string
}

var roleRules = []roleRule{
	{
		role:      "designer",
		primary:   []string{"design", "ui", "ux", "mockup"},
		secondary: []string{"wireframe", "figma", "layout", "css", "style"},
	},
	{
		role:      "backend-dev",
		primary:   []string{"api", "endpoint", "database", "server", "auth"},
		secondary: []string{"migration", "sql", "cache", "queue", "webhook"},
	},
	{
		role:      "frontend-dev",
		primary:   []string{"frontend", "react", "component", "page"},
		secondary: []string{"form", "button", "render", "routing"},
	},
	{
		role:      "qa",
		primary:   []string{"test", "qa", "e2e"},
		secondary: []string{"regression", "coverage", "flaky", "assertion"},
	},
	{
		role:      "devops",
		primary:   []string{"deploy", "docker", "ci", "pipeline", "infra"},
		secondary: []string{"kubernetes", "terraform", "monitoring", "alerting"},
	},
	{
		role:      "docs",
		primary:   []string{"document", "documentation", "readme", "changelog"},
		secondary: []string{"tutorial", "guide", "glossary"},
	},
}

// defaultRoles applies when no keyword pattern matches the task text.
var defaultRoles = []string{"backend-dev", "frontend-dev"}

// keyword matching is word-bounded so "ui" never matches "build".
var keywordPatterns = make(map[string]*regexp.Regexp)

func init() {
	for _, rule := range roleRules {
		for _, kw := range append(append([]string{}, rule.primary...), rule.secondary...) {
			if _, ok := keywordPatterns[kw]; !ok {
				keywordPatterns[kw] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(kw) + `\b`)
			}
		}
	}
}

func matches(text, keyword string) bool {
	return keywordPatterns[keyword].MatchString(text)
}

// Engine scores and selects agents for tasks. It has no state; the
// zero value is usable.
type Engine struct{}

// New returns an assignment engine.
func New() *Engine {
	return &Engine{}
}

// ClassifyRoles returns the roles the task text calls for, or the
// default role set when nothing matches.
func (e *Engine) ClassifyRoles(text string) []string {
	var roles []string
	for _, rule := range roleRules {
		for _, kw := range rule.primary {
			if matches(text, kw) {
				roles = append(roles, rule.role)
				break
			}
		}
	}
	if len(roles) == 0 {
		return append([]string(nil), defaultRoles...)
	}
	return roles
}

// scoreAgent computes an agent's fit for the task text: +3 per agent
// role whose primary keywords appear, +2 per secondary match of an
// agent role.
func scoreAgent(a *model.Agent, text string) int {
	score := 0
	for _, rule := range roleRules {
		if !hasRole(a, rule.role) {
			continue
		}
		for _, kw := range rule.primary {
			if matches(text, kw) {
				score += 3
				break
			}
		}
		for _, kw := range rule.secondary {
			if matches(text, kw) {
				score += 2
			}
		}
	}
	return score
}

func hasRole(a *model.Agent, role string) bool {
	for _, r := range a.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// SelectBestAgent returns the id of the best online agent for the
// task, or false if no agent is online. Ties break by lowest workload,
// then agent id, so repeated calls over identical state return the
// same agent.
func (e *Engine) SelectBestAgent(task *model.Task, agents []*model.Agent) (string, bool) {
	text := task.Text()

	var best *model.Agent
	bestScore := -1
	for _, a := range agents {
		if a.Status != model.AgentOnline {
			continue
		}
		score := scoreAgent(a, text)
		if best == nil || score > bestScore ||
			(score == bestScore && (a.Workload < best.Workload ||
				(a.Workload == best.Workload && a.ID < best.ID))) {
			best = a
			bestScore = score
		}
	}
	if best == nil {
		return "", false
	}
	return best.ID, true
}

// Suggestion is one dry-run assignment proposal.
type Suggestion struct {
	TaskID  string   `json:"task_id"`
	AgentID string   `json:"agent_id"`
	Score   int      `json:"score"`
	Roles   []string `json:"roles"`
}

// SuggestAssignments applies the same scoring to a batch of tasks
// without mutating anything. Tasks with no online agent are skipped.
func (e *Engine) SuggestAssignments(tasks []*model.Task, agents []*model.Agent) []Suggestion {
	out := make([]Suggestion, 0, len(tasks))
	for _, t := range tasks {
		id, ok := e.SelectBestAgent(t, agents)
		if !ok {
			continue
		}
		var agent *model.Agent
		for _, a := range agents {
			if a.ID == id {
				agent = a
				break
			}
		}
		out = append(out, Suggestion{
			TaskID:  t.ID,
			AgentID: id,
			Score:   scoreAgent(agent, t.Text()),
			Roles:   e.ClassifyRoles(t.Text()),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out
}
