package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/lpappas98/claw-control-center/internal/logging"
	"github.com/lpappas98/claw-control-center/internal/model"
)

// Registry staleness defaults. An agent that misses the heartbeat
// window goes offline; one past the retention window is pruned.
const (
	DefaultHeartbeatWindow = 5 * time.Minute
	DefaultAgentRetention  = 24 * time.Hour
)

type agentDoc struct {
	Version int                     `json:"version"`
	Agents  map[string]*model.Agent `json:"agents"`
}

// AgentRegistry is the durable record of agents, their roles, and
// online status. Workload is never read from this store; compute it
// from the task store (see TaskStore.ActiveCount).
type AgentRegistry struct {
	mu   sync.RWMutex
	path string
	flk  *flock.Flock
	log  *logging.Logger
	doc  *agentDoc
}

// OpenAgents opens the agent registry at path, loading existing state.
func OpenAgents(path string, log *logging.Logger) (*AgentRegistry, error) {
	flk, err := lockFile(path)
	if err != nil {
		return nil, err
	}

	r := &AgentRegistry{
		path: path,
		flk:  flk,
		log:  log,
		doc:  &agentDoc{Version: 1, Agents: make(map[string]*model.Agent)},
	}

	doc := &agentDoc{Version: 1}
	if loadOrEmpty(path, doc, log) && doc.Agents != nil {
		r.doc = doc
	}
	return r, nil
}

// Close releases the registry's file lock.
func (r *AgentRegistry) Close() error {
	return r.flk.Unlock()
}

func (r *AgentRegistry) save() error {
	return writeDoc(r.path, r.doc)
}

// Heartbeat registers or refreshes an agent: upserts identity fields,
// marks it online, and stamps the heartbeat time.
func (r *AgentRegistry) Heartbeat(a model.Agent) (*model.Agent, error) {
	if a.ID == "" {
		return nil, fmt.Errorf("agent id required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.doc.Agents[a.ID]
	if !ok {
		cur = &model.Agent{ID: a.ID}
		r.doc.Agents[a.ID] = cur
	}
	if a.Name != "" {
		cur.Name = a.Name
	}
	if a.Roles != nil {
		cur.Roles = append([]string(nil), a.Roles...)
	}
	if a.InstanceID != "" {
		cur.InstanceID = a.InstanceID
	}
	cur.Status = model.AgentOnline
	cur.LastHeartbeatAt = time.Now()

	if err := model.Validate(cur); err != nil {
		return nil, err
	}
	if err := r.save(); err != nil {
		return nil, err
	}
	cp := cloneAgent(cur)
	return cp, nil
}

// SetStatus overrides an agent's status (online, offline, busy).
func (r *AgentRegistry) SetStatus(id string, status model.AgentStatus) (*model.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.doc.Agents[id]
	if !ok {
		return nil, fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	switch status {
	case model.AgentOnline, model.AgentOffline, model.AgentBusy:
	default:
		return nil, fmt.Errorf("invalid agent status %q", status)
	}
	a.Status = status
	if err := r.save(); err != nil {
		return nil, err
	}
	return cloneAgent(a), nil
}

// Get returns a copy of the agent with the given id.
func (r *AgentRegistry) Get(id string) (*model.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.doc.Agents[id]
	if !ok {
		return nil, fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	return cloneAgent(a), nil
}

// List returns copies of all agents ordered by id.
func (r *AgentRegistry) List() []*model.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Agent, 0, len(r.doc.Agents))
	for _, a := range r.doc.Agents {
		out = append(out, cloneAgent(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MarkStale flips agents whose heartbeat is older than window to
// offline. Returns the number of agents changed.
func (r *AgentRegistry) MarkStale(window time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	changed := 0
	for _, a := range r.doc.Agents {
		if a.Status != model.AgentOffline && a.Stale(window, now) {
			a.Status = model.AgentOffline
			changed++
		}
	}
	if changed > 0 {
		if err := r.save(); err != nil {
			r.log.Err(err).Msg("persisting stale agents")
		}
	}
	return changed
}

// Prune removes agents whose heartbeat is older than retention.
func (r *AgentRegistry) Prune(retention time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, a := range r.doc.Agents {
		if a.Stale(retention, now) {
			delete(r.doc.Agents, id)
			removed++
		}
	}
	if removed > 0 {
		if err := r.save(); err != nil {
			r.log.Err(err).Msg("persisting pruned agents")
		}
	}
	return removed
}

func cloneAgent(a *model.Agent) *model.Agent {
	cp := *a
	if a.Roles != nil {
		cp.Roles = append([]string(nil), a.Roles...)
	}
	return &cp
}
