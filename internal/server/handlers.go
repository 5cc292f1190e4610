package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/lpappas98/claw-control-center/internal/logging"
	"github.com/lpappas98/claw-control-center/internal/model"
	"github.com/lpappas98/claw-control-center/internal/router"
	"github.com/lpappas98/claw-control-center/internal/store"
)

// Handlers bundles the REST API handler dependencies.
type Handlers struct {
	Tasks         *store.TaskStore
	Agents        *store.AgentRegistry
	Notifications *store.NotificationLog
	Workers       *store.WorkerBoard
	Router        *router.Router
	Version       string
	StartAt       time.Time
	Log           *logging.Logger
}

// RegisterRoutes registers all API routes on the given mux.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/tasks", h.listTasks)
	mux.HandleFunc("POST /api/tasks", h.createTask)
	mux.HandleFunc("GET /api/tasks/{id}", h.getTask)
	mux.HandleFunc("POST /api/tasks/{id}/claim", h.claimTask)
	mux.HandleFunc("POST /api/tasks/{id}/complete", h.completeTask)
	mux.HandleFunc("POST /api/tasks/{id}/blocked", h.blockTask)
	mux.HandleFunc("POST /api/tasks/{id}/release", h.releaseTask)
	mux.HandleFunc("PUT /api/tasks/{id}/work", h.recordWork)
	mux.HandleFunc("POST /api/tasks/{id}/time", h.logTime)
	mux.HandleFunc("POST /api/tasks/{id}/auto-assign", h.autoAssign)

	mux.HandleFunc("GET /api/agents", h.listAgents)
	mux.HandleFunc("POST /api/agents/register", h.registerAgent)
	mux.HandleFunc("PUT /api/agents/{id}/status", h.setAgentStatus)

	mux.HandleFunc("GET /api/notifications", h.listNotifications)
	mux.HandleFunc("POST /api/notifications/{id}/read", h.markNotificationRead)

	mux.HandleFunc("GET /api/workers", h.listWorkers)
	mux.HandleFunc("POST /api/workers/heartbeat", h.workerHeartbeat)

	mux.HandleFunc("GET /api/status", h.status)
	mux.HandleFunc("GET /api/version", h.version)
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeTaskErr maps task-level errors to HTTP statuses. Claim
// conflicts carry the current holder so callers can route around
// them.
func writeTaskErr(w http.ResponseWriter, err error) {
	var conflict *router.ConflictError
	switch {
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":         conflict.Error(),
			"current_lane":  string(conflict.CurrentLane),
			"current_agent": conflict.CurrentAgent,
		})
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "task not found")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// --- Task handlers ---

func (h *Handlers) listTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.TaskFilter{
		AssignedTo: q.Get("assigned_to"),
		Tag:        q.Get("tag"),
	}
	if s := q.Get("lane"); s != "" {
		lane, ok := model.NormalizeLane(s)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown lane: "+s)
			return
		}
		filter.Lane = lane
	}
	if p := q.Get("priority"); p != "" {
		filter.Priority = model.Priority(p)
	}

	tasks := h.Tasks.List(filter)
	if tasks == nil {
		tasks = []*model.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

type createTaskRequest struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Priority       string   `json:"priority"`
	Tags           []string `json:"tags"`
	DependsOn      []string `json:"depends_on"`
	EstimatedHours float64  `json:"estimated_hours"`
}

func (h *Handlers) createTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	t := model.NewTask(req.Title)
	t.Description = req.Description
	t.Tags = req.Tags
	t.EstimatedHours = req.EstimatedHours
	if req.Priority != "" {
		t.Priority = model.Priority(req.Priority)
	}

	created, err := h.Tasks.Create(t)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, dep := range req.DependsOn {
		if _, err := h.Tasks.AddDependency(created.ID, dep); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if len(req.DependsOn) > 0 {
		created, _ = h.Tasks.Get(created.ID)
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handlers) getTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.Tasks.Get(r.PathValue("id"))
	if err != nil {
		writeTaskErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type actorRequest struct {
	AgentID string `json:"agent_id"`
	Reason  string `json:"reason"`
}

func (h *Handlers) claimTask(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.AgentID == "" {
		writeError(w, http.StatusBadRequest, "agent_id is required")
		return
	}
	t, err := h.Router.Claim(r.PathValue("id"), req.AgentID)
	if err != nil {
		writeTaskErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handlers) completeTask(w http.ResponseWriter, r *http.Request) {
	req := decodeActor(r)
	t, err := h.Router.Complete(r.PathValue("id"), req.AgentID)
	if err != nil {
		writeTaskErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handlers) blockTask(w http.ResponseWriter, r *http.Request) {
	req := decodeActor(r)
	if req.Reason == "" {
		writeError(w, http.StatusBadRequest, "reason is required")
		return
	}
	t, err := h.Router.MarkBlocked(r.PathValue("id"), req.AgentID, req.Reason)
	if err != nil {
		writeTaskErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handlers) releaseTask(w http.ResponseWriter, r *http.Request) {
	req := decodeActor(r)
	t, err := h.Router.Release(r.PathValue("id"), req.AgentID)
	if err != nil {
		writeTaskErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type workRequest struct {
	AgentID string           `json:"agent_id"`
	Work    model.WorkRecord `json:"work"`
}

func (h *Handlers) recordWork(w http.ResponseWriter, r *http.Request) {
	var req workRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	t, err := h.Router.RecordWork(r.PathValue("id"), req.AgentID, req.Work)
	if err != nil {
		writeTaskErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type timeRequest struct {
	AgentID string  `json:"agent_id"`
	Hours   float64 `json:"hours"`
	Note    string  `json:"note"`
}

func (h *Handlers) logTime(w http.ResponseWriter, r *http.Request) {
	var req timeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.AgentID == "" {
		writeError(w, http.StatusBadRequest, "agent_id is required")
		return
	}
	if req.Hours < 0 {
		writeError(w, http.StatusBadRequest, "hours must be non-negative")
		return
	}
	t, err := h.Tasks.LogTime(r.PathValue("id"), model.TimeEntry{
		AgentID: req.AgentID,
		Hours:   req.Hours,
		Note:    req.Note,
	})
	if err != nil {
		writeTaskErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handlers) autoAssign(w http.ResponseWriter, r *http.Request) {
	t, err := h.Router.AutoAssign(r.PathValue("id"))
	if err != nil {
		writeTaskErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// decodeActor reads an optional actor body; an empty or absent body
// means the system acts.
func decodeActor(r *http.Request) actorRequest {
	var req actorRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	return req
}

// --- Agent handlers ---

func (h *Handlers) listAgents(w http.ResponseWriter, _ *http.Request) {
	agents := h.Agents.List()
	for _, a := range agents {
		a.Workload = h.Tasks.ActiveCount(a.ID)
	}
	writeJSON(w, http.StatusOK, agents)
}

func (h *Handlers) registerAgent(w http.ResponseWriter, r *http.Request) {
	var a model.Agent
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	got, err := h.Agents.Heartbeat(a)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, got)
}

type agentStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handlers) setAgentStatus(w http.ResponseWriter, r *http.Request) {
	var req agentStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	a, err := h.Agents.SetStatus(r.PathValue("id"), model.AgentStatus(req.Status))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "agent not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// --- Notification handlers ---

func (h *Handlers) listNotifications(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent_id")
	if agentID == "" {
		writeError(w, http.StatusBadRequest, "agent_id is required")
		return
	}
	unreadOnly := r.URL.Query().Get("unread") == "true"
	ns := h.Notifications.ListForAgent(agentID, unreadOnly)
	if ns == nil {
		ns = []*model.Notification{}
	}
	// Listing is delivery: once an agent has fetched a notification
	// it becomes eligible for pruning.
	for _, n := range ns {
		_ = h.Notifications.MarkDelivered(n.ID)
	}
	writeJSON(w, http.StatusOK, ns)
}

func (h *Handlers) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := h.Notifications.MarkRead(r.PathValue("id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "notification not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Worker handlers ---

func (h *Handlers) listWorkers(w http.ResponseWriter, _ *http.Request) {
	ws := h.Workers.List()
	if ws == nil {
		ws = []*model.WorkerHeartbeat{}
	}
	writeJSON(w, http.StatusOK, ws)
}

func (h *Handlers) workerHeartbeat(w http.ResponseWriter, r *http.Request) {
	var hb model.WorkerHeartbeat
	if err := json.NewDecoder(r.Body).Decode(&hb); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.Workers.Beat(hb); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	got, err := h.Workers.Get(hb.Slot)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, got)
}

// --- Status handlers ---

type statusResponse struct {
	Tasks         map[string]int `json:"tasks"`
	AgentsOnline  int            `json:"agents_online"`
	AgentsTotal   int            `json:"agents_total"`
	Notifications int            `json:"notifications"`
	UptimeSeconds int64          `json:"uptime_seconds"`
}

func (h *Handlers) status(w http.ResponseWriter, _ *http.Request) {
	lanes := map[string]int{}
	for _, t := range h.Tasks.List(store.TaskFilter{}) {
		lanes[string(t.Lane)]++
	}

	online := 0
	agents := h.Agents.List()
	for _, a := range agents {
		if a.Status == model.AgentOnline {
			online++
		}
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Tasks:         lanes,
		AgentsOnline:  online,
		AgentsTotal:   len(agents),
		Notifications: h.Notifications.Len(),
		UptimeSeconds: int64(time.Since(h.StartAt).Seconds()),
	})
}

func (h *Handlers) version(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": h.Version})
}
