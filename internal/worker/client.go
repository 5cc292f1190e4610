package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lpappas98/claw-control-center/internal/model"
)

// Client talks to the control-center REST API.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// NewClient creates an API client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
}

// apiError is a non-2xx response. Status carries the HTTP code so
// callers can tell client mistakes from transport trouble.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// IsTransient reports whether err is worth retrying: transport
// failures and 5xx responses are, 4xx responses are not.
func IsTransient(err error) bool {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae.Status >= 500
	}
	return err != nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return ErrConflict
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &apiError{Status: resp.StatusCode, Message: e.Error}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) RegisterAgent(ctx context.Context, a model.Agent) error {
	return c.do(ctx, http.MethodPost, "/api/agents/register", a, nil)
}

func (c *Client) QueuedTasks(ctx context.Context) ([]*model.Task, error) {
	return c.Tasks(ctx, string(model.LaneQueued))
}

// Tasks lists tasks, optionally filtered by lane.
func (c *Client) Tasks(ctx context.Context, lane string) ([]*model.Task, error) {
	path := "/api/tasks"
	if lane != "" {
		path += "?lane=" + lane
	}
	var tasks []*model.Task
	if err := c.do(ctx, http.MethodGet, path, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// Task fetches one task by id.
func (c *Client) Task(ctx context.Context, id string) (*model.Task, error) {
	var t model.Task
	if err := c.do(ctx, http.MethodGet, "/api/tasks/"+id, nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTaskRequest is the payload for CreateTask.
type CreateTaskRequest struct {
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	Priority       string   `json:"priority,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	DependsOn      []string `json:"depends_on,omitempty"`
	EstimatedHours float64  `json:"estimated_hours,omitempty"`
}

func (c *Client) CreateTask(ctx context.Context, req CreateTaskRequest) (*model.Task, error) {
	var t model.Task
	if err := c.do(ctx, http.MethodPost, "/api/tasks", req, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) AutoAssign(ctx context.Context, taskID string) (*model.Task, error) {
	var t model.Task
	if err := c.do(ctx, http.MethodPost, "/api/tasks/"+taskID+"/auto-assign", nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// LogTime appends a time entry to a task and returns it with the
// recomputed actual hours.
func (c *Client) LogTime(ctx context.Context, taskID, agentID string, hours float64, note string) (*model.Task, error) {
	var t model.Task
	err := c.do(ctx, http.MethodPost, "/api/tasks/"+taskID+"/time",
		map[string]any{"agent_id": agentID, "hours": hours, "note": note}, &t)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) Release(ctx context.Context, taskID, agentID string) error {
	return c.do(ctx, http.MethodPost, "/api/tasks/"+taskID+"/release",
		map[string]string{"agent_id": agentID}, nil)
}

func (c *Client) Agents(ctx context.Context) ([]*model.Agent, error) {
	var agents []*model.Agent
	if err := c.do(ctx, http.MethodGet, "/api/agents", nil, &agents); err != nil {
		return nil, err
	}
	return agents, nil
}

func (c *Client) Workers(ctx context.Context) ([]*model.WorkerHeartbeat, error) {
	var ws []*model.WorkerHeartbeat
	if err := c.do(ctx, http.MethodGet, "/api/workers", nil, &ws); err != nil {
		return nil, err
	}
	return ws, nil
}

// BoardStatus is the server's status summary.
type BoardStatus struct {
	Tasks         map[string]int `json:"tasks"`
	AgentsOnline  int            `json:"agents_online"`
	AgentsTotal   int            `json:"agents_total"`
	Notifications int            `json:"notifications"`
	UptimeSeconds int64          `json:"uptime_seconds"`
}

func (c *Client) Status(ctx context.Context) (*BoardStatus, error) {
	var st BoardStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) Claim(ctx context.Context, taskID, agentID string) (*model.Task, error) {
	var t model.Task
	err := c.do(ctx, http.MethodPost, "/api/tasks/"+taskID+"/claim",
		map[string]string{"agent_id": agentID}, &t)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) Complete(ctx context.Context, taskID, agentID string) error {
	return c.do(ctx, http.MethodPost, "/api/tasks/"+taskID+"/complete",
		map[string]string{"agent_id": agentID}, nil)
}

func (c *Client) MarkBlocked(ctx context.Context, taskID, agentID, reason string) error {
	return c.do(ctx, http.MethodPost, "/api/tasks/"+taskID+"/blocked",
		map[string]string{"agent_id": agentID, "reason": reason}, nil)
}

func (c *Client) RecordWork(ctx context.Context, taskID, agentID string, work model.WorkRecord) error {
	return c.do(ctx, http.MethodPut, "/api/tasks/"+taskID+"/work",
		map[string]any{"agent_id": agentID, "work": work}, nil)
}

func (c *Client) Heartbeat(ctx context.Context, hb model.WorkerHeartbeat) error {
	return c.do(ctx, http.MethodPost, "/api/workers/heartbeat", hb, nil)
}
