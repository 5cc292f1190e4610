package worker

import (
	"context"
	"errors"

	"github.com/lpappas98/claw-control-center/internal/model"
)

// ErrConflict means a claim lost the race: another agent holds the
// task. Supervisors skip the task and move on.
var ErrConflict = errors.New("task already claimed")

// TaskAPI is the control-center surface a worker needs. The HTTP
// client implements it against a running server; tests substitute a
// fake.
type TaskAPI interface {
	RegisterAgent(ctx context.Context, a model.Agent) error
	QueuedTasks(ctx context.Context) ([]*model.Task, error)
	Claim(ctx context.Context, taskID, agentID string) (*model.Task, error)
	Complete(ctx context.Context, taskID, agentID string) error
	MarkBlocked(ctx context.Context, taskID, agentID, reason string) error
	RecordWork(ctx context.Context, taskID, agentID string, work model.WorkRecord) error
	Heartbeat(ctx context.Context, hb model.WorkerHeartbeat) error
}
