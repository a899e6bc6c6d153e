package tasks

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type TaskType string

const (
	TaskTypeCheckInstance      TaskType = "check_instance"
	TaskTypeSyncInstanceConfig TaskType = "sync_instance_config"
)

type TaskInterface interface {
	Execute(ctx context.Context) error
	GetID() string
	GetType() TaskType
	GetInstanceID() string
	Start()
	GetDuration() time.Duration
}

// Task carries the bookkeeping shared by every task. Tasks are not retried;
// the next scheduled cycle picks the work up again.
type Task struct {
	ID         string
	Type       TaskType
	InstanceID string
	StartedAt  *time.Time
}

func (t *Task) GetID() string {
	return t.ID
}

func (t *Task) GetType() TaskType {
	return t.Type
}

func (t *Task) GetInstanceID() string {
	return t.InstanceID
}

func (t *Task) Start() {
	now := time.Now()
	t.StartedAt = &now
}

func (t *Task) GetDuration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	return time.Since(*t.StartedAt)
}

func NewTask(taskType TaskType, instanceID string) Task {
	return Task{
		ID:         uuid.NewString(),
		Type:       taskType,
		InstanceID: instanceID,
	}
}
