package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/announcer/app/database"
	"github.com/lysyi3m/announcer/app/instance"
)

// SyncInstanceConfigTask writes a seed file into the instance store.
type SyncInstanceConfigTask struct {
	Task
	Config       *instance.Config
	instanceRepo database.InstanceRepository
}

var _ TaskInterface = (*SyncInstanceConfigTask)(nil)

func NewSyncInstanceConfigTask(config *instance.Config, instanceRepo database.InstanceRepository) *SyncInstanceConfigTask {
	return &SyncInstanceConfigTask{
		Task:         NewTask(TaskTypeSyncInstanceConfig, config.ID),
		Config:       config,
		instanceRepo: instanceRepo,
	}
}

func (t *SyncInstanceConfigTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	record, err := t.Config.ToInstance()
	if err != nil {
		return err
	}

	created, err := t.instanceRepo.Upsert(ctx, record)
	if err != nil {
		return fmt.Errorf("failed to sync instance config to database: %w", err)
	}

	slog.Info("Task completed",
		"type", "SyncInstanceConfig",
		"instance", t.Config.Name,
		"id", record.ID,
		"created", created,
		"duration", t.GetDuration())

	return nil
}
