package tasks

import (
	"context"

	"github.com/lysyi3m/announcer/app/dispatch"
	"github.com/lysyi3m/announcer/app/message"
)

// TaskSchedulerInterface is what the application and the operator API need
// from the scheduler: lifecycle control and an on-demand check cycle.
//
//	scheduler, err := NewScheduler(checker, configCache, instanceRepo, schedule, runOnStart)
//	scheduler.Start()
//	defer scheduler.Stop()
//	result := scheduler.Trigger(ctx)
type TaskSchedulerInterface interface {
	Start()
	Stop()
	Trigger(ctx context.Context) CycleResult
}

// Dispatcher delivers rendered messages to a destination channel.
type Dispatcher interface {
	Send(ctx context.Context, dest dispatch.Destination, msg message.Message) error
	Deliver(ctx context.Context, dest dispatch.Destination, msg message.Message) bool
	Failures() int64
}

var _ Dispatcher = (*dispatch.Discord)(nil)
