package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lysyi3m/announcer/app/database"
)

type CycleResult struct {
	Success   bool `json:"success"`
	Announced int  `json:"announced"`
}

// Checker runs check cycles over every automated instance.
type Checker struct {
	announcer    *Announcer
	instances    database.InstanceRepository
	workerCount  int
	cycleTimeout time.Duration
}

func NewChecker(announcer *Announcer, instances database.InstanceRepository, workerCount int, cycleTimeout time.Duration) *Checker {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Checker{
		announcer:    announcer,
		instances:    instances,
		workerCount:  workerCount,
		cycleTimeout: cycleTimeout,
	}
}

// RunCycle checks all automated instances on a bounded worker pool and waits
// for every one of them. A failing instance never affects the others.
func (c *Checker) RunCycle(ctx context.Context) CycleResult {
	start := time.Now()

	if c.cycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cycleTimeout)
		defer cancel()
	}

	instances, err := c.instances.FindAutomationEnabled(ctx)
	if err != nil {
		slog.Error("Failed to load instances", "error", err)
		return CycleResult{Success: false}
	}

	failuresBefore := c.announcer.dispatcher.Failures()

	var (
		wg        sync.WaitGroup
		announced atomic.Int64
		failed    atomic.Int64
	)

	taskQueue := make(chan *CheckInstanceTask)
	for i := range min(c.workerCount, len(instances)) {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for task := range taskQueue {
				ok, err := c.executeTask(ctx, workerID, task)
				if err != nil {
					failed.Add(1)
				}
				if ok {
					announced.Add(1)
				}
			}
		}(i)
	}

	for _, instance := range instances {
		taskQueue <- NewCheckInstanceTask(instance, c.announcer)
	}
	close(taskQueue)
	wg.Wait()

	slog.Info("Task completed",
		"type", "CheckCycle",
		"duration", time.Since(start),
		"instances", len(instances),
		"announced", announced.Load(),
		"failed", failed.Load(),
		"delivery_failures", c.announcer.dispatcher.Failures()-failuresBefore)

	return CycleResult{Success: true, Announced: int(announced.Load())}
}

func (c *Checker) executeTask(ctx context.Context, workerID int, task *CheckInstanceTask) (announced bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			announced = false
			err = fmt.Errorf("panic: %v", r)
			slog.Error("Worker task panicked", "worker_id", workerID, "type", string(task.GetType()), "instance", task.GetInstanceID(), "panic", r)
		}
	}()

	task.Start()

	if err := task.Execute(ctx); err != nil {
		level := slog.LevelError
		if errors.Is(err, ErrDeliveryFailed) {
			level = slog.LevelWarn
		}
		slog.Log(ctx, level, "Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "instance", task.GetInstanceID(), "error", err)
		return false, err
	}

	return task.Announced, nil
}
