package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lysyi3m/announcer/app/database"
	"github.com/lysyi3m/announcer/app/instance"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

// Scheduler runs check cycles on a cron schedule. Overlapping runs are
// skipped while a cycle is still in progress.
type Scheduler struct {
	checker      *Checker
	configCache  *instance.ConfigCache
	instanceRepo database.InstanceRepository
	runOnStart   bool
	cron         *cron.Cron
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

func NewScheduler(checker *Checker, configCache *instance.ConfigCache, instanceRepo database.InstanceRepository,
	schedule string, runOnStart bool) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())

	logger := cronLogger{}
	s := &Scheduler{
		checker:      checker,
		configCache:  configCache,
		instanceRepo: instanceRepo,
		runOnStart:   runOnStart,
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		ctx:    ctx,
		cancel: cancel,
	}

	if _, err := s.cron.AddFunc(schedule, s.runScheduledCycle); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.runStartupTasks()
		s.watchConfigs()

		if s.runOnStart {
			s.runScheduledCycle()
		}

		select {
		case <-s.ctx.Done():
			return
		default:
			s.cron.Start()
		}
	}()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	<-s.cron.Stop().Done()
}

// Trigger runs a check cycle immediately and returns its result.
func (s *Scheduler) Trigger(ctx context.Context) CycleResult {
	return s.checker.RunCycle(ctx)
}

func (s *Scheduler) runScheduledCycle() {
	result := s.checker.RunCycle(s.ctx)
	slog.Debug("Scheduled check cycle finished", "success", result.Success, "announced", result.Announced)
}

func (s *Scheduler) runStartupTasks() {
	if s.configCache == nil {
		return
	}

	configs := s.configCache.GetConfigs()
	if len(configs) == 0 {
		slog.Debug("No instance configurations found")
		return
	}

	slog.Debug("Syncing instance configurations", "count", len(configs))

	for _, config := range configs {
		s.syncConfig(config)
	}
}

// watchConfigs re-syncs seed files edited while the process runs.
func (s *Scheduler) watchConfigs() {
	if s.configCache == nil {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.configCache.Watch(s.ctx, s.syncConfig); err != nil {
			slog.Warn("Instance configuration watch disabled", "error", err)
		}
	}()
}

func (s *Scheduler) syncConfig(config *instance.Config) {
	task := NewSyncInstanceConfigTask(config, s.instanceRepo)
	task.Start()

	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()

	if err := task.Execute(ctx); err != nil {
		slog.Error("Worker task execution failed", "type", string(task.GetType()), "instance", config.Name, "error", err)
	}
}

// cronLogger routes cron's own messages to slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
