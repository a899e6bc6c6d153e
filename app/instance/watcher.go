package instance

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay lets editors finish writing before a changed file is parsed.
const reloadDelay = 250 * time.Millisecond

// Watch reloads seed files as they change on disk and hands every config that
// parsed and validated to onChange. Removed files are dropped from the cache
// only; stored instances stay until an operator deletes them. Watch blocks
// until ctx is done or the watcher fails.
func (cc *ConfigCache) Watch(ctx context.Context, onChange func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(cc.instancesDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", cc.instancesDir, err)
	}

	slog.Debug("Watching instance configurations", "dir", cc.instancesDir)

	var (
		mu     sync.Mutex
		timers = make(map[string]*time.Timer)
	)
	defer func() {
		mu.Lock()
		defer mu.Unlock()
		for _, timer := range timers {
			timer.Stop()
		}
	}()

	schedule := func(name string) {
		mu.Lock()
		defer mu.Unlock()

		if timer, ok := timers[name]; ok {
			timer.Stop()
		}
		timers[name] = time.AfterFunc(reloadDelay, func() {
			if ctx.Err() != nil {
				return
			}

			config, err := cc.LoadConfig(name)
			if err != nil {
				slog.Warn("Instance configuration rejected", "instance", name, "error", err)
				return
			}

			slog.Info("Instance configuration reloaded", "instance", name)
			onChange(config)
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Ext(ev.Name) != ".yml" {
				continue
			}

			name := strings.TrimSuffix(filepath.Base(ev.Name), ".yml")
			switch {
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				cc.removeConfig(name)
				slog.Info("Instance configuration removed", "instance", name)
			case ev.Op&(fsnotify.Write|fsnotify.Create) != 0:
				schedule(name)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Instance configuration watch error", "dir", cc.instancesDir, "error", err)
		}
	}
}

func (cc *ConfigCache) removeConfig(name string) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	delete(cc.cache, name)
}
