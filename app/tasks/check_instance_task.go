package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/announcer/app/database"
	"github.com/lysyi3m/announcer/app/source"
)

type skipReason string

const (
	skipNone      skipReason = ""
	skipBacklog   skipReason = "published_before_instance"
	skipShort     skipReason = "short"
	skipAnnounced skipReason = "already_announced"
)

// CheckInstanceTask runs one instance through detection and announcement.
type CheckInstanceTask struct {
	Task
	Instance  database.Instance
	announcer *Announcer

	// Announced is set when this run created the ledger row.
	Announced bool
}

var _ TaskInterface = (*CheckInstanceTask)(nil)

func NewCheckInstanceTask(instance database.Instance, announcer *Announcer) *CheckInstanceTask {
	return &CheckInstanceTask{
		Task:      NewTask(TaskTypeCheckInstance, instance.ID),
		Instance:  instance,
		announcer: announcer,
	}
}

func (t *CheckInstanceTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if !t.Instance.Automation {
		slog.Debug("Automation disabled, skipping", "instance", t.Instance.ID)
		return nil
	}

	var (
		item *source.ContentItem
		live bool
		err  error
	)

	switch t.Instance.Type {
	case database.InstanceTypeYouTube:
		item, err = t.latestUpload(ctx)
	case database.InstanceTypeTwitch:
		live = true
		item, err = t.announcer.fetchStream(ctx, &t.Instance)
	default:
		slog.Warn("Unknown instance type, skipping", "instance", t.Instance.ID, "type", string(t.Instance.Type))
		return nil
	}
	if err != nil {
		return err
	}

	if item == nil {
		slog.Debug("Nothing to announce", "instance", t.Instance.ID)
		return nil
	}

	reason, err := t.skipReason(ctx, *item)
	if err != nil {
		return err
	}
	if reason != skipNone {
		slog.Debug("Content skipped", "instance", t.Instance.ID, "content", item.ID, "reason", string(reason))
		return nil
	}

	created, err := t.announcer.announce(ctx, &t.Instance, *item, live)
	if err != nil {
		return err
	}
	t.Announced = created

	slog.Info("Task completed",
		"type", "CheckInstance",
		"instance", t.Instance.ID,
		"content", item.ID,
		"duration", t.GetDuration(),
		"announced", created)

	return nil
}

func (t *CheckInstanceTask) latestUpload(ctx context.Context) (*source.ContentItem, error) {
	uploads, err := t.announcer.fetchUploads(ctx, &t.Instance)
	if err != nil {
		return nil, err
	}
	latest := uploads.Latest
	return &latest, nil
}

// skipReason applies the skip policy in order: content older than the
// instance, shorts the instance ignores, content already in the ledger.
func (t *CheckInstanceTask) skipReason(ctx context.Context, item source.ContentItem) (skipReason, error) {
	if !item.PublishedAt.After(t.Instance.CreatedAt) {
		return skipBacklog, nil
	}

	if item.IsShort && t.Instance.IgnoreShorts {
		return skipShort, nil
	}

	announced, err := t.announcer.ledger.HasAnnounced(ctx, t.Instance.ID, item.ID)
	if err != nil {
		return skipNone, fmt.Errorf("failed to check ledger: %w", err)
	}
	if announced {
		return skipAnnounced, nil
	}

	return skipNone, nil
}
