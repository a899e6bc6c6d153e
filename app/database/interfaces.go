package database

import (
	"context"
)

type InstanceRepository interface {
	Get(ctx context.Context, id string) (*Instance, error)
	List(ctx context.Context) ([]Instance, error)
	FindAutomationEnabled(ctx context.Context) ([]Instance, error)
	Count(ctx context.Context) (int, error)

	Create(ctx context.Context, instance *Instance) error
	Upsert(ctx context.Context, instance *Instance) (bool, error)
	Update(ctx context.Context, id string, update InstanceUpdate) error
	Delete(ctx context.Context, id string) error
}

// AnnouncementRepository is the ledger of content already announced per instance.
type AnnouncementRepository interface {
	HasAnnounced(ctx context.Context, instanceID, contentID string) (bool, error)
	Record(ctx context.Context, instanceID, contentID string) (bool, error)
	Claim(ctx context.Context, instanceID, contentID string) (bool, error)
	Release(ctx context.Context, instanceID, contentID string) error

	FindByInstanceAndContentIDs(ctx context.Context, instanceID string, contentIDs []string) ([]Announcement, error)
	ListByInstance(ctx context.Context, instanceID string) ([]Announcement, error)
	Count(ctx context.Context) (int, error)
}
