package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/announcer/app/database"
	"github.com/lysyi3m/announcer/app/dispatch"
	"github.com/lysyi3m/announcer/app/message"
	"github.com/lysyi3m/announcer/app/source"
)

var (
	ErrVideoNotFound   = errors.New("video not found among recent uploads")
	ErrUnsupportedType = errors.New("operation not supported for instance type")
	ErrSourceDisabled  = errors.New("source is not configured")
	ErrDeliveryFailed  = errors.New("delivery failed")
)

const releaseTimeout = 5 * time.Second

// Sources groups the provider adapters. Streams is nil when Twitch
// credentials are not configured.
type Sources struct {
	Uploads source.UploadFeed
	Streams source.LiveStreams
}

// Announcer owns the path every announcement takes: template parse, render,
// validate, deliver, record.
type Announcer struct {
	instances  database.InstanceRepository
	ledger     database.AnnouncementRepository
	sources    Sources
	validator  *message.Validator
	dispatcher Dispatcher
}

func NewAnnouncer(instances database.InstanceRepository, ledger database.AnnouncementRepository,
	sources Sources, validator *message.Validator, dispatcher Dispatcher) *Announcer {
	return &Announcer{
		instances:  instances,
		ledger:     ledger,
		sources:    sources,
		validator:  validator,
		dispatcher: dispatcher,
	}
}

type Video struct {
	source.ContentItem
	Announced bool
}

type VideoList struct {
	Latest   Video
	Previous []Video
}

// ListVideos returns the recent uploads of a YouTube instance annotated with
// whether each one was already announced.
func (a *Announcer) ListVideos(ctx context.Context, instanceID string) (*VideoList, error) {
	instance, err := a.youtubeInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	uploads, err := a.fetchUploads(ctx, instance)
	if err != nil {
		return nil, err
	}

	items := uploads.All()
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}

	found, err := a.ledger.FindByInstanceAndContentIDs(ctx, instance.ID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load announcements: %w", err)
	}

	announced := make(map[string]bool, len(found))
	for _, announcement := range found {
		announced[announcement.ContentID] = announcement.Announced
	}

	list := &VideoList{
		Latest:   Video{ContentItem: uploads.Latest, Announced: announced[uploads.Latest.ID]},
		Previous: make([]Video, 0, len(uploads.Previous)),
	}
	for _, item := range uploads.Previous {
		list.Previous = append(list.Previous, Video{ContentItem: item, Announced: announced[item.ID]})
	}

	return list, nil
}

// AnnounceVideo sends one of the instance's recent uploads on demand. It is
// sent even when already announced; the ledger keeps a single row.
func (a *Announcer) AnnounceVideo(ctx context.Context, instanceID, videoID string) error {
	instance, err := a.youtubeInstance(ctx, instanceID)
	if err != nil {
		return err
	}

	uploads, err := a.fetchUploads(ctx, instance)
	if err != nil {
		return err
	}

	var (
		item  source.ContentItem
		found bool
	)
	for _, candidate := range uploads.All() {
		if candidate.ID == videoID {
			item, found = candidate, true
			break
		}
	}
	if !found {
		return ErrVideoNotFound
	}

	msg, err := a.prepare(instance, item, false)
	if err != nil {
		return err
	}

	if err := a.dispatcher.Send(ctx, destination(instance), msg); err != nil {
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}

	created, err := a.ledger.Record(ctx, instance.ID, item.ID)
	if err != nil {
		return fmt.Errorf("failed to record announcement: %w", err)
	}

	slog.Info("Manual announcement sent", "instance", instance.ID, "content", item.ID, "first_time", created)
	return nil
}

// announce runs the scheduled path for one content item. The ledger claim is
// taken before delivery so overlapping cycles send at most once; a failed
// delivery releases it. It reports whether this call announced the item.
func (a *Announcer) announce(ctx context.Context, instance *database.Instance, item source.ContentItem, live bool) (bool, error) {
	msg, err := a.prepare(instance, item, live)
	if err != nil {
		return false, err
	}

	claimed, err := a.ledger.Claim(ctx, instance.ID, item.ID)
	if err != nil {
		return false, fmt.Errorf("failed to claim announcement: %w", err)
	}
	if !claimed {
		slog.Info("Announcement already claimed by a concurrent cycle", "instance", instance.ID, "content", item.ID)
		return false, nil
	}

	if !a.dispatcher.Deliver(ctx, destination(instance), msg) {
		a.releaseClaim(ctx, instance.ID, item.ID)
		return false, ErrDeliveryFailed
	}

	return true, nil
}

// releaseClaim outlives the cycle context so a delivery that failed on
// timeout is still released.
func (a *Announcer) releaseClaim(ctx context.Context, instanceID, contentID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	if err := a.ledger.Release(ctx, instanceID, contentID); err != nil {
		slog.Error("Failed to release announcement claim", "instance", instanceID, "content", contentID, "error", err)
	}
}

func (a *Announcer) prepare(instance *database.Instance, item source.ContentItem, live bool) (message.Message, error) {
	tmpl, err := message.ParseTemplate(instance.Template)
	if err != nil {
		return message.Message{}, err
	}

	rendered := message.Render(tmpl, placeholderValues(item, live))

	if err := a.validator.Validate(rendered); err != nil {
		return message.Message{}, fmt.Errorf("announcement message is invalid: %w", err)
	}

	return rendered, nil
}

func (a *Announcer) youtubeInstance(ctx context.Context, instanceID string) (*database.Instance, error) {
	instance, err := a.instances.Get(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if instance.Type != database.InstanceTypeYouTube {
		return nil, ErrUnsupportedType
	}
	return instance, nil
}

func (a *Announcer) fetchUploads(ctx context.Context, instance *database.Instance) (*source.Uploads, error) {
	if a.sources.Uploads == nil {
		return nil, ErrSourceDisabled
	}

	uploads, err := a.sources.Uploads.Uploads(ctx, instance.AccountID)
	if errors.Is(err, source.ErrNoContent) {
		a.disableAutomation(ctx, instance)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch uploads: %w", err)
	}

	return uploads, nil
}

func (a *Announcer) fetchStream(ctx context.Context, instance *database.Instance) (*source.ContentItem, error) {
	if a.sources.Streams == nil {
		return nil, ErrSourceDisabled
	}

	stream, err := a.sources.Streams.CurrentStream(ctx, instance.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch live stream: %w", err)
	}

	return stream, nil
}

// disableAutomation stops polling an account the provider has no uploads for.
func (a *Announcer) disableAutomation(ctx context.Context, instance *database.Instance) {
	if !instance.Automation {
		return
	}

	disabled := false
	if err := a.instances.Update(ctx, instance.ID, database.InstanceUpdate{Automation: &disabled}); err != nil {
		slog.Error("Failed to disable automation", "instance", instance.ID, "error", err)
		return
	}

	instance.Automation = false
	slog.Warn("Automation disabled, provider returned no uploads", "instance", instance.ID, "account", instance.AccountID)
}

func placeholderValues(item source.ContentItem, live bool) map[string]string {
	values := map[string]string{
		message.PlaceholderUsername:  item.AccountName,
		message.PlaceholderTitle:     item.Title,
		message.PlaceholderLink:      item.Link,
		message.PlaceholderThumbnail: item.Thumbnail,
	}
	if live {
		values[message.PlaceholderGame] = item.Game
	}
	return values
}

func destination(instance *database.Instance) dispatch.Destination {
	return dispatch.Destination{
		InstanceID: instance.ID,
		BotToken:   instance.BotToken,
		ChannelID:  instance.ChannelID,
	}
}
