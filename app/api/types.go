package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lysyi3m/announcer/app/database"
	"github.com/lysyi3m/announcer/app/instance"
	"github.com/lysyi3m/announcer/app/message"
	"github.com/lysyi3m/announcer/app/tasks"
)

type AnnouncerInterface interface {
	ListVideos(ctx context.Context, instanceID string) (*tasks.VideoList, error)
	AnnounceVideo(ctx context.Context, instanceID, videoID string) error
}

var _ AnnouncerInterface = (*tasks.Announcer)(nil)

type Handler struct {
	instanceRepo database.InstanceRepository
	ledger       database.AnnouncementRepository
	announcer    AnnouncerInterface
	validator    *message.Validator
	configCache  *instance.ConfigCache
	scheduler    tasks.TaskSchedulerInterface
}

// instanceResponse is the operator view of an instance. The bot token is
// never returned.
type instanceResponse struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Type         string          `json:"type"`
	AccountID    string          `json:"account_id"`
	ServerID     string          `json:"server_id"`
	ChannelID    string          `json:"channel_id"`
	Automation   bool            `json:"automation"`
	IgnoreShorts bool            `json:"ignore_shorts"`
	Managers     []string        `json:"managers"`
	Template     json.RawMessage `json:"template"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type announcementResponse struct {
	ContentID string    `json:"content_id"`
	Announced bool      `json:"announced"`
	CreatedAt time.Time `json:"created_at"`
}

type videoResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	Thumbnail   string    `json:"thumbnail"`
	PublishedAt time.Time `json:"published_at"`
	IsShort     bool      `json:"is_short"`
	Announced   bool      `json:"announced"`
}

type announceRequest struct {
	VideoID string `json:"videoId" binding:"required"`
}

func newInstanceResponse(i database.Instance) instanceResponse {
	template := json.RawMessage(i.Template)
	if !json.Valid(template) {
		template = json.RawMessage("null")
	}

	managers := i.Managers
	if managers == nil {
		managers = []string{}
	}

	return instanceResponse{
		ID:           i.ID,
		Name:         i.Name,
		Type:         string(i.Type),
		AccountID:    i.AccountID,
		ServerID:     i.ServerID,
		ChannelID:    i.ChannelID,
		Automation:   i.Automation,
		IgnoreShorts: i.IgnoreShorts,
		Managers:     managers,
		Template:     template,
		CreatedAt:    i.CreatedAt,
		UpdatedAt:    i.UpdatedAt,
	}
}

func newVideoResponse(v tasks.Video) videoResponse {
	return videoResponse{
		ID:          v.ID,
		Title:       v.Title,
		Link:        v.Link,
		Thumbnail:   v.Thumbnail,
		PublishedAt: v.PublishedAt,
		IsShort:     v.IsShort,
		Announced:   v.Announced,
	}
}
