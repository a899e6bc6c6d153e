package database

import (
	"time"
)

type InstanceType string

const (
	InstanceTypeYouTube InstanceType = "youtube"
	InstanceTypeTwitch  InstanceType = "twitch"
)

func (t InstanceType) Valid() bool {
	return t == InstanceTypeYouTube || t == InstanceTypeTwitch
}

// Instance is one tenant's monitoring configuration: which account to watch
// and where to announce it.
type Instance struct {
	ID           string
	Name         string
	Type         InstanceType
	AccountID    string // YouTube channel id or Twitch login
	BotToken     string
	ServerID     string
	ChannelID    string
	Template     string // message template JSON document
	Automation   bool
	IgnoreShorts bool
	Managers     []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// InstanceUpdate carries the fields to change; nil fields are left untouched.
type InstanceUpdate struct {
	Name         *string
	AccountID    *string
	BotToken     *string
	ServerID     *string
	ChannelID    *string
	Template     *string
	Automation   *bool
	IgnoreShorts *bool
	Managers     []string
}

type Announcement struct {
	InstanceID string
	ContentID  string
	Announced  bool
	CreatedAt  time.Time
}
