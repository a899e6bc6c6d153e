package instance

import (
	"github.com/lysyi3m/announcer/app/message"
)

// Config is an instance seed file. Name is derived from the filename.
type Config struct {
	Name         string           `yaml:"-"` // Derived from filename (without .yml extension)
	ID           string           `yaml:"id"`
	DisplayName  string           `yaml:"name"`
	Type         string           `yaml:"type"`
	AccountID    string           `yaml:"account_id"`
	BotToken     string           `yaml:"bot_token"` // ${VAR} references are expanded from the environment
	ServerID     string           `yaml:"server_id"`
	ChannelID    string           `yaml:"channel_id"`
	Automation   bool             `yaml:"automation"`
	IgnoreShorts bool             `yaml:"ignore_shorts"`
	Managers     []string         `yaml:"managers"`
	Template     *message.Message `yaml:"template"`
}
