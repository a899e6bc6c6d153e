package cfg

import "time"

type Cfg struct {
	// Storage
	DBPath       string
	InstancesDir string

	// Scheduling
	Schedule     string
	WorkerCount  int
	CycleTimeout time.Duration
	RunOnStart   bool

	// HTTP API
	Port         string
	APIAccessKey string

	// Providers
	TwitchClientID     string
	TwitchAccessToken  string
	YouTubeSource      string
	YouTubeScraperURL  string
	ProviderRate       float64
	ProviderTimeout    time.Duration
	DiscordSendTimeout time.Duration

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}

const (
	YouTubeSourceScraper = "scraper"
	YouTubeSourceAtom    = "atom"
)
