package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage
	DBPath       string `long:"db-path" env:"DB_PATH" default:"./data/announcer.db" description:"Path to the SQLite database file"`
	InstancesDir string `long:"instances-dir" env:"INSTANCES_DIR" default:"./instances" description:"Directory containing instance definition files"`

	// Scheduling
	Schedule     string `long:"schedule" env:"SCHEDULE" default:"@every 1m" description:"Cron expression for announcement check cycles"`
	WorkerCount  int    `long:"worker-count" env:"WORKER_COUNT" default:"5" description:"Maximum number of instances checked concurrently"`
	CycleTimeout int    `long:"cycle-timeout" env:"CYCLE_TIMEOUT" default:"300" description:"Timeout for a whole check cycle in seconds"`
	RunOnStart   bool   `long:"run-on-start" env:"RUN_ON_START" description:"Run a check cycle immediately at startup"`

	// HTTP API
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Providers
	TwitchClientID     string  `long:"twitch-client-id" env:"TWITCH_CLIENT_ID" description:"Twitch application client id"`
	TwitchAccessToken  string  `long:"twitch-access-token" env:"TWITCH_ACCESS_TOKEN" description:"Twitch app access token"`
	YouTubeSource      string  `long:"youtube-source" env:"YOUTUBE_SOURCE" default:"scraper" choice:"scraper" choice:"atom" description:"Upload feed provider for YouTube instances"`
	YouTubeScraperURL  string  `long:"youtube-scraper-url" env:"YOUTUBE_SCRAPER_URL" default:"https://yt.astrid.sh" description:"Base URL of the YouTube uploads scraper service"`
	ProviderRate       float64 `long:"provider-rate" env:"PROVIDER_RATE" default:"5" description:"Maximum provider requests per second, per provider"`
	ProviderTimeout    int     `long:"provider-timeout" env:"PROVIDER_TIMEOUT" default:"15" description:"Provider request timeout in seconds"`
	DiscordSendTimeout int     `long:"discord-timeout" env:"DISCORD_TIMEOUT" default:"10" description:"Discord delivery timeout in seconds"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Announcer/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// Load reads .env (if present), environment variables and command-line flags.
// A nil config with a nil error means help was requested.
func Load() (*Cfg, error) {
	return LoadArgs(nil)
}

func LoadArgs(args []string) (*Cfg, error) {
	_ = godotenv.Load()

	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	var err error
	if args == nil {
		_, err = parser.Parse()
	} else {
		_, err = parser.ParseArgs(args)
	}
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:             raw.DBPath,
		InstancesDir:       raw.InstancesDir,
		Schedule:           raw.Schedule,
		WorkerCount:        raw.WorkerCount,
		CycleTimeout:       time.Duration(raw.CycleTimeout) * time.Second,
		RunOnStart:         raw.RunOnStart,
		Port:               raw.Port,
		APIAccessKey:       raw.APIAccessKey,
		TwitchClientID:     raw.TwitchClientID,
		TwitchAccessToken:  raw.TwitchAccessToken,
		YouTubeSource:      raw.YouTubeSource,
		YouTubeScraperURL:  raw.YouTubeScraperURL,
		ProviderRate:       raw.ProviderRate,
		ProviderTimeout:    time.Duration(raw.ProviderTimeout) * time.Second,
		DiscordSendTimeout: time.Duration(raw.DiscordSendTimeout) * time.Second,
		UserAgent:          raw.UserAgent,
		Timezone:           raw.Timezone,
		Debug:              raw.Debug,
		Version:            GetVersion(),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	return cfg, nil
}

func (c *Cfg) validate() error {
	if c.WorkerCount <= 0 {
		return fmt.Errorf("worker count must be positive, got %d", c.WorkerCount)
	}
	if c.CycleTimeout <= 0 {
		return fmt.Errorf("cycle timeout must be positive")
	}
	if c.ProviderRate <= 0 {
		return fmt.Errorf("provider rate must be positive")
	}
	return nil
}

// TwitchEnabled reports whether live-stream polling can authenticate.
func (c *Cfg) TwitchEnabled() bool {
	return c.TwitchClientID != "" && c.TwitchAccessToken != ""
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
