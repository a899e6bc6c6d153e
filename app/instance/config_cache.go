package instance

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/lysyi3m/announcer/app/database"
	"github.com/lysyi3m/announcer/app/message"
)

// seedNamespace scopes the ids derived from seed file names.
var seedNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/lysyi3m/announcer/instances"))

type ConfigCache struct {
	instancesDir string
	validator    *message.Validator
	cache        map[string]*Config
	mu           sync.RWMutex
}

func NewConfigCache(instancesDir string) *ConfigCache {
	return &ConfigCache{
		instancesDir: instancesDir,
		validator:    message.NewValidator(),
		cache:        make(map[string]*Config),
	}
}

func (cc *ConfigCache) Run() error {
	if _, err := os.Stat(cc.instancesDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(cc.instancesDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".yml")

		config, err := cc.LoadConfig(name)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Configuration loaded", "instance", name, "type", config.Type, "automation", config.Automation)
	}

	return nil
}

func (cc *ConfigCache) LoadConfig(name string) (*Config, error) {
	configFile := cc.getConfigFilePath(name)
	config, err := cc.parseConfig(configFile)
	if err != nil {
		return nil, err
	}

	config.Name = name
	if config.DisplayName == "" {
		config.DisplayName = name
	}
	if config.ID == "" {
		config.ID = uuid.NewSHA1(seedNamespace, []byte(name)).String()
	}

	if err := cc.validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configFile, err)
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cache[config.Name] = config

	return config, nil
}

func (cc *ConfigCache) GetConfig(name string) (*Config, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	config, ok := cc.cache[name]
	if !ok {
		return nil, fmt.Errorf("instance config with name '%s' not found", name)
	}
	return config, nil
}

func (cc *ConfigCache) GetConfigs() map[string]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	configsCopy := make(map[string]*Config, len(cc.cache))
	for k, v := range cc.cache {
		configsCopy[k] = v
	}
	return configsCopy
}

func (cc *ConfigCache) GetConfigCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.cache)
}

func (cc *ConfigCache) parseConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	config.BotToken = os.ExpandEnv(config.BotToken)
	config.Type = strings.ToLower(strings.TrimSpace(config.Type))

	return &config, nil
}

func (cc *ConfigCache) validateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("config is nil")
	}

	requiredFields := []struct {
		name  string
		value string
	}{
		{"instance name", config.Name},
		{"type", config.Type},
		{"account id", config.AccountID},
		{"bot token", config.BotToken},
		{"channel id", config.ChannelID},
	}

	for _, field := range requiredFields {
		if strings.TrimSpace(field.value) == "" {
			return fmt.Errorf("%s is required", field.name)
		}
	}

	if !database.InstanceType(config.Type).Valid() {
		return fmt.Errorf("unsupported instance type: %s", config.Type)
	}

	if _, err := uuid.Parse(config.ID); err != nil {
		return fmt.Errorf("id must be a UUID: %w", err)
	}

	if config.Template != nil {
		if err := cc.validator.Validate(*config.Template); err != nil {
			return fmt.Errorf("invalid template: %w", err)
		}
	}

	return nil
}

func (cc *ConfigCache) getConfigFilePath(name string) string {
	return filepath.Join(cc.instancesDir, name+".yml")
}

// ToInstance converts the seed into a stored instance with its template
// serialized as JSON.
func (c *Config) ToInstance() (*database.Instance, error) {
	template := "{}"
	if c.Template != nil {
		data, err := json.Marshal(c.Template)
		if err != nil {
			return nil, fmt.Errorf("failed to encode template: %w", err)
		}
		template = string(data)
	}

	return &database.Instance{
		ID:           c.ID,
		Name:         c.DisplayName,
		Type:         database.InstanceType(c.Type),
		AccountID:    c.AccountID,
		BotToken:     c.BotToken,
		ServerID:     c.ServerID,
		ChannelID:    c.ChannelID,
		Template:     template,
		Automation:   c.Automation,
		IgnoreShorts: c.IgnoreShorts,
		Managers:     c.Managers,
	}, nil
}
