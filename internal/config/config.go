// Package config holds the YAML configuration of the housekeeping server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Property is one managed rental unit and its booking feed.
type Property struct {
	Key     string `yaml:"key" json:"key"`
	Name    string `yaml:"name" json:"name"`
	Color   string `yaml:"color,omitempty" json:"color,omitempty"`
	FeedURL string `yaml:"feed_url,omitempty" json:"feed_url,omitempty"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// SyncConfig controls the sync cycle and queue replay.
type SyncConfig struct {
	// Refresh is a cron spec for the periodic sync cycle. Empty disables it.
	Refresh string `yaml:"refresh" json:"refresh"`

	// ContinueOnError keeps draining after a failed queue entry.
	ContinueOnError *bool `yaml:"continue_on_error,omitempty" json:"continue_on_error,omitempty"`

	// ProbeInterval is how often the remote health URL is probed.
	ProbeInterval time.Duration `yaml:"probe_interval" json:"probe_interval"`

	// StartOnline is the connectivity state assumed at startup.
	StartOnline *bool `yaml:"start_online,omitempty" json:"start_online,omitempty"`

	// HorizonDays bounds recurring task expansion.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`
}

// RemoteConfig selects where queued mutations are replayed.
type RemoteConfig struct {
	// Kind is one of: log, http, kafka, redis.
	Kind      string   `yaml:"kind" json:"kind"`
	URL       string   `yaml:"url,omitempty" json:"url,omitempty"`
	HealthURL string   `yaml:"health_url,omitempty" json:"health_url,omitempty"`
	Token     string   `yaml:"token,omitempty" json:"-"`
	Brokers   []string `yaml:"brokers,omitempty" json:"brokers,omitempty"`
	Topic     string   `yaml:"topic,omitempty" json:"topic,omitempty"`
	RedisURL  string   `yaml:"redis_url,omitempty" json:"-"`
	Stream    string   `yaml:"stream,omitempty" json:"stream,omitempty"`
}

// AssistantConfig points at an OpenAI-compatible chat completions API.
type AssistantConfig struct {
	BaseURL string        `yaml:"base_url" json:"base_url"`
	APIKey  string        `yaml:"api_key,omitempty" json:"-"`
	Model   string        `yaml:"model" json:"model"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// Enabled reports whether checklist enrichment should be attempted.
func (a AssistantConfig) Enabled() bool {
	return a.APIKey != "" && a.BaseURL != ""
}

// RecurringTask is a maintenance task repeated on an RRULE schedule.
type RecurringTask struct {
	Property  string   `yaml:"property" json:"property"`
	Title     string   `yaml:"title" json:"title"`
	RRule     string   `yaml:"rrule" json:"rrule"`
	Priority  string   `yaml:"priority,omitempty" json:"priority,omitempty"`
	Checklist []string `yaml:"checklist,omitempty" json:"checklist,omitempty"`
}

// Config is the top-level application configuration.
type Config struct {
	Listen    string          `yaml:"listen" json:"listen"`
	DataDir   string          `yaml:"data_dir" json:"data_dir"`
	StaticDir string          `yaml:"static_dir" json:"static_dir"`
	Log       LogConfig       `yaml:"log" json:"log"`
	Sync      SyncConfig      `yaml:"sync" json:"sync"`
	Remote    RemoteConfig    `yaml:"remote" json:"remote"`
	Assistant AssistantConfig `yaml:"assistant" json:"assistant"`

	Properties []Property      `yaml:"properties" json:"properties"`
	Recurring  []RecurringTask `yaml:"recurring,omitempty" json:"recurring,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	cfg := &Config{
		Properties: []Property{
			{Key: "oh-yeah", Name: "Oh Yeah", Color: "#4CAF50"},
			{Key: "amazing-pool", Name: "Amazing Pool", Color: "#2196F3"},
			{Key: "little-castle", Name: "Little Castle", Color: "#FF9800"},
		},
	}
	cfg.Normalize()
	return cfg
}

// Normalize fills zero values with defaults so partial files still work.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = ":8099"
	}
	if c.DataDir == "" {
		c.DataDir = "/data"
	}
	if c.StaticDir == "" {
		c.StaticDir = "./static"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Sync.Refresh == "" {
		c.Sync.Refresh = "*/30 * * * *"
	}
	if c.Sync.ContinueOnError == nil {
		c.Sync.ContinueOnError = boolPtr(true)
	}
	if c.Sync.StartOnline == nil {
		c.Sync.StartOnline = boolPtr(true)
	}
	if c.Sync.ProbeInterval <= 0 {
		c.Sync.ProbeInterval = time.Minute
	}
	if c.Sync.HorizonDays <= 0 {
		c.Sync.HorizonDays = 30
	}
	if c.Remote.Kind == "" {
		c.Remote.Kind = "log"
	}
	if c.Remote.Topic == "" {
		c.Remote.Topic = "housekeeping-changes"
	}
	if c.Remote.Stream == "" {
		c.Remote.Stream = "housekeeping:changes"
	}
	if c.Assistant.BaseURL == "" {
		c.Assistant.BaseURL = "https://api.openai.com/v1"
	}
	if c.Assistant.Model == "" {
		c.Assistant.Model = "gpt-4o-mini"
	}
	if c.Assistant.Timeout <= 0 {
		c.Assistant.Timeout = 20 * time.Second
	}
	if c.Properties == nil {
		c.Properties = []Property{}
	}
}

// Validate reports configuration errors that Normalize cannot repair.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Properties))
	for i, p := range c.Properties {
		if strings.TrimSpace(p.Key) == "" {
			return fmt.Errorf("properties[%d]: key is required", i)
		}
		if seen[p.Key] {
			return fmt.Errorf("properties[%d]: duplicate key %q", i, p.Key)
		}
		seen[p.Key] = true
	}
	for i, r := range c.Recurring {
		if !seen[r.Property] {
			return fmt.Errorf("recurring[%d]: unknown property %q", i, r.Property)
		}
		if r.Title == "" || r.RRule == "" {
			return fmt.Errorf("recurring[%d]: title and rrule are required", i)
		}
	}
	switch c.Remote.Kind {
	case "log":
	case "http":
		if c.Remote.URL == "" {
			return errors.New("remote.url is required for kind http")
		}
	case "kafka":
		if len(c.Remote.Brokers) == 0 {
			return errors.New("remote.brokers is required for kind kafka")
		}
	case "redis":
		if c.Remote.RedisURL == "" {
			return errors.New("remote.redis_url is required for kind redis")
		}
	default:
		return fmt.Errorf("remote.kind %q is not supported", c.Remote.Kind)
	}
	return nil
}

// Property returns the configured property with the given key.
func (c *Config) Property(key string) (Property, bool) {
	for _, p := range c.Properties {
		if p.Key == key {
			return p, true
		}
	}
	return Property{}, false
}

// ContinueOnError returns the drain policy with its default applied.
func (c *Config) ContinueOnError() bool {
	return c.Sync.ContinueOnError == nil || *c.Sync.ContinueOnError
}

// StartOnline returns the initial connectivity state with its default applied.
func (c *Config) StartOnline() bool {
	return c.Sync.StartOnline == nil || *c.Sync.StartOnline
}

// ApplyEnv overrides selected fields from the environment.
func (c *Config) ApplyEnv() {
	c.Listen = getEnv("COMMANDER_LISTEN", c.Listen)
	c.DataDir = getEnv("COMMANDER_DATA_DIR", c.DataDir)
	c.Assistant.APIKey = getEnv("OPENAI_API_KEY", c.Assistant.APIKey)
	c.Remote.URL = getEnv("REMOTE_URL", c.Remote.URL)
	c.Remote.Token = getEnv("REMOTE_TOKEN", c.Remote.Token)
}

// Load reads the YAML file at path. A missing file is created with defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, fmt.Errorf("writing default config: %w", err)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".commander-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func boolPtr(b bool) *bool { return &b }
