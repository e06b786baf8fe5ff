// Package config provides YAML-based configuration loading for Foreman.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Foreman configuration, loaded from foreman.yaml.
type Config struct {
	// BaseURL is the externally reachable URL that webhook callbacks are
	// built from. Falls back to the APP_URL environment variable, then to a
	// local placeholder.
	BaseURL string `yaml:"base_url"`

	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Queue    QueueConfig    `yaml:"queue"`
	Cursor   CursorConfig   `yaml:"cursor"`
	Notify   NotifyConfig   `yaml:"notify"`
	Sweeper  SweeperConfig  `yaml:"sweeper"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// DatabaseConfig selects the storage backend. Driver is "sqlite" or "mysql";
// DSN is a file path for sqlite and a full DSN for mysql.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// QueueConfig sizes the in-process job queue.
type QueueConfig struct {
	Workers        int `yaml:"workers"`
	Buffer         int `yaml:"buffer"`
	MaxAttempts    int `yaml:"max_attempts"`
	BackoffSeconds int `yaml:"backoff_seconds"`
}

// CursorConfig holds settings for the Cursor background-agents API.
type CursorConfig struct {
	Endpoint      string `yaml:"endpoint"`
	WebhookSecret string `yaml:"webhook_secret"`
}

// NotifyConfig holds chat-platform tokens for task update notifications.
// Either platform may be left unconfigured.
type NotifyConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
}

// SlackConfig holds the Slack bot token.
type SlackConfig struct {
	BotToken string `yaml:"bot_token"`
}

// DiscordConfig holds the Discord bot token.
type DiscordConfig struct {
	BotToken string `yaml:"bot_token"`
}

// SweeperConfig schedules the stale-merge sweeper. Schedule is a standard
// 5-field cron expression; StaleAfterMinutes is how long a task may sit in
// pr_open before its merge is re-enqueued.
type SweeperConfig struct {
	Schedule          string `yaml:"schedule"`
	StaleAfterMinutes int    `yaml:"stale_after_minutes"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a Config with every default applied, used when no config
// file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = os.Getenv("APP_URL")
	}
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:3000"
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = "foreman.db"
	}
	if c.Queue.Workers == 0 {
		c.Queue.Workers = 4
	}
	if c.Queue.Buffer == 0 {
		c.Queue.Buffer = 256
	}
	if c.Queue.MaxAttempts == 0 {
		c.Queue.MaxAttempts = 3
	}
	if c.Queue.BackoffSeconds == 0 {
		c.Queue.BackoffSeconds = 5
	}
	if c.Cursor.Endpoint == "" {
		c.Cursor.Endpoint = "https://api.cursor.com/v0/agents"
	}
	if c.Cursor.WebhookSecret == "" {
		c.Cursor.WebhookSecret = os.Getenv("CURSOR_WEBHOOK_SECRET")
	}
	if c.Cursor.WebhookSecret == "" {
		c.Cursor.WebhookSecret = "default-webhook-secret"
	}
	if c.Sweeper.Schedule == "" {
		c.Sweeper.Schedule = "*/5 * * * *"
	}
	if c.Sweeper.StaleAfterMinutes == 0 {
		c.Sweeper.StaleAfterMinutes = 30
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported (sqlite, mysql)", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, "database.dsn is required")
	}
	if c.Queue.Workers < 1 {
		errs = append(errs, "queue.workers must be positive")
	}
	if c.Queue.MaxAttempts < 1 {
		errs = append(errs, "queue.max_attempts must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// WebhookURL returns the callback URL the Cursor agent reports back to for
// the given task.
func (c *Config) WebhookURL(taskID uint) string {
	return fmt.Sprintf("%s/webhooks/cursor/%d", c.BaseURL, taskID)
}
