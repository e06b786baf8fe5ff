package config

import (
	"strings"
	"testing"
)

func TestParse_FullConfig(t *testing.T) {
	cfg, err := Parse([]byte(`
base_url: https://foreman.example.com/
server:
  port: 8080
database:
  driver: mysql
  dsn: user:pass@tcp(localhost:3306)/foreman
queue:
  workers: 8
  buffer: 512
  max_attempts: 5
  backoff_seconds: 10
cursor:
  endpoint: https://cursor.test/v0/agents
  webhook_secret: s3cret
notify:
  slack:
    bot_token: xoxb-token
  discord:
    bot_token: discord-token
sweeper:
  schedule: "*/10 * * * *"
  stale_after_minutes: 45
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if cfg.BaseURL != "https://foreman.example.com" {
		t.Errorf("base url = %q, trailing slash must be stripped", cfg.BaseURL)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Database.Driver != "mysql" {
		t.Errorf("driver = %q", cfg.Database.Driver)
	}
	if cfg.Queue.Workers != 8 || cfg.Queue.MaxAttempts != 5 {
		t.Errorf("queue = %+v", cfg.Queue)
	}
	if cfg.Cursor.WebhookSecret != "s3cret" {
		t.Errorf("webhook secret = %q", cfg.Cursor.WebhookSecret)
	}
	if cfg.Notify.Slack.BotToken != "xoxb-token" || cfg.Notify.Discord.BotToken != "discord-token" {
		t.Errorf("notify = %+v", cfg.Notify)
	}
	if cfg.Sweeper.Schedule != "*/10 * * * *" || cfg.Sweeper.StaleAfterMinutes != 45 {
		t.Errorf("sweeper = %+v", cfg.Sweeper)
	}
}

func TestParse_Defaults(t *testing.T) {
	t.Setenv("APP_URL", "")
	t.Setenv("CURSOR_WEBHOOK_SECRET", "")
	cfg, err := Parse([]byte(""))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if cfg.BaseURL != "http://localhost:3000" {
		t.Errorf("base url = %q", cfg.BaseURL)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.DSN != "foreman.db" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Queue.Workers != 4 || cfg.Queue.Buffer != 256 || cfg.Queue.MaxAttempts != 3 || cfg.Queue.BackoffSeconds != 5 {
		t.Errorf("queue = %+v", cfg.Queue)
	}
	if cfg.Cursor.Endpoint != "https://api.cursor.com/v0/agents" {
		t.Errorf("cursor endpoint = %q", cfg.Cursor.Endpoint)
	}
	if cfg.Cursor.WebhookSecret != "default-webhook-secret" {
		t.Errorf("webhook secret = %q", cfg.Cursor.WebhookSecret)
	}
	if cfg.Sweeper.Schedule != "*/5 * * * *" || cfg.Sweeper.StaleAfterMinutes != 30 {
		t.Errorf("sweeper = %+v", cfg.Sweeper)
	}
}

func TestParse_BaseURLFromEnv(t *testing.T) {
	t.Setenv("APP_URL", "https://env.example.com/")
	cfg, err := Parse([]byte(""))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.BaseURL != "https://env.example.com" {
		t.Errorf("base url = %q", cfg.BaseURL)
	}
}

func TestParse_WebhookSecretFromEnv(t *testing.T) {
	t.Setenv("CURSOR_WEBHOOK_SECRET", "from-env")
	cfg, err := Parse([]byte(""))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Cursor.WebhookSecret != "from-env" {
		t.Errorf("secret = %q", cfg.Cursor.WebhookSecret)
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"bad driver", "database:\n  driver: postgres\n  dsn: x\n", "database.driver"},
		{"mysql without dsn", "database:\n  driver: mysql\n", "database.dsn is required"},
		{"negative workers", "queue:\n  workers: -1\n", "queue.workers"},
		{"not yaml", "{{{", "config: parse"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("err = %v, want %q", err, tc.wantErr)
			}
		})
	}
}

func TestWebhookURL(t *testing.T) {
	cfg := &Config{BaseURL: "https://foreman.example.com"}
	if got := cfg.WebhookURL(42); got != "https://foreman.example.com/webhooks/cursor/42" {
		t.Errorf("url = %q", got)
	}
}
