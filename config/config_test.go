package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadRequiresBotToken(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	t.Setenv("CONFIG_PATH", "")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error without BOT_TOKEN")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BOT_TOKEN", "tok")
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("DB_PATH", "")
	t.Setenv("DEFAULT_TZ", "")
	t.Setenv("PORT", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultTZ != "Asia/Kolkata" {
		t.Fatalf("DefaultTZ=%q", cfg.DefaultTZ)
	}
	if cfg.Server.Port != 8000 || cfg.Server.WebhookPath != "/webhook" {
		t.Fatalf("unexpected server defaults: %+v", cfg.Server)
	}
	if cfg.GitHub.Configured() {
		t.Fatalf("GitHub should not be configured by default")
	}
	if got := len(cfg.GitHub.Missing()); got != 4 {
		t.Fatalf("Missing()=%d entries, want 4", got)
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
bot_token: from-file
default_tz: Europe/Berlin
github:
  repo: me/graph
  commit_timeout: 5s
server:
  port: 9000
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("BOT_TOKEN", "")
	t.Setenv("DEFAULT_TZ", "")
	t.Setenv("PORT", "9100")
	t.Setenv("GITHUB_REPO", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BotToken != "from-file" || cfg.DefaultTZ != "Europe/Berlin" {
		t.Fatalf("yaml values not applied: %+v", cfg)
	}
	if cfg.Server.Port != 9100 {
		t.Fatalf("env should override yaml port, got %d", cfg.Server.Port)
	}
	if cfg.GitHub.Repo != "me/graph" {
		t.Fatalf("GitHub.Repo=%q", cfg.GitHub.Repo)
	}
	if cfg.GitHub.Timeout() != 5*time.Second {
		t.Fatalf("Timeout()=%v", cfg.GitHub.Timeout())
	}
}

func TestDuration(t *testing.T) {
	if got := Duration("", time.Second); got != time.Second {
		t.Fatalf("empty: %v", got)
	}
	if got := Duration("nope", time.Second); got != time.Second {
		t.Fatalf("invalid: %v", got)
	}
	if got := Duration("2m", time.Second); got != 2*time.Minute {
		t.Fatalf("valid: %v", got)
	}
}
