package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all the configuration for the application
type Config struct {
	BotToken     string `yaml:"bot_token"`
	DatabasePath string `yaml:"db_path"`
	DefaultTZ    string `yaml:"default_tz"`
	Debug        bool   `yaml:"debug"`

	GitHub GitHubConfig `yaml:"github"`
	Server ServerConfig `yaml:"server"`
	Redis  RedisConfig  `yaml:"redis"`
	Log    LogConfig    `yaml:"log"`
}

// GitHubConfig identifies the repository that receives quiz commits.
type GitHubConfig struct {
	Token         string `yaml:"token"`
	Repo          string `yaml:"repo"`
	AuthorName    string `yaml:"author_name"`
	AuthorEmail   string `yaml:"author_email"`
	CommitTimeout string `yaml:"commit_timeout"`
}

// ServerConfig covers the keepalive HTTP server and webhook mode.
type ServerConfig struct {
	Listen      string `yaml:"listen"`
	Port        int    `yaml:"port"`
	Webhook     bool   `yaml:"webhook"`
	BaseURL     string `yaml:"base_url"`
	WebhookPath string `yaml:"webhook_path"`
}

// RedisConfig enables the Redis-backed session cache when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LogConfig mirrors the rolling-file options of the logger.
type LogConfig struct {
	Level      string `yaml:"level"`
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Configured reports whether every value needed to push commits is present.
func (g GitHubConfig) Configured() bool {
	return g.Token != "" && g.Repo != "" && g.AuthorName != "" && g.AuthorEmail != ""
}

// Missing lists the environment variable names of absent GitHub settings.
func (g GitHubConfig) Missing() []string {
	var missing []string
	if g.Token == "" {
		missing = append(missing, "GITHUB_TOKEN")
	}
	if g.Repo == "" {
		missing = append(missing, "GITHUB_REPO")
	}
	if g.AuthorName == "" {
		missing = append(missing, "GH_USER_NAME")
	}
	if g.AuthorEmail == "" {
		missing = append(missing, "GH_USER_EMAIL")
	}
	return missing
}

// Timeout returns the commit batch deadline, 30s when unset or malformed.
func (g GitHubConfig) Timeout() time.Duration {
	return Duration(g.CommitTimeout, 30*time.Second)
}

func defaults() *Config {
	return &Config{
		DatabasePath: "./data/quiz_scores.db",
		DefaultTZ:    "Asia/Kolkata",
		Server: ServerConfig{
			Listen:      "0.0.0.0",
			Port:        8000,
			WebhookPath: "/webhook",
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// environment variables, in that order of precedence (env wins).
// An empty path falls back to CONFIG_PATH.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if cfg.BotToken == "" {
		return nil, errors.New("BOT_TOKEN environment variable is required")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.BotToken, "BOT_TOKEN")
	setString(&cfg.DatabasePath, "DB_PATH")
	setString(&cfg.DefaultTZ, "DEFAULT_TZ")
	if v := os.Getenv("DEBUG"); v != "" {
		cfg.Debug = v == "true"
	}

	setString(&cfg.GitHub.Token, "GITHUB_TOKEN")
	setString(&cfg.GitHub.Repo, "GITHUB_REPO")
	setString(&cfg.GitHub.AuthorName, "GH_USER_NAME")
	setString(&cfg.GitHub.AuthorEmail, "GH_USER_EMAIL")
	setString(&cfg.GitHub.CommitTimeout, "COMMIT_TIMEOUT")

	setString(&cfg.Server.Listen, "LISTEN")
	setInt(&cfg.Server.Port, "PORT")
	setString(&cfg.Server.BaseURL, "BASE_URL")
	setString(&cfg.Server.WebhookPath, "WEBHOOK_PATH")

	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")

	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Path, "LOG_PATH")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Duration parses a duration string or returns the fallback if empty or invalid.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	return fallback
}
