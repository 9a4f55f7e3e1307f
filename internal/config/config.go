package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone     = "Europe/Copenhagen"
	configPathEnv       = "ARTICLE_PUBLISHER_CONFIG"
	timezoneEnv         = "PUBLISHER_TIMEZONE"
	siteBaseURLEnv      = "SITE_BASE_URL"
	forumWebhookEnv     = "DISCORD_FORUM_WEBHOOK_URL"
	announceWebhookEnv  = "DISCORD_ANNOUNCE_WEBHOOK_URL"
	discordUsernameEnv  = "DISCORD_USERNAME"
	discordAvatarURLEnv = "DISCORD_AVATAR_URL"
	journalDSNEnv       = "JOURNAL_DSN"
	dotEnvFile          = ".env"
)

// Config holds high-level settings required across the application.
type Config struct {
	Timezone  string          `yaml:"timezone"`
	Logging   LoggingConfig   `yaml:"logging"`
	Content   ContentConfig   `yaml:"content"`
	State     StateConfig     `yaml:"state"`
	Journal   JournalConfig   `yaml:"journal"`
	Site      SiteConfig      `yaml:"site"`
	Discord   DiscordConfig   `yaml:"discord"`
	Reconcile ReconcileConfig `yaml:"reconcile"`

	location *time.Location `yaml:"-"`
}

// LoggingConfig selects slog level and handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ContentConfig lists where articles are discovered.
type ContentConfig struct {
	Sources []SourceConfig `yaml:"sources"`
}

// SourceConfig describes one content root and the loader strategy for it.
type SourceConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	Root string `yaml:"root"`
}

// StateConfig locates the reconciliation state document.
type StateConfig struct {
	Path string `yaml:"path"`
}

// JournalConfig selects the audit journal backend.
// Driver is one of none, file, sqlite, postgres.
type JournalConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"-"`
}

// SiteConfig describes the public site the announcements link to.
type SiteConfig struct {
	BaseURL string `yaml:"baseUrl"`
}

// DiscordConfig wires the announcement webhooks. Webhook URLs embed
// credentials and are only read from the environment.
type DiscordConfig struct {
	ForumWebhookURL    string        `yaml:"-"`
	AnnounceWebhookURL string        `yaml:"-"`
	Username           string        `yaml:"username"`
	AvatarURL          string        `yaml:"avatarUrl"`
	Timeout            time.Duration `yaml:"timeout"`
	MaxAttempts        int           `yaml:"maxAttempts"`
	RetryBase          time.Duration `yaml:"retryBase"`
	RetryMaxDelay      time.Duration `yaml:"retryMaxDelay"`
	RatePerSecond      float64       `yaml:"ratePerSecond"`
}

// Configured reports whether both webhooks are present.
func (d DiscordConfig) Configured() bool {
	return d.ForumWebhookURL != "" && d.AnnounceWebhookURL != ""
}

// ReconcileConfig bounds one reconciliation pass.
type ReconcileConfig struct {
	Limit       int `yaml:"limit"`
	Concurrency int `yaml:"concurrency"`
}

// Location resolves the configured timezone for naive publish times.
func (c Config) Location() *time.Location {
	if c.location != nil {
		return c.location
	}
	loc, err := time.LoadLocation(defaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SetTimezone rebinds the timezone, e.g. from a command-line override.
func (c *Config) SetTimezone(name string) error {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return fmt.Errorf("unknown timezone %q: %w", name, err)
	}
	c.Timezone = name
	c.location = loc
	return nil
}

// Load seeds the environment from .env, reads YAML configuration from path
// (or the path named by ARTICLE_PUBLISHER_CONFIG) and applies environment
// overrides. An empty path with no env override yields defaults.
func Load(path string) (Config, error) {
	if err := godotenv.Load(dotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("config: cannot read %s: %v", dotEnvFile, err)
	}

	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		fileCfg, err := Parse(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		cfg = mergeConfig(cfg, fileCfg)
	}

	cfg.applyEnvOverrides()
	if err := cfg.SetTimezone(cfg.Timezone); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML configuration without applying defaults.
func Parse(raw []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(timezoneEnv); v != "" {
		c.Timezone = v
	}

	if v := os.Getenv(siteBaseURLEnv); v != "" {
		c.Site.BaseURL = v
	}

	if v := os.Getenv(forumWebhookEnv); v != "" {
		c.Discord.ForumWebhookURL = strings.TrimSpace(v)
	}

	if v := os.Getenv(announceWebhookEnv); v != "" {
		c.Discord.AnnounceWebhookURL = strings.TrimSpace(v)
	}

	if v := os.Getenv(discordUsernameEnv); v != "" {
		c.Discord.Username = v
	}

	if v := os.Getenv(discordAvatarURLEnv); v != "" {
		c.Discord.AvatarURL = v
	}

	if v := os.Getenv(journalDSNEnv); v != "" {
		c.Journal.DSN = v
	}
}

func (c Config) validate() error {
	switch strings.ToLower(c.Journal.Driver) {
	case "", "none", "file", "sqlite", "sqlite3", "postgres":
	default:
		return fmt.Errorf("unknown journal driver %q", c.Journal.Driver)
	}
	if c.Discord.MaxAttempts < 1 {
		return fmt.Errorf("discord.maxAttempts must be at least 1, got %d", c.Discord.MaxAttempts)
	}
	if c.Reconcile.Limit < 0 {
		return fmt.Errorf("reconcile.limit must not be negative, got %d", c.Reconcile.Limit)
	}
	if c.Reconcile.Concurrency < 1 {
		return fmt.Errorf("reconcile.concurrency must be at least 1, got %d", c.Reconcile.Concurrency)
	}
	if c.State.Path == "" {
		return errors.New("state.path is required")
	}
	return nil
}

func mergeConfig(base, override Config) Config {
	if override.Timezone != "" {
		base.Timezone = override.Timezone
	}

	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if len(override.Content.Sources) > 0 {
		base.Content.Sources = override.Content.Sources
	}

	if override.State.Path != "" {
		base.State.Path = override.State.Path
	}

	if override.Journal.Driver != "" {
		base.Journal.Driver = override.Journal.Driver
	}
	if override.Journal.Path != "" {
		base.Journal.Path = override.Journal.Path
	}

	if override.Site.BaseURL != "" {
		base.Site.BaseURL = override.Site.BaseURL
	}

	if override.Discord.Username != "" {
		base.Discord.Username = override.Discord.Username
	}
	if override.Discord.AvatarURL != "" {
		base.Discord.AvatarURL = override.Discord.AvatarURL
	}
	if override.Discord.Timeout > 0 {
		base.Discord.Timeout = override.Discord.Timeout
	}
	if override.Discord.MaxAttempts != 0 {
		base.Discord.MaxAttempts = override.Discord.MaxAttempts
	}
	if override.Discord.RetryBase > 0 {
		base.Discord.RetryBase = override.Discord.RetryBase
	}
	if override.Discord.RetryMaxDelay > 0 {
		base.Discord.RetryMaxDelay = override.Discord.RetryMaxDelay
	}
	if override.Discord.RatePerSecond > 0 {
		base.Discord.RatePerSecond = override.Discord.RatePerSecond
	}

	if override.Reconcile.Limit != 0 {
		base.Reconcile.Limit = override.Reconcile.Limit
	}
	if override.Reconcile.Concurrency != 0 {
		base.Reconcile.Concurrency = override.Reconcile.Concurrency
	}

	return base
}

// Default returns the built-in configuration.
func Default() Config {
	cfg := defaultConfig()
	_ = cfg.SetTimezone(cfg.Timezone)
	return cfg
}

func defaultConfig() Config {
	return Config{
		Timezone: defaultTimezone,
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Content: ContentConfig{
			Sources: []SourceConfig{{Name: "content", Type: "markdown", Root: "content"}},
		},
		State:   StateConfig{Path: "state/published.json"},
		Journal: JournalConfig{Driver: "none", Path: "state/journal.db"},
		Discord: DiscordConfig{
			Timeout:       25 * time.Second,
			MaxAttempts:   4,
			RetryBase:     500 * time.Millisecond,
			RetryMaxDelay: 10 * time.Second,
			RatePerSecond: 2,
		},
		Reconcile: ReconcileConfig{Limit: 20, Concurrency: 1},
	}
}
