package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/john/prayerlog/internal/detect"
	"github.com/john/prayerlog/internal/kick"
	"github.com/john/prayerlog/internal/processor"
	"github.com/john/prayerlog/internal/youtube"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Source platforms
const (
	PlatformYouTube = "youtube"
	PlatformTwitch  = "twitch"
	PlatformKick    = "kick"
)

// Sink types
const (
	SinkSheets   = "sheets"
	SinkXLSX     = "xlsx"
	SinkJSONL    = "jsonl"
	SinkSQLite   = "sqlite"
	SinkTelegram = "telegram"
)

// Config holds the application configuration
type Config struct {
	Source  SourceConfig         `yaml:"source"`
	Sink    SinkConfig           `yaml:"sink"`
	Notify  NotifyConfig         `yaml:"notify"`
	Archive ArchiveConfig        `yaml:"archive"`
	Monitor MonitorConfig        `yaml:"monitor"`
	Health  HealthConfig         `yaml:"health"`
	Logging LoggingConfig        `yaml:"logging"`
	Lexicon detect.LexiconConfig `yaml:"lexicon"`
}

// SourceConfig selects and configures the chat platform
type SourceConfig struct {
	Platform   string        `yaml:"platform" env:"PRAYERLOG_PLATFORM"`
	BufferSize int           `yaml:"buffer_size"` // Pending messages kept for push-based platforms
	YouTube    YouTubeConfig `yaml:"youtube"`
	Twitch     TwitchConfig  `yaml:"twitch"`
	Kick       KickConfig    `yaml:"kick"`
}

// YouTubeConfig holds YouTube Data API configuration
type YouTubeConfig struct {
	VideoID       string `yaml:"video_id" env:"YOUTUBE_VIDEO_ID"` // Empty means the channel's active broadcast
	ClientSecrets string `yaml:"client_secrets" env:"YOUTUBE_CLIENT_SECRETS"`
	TokenFile     string `yaml:"token_file" env:"YOUTUBE_TOKEN_FILE"`
}

// TwitchConfig holds Twitch-specific configuration
type TwitchConfig struct {
	Username string   `yaml:"username" env:"TWITCH_USERNAME"`
	OAuth    string   `yaml:"oauth" env:"TWITCH_OAUTH"`
	Channels []string `yaml:"channels" env:"TWITCH_CHANNELS" envSeparator:","`
}

// KickConfig holds Kick-specific configuration
type KickConfig struct {
	Channels []kick.ChannelConfig `yaml:"channels"`
}

// SinkConfig selects the primary sink and any secondary sinks
type SinkConfig struct {
	Type   string       `yaml:"type" env:"PRAYERLOG_SINK"`
	Also   []string     `yaml:"also" env:"PRAYERLOG_SINK_ALSO" envSeparator:","`
	Sheets SheetsConfig `yaml:"sheets"`
	XLSX   XLSXConfig   `yaml:"xlsx"`
	JSONL  JSONLConfig  `yaml:"jsonl"`
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// SheetsConfig holds Google Sheets configuration
type SheetsConfig struct {
	Spreadsheet string        `yaml:"spreadsheet" env:"PRAYERLOG_SHEET"` // URL, key or title
	WritePause  time.Duration `yaml:"write_pause"`
}

// XLSXConfig holds local workbook configuration
type XLSXConfig struct {
	Path       string `yaml:"path" env:"PRAYERLOG_XLSX"`
	FullLayout bool   `yaml:"full_layout"`
}

// JSONLConfig holds JSONL file configuration
type JSONLConfig struct {
	Dir             string `yaml:"dir"`
	Prefix          string `yaml:"prefix"`
	RotateMinutes   int    `yaml:"rotate_minutes"`
	RotateMegabytes int    `yaml:"rotate_megabytes"`
}

// SQLiteConfig holds SQLite configuration
type SQLiteConfig struct {
	Path string `yaml:"path" env:"PRAYERLOG_DB"`
}

// NotifyConfig holds notification settings
type NotifyConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	Token   string `yaml:"token" env:"TELEGRAM_BOT_TOKEN"`
	ChatID  int64  `yaml:"chat_id" env:"TELEGRAM_CHAT_ID"`
	MinTier string `yaml:"min_tier"`
}

// ArchiveConfig holds S3 archive configuration for JSONL files
type ArchiveConfig struct {
	Enabled         bool   `yaml:"enabled" env:"ARCHIVE_ENABLED"`
	Bucket          string `yaml:"bucket" env:"S3_BUCKET"`
	Region          string `yaml:"region" env:"AWS_REGION"`
	Prefix          string `yaml:"prefix"`
	Endpoint        string `yaml:"endpoint" env:"S3_ENDPOINT"`                   // For S3-compatible services
	RoleARN         string `yaml:"role_arn" env:"AWS_ROLE_ARN"`                  // Web identity federation
	TokenFile       string `yaml:"token_file" env:"AWS_WEB_IDENTITY_TOKEN_FILE"` // Web identity token
	AccessKeyID     string `yaml:"access_key_id" env:"S3_ACCESS_KEY_ID"`         // Static credentials
	SecretAccessKey string `yaml:"secret_access_key" env:"S3_SECRET_ACCESS_KEY"` // Static credentials
	DeleteAfter     bool   `yaml:"delete_after_upload"`
	MaxRetries      int    `yaml:"max_retries"`
	RescanSchedule  string `yaml:"rescan_schedule"`
	QueueSize       int    `yaml:"queue_size"`
}

// MonitorConfig holds polling loop configuration
type MonitorConfig struct {
	MinInterval time.Duration `yaml:"min_interval" env:"PRAYERLOG_INTERVAL"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	// TimestampOffset shifts UTC timestamps before formatting, e.g. "-3h"
	TimestampOffset string `yaml:"timestamp_offset" env:"PRAYERLOG_TIMESTAMP_OFFSET"`
}

// HealthConfig holds health server configuration
type HealthConfig struct {
	Enabled bool   `yaml:"enabled" env:"HEALTH_ENABLED"`
	Addr    string `yaml:"addr" env:"HEALTH_ADDR"`
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"` // text or json
	File   string `yaml:"file" env:"LOG_FILE"`     // Also log to this file when set
}

// Load reads and validates the configuration
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read loads configuration from an optional YAML file, a .env file in the
// working directory and the environment, in increasing precedence, and
// applies defaults without validating
func Read(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	c.Source.Platform = strings.ToLower(strings.TrimSpace(c.Source.Platform))
	c.Sink.Type = strings.ToLower(strings.TrimSpace(c.Sink.Type))
	for i, s := range c.Sink.Also {
		c.Sink.Also[i] = strings.ToLower(strings.TrimSpace(s))
	}

	if c.Source.Platform == "" {
		c.Source.Platform = PlatformYouTube
	}
	if c.Source.BufferSize == 0 {
		c.Source.BufferSize = 1000
	}
	if c.Source.YouTube.ClientSecrets == "" {
		c.Source.YouTube.ClientSecrets = "client_secret.json"
	}
	if c.Source.YouTube.TokenFile == "" {
		c.Source.YouTube.TokenFile = youtube.DefaultTokenPath()
	}

	if c.Sink.Type == "" {
		c.Sink.Type = SinkSheets
	}
	if c.Sink.Sheets.WritePause == 0 {
		c.Sink.Sheets.WritePause = 5 * time.Second
	}
	if c.Sink.XLSX.Path == "" {
		c.Sink.XLSX.Path = "pedidos_oracao.xlsx"
	}
	if c.Sink.JSONL.Dir == "" {
		c.Sink.JSONL.Dir = "./data"
	}
	if c.Sink.JSONL.Prefix == "" {
		c.Sink.JSONL.Prefix = "prayers"
	}
	if c.Sink.JSONL.RotateMinutes == 0 {
		c.Sink.JSONL.RotateMinutes = 60
	}
	if c.Sink.JSONL.RotateMegabytes == 0 {
		c.Sink.JSONL.RotateMegabytes = 100
	}
	if c.Sink.SQLite.Path == "" {
		c.Sink.SQLite.Path = "./data/prayers.db"
	}

	if c.Notify.Telegram.MinTier == "" {
		c.Notify.Telegram.MinTier = detect.TierHigh.String()
	}

	if c.Archive.MaxRetries == 0 {
		c.Archive.MaxRetries = 3
	}
	if c.Archive.RescanSchedule == "" {
		c.Archive.RescanSchedule = "*/15 * * * *"
	}
	if c.Archive.QueueSize == 0 {
		c.Archive.QueueSize = 100
	}

	if c.Monitor.MinInterval == 0 {
		c.Monitor.MinInterval = 10 * time.Second
	}
	if c.Monitor.RetryDelay == 0 {
		c.Monitor.RetryDelay = 5 * time.Second
	}
	if c.Monitor.TimestampOffset == "" {
		c.Monitor.TimestampOffset = processor.DefaultOffset.String()
	}

	if c.Health.Addr == "" {
		c.Health.Addr = ":8080"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	defaults := detect.DefaultLexiconConfig()
	if len(c.Lexicon.Primary) == 0 {
		c.Lexicon.Primary = defaults.Primary
	}
	if len(c.Lexicon.Secondary) == 0 {
		c.Lexicon.Secondary = defaults.Secondary
	}
	if len(c.Lexicon.Contextual) == 0 {
		c.Lexicon.Contextual = defaults.Contextual
	}
	if len(c.Lexicon.Patterns) == 0 {
		c.Lexicon.Patterns = defaults.Patterns
	}
}

// Validate checks that the selected platform and sinks are fully configured
func (c *Config) Validate() error {
	switch c.Source.Platform {
	case PlatformYouTube:
	case PlatformTwitch:
		if len(c.Source.Twitch.Channels) == 0 {
			return fmt.Errorf("at least one twitch channel is required")
		}
		if c.Source.Twitch.Username != "" && c.Source.Twitch.OAuth == "" {
			return fmt.Errorf("twitch.oauth is required with twitch.username (or set TWITCH_OAUTH env var)")
		}
	case PlatformKick:
		if len(c.Source.Kick.Channels) == 0 {
			return fmt.Errorf("at least one kick channel is required")
		}
	default:
		return fmt.Errorf("unknown source.platform %q", c.Source.Platform)
	}

	for _, s := range c.SinkTypes() {
		if err := c.validateSink(s); err != nil {
			return err
		}
	}
	if c.Sink.Type == SinkTelegram {
		return fmt.Errorf("telegram cannot be the primary sink; list it under sink.also")
	}

	if c.Archive.Enabled {
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket is required")
		}
		if c.Archive.Region == "" {
			return fmt.Errorf("archive.region is required")
		}
		if c.Archive.RoleARN != "" && c.Archive.TokenFile == "" {
			return fmt.Errorf("archive.token_file is required with archive.role_arn")
		}
		if c.Archive.AccessKeyID != "" && c.Archive.SecretAccessKey == "" {
			return fmt.Errorf("archive.secret_access_key is required when using access_key_id")
		}
	}

	if c.Monitor.MinInterval < 0 || c.Monitor.RetryDelay < 0 {
		return fmt.Errorf("monitor intervals must not be negative")
	}
	if _, err := time.ParseDuration(c.Monitor.TimestampOffset); err != nil {
		return fmt.Errorf("monitor.timestamp_offset: %w", err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

func (c *Config) validateSink(name string) error {
	switch name {
	case SinkSheets:
		if strings.TrimSpace(c.Sink.Sheets.Spreadsheet) == "" {
			return fmt.Errorf("sink.sheets.spreadsheet is required (or set PRAYERLOG_SHEET env var)")
		}
	case SinkXLSX, SinkJSONL, SinkSQLite:
	case SinkTelegram:
		if c.Notify.Telegram.Token == "" || c.Notify.Telegram.ChatID == 0 {
			return fmt.Errorf("notify.telegram.token and chat_id are required for the telegram sink")
		}
		if _, ok := detect.ParseTier(c.Notify.Telegram.MinTier); !ok {
			return fmt.Errorf("unknown notify.telegram.min_tier %q", c.Notify.Telegram.MinTier)
		}
	default:
		return fmt.Errorf("unknown sink %q", name)
	}
	return nil
}

// SinkTypes returns the primary sink followed by the distinct secondary sinks
func (c *Config) SinkTypes() []string {
	types := []string{c.Sink.Type}
	for _, s := range c.Sink.Also {
		s = strings.TrimSpace(s)
		if s != "" && !slices.Contains(types, s) {
			types = append(types, s)
		}
	}
	return types
}

// TimestampOffset returns the parsed timestamp offset
func (c *Config) TimestampOffset() time.Duration {
	d, err := time.ParseDuration(c.Monitor.TimestampOffset)
	if err != nil {
		return processor.DefaultOffset
	}
	return d
}

// TelegramMinTier returns the parsed notification threshold
func (c *Config) TelegramMinTier() detect.Tier {
	tier, _ := detect.ParseTier(c.Notify.Telegram.MinTier)
	return tier
}

// LogLevel returns the parsed logging level
func (c *Config) LogLevel() slog.Level {
	var level slog.Level
	level.UnmarshalText([]byte(c.Logging.Level))
	return level
}
