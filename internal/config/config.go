package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvAPIID    = "COURIER_API_ID"
	EnvAPIHash  = "COURIER_API_HASH"
	EnvBotToken = "COURIER_BOT_TOKEN"
	EnvPhone    = "COURIER_PHONE"

	DefaultGroupBatchSize = 10
	DefaultMetricsAddr    = "127.0.0.1:9464"
)

// LoggingConfig defines runtime logging behavior.
type LoggingConfig struct {
	Level     string `json:"level"`
	LogToFile bool   `json:"log_to_file"`
}

// TelegramConfig holds account credentials. Secrets are usually supplied
// through the environment instead of the config file.
type TelegramConfig struct {
	APIID             int     `json:"api_id"`
	APIHash           string  `json:"api_hash"`
	BotToken          string  `json:"bot_token,omitempty"`
	Phone             string  `json:"phone,omitempty"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	RequestBurst      int     `json:"request_burst"`
	RequestTimeoutSec int     `json:"request_timeout_sec"`
}

// SendingConfig tunes the outbound pipeline.
type SendingConfig struct {
	GroupBatchSize        int `json:"group_batch_size"`
	MaxReferenceRefreshes int `json:"max_reference_refreshes"`
	ArtifactWaitMillis    int `json:"artifact_wait_ms"`
	StoreTimeoutSec       int `json:"store_timeout_sec"`
}

// S3Config enables s3:// media sources.
type S3Config struct {
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	UseSSL    bool   `json:"use_ssl"`
}

// MediaConfig sizes the media worker pools and download limits. Workers
// resize images, Transfers bounds concurrent uploads and downloads.
type MediaConfig struct {
	Workers           int      `json:"workers"`
	QueueSize         int      `json:"queue_size"`
	Transfers         int      `json:"transfers"`
	UploadThreads     int      `json:"upload_threads"`
	DownloadTimeout   int      `json:"download_timeout_sec"`
	MaxDownloadSizeMB int      `json:"max_download_size_mb"`
	S3                S3Config `json:"s3"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

// NotificationConfig stores desktop notification preferences.
type NotificationConfig struct {
	Enabled bool                     `json:"enabled"`
	Events  NotificationEventsConfig `json:"events"`
}

// NotificationEventsConfig stores per-event notification toggles.
type NotificationEventsConfig struct {
	SendFailed   bool `json:"send_failed"`
	EditRollback bool `json:"edit_rollback"`
}

// AppConfig is the root persisted application configuration.
type AppConfig struct {
	Telegram      TelegramConfig     `json:"telegram"`
	Sending       SendingConfig      `json:"sending"`
	Media         MediaConfig        `json:"media"`
	Metrics       MetricsConfig      `json:"metrics"`
	Logging       LoggingConfig      `json:"logging"`
	Notifications NotificationConfig `json:"notifications"`
}

func Default() AppConfig {
	return AppConfig{
		Telegram: TelegramConfig{
			RequestsPerSecond: 10,
			RequestBurst:      10,
			RequestTimeoutSec: 60,
		},
		Sending: SendingConfig{
			GroupBatchSize:        DefaultGroupBatchSize,
			MaxReferenceRefreshes: 0,
			ArtifactWaitMillis:    500,
			StoreTimeoutSec:       5,
		},
		Media: MediaConfig{
			Workers:           0,
			Transfers:         3,
			UploadThreads:     4,
			DownloadTimeout:   120,
			MaxDownloadSizeMB: 2000,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    DefaultMetricsAddr,
		},
		Logging: LoggingConfig{
			Level:     "info",
			LogToFile: false,
		},
		Notifications: NotificationConfig{
			Enabled: true,
			Events: NotificationEventsConfig{
				SendFailed:   true,
				EditRollback: true,
			},
		},
	}
}

func Load(path string) (AppConfig, error) {
	cfg := Default()
	cleanPath := filepath.Clean(path)
	// #nosec G304 -- path is resolved by app runtime and points to user config dir.
	raw, err := os.ReadFile(cleanPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(raw, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("decode config json: %w", err)
	}

	cfg.FillMissingDefaults()

	return cfg, nil
}

// ApplyEnv overrides credentials from the environment. A .env file in the
// working directory, if present, is loaded first without replacing variables
// that are already set.
func (c *AppConfig) ApplyEnv() error {
	_ = godotenv.Load()

	if raw := strings.TrimSpace(os.Getenv(EnvAPIID)); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvAPIID, err)
		}
		c.Telegram.APIID = id
	}
	if v := strings.TrimSpace(os.Getenv(EnvAPIHash)); v != "" {
		c.Telegram.APIHash = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBotToken)); v != "" {
		c.Telegram.BotToken = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvPhone)); v != "" {
		c.Telegram.Phone = v
	}

	return nil
}

func (c *AppConfig) FillMissingDefaults() {
	def := Default()
	if c.Telegram.RequestsPerSecond < 0 {
		c.Telegram.RequestsPerSecond = 0
	}
	if c.Telegram.RequestTimeoutSec <= 0 {
		c.Telegram.RequestTimeoutSec = def.Telegram.RequestTimeoutSec
	}
	if c.Sending.GroupBatchSize <= 0 {
		c.Sending.GroupBatchSize = DefaultGroupBatchSize
	}
	if c.Sending.MaxReferenceRefreshes < 0 {
		c.Sending.MaxReferenceRefreshes = 0
	}
	if c.Sending.ArtifactWaitMillis <= 0 {
		c.Sending.ArtifactWaitMillis = def.Sending.ArtifactWaitMillis
	}
	if c.Sending.StoreTimeoutSec <= 0 {
		c.Sending.StoreTimeoutSec = def.Sending.StoreTimeoutSec
	}
	if c.Media.Workers < 0 {
		c.Media.Workers = 0
	}
	if c.Media.Transfers <= 0 {
		c.Media.Transfers = def.Media.Transfers
	}
	if c.Media.DownloadTimeout <= 0 {
		c.Media.DownloadTimeout = def.Media.DownloadTimeout
	}
	if c.Media.MaxDownloadSizeMB <= 0 {
		c.Media.MaxDownloadSizeMB = def.Media.MaxDownloadSizeMB
	}
	if strings.TrimSpace(c.Metrics.Addr) == "" {
		c.Metrics.Addr = DefaultMetricsAddr
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func (c AppConfig) Validate() error {
	if c.Telegram.APIID < 0 {
		return errors.New("telegram api id must not be negative")
	}
	if c.Telegram.APIID != 0 && strings.TrimSpace(c.Telegram.APIHash) == "" {
		return errors.New("telegram api hash is required with api id")
	}
	if c.Sending.GroupBatchSize > DefaultGroupBatchSize {
		return fmt.Errorf("group batch size must not exceed %d", DefaultGroupBatchSize)
	}
	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Addr) == "" {
		return errors.New("metrics address is required")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log level: %s", c.Logging.Level)
	}

	return nil
}

// Credentials reports whether enough is configured to reach the server.
func (c AppConfig) Credentials() error {
	if c.Telegram.APIID == 0 || strings.TrimSpace(c.Telegram.APIHash) == "" {
		return fmt.Errorf("telegram credentials missing: set %s and %s", EnvAPIID, EnvAPIHash)
	}
	return nil
}

func (s SendingConfig) ArtifactWait() time.Duration {
	return time.Duration(s.ArtifactWaitMillis) * time.Millisecond
}

func (s SendingConfig) StoreTimeout() time.Duration {
	return time.Duration(s.StoreTimeoutSec) * time.Second
}

func Save(path string, cfg AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o600); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp config: %w", err)
	}

	return nil
}
