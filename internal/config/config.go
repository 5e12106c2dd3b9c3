package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all client configuration.
// Values come from an optional YAML file, overridden by environment
// variables, with sensible defaults for everything except the server URL.
//
// Environment Variables:
// Server:
// - PDF2CSV_BASE_URL: Base URL of the conversion service (required)
// - PDF2CSV_HTTP_TIMEOUT: Request timeout in seconds (default: 30)
//
// Upload:
// - PDF2CSV_MAX_UPLOAD_MB: Upload size cap in MiB (default: 20)
// - PDF2CSV_ACCEPTED_TYPES: Comma-separated accepted MIME types
//   (default: application/pdf,image/jpeg,image/png)
//
// Tracking:
// - PDF2CSV_POLL_INTERVAL: Poll interval in seconds (default: 5)
// - PDF2CSV_POLL_MAX_ATTEMPTS: Poll attempt ceiling, 0 = unbounded (default: 60)
// - PDF2CSV_PUSH_MAX_RECONNECTS: SSE reconnect cap (default: 3)
// - PDF2CSV_PUSH_BACKOFF_MS: SSE reconnect backoff base in ms (default: 1000)
//
// Local store:
// - PDF2CSV_STORE_PATH: SQLite database path (default: ~/.pdf2csv/jobs.db)
// - PDF2CSV_MAX_JOBS: Recent-job index capacity (default: 10)
// - PDF2CSV_JOB_TTL_HOURS: Local record retention in hours (default: 24)
// - PDF2CSV_SWEEP_CRON: Sweep schedule for watch mode (default: "@hourly")
//
// Output:
// - PDF2CSV_OUTPUT_DIR: Directory for downloaded CSV files (default: ".")
// - PDF2CSV_LOG_LEVEL: debug|info|warn|error (default: info)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upload   UploadConfig   `yaml:"upload"`
	Poll     PollConfig     `yaml:"poll"`
	Push     PushConfig     `yaml:"push"`
	Store    StoreConfig    `yaml:"store"`
	Download DownloadConfig `yaml:"download"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	BaseURL        string `yaml:"baseURL"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

// UploadConfig bounds client-side validation before any network call.
// The accepted type set is deliberately configuration, not a constant.
type UploadConfig struct {
	MaxUploadMB   int      `yaml:"maxUploadMB"`
	AcceptedTypes []string `yaml:"acceptedTypes"`
}

type PollConfig struct {
	IntervalSeconds int `yaml:"intervalSeconds"`
	// MaxAttempts bounds the fallback poller; 0 keeps polling while the
	// job is still processing.
	MaxAttempts int `yaml:"maxAttempts"`
}

type PushConfig struct {
	MaxReconnects int `yaml:"maxReconnects"`
	BackoffBaseMs int `yaml:"backoffBaseMs"`
}

type StoreConfig struct {
	Path        string `yaml:"path"`
	MaxJobs     int    `yaml:"maxJobs"`
	JobTTLHours int    `yaml:"jobTTLHours"`
	SweepCron   string `yaml:"sweepCron"`
}

type DownloadConfig struct {
	OutputDir string `yaml:"outputDir"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func (c ServerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c UploadConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) * 1024 * 1024
}

func (c PollConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

func (c PushConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseMs) * time.Millisecond
}

func (c StoreConfig) JobTTL() time.Duration {
	return time.Duration(c.JobTTLHours) * time.Hour
}

// Option is a function type for configuring Config
type Option func(*Config)

// Load builds a Config from defaults, an optional YAML file, environment
// overrides, and options, in that order. An empty path skips the file.
func Load(path string, opts ...Option) (*Config, error) {
	config := defaults()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config file: %w", err)
		}
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(config); err != nil {
			return nil, fmt.Errorf("decode config file: %w", err)
		}
	}

	applyEnv(config)

	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:        "",
			TimeoutSeconds: 30,
		},
		Upload: UploadConfig{
			MaxUploadMB:   20,
			AcceptedTypes: []string{"application/pdf", "image/jpeg", "image/png"},
		},
		Poll: PollConfig{
			IntervalSeconds: 5,
			MaxAttempts:     60,
		},
		Push: PushConfig{
			MaxReconnects: 3,
			BackoffBaseMs: 1000,
		},
		Store: StoreConfig{
			Path:        defaultStorePath(),
			MaxJobs:     10,
			JobTTLHours: 24,
			SweepCron:   "@hourly",
		},
		Download: DownloadConfig{
			OutputDir: ".",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func applyEnv(c *Config) {
	c.Server.BaseURL = getEnvString("PDF2CSV_BASE_URL", c.Server.BaseURL)
	c.Server.TimeoutSeconds = getEnvInt("PDF2CSV_HTTP_TIMEOUT", c.Server.TimeoutSeconds)

	c.Upload.MaxUploadMB = getEnvInt("PDF2CSV_MAX_UPLOAD_MB", c.Upload.MaxUploadMB)
	if raw := os.Getenv("PDF2CSV_ACCEPTED_TYPES"); raw != "" {
		types := make([]string, 0)
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, t)
			}
		}
		if len(types) > 0 {
			c.Upload.AcceptedTypes = types
		}
	}

	c.Poll.IntervalSeconds = getEnvInt("PDF2CSV_POLL_INTERVAL", c.Poll.IntervalSeconds)
	c.Poll.MaxAttempts = getEnvInt("PDF2CSV_POLL_MAX_ATTEMPTS", c.Poll.MaxAttempts)

	c.Push.MaxReconnects = getEnvInt("PDF2CSV_PUSH_MAX_RECONNECTS", c.Push.MaxReconnects)
	c.Push.BackoffBaseMs = getEnvInt("PDF2CSV_PUSH_BACKOFF_MS", c.Push.BackoffBaseMs)

	c.Store.Path = getEnvString("PDF2CSV_STORE_PATH", c.Store.Path)
	c.Store.MaxJobs = getEnvInt("PDF2CSV_MAX_JOBS", c.Store.MaxJobs)
	c.Store.JobTTLHours = getEnvInt("PDF2CSV_JOB_TTL_HOURS", c.Store.JobTTLHours)
	c.Store.SweepCron = getEnvString("PDF2CSV_SWEEP_CRON", c.Store.SweepCron)

	c.Download.OutputDir = getEnvString("PDF2CSV_OUTPUT_DIR", c.Download.OutputDir)
	c.Log.Level = getEnvString("PDF2CSV_LOG_LEVEL", c.Log.Level)
}

// validate checks that required configuration is properly set.
func (c *Config) validate() error {
	if strings.TrimSpace(c.Server.BaseURL) == "" {
		return fmt.Errorf("PDF2CSV_BASE_URL is required")
	}
	if c.Upload.MaxUploadMB <= 0 {
		return fmt.Errorf("upload size cap must be positive")
	}
	if len(c.Upload.AcceptedTypes) == 0 {
		return fmt.Errorf("at least one accepted MIME type is required")
	}
	if c.Poll.IntervalSeconds <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.Store.MaxJobs <= 0 {
		return fmt.Errorf("job index capacity must be positive")
	}
	return nil
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "jobs.db"
	}
	return home + "/.pdf2csv/jobs.db"
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
