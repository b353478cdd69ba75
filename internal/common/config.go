package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Queue       QueueConfig     `toml:"queue"`
	Logging     LoggingConfig   `toml:"logging"`
	WebSocket   WebSocketConfig `toml:"websocket"`
	BrightData  BrightDataConfig `toml:"brightdata"`
	Gemini      GeminiConfig    `toml:"gemini"`
	Claude      ClaudeConfig    `toml:"claude"`
	LLM         LLMConfig       `toml:"llm"`
	Auth        AuthConfig      `toml:"auth"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
}

type ServerConfig struct {
	Port int `toml:"port"`
	Host string `toml:"host"`
	// BaseURL is the externally reachable address used when building the
	// webhook callback URL handed to the scraping provider.
	BaseURL string `toml:"base_url"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type QueueConfig struct {
	PollInterval      string `toml:"poll_interval"`      // e.g., "1s" - how often workers poll for messages
	Concurrency       int    `toml:"concurrency"`        // Number of concurrent workers
	VisibilityTimeout string `toml:"visibility_timeout"` // e.g., "5m" - message visibility timeout for redelivery
	MaxReceive        int    `toml:"max_receive"`        // Max times a message can be received before dead-letter
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Format string   `toml:"format"` // "json" or "text"
	Output []string `toml:"output"` // "stdout", "file"
}

type WebSocketConfig struct {
	// AllowedOrigins restricts the upgrade handshake; empty allows all origins.
	AllowedOrigins []string `toml:"allowed_origins"`
	PingInterval   string   `toml:"ping_interval"` // e.g., "30s"
	WriteTimeout   string   `toml:"write_timeout"` // e.g., "10s"
}

// BrightDataConfig holds the scraping provider settings
type BrightDataConfig struct {
	APIKey        string `toml:"api_key"`
	DatasetID     string `toml:"dataset_id"`
	WebhookSecret string `toml:"webhook_secret"` // Bearer token the provider presents on callbacks
	Timeout       string `toml:"timeout"`        // e.g., "30s" - trigger request timeout
	RateLimit     string `toml:"rate_limit"`     // e.g., "1s" - minimum spacing between trigger calls
	CountryCode   string `toml:"country_code"`   // Two-letter default country for scrape sessions
}

type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Timeout     string  `toml:"timeout"`
	Temperature float64 `toml:"temperature"`
}

type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Timeout     string  `toml:"timeout"`
	Temperature float64 `toml:"temperature"`
}

type LLMConfig struct {
	DefaultProvider string `toml:"default_provider"` // "claude" or "gemini"
}

type AuthConfig struct {
	// AdminSecret guards the key-issuing endpoint. Empty disables it.
	AdminSecret string `toml:"admin_secret"`
}

// SchedulerConfig controls the stuck-job sweep
type SchedulerConfig struct {
	Enabled    bool   `toml:"enabled"`
	Schedule   string `toml:"schedule"`    // Cron schedule format
	StaleAfter string `toml:"stale_after"` // e.g., "10m" - ANALYZING jobs older than this get re-enqueued
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in scrutor.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port:    8080,
			Host:    "localhost",
			BaseURL: "http://localhost:8080",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Queue: QueueConfig{
			PollInterval:      "1s",
			Concurrency:       4,
			VisibilityTimeout: "5m",
			MaxReceive:        3,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
		WebSocket: WebSocketConfig{
			PingInterval: "30s",
			WriteTimeout: "10s",
		},
		BrightData: BrightDataConfig{
			Timeout:     "30s",
			RateLimit:   "1s",
			CountryCode: "",
		},
		Gemini: GeminiConfig{
			Model:       "gemini-2.5-flash",
			Timeout:     "120s",
			Temperature: 0.2,
		},
		Claude: ClaudeConfig{
			Model:       "claude-sonnet-4-20250514",
			MaxTokens:   8192,
			Timeout:     "120s",
			Temperature: 0.2,
		},
		LLM: LLMConfig{
			DefaultProvider: "claude",
		},
		Scheduler: SchedulerConfig{
			Enabled:    true,
			Schedule:   "0 */5 * * * *", // Every 5 minutes
			StaleAfter: "15m",
		},
	}
}

// LoadFromFile loads configuration with priority: defaults -> file -> env.
// An empty path skips the file step.
func LoadFromFile(path string) (*Config, error) {
	config := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("SCRUTOR_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("SCRUTOR_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("SCRUTOR_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if baseURL := os.Getenv("SCRUTOR_SERVER_BASE_URL"); baseURL != "" {
		config.Server.BaseURL = baseURL
	}

	if badgerPath := os.Getenv("SCRUTOR_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	if pollInterval := os.Getenv("SCRUTOR_QUEUE_POLL_INTERVAL"); pollInterval != "" {
		config.Queue.PollInterval = pollInterval
	}
	if concurrency := os.Getenv("SCRUTOR_QUEUE_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Queue.Concurrency = c
		}
	}
	if visibilityTimeout := os.Getenv("SCRUTOR_QUEUE_VISIBILITY_TIMEOUT"); visibilityTimeout != "" {
		config.Queue.VisibilityTimeout = visibilityTimeout
	}
	if maxReceive := os.Getenv("SCRUTOR_QUEUE_MAX_RECEIVE"); maxReceive != "" {
		if m, err := strconv.Atoi(maxReceive); err == nil {
			config.Queue.MaxReceive = m
		}
	}

	if level := os.Getenv("SCRUTOR_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("SCRUTOR_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("SCRUTOR_LOG_OUTPUT"); output != "" {
		parts := strings.Split(output, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		config.Logging.Output = parts
	}

	if apiKey := os.Getenv("SCRUTOR_BRIGHTDATA_API_KEY"); apiKey != "" {
		config.BrightData.APIKey = apiKey
	} else if apiKey := os.Getenv("BRIGHTDATA_API_KEY"); apiKey != "" {
		config.BrightData.APIKey = apiKey
	}
	if datasetID := os.Getenv("SCRUTOR_BRIGHTDATA_DATASET_ID"); datasetID != "" {
		config.BrightData.DatasetID = datasetID
	} else if datasetID := os.Getenv("BRIGHTDATA_DATASET_ID"); datasetID != "" {
		config.BrightData.DatasetID = datasetID
	}
	if secret := os.Getenv("SCRUTOR_WEBHOOK_SECRET"); secret != "" {
		config.BrightData.WebhookSecret = secret
	}
	if country := os.Getenv("SCRUTOR_BRIGHTDATA_COUNTRY_CODE"); country != "" {
		config.BrightData.CountryCode = country
	}

	if apiKey := os.Getenv("SCRUTOR_GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	} else if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	}
	if model := os.Getenv("SCRUTOR_GEMINI_MODEL"); model != "" {
		config.Gemini.Model = model
	}

	if apiKey := os.Getenv("SCRUTOR_CLAUDE_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	} else if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if model := os.Getenv("SCRUTOR_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}

	if provider := os.Getenv("SCRUTOR_LLM_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = provider
	}

	if adminSecret := os.Getenv("SCRUTOR_AUTH_ADMIN_SECRET"); adminSecret != "" {
		config.Auth.AdminSecret = adminSecret
	}

	if enabled := os.Getenv("SCRUTOR_SCHEDULER_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Scheduler.Enabled = e
		}
	}
	if schedule := os.Getenv("SCRUTOR_SCHEDULER_SCHEDULE"); schedule != "" {
		config.Scheduler.Schedule = schedule
	}
	if staleAfter := os.Getenv("SCRUTOR_SCHEDULER_STALE_AFTER"); staleAfter != "" {
		config.Scheduler.StaleAfter = staleAfter
	}
}

// Validate checks configuration values that would otherwise fail at runtime
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if _, err := time.ParseDuration(c.Queue.PollInterval); err != nil {
		return fmt.Errorf("invalid queue poll_interval %q: %w", c.Queue.PollInterval, err)
	}
	if _, err := time.ParseDuration(c.Queue.VisibilityTimeout); err != nil {
		return fmt.Errorf("invalid queue visibility_timeout %q: %w", c.Queue.VisibilityTimeout, err)
	}
	if c.Queue.Concurrency < 1 {
		return fmt.Errorf("queue concurrency must be at least 1, got %d", c.Queue.Concurrency)
	}
	if c.Queue.MaxReceive < 1 {
		return fmt.Errorf("queue max_receive must be at least 1, got %d", c.Queue.MaxReceive)
	}
	if c.Scheduler.Enabled {
		parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if _, err := parser.Parse(c.Scheduler.Schedule); err != nil {
			return fmt.Errorf("invalid scheduler schedule %q: %w", c.Scheduler.Schedule, err)
		}
		if _, err := time.ParseDuration(c.Scheduler.StaleAfter); err != nil {
			return fmt.Errorf("invalid scheduler stale_after %q: %w", c.Scheduler.StaleAfter, err)
		}
	}
	switch c.LLM.DefaultProvider {
	case "claude", "gemini":
	default:
		return fmt.Errorf("unknown llm default_provider %q", c.LLM.DefaultProvider)
	}
	return nil
}

// GetPollInterval returns the parsed queue poll interval
func (c *Config) GetPollInterval() time.Duration {
	d, err := time.ParseDuration(c.Queue.PollInterval)
	if err != nil {
		return time.Second
	}
	return d
}

// GetVisibilityTimeout returns the parsed queue visibility timeout
func (c *Config) GetVisibilityTimeout() time.Duration {
	d, err := time.ParseDuration(c.Queue.VisibilityTimeout)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// GetStaleAfter returns the parsed scheduler staleness cutoff
func (c *Config) GetStaleAfter() time.Duration {
	d, err := time.ParseDuration(c.Scheduler.StaleAfter)
	if err != nil {
		return 15 * time.Minute
	}
	return d
}

// WebhookURL builds the public callback URL the provider is told to notify
// for the given job.
func (c *Config) WebhookURL(jobID string) string {
	return fmt.Sprintf("%s/api/webhooks/provider?job-id=%s", strings.TrimRight(c.Server.BaseURL, "/"), jobID)
}
