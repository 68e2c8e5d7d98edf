package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment" validate:"oneof=development production"`
	Server      ServerConfig    `toml:"server"`
	Batch       BatchConfig     `toml:"batch"`
	Storage     StorageConfig   `toml:"storage"`
	History     HistoryConfig   `toml:"history"`
	Logging     LoggingConfig   `toml:"logging"`
	WebSocket   WebSocketConfig `toml:"websocket"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gte=1,lte=65535"`
	Host string `toml:"host" validate:"required"`
}

// BatchConfig contains the engine configuration surface
type BatchConfig struct {
	MaxConcurrentItems int    `toml:"max_concurrent_items" validate:"gte=1"` // Max items of one job inside the processor at once
	CleanupDelay       string `toml:"cleanup_delay"`                         // e.g. "60s" - how long terminal jobs stay queryable
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// HistoryConfig controls the persisted run-history store
type HistoryConfig struct {
	Enabled       bool   `toml:"enabled"`
	Retention     string `toml:"retention"`      // e.g. "168h" - results older than this are pruned
	PruneSchedule string `toml:"prune_schedule"` // Cron schedule for the prune sweep
}

type LoggingConfig struct {
	Level  string   `toml:"level" validate:"oneof=trace debug info warn error"`
	Output []string `toml:"output"` // "stdout", "file"
}

// WebSocketConfig contains configuration for the event stream endpoint
type WebSocketConfig struct {
	// Throttle intervals for high-frequency events. Map of event type to duration string.
	// Example: {"item_processed": "250ms"}
	ThrottleIntervals map[string]string `toml:"throttle_intervals"`
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Batch: BatchConfig{
			MaxConcurrentItems: 4,
			CleanupDelay:       "60s",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		History: HistoryConfig{
			Enabled:       true,
			Retention:     "168h",        // Keep one week of run records
			PruneSchedule: "0 3 * * *",   // Daily at 03:00
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		WebSocket: WebSocketConfig{
			// Item events can arrive hundreds per second on large batches
			ThrottleIntervals: map[string]string{
				"item_processed": "250ms",
			},
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env. Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
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
	if env := os.Getenv("CONVEYOR_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("CONVEYOR_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("CONVEYOR_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Batch engine configuration
	if concurrency := os.Getenv("CONVEYOR_MAX_CONCURRENT_ITEMS"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Batch.MaxConcurrentItems = c
		}
	}
	if delay := os.Getenv("CONVEYOR_CLEANUP_DELAY"); delay != "" {
		config.Batch.CleanupDelay = delay
	}

	// Storage configuration
	if badgerPath := os.Getenv("CONVEYOR_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging configuration
	if level := os.Getenv("CONVEYOR_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("CONVEYOR_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// Validate checks structural constraints and duration fields
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Duration strings are validated by parsing since validator has no duration tag
	if _, err := time.ParseDuration(c.Batch.CleanupDelay); err != nil {
		return fmt.Errorf("invalid batch.cleanup_delay %q: %w", c.Batch.CleanupDelay, err)
	}
	if c.History.Enabled {
		if _, err := time.ParseDuration(c.History.Retention); err != nil {
			return fmt.Errorf("invalid history.retention %q: %w", c.History.Retention, err)
		}
	}
	for eventType, interval := range c.WebSocket.ThrottleIntervals {
		if _, err := time.ParseDuration(interval); err != nil {
			return fmt.Errorf("invalid websocket.throttle_intervals[%s] %q: %w", eventType, interval, err)
		}
	}

	return nil
}

// CleanupDelayDuration returns the parsed cleanup delay.
// Validate must have been called; falls back to 60s on a parse error.
func (c *Config) CleanupDelayDuration() time.Duration {
	d, err := time.ParseDuration(c.Batch.CleanupDelay)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// RetentionDuration returns the parsed history retention window.
func (c *Config) RetentionDuration() time.Duration {
	d, err := time.ParseDuration(c.History.Retention)
	if err != nil {
		return 168 * time.Hour
	}
	return d
}
