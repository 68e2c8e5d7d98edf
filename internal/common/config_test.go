package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	assert.Equal(t, "development", config.Environment)
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, 4, config.Batch.MaxConcurrentItems)
	assert.Equal(t, "60s", config.Batch.CleanupDelay)
	assert.True(t, config.History.Enabled)

	require.NoError(t, config.Validate())
}

func TestLoadFromFilesOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conveyor.toml")
	content := `
environment = "production"

[server]
port = 9090
host = "0.0.0.0"

[batch]
max_concurrent_items = 8
cleanup_delay = "30s"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config, err := LoadFromFiles(path)
	require.NoError(t, err)

	assert.Equal(t, "production", config.Environment)
	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, 8, config.Batch.MaxConcurrentItems)
	assert.Equal(t, 30*time.Second, config.CleanupDelayDuration())
	// Untouched sections keep defaults
	assert.Equal(t, "info", config.Logging.Level)
}

func TestLoadFromFilesMissingFile(t *testing.T) {
	_, err := LoadFromFiles(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CONVEYOR_SERVER_PORT", "7070")
	t.Setenv("CONVEYOR_MAX_CONCURRENT_ITEMS", "16")
	t.Setenv("CONVEYOR_CLEANUP_DELAY", "90s")
	t.Setenv("CONVEYOR_LOG_LEVEL", "debug")

	config, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, 7070, config.Server.Port)
	assert.Equal(t, 16, config.Batch.MaxConcurrentItems)
	assert.Equal(t, 90*time.Second, config.CleanupDelayDuration())
	assert.Equal(t, "debug", config.Logging.Level)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero concurrency", func(c *Config) { c.Batch.MaxConcurrentItems = 0 }},
		{"bad cleanup delay", func(c *Config) { c.Batch.CleanupDelay = "soon" }},
		{"bad environment", func(c *Config) { c.Environment = "staging" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"bad retention", func(c *Config) { c.History.Retention = "forever" }},
		{"bad throttle interval", func(c *Config) { c.WebSocket.ThrottleIntervals = map[string]string{"item_processed": "fast"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewDefaultConfig()
			tt.mutate(config)
			assert.Error(t, config.Validate())
		})
	}
}

func TestDurationFallbacks(t *testing.T) {
	config := NewDefaultConfig()
	config.Batch.CleanupDelay = "garbage"
	config.History.Retention = "garbage"

	assert.Equal(t, 60*time.Second, config.CleanupDelayDuration())
	assert.Equal(t, 168*time.Hour, config.RetentionDuration())
}
