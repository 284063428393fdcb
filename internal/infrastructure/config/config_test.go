package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.True(t, cfg.Server.Enabled)

	assert.False(t, cfg.MCP.Enabled)
	assert.Equal(t, "all", cfg.MCP.Mode)

	assert.Equal(t, 10, cfg.Pipeline.MaxPipelines)
	assert.Equal(t, 100, cfg.Pipeline.HistorySize)
	assert.Equal(t, 10, cfg.Pipeline.StatusMessages)
	assert.Equal(t, time.Second, cfg.Pipeline.StateQueryTimeout.Std())
	assert.Equal(t, 5*time.Second, cfg.Pipeline.BusPollTimeout.Std())
	assert.True(t, cfg.Pipeline.MonitorBus)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, []string{"stderr"}, cfg.Logging.Output)

	assert.Equal(t, 100, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 200, cfg.RateLimit.Burst)
	assert.True(t, cfg.RateLimit.Enabled)

	assert.NoError(t, cfg.Validate())
}

func TestLoadOrDefault(t *testing.T) {
	cfg := LoadOrDefault()

	assert.NotNil(t, cfg)
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":                "9000",
		"HOST":                "127.0.0.1",
		"HTTP_ENABLED":        "false",
		"MCP_ENABLED":         "true",
		"MCP_MODE":            "live",
		"MCP_EXCLUDE_TOOLS":   "gst_watch_pipeline,gst_stop_pipeline",
		"MAX_PIPELINES":       "4",
		"HISTORY_SIZE":        "50",
		"STATE_QUERY_TIMEOUT": "250ms",
		"BUS_POLL_TIMEOUT":    "2s",
		"MONITOR_BUS":         "false",
		"LOG_LEVEL":           "debug",
		"LOG_DEV":             "true",
		"RATE_LIMIT_RPS":      "500",
		"RATE_LIMIT_ENABLED":  "false",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.False(t, cfg.Server.Enabled)
	assert.True(t, cfg.MCP.Enabled)
	assert.Equal(t, "live", cfg.MCP.Mode)
	assert.Equal(t, []string{"gst_watch_pipeline", "gst_stop_pipeline"}, cfg.MCP.ExcludeTools)
	assert.Equal(t, 4, cfg.Pipeline.MaxPipelines)
	assert.Equal(t, 50, cfg.Pipeline.HistorySize)
	assert.Equal(t, 250*time.Millisecond, cfg.Pipeline.StateQueryTimeout.Std())
	assert.Equal(t, 2*time.Second, cfg.Pipeline.BusPollTimeout.Std())
	assert.False(t, cfg.Pipeline.MonitorBus)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, 500, cfg.RateLimit.RequestsPerSecond)
	assert.False(t, cfg.RateLimit.Enabled)

	// Untouched keys keep their defaults.
	assert.Equal(t, 10, cfg.Pipeline.StatusMessages)
	assert.Equal(t, 200, cfg.RateLimit.Burst)
}

func TestLoadTOMLFile(t *testing.T) {
	path := writeFile(t, "streamos.toml", `
[server]
port = "7000"

[mcp]
enabled = true
mode = "discovery"

[pipeline]
max_pipelines = 3
state_query_timeout = "500ms"

[logging]
output = ["stdout"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host, "keys absent from the file keep defaults")
	assert.True(t, cfg.MCP.Enabled)
	assert.Equal(t, "discovery", cfg.MCP.Mode)
	assert.Equal(t, 3, cfg.Pipeline.MaxPipelines)
	assert.Equal(t, 100, cfg.Pipeline.HistorySize)
	assert.Equal(t, 500*time.Millisecond, cfg.Pipeline.StateQueryTimeout.Std())
	assert.Equal(t, []string{"stdout"}, cfg.Logging.Output)
}

func TestLoadYAMLFile(t *testing.T) {
	path := writeFile(t, "streamos.yaml", `
pipeline:
  max_pipelines: 20
  bus_poll_timeout: 1s
engine:
  preroll_delay: 5ms
rate_limit:
  burst: 50
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Pipeline.MaxPipelines)
	assert.Equal(t, time.Second, cfg.Pipeline.BusPollTimeout.Std())
	assert.Equal(t, 5*time.Millisecond, cfg.Engine.PrerollDelay.Std())
	assert.Equal(t, 50, cfg.RateLimit.Burst)
	assert.Equal(t, 100, cfg.RateLimit.RequestsPerSecond)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, "streamos.toml", "[pipeline]\nmax_pipelines = 3\n")
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("MAX_PIPELINES", "6")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Pipeline.MaxPipelines)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "streamos.ini", "port=1"))
	assert.ErrorContains(t, err, "unsupported config file type")

	_, err = Load(writeFile(t, "bad.toml", "[pipeline]\nstate_query_timeout = \"soon\"\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero capacity", func(c *Config) { c.Pipeline.MaxPipelines = 0 }},
		{"zero history", func(c *Config) { c.Pipeline.HistorySize = 0 }},
		{"negative status messages", func(c *Config) { c.Pipeline.StatusMessages = -1 }},
		{"zero query timeout", func(c *Config) { c.Pipeline.StateQueryTimeout = 0 }},
		{"zero poll timeout", func(c *Config) { c.Pipeline.BusPollTimeout = 0 }},
		{"zero buffer duration", func(c *Config) { c.Engine.BufferDuration = 0 }},
		{"unknown mode", func(c *Config) { c.MCP.Mode = "everything" }},
		{"bad rate limit", func(c *Config) { c.RateLimit.Burst = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := Default()
	cfg.RateLimit.Enabled = false
	cfg.RateLimit.Burst = 0
	assert.NoError(t, cfg.Validate(), "rate limit values are ignored when disabled")
}

func TestInvalidEnvironmentValue(t *testing.T) {
	t.Setenv("BUS_POLL_TIMEOUT", "forever")

	_, err := Load("")
	assert.Error(t, err)
	assert.Equal(t, 5*time.Second, LoadOrDefault().Pipeline.BusPollTimeout.Std())
}

func TestDurationText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Std())

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))
}
