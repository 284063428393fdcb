package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `toml:"server" yaml:"server"`
	MCP       MCPConfig       `toml:"mcp" yaml:"mcp"`
	Pipeline  PipelineConfig  `toml:"pipeline" yaml:"pipeline"`
	Engine    EngineConfig    `toml:"engine" yaml:"engine"`
	Logging   LogConfig       `toml:"logging" yaml:"logging"`
	RateLimit RateLimitConfig `toml:"rate_limit" yaml:"rate_limit"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port    string `envconfig:"PORT" toml:"port" yaml:"port"`
	Host    string `envconfig:"HOST" toml:"host" yaml:"host"`
	Enabled bool   `envconfig:"HTTP_ENABLED" toml:"enabled" yaml:"enabled"`
}

// MCPConfig holds the MCP tool server configuration.
type MCPConfig struct {
	Enabled      bool     `envconfig:"MCP_ENABLED" toml:"enabled" yaml:"enabled"`
	Mode         string   `envconfig:"MCP_MODE" toml:"mode" yaml:"mode"`
	Tools        []string `envconfig:"MCP_TOOLS" toml:"tools" yaml:"tools"`
	ExcludeTools []string `envconfig:"MCP_EXCLUDE_TOOLS" toml:"exclude_tools" yaml:"exclude_tools"`
}

// PipelineConfig bounds the pipeline registry.
type PipelineConfig struct {
	MaxPipelines      int      `envconfig:"MAX_PIPELINES" toml:"max_pipelines" yaml:"max_pipelines"`
	HistorySize       int      `envconfig:"HISTORY_SIZE" toml:"history_size" yaml:"history_size"`
	StatusMessages    int      `envconfig:"STATUS_MESSAGES" toml:"status_messages" yaml:"status_messages"`
	StateQueryTimeout Duration `envconfig:"STATE_QUERY_TIMEOUT" toml:"state_query_timeout" yaml:"state_query_timeout"`
	BusPollTimeout    Duration `envconfig:"BUS_POLL_TIMEOUT" toml:"bus_poll_timeout" yaml:"bus_poll_timeout"`
	MonitorBus        bool     `envconfig:"MONITOR_BUS" toml:"monitor_bus" yaml:"monitor_bus"`
}

// EngineConfig tunes the simulated execution engine.
type EngineConfig struct {
	PrerollDelay   Duration `envconfig:"ENGINE_PREROLL_DELAY" toml:"preroll_delay" yaml:"preroll_delay"`
	BufferDuration Duration `envconfig:"ENGINE_BUFFER_DURATION" toml:"buffer_duration" yaml:"buffer_duration"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string   `envconfig:"LOG_LEVEL" toml:"level" yaml:"level"`
	Development bool     `envconfig:"LOG_DEV" toml:"development" yaml:"development"`
	Output      []string `envconfig:"LOG_OUTPUT" toml:"output" yaml:"output"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" toml:"requests_per_second" yaml:"requests_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" toml:"burst" yaml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" toml:"enabled" yaml:"enabled"`
}

// Duration is a time.Duration written as a string ("1s", "250ms") in files and env.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// Modes accepted for MCP.Mode.
var Modes = []string{"all", "live", "dev", "discovery"}

// Load builds configuration from defaults, then the config file at path (or
// CONFIG_FILE when path is empty), then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from the environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load("")
	if err != nil {
		return Default()
	}
	return cfg
}

// LoadFile overlays the keys present in a .toml, .yaml or .yml file.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = toml.Unmarshal(data, c)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	default:
		return fmt.Errorf("unsupported config file type %q", ext)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Pipeline.MaxPipelines <= 0 {
		errs = append(errs, fmt.Errorf("max_pipelines must be positive, got %d", c.Pipeline.MaxPipelines))
	}
	if c.Pipeline.HistorySize <= 0 {
		errs = append(errs, fmt.Errorf("history_size must be positive, got %d", c.Pipeline.HistorySize))
	}
	if c.Pipeline.StatusMessages < 0 {
		errs = append(errs, fmt.Errorf("status_messages must not be negative, got %d", c.Pipeline.StatusMessages))
	}
	if c.Pipeline.StateQueryTimeout <= 0 {
		errs = append(errs, errors.New("state_query_timeout must be positive"))
	}
	if c.Pipeline.BusPollTimeout <= 0 {
		errs = append(errs, errors.New("bus_poll_timeout must be positive"))
	}
	if c.Engine.PrerollDelay < 0 || c.Engine.BufferDuration <= 0 {
		errs = append(errs, errors.New("engine timings must be positive"))
	}
	if !validMode(c.MCP.Mode) {
		errs = append(errs, fmt.Errorf("unknown mcp mode %q (expected one of %s)", c.MCP.Mode, strings.Join(Modes, ", ")))
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		errs = append(errs, errors.New("rate limit values must be positive when enabled"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func validMode(mode string) bool {
	for _, m := range Modes {
		if m == mode {
			return true
		}
	}
	return false
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:    "8000",
			Host:    "0.0.0.0",
			Enabled: true,
		},
		MCP: MCPConfig{
			Enabled: false,
			Mode:    "all",
		},
		Pipeline: PipelineConfig{
			MaxPipelines:      10,
			HistorySize:       100,
			StatusMessages:    10,
			StateQueryTimeout: Duration(time.Second),
			BusPollTimeout:    Duration(5 * time.Second),
			MonitorBus:        true,
		},
		Engine: EngineConfig{
			PrerollDelay:   Duration(50 * time.Millisecond),
			BufferDuration: Duration(10 * time.Millisecond),
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
			Output:      []string{"stderr"},
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
