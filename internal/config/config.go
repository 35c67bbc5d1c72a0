// ABOUTME: Configuration loading and parsing for kctx
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete kctx configuration
type Config struct {
	Agent     AgentConfig     `yaml:"agent"`
	Store     StoreConfig     `yaml:"store"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Query     QueryConfig     `yaml:"query"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// AgentConfig holds the opencode agent server configuration
type AgentConfig struct {
	// URL is the base address of the opencode server
	URL string `yaml:"url"`
	// Provider/Model select a default model; empty means server default
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// StoreConfig holds local database configuration
type StoreConfig struct {
	Path string `yaml:"path"`
}

// WorkspaceConfig holds repository manifest and clone cache configuration
type WorkspaceConfig struct {
	// Manifest is the path to the kctx.toml repository manifest
	Manifest string `yaml:"manifest"`
	// CacheRoot is where clone-backed repositories are materialized
	CacheRoot string `yaml:"cache_root"`
}

// QueryConfig holds the engine's timing knobs
type QueryConfig struct {
	OverallTimeout  time.Duration `yaml:"-"`
	FetchTimeout    time.Duration `yaml:"-"`
	PollInterval    time.Duration `yaml:"-"`
	HeartbeatWindow time.Duration `yaml:"-"`

	MaxPollAttempts          int `yaml:"max_poll_attempts"`
	SummaryTimeoutMultiplier int `yaml:"summary_timeout_multiplier"`

	// Raw string values for YAML unmarshaling
	OverallTimeoutRaw  string `yaml:"overall_timeout"`
	FetchTimeoutRaw    string `yaml:"fetch_timeout"`
	PollIntervalRaw    string `yaml:"poll_interval"`
	HeartbeatWindowRaw string `yaml:"heartbeat_window"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			URL: "http://localhost:4096",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Agent.URL == "" {
		return fmt.Errorf("agent.url is required")
	}

	// A provider without a model (or vice versa) cannot be sent to the server
	if (c.Agent.Provider == "") != (c.Agent.Model == "") {
		return fmt.Errorf("agent.provider and agent.model must be set together")
	}

	if c.Query.MaxPollAttempts < 0 {
		return fmt.Errorf("query.max_poll_attempts must not be negative")
	}
	if c.Query.SummaryTimeoutMultiplier < 0 {
		return fmt.Errorf("query.summary_timeout_multiplier must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Query.OverallTimeoutRaw != "" {
		cfg.Query.OverallTimeout, err = time.ParseDuration(cfg.Query.OverallTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing overall_timeout %q: %w", cfg.Query.OverallTimeoutRaw, err)
		}
	}

	if cfg.Query.FetchTimeoutRaw != "" {
		cfg.Query.FetchTimeout, err = time.ParseDuration(cfg.Query.FetchTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing fetch_timeout %q: %w", cfg.Query.FetchTimeoutRaw, err)
		}
	}

	if cfg.Query.PollIntervalRaw != "" {
		cfg.Query.PollInterval, err = time.ParseDuration(cfg.Query.PollIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing poll_interval %q: %w", cfg.Query.PollIntervalRaw, err)
		}
	}

	if cfg.Query.HeartbeatWindowRaw != "" {
		cfg.Query.HeartbeatWindow, err = time.ParseDuration(cfg.Query.HeartbeatWindowRaw)
		if err != nil {
			return fmt.Errorf("parsing heartbeat_window %q: %w", cfg.Query.HeartbeatWindowRaw, err)
		}
	}

	return nil
}
