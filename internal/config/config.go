// Package config loads the YAML service configuration of a tracemon
// process. Monitor definitions live in CUE files referenced by Specs.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the service configuration.
type Config struct {
	Listen   string `yaml:"listen"`
	Database string `yaml:"database"`
	Specs    string `yaml:"specs"` // CUE file or directory
	LogLevel string `yaml:"log_level"`
	Hostname string `yaml:"hostname"` // this agent's name in remote formulas

	QueueSize      int    `yaml:"queue_size"`
	KVSyncInterval string `yaml:"kv_sync_interval"` // 0 disables periodic knowledge sync

	Metrics MetricsConfig `yaml:"metrics"`
	Actors  []ActorConfig `yaml:"actors"`
	Sink    SinkConfig    `yaml:"sink"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ActorConfig names a remote agent that evaluates @name(...) sub-formulas.
type ActorConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// SinkConfig configures external violation export.
type SinkConfig struct {
	Postgres PostgresSinkConfig `yaml:"postgres"`
}

// PostgresSinkConfig exports violations to a PostgreSQL table.
// An empty DSN disables the sink.
type PostgresSinkConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// ValidLogLevels lists the accepted log levels.
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:         "127.0.0.1:8700",
		Database:       "tracemon.db",
		Specs:          "monitors",
		LogLevel:       "info",
		Hostname:       defaultHostname(),
		QueueSize:      1024,
		KVSyncInterval: "30s",
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Sink: SinkConfig{
			Postgres: PostgresSinkConfig{Table: "tracemon_violations"},
		},
	}
}

func defaultHostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "localhost"
	}
	return h
}

// Load loads configuration from a YAML file, applies defaults for missing
// fields and environment overrides, then validates the result. A missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyDefaults fills fields a YAML file explicitly emptied.
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Database == "" {
		c.Database = def.Database
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.Hostname == "" {
		c.Hostname = def.Hostname
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = def.Metrics.Path
	}
	if c.Sink.Postgres.Table == "" {
		c.Sink.Postgres.Table = def.Sink.Postgres.Table
	}
	c.LogLevel = strings.ToLower(c.LogLevel)
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TRACEMON_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("TRACEMON_DB"); v != "" {
		c.Database = v
	}
	if v := os.Getenv("TRACEMON_SPECS"); v != "" {
		c.Specs = v
	}
	// Keep the DSN out of config files.
	if v := os.Getenv("TRACEMON_PG_DSN"); v != "" {
		c.Sink.Postgres.DSN = v
	}
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	valid := false
	for _, l := range ValidLogLevels {
		if c.LogLevel == l {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid log_level: %s (valid: %v)", c.LogLevel, ValidLogLevels)
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("queue_size must not be negative, got %d", c.QueueSize)
	}
	if _, err := c.GetKVSyncInterval(); err != nil {
		return err
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
	}
	if !isIdentifier(c.Sink.Postgres.Table) {
		return fmt.Errorf("invalid sink.postgres.table: %q", c.Sink.Postgres.Table)
	}

	seen := make(map[string]bool)
	for i, a := range c.Actors {
		if a.Name == "" {
			return fmt.Errorf("actors[%d]: name is required", i)
		}
		if seen[a.Name] {
			return fmt.Errorf("actors[%d]: duplicate actor %q", i, a.Name)
		}
		seen[a.Name] = true
		u, err := url.Parse(a.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("actors[%d] %s: invalid url %q", i, a.Name, a.URL)
		}
	}
	return nil
}

// GetKVSyncInterval parses KVSyncInterval. Empty or "0" disables the sync.
func (c *Config) GetKVSyncInterval() (time.Duration, error) {
	if c.KVSyncInterval == "" || c.KVSyncInterval == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.KVSyncInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid kv_sync_interval %q: %w", c.KVSyncInterval, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("kv_sync_interval must not be negative, got %s", d)
	}
	return d, nil
}

// Actor returns the actor with the given name.
func (c *Config) Actor(name string) (ActorConfig, bool) {
	for _, a := range c.Actors {
		if a.Name == name {
			return a, true
		}
	}
	return ActorConfig{}, false
}

// isIdentifier accepts unquoted SQL identifiers, optionally schema-qualified.
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, part := range strings.Split(s, ".") {
		if part == "" {
			return false
		}
		for i, r := range part {
			switch {
			case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			case r >= '0' && r <= '9' && i > 0:
			default:
				return false
			}
		}
	}
	return true
}
