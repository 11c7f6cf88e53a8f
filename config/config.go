// Package config holds the gateway's process configuration, the provider
// interface through which the core reads users, targets and credentials,
// and the reload watcher that drives re-authorization of live sessions.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration with YAML string parsing ("10m", "24h").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// StorageConfig selects and parameterizes the record store backend.
type StorageConfig struct {
	// Backend is "bbolt", "memory" or "postgres".
	Backend string `yaml:"backend"`
	// Path is the database file for the bbolt backend.
	Path string `yaml:"path,omitempty"`
	// DSN is the lib/pq connection string for the postgres backend.
	DSN string `yaml:"dsn,omitempty"`
}

// ListenerConfig is the bind address contract for one protocol listener.
// The wire protocols themselves are implemented outside the core.
type ListenerConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen,omitempty"`
}

// AdminConfig configures the administrative API.
type AdminConfig struct {
	Listen string `yaml:"listen"`
	// Token is the static bearer token accepted by the admin API in
	// addition to user API tokens.
	Token string `yaml:"token,omitempty"`
}

// Config is the gateway's process-wide configuration file.
type Config struct {
	LogLevel string        `yaml:"log_level,omitempty"`
	Storage  StorageConfig `yaml:"storage"`
	Admin    AdminConfig   `yaml:"admin"`

	SSH      ListenerConfig `yaml:"ssh,omitempty"`
	HTTP     ListenerConfig `yaml:"http,omitempty"`
	MySQL    ListenerConfig `yaml:"mysql,omitempty"`
	Postgres ListenerConfig `yaml:"postgres,omitempty"`

	// AuthStateTTL bounds how long an unfinished login attempt is retained.
	AuthStateTTL Duration `yaml:"auth_state_ttl,omitempty"`
	// SessionRetention bounds how long ended session records are kept.
	SessionRetention Duration `yaml:"session_retention,omitempty"`

	// path the config was loaded from, used by the reload watcher.
	path string
}

// Default returns a configuration with sensible single-node defaults.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Storage: StorageConfig{
			Backend: "bbolt",
			Path:    "omnitron.db",
		},
		Admin:            AdminConfig{Listen: "127.0.0.1:8888"},
		AuthStateTTL:     Duration(10 * time.Minute),
		SessionRetention: Duration(7 * 24 * time.Hour),
	}
}

// Load reads and validates the YAML configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.path = path
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path returns the file the configuration was loaded from, empty when it
// was built in-process.
func (c *Config) Path() string { return c.path }

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "bbolt":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the bbolt backend")
		}
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres backend")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.AuthStateTTL <= 0 {
		return fmt.Errorf("auth_state_ttl must be positive")
	}
	if c.SessionRetention <= 0 {
		return fmt.Errorf("session_retention must be positive")
	}
	return nil
}
