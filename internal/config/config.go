// Package config loads the client configuration from a YAML file.
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

// Duration wraps time.Duration so YAML values can be written as "3s" or
// "30m" instead of nanosecond counts.
type Duration time.Duration

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration value: %w", err)
	}
	*d = Duration(n)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the top-level client configuration.
type Config struct {
	// RuntimeURL is the agent runtime's websocket endpoint.
	RuntimeURL string `yaml:"runtime_url"`

	// DataDir overrides the default data directory (~/.tether).
	DataDir string `yaml:"data_dir,omitempty"`

	Client      ClientConfig      `yaml:"client,omitempty"`
	Logging     LoggingConfig     `yaml:"logging,omitempty"`
	Maintenance MaintenanceConfig `yaml:"maintenance,omitempty"`
}

// ClientConfig tunes the connection behavior.
type ClientConfig struct {
	ReconnectDelay   Duration `yaml:"reconnect_delay,omitempty"`
	CallTimeout      Duration `yaml:"call_timeout,omitempty"`
	HandshakeTimeout Duration `yaml:"handshake_timeout,omitempty"`
	EventBuffer      int      `yaml:"event_buffer,omitempty"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`  // debug, info, warn, error
	Format string `yaml:"format,omitempty"` // console or json
}

// MaintenanceConfig controls the background snapshot pruner.
type MaintenanceConfig struct {
	// PruneSchedule is a cron expression (with seconds); empty disables
	// pruning.
	PruneSchedule string `yaml:"prune_schedule,omitempty"`

	// SnapshotMaxAge is how long an untouched cached session survives.
	SnapshotMaxAge Duration `yaml:"snapshot_max_age,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		RuntimeURL: "ws://127.0.0.1:8000/ws/shell",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Maintenance: MaintenanceConfig{
			PruneSchedule:  "0 0 4 * * *",
			SnapshotMaxAge: Duration(30 * 24 * time.Hour),
		},
	}
}

// Load reads the configuration at path, creating a default file when none
// exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := cfg.Save(path); err != nil {
			return nil, fmt.Errorf("failed to save default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.expandTilde()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to a file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration for nonsense values.
func (c *Config) Validate() error {
	u, err := url.Parse(c.RuntimeURL)
	if err != nil {
		return fmt.Errorf("invalid runtime_url %q: %w", c.RuntimeURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("runtime_url must use ws:// or wss://, got %q", c.RuntimeURL)
	}

	if c.Client.ReconnectDelay < 0 || c.Client.CallTimeout < 0 || c.Client.HandshakeTimeout < 0 {
		return fmt.Errorf("client timeouts must not be negative")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("invalid logging format %q", c.Logging.Format)
	}

	if c.Maintenance.SnapshotMaxAge < 0 {
		return fmt.Errorf("snapshot_max_age must not be negative")
	}
	return nil
}

// expandTilde replaces a leading "~/" with the user's home directory in
// path-valued fields.
func (c *Config) expandTilde() {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	if c.DataDir == "~" {
		c.DataDir = home
	} else if strings.HasPrefix(c.DataDir, "~/") {
		c.DataDir = filepath.Join(home, c.DataDir[2:])
	}
}
