package cli

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"racuni/internal/client/orchestrator"
)

// Config is the syncctl configuration file.
type Config struct {
	Server   ServerConfig `yaml:"server"`
	Database string       `yaml:"database"`
	Sync     SyncConfig   `yaml:"sync"`
}

// ServerConfig locates the sync server and the bearer token to send.
type ServerConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// SyncConfig tunes the orchestrator. Durations are Go duration strings.
type SyncConfig struct {
	Workers     int           `yaml:"workers"`
	CallTimeout time.Duration `yaml:"call_timeout"`
	Interval    time.Duration `yaml:"interval"`
	BaseBackoff time.Duration `yaml:"base_backoff"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`
	MaxRetries  int           `yaml:"max_retries"`
}

func DefaultConfig() *Config {
	def := orchestrator.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			URL: "http://localhost:8080",
		},
		Database: "racuni.db",
		Sync: SyncConfig{
			Workers:     def.Workers,
			CallTimeout: def.CallTimeout,
			Interval:    time.Minute,
			BaseBackoff: def.BaseBackoff,
			MaxBackoff:  def.MaxBackoff,
			MaxRetries:  def.MaxRetries,
		},
	}
}

// LoadFromFile reads a YAML file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Merge overlays the non-zero values of other.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}
	if other.Server.URL != "" {
		c.Server.URL = other.Server.URL
	}
	if other.Server.Token != "" {
		c.Server.Token = other.Server.Token
	}
	if other.Database != "" {
		c.Database = other.Database
	}
	if other.Sync.Workers != 0 {
		c.Sync.Workers = other.Sync.Workers
	}
	if other.Sync.CallTimeout != 0 {
		c.Sync.CallTimeout = other.Sync.CallTimeout
	}
	if other.Sync.Interval != 0 {
		c.Sync.Interval = other.Sync.Interval
	}
	if other.Sync.BaseBackoff != 0 {
		c.Sync.BaseBackoff = other.Sync.BaseBackoff
	}
	if other.Sync.MaxBackoff != 0 {
		c.Sync.MaxBackoff = other.Sync.MaxBackoff
	}
	if other.Sync.MaxRetries != 0 {
		c.Sync.MaxRetries = other.Sync.MaxRetries
	}
}

func (c *Config) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	u, err := url.Parse(c.Server.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("server.url must be an http(s) URL, got %q", c.Server.URL)
	}
	if c.Sync.Workers < 1 {
		return fmt.Errorf("sync.workers must be at least 1")
	}
	if c.Sync.MaxRetries < 1 {
		return fmt.Errorf("sync.max_retries must be at least 1")
	}
	if c.Sync.BaseBackoff <= 0 || c.Sync.MaxBackoff < c.Sync.BaseBackoff {
		return fmt.Errorf("sync.base_backoff must be positive and not exceed sync.max_backoff")
	}
	if c.Sync.CallTimeout <= 0 || c.Sync.Interval <= 0 {
		return fmt.Errorf("sync.call_timeout and sync.interval must be positive")
	}
	return nil
}

// Orchestrator returns the orchestrator settings.
func (c *Config) Orchestrator() orchestrator.Config {
	return orchestrator.Config{
		Workers:     c.Sync.Workers,
		CallTimeout: c.Sync.CallTimeout,
		BaseBackoff: c.Sync.BaseBackoff,
		MaxBackoff:  c.Sync.MaxBackoff,
		MaxRetries:  c.Sync.MaxRetries,
	}
}
