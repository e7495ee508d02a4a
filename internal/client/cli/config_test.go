package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	o := cfg.Orchestrator()
	assert.Equal(t, 4, o.Workers)
	assert.Equal(t, 10, o.MaxRetries)
	assert.Equal(t, 2*time.Second, o.BaseBackoff)
	assert.Equal(t, 30*time.Minute, o.MaxBackoff)
	assert.Equal(t, time.Minute, cfg.Sync.Interval)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "syncctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  url: https://sync.example.com
  token: abc
database: /var/lib/racuni/client.db
sync:
  workers: 2
  interval: 5m
  max_backoff: 10m
`), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "https://sync.example.com", cfg.Server.URL)
	assert.Equal(t, "abc", cfg.Server.Token)
	assert.Equal(t, "/var/lib/racuni/client.db", cfg.Database)
	assert.Equal(t, 2, cfg.Sync.Workers)
	assert.Equal(t, 5*time.Minute, cfg.Sync.Interval)
	assert.Equal(t, 10*time.Minute, cfg.Sync.MaxBackoff)

	// Unset keys keep their defaults
	assert.Equal(t, 2*time.Second, cfg.Sync.BaseBackoff)
	assert.Equal(t, 10, cfg.Sync.MaxRetries)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile_Errors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sync:\n  interval: soon\n"), 0o644))
	_, err = LoadFromFile(path)
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestConfig_Merge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Merge(&Config{
		Server:   ServerConfig{Token: "flag-token"},
		Database: "other.db",
		Sync:     SyncConfig{Workers: 8},
	})

	assert.Equal(t, "http://localhost:8080", cfg.Server.URL)
	assert.Equal(t, "flag-token", cfg.Server.Token)
	assert.Equal(t, "other.db", cfg.Database)
	assert.Equal(t, 8, cfg.Sync.Workers)
	assert.Equal(t, 10, cfg.Sync.MaxRetries)

	cfg.Merge(nil)
	assert.Equal(t, 8, cfg.Sync.Workers)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"No Database", func(c *Config) { c.Database = "" }, "database is required"},
		{"Relative URL", func(c *Config) { c.Server.URL = "localhost:8080" }, "server.url"},
		{"FTP URL", func(c *Config) { c.Server.URL = "ftp://example.com" }, "server.url"},
		{"No Workers", func(c *Config) { c.Sync.Workers = 0 }, "sync.workers"},
		{"No Retries", func(c *Config) { c.Sync.MaxRetries = 0 }, "sync.max_retries"},
		{"Backoff Above Cap", func(c *Config) { c.Sync.BaseBackoff = time.Hour }, "sync.base_backoff"},
		{"Zero Interval", func(c *Config) { c.Sync.Interval = 0 }, "sync.interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}
