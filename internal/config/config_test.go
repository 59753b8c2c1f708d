package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:8000/ws/shell", cfg.RuntimeURL)

	_, err = os.Stat(path)
	require.NoError(t, err, "default config file should have been written")

	// The written file loads back identically.
	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadAppliesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
runtime_url: ws://localhost:9999/ws/shell
client:
  reconnect_delay: 1s
  event_buffer: 64
logging:
  level: debug
maintenance:
  snapshot_max_age: 24h
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:9999/ws/shell", cfg.RuntimeURL)
	assert.Equal(t, time.Second, cfg.Client.ReconnectDelay.Std())
	assert.Equal(t, 64, cfg.Client.EventBuffer)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 24*time.Hour, cfg.Maintenance.SnapshotMaxAge.Std())

	// Unset fields keep their defaults.
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.RuntimeURL = "http://not-a-websocket"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Logging.Level = "loud"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Client.ReconnectDelay = Duration(-time.Second)
	assert.Error(t, cfg.Validate())
}
