package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigOverrides(t *testing.T) {
	cfg, err := ParseConfig(`
[coordinator]
lock_timeout = "2s"

[presence]
idle_threshold = "10s"
ttl = "45s"

[arbiter]
timeout = "1m"

[pubsub]
event_buffer_size = 128
`)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.LockTimeout)
	assert.Equal(t, 10*time.Second, cfg.IdleThreshold)
	assert.Equal(t, 45*time.Second, cfg.PresenceTTL)
	assert.Equal(t, time.Minute, cfg.ArbitrationTimeout)
	assert.Equal(t, 128, cfg.EventBufferSize)

	// Unset keys keep their defaults.
	assert.Equal(t, DefaultConfig.AwayThreshold, cfg.AwayThreshold)
	assert.Equal(t, DefaultConfig.BroadcastInterval, cfg.BroadcastInterval)
}

func TestParseConfigFallsBackOnBadValues(t *testing.T) {
	cfg, err := ParseConfig(`
[coordinator]
lock_timeout = "not-a-duration"

[pubsub]
event_buffer_size = -3
`)
	require.NoError(t, err)

	assert.Equal(t, DefaultConfig.LockTimeout, cfg.LockTimeout)
	assert.Equal(t, DefaultConfig.EventBufferSize, cfg.EventBufferSize)
}

func TestParseConfigRejectsInvalidTOML(t *testing.T) {
	_, err := ParseConfig("this is = = not toml")
	assert.Error(t, err)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collabmesh.toml")
	require.NoError(t, os.WriteFile(path, []byte("[presence]\nidle_threshold = \"5s\"\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.IdleThreshold)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestConfigWithDefaultsFillsZeroes(t *testing.T) {
	cfg := Config{LockTimeout: time.Second}.withDefaults()

	assert.Equal(t, time.Second, cfg.LockTimeout)
	assert.Equal(t, DefaultConfig.IdleThreshold, cfg.IdleThreshold)
	assert.Equal(t, DefaultConfig.EventBufferSize, cfg.EventBufferSize)
}
