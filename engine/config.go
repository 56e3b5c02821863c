package engine

import (
	"fmt"
	"time"

	"github.com/pelletier/go-toml"

	"github.com/hupe1980/collabmesh/arbiter"
	"github.com/hupe1980/collabmesh/coordinator"
	"github.com/hupe1980/collabmesh/presence"
	"github.com/hupe1980/collabmesh/pubsub"
)

// Config carries the tuning knobs of the collaboration core. Zero values
// are replaced with the corresponding defaults at construction time, so a
// partially filled Config is safe.
type Config struct {
	// LockTimeout bounds the wait for a document's critical section.
	LockTimeout time.Duration

	// IdleThreshold is how long without presence updates before a
	// participant turns idle.
	IdleThreshold time.Duration

	// AwayThreshold is how long without updates before idle turns away.
	AwayThreshold time.Duration

	// PresenceTTL is how long an away record persists before removal.
	PresenceTTL time.Duration

	// BroadcastInterval throttles presence broadcasts per participant.
	BroadcastInterval time.Duration

	// ArbitrationTimeout bounds AskHuman suspensions before the fail-safe
	// cancels the agent.
	ArbitrationTimeout time.Duration

	// EventBufferSize is the per-subscriber broadcast channel buffer.
	EventBufferSize int
}

// DefaultConfig holds the production defaults of each subsystem.
var DefaultConfig = Config{
	LockTimeout:        coordinator.DefaultLockTimeout,
	IdleThreshold:      presence.DefaultIdleThreshold,
	AwayThreshold:      presence.DefaultAwayThreshold,
	PresenceTTL:        presence.DefaultTTL,
	BroadcastInterval:  presence.DefaultBroadcastInterval,
	ArbitrationTimeout: arbiter.DefaultArbitrationTimeout,
	EventBufferSize:    pubsub.DefaultBufferSize,
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	if c.LockTimeout <= 0 {
		c.LockTimeout = DefaultConfig.LockTimeout
	}
	if c.IdleThreshold <= 0 {
		c.IdleThreshold = DefaultConfig.IdleThreshold
	}
	if c.AwayThreshold <= 0 {
		c.AwayThreshold = DefaultConfig.AwayThreshold
	}
	if c.PresenceTTL <= 0 {
		c.PresenceTTL = DefaultConfig.PresenceTTL
	}
	if c.BroadcastInterval <= 0 {
		c.BroadcastInterval = DefaultConfig.BroadcastInterval
	}
	if c.ArbitrationTimeout <= 0 {
		c.ArbitrationTimeout = DefaultConfig.ArbitrationTimeout
	}
	if c.EventBufferSize <= 0 {
		c.EventBufferSize = DefaultConfig.EventBufferSize
	}
	return c
}

// LoadConfig reads a TOML configuration file. Missing or malformed keys
// fall back to their defaults; only an unreadable file is an error.
//
// Layout:
//
//	[coordinator]
//	lock_timeout = "5s"
//
//	[presence]
//	idle_threshold = "30s"
//	away_threshold = "300s"
//	ttl = "30s"
//	broadcast_interval = "50ms"
//
//	[arbiter]
//	timeout = "30s"
//
//	[pubsub]
//	event_buffer_size = 64
func LoadConfig(path string) (Config, error) {
	tree, err := toml.LoadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("loading config %s: %w", path, err)
	}

	return configFromTree(tree), nil
}

// ParseConfig reads a TOML configuration from a string, with the same
// fallback behavior as LoadConfig.
func ParseConfig(data string) (Config, error) {
	tree, err := toml.Load(data)
	if err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	return configFromTree(tree), nil
}

func configFromTree(tree *toml.Tree) Config {
	cfg := DefaultConfig

	cfg.LockTimeout = durationOr(tree, "coordinator.lock_timeout", cfg.LockTimeout)
	cfg.IdleThreshold = durationOr(tree, "presence.idle_threshold", cfg.IdleThreshold)
	cfg.AwayThreshold = durationOr(tree, "presence.away_threshold", cfg.AwayThreshold)
	cfg.PresenceTTL = durationOr(tree, "presence.ttl", cfg.PresenceTTL)
	cfg.BroadcastInterval = durationOr(tree, "presence.broadcast_interval", cfg.BroadcastInterval)
	cfg.ArbitrationTimeout = durationOr(tree, "arbiter.timeout", cfg.ArbitrationTimeout)
	cfg.EventBufferSize = intOr(tree, "pubsub.event_buffer_size", cfg.EventBufferSize)

	return cfg
}

func durationOr(tree *toml.Tree, key string, def time.Duration) time.Duration {
	raw, ok := tree.Get(key).(string)
	if !ok {
		return def
	}

	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return def
	}

	return d
}

func intOr(tree *toml.Tree, key string, def int) int {
	raw, ok := tree.Get(key).(int64)
	if !ok || raw <= 0 {
		return def
	}

	return int(raw)
}
