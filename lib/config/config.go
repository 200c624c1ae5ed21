// Package config provides the TOML configuration surface for respool.
// It covers the pool's recognized options plus the optional metrics
// exposition endpoint used by the demo binary.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/poolsmith/respool/lib/pool"
)

// Default configuration values
const (
	DefaultMaxSize             = 10
	DefaultAcquireTimeout      = 0 * time.Second // block indefinitely
	DefaultIdleTarget          = 0               // no proactive shrink
	DefaultMaxIdleTime         = 10 * time.Minute
	DefaultMaintenanceInterval = 1 * time.Minute
	DefaultMetricsListen       = "127.0.0.1:9309"
)

// Config holds all configuration for a respool deployment.
type Config struct {
	Pool    PoolConfig    `toml:"pool"`
	Metrics MetricsConfig `toml:"metrics"`
}

// PoolConfig contains the pool's recognized options.
type PoolConfig struct {
	// MaxSize is the upper bound on simultaneously live resources
	MaxSize int `toml:"max_size"`
	// AcquireTimeout is the default wait bound when a caller brings no
	// deadline; 0 blocks indefinitely
	AcquireTimeout time.Duration `toml:"acquire_timeout"`
	// ValidateOnRelease health-checks returned resources before reuse
	ValidateOnRelease bool `toml:"validate_on_release"`
	// IdleTarget is the baseline the maintenance loop shrinks toward;
	// 0 disables proactive shrinking
	IdleTarget int `toml:"idle_target"`
	// MaxIdleTime is how long an idle resource may sit before eviction
	MaxIdleTime time.Duration `toml:"max_idle_time"`
	// MaintenanceInterval is how often stale idle resources are evicted
	MaintenanceInterval time.Duration `toml:"maintenance_interval"`
	// Strict makes caller contract violations panic instead of being logged
	Strict bool `toml:"strict"`
}

// MetricsConfig contains metrics exposition settings.
type MetricsConfig struct {
	// Enabled controls whether the metrics endpoint is served
	Enabled bool `toml:"enabled"`
	// Listen is the address to bind the metrics server to
	Listen string `toml:"listen"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Pool: PoolConfig{
			MaxSize:             DefaultMaxSize,
			AcquireTimeout:      DefaultAcquireTimeout,
			ValidateOnRelease:   true,
			IdleTarget:          DefaultIdleTarget,
			MaxIdleTime:         DefaultMaxIdleTime,
			MaintenanceInterval: DefaultMaintenanceInterval,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  DefaultMetricsListen,
		},
	}
}

// LoadConfig reads configuration from a TOML file.
// If the file doesn't exist, it returns the default configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveConfig writes the configuration to a TOML file.
// It creates the parent directory if it doesn't exist.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Pool.MaxSize < 1 {
		return errors.New("pool.max_size must be at least 1")
	}
	if c.Pool.AcquireTimeout < 0 {
		return errors.New("pool.acquire_timeout must not be negative")
	}
	if c.Pool.IdleTarget < 0 {
		return errors.New("pool.idle_target must not be negative")
	}
	if c.Pool.IdleTarget > c.Pool.MaxSize {
		return errors.New("pool.idle_target must not exceed pool.max_size")
	}
	if c.Pool.MaxIdleTime < 0 {
		return errors.New("pool.max_idle_time must not be negative")
	}
	if c.Pool.MaintenanceInterval < 0 {
		return errors.New("pool.maintenance_interval must not be negative")
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		return errors.New("metrics.listen is required when metrics.enabled is set")
	}
	return nil
}

// PoolConfig converts the configuration into the pool package's Config.
func (c *Config) PoolConfig() pool.Config {
	return pool.Config{
		MaxSize:             c.Pool.MaxSize,
		AcquireTimeout:      c.Pool.AcquireTimeout,
		ValidateOnRelease:   c.Pool.ValidateOnRelease,
		IdleTarget:          c.Pool.IdleTarget,
		MaxIdleTime:         c.Pool.MaxIdleTime,
		MaintenanceInterval: c.Pool.MaintenanceInterval,
		Strict:              c.Pool.Strict,
	}
}
