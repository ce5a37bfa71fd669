// Package config defines the daemon configuration and its loading rules.
// Values come from defaults, then an optional YAML file, then BARO_
// environment variables; later sources win.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"

	"github.com/trevorflahardy/baro/internal/storage/types"
)

// Config represents the complete daemon configuration.
type Config struct {
	// DataDir is the mount point of the storage medium.
	DataDir string `koanf:"data_dir"`

	// Sampling configures the measurement loop.
	Sampling SamplingConfig `koanf:"sampling"`

	// Storage configures the tier stores.
	Storage StorageConfig `koanf:"storage"`

	// History configures the in-memory per-tier query buffers.
	History HistoryConfig `koanf:"history"`

	// Events configures the persistence event stream.
	Events EventsConfig `koanf:"events"`

	// Log configures logging output.
	Log LogConfig `koanf:"log"`
}

// SamplingConfig configures the measurement loop.
type SamplingConfig struct {
	// Interval is the time between samples.
	Interval time.Duration `koanf:"interval"`
}

// StorageConfig configures the tier stores.
type StorageConfig struct {
	// RingCapacity is the raw tier size in samples.
	RingCapacity int `koanf:"ring_capacity"`

	// LifetimeFlushEvery is the number of samples between lifetime
	// record persists.
	LifetimeFlushEvery int `koanf:"lifetime_flush_every"`

	// IOTimeout bounds a single medium write. Zero disables the bound.
	IOTimeout time.Duration `koanf:"io_timeout"`

	// IngestQueue is the sample channel depth between the sensor loop
	// and the writer.
	IngestQueue int `koanf:"ingest_queue"`

	// Fsync forces a sync after every medium write.
	Fsync bool `koanf:"fsync"`
}

// HistoryConfig configures the in-memory per-tier query buffers.
type HistoryConfig struct {
	Raw     int `koanf:"raw"`
	FiveMin int `koanf:"five_min"`
	Hourly  int `koanf:"hourly"`
	Daily   int `koanf:"daily"`
}

// EventsConfig configures the persistence event stream.
type EventsConfig struct {
	// QueueSize is the per-subscriber event buffer depth.
	QueueSize int `koanf:"queue_size"`
}

// LogConfig configures logging output.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level"`

	// JSON switches output from text to JSON.
	JSON bool `koanf:"json"`
}

// EnvPrefix is the environment variable prefix for overrides.
// BARO_STORAGE__RING_CAPACITY=1000 sets storage.ring_capacity.
const EnvPrefix = "BARO_"

// Load builds the configuration from defaults, the optional YAML file at
// path (empty path skips the file), and BARO_ environment overrides.
func Load(path string) (*Config, error) {
	ko := koanf.New(".")

	if path != "" {
		if err := ko.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	err := ko.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	config := DefaultConfig()
	if err := ko.Unmarshal("", config); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "/var/lib/baro",
		Sampling: SamplingConfig{
			Interval: 10 * time.Second,
		},
		Storage: StorageConfig{
			RingCapacity:       8640, // 24h of 10s samples
			LifetimeFlushEvery: types.Tier5Min.SourceCount(),
			IOTimeout:          5 * time.Second,
			IngestQueue:        64,
			Fsync:              false,
		},
		History: HistoryConfig{
			Raw:     360,
			FiveMin: 2016,
			Hourly:  720,
			Daily:   365,
		},
		Events: EventsConfig{
			QueueSize: 8,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must be set")
	}
	if c.Sampling.Interval <= 0 {
		return fmt.Errorf("sampling.interval must be positive, got %v", c.Sampling.Interval)
	}
	if c.Storage.RingCapacity <= 0 {
		return fmt.Errorf("storage.ring_capacity must be positive, got %d", c.Storage.RingCapacity)
	}
	if c.Storage.LifetimeFlushEvery <= 0 {
		return fmt.Errorf("storage.lifetime_flush_every must be positive, got %d", c.Storage.LifetimeFlushEvery)
	}
	if c.Storage.IOTimeout < 0 {
		return fmt.Errorf("storage.io_timeout must not be negative, got %v", c.Storage.IOTimeout)
	}
	if c.Storage.IngestQueue <= 0 {
		return fmt.Errorf("storage.ingest_queue must be positive, got %d", c.Storage.IngestQueue)
	}
	if c.Events.QueueSize <= 0 {
		return fmt.Errorf("events.queue_size must be positive, got %d", c.Events.QueueSize)
	}
	for name, v := range map[string]int{
		"history.raw":      c.History.Raw,
		"history.five_min": c.History.FiveMin,
		"history.hourly":   c.History.Hourly,
		"history.daily":    c.History.Daily,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, v)
		}
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel maps the configured level name to a slog level.
func (c *Config) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("log.level %q unknown, want debug/info/warn/error", c.Log.Level)
	}
}

// EnsureDataDir creates the data directory if it does not exist. A failure
// is not fatal to startup: the stores retry the medium on every write.
func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return nil
}
