package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDefaultsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	doc := map[string]any{
		"data_dir": "/mnt/card",
		"sampling": map[string]any{"interval": "30s"},
		"storage":  map[string]any{"ring_capacity": 2880, "fsync": true},
		"log":      map[string]any{"level": "debug"},
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	path := filepath.Join(t.TempDir(), "baro.yml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.DataDir != "/mnt/card" {
		t.Errorf("data_dir = %q, want /mnt/card", cfg.DataDir)
	}
	if cfg.Sampling.Interval != 30*time.Second {
		t.Errorf("interval = %v, want 30s", cfg.Sampling.Interval)
	}
	if cfg.Storage.RingCapacity != 2880 {
		t.Errorf("ring_capacity = %d, want 2880", cfg.Storage.RingCapacity)
	}
	if !cfg.Storage.Fsync {
		t.Error("fsync should be true")
	}
	// Unset keys keep their defaults.
	if cfg.Storage.IngestQueue != 64 {
		t.Errorf("ingest_queue = %d, want default 64", cfg.Storage.IngestQueue)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Log.Level)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	doc := map[string]any{"storage": map[string]any{"ring_capacity": 100}}
	data, _ := yaml.Marshal(doc)
	path := filepath.Join(t.TempDir(), "baro.yml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	t.Setenv("BARO_STORAGE__RING_CAPACITY", "500")
	t.Setenv("BARO_DATA_DIR", "/mnt/other")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.RingCapacity != 500 {
		t.Errorf("ring_capacity = %d, want env override 500", cfg.Storage.RingCapacity)
	}
	if cfg.DataDir != "/mnt/other" {
		t.Errorf("data_dir = %q, want /mnt/other", cfg.DataDir)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"zero interval", func(c *Config) { c.Sampling.Interval = 0 }},
		{"zero ring capacity", func(c *Config) { c.Storage.RingCapacity = 0 }},
		{"negative io timeout", func(c *Config) { c.Storage.IOTimeout = -time.Second }},
		{"zero ingest queue", func(c *Config) { c.Storage.IngestQueue = 0 }},
		{"zero event queue", func(c *Config) { c.Events.QueueSize = 0 }},
		{"zero raw history", func(c *Config) { c.History.Raw = 0 }},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
