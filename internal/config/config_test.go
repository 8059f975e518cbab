package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if !cfg.Analysis.Enabled {
		t.Error("analysis should be enabled by default")
	}
	if cfg.Analysis.RetryBudget != 0 {
		t.Errorf("default retry budget must be 0, got %d", cfg.Analysis.RetryBudget)
	}
	if cfg.Cache.TTLHours != 168 {
		t.Errorf("default TTL should be one week (168h), got %dh", cfg.Cache.TTLHours)
	}
	if cfg.Filter.MaxFileSizeBytes != 1<<20 {
		t.Errorf("default size ceiling should be 1 MiB, got %d", cfg.Filter.MaxFileSizeBytes)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "histlens-config-test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	cfg, err := LoadConfig(tmpDir)
	if err != nil {
		t.Fatalf("LoadConfig with no file should return defaults: %v", err)
	}
	if cfg.Analysis.CallTimeoutMs != 30000 {
		t.Errorf("expected default call timeout, got %d", cfg.Analysis.CallTimeoutMs)
	}
	if cfg.RepoRoot != tmpDir {
		t.Errorf("expected repoRoot %q, got %q", tmpDir, cfg.RepoRoot)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "histlens-config-test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	cfg := DefaultConfig()
	cfg.Analysis.MaxFiles = 25
	cfg.Cache.FastTierMaxEntries = 7
	cfg.Cache.PersistentMaxEntries = 70

	if err := cfg.Save(tmpDir); err != nil {
		t.Fatalf("failed to save config: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, StorageDirName, "config.json")); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	loaded, err := LoadConfig(tmpDir)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if loaded.Analysis.MaxFiles != 25 {
		t.Errorf("expected maxFiles 25, got %d", loaded.Analysis.MaxFiles)
	}
	if loaded.Cache.FastTierMaxEntries != 7 {
		t.Errorf("expected fast tier 7, got %d", loaded.Cache.FastTierMaxEntries)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero call timeout", func(c *Config) { c.Analysis.CallTimeoutMs = 0 }},
		{"zero max files", func(c *Config) { c.Analysis.MaxFiles = 0 }},
		{"zero fast tier", func(c *Config) { c.Cache.FastTierMaxEntries = 0 }},
		{"persistent smaller than fast", func(c *Config) {
			c.Cache.FastTierMaxEntries = 100
			c.Cache.PersistentMaxEntries = 10
		}},
		{"zero ttl", func(c *Config) { c.Cache.TTLHours = 0 }},
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
