package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// StorageDirName is the private directory holding config, cache and
// metrics, created under the repository root.
const StorageDirName = ".histlens"

// Config represents the complete histlens configuration
type Config struct {
	Version  int    `json:"version" mapstructure:"version"`
	RepoRoot string `json:"repoRoot" mapstructure:"repoRoot"`

	Analysis AnalysisConfig `json:"analysis" mapstructure:"analysis"`
	Filter   FilterConfig   `json:"filter" mapstructure:"filter"`
	Cache    CacheConfig    `json:"cache" mapstructure:"cache"`
	Server   ServerConfig   `json:"server" mapstructure:"server"`
	Logging  LoggingConfig  `json:"logging" mapstructure:"logging"`
}

// AnalysisConfig controls the external AI analysis workflow
type AnalysisConfig struct {
	Enabled        bool   `json:"enabled" mapstructure:"enabled"`
	Endpoint       string `json:"endpoint" mapstructure:"endpoint"`
	APIKey         string `json:"apiKey" mapstructure:"apiKey"`
	Model          string `json:"model" mapstructure:"model"`
	CallTimeoutMs  int    `json:"callTimeoutMs" mapstructure:"callTimeoutMs"`
	RetryBudget    int    `json:"retryBudget" mapstructure:"retryBudget"`
	MaxFiles       int    `json:"maxFiles" mapstructure:"maxFiles"`
	BatchSize      int    `json:"batchSize" mapstructure:"batchSize"`
	PromptOverride string `json:"promptOverride" mapstructure:"promptOverride"`
}

// FilterConfig controls the file eligibility filter
type FilterConfig struct {
	DeepInspection   bool     `json:"deepInspection" mapstructure:"deepInspection"`
	BudgetMs         int      `json:"budgetMs" mapstructure:"budgetMs"`
	PerFileTimeoutMs int      `json:"perFileTimeoutMs" mapstructure:"perFileTimeoutMs"`
	MaxFileSizeBytes int64    `json:"maxFileSizeBytes" mapstructure:"maxFileSizeBytes"`
	AllowExtensions  []string `json:"allowExtensions" mapstructure:"allowExtensions"`
	DenyExtensions   []string `json:"denyExtensions" mapstructure:"denyExtensions"`
	PolicyFile       string   `json:"policyFile" mapstructure:"policyFile"`
}

// CacheConfig controls both cache tiers
type CacheConfig struct {
	Enabled              bool `json:"enabled" mapstructure:"enabled"`
	FastTierMaxEntries   int  `json:"fastTierMaxEntries" mapstructure:"fastTierMaxEntries"`
	PersistentMaxEntries int  `json:"persistentMaxEntries" mapstructure:"persistentMaxEntries"`
	TTLHours             int  `json:"ttlHours" mapstructure:"ttlHours"`
	SweepIntervalMin     int  `json:"sweepIntervalMin" mapstructure:"sweepIntervalMin"`
}

// ServerConfig controls the HTTP API surface
type ServerConfig struct {
	Addr        string `json:"addr" mapstructure:"addr"`
	AuthEnabled bool   `json:"authEnabled" mapstructure:"authEnabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version:  1,
		RepoRoot: ".",
		Analysis: AnalysisConfig{
			Enabled:       true,
			Endpoint:      "http://127.0.0.1:5111",
			Model:         "gpt-4.1-mini",
			CallTimeoutMs: 30000,
			RetryBudget:   0,
			MaxFiles:      10,
			BatchSize:     5,
		},
		Filter: FilterConfig{
			DeepInspection:   true,
			BudgetMs:         10000,
			PerFileTimeoutMs: 1000,
			MaxFileSizeBytes: 1 << 20,
		},
		Cache: CacheConfig{
			Enabled:              true,
			FastTierMaxEntries:   100,
			PersistentMaxEntries: 1000,
			TTLHours:             168,
			SweepIntervalMin:     60,
		},
		Server: ServerConfig{
			Addr:        "127.0.0.1:7420",
			AuthEnabled: false,
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

// StorageDir returns the private storage directory for a repo root.
func StorageDir(repoRoot string) string {
	return filepath.Join(repoRoot, StorageDirName)
}

// LoadConfig loads configuration from .histlens/config.json, falling
// back to defaults when no file exists. Environment variables with the
// HISTLENS_ prefix override file values.
func LoadConfig(repoRoot string) (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("version", defaults.Version)
	v.SetDefault("repoRoot", repoRoot)
	v.SetDefault("analysis", structToMap(defaults.Analysis))
	v.SetDefault("filter", structToMap(defaults.Filter))
	v.SetDefault("cache", structToMap(defaults.Cache))
	v.SetDefault("server", structToMap(defaults.Server))
	v.SetDefault("logging", structToMap(defaults.Logging))

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(StorageDir(repoRoot))
	v.SetEnvPrefix("HISTLENS")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// No config file: defaults plus env overrides.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if cfg.RepoRoot == "" {
		cfg.RepoRoot = repoRoot
	}

	return &cfg, nil
}

// Save writes the configuration to .histlens/config.json
func (c *Config) Save(repoRoot string) error {
	dir := StorageDir(repoRoot)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Analysis.CallTimeoutMs <= 0 {
		return &ConfigError{Field: "analysis.callTimeoutMs", Message: "must be positive"}
	}
	if c.Analysis.MaxFiles <= 0 {
		return &ConfigError{Field: "analysis.maxFiles", Message: "must be positive"}
	}
	if c.Cache.FastTierMaxEntries <= 0 {
		return &ConfigError{Field: "cache.fastTierMaxEntries", Message: "must be positive"}
	}
	if c.Cache.PersistentMaxEntries < c.Cache.FastTierMaxEntries {
		return &ConfigError{Field: "cache.persistentMaxEntries", Message: "must be at least the fast tier size"}
	}
	if c.Cache.TTLHours <= 0 {
		return &ConfigError{Field: "cache.ttlHours", Message: "must be positive"}
	}
	return nil
}

// CallTimeout returns the analyzer call timeout as a duration.
func (c *AnalysisConfig) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutMs) * time.Millisecond
}

// Budget returns the batch filter budget as a duration.
func (c *FilterConfig) Budget() time.Duration {
	return time.Duration(c.BudgetMs) * time.Millisecond
}

// PerFileTimeout returns the per-file check timeout as a duration.
func (c *FilterConfig) PerFileTimeout() time.Duration {
	return time.Duration(c.PerFileTimeoutMs) * time.Millisecond
}

// TTL returns the cache entry time-to-live as a duration.
func (c *CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// SweepInterval returns the expiry sweep cadence as a duration.
func (c *CacheConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMin) * time.Minute
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}

// structToMap round-trips a config section through JSON so viper can
// apply it as nested defaults.
func structToMap(section interface{}) map[string]interface{} {
	data, err := json.Marshal(section)
	if err != nil {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}
