// Package config holds all knowtree configuration, loaded from a YAML
// file with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrMissingAPIKey is returned when no oracle credential is configured.
// This is a fatal configuration error and is never retried.
var ErrMissingAPIKey = errors.New("oracle API key not set")

// Config holds all knowtree configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Oracle gateway configuration
	Oracle OracleConfig `yaml:"oracle"`

	// Prerequisite exploration
	Explorer ExplorerConfig `yaml:"explorer"`

	// Enrichment pipeline
	Enrichment EnrichmentConfig `yaml:"enrichment"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// OracleConfig configures the oracle gateway.
type OracleConfig struct {
	Provider   string `yaml:"provider"` // moonshot, gemini
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	BaseURL    string `yaml:"base_url"`
	Timeout    string `yaml:"timeout"`
	MaxRetries int    `yaml:"max_retries"`
}

// ExplorerConfig configures the prerequisite explorer.
type ExplorerConfig struct {
	MaxDepth int    `yaml:"max_depth"`
	Parallel bool   `yaml:"parallel"` // launch sibling explorations concurrently
	CacheTTL string `yaml:"cache_ttl"`
}

// EnrichmentConfig configures the enrichment orchestrator.
type EnrichmentConfig struct {
	MaxConcurrent  int    `yaml:"max_concurrent"` // semaphore width for level-parallel work
	RetryAttempts  int    `yaml:"retry_attempts"` // per-node attempt budget
	RetryBaseDelay string `yaml:"retry_base_delay"`
	CallTimeout    string `yaml:"call_timeout"` // per-node oracle call bound
}

// LoggingConfig configures categorized file logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"`
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "knowtree",
		Version: "0.3.0",

		Oracle: OracleConfig{
			Provider:   "moonshot",
			Model:      "kimi-k2-thinking",
			BaseURL:    "https://api.moonshot.ai/v1",
			Timeout:    "120s",
			MaxRetries: 3,
		},

		Explorer: ExplorerConfig{
			MaxDepth: 4,
			Parallel: true,
			CacheTTL: "1h",
		},

		Enrichment: EnrichmentConfig{
			MaxConcurrent:  10,
			RetryAttempts:  3,
			RetryBaseDelay: "1s",
			CallTimeout:    "60s",
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
// API keys are checked in priority order; the last match wins so an
// explicitly exported GEMINI_API_KEY overrides a stale moonshot key.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("MOONSHOT_API_KEY"); key != "" {
		c.Oracle.APIKey = key
		if c.Oracle.Provider == "" {
			c.Oracle.Provider = "moonshot"
		}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Oracle.APIKey = key
		c.Oracle.Provider = "gemini"
	}
	if url := os.Getenv("MOONSHOT_BASE_URL"); url != "" {
		c.Oracle.BaseURL = url
	}
	if model := os.Getenv("KNOWTREE_MODEL"); model != "" {
		c.Oracle.Model = model
	}
	if depth := os.Getenv("KNOWTREE_MAX_DEPTH"); depth != "" {
		var d int
		if _, err := fmt.Sscanf(depth, "%d", &d); err == nil && d > 0 {
			c.Explorer.MaxDepth = d
		}
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Oracle.APIKey == "" {
		return fmt.Errorf("%w: set MOONSHOT_API_KEY or GEMINI_API_KEY, or oracle.api_key in config", ErrMissingAPIKey)
	}
	if c.Explorer.MaxDepth < 1 {
		return fmt.Errorf("explorer.max_depth must be >= 1, got %d", c.Explorer.MaxDepth)
	}
	if c.Enrichment.MaxConcurrent < 1 {
		return fmt.Errorf("enrichment.max_concurrent must be >= 1, got %d", c.Enrichment.MaxConcurrent)
	}
	return nil
}

// GetOracleTimeout returns the oracle call timeout as a duration.
func (c *Config) GetOracleTimeout() time.Duration {
	d, err := time.ParseDuration(c.Oracle.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetCacheTTL returns the explorer cache TTL as a duration.
func (c *Config) GetCacheTTL() time.Duration {
	d, err := time.ParseDuration(c.Explorer.CacheTTL)
	if err != nil {
		return time.Hour
	}
	return d
}

// GetRetryBaseDelay returns the enrichment retry base delay as a duration.
func (c *Config) GetRetryBaseDelay() time.Duration {
	d, err := time.ParseDuration(c.Enrichment.RetryBaseDelay)
	if err != nil {
		return time.Second
	}
	return d
}

// GetCallTimeout returns the per-node enrichment call timeout as a duration.
func (c *Config) GetCallTimeout() time.Duration {
	d, err := time.ParseDuration(c.Enrichment.CallTimeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}
