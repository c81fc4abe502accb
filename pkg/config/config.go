// Package config loads and validates the run configuration. Settings come
// from an optional YAML file with sensible defaults; the API key itself is
// never stored in the file, only the name of the environment variable that
// holds it.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"scriptsmith/pkg/history"
	"scriptsmith/pkg/refine"
	"scriptsmith/pkg/textmetrics"
)

// Supported completion providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderMock      = "mock"
)

// Default API key environment variables per provider.
//
//nolint:gochecknoglobals // Read-only lookup table
var defaultKeyEnv = map[string]string{
	ProviderOpenAI:    "OPENAI_API_KEY",
	ProviderAnthropic: "ANTHROPIC_API_KEY",
}

// Config is the full run configuration.
type Config struct {
	// Provider selects the completion backend.
	Provider string `yaml:"provider"`
	// Model overrides the provider's default model when non-empty.
	Model string `yaml:"model"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env"`
	// Host is the service endpoint for self-hosted providers.
	Host string `yaml:"host"`

	// WordsPerMinute is the speaking rate for word targets.
	WordsPerMinute int `yaml:"words_per_minute"`
	// MaxAttempts bounds verify calls per refinement loop.
	MaxAttempts int `yaml:"max_attempts"`
	// MinImprovementRate stops refinement when progress falls below it.
	MinImprovementRate float64 `yaml:"min_improvement_rate"`

	// DBPath locates the checkpoint database; empty disables checkpoints.
	DBPath string `yaml:"db_path"`
	// MetricsAddr, when set, serves Prometheus metrics on that address.
	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Provider:           ProviderOpenAI,
		WordsPerMinute:     textmetrics.DefaultWPM,
		MaxAttempts:        refine.DefaultMaxAttempts,
		MinImprovementRate: history.DefaultMinImprovementRate,
		DBPath:             "scriptsmith.db",
	}
}

// Load reads the YAML file at path over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.WordsPerMinute <= 0 {
		c.WordsPerMinute = textmetrics.DefaultWPM
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = refine.DefaultMaxAttempts
	}
	if c.MinImprovementRate == 0 {
		c.MinImprovementRate = history.DefaultMinImprovementRate
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = defaultKeyEnv[c.Provider]
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderOllama, ProviderMock:
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	if c.MaxAttempts > 10 {
		return fmt.Errorf("max_attempts %d is unreasonably high (limit 10)", c.MaxAttempts)
	}
	if c.MinImprovementRate < -100 || c.MinImprovementRate > 100 {
		return fmt.Errorf("min_improvement_rate %.1f out of range [-100,100]", c.MinImprovementRate)
	}
	return nil
}

// APIKey resolves the API key from the configured environment variable.
// Providers without key auth return an empty string.
func (c *Config) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

// NeedsAPIKey reports whether the provider requires key auth.
func (c *Config) NeedsAPIKey() bool {
	return c.Provider == ProviderOpenAI || c.Provider == ProviderAnthropic
}
