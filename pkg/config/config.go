// Package config loads planner configuration from a YAML file with layered
// defaults, and manages the encrypted secrets vault holding provider API
// keys.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Project file locations.
const (
	ProjectConfigDir = ".planner"
	ConfigFilename   = "config.yaml"
	DatabaseFilename = "planner.db"
)

// Provider names accepted in configuration.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
)

// GenerationConfig selects the provider and model and tunes request limits.
type GenerationConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`
	// OllamaHost overrides the local Ollama endpoint when set.
	OllamaHost string `yaml:"ollama_host,omitempty"`
}

// ResilienceConfig tunes the middleware chain around the provider client.
type ResilienceConfig struct {
	CacheTTL          time.Duration `yaml:"cache_ttl"`
	CacheMaxEntries   int           `yaml:"cache_max_entries"`
	RateLimitWindow   time.Duration `yaml:"rate_limit_window"`
	RateLimitMax      int           `yaml:"rate_limit_max"`
	RetryMaxAttempts  int           `yaml:"retry_max_attempts"`
	RetryBaseDelay    time.Duration `yaml:"retry_base_delay"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	PromptTokenBudget int           `yaml:"prompt_token_budget"`
}

// MetricsConfig configures Prometheus exposure and querying.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	// QueryURL points at a Prometheus server for usage reports; empty
	// disables the report command.
	QueryURL string `yaml:"query_url,omitempty"`
}

// Config is the full planner configuration.
type Config struct {
	Generation   GenerationConfig `yaml:"generation"`
	Resilience   ResilienceConfig `yaml:"resilience"`
	Metrics      MetricsConfig    `yaml:"metrics"`
	DatabasePath string           `yaml:"database_path"`
}

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	return &Config{
		Generation: GenerationConfig{
			Provider:    ProviderAnthropic,
			Model:       "claude-sonnet-4-5",
			MaxTokens:   4096,
			Temperature: 0.3,
		},
		Resilience: ResilienceConfig{
			CacheTTL:          30 * time.Minute,
			CacheMaxEntries:   100,
			RateLimitWindow:   time.Minute,
			RateLimitMax:      20,
			RetryMaxAttempts:  3,
			RetryBaseDelay:    time.Second,
			RequestTimeout:    60 * time.Second,
			PromptTokenBudget: 3000,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "localhost:9190",
		},
		DatabasePath: filepath.Join(ProjectConfigDir, DatabaseFilename),
	}
}

// Load reads <projectDir>/.planner/config.yaml over the defaults. A missing
// file is not an error; the defaults apply unchanged.
func Load(projectDir string) (*Config, error) {
	cfg := Default()

	path := filepath.Join(projectDir, ProjectConfigDir, ConfigFilename)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to <projectDir>/.planner/config.yaml.
func Save(projectDir string, cfg *Config) error {
	dir := filepath.Join(projectDir, ProjectConfigDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ConfigFilename), data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate rejects configurations that cannot drive the workflow.
func (c *Config) Validate() error {
	switch c.Generation.Provider {
	case ProviderAnthropic, ProviderOpenAI, ProviderGoogle, ProviderOllama:
	default:
		return fmt.Errorf("unknown generation provider %q", c.Generation.Provider)
	}
	if c.Generation.Model == "" {
		return fmt.Errorf("generation model must be set")
	}
	if c.Generation.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive")
	}
	if c.Resilience.CacheMaxEntries <= 0 {
		return fmt.Errorf("cache max entries must be positive")
	}
	if c.Resilience.RateLimitMax <= 0 {
		return fmt.Errorf("rate limit cap must be positive")
	}
	if c.Resilience.RetryMaxAttempts <= 0 {
		return fmt.Errorf("retry max attempts must be positive")
	}
	return nil
}

// APIKeyName returns the secret/environment name holding the API key for the
// configured provider. Ollama runs locally and needs no key.
func (c *Config) APIKeyName() string {
	switch c.Generation.Provider {
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderGoogle:
		return "GEMINI_API_KEY"
	default:
		return ""
	}
}
