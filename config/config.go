// Package config loads parley configuration from YAML, merging file values
// over defaults and per-call overrides over both.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// AnthropicConfig configures the Anthropic provider.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key,omitempty"`
	Model  string `yaml:"model,omitempty"`
}

// OpenAIConfig configures the OpenAI provider.
type OpenAIConfig struct {
	APIKey       string `yaml:"api_key,omitempty"`
	BaseURL      string `yaml:"base_url,omitempty"` // custom endpoint, default: official API
	Model        string `yaml:"model,omitempty"`
	Organization string `yaml:"organization,omitempty"`
}

// OllamaConfig configures the Ollama provider.
type OllamaConfig struct {
	Host  string `yaml:"host,omitempty"` // default: "http://localhost:11434"
	Model string `yaml:"model,omitempty"`
}

// RetryConfig is the retry policy surface.
type RetryConfig struct {
	MaxAttempts int   `yaml:"max_attempts,omitempty"`
	BaseDelayMs int   `yaml:"base_delay_ms,omitempty"`
	MaxDelayMs  int   `yaml:"max_delay_ms,omitempty"`
	Jitter      *bool `yaml:"jitter,omitempty"` // pointer so "false" survives merging
}

// RateLimiterConfig is the per-backend rate limiter surface.
type RateLimiterConfig struct {
	Enabled           *bool          `yaml:"enabled,omitempty"`
	RequestsPerMinute int            `yaml:"requests_per_minute,omitempty"`
	PerBackend        map[string]int `yaml:"per_backend,omitempty"`
}

// CircuitBreakerConfig is the circuit breaker surface.
type CircuitBreakerConfig struct {
	Enabled           *bool `yaml:"enabled,omitempty"`
	FailureThreshold  int   `yaml:"failure_threshold,omitempty"`
	RecoveryTimeoutMs int   `yaml:"recovery_timeout_ms,omitempty"`
	HalfOpenMaxCalls  int   `yaml:"half_open_max_calls,omitempty"`
}

// CacheConfig is the response cache surface. Caching is opt-in.
type CacheConfig struct {
	Enabled    bool `yaml:"enabled,omitempty"`
	TTLMs      int  `yaml:"ttl_ms,omitempty"`
	MaxEntries int  `yaml:"max_entries,omitempty"`
}

// Config is the full parley configuration.
type Config struct {
	// Providers lists the enabled backends in preference order.
	Providers []string `yaml:"providers,omitempty"`

	Anthropic AnthropicConfig `yaml:"anthropic,omitempty"`
	OpenAI    OpenAIConfig    `yaml:"openai,omitempty"`
	Ollama    OllamaConfig    `yaml:"ollama,omitempty"`

	Retry          RetryConfig          `yaml:"retry,omitempty"`
	RateLimiter    RateLimiterConfig    `yaml:"rate_limiter,omitempty"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker,omitempty"`
	Cache          CacheConfig          `yaml:"cache,omitempty"`

	LogLevel string `yaml:"log_level,omitempty"`
	LogFile  string `yaml:"log_file,omitempty"`
}

// Default returns the built-in configuration: retry, rate limiting, and
// circuit breaking on with their standard settings, caching off.
func Default() Config {
	enabled := true
	jitter := true
	return Config{
		Providers: []string{"anthropic", "openai", "ollama"},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelayMs: 1000,
			MaxDelayMs:  30000,
			Jitter:      &jitter,
		},
		RateLimiter: RateLimiterConfig{
			Enabled:           &enabled,
			RequestsPerMinute: 60,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:           &enabled,
			FailureThreshold:  5,
			RecoveryTimeoutMs: 30000,
			HalfOpenMaxCalls:  3,
		},
		Cache: CacheConfig{
			TTLMs:      300000,
			MaxEntries: 1000,
		},
	}
}

// Path returns the config file path, honoring PARLEY_CONFIG_PATH.
func Path() string {
	if envPath := os.Getenv("PARLEY_CONFIG_PATH"); envPath != "" {
		return expandPath(envPath)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./.parley/config.yaml"
	}
	return filepath.Join(homeDir, ".parley", "config.yaml")
}

// Load reads the config file at path and merges it over the defaults. A
// missing file yields the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(expandPath(path))
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	return Merge(cfg, fileCfg)
}

// boolPtrOverride merges *bool fields by pointer presence instead of value:
// mergo treats a pointed-to false as empty, so without this an explicit
// "enabled: false" or "jitter: false" in an override would lose to a true
// default.
type boolPtrOverride struct{}

func (boolPtrOverride) Transformer(typ reflect.Type) func(dst, src reflect.Value) error {
	if typ != reflect.TypeOf((*bool)(nil)) {
		return nil
	}
	return func(dst, src reflect.Value) error {
		if dst.CanSet() && !src.IsNil() {
			dst.Set(src)
		}
		return nil
	}
}

// Merge layers override onto base, override values taking precedence. A
// toggle set in the override wins even when set to false.
func Merge(base, override Config) (Config, error) {
	if err := mergo.Merge(&base, override, mergo.WithOverride, mergo.WithTransformers(boolPtrOverride{})); err != nil {
		return base, fmt.Errorf("failed to merge config: %w", err)
	}
	return base, nil
}

// Save writes cfg to path, creating the directory if needed.
func Save(cfg Config, path string) error {
	expandedPath := expandPath(path)
	if err := os.MkdirAll(filepath.Dir(expandedPath), 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(expandedPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
