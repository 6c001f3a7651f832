// Package provider resolves configured backend names to constructed
// llm.Provider implementations.
package provider

import (
	"fmt"
	"os"
	"sync"

	"github.com/parley-ai/parley/config"
	"github.com/parley-ai/parley/llm"
	"github.com/parley-ai/parley/provider/anthropic"
	"github.com/parley-ai/parley/provider/ollama"
	"github.com/parley-ai/parley/provider/openai"
	"github.com/rs/zerolog"
)

const (
	Anthropic = "anthropic"
	OpenAI    = "openai"
	Ollama    = "ollama"
)

// Registry selects and constructs providers from configuration. Constructed
// providers are cached per backend name.
type Registry struct {
	cfg     config.Config
	enabled map[string]bool
	mu      sync.Mutex
	clients map[string]llm.Provider
	logger  zerolog.Logger
}

// NewRegistry creates a registry over cfg. cfg.Providers lists the enabled
// backends in preference order.
func NewRegistry(cfg config.Config, logger zerolog.Logger) *Registry {
	enabled := make(map[string]bool, len(cfg.Providers))
	for _, name := range cfg.Providers {
		enabled[name] = true
	}
	return &Registry{
		cfg:     cfg,
		enabled: enabled,
		clients: make(map[string]llm.Provider),
		logger:  logger.With().Str("component", "provider_registry").Logger(),
	}
}

// Enabled reports whether the backend is in the enabled list.
func (r *Registry) Enabled(name string) bool {
	return r.enabled[name]
}

// Configured reports whether the backend has the credentials it needs,
// from the config file or the conventional environment variables.
func (r *Registry) Configured(name string) bool {
	switch name {
	case Anthropic:
		return r.anthropicKey() != ""
	case OpenAI:
		return r.openaiKey() != ""
	case Ollama:
		// No credentials needed; the host has a default.
		return true
	default:
		return false
	}
}

// DefaultModel returns the configured default model for a backend.
func (r *Registry) DefaultModel(name string) string {
	switch name {
	case Anthropic:
		return r.cfg.Anthropic.Model
	case OpenAI:
		if r.cfg.OpenAI.Model != "" {
			return r.cfg.OpenAI.Model
		}
		return os.Getenv("OPENAI_MODEL")
	case Ollama:
		if r.cfg.Ollama.Model != "" {
			return r.cfg.Ollama.Model
		}
		return os.Getenv("OLLAMA_MODEL")
	default:
		return ""
	}
}

// Resolve constructs (or returns the cached) provider for a backend name.
func (r *Registry) Resolve(name string) (llm.Provider, error) {
	if !r.Enabled(name) {
		return nil, fmt.Errorf("provider %q is not enabled", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if client, ok := r.clients[name]; ok {
		return client, nil
	}

	client, err := r.build(name)
	if err != nil {
		return nil, err
	}
	r.clients[name] = client
	r.logger.Debug().Str("provider", name).Msg("Constructed provider")
	return client, nil
}

// ResolveFirst returns the first enabled and configured backend in
// preference order, together with its constructed provider.
func (r *Registry) ResolveFirst() (string, llm.Provider, error) {
	for _, name := range r.cfg.Providers {
		if !r.Configured(name) {
			r.logger.Debug().Str("provider", name).Msg("Skipping unconfigured provider")
			continue
		}
		client, err := r.Resolve(name)
		if err != nil {
			r.logger.Warn().Err(err).Str("provider", name).Msg("Failed to construct provider")
			continue
		}
		return name, client, nil
	}
	return "", nil, fmt.Errorf("no configured provider among %v", r.cfg.Providers)
}

func (r *Registry) build(name string) (llm.Provider, error) {
	switch name {
	case Anthropic:
		return anthropic.New(r.anthropicKey(), r.logger)
	case OpenAI:
		baseURL := r.cfg.OpenAI.BaseURL
		if baseURL == "" {
			baseURL = os.Getenv("OPENAI_BASE_URL")
		}
		org := r.cfg.OpenAI.Organization
		if org == "" {
			org = os.Getenv("OPENAI_ORG_ID")
		}
		return openai.New(r.openaiKey(), baseURL, r.DefaultModel(OpenAI), org)
	case Ollama:
		host := r.cfg.Ollama.Host
		if host == "" {
			host = os.Getenv("OLLAMA_HOST")
		}
		return ollama.New(host, r.DefaultModel(Ollama))
	default:
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
}

func (r *Registry) anthropicKey() string {
	if r.cfg.Anthropic.APIKey != "" {
		return r.cfg.Anthropic.APIKey
	}
	return os.Getenv("ANTHROPIC_API_KEY")
}

func (r *Registry) openaiKey() string {
	if r.cfg.OpenAI.APIKey != "" {
		return r.cfg.OpenAI.APIKey
	}
	return os.Getenv("OPENAI_API_KEY")
}
