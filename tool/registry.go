package tool

import (
	"sync"

	"github.com/rs/zerolog"
)

// Registry maps tool names to tools. Lookup is case-sensitive exact match.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	order  []string
	logger zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]Tool),
		logger: logger.With().Str("component", "tool_registry").Logger(),
	}
}

// Register adds a tool to the registry. Registering the same name twice
// replaces the earlier tool.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Name()
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.logger.Debug().Str("name", name).Msg("Registering tool")
	r.tools[name] = t
}

// Resolve looks up a tool by name.
func (r *Registry) Resolve(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all registered tools in registration order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
