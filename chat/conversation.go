// Package chat drives a logical "ask" against a model: the Conversation
// value threaded through each turn and the Engine running the tool loop.
package chat

import (
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/parley-ai/parley/llm"
	"github.com/parley-ai/parley/resilience"
	"github.com/parley-ai/parley/tool"
)

// DefaultToolTimeout bounds a single tool invocation.
const DefaultToolTimeout = 30 * time.Second

// ParallelConfig controls concurrent tool execution within one model turn.
//
// Ordered governs only when OnToolResult observes each result; the
// tool-result messages appended to the conversation are always restored to
// the original call order regardless of completion order.
type ParallelConfig struct {
	MaxConcurrency int
	Timeout        time.Duration
	Ordered        bool
}

// ParallelAuto enables parallel tool execution bounded by the number of
// available execution units.
func ParallelAuto() *ParallelConfig {
	return &ParallelConfig{MaxConcurrency: runtime.GOMAXPROCS(0)}
}

// ParallelN enables parallel tool execution with a specific bound.
func ParallelN(n int) *ParallelConfig {
	return &ParallelConfig{MaxConcurrency: n}
}

// Callbacks are optional observer hooks, all invoked synchronously from the
// engine's executing context. A non-nil OnChunk error aborts the stream.
type Callbacks struct {
	OnToolCall   func(llm.ToolCall)
	OnToolResult func(call llm.ToolCall, result any, err error)
	OnChunk      llm.FragmentHandler
	OnRetry      resilience.RetryNotify
}

// Conversation is the full state for one logical chat. A Conversation value
// is never mutated in place: every operation returns a new value, and the
// message order is append-only wall-clock conversation order. Callers that
// want history keep the returned values; discarding one discards the turn.
type Conversation struct {
	ID       string
	Model    string
	Provider llm.Provider
	// Backend keys the per-backend resilience state (rate buckets, circuit).
	Backend     string
	Messages    []llm.Message
	Tools       []tool.Tool
	Temperature *float64
	MaxTokens   int
	Options     map[string]any
	Resilience  resilience.Toggles
	// Parallel enables concurrent tool execution when non-nil. Nil means
	// strictly sequential.
	Parallel    *ParallelConfig
	ToolTimeout time.Duration
	Callbacks   Callbacks
}

// New creates an empty conversation for the given model.
func New(model string) Conversation {
	return Conversation{
		ID:          uuid.NewString(),
		Model:       model,
		ToolTimeout: DefaultToolTimeout,
	}
}

// WithProvider binds the backend implementation and its resilience key.
func (c Conversation) WithProvider(backend string, p llm.Provider) Conversation {
	c.Backend = backend
	c.Provider = p
	return c
}

// WithModel selects a different model identifier.
func (c Conversation) WithModel(model string) Conversation {
	c.Model = model
	return c
}

// WithTools registers the tools the model may invoke. Resolution during the
// tool loop is by case-sensitive exact name match.
func (c Conversation) WithTools(ts ...tool.Tool) Conversation {
	c.Tools = append(c.Tools[:len(c.Tools):len(c.Tools)], ts...)
	return c
}

// WithTemperature sets the sampling temperature.
func (c Conversation) WithTemperature(t float64) Conversation {
	c.Temperature = llm.Float64(t)
	return c
}

// WithMaxTokens caps the response length.
func (c Conversation) WithMaxTokens(n int) Conversation {
	c.MaxTokens = n
	return c
}

// WithOption sets a free-form provider parameter.
func (c Conversation) WithOption(key string, value any) Conversation {
	opts := make(map[string]any, len(c.Options)+1)
	for k, v := range c.Options {
		opts[k] = v
	}
	opts[key] = value
	c.Options = opts
	return c
}

// WithResilience selects which resilience primitives apply to this
// conversation's provider calls.
func (c Conversation) WithResilience(t resilience.Toggles) Conversation {
	c.Resilience = t
	return c
}

// WithParallelTools sets the parallel tool execution policy. Passing nil
// restores sequential execution.
func (c Conversation) WithParallelTools(p *ParallelConfig) Conversation {
	c.Parallel = p
	return c
}

// WithToolTimeout bounds each tool invocation.
func (c Conversation) WithToolTimeout(d time.Duration) Conversation {
	c.ToolTimeout = d
	return c
}

// WithCallbacks sets the observer hooks.
func (c Conversation) WithCallbacks(cb Callbacks) Conversation {
	c.Callbacks = cb
	return c
}

// WithSystem prepends a system message when none is present yet, otherwise
// appends one in order.
func (c Conversation) WithSystem(text string) Conversation {
	for _, m := range c.Messages {
		if m.Role == llm.RoleSystem {
			return c.Append(llm.NewSystemMessage(text))
		}
	}
	msgs := make([]llm.Message, 0, len(c.Messages)+1)
	msgs = append(msgs, llm.NewSystemMessage(text))
	c.Messages = append(msgs, c.Messages...)
	return c
}

// Append returns a new conversation with msgs added at the end. The
// receiver's message slice is never modified.
func (c Conversation) Append(msgs ...llm.Message) Conversation {
	c.Messages = append(c.Messages[:len(c.Messages):len(c.Messages)], msgs...)
	return c
}

// LastMessage returns the most recent message, if any.
func (c Conversation) LastMessage() (llm.Message, bool) {
	if len(c.Messages) == 0 {
		return llm.Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// request assembles the provider request for the current state.
func (c Conversation) request() *llm.Request {
	return &llm.Request{
		Model:       c.Model,
		Messages:    c.Messages,
		Tools:       tool.Specs(c.Tools),
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		Options:     c.Options,
	}
}

// toolTimeout resolves the per-tool deadline: an explicit parallel timeout
// wins, then the conversation's, then the default.
func (c Conversation) toolTimeout() time.Duration {
	if c.Parallel != nil && c.Parallel.Timeout > 0 {
		return c.Parallel.Timeout
	}
	if c.ToolTimeout > 0 {
		return c.ToolTimeout
	}
	return DefaultToolTimeout
}

// concurrencyBound resolves the number of tool workers for a turn of n calls.
func (c Conversation) concurrencyBound(n int) int {
	if c.Parallel == nil || c.Parallel.MaxConcurrency <= 1 {
		return 1
	}
	if n < c.Parallel.MaxConcurrency {
		return n
	}
	return c.Parallel.MaxConcurrency
}
