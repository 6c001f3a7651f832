package chat

import (
	"context"
	"errors"

	"github.com/parley-ai/parley/llm"
	"github.com/parley-ai/parley/resilience"
	"github.com/rs/zerolog"
)

// DefaultMaxDepth bounds runaway tool-call chains: the number of
// tool-execution rounds allowed within one Ask before the engine gives up.
const DefaultMaxDepth = 10

// Engine runs the tool loop for conversations. One engine is shared by many
// conversations; the resilience stack it holds keys its state by backend.
type Engine struct {
	stack    *resilience.Stack
	maxDepth int
	logger   zerolog.Logger
}

// NewEngine creates an engine around a shared resilience stack. stack may be
// nil, in which case provider calls run unguarded.
func NewEngine(stack *resilience.Stack, logger zerolog.Logger) *Engine {
	return &Engine{
		stack:    stack,
		maxDepth: DefaultMaxDepth,
		logger:   logger.With().Str("component", "engine").Logger(),
	}
}

// provider returns the conversation's provider wrapped with the enabled
// resilience primitives.
func (e *Engine) provider(conv Conversation) llm.Provider {
	if e.stack == nil {
		return conv.Provider
	}
	toggles := conv.Resilience
	if toggles.OnRetry == nil {
		toggles.OnRetry = conv.Callbacks.OnRetry
	}
	return e.stack.Wrap(conv.Provider, conv.Backend, toggles)
}

// assistantMessage converts a model response into the conversation message
// recording it.
func assistantMessage(resp *llm.Response) llm.Message {
	if resp.HasToolCalls() {
		return llm.NewToolCallMessage(resp.Content, resp.ToolCalls)
	}
	return llm.Message{Role: llm.RoleAssistant, Content: resp.Content}
}

// Ask appends input as a user message and drives the conversation to a final
// answer, executing requested tools and re-invoking the model with their
// results until the model stops asking for tools or the depth bound is hit.
//
// The returned Conversation carries every message appended along the way,
// including partial progress when an error is returned: a provider failure
// mid-loop surfaces immediately, it is never recovered the way individual
// tool failures are.
func (e *Engine) Ask(ctx context.Context, conv Conversation, input string) (Conversation, *llm.Response, error) {
	if err := e.validate(conv); err != nil {
		return conv, nil, err
	}
	conv = conv.Append(llm.NewUserMessage(input))
	return e.run(ctx, conv, func(ctx context.Context, p llm.Provider, req *llm.Request) (*llm.Response, error) {
		return p.Chat(ctx, req)
	})
}

// AskStream is Ask with streaming delivery: fragments are folded into the
// final response and forwarded to the OnChunk callback in arrival order.
// Tool-call rounds stream too; only the last round's text is the answer.
func (e *Engine) AskStream(ctx context.Context, conv Conversation, input string) (Conversation, *llm.Response, error) {
	if err := e.validate(conv); err != nil {
		return conv, nil, err
	}
	conv = conv.Append(llm.NewUserMessage(input))
	onChunk := conv.Callbacks.OnChunk
	return e.run(ctx, conv, func(ctx context.Context, p llm.Provider, req *llm.Request) (*llm.Response, error) {
		acc := llm.Accumulator{}
		_, err := p.Stream(ctx, req, func(frag llm.Fragment) error {
			acc = acc.Add(frag)
			if onChunk != nil {
				return onChunk(frag)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return acc.Response(), nil
	})
}

func (e *Engine) validate(conv Conversation) error {
	if conv.Provider == nil {
		return llm.NewValidationError("conversation has no provider", nil)
	}
	if conv.Model == "" {
		return llm.NewValidationError("conversation has no model", nil)
	}
	return nil
}

// invoke performs one model call, synchronous or streaming.
type invoke func(ctx context.Context, p llm.Provider, req *llm.Request) (*llm.Response, error)

// run is the tool loop state machine. Each iteration invokes the model once;
// a response without tool calls (or with no tools registered) is final. Tool
// rounds append the assistant's tool-call message plus one tool-result
// message per call, then loop. The depth counter bounds tool rounds, so the
// loop makes at most maxDepth+1 model calls.
func (e *Engine) run(ctx context.Context, conv Conversation, call invoke) (Conversation, *llm.Response, error) {
	provider := e.provider(conv)

	for depth := 0; ; depth++ {
		e.logger.Debug().
			Str("conversation", conv.ID).
			Str("model", conv.Model).
			Int("depth", depth).
			Int("messages", len(conv.Messages)).
			Msg("Calling model")

		resp, err := call(ctx, provider, conv.request())
		if err != nil {
			return conv, nil, err
		}
		conv = conv.Append(assistantMessage(resp))

		if !resp.HasToolCalls() || len(conv.Tools) == 0 {
			return conv, resp, nil
		}
		if depth == e.maxDepth {
			e.logger.Warn().
				Str("conversation", conv.ID).
				Int("depth", depth).
				Msg("Tool loop exceeded maximum depth")
			return conv, nil, llm.NewMaxDepthError(e.maxDepth)
		}

		conv = conv.Append(e.executeTools(ctx, conv, resp.ToolCalls)...)

		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return conv, nil, llm.NewTimeoutError("conversation deadline exceeded", err)
			}
			return conv, nil, err
		}
	}
}
