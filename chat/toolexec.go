package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/parley-ai/parley/llm"
	"github.com/parley-ai/parley/tool"
	"github.com/samber/lo"
)

// toolOutcome is the result of one tool invocation.
type toolOutcome struct {
	call   llm.ToolCall
	result any
	err    error
}

// executeTools runs one turn's tool calls and returns a tool-result message
// per call, in the original call order regardless of completion order. A
// failing tool yields an error result instead of failing its siblings.
func (e *Engine) executeTools(ctx context.Context, conv Conversation, calls []llm.ToolCall) []llm.Message {
	lookup := make(map[string]tool.Tool, len(conv.Tools))
	for _, t := range conv.Tools {
		lookup[t.Name()] = t
	}

	// Duplicate identifiers inside one response are collapsed, first
	// occurrence wins. Missing identifiers get a synthesized one so every
	// result message can reference its call.
	seen := make(map[string]bool, len(calls))
	unique := make([]llm.ToolCall, 0, len(calls))
	for _, call := range calls {
		if call.ID == "" {
			call.ID = uuid.NewString()
		}
		if seen[call.ID] {
			continue
		}
		seen[call.ID] = true
		unique = append(unique, call)
	}

	timeout := conv.toolTimeout()
	outcomes := make([]toolOutcome, len(unique))

	if bound := conv.concurrencyBound(len(unique)); bound > 1 {
		e.executeToolsParallel(ctx, conv, lookup, unique, timeout, bound, outcomes)
	} else {
		for i, call := range unique {
			if conv.Callbacks.OnToolCall != nil {
				conv.Callbacks.OnToolCall(call)
			}
			outcomes[i] = e.runTool(ctx, lookup[call.Name], call, timeout)
			if conv.Callbacks.OnToolResult != nil {
				conv.Callbacks.OnToolResult(call, outcomes[i].result, outcomes[i].err)
			}
		}
	}

	return lo.Map(outcomes, func(o toolOutcome, _ int) llm.Message {
		return llm.NewToolResultMessage(o.call.ID, encodeToolResult(o))
	})
}

// executeToolsParallel runs the calls on up to bound workers. Outcomes land
// at their call's index, restoring original order. The Ordered flag defers
// OnToolResult delivery until all calls finish so observers see results in
// call order; otherwise results are delivered as they complete.
func (e *Engine) executeToolsParallel(
	ctx context.Context,
	conv Conversation,
	lookup map[string]tool.Tool,
	calls []llm.ToolCall,
	timeout time.Duration,
	bound int,
	outcomes []toolOutcome,
) {
	ordered := conv.Parallel != nil && conv.Parallel.Ordered
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, bound)

	for i, call := range calls {
		if conv.Callbacks.OnToolCall != nil {
			conv.Callbacks.OnToolCall(call)
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, call llm.ToolCall) {
			defer wg.Done()
			defer func() { <-sem }()
			out := e.runTool(ctx, lookup[call.Name], call, timeout)
			outcomes[i] = out
			if !ordered && conv.Callbacks.OnToolResult != nil {
				mu.Lock()
				conv.Callbacks.OnToolResult(call, out.result, out.err)
				mu.Unlock()
			}
		}(i, call)
	}
	wg.Wait()

	if ordered && conv.Callbacks.OnToolResult != nil {
		for i, call := range calls {
			conv.Callbacks.OnToolResult(call, outcomes[i].result, outcomes[i].err)
		}
	}
}

// runTool invokes a single tool under its deadline. An unresolved name, a
// tool error, a panic, or a timeout all become an error outcome; none of
// them aborts the turn.
func (e *Engine) runTool(ctx context.Context, t tool.Tool, call llm.ToolCall, timeout time.Duration) toolOutcome {
	if t == nil {
		e.logger.Warn().Str("tool", call.Name).Msg("Model requested unregistered tool")
		return toolOutcome{call: call, err: llm.NewToolError(fmt.Sprintf("unknown tool %q", call.Name), nil)}
	}

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan toolOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- toolOutcome{call: call, err: llm.NewToolError(fmt.Sprintf("tool panicked: %v", r), nil)}
			}
		}()
		result, err := t.Execute(tctx, call.Arguments)
		if err != nil {
			err = llm.NewToolError(err.Error(), err)
		}
		done <- toolOutcome{call: call, result: result, err: err}
	}()

	select {
	case out := <-done:
		return out
	case <-tctx.Done():
		if errors.Is(tctx.Err(), context.DeadlineExceeded) {
			e.logger.Warn().
				Str("tool", call.Name).
				Dur("timeout", timeout).
				Msg("Tool exceeded its deadline")
			return toolOutcome{call: call, err: llm.NewToolError("tool_timeout", tctx.Err())}
		}
		return toolOutcome{call: call, err: llm.NewToolError("tool canceled", tctx.Err())}
	}
}

// encodeToolResult serializes an outcome for the model. Failures become an
// error payload so the model can react to them.
func encodeToolResult(o toolOutcome) string {
	payload := o.result
	if o.err != nil {
		msg := o.err.Error()
		var llmErr *llm.Error
		if errors.As(o.err, &llmErr) {
			msg = llmErr.Message
		}
		payload = map[string]any{"error": msg}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		b, _ = json.Marshal(map[string]any{"error": "unserializable tool result"})
	}
	return string(b)
}
