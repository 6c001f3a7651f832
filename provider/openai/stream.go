package openai

import (
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/parley-ai/parley/llm"
	openai "github.com/sashabaranov/go-openai"
)

// partialToolCall accumulates a tool call delivered across several deltas.
// OpenAI streams the argument JSON incrementally per tool index; the
// complete call is emitted as a single fragment once the stream finishes,
// matching the accumulator's one-complete-call-per-fragment contract.
type partialToolCall struct {
	id   string
	name string
	args strings.Builder
}

// consumeStream drains the SDK stream, forwarding text deltas as fragments
// and emitting buffered tool calls plus usage on the final fragment. The
// accumulated Response is returned alongside.
func consumeStream(stream *openai.ChatCompletionStream, onFragment llm.FragmentHandler) (*llm.Response, error) {
	acc := llm.Accumulator{}
	emit := func(frag llm.Fragment) error {
		acc = acc.Add(frag)
		if onFragment != nil {
			return onFragment(frag)
		}
		return nil
	}

	partials := make(map[int]*partialToolCall)
	order := make([]int, 0)
	finish := llm.FinishReason("")
	var usage *llm.Usage
	model := ""

	for {
		response, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, convertError(err)
		}

		if response.Model != "" {
			model = response.Model
		}
		if response.Usage != nil {
			usage = fromUsage(response.Usage)
		}
		if len(response.Choices) == 0 {
			continue
		}
		choice := response.Choices[0]

		if choice.Delta.Content != "" {
			if err := emit(llm.Fragment{Text: choice.Delta.Content}); err != nil {
				return nil, err
			}
		}

		for _, delta := range choice.Delta.ToolCalls {
			if delta.Index == nil {
				continue
			}
			idx := *delta.Index
			partial, ok := partials[idx]
			if !ok {
				partial = &partialToolCall{}
				partials[idx] = partial
				order = append(order, idx)
			}
			if delta.ID != "" {
				partial.id = delta.ID
			}
			if delta.Function.Name != "" {
				partial.name = delta.Function.Name
			}
			partial.args.WriteString(delta.Function.Arguments)
		}

		if choice.FinishReason != "" {
			finish = fromFinishReason(choice.FinishReason)
		}
	}

	// Completed tool calls go out one per fragment, in index order.
	for _, idx := range order {
		partial := partials[idx]
		args := make(map[string]any)
		if partial.args.Len() > 0 {
			if err := json.Unmarshal([]byte(partial.args.String()), &args); err != nil {
				args = make(map[string]any)
			}
		}
		frag := llm.Fragment{ToolCalls: []llm.ToolCall{{
			ID:        partial.id,
			Name:      partial.name,
			Arguments: args,
		}}}
		if err := emit(frag); err != nil {
			return nil, err
		}
	}

	if finish == "" {
		finish = llm.FinishStop
	}
	if err := emit(llm.Fragment{Model: model, Usage: usage, FinishReason: finish}); err != nil {
		return nil, err
	}

	return acc.Response(), nil
}
