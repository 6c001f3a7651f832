package anthropic

import (
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/parley-ai/parley/llm"
)

// consumeStream drains the SSE stream into fragments. Text deltas are
// forwarded as they arrive; a tool call's incrementally streamed input JSON
// is buffered and the complete call emitted as one fragment when its content
// block closes.
func consumeStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], onFragment llm.FragmentHandler) (*llm.Response, error) {
	acc := llm.Accumulator{}
	emit := func(frag llm.Fragment) error {
		acc = acc.Add(frag)
		if onFragment != nil {
			return onFragment(frag)
		}
		return nil
	}

	var currentTool *llm.ToolCall
	var toolInput strings.Builder
	var inputTokens, outputTokens int64
	model := ""
	finish := llm.FinishStop

	for stream.Next() {
		event := stream.Current()

		switch evt := event.AsAny().(type) {
		case anthropic.MessageStartEvent:
			model = string(evt.Message.Model)
			inputTokens = evt.Message.Usage.InputTokens

		case anthropic.ContentBlockStartEvent:
			if block, ok := evt.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
				currentTool = &llm.ToolCall{ID: block.ID, Name: block.Name}
				toolInput.Reset()
			}

		case anthropic.ContentBlockDeltaEvent:
			switch delta := evt.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if delta.Text != "" {
					if err := emit(llm.Fragment{Text: delta.Text}); err != nil {
						return nil, err
					}
				}
			case anthropic.InputJSONDelta:
				if currentTool != nil {
					toolInput.WriteString(delta.PartialJSON)
				}
			}

		case anthropic.ContentBlockStopEvent:
			if currentTool != nil {
				currentTool.Arguments = decodeToolInput([]byte(toolInput.String()))
				frag := llm.Fragment{ToolCalls: []llm.ToolCall{*currentTool}}
				currentTool = nil
				toolInput.Reset()
				if err := emit(frag); err != nil {
					return nil, err
				}
			}

		case anthropic.MessageDeltaEvent:
			outputTokens = evt.Usage.OutputTokens
			if evt.Delta.StopReason != "" {
				finish = fromStopReason(evt.Delta.StopReason)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, convertError(err)
	}

	final := llm.Fragment{
		Model:        model,
		Usage:        fromUsage(inputTokens, outputTokens),
		FinishReason: finish,
	}
	if err := emit(final); err != nil {
		return nil, err
	}
	return acc.Response(), nil
}
