package anthropic

import (
	"encoding/json"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/parley-ai/parley/llm"
	"github.com/samber/lo"
)

// toMessageParams converts neutral messages to Anthropic message params.
// System messages do not exist as a role in the Messages API; they are
// collected into the separate system blocks. Tool results become user
// messages carrying tool_result blocks.
func toMessageParams(msgs []llm.Message) ([]anthropic.MessageParam, []anthropic.TextBlockParam) {
	result := make([]anthropic.MessageParam, 0, len(msgs))
	var system []anthropic.TextBlockParam

	for _, msg := range msgs {
		switch msg.Role {
		case llm.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: msg.Text()})

		case llm.RoleAssistant:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.ToolCalls)+1)
			if msg.Content != nil && *msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(*msg.Content))
			}
			for _, call := range msg.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, call.Arguments, call.Name))
			}
			if len(blocks) > 0 {
				result = append(result, anthropic.NewAssistantMessage(blocks...))
			}

		case llm.RoleTool:
			result = append(result, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Text(), false),
			))

		default:
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Text())))
		}
	}
	return result, system
}

// toToolUnionParams converts tool specs to Anthropic tool params.
func toToolUnionParams(specs []llm.ToolSpec) []anthropic.ToolUnionParam {
	return lo.Map(specs, func(spec llm.ToolSpec, _ int) anthropic.ToolUnionParam {
		properties := make(map[string]any, len(spec.Parameters))
		required := make([]string, 0)
		for name, param := range spec.Parameters {
			prop := map[string]any{"type": param.Type}
			if param.Description != "" {
				prop["description"] = param.Description
			}
			if len(param.Enum) > 0 {
				prop["enum"] = param.Enum
			}
			properties[name] = prop
			if param.Required {
				required = append(required, name)
			}
		}

		return anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        spec.Name,
			Description: anthropic.String(spec.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Type:       "object",
				Properties: properties,
				Required:   required,
			},
		}}
	})
}

// fromMessage converts a completed API message to the neutral response.
func fromMessage(message *anthropic.Message) *llm.Response {
	var text string
	var calls []llm.ToolCall

	for _, blockUnion := range message.Content {
		switch block := blockUnion.AsAny().(type) {
		case anthropic.TextBlock:
			text += block.Text
		case anthropic.ToolUseBlock:
			calls = append(calls, llm.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: decodeToolInput(block.Input),
			})
		}
	}

	resp := &llm.Response{
		Model:        string(message.Model),
		ToolCalls:    calls,
		Usage:        fromUsage(message.Usage.InputTokens, message.Usage.OutputTokens),
		FinishReason: fromStopReason(message.StopReason),
	}
	if text != "" {
		resp.Content = llm.String(text)
	}
	return resp
}

// decodeToolInput round-trips the SDK's raw tool input into an argument map.
func decodeToolInput(input json.RawMessage) map[string]any {
	args := make(map[string]any)
	if len(input) > 0 {
		if err := json.Unmarshal(input, &args); err != nil {
			args = make(map[string]any)
		}
	}
	return args
}

func fromUsage(input, output int64) *llm.Usage {
	return &llm.Usage{
		InputTokens:  llm.Int64(input),
		OutputTokens: llm.Int64(output),
		TotalTokens:  llm.Int64(input + output),
	}
}

func fromStopReason(r anthropic.StopReason) llm.FinishReason {
	switch r {
	case anthropic.StopReasonMaxTokens:
		return llm.FinishLength
	case anthropic.StopReasonToolUse:
		return llm.FinishToolCalls
	case anthropic.StopReasonRefusal:
		return llm.FinishContentFilter
	default:
		return llm.FinishStop
	}
}
