package openai

import (
	"encoding/json"

	"github.com/parley-ai/parley/llm"
	"github.com/samber/lo"
	openai "github.com/sashabaranov/go-openai"
)

// toMessages converts provider-neutral messages to OpenAI chat format.
func toMessages(msgs []llm.Message) ([]openai.ChatCompletionMessage, error) {
	result := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, msg := range msgs {
		converted, err := toMessage(msg)
		if err != nil {
			return nil, err
		}
		result = append(result, converted)
	}
	return result, nil
}

func toMessage(msg llm.Message) (openai.ChatCompletionMessage, error) {
	out := openai.ChatCompletionMessage{Content: msg.Text()}

	switch msg.Role {
	case llm.RoleUser:
		out.Role = openai.ChatMessageRoleUser
	case llm.RoleAssistant:
		out.Role = openai.ChatMessageRoleAssistant
	case llm.RoleSystem:
		out.Role = openai.ChatMessageRoleSystem
	case llm.RoleTool:
		out.Role = openai.ChatMessageRoleTool
		out.ToolCallID = msg.ToolCallID
	default:
		out.Role = openai.ChatMessageRoleUser
	}

	for _, call := range msg.ToolCalls {
		argsJSON, err := json.Marshal(call.Arguments)
		if err != nil {
			return openai.ChatCompletionMessage{}, llm.NewValidationError("failed to marshal tool arguments", err)
		}
		out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
			ID:   call.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      call.Name,
				Arguments: string(argsJSON),
			},
		})
	}
	return out, nil
}

// toTools converts tool specs to OpenAI function definitions.
func toTools(specs []llm.ToolSpec) []openai.Tool {
	return lo.Map(specs, func(spec llm.ToolSpec, _ int) openai.Tool {
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

		parameters := map[string]any{
			"type":       "object",
			"properties": properties,
		}
		if len(required) > 0 {
			parameters["required"] = required
		}

		return openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  parameters,
			},
		}
	})
}

// fromToolCalls converts OpenAI tool calls back to the neutral shape.
// Unparseable argument payloads degrade to an empty map rather than failing
// the whole response.
func fromToolCalls(calls []openai.ToolCall) []llm.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	return lo.Map(calls, func(call openai.ToolCall, _ int) llm.ToolCall {
		args := make(map[string]any)
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				args = make(map[string]any)
			}
		}
		return llm.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: args,
		}
	})
}

func fromUsage(u *openai.Usage) *llm.Usage {
	if u == nil {
		return nil
	}
	return &llm.Usage{
		InputTokens:  llm.Int64(int64(u.PromptTokens)),
		OutputTokens: llm.Int64(int64(u.CompletionTokens)),
		TotalTokens:  llm.Int64(int64(u.TotalTokens)),
	}
}

func fromFinishReason(r openai.FinishReason) llm.FinishReason {
	switch r {
	case openai.FinishReasonStop:
		return llm.FinishStop
	case openai.FinishReasonLength:
		return llm.FinishLength
	case openai.FinishReasonToolCalls:
		return llm.FinishToolCalls
	case openai.FinishReasonContentFilter:
		return llm.FinishContentFilter
	default:
		return llm.FinishStop
	}
}
