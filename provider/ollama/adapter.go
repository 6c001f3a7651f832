package ollama

import (
	"github.com/ollama/ollama/api"
	"github.com/parley-ai/parley/llm"
	"github.com/samber/lo"
)

// toMessages converts neutral messages to Ollama chat messages. Ollama has
// native user/assistant/system/tool roles, so the mapping is direct.
func toMessages(msgs []llm.Message) []api.Message {
	return lo.Map(msgs, func(msg llm.Message, _ int) api.Message {
		out := api.Message{
			Role:    string(msg.Role),
			Content: msg.Text(),
		}
		for _, call := range msg.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, api.ToolCall{
				Function: api.ToolCallFunction{
					Name:      call.Name,
					Arguments: api.ToolCallFunctionArguments(call.Arguments),
				},
			})
		}
		return out
	})
}

// toTools converts tool specs to Ollama tool definitions.
func toTools(specs []llm.ToolSpec) []api.Tool {
	if len(specs) == 0 {
		return nil
	}
	return lo.Map(specs, func(spec llm.ToolSpec, _ int) api.Tool {
		properties := make(map[string]api.ToolProperty, len(spec.Parameters))
		required := make([]string, 0)
		for name, param := range spec.Parameters {
			prop := api.ToolProperty{
				Type:        api.PropertyType{param.Type},
				Description: param.Description,
			}
			for _, e := range param.Enum {
				prop.Enum = append(prop.Enum, e)
			}
			properties[name] = prop
			if param.Required {
				required = append(required, name)
			}
		}

		return api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters: api.ToolFunctionParameters{
					Type:       "object",
					Properties: properties,
					Required:   required,
				},
			},
		}
	})
}

// fromToolCalls converts Ollama tool calls back to the neutral shape. Ollama
// does not assign call identifiers; the engine synthesizes them.
func fromToolCalls(calls []api.ToolCall) []llm.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	return lo.Map(calls, func(call api.ToolCall, _ int) llm.ToolCall {
		args := make(map[string]any, len(call.Function.Arguments))
		for k, v := range call.Function.Arguments {
			args[k] = v
		}
		return llm.ToolCall{Name: call.Function.Name, Arguments: args}
	})
}

func fromMetrics(resp api.ChatResponse) *llm.Usage {
	usage := &llm.Usage{}
	if resp.PromptEvalCount > 0 {
		usage.InputTokens = llm.Int64(int64(resp.PromptEvalCount))
	}
	if resp.EvalCount > 0 {
		usage.OutputTokens = llm.Int64(int64(resp.EvalCount))
	}
	if usage.InputTokens == nil && usage.OutputTokens == nil {
		return nil
	}
	return usage
}

func fromDoneReason(resp api.ChatResponse) llm.FinishReason {
	if len(resp.Message.ToolCalls) > 0 {
		return llm.FinishToolCalls
	}
	if resp.DoneReason == "length" {
		return llm.FinishLength
	}
	return llm.FinishStop
}

// fromChatResponse converts a completed chat response to the neutral shape.
func fromChatResponse(resp api.ChatResponse) *llm.Response {
	out := &llm.Response{
		Model:        resp.Model,
		ToolCalls:    fromToolCalls(resp.Message.ToolCalls),
		Usage:        fromMetrics(resp),
		FinishReason: fromDoneReason(resp),
	}
	if resp.Message.Content != "" {
		out.Content = llm.String(resp.Message.Content)
	}
	return out
}
