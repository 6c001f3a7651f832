package llm

import (
	"encoding/json"
	"testing"
)

func TestNewUserMessage(t *testing.T) {
	msg := NewUserMessage("Hello, world!")
	if msg.Role != RoleUser {
		t.Errorf("Expected role %v, got %v", RoleUser, msg.Role)
	}
	if msg.Content == nil || *msg.Content != "Hello, world!" {
		t.Errorf("Expected content 'Hello, world!', got %v", msg.Content)
	}
}

func TestNewToolCallMessage(t *testing.T) {
	calls := []ToolCall{
		{ID: "call-1", Name: "test_tool", Arguments: map[string]any{"arg": "value"}},
	}
	msg := NewToolCallMessage(nil, calls)
	if msg.Role != RoleAssistant {
		t.Errorf("Expected role %v, got %v", RoleAssistant, msg.Role)
	}
	if msg.Content != nil {
		t.Errorf("Expected nil content for tool-call-only message, got %q", *msg.Content)
	}
	if len(msg.ToolCalls) != 1 || msg.ToolCalls[0].ID != "call-1" {
		t.Errorf("Expected tool call 'call-1', got %v", msg.ToolCalls)
	}
}

func TestNewToolResultMessage(t *testing.T) {
	msg := NewToolResultMessage("call-1", `{"result": "success"}`)
	if msg.Role != RoleTool {
		t.Errorf("Expected role %v, got %v", RoleTool, msg.Role)
	}
	if msg.ToolCallID != "call-1" {
		t.Errorf("Expected tool call ID 'call-1', got %q", msg.ToolCallID)
	}
	if msg.Text() != `{"result": "success"}` {
		t.Errorf("Unexpected content %q", msg.Text())
	}
}

func TestMessageText(t *testing.T) {
	if got := (Message{}).Text(); got != "" {
		t.Errorf("Expected empty text for nil content, got %q", got)
	}
	if got := NewAssistantMessage("hi").Text(); got != "hi" {
		t.Errorf("Expected 'hi', got %q", got)
	}
}

func TestResponseHasToolCalls(t *testing.T) {
	var nilResp *Response
	if nilResp.HasToolCalls() {
		t.Error("Expected nil response to have no tool calls")
	}
	resp := &Response{ToolCalls: []ToolCall{{ID: "t1"}}}
	if !resp.HasToolCalls() {
		t.Error("Expected response with tool calls to report them")
	}
}

func TestMessageToJSON(t *testing.T) {
	msg := NewUserMessage("Test message")
	jsonData, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("Failed to marshal message to JSON: %v", err)
	}
	var decoded Message
	if err := json.Unmarshal(jsonData, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal JSON: %v", err)
	}
	if decoded.Role != msg.Role {
		t.Errorf("Expected role %v, got %v", msg.Role, decoded.Role)
	}
}
