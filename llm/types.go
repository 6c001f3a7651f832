package llm

import (
	"encoding/json"
	"time"
)

// Role identifies who produced a message in a conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// FinishReason indicates why a provider stopped generating.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishContentFilter FinishReason = "content_filter"
)

// ToolCall is a single tool invocation request emitted by the model.
// The ID is opaque and provider-assigned; a ToolCall is immutable once created.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Message is a provider-neutral conversation message.
//
// Content is nil for assistant messages that only carry tool calls,
// distinguishing "no text" from an empty string. ToolCalls is set only on
// assistant messages. ToolCallID is set only on tool-result messages and
// always carries the identifier of the ToolCall it answers.
type Message struct {
	Role       Role
	Content    *string
	ToolCalls  []ToolCall
	ToolCallID string
}

// Usage holds token counts from a provider response. Fields are pointers so
// that partial counts arriving during streaming can be told apart from zero.
type Usage struct {
	InputTokens  *int64
	OutputTokens *int64
	TotalTokens  *int64
}

// Response is the final result of one completed model turn. It is never
// mutated after being produced.
type Response struct {
	Content      *string
	ToolCalls    []ToolCall
	Model        string
	Usage        *Usage
	FinishReason FinishReason
}

// Fragment is one partial delivery during a streaming call. Any subset of the
// fields may be set; a non-empty FinishReason marks the end of the stream.
// Providers emit each tool call as a single complete unit per fragment.
type Fragment struct {
	Text         string
	ToolCalls    []ToolCall
	Model        string
	Usage        *Usage
	FinishReason FinishReason
}

// ParamSpec describes one parameter of a tool's input schema.
type ParamSpec struct {
	Type        string
	Required    bool
	Description string
	Enum        []string
}

// ToolSpec is the declarative description of a tool offered to the model.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]ParamSpec
}

// Request is a complete provider-neutral model request.
type Request struct {
	Model       string
	Messages    []Message
	Tools       []ToolSpec
	Temperature *float64
	MaxTokens   int
	Options     map[string]any
}

// String returns a pointer to s, for populating nullable content fields.
func String(s string) *string {
	return &s
}

// Int64 returns a pointer to v, for populating token counts.
func Int64(v int64) *int64 {
	return &v
}

// Float64 returns a pointer to v, for populating temperature overrides.
func Float64(v float64) *float64 {
	return &v
}

// Duration returns a pointer to d, for populating retry-after hints.
func Duration(d time.Duration) *time.Duration {
	return &d
}

// NewUserMessage creates a user message with text content.
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Content: String(text)}
}

// NewSystemMessage creates a system message with text content.
func NewSystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: String(text)}
}

// NewAssistantMessage creates an assistant message with text content.
func NewAssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: String(text)}
}

// NewToolCallMessage creates an assistant message carrying tool calls.
// Content stays nil unless the model also produced text alongside the calls.
func NewToolCallMessage(content *string, calls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// NewToolResultMessage creates a tool-result message answering the call
// identified by callID.
func NewToolResultMessage(callID, content string) Message {
	return Message{Role: RoleTool, Content: String(content), ToolCallID: callID}
}

// Text returns the message content, or the empty string when Content is nil.
func (m Message) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// Text returns the response content, or the empty string when Content is nil.
func (r *Response) Text() string {
	if r == nil || r.Content == nil {
		return ""
	}
	return *r.Content
}

// HasToolCalls reports whether the response requests any tool invocations.
func (r *Response) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}

// ToJSON marshals a message to JSON for debugging/logging purposes.
func (m Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}
