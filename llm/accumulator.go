package llm

import "strings"

// Accumulator folds an ordered sequence of Fragments into one Response.
//
// The zero value is ready to use. Add returns a new Accumulator so the fold
// carries no hidden state; one Accumulator belongs to exactly one streaming
// call and must not be shared across concurrent streams.
type Accumulator struct {
	parts     []string
	toolCalls []ToolCall
	model     string
	usage     *Usage
	finish    FinishReason
}

// Add folds one fragment into the accumulator. Text is concatenated, tool
// calls are appended (never merged by identifier), and model and token
// counts follow last-non-null-writer-wins. A fragment carrying a finish
// reason ends accumulation; fragments after that are ignored.
func (a Accumulator) Add(f Fragment) Accumulator {
	if a.Done() {
		return a
	}
	if f.Text != "" {
		a.parts = append(a.parts[:len(a.parts):len(a.parts)], f.Text)
	}
	if len(f.ToolCalls) > 0 {
		a.toolCalls = append(a.toolCalls[:len(a.toolCalls):len(a.toolCalls)], f.ToolCalls...)
	}
	if f.Model != "" {
		a.model = f.Model
	}
	if f.Usage != nil {
		a.usage = mergeUsage(a.usage, f.Usage)
	}
	if f.FinishReason != "" {
		a.finish = f.FinishReason
	}
	return a
}

// Done reports whether a finish reason has been seen.
func (a Accumulator) Done() bool {
	return a.finish != ""
}

// Response produces the final Response from the accumulated state. Empty
// accumulated text becomes a nil Content field and an empty tool-call list
// becomes nil, distinguishing "no answer" from an empty answer. TotalTokens
// is filled in only when both input and output counts are known.
func (a Accumulator) Response() *Response {
	resp := &Response{
		Model:        a.model,
		FinishReason: a.finish,
	}
	if len(a.parts) > 0 {
		resp.Content = String(strings.Join(a.parts, ""))
	}
	if len(a.toolCalls) > 0 {
		resp.ToolCalls = a.toolCalls
	}
	if a.usage != nil {
		u := *a.usage
		if u.TotalTokens == nil && u.InputTokens != nil && u.OutputTokens != nil {
			u.TotalTokens = Int64(*u.InputTokens + *u.OutputTokens)
		}
		resp.Usage = &u
	}
	return resp
}

// mergeUsage overlays non-nil counts from next onto prev, returning a new
// value so earlier fragments are never mutated.
func mergeUsage(prev, next *Usage) *Usage {
	merged := Usage{}
	if prev != nil {
		merged = *prev
	}
	if next.InputTokens != nil {
		merged.InputTokens = next.InputTokens
	}
	if next.OutputTokens != nil {
		merged.OutputTokens = next.OutputTokens
	}
	if next.TotalTokens != nil {
		merged.TotalTokens = next.TotalTokens
	}
	return &merged
}
