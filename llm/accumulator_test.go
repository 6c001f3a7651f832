package llm

import (
	"testing"
)

func TestAccumulatorTextConcatenation(t *testing.T) {
	var acc Accumulator
	acc = acc.Add(Fragment{Text: "Hel"})
	acc = acc.Add(Fragment{Text: "lo"})
	acc = acc.Add(Fragment{FinishReason: FinishStop})

	resp := acc.Response()
	if resp.Content == nil {
		t.Fatal("Expected non-nil content")
	}
	if *resp.Content != "Hello" {
		t.Errorf("Expected content %q, got %q", "Hello", *resp.Content)
	}
	if resp.FinishReason != FinishStop {
		t.Errorf("Expected finish reason %q, got %q", FinishStop, resp.FinishReason)
	}
}

func TestAccumulatorSequentialEqualsBatch(t *testing.T) {
	fragments := []Fragment{
		{Text: "a", Model: "m1"},
		{Text: "b", Usage: &Usage{InputTokens: Int64(10)}},
		{ToolCalls: []ToolCall{{ID: "t1", Name: "lookup"}}},
		{Text: "c", Model: "m2", Usage: &Usage{OutputTokens: Int64(5)}},
		{FinishReason: FinishToolCalls},
	}

	var sequential Accumulator
	for _, f := range fragments {
		sequential = sequential.Add(f)
	}

	// Feeding through intermediate copies must produce the same result.
	step1 := Accumulator{}.Add(fragments[0]).Add(fragments[1])
	step2 := step1.Add(fragments[2]).Add(fragments[3])
	batched := step2.Add(fragments[4])

	a, b := sequential.Response(), batched.Response()
	if a.Text() != b.Text() {
		t.Errorf("Text mismatch: %q vs %q", a.Text(), b.Text())
	}
	if a.Model != b.Model || a.Model != "m2" {
		t.Errorf("Expected model m2, got %q and %q", a.Model, b.Model)
	}
	if len(a.ToolCalls) != 1 || len(b.ToolCalls) != 1 {
		t.Errorf("Expected 1 tool call in both, got %d and %d", len(a.ToolCalls), len(b.ToolCalls))
	}
	if a.FinishReason != b.FinishReason {
		t.Errorf("Finish mismatch: %q vs %q", a.FinishReason, b.FinishReason)
	}
}

func TestAccumulatorDerivedCopiesDoNotAlias(t *testing.T) {
	base := Accumulator{}.Add(Fragment{Text: "x"})
	left := base.Add(Fragment{Text: "L"})
	right := base.Add(Fragment{Text: "R"})

	if got := left.Response().Text(); got != "xL" {
		t.Errorf("Expected %q, got %q", "xL", got)
	}
	if got := right.Response().Text(); got != "xR" {
		t.Errorf("Expected %q, got %q", "xR", got)
	}
}

func TestAccumulatorToolCallsConcatenatedNotMerged(t *testing.T) {
	var acc Accumulator
	acc = acc.Add(Fragment{ToolCalls: []ToolCall{{ID: "t1", Name: "a"}}})
	acc = acc.Add(Fragment{ToolCalls: []ToolCall{{ID: "t1", Name: "a"}, {ID: "t2", Name: "b"}}})

	resp := acc.Response()
	if len(resp.ToolCalls) != 3 {
		t.Fatalf("Expected 3 tool calls (concatenation, not merge), got %d", len(resp.ToolCalls))
	}
}

func TestAccumulatorEmptyStreamProducesNilFields(t *testing.T) {
	var acc Accumulator
	acc = acc.Add(Fragment{FinishReason: FinishStop})

	resp := acc.Response()
	if resp.Content != nil {
		t.Errorf("Expected nil content for empty stream, got %q", *resp.Content)
	}
	if resp.ToolCalls != nil {
		t.Errorf("Expected nil tool calls, got %v", resp.ToolCalls)
	}
	if resp.Usage != nil {
		t.Errorf("Expected nil usage, got %v", resp.Usage)
	}
}

func TestAccumulatorLastWriterWinsScalars(t *testing.T) {
	var acc Accumulator
	acc = acc.Add(Fragment{Model: "first", Usage: &Usage{InputTokens: Int64(1)}})
	acc = acc.Add(Fragment{Model: "second"})
	acc = acc.Add(Fragment{Usage: &Usage{InputTokens: Int64(7), OutputTokens: Int64(3)}})
	acc = acc.Add(Fragment{FinishReason: FinishStop})

	resp := acc.Response()
	if resp.Model != "second" {
		t.Errorf("Expected model %q, got %q", "second", resp.Model)
	}
	if resp.Usage == nil || resp.Usage.InputTokens == nil || *resp.Usage.InputTokens != 7 {
		t.Fatalf("Expected input tokens 7, got %+v", resp.Usage)
	}
	if resp.Usage.TotalTokens == nil || *resp.Usage.TotalTokens != 10 {
		t.Errorf("Expected total tokens 10, got %+v", resp.Usage.TotalTokens)
	}
}

func TestAccumulatorTotalTokensRequiresBothCounts(t *testing.T) {
	var acc Accumulator
	acc = acc.Add(Fragment{Usage: &Usage{InputTokens: Int64(7)}})
	acc = acc.Add(Fragment{FinishReason: FinishStop})

	resp := acc.Response()
	if resp.Usage == nil {
		t.Fatal("Expected usage to be set")
	}
	if resp.Usage.TotalTokens != nil {
		t.Errorf("Expected nil total tokens when output count unknown, got %d", *resp.Usage.TotalTokens)
	}
}

func TestAccumulatorIgnoresFragmentsAfterFinish(t *testing.T) {
	var acc Accumulator
	acc = acc.Add(Fragment{Text: "done", FinishReason: FinishStop})
	acc = acc.Add(Fragment{Text: " extra"})

	if got := acc.Response().Text(); got != "done" {
		t.Errorf("Expected %q, got %q", "done", got)
	}
}
