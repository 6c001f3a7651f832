package tool

import (
	"context"
	"testing"

	"github.com/parley-ai/parley/llm"
	"github.com/rs/zerolog"
)

func echoTool(name string) Tool {
	return New(name, "echoes its input", map[string]llm.ParamSpec{
		"text": {Type: "string", Required: true},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return args["text"], nil
	})
}

func TestRegistryResolveIsCaseSensitive(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	r.Register(echoTool("echo"))

	if _, ok := r.Resolve("echo"); !ok {
		t.Error("Expected to resolve registered tool")
	}
	if _, ok := r.Resolve("Echo"); ok {
		t.Error("Expected case-sensitive lookup to miss")
	}
	if _, ok := r.Resolve("missing"); ok {
		t.Error("Expected unknown tool to miss")
	}
}

func TestRegistryListPreservesRegistrationOrder(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	names := []string{"charlie", "alpha", "bravo"}
	for _, n := range names {
		r.Register(echoTool(n))
	}

	listed := r.List()
	if len(listed) != len(names) {
		t.Fatalf("Expected %d tools, got %d", len(names), len(listed))
	}
	for i, n := range names {
		if listed[i].Name() != n {
			t.Errorf("Position %d: expected %q, got %q", i, n, listed[i].Name())
		}
	}
}

func TestRegistryReplaceKeepsSingleEntry(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	r.Register(echoTool("echo"))
	r.Register(New("echo", "replacement", nil, func(ctx context.Context, args map[string]any) (any, error) {
		return "replaced", nil
	}))

	if r.Len() != 1 {
		t.Fatalf("Expected 1 tool after replacement, got %d", r.Len())
	}
	tl, _ := r.Resolve("echo")
	if tl.Description() != "replacement" {
		t.Errorf("Expected replacement tool, got %q", tl.Description())
	}
}

func TestSpecs(t *testing.T) {
	specs := Specs([]Tool{echoTool("echo")})
	if len(specs) != 1 {
		t.Fatalf("Expected 1 spec, got %d", len(specs))
	}
	if specs[0].Name != "echo" {
		t.Errorf("Expected spec name 'echo', got %q", specs[0].Name)
	}
	if p, ok := specs[0].Parameters["text"]; !ok || p.Type != "string" || !p.Required {
		t.Errorf("Unexpected parameter spec: %+v", specs[0].Parameters)
	}
}
