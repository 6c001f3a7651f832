// Package tool defines application functions the model may invoke and the
// registry used to resolve them by name during the tool loop.
package tool

import (
	"context"

	"github.com/parley-ai/parley/llm"
	"github.com/samber/lo"
)

// Tool is an application-defined function the model may request to invoke.
type Tool interface {
	// Name is the identifier the model uses to request this tool.
	Name() string

	// Description tells the model what the tool does.
	Description() string

	// Parameters describes the tool's input schema.
	Parameters() map[string]llm.ParamSpec

	// Execute runs the tool with argument keys normalized to the schema's
	// key type. Blocking work must respect ctx.
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// Func is a Tool backed by a plain function.
type Func struct {
	name        string
	description string
	params      map[string]llm.ParamSpec
	fn          func(ctx context.Context, args map[string]any) (any, error)
}

// New creates a function-backed tool.
func New(name, description string, params map[string]llm.ParamSpec, fn func(ctx context.Context, args map[string]any) (any, error)) *Func {
	return &Func{name: name, description: description, params: params, fn: fn}
}

// Name implements Tool.Name.
func (f *Func) Name() string { return f.name }

// Description implements Tool.Description.
func (f *Func) Description() string { return f.description }

// Parameters implements Tool.Parameters.
func (f *Func) Parameters() map[string]llm.ParamSpec { return f.params }

// Execute implements Tool.Execute.
func (f *Func) Execute(ctx context.Context, args map[string]any) (any, error) {
	return f.fn(ctx, args)
}

// Spec returns the declarative description of t for inclusion in a request.
func Spec(t Tool) llm.ToolSpec {
	return llm.ToolSpec{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  t.Parameters(),
	}
}

// Specs converts a tool list into request specs, preserving order.
func Specs(ts []Tool) []llm.ToolSpec {
	return lo.Map(ts, func(t Tool, _ int) llm.ToolSpec {
		return Spec(t)
	})
}
