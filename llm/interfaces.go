package llm

import (
	"context"
)

// FragmentHandler receives streaming fragments in arrival order. It is
// invoked synchronously on the goroutine delivering the stream; returning an
// error aborts the stream.
type FragmentHandler func(Fragment) error

// Provider is the capability contract every backend implementation must
// satisfy. The core never inspects backend-specific payloads; it only
// consumes these three operations and the common Response/Fragment/Error
// shapes.
type Provider interface {
	// Chat sends a request and returns a complete response.
	Chat(ctx context.Context, req *Request) (*Response, error)

	// Stream sends a request, invokes onFragment once per fragment in
	// arrival order, and still returns the final accumulated Response.
	Stream(ctx context.Context, req *Request, onFragment FragmentHandler) (*Response, error)

	// FormatTools converts tool specs into the backend-specific schema.
	// The result is opaque to the core.
	FormatTools(tools []ToolSpec) any
}

// Middleware provides hooks for decorating Provider calls.
// This allows adding cross-cutting concerns like logging without exposing
// the implementation details of middleware wrapping.
type Middleware interface {
	// BeforeRequest is called before making an API request.
	// It can modify the request or return an error to abort the request.
	BeforeRequest(ctx context.Context, req *Request) (*Request, error)

	// AfterResponse is called after receiving a response.
	// It can modify the response or return an error.
	AfterResponse(ctx context.Context, req *Request, resp *Response) (*Response, error)

	// OnError is called when an error occurs.
	// It can return a modified error or nil to swallow the original error.
	OnError(ctx context.Context, req *Request, err error) error
}

// StreamMiddleware provides an additional hook for streaming calls.
// Middleware values may optionally implement it.
type StreamMiddleware interface {
	// OnFragment is called for each fragment before it reaches the caller's
	// handler. It can modify the fragment or return an error to abort.
	OnFragment(ctx context.Context, req *Request, frag Fragment) (Fragment, error)
}

// MiddlewareFunc is a function bundle that implements Middleware.
type MiddlewareFunc struct {
	BeforeRequestFunc func(ctx context.Context, req *Request) (*Request, error)
	AfterResponseFunc func(ctx context.Context, req *Request, resp *Response) (*Response, error)
	OnErrorFunc       func(ctx context.Context, req *Request, err error) error
}

// BeforeRequest calls the BeforeRequestFunc if set.
func (f MiddlewareFunc) BeforeRequest(ctx context.Context, req *Request) (*Request, error) {
	if f.BeforeRequestFunc != nil {
		return f.BeforeRequestFunc(ctx, req)
	}
	return req, nil
}

// AfterResponse calls the AfterResponseFunc if set.
func (f MiddlewareFunc) AfterResponse(ctx context.Context, req *Request, resp *Response) (*Response, error) {
	if f.AfterResponseFunc != nil {
		return f.AfterResponseFunc(ctx, req, resp)
	}
	return resp, nil
}

// OnError calls the OnErrorFunc if set.
func (f MiddlewareFunc) OnError(ctx context.Context, req *Request, err error) error {
	if f.OnErrorFunc != nil {
		return f.OnErrorFunc(ctx, req, err)
	}
	return err
}

// WrapWithMiddleware wraps a Provider with middleware and returns a new
// Provider. Middleware runs in order for BeforeRequest and in reverse order
// for AfterResponse.
func WrapWithMiddleware(provider Provider, middleware ...Middleware) Provider {
	if len(middleware) == 0 {
		return provider
	}
	return &providerWithMiddleware{
		provider:   provider,
		middleware: middleware,
	}
}

type providerWithMiddleware struct {
	provider   Provider
	middleware []Middleware
}

// Chat implements Provider.Chat with middleware support.
func (p *providerWithMiddleware) Chat(ctx context.Context, req *Request) (*Response, error) {
	for _, mw := range p.middleware {
		var err error
		req, err = mw.BeforeRequest(ctx, req)
		if err != nil {
			return nil, err
		}
	}

	resp, err := p.provider.Chat(ctx, req)
	if err != nil {
		for _, mw := range p.middleware {
			err = mw.OnError(ctx, req, err)
			if err == nil {
				break // Middleware handled the error
			}
		}
		return nil, err
	}

	for i := len(p.middleware) - 1; i >= 0; i-- {
		var err error
		resp, err = p.middleware[i].AfterResponse(ctx, req, resp)
		if err != nil {
			return nil, err
		}
	}

	return resp, nil
}

// Stream implements Provider.Stream with middleware support.
func (p *providerWithMiddleware) Stream(ctx context.Context, req *Request, onFragment FragmentHandler) (*Response, error) {
	for _, mw := range p.middleware {
		var err error
		req, err = mw.BeforeRequest(ctx, req)
		if err != nil {
			return nil, err
		}
	}

	handler := onFragment
	if handler != nil {
		inner := handler
		handler = func(frag Fragment) error {
			for _, mw := range p.middleware {
				if smw, ok := mw.(StreamMiddleware); ok {
					var err error
					frag, err = smw.OnFragment(ctx, req, frag)
					if err != nil {
						return err
					}
				}
			}
			return inner(frag)
		}
	}

	resp, err := p.provider.Stream(ctx, req, handler)
	if err != nil {
		for _, mw := range p.middleware {
			err = mw.OnError(ctx, req, err)
			if err == nil {
				break
			}
		}
		return nil, err
	}

	for i := len(p.middleware) - 1; i >= 0; i-- {
		var err error
		resp, err = p.middleware[i].AfterResponse(ctx, req, resp)
		if err != nil {
			return nil, err
		}
	}

	return resp, nil
}

// FormatTools implements Provider.FormatTools.
func (p *providerWithMiddleware) FormatTools(tools []ToolSpec) any {
	return p.provider.FormatTools(tools)
}

// Ensure providerWithMiddleware implements Provider
var _ Provider = (*providerWithMiddleware)(nil)
