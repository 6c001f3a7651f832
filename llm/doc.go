// Package llm provides a provider-neutral abstraction layer for Large Language Model (LLM) APIs.
//
// This package defines common types, interfaces, and utilities that allow the codebase
// to work with multiple LLM providers (Anthropic, OpenAI, Ollama, etc.) without being
// tightly coupled to any specific provider's SDK.
//
// # Core Concepts
//
//  1. Messages: the Message type represents a conversation message with a role
//     (user, assistant, system, tool), nullable text content, tool calls on
//     assistant messages, and an originating-call reference on tool results.
//
//  2. Provider Interface: the Provider interface exposes Chat() for complete
//     responses, Stream() for fragment-by-fragment delivery, and FormatTools()
//     for backend-specific tool schemas. Implementations handle provider-specific
//     details internally.
//
//  3. Accumulator: a pure fold that reconstructs a complete Response from an
//     ordered sequence of streaming Fragments.
//
//  4. Errors: the Error type classifies failures (authentication, validation,
//     rate limit, network, timeout, provider, tool, depth, and client-side
//     circuit/limiter rejections) so retry policies and circuit breakers can
//     act on them uniformly.
//
//  5. Middleware: the Middleware and StreamMiddleware interfaces allow adding
//     cross-cutting concerns like logging without modifying provider
//     implementations.
//
// Usage Example
//
//	provider, _ := openai.New(apiKey, "", "gpt-4o", "", logger)
//
//	req := &llm.Request{
//	    Model: "gpt-4o",
//	    Messages: []llm.Message{
//	        llm.NewUserMessage("Hello!"),
//	    },
//	}
//
//	resp, err := provider.Chat(ctx, req)
//
// # Extension Points
//
// To add a new LLM provider:
//  1. Implement the Provider interface
//  2. Translate between provider-specific types and llm package types
//  3. Handle provider-specific errors and translate to llm.Error values
package llm
