package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/parley-ai/parley/llm"
	"github.com/rs/zerolog"
)

// scriptedProvider fails a fixed number of times before succeeding.
type scriptedProvider struct {
	failures  int
	failWith  error
	chatCalls int
	response  *llm.Response
}

func (p *scriptedProvider) Chat(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	p.chatCalls++
	if p.chatCalls <= p.failures {
		return nil, p.failWith
	}
	return p.response, nil
}

func (p *scriptedProvider) Stream(ctx context.Context, req *llm.Request, onFragment llm.FragmentHandler) (*llm.Response, error) {
	resp, err := p.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	if onFragment != nil {
		if err := onFragment(llm.Fragment{Text: resp.Text(), FinishReason: resp.FinishReason}); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func (p *scriptedProvider) FormatTools(tools []llm.ToolSpec) any { return tools }

func fastStackConfig() Config {
	return Config{
		Retry:     RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		RateLimit: RateLimitConfig{Enabled: true, RequestsPerMinute: 600},
		Breaker:   DefaultBreakerConfig(),
		Cache:     CacheConfig{Enabled: true, TTL: time.Minute, MaxEntries: 100},
	}
}

func userRequest(text string) *llm.Request {
	return &llm.Request{Model: "test-model", Messages: []llm.Message{llm.NewUserMessage(text)}}
}

func TestStackRetriesTransientChatFailures(t *testing.T) {
	s := NewStack(fastStackConfig(), zerolog.Nop())
	defer s.Stop()

	p := &scriptedProvider{
		failures: 2,
		failWith: llm.NewProviderError("upstream 502", 502, nil),
		response: &llm.Response{Content: llm.String("ok"), FinishReason: llm.FinishStop},
	}
	retries := 0
	wrapped := s.Wrap(p, "openai", Toggles{OnRetry: func(attempt int, err error) { retries++ }})

	resp, err := wrapped.Chat(context.Background(), userRequest("hi"))
	if err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if resp.Text() != "ok" {
		t.Errorf("Unexpected response %q", resp.Text())
	}
	if p.chatCalls != 3 {
		t.Errorf("Expected 3 provider calls, got %d", p.chatCalls)
	}
	if retries != 2 {
		t.Errorf("Expected 2 retry notifications, got %d", retries)
	}
}

func TestStackServesRepeatChatFromCache(t *testing.T) {
	s := NewStack(fastStackConfig(), zerolog.Nop())
	defer s.Stop()

	p := &scriptedProvider{response: &llm.Response{Content: llm.String("cached"), FinishReason: llm.FinishStop}}
	wrapped := s.Wrap(p, "openai", Toggles{})

	for i := 0; i < 3; i++ {
		if _, err := wrapped.Chat(context.Background(), userRequest("same question")); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}
	if p.chatCalls != 1 {
		t.Errorf("Expected a single upstream call, got %d", p.chatCalls)
	}
}

func TestStackDoesNotCacheStreams(t *testing.T) {
	s := NewStack(fastStackConfig(), zerolog.Nop())
	defer s.Stop()

	p := &scriptedProvider{response: &llm.Response{Content: llm.String("live"), FinishReason: llm.FinishStop}}
	wrapped := s.Wrap(p, "openai", Toggles{})

	for i := 0; i < 2; i++ {
		if _, err := wrapped.Stream(context.Background(), userRequest("same question"), nil); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}
	if p.chatCalls != 2 {
		t.Errorf("Expected every stream to reach the provider, got %d calls", p.chatCalls)
	}
}

func TestStackDoesNotRetryAfterFirstFragment(t *testing.T) {
	s := NewStack(fastStackConfig(), zerolog.Nop())
	defer s.Stop()

	calls := 0
	p := &callbackProvider{stream: func(onFragment llm.FragmentHandler) (*llm.Response, error) {
		calls++
		_ = onFragment(llm.Fragment{Text: "partial"})
		return nil, llm.NewNetworkError("connection reset mid-stream", nil)
	}}
	wrapped := s.Wrap(p, "openai", Toggles{})

	_, err := wrapped.Stream(context.Background(), userRequest("hi"), func(llm.Fragment) error { return nil })
	if err == nil {
		t.Fatal("Expected stream error to surface")
	}
	if llm.TypeOf(err) != llm.ErrorTypeNetwork {
		t.Errorf("Expected the original network error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected no retry after partial output, got %d calls", calls)
	}
}

func TestStackCircuitOpenRejectionIsNotRetried(t *testing.T) {
	cfg := fastStackConfig()
	cfg.Breaker = BreakerConfig{Enabled: true, FailureThreshold: 1, RecoveryTimeout: time.Hour, HalfOpenMaxCalls: 1}
	cfg.Retry.MaxAttempts = 1
	s := NewStack(cfg, zerolog.Nop())
	defer s.Stop()

	p := &scriptedProvider{
		failures: 100,
		failWith: llm.NewProviderError("down", 500, nil),
	}
	wrapped := s.Wrap(p, "openai", Toggles{DisableCache: true})

	if _, err := wrapped.Chat(context.Background(), userRequest("hi")); err == nil {
		t.Fatal("Expected first call to fail")
	}
	callsBefore := p.chatCalls
	_, err := wrapped.Chat(context.Background(), userRequest("hi"))
	if !llm.IsCircuitOpen(err) {
		t.Fatalf("Expected circuit open rejection, got %v", err)
	}
	if p.chatCalls != callsBefore {
		t.Error("Expected rejected call to never reach the provider")
	}
}

// callbackProvider delegates Stream to a test-supplied function.
type callbackProvider struct {
	stream func(onFragment llm.FragmentHandler) (*llm.Response, error)
}

func (p *callbackProvider) Chat(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	return p.stream(nil)
}

func (p *callbackProvider) Stream(ctx context.Context, req *llm.Request, onFragment llm.FragmentHandler) (*llm.Response, error) {
	return p.stream(onFragment)
}

func (p *callbackProvider) FormatTools(tools []llm.ToolSpec) any { return tools }
