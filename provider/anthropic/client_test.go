package anthropic

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/parley-ai/parley/llm"
)

func apiError(status int, header http.Header) *anthropic.Error {
	req, _ := http.NewRequest(http.MethodPost, "https://api.anthropic.com/v1/messages", nil)
	if header == nil {
		header = http.Header{}
	}
	return &anthropic.Error{
		StatusCode: status,
		Request:    req,
		Response:   &http.Response{StatusCode: status, Header: header},
	}
}

func TestConvertErrorClassifiesRateLimit(t *testing.T) {
	header := http.Header{}
	header.Set("Retry-After", "7")
	err := convertError(apiError(http.StatusTooManyRequests, header))

	if !llm.IsRateLimit(err) {
		t.Fatalf("Expected rate limit classification, got %v", err)
	}
	if !llm.IsRetryable(err) {
		t.Error("Expected rate limit error to be retryable")
	}
	after := llm.ExtractRetryAfter(err)
	if after == nil || *after != 7*time.Second {
		t.Errorf("Expected retry-after of 7s, got %v", after)
	}
	if !strings.Contains(err.Error(), "anthropic rate limit") {
		t.Errorf("Expected message to carry the API error text, got %q", err.Error())
	}
}

func TestConvertErrorClassifiesServerError(t *testing.T) {
	err := convertError(apiError(http.StatusInternalServerError, nil))

	var llmErr *llm.Error
	if !errors.As(err, &llmErr) {
		t.Fatalf("Expected *llm.Error, got %T", err)
	}
	if llmErr.Type != llm.ErrorTypeProvider {
		t.Errorf("Expected provider error type, got %q", llmErr.Type)
	}
	if !llm.IsRetryable(err) {
		t.Error("Expected 5xx error to be retryable")
	}
}

func TestConvertErrorClassifiesAuthFailure(t *testing.T) {
	err := convertError(apiError(http.StatusUnauthorized, nil))

	var llmErr *llm.Error
	if !errors.As(err, &llmErr) {
		t.Fatalf("Expected *llm.Error, got %T", err)
	}
	if llmErr.Type != llm.ErrorTypeAuthentication {
		t.Errorf("Expected authentication error type, got %q", llmErr.Type)
	}
	if llm.IsRetryable(err) {
		t.Error("Expected auth failure to not be retryable")
	}
}

func TestConvertErrorWrapsTransportFailure(t *testing.T) {
	cause := errors.New("connection refused")
	err := convertError(cause)

	if llm.TypeOf(err) != llm.ErrorTypeNetwork {
		t.Fatalf("Expected network classification, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Error("Expected the transport error to be wrapped")
	}
}

func TestRetryAfterHintIgnoresMissingHeader(t *testing.T) {
	if hint := retryAfterHint(&http.Response{Header: http.Header{}}); hint != nil {
		t.Errorf("Expected no hint without a Retry-After header, got %v", hint)
	}
	if hint := retryAfterHint(nil); hint != nil {
		t.Errorf("Expected no hint for a nil response, got %v", hint)
	}
}
