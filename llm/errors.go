package llm

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error is a provider-neutral error with a classification the retry policy
// and circuit breaker can act on.
type Error struct {
	Type       ErrorType
	Message    string
	Retryable  bool
	RetryAfter *time.Duration
	StatusCode int
	Err        error // Original provider-specific error
}

// ErrorType is the category of an Error.
type ErrorType string

const (
	ErrorTypeAuthentication ErrorType = "authentication"
	ErrorTypeValidation     ErrorType = "validation"
	ErrorTypeRateLimit      ErrorType = "rate_limit"
	ErrorTypeNetwork        ErrorType = "network"
	ErrorTypeTimeout        ErrorType = "timeout"
	ErrorTypeProvider       ErrorType = "provider"
	ErrorTypeAPI            ErrorType = "api"
	ErrorTypeTool           ErrorType = "tool"
	ErrorTypeMaxDepth       ErrorType = "max_depth"
	// Client-side rejections, distinct from the provider's own errors so
	// callers can tell "this request was never sent" from "this request
	// failed".
	ErrorTypeCircuitOpen ErrorType = "circuit_open"
	ErrorTypeRateLimited ErrorType = "rate_limited"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying provider error.
func (e *Error) Unwrap() error {
	return e.Err
}

// TypeOf returns the classification of err, or ErrorTypeAPI when err is not
// an *Error.
func TypeOf(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeAPI
}

// IsRetryable reports whether err should be retried. Errors that are not
// *Error values are never retried.
func IsRetryable(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}

// IsRateLimit checks if an error is a provider rate limit error.
func IsRateLimit(err error) bool {
	return TypeOf(err) == ErrorTypeRateLimit
}

// IsCircuitOpen checks if an error is a client-side circuit rejection.
func IsCircuitOpen(err error) bool {
	return TypeOf(err) == ErrorTypeCircuitOpen
}

// IsRateLimited checks if an error is a client-side rate limiter rejection.
func IsRateLimited(err error) bool {
	return TypeOf(err) == ErrorTypeRateLimited
}

// IsMaxDepth checks if an error is a tool loop depth error.
func IsMaxDepth(err error) bool {
	return TypeOf(err) == ErrorTypeMaxDepth
}

// ExtractRetryAfter extracts the retry-after duration from an error.
func ExtractRetryAfter(err error) *time.Duration {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.RetryAfter
	}
	return nil
}

// NewAuthenticationError creates a new authentication error.
func NewAuthenticationError(message string, err error) *Error {
	return &Error{Type: ErrorTypeAuthentication, Message: message, Err: err}
}

// NewValidationError creates a new validation error.
func NewValidationError(message string, err error) *Error {
	return &Error{Type: ErrorTypeValidation, Message: message, Err: err}
}

// NewRateLimitError creates a new provider rate limit error.
func NewRateLimitError(message string, retryAfter *time.Duration, err error) *Error {
	return &Error{
		Type:       ErrorTypeRateLimit,
		Message:    message,
		Retryable:  true,
		RetryAfter: retryAfter,
		StatusCode: http.StatusTooManyRequests,
		Err:        err,
	}
}

// NewNetworkError creates a new network error.
func NewNetworkError(message string, err error) *Error {
	return &Error{Type: ErrorTypeNetwork, Message: message, Retryable: true, Err: err}
}

// NewTimeoutError creates a new timeout error.
func NewTimeoutError(message string, err error) *Error {
	return &Error{Type: ErrorTypeTimeout, Message: message, Retryable: true, Err: err}
}

// NewProviderError creates a new 5xx-class provider error.
func NewProviderError(message string, statusCode int, err error) *Error {
	return &Error{
		Type:       ErrorTypeProvider,
		Message:    message,
		Retryable:  true,
		StatusCode: statusCode,
		Err:        err,
	}
}

// NewAPIError creates a new generic API error.
func NewAPIError(message string, statusCode int, err error) *Error {
	return &Error{Type: ErrorTypeAPI, Message: message, StatusCode: statusCode, Err: err}
}

// NewToolError creates a new tool execution error.
func NewToolError(message string, err error) *Error {
	return &Error{Type: ErrorTypeTool, Message: message, Err: err}
}

// NewMaxDepthError creates the terminal error for a runaway tool-call chain.
func NewMaxDepthError(depth int) *Error {
	return &Error{
		Type:    ErrorTypeMaxDepth,
		Message: fmt.Sprintf("tool loop exceeded maximum depth (%d)", depth),
	}
}

// NewCircuitOpenError creates the rejection returned when a backend's
// circuit is open. The request was never sent.
func NewCircuitOpenError(backend string) *Error {
	return &Error{
		Type:    ErrorTypeCircuitOpen,
		Message: fmt.Sprintf("circuit open for backend %q", backend),
	}
}

// NewRateLimitedError creates the rejection returned when the client-side
// rate limiter has no token available. The request was never sent.
func NewRateLimitedError(backend string) *Error {
	return &Error{
		Type:      ErrorTypeRateLimited,
		Message:   fmt.Sprintf("rate limited for backend %q", backend),
		Retryable: true,
	}
}

// ClassifyStatus converts an HTTP status code into an Error with the
// matching classification. The retry policy relies on this mapping:
// 429 and 5xx are retryable, authentication and validation failures are not.
func ClassifyStatus(statusCode int, message string, err error) *Error {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return &Error{Type: ErrorTypeAuthentication, Message: message, StatusCode: statusCode, Err: err}
	case statusCode == http.StatusTooManyRequests:
		return &Error{Type: ErrorTypeRateLimit, Message: message, Retryable: true, StatusCode: statusCode, Err: err}
	case statusCode == http.StatusRequestTimeout:
		return &Error{Type: ErrorTypeTimeout, Message: message, Retryable: true, StatusCode: statusCode, Err: err}
	case statusCode >= 400 && statusCode < 500:
		return &Error{Type: ErrorTypeValidation, Message: message, StatusCode: statusCode, Err: err}
	case statusCode >= 500:
		return &Error{Type: ErrorTypeProvider, Message: message, Retryable: true, StatusCode: statusCode, Err: err}
	default:
		return &Error{Type: ErrorTypeAPI, Message: message, StatusCode: statusCode, Err: err}
	}
}
