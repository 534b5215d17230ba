package providers

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// UpstreamError is a non-2xx response from an upstream provider. It
// carries the upstream status so the retry engine can classify it and the
// egress layer can decide between 500 and 502.
type UpstreamError struct {
	// Provider is the adapter name that produced the error.
	Provider string

	// StatusCode is the upstream HTTP status (0 when not applicable).
	StatusCode int

	// Message is the upstream error message, already extracted from the
	// provider's error envelope when one was present.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("upstream %q error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("upstream %q error: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying error.
func (e *UpstreamError) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the upstream status for retry classification.
func (e *UpstreamError) HTTPStatus() int {
	return e.StatusCode
}

// AuthError means the upstream rejected the configured API key (401/403).
// Never retried: the key will not become valid on the next attempt.
type AuthError struct {
	// Provider is the adapter name that was rejected.
	Provider string

	// StatusCode is the upstream status, 401 or 403.
	StatusCode int

	// Message is the upstream error message.
	Message string
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return fmt.Sprintf("upstream %q rejected credentials: %s", e.Provider, e.Message)
}

// HTTPStatus returns the upstream status for retry classification.
func (e *AuthError) HTTPStatus() int {
	if e.StatusCode == 0 {
		return http.StatusUnauthorized
	}
	return e.StatusCode
}

// RateLimitError is an upstream 429, with the Retry-After hint when the
// upstream sent one. Retryable.
type RateLimitError struct {
	// Provider is the adapter name that was throttled.
	Provider string

	// RetryAfter is the upstream's requested wait, zero when absent.
	RetryAfter time.Duration

	// Message is the upstream error message.
	Message string
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("upstream %q rate limited (retry after %s): %s",
			e.Provider, e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("upstream %q rate limited: %s", e.Provider, e.Message)
}

// HTTPStatus returns 429 for retry classification.
func (e *RateLimitError) HTTPStatus() int {
	return http.StatusTooManyRequests
}

// TimeoutError means a call exceeded its deadline. Surfaced to clients as
// 504 after the retry budget is exhausted.
type TimeoutError struct {
	// Provider is the adapter name where the timeout occurred.
	Provider string

	// Timeout is the deadline that was exceeded.
	Timeout time.Duration

	// Cause is the underlying network error.
	Cause error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("upstream %q timed out after %s", e.Provider, e.Timeout)
}

// Unwrap returns the underlying error so retry classification can reach
// the net.Error beneath.
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns 504 for retry classification.
func (e *TimeoutError) HTTPStatus() int {
	return http.StatusGatewayTimeout
}

// ParseError means the upstream returned a payload the adapter could not
// decode. Not retried.
type ParseError struct {
	// Provider is the adapter name that received the payload.
	Provider string

	// RawResponse is a truncated copy of the body that failed to parse.
	RawResponse string

	// Cause is the underlying decode error.
	Cause error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("upstream %q response parse error: %v", e.Provider, e.Cause)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// StreamError is a failure on an established stream, after the upstream
// accepted the request. The orchestrator converts it into a synthetic
// error chunk on the client stream.
type StreamError struct {
	// Provider is the adapter name where the stream failed.
	Provider string

	// Message describes the failure.
	Message string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("upstream %q stream error: %s: %v", e.Provider, e.Message, e.Cause)
	}
	return fmt.Sprintf("upstream %q stream error: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error {
	return e.Cause
}

// ConfigError means an adapter could not be constructed, typically a
// missing API key for the selected model. Surfaced as 500.
type ConfigError struct {
	// Provider is the adapter name with the invalid configuration.
	Provider string

	// Field is the offending configuration field.
	Field string

	// Message describes the problem.
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("provider %q configuration error (%s): %s", e.Provider, e.Field, e.Message)
}

// IsConfig reports whether err is an adapter configuration error.
func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsTimeout reports whether err is an upstream timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// UpstreamStatus extracts the upstream HTTP status from err, or 0 when the
// error does not carry one.
func UpstreamStatus(err error) int {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.StatusCode
	}
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.HTTPStatus()
	}
	var re *RateLimitError
	if errors.As(err, &re) {
		return http.StatusTooManyRequests
	}
	var te *TimeoutError
	if errors.As(err, &te) {
		return http.StatusGatewayTimeout
	}
	return 0
}
