package proxy

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"fulcrum-hq/portunus/pkg/proxy/types"
)

const (
	// DefaultMaxBodyBytes caps request bodies when the server config does
	// not name a limit. Default: 10MB.
	DefaultMaxBodyBytes = 10 * 1024 * 1024

	// AuthorizationHeader carries client credentials (API key or JWT).
	AuthorizationHeader = "Authorization"

	// RequestIDHeader propagates the per-request correlation ID.
	RequestIDHeader = "X-Request-ID"
)

// DecodeJSON reads an HTTP request body into dst, enforcing maxBytes.
// Oversized bodies and malformed JSON are reported as validation errors
// so they surface to the client as 400s rather than opaque 500s.
func DecodeJSON(r *http.Request, maxBytes int64, dst any) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}

	// Read one byte past the limit so a body of exactly maxBytes is
	// still accepted.
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
	if err != nil {
		return &types.ValidationError{Field: "body", Message: fmt.Sprintf("failed to read request body: %v", err)}
	}
	if int64(len(body)) > maxBytes {
		return &types.ValidationError{Field: "body", Message: fmt.Sprintf("request body exceeds maximum size of %d bytes", maxBytes)}
	}
	if len(body) == 0 {
		return &types.ValidationError{Field: "body", Message: "request body is empty"}
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return &types.ValidationError{Field: "body", Message: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return nil
}

// ParseChatCompletionRequest decodes and validates a chat completion
// request body.
func ParseChatCompletionRequest(r *http.Request, maxBytes int64) (*types.ChatCompletionRequest, error) {
	var req types.ChatCompletionRequest
	if err := DecodeJSON(r, maxBytes, &req); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// ParseCompletionRequest decodes and validates a legacy completion
// request body.
func ParseCompletionRequest(r *http.Request, maxBytes int64) (*types.CompletionRequest, error) {
	var req types.CompletionRequest
	if err := DecodeJSON(r, maxBytes, &req); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// BearerToken extracts the credential from an Authorization header of
// the form "Bearer <token>". It returns "" when the header is absent or
// not bearer-shaped.
func BearerToken(r *http.Request) string {
	header := r.Header.Get(AuthorizationHeader)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// RequestID returns the client-provided request ID, or "" when the
// header is absent. The request ID middleware generates one in that
// case.
func RequestID(r *http.Request) string {
	return r.Header.Get(RequestIDHeader)
}
