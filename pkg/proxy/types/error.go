package types

import "encoding/json"

// ErrorResponse is the error body returned to clients. Every non-2xx
// response carries a single "detail" field with a human-readable message.
type ErrorResponse struct {
	// Detail is the human-readable error message.
	Detail string `json:"detail"`
}

// NewErrorResponse creates an ErrorResponse with the given message.
func NewErrorResponse(detail string) *ErrorResponse {
	return &ErrorResponse{Detail: detail}
}

// StreamErrorChunk is emitted on an established SSE stream when the
// upstream fails mid-stream. It is followed by the [DONE] marker, which
// stays the last event on every stream.
type StreamErrorChunk struct {
	// Error describes the mid-stream failure.
	Error StreamError `json:"error"`
}

// StreamError carries the message and type of a mid-stream failure.
type StreamError struct {
	// Message is the human-readable error message.
	Message string `json:"message"`

	// Type is always "stream_error".
	Type string `json:"type"`
}

// NewStreamErrorChunk creates a StreamErrorChunk with type "stream_error".
func NewStreamErrorChunk(message string) *StreamErrorChunk {
	return &StreamErrorChunk{
		Error: StreamError{
			Message: message,
			Type:    "stream_error",
		},
	}
}

// MarshalDetail renders an ErrorResponse for the given message as JSON.
// It falls back to a hand-built body if marshaling fails, so error paths
// always produce valid JSON.
func MarshalDetail(detail string) []byte {
	data, err := json.Marshal(&ErrorResponse{Detail: detail})
	if err != nil {
		return []byte(`{"detail": "internal server error"}`)
	}
	return data
}
