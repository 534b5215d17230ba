package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"

	"fulcrum-hq/portunus/pkg/proxy/types"
)

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON response: %w", err)
	}
	return nil
}

// StreamWriter emits Server-Sent Events for a streaming completion.
// Every payload is framed as "data: <json>\r\n\r\n" and the terminal
// marker "data: [DONE]\r\n\r\n" is always the last line written, even
// after a mid-stream failure.
type StreamWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	done    bool
}

// NewStreamWriter prepares w for SSE streaming: it sets the streaming
// headers, commits the 200 status, and sends an empty-line ping so
// client-side buffers open immediately. It fails when the underlying
// writer cannot flush, which would make streaming an illusion.
func NewStreamWriter(w http.ResponseWriter) (*StreamWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// Ping: an empty line prompts proxies and clients to release their
	// buffers before the first chunk arrives.
	if _, err := fmt.Fprint(w, "\r\n"); err != nil {
		return nil, fmt.Errorf("failed to write stream ping: %w", err)
	}
	flusher.Flush()

	return &StreamWriter{w: w, flusher: flusher}, nil
}

// WriteChunk sends one completion chunk.
func (s *StreamWriter) WriteChunk(chunk *types.ChatCompletionStreamChunk) error {
	if s.done {
		return fmt.Errorf("stream already closed")
	}
	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("failed to marshal stream chunk: %w", err)
	}
	return s.writeEvent(data)
}

// WriteError sends a synthetic error chunk for a mid-stream failure.
// The caller is expected to follow it with WriteDone.
func (s *StreamWriter) WriteError(message string) error {
	if s.done {
		return fmt.Errorf("stream already closed")
	}
	data, err := json.Marshal(types.NewStreamErrorChunk(message))
	if err != nil {
		return fmt.Errorf("failed to marshal stream error: %w", err)
	}
	return s.writeEvent(data)
}

// WriteDone sends the [DONE] marker and seals the stream. Further
// writes fail.
func (s *StreamWriter) WriteDone() error {
	if s.done {
		return nil
	}
	s.done = true
	if _, err := fmt.Fprint(s.w, "data: [DONE]\r\n\r\n"); err != nil {
		return fmt.Errorf("failed to write stream terminator: %w", err)
	}
	s.flusher.Flush()
	return nil
}

func (s *StreamWriter) writeEvent(data []byte) error {
	if _, err := fmt.Fprintf(s.w, "data: %s\r\n\r\n", data); err != nil {
		return fmt.Errorf("failed to write stream event: %w", err)
	}
	s.flusher.Flush()
	return nil
}
