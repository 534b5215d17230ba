// Package upstreamtest provides a scriptable stand-in for an
// OpenAI-compatible upstream. Tests point an adapter or a whole gateway
// stack at Server.URL(), script per-path responses (including SSE
// streams and failure sequences), and assert on the captured outbound
// requests.
package upstreamtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"time"
)

// Token counts stamped on every completion response the builders
// produce. Tests assert ledger rows against these.
const (
	PromptTokens     = 9
	CompletionTokens = 12
	TotalTokens      = PromptTokens + CompletionTokens
)

// Request is one captured outbound call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// JSON decodes the captured body as a JSON object.
func (r Request) JSON() (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(r.Body, &m); err != nil {
		return nil, fmt.Errorf("decoding captured request body: %w", err)
	}
	return m, nil
}

// Response scripts what the server answers on one call.
type Response struct {
	// Status is the HTTP status code. Zero means 200.
	Status int

	// Header entries are set on the response before the body.
	Header map[string]string

	// Body is written as-is for string and []byte values and JSON-encoded
	// for anything else. Ignored when Chunks is set.
	Body any

	// Delay postpones the response, for timeout tests.
	Delay time.Duration

	// Chunks turns the response into an SSE stream: each entry is sent as
	// one "data:" event and the [DONE] sentinel is appended.
	Chunks []string
}

// Server is the fake upstream. Script it with Respond or RespondSeq,
// then read back what it received with Requests and Calls.
type Server struct {
	ts *httptest.Server

	mu       sync.Mutex
	scripts  map[string][]Response
	requests []Request
}

// New starts a fake upstream on a local listener.
func New() *Server {
	s := &Server{scripts: make(map[string][]Response)}
	s.ts = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// URL returns the base URL adapters should be pointed at.
func (s *Server) URL() string {
	return s.ts.URL
}

// Close shuts the listener down.
func (s *Server) Close() {
	s.ts.Close()
}

// Respond sets a fixed response for every call to path, replacing any
// earlier script.
func (s *Server) Respond(path string, rsp Response) {
	s.RespondSeq(path, rsp)
}

// RespondSeq scripts one response per call to path, in order. When the
// sequence is exhausted the last response repeats.
func (s *Server) RespondSeq(path string, rsps ...Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[path] = append([]Response(nil), rsps...)
}

// Requests returns a snapshot of every captured call, oldest first.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// RequestsTo returns the captured calls whose path matches exactly.
func (s *Server) RequestsTo(path string) []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Request
	for _, r := range s.requests {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// Calls counts the captured calls to path.
func (s *Server) Calls(path string) int {
	return len(s.RequestsTo(path))
}

// TotalCalls counts every captured call.
func (s *Server) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Reset drops the captured requests. Scripts stay in place.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.requests = append(s.requests, Request{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Header: r.Header.Clone(),
		Body:   body,
	})

	script := s.scripts[r.URL.Path]
	var rsp Response
	switch {
	case len(script) == 0:
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, `{"error":{"message":"no script for %s","type":"invalid_request_error"}}`, r.URL.Path)
		return
	case len(script) == 1:
		rsp = script[0]
	default:
		rsp = script[0]
		s.scripts[r.URL.Path] = script[1:]
	}
	s.mu.Unlock()

	if rsp.Delay > 0 {
		time.Sleep(rsp.Delay)
	}
	for k, v := range rsp.Header {
		w.Header().Set(k, v)
	}

	if len(rsp.Chunks) > 0 {
		s.stream(w, rsp.Chunks)
		return
	}

	status := rsp.Status
	if status == 0 {
		status = http.StatusOK
	}
	if rsp.Body != nil && w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(status)

	switch body := rsp.Body.(type) {
	case nil:
	case string:
		io.WriteString(w, body)
	case []byte:
		w.Write(body)
	default:
		json.NewEncoder(w).Encode(body)
	}
}

// stream writes the scripted payloads as SSE events and terminates with
// the [DONE] sentinel, flushing after every event like a real upstream.
func (s *Server) stream(w http.ResponseWriter, chunks []string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	for _, chunk := range chunks {
		fmt.Fprintf(w, "data: %s\n\n", chunk)
		flusher.Flush()
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// ChatCompletion builds a chat completion response body in the OpenAI
// wire shape, with the package's fixed token usage.
func ChatCompletion(model, content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{
			"prompt_tokens":     PromptTokens,
			"completion_tokens": CompletionTokens,
			"total_tokens":      TotalTokens,
		},
	}
}

// TextCompletion builds a legacy completion response body.
func TextCompletion(model, text string) map[string]any {
	return map[string]any{
		"id":      "cmpl-test",
		"object":  "text_completion",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": []map[string]any{{
			"text":          text,
			"index":         0,
			"finish_reason": "stop",
		}},
		"usage": map[string]any{
			"prompt_tokens":     PromptTokens,
			"completion_tokens": CompletionTokens,
			"total_tokens":      TotalTokens,
		},
	}
}

// ChatChunk builds one streaming chunk payload. finishReason may be
// empty for intermediate chunks.
func ChatChunk(model, delta, finishReason string) string {
	chunk := map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion.chunk",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": []map[string]any{{
			"index": 0,
			"delta": map[string]any{"content": delta},
		}},
	}
	if finishReason != "" {
		chunk["choices"].([]map[string]any)[0]["finish_reason"] = finishReason
	}
	data, _ := json.Marshal(chunk)
	return string(data)
}

// ModelList builds a models listing response. The same shape serves the
// OpenAI /models endpoint and the Azure data-plane /openai/models
// endpoint.
func ModelList(ids ...string) map[string]any {
	data := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		data = append(data, map[string]any{"id": id, "object": "model"})
	}
	return map[string]any{"object": "list", "data": data}
}

// ErrorResponse scripts an upstream failure in the OpenAI error
// envelope.
func ErrorResponse(status int, message string) Response {
	return Response{
		Status: status,
		Body: map[string]any{
			"error": map[string]any{
				"message": message,
				"type":    "invalid_request_error",
				"code":    status,
			},
		},
	}
}
