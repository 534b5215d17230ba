package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"fulcrum-hq/portunus/pkg/providers"
	"fulcrum-hq/portunus/pkg/proxy/types"
)

func chatBody(model string, stream bool) map[string]any {
	return map[string]any{
		"model":    model,
		"messages": []map[string]any{{"role": "user", "content": "ping"}},
		"stream":   stream,
	}
}

func TestChatCompletion(t *testing.T) {
	f := newFixture(t)
	h := NewCompletionsHandler(f.orch, 0, nil)

	rec := httptest.NewRecorder()
	h.Chat(rec, request(t, http.MethodPost, "/v1/chat/completions", chatBody("openai_gpt-4", false), member()))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp types.ChatCompletionResponse
	decode(t, rec, &resp)
	if resp.Model != "openai_gpt-4" {
		t.Errorf("model = %q", resp.Model)
	}
	if resp.Choices[0].Message.ContentString() != "pong" {
		t.Errorf("content = %q", resp.Choices[0].Message.ContentString())
	}
	if resp.Timestamp == "" {
		t.Error("timestamp missing")
	}
}

func TestChatCompletionRequiresPrincipal(t *testing.T) {
	f := newFixture(t)
	h := NewCompletionsHandler(f.orch, 0, nil)

	rec := httptest.NewRecorder()
	h.Chat(rec, request(t, http.MethodPost, "/v1/chat/completions", chatBody("openai_gpt-4", false), nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestChatCompletionRejectsInvalidBody(t *testing.T) {
	f := newFixture(t)
	h := NewCompletionsHandler(f.orch, 0, nil)

	rec := httptest.NewRecorder()
	h.Chat(rec, request(t, http.MethodPost, "/v1/chat/completions", nil, member()))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestChatCompletionUnknownModel(t *testing.T) {
	f := newFixture(t)
	h := NewCompletionsHandler(f.orch, 0, nil)

	rec := httptest.NewRecorder()
	h.Chat(rec, request(t, http.MethodPost, "/v1/chat/completions", chatBody("missing", false), member()))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestChatCompletionAccessDenied(t *testing.T) {
	f := newFixture(t)
	h := NewCompletionsHandler(f.orch, 0, nil)

	rec := httptest.NewRecorder()
	p := member()
	p.Groups = nil
	h.Chat(rec, request(t, http.MethodPost, "/v1/chat/completions", chatBody("openai_gpt-4", false), p))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if d := detail(t, rec); !strings.Contains(d, "denied") {
		t.Errorf("detail = %q", d)
	}
}

func TestChatCompletionStreaming(t *testing.T) {
	f := newFixture(t)
	f.provider.streamFn = func(ctx context.Context) <-chan providers.StreamEvent {
		ch := make(chan providers.StreamEvent, 2)
		ch <- providers.StreamEvent{Chunk: &types.ChatCompletionStreamChunk{
			ID:      "chatcmpl-1",
			Object:  "chat.completion.chunk",
			Model:   "openai_gpt-4",
			Choices: []types.StreamChoice{{Delta: types.Delta{Role: "assistant", Content: "po"}}},
		}}
		ch <- providers.StreamEvent{Chunk: &types.ChatCompletionStreamChunk{
			ID:      "chatcmpl-1",
			Object:  "chat.completion.chunk",
			Model:   "openai_gpt-4",
			Choices: []types.StreamChoice{{Delta: types.Delta{Content: "ng"}}},
		}}
		close(ch)
		return ch
	}
	h := NewCompletionsHandler(f.orch, 0, nil)

	rec := httptest.NewRecorder()
	h.Chat(rec, request(t, http.MethodPost, "/v1/chat/completions", chatBody("openai_gpt-4", true), member()))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"content":"po"`) || !strings.Contains(body, `"content":"ng"`) {
		t.Errorf("chunks missing from body:\n%s", body)
	}
	if !strings.HasSuffix(body, "data: [DONE]\r\n\r\n") {
		t.Errorf("body does not end with DONE marker:\n%q", body)
	}
}

func TestChatCompletionStreamSetupFailureIsJSON(t *testing.T) {
	f := newFixture(t)
	h := NewCompletionsHandler(f.orch, 0, nil)

	rec := httptest.NewRecorder()
	h.Chat(rec, request(t, http.MethodPost, "/v1/chat/completions", chatBody("missing", true), member()))

	// The stream never started, so the client gets a regular error.
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q, want JSON", ct)
	}
}

func TestChatCompletionMidStreamErrorBecomesChunk(t *testing.T) {
	f := newFixture(t)
	f.provider.streamFn = func(ctx context.Context) <-chan providers.StreamEvent {
		ch := make(chan providers.StreamEvent, 2)
		ch <- providers.StreamEvent{Chunk: &types.ChatCompletionStreamChunk{
			ID:      "chatcmpl-1",
			Object:  "chat.completion.chunk",
			Model:   "openai_gpt-4",
			Choices: []types.StreamChoice{{Delta: types.Delta{Content: "par"}}},
		}}
		ch <- providers.StreamEvent{Err: &providers.StreamError{Provider: "openai_gpt-4", Message: "connection reset"}}
		close(ch)
		return ch
	}
	h := NewCompletionsHandler(f.orch, 0, nil)

	rec := httptest.NewRecorder()
	h.Chat(rec, request(t, http.MethodPost, "/v1/chat/completions", chatBody("openai_gpt-4", true), member()))

	body := rec.Body.String()
	if !strings.Contains(body, `"stream_error"`) {
		t.Errorf("stream error chunk missing:\n%s", body)
	}
	if !strings.HasSuffix(body, "data: [DONE]\r\n\r\n") {
		t.Errorf("DONE marker must close an errored stream:\n%q", body)
	}
}

func TestCompletion(t *testing.T) {
	f := newFixture(t)
	h := NewCompletionsHandler(f.orch, 0, nil)

	rec := httptest.NewRecorder()
	h.Completions(rec, request(t, http.MethodPost, "/v1/completions", map[string]any{
		"model":  "openai_gpt-4",
		"prompt": "ping",
	}, member()))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp types.CompletionResponse
	decode(t, rec, &resp)
	if resp.Choices[0].Text != "pong" {
		t.Errorf("text = %q", resp.Choices[0].Text)
	}
}

func TestCompletionRejectsStreaming(t *testing.T) {
	f := newFixture(t)
	h := NewCompletionsHandler(f.orch, 0, nil)

	rec := httptest.NewRecorder()
	h.Completions(rec, request(t, http.MethodPost, "/v1/completions", map[string]any{
		"model":  "openai_gpt-4",
		"prompt": "ping",
		"stream": true,
	}, member()))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if d := detail(t, rec); !strings.Contains(d, "stream") {
		t.Errorf("detail = %q", d)
	}
}
