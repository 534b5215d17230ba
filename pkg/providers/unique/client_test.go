package unique

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"fulcrum-hq/portunus/pkg/providers"
	"fulcrum-hq/portunus/pkg/proxy/types"
	"fulcrum-hq/portunus/pkg/retry"
)

func testAdapter(t *testing.T, baseURL string) *Adapter {
	t.Helper()

	adapter, err := New(providers.Config{
		Name:    "unique_finance-gpt",
		BaseURL: baseURL,
		APIKey:  "unique-key",
		Retry:   retry.Config{MaxAttempts: 1, BaseDelay: time.Millisecond},
		Unique: &providers.UniqueTenant{
			AppID:     "app-1",
			CompanyID: "company-1",
			UserID:    "user-1",
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { adapter.Close() })
	return adapter
}

func TestNewValidation(t *testing.T) {
	base := providers.Config{Name: "unique_x", BaseURL: "http://x", APIKey: "k"}

	if _, err := New(base); !providers.IsConfig(err) {
		t.Errorf("missing tenant: expected ConfigError, got %v", err)
	}

	missing := base
	missing.Unique = &providers.UniqueTenant{AppID: "app"}
	if _, err := New(missing); !providers.IsConfig(err) {
		t.Errorf("missing company_id: expected ConfigError, got %v", err)
	}
}

func TestChatCompletionSendsTenantHeaders(t *testing.T) {
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		fmt.Fprint(w, `{
			"id": "u1", "created": 1700000000, "model": "finance-gpt",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "hello"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 2, "completion_tokens": 1, "total_tokens": 3}
		}`)
	}))
	defer srv.Close()

	adapter := testAdapter(t, srv.URL)

	_, err := adapter.ChatCompletion(context.Background(), &types.ChatCompletionRequest{
		Model:    "finance-gpt",
		Messages: []types.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}

	if got := headers.Get("x-app-id"); got != "app-1" {
		t.Errorf("x-app-id = %q", got)
	}
	if got := headers.Get("x-company-id"); got != "company-1" {
		t.Errorf("x-company-id = %q", got)
	}
	if got := headers.Get("x-user-id"); got != "user-1" {
		t.Errorf("x-user-id = %q", got)
	}
	if got := headers.Get("Authorization"); got != "Bearer unique-key" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestChatCompletionEstimatesMissingUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// No usage field in the vendor response.
		fmt.Fprint(w, `{
			"id": "u1", "created": 1700000000, "model": "finance-gpt",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "one two three four"}, "finish_reason": "stop"}]
		}`)
	}))
	defer srv.Close()

	adapter := testAdapter(t, srv.URL)

	resp, err := adapter.ChatCompletion(context.Background(), &types.ChatCompletionRequest{
		Model:    "finance-gpt",
		Messages: []types.Message{{Role: "user", Content: "hello world"}}, // 2 words -> 2
	})
	if err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}

	// 2 words * 1.3 = 2; 4 words * 1.3 = 5.
	if resp.Usage.PromptTokens != 2 {
		t.Errorf("prompt tokens = %d, want 2", resp.Usage.PromptTokens)
	}
	if resp.Usage.CompletionTokens != 5 {
		t.Errorf("completion tokens = %d, want 5", resp.Usage.CompletionTokens)
	}
	if resp.Usage.TotalTokens != resp.Usage.PromptTokens+resp.Usage.CompletionTokens {
		t.Errorf("total %d != prompt %d + completion %d",
			resp.Usage.TotalTokens, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}
}

func TestChatCompletionKeepsVendorUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"id": "u1", "created": 1700000000, "model": "finance-gpt",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "x"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 11, "completion_tokens": 22, "total_tokens": 33}
		}`)
	}))
	defer srv.Close()

	adapter := testAdapter(t, srv.URL)

	resp, err := adapter.ChatCompletion(context.Background(), &types.ChatCompletionRequest{
		Model:    "finance-gpt",
		Messages: []types.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}
	if resp.Usage.TotalTokens != 33 {
		t.Errorf("usage = %+v, want the vendor's figures", resp.Usage)
	}
}

func TestStreamMintsMessageIdentifiers(t *testing.T) {
	var payloads []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var p map[string]any
		json.Unmarshal(body, &p)
		payloads = append(payloads, p)

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"id\":\"u1\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"hi\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	defer srv.Close()

	adapter := testAdapter(t, srv.URL)

	req := &types.ChatCompletionRequest{
		Model:    "finance-gpt",
		Messages: []types.Message{{Role: "user", Content: "hi"}},
	}

	for i := 0; i < 2; i++ {
		events, err := adapter.StreamChatCompletion(context.Background(), req)
		if err != nil {
			t.Fatalf("StreamChatCompletion: %v", err)
		}
		for range events {
		}
	}

	if len(payloads) != 2 {
		t.Fatalf("payloads = %d, want 2", len(payloads))
	}

	for i, p := range payloads {
		for _, field := range []string{"chatId", "userMessageId", "assistantMessageId"} {
			value, _ := p[field].(string)
			if _, err := uuid.Parse(value); err != nil {
				t.Errorf("call %d: %s = %q is not a UUID", i, field, value)
			}
		}
		if p["stream"] != true {
			t.Errorf("call %d: stream = %v, want true", i, p["stream"])
		}
	}

	// Fresh identifiers per call.
	if payloads[0]["chatId"] == payloads[1]["chatId"] {
		t.Error("chatId must be minted per call")
	}
	if payloads[0]["assistantMessageId"] == payloads[1]["assistantMessageId"] {
		t.Error("assistantMessageId must be minted per call")
	}
}

func TestMessagesFlattenedToText(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &captured)
		fmt.Fprint(w, `{"id": "u1", "choices": []}`)
	}))
	defer srv.Close()

	adapter := testAdapter(t, srv.URL)

	_, err := adapter.ChatCompletion(context.Background(), &types.ChatCompletionRequest{
		Model: "finance-gpt",
		Messages: []types.Message{{
			Role: "user",
			Content: []any{
				map[string]any{"type": "text", "text": "part one"},
				map[string]any{"type": "text", "text": "part two"},
			},
		}},
	})
	if err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}

	messages := captured["messages"].([]any)
	first := messages[0].(map[string]any)
	if first["content"] != "part one part two" {
		t.Errorf("content = %q, want flattened text", first["content"])
	}
}

func TestCompletionDowngrade(t *testing.T) {
	var gotPath string
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &captured)
		fmt.Fprint(w, `{
			"id": "u1", "created": 1700000000, "model": "finance-gpt",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "answer"}, "finish_reason": "stop"}]
		}`)
	}))
	defer srv.Close()

	adapter := testAdapter(t, srv.URL)

	resp, err := adapter.Completion(context.Background(), &types.CompletionRequest{
		Model:  "unique_finance-gpt",
		Prompt: "question",
	})
	if err != nil {
		t.Fatalf("Completion: %v", err)
	}

	if gotPath != "/chat/completions" {
		t.Errorf("path = %q, want chat endpoint", gotPath)
	}
	messages := captured["messages"].([]any)
	first := messages[0].(map[string]any)
	if first["role"] != "user" || first["content"] != "question" {
		t.Errorf("prompt not converted: %v", first)
	}
	if resp.Object != "text_completion" {
		t.Errorf("object = %q, want text_completion", resp.Object)
	}
	if resp.Choices[0].Text != "answer" {
		t.Errorf("text = %q", resp.Choices[0].Text)
	}
}
