package azure

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fulcrum-hq/portunus/pkg/providers"
	"fulcrum-hq/portunus/pkg/proxy/types"
	"fulcrum-hq/portunus/pkg/retry"
)

func testAdapter(t *testing.T, name, baseURL string) *Adapter {
	t.Helper()

	adapter, err := New(providers.Config{
		Name:       name,
		BaseURL:    baseURL,
		APIKey:     "azure-key",
		APIVersion: "2024-06-01",
		Retry:      retry.Config{MaxAttempts: 1, BaseDelay: time.Millisecond},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { adapter.Close() })
	return adapter
}

func chatResponseJSON(content string) string {
	return fmt.Sprintf(`{
		"id": "chatcmpl-az1",
		"object": "chat.completion",
		"created": 1700000000,
		"model": "gpt-4",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": %q}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 3, "completion_tokens": 4, "total_tokens": 7}
	}`, content)
}

func TestNewValidation(t *testing.T) {
	if _, err := New(providers.Config{Name: "azure_gpt-4", BaseURL: "http://x", APIVersion: "2024-06-01"}); !providers.IsConfig(err) {
		t.Errorf("missing api_key: expected ConfigError, got %v", err)
	}
	if _, err := New(providers.Config{Name: "azure_gpt-4", BaseURL: "http://x", APIKey: "k"}); !providers.IsConfig(err) {
		t.Errorf("missing api_version: expected ConfigError, got %v", err)
	}
}

func TestChatCompletionURLAndHeader(t *testing.T) {
	var gotURL, gotAPIKey, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL.String()
		gotAPIKey = r.Header.Get("api-key")
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, chatResponseJSON("hi"))
	}))
	defer srv.Close()

	adapter := testAdapter(t, "azure_gpt-4o", srv.URL)

	_, err := adapter.ChatCompletion(context.Background(), &types.ChatCompletionRequest{
		Model:    "azure_gpt-4o",
		Messages: []types.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}

	want := "/openai/deployments/azure_gpt-4o/chat/completions?api-version=2024-06-01"
	if gotURL != want {
		t.Errorf("url = %q, want %q", gotURL, want)
	}
	if gotAPIKey != "azure-key" {
		t.Errorf("api-key = %q", gotAPIKey)
	}
	if gotAuth != "" {
		t.Errorf("Authorization must not be sent to Azure, got %q", gotAuth)
	}
}

func TestCompletionDowngradeForChatOnlyFamily(t *testing.T) {
	var gotPath string
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &captured)
		fmt.Fprint(w, chatResponseJSON("downgraded answer"))
	}))
	defer srv.Close()

	adapter := testAdapter(t, "azure_gpt-4", srv.URL)

	resp, err := adapter.Completion(context.Background(), &types.CompletionRequest{
		Model:  "azure_gpt-4",
		Prompt: "hello",
	})
	if err != nil {
		t.Fatalf("Completion: %v", err)
	}

	if gotPath != "/openai/deployments/azure_gpt-4/chat/completions" {
		t.Errorf("path = %q, want chat endpoint", gotPath)
	}

	messages := captured["messages"].([]any)
	first := messages[0].(map[string]any)
	if first["role"] != "user" || first["content"] != "hello" {
		t.Errorf("prompt not converted to user message: %v", first)
	}

	if resp.Object != "text_completion" {
		t.Errorf("object = %q, want text_completion", resp.Object)
	}
	if resp.Choices[0].Text != "downgraded answer" {
		t.Errorf("text = %q", resp.Choices[0].Text)
	}
	if resp.Usage.TotalTokens != 7 {
		t.Errorf("usage lost in downgrade: %+v", resp.Usage)
	}
}

func TestCompletionDowngradeJoinsPromptArray(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &captured)
		fmt.Fprint(w, chatResponseJSON("ok"))
	}))
	defer srv.Close()

	adapter := testAdapter(t, "azure_gpt-35-turbo", srv.URL)

	_, err := adapter.Completion(context.Background(), &types.CompletionRequest{
		Model:  "azure_gpt-35-turbo",
		Prompt: []any{"a", "b"},
	})
	if err != nil {
		t.Fatalf("Completion: %v", err)
	}

	messages := captured["messages"].([]any)
	first := messages[0].(map[string]any)
	if first["content"] != "a\nb" {
		t.Errorf("content = %q, want %q", first["content"], "a\nb")
	}
}

func TestCompletionDirectForNonChatFamily(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{
			"id": "cmpl-1", "object": "text_completion", "created": 1700000000,
			"model": "davinci-002",
			"choices": [{"text": "raw", "index": 0, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2}
		}`)
	}))
	defer srv.Close()

	adapter := testAdapter(t, "azure_davinci-002", srv.URL)

	resp, err := adapter.Completion(context.Background(), &types.CompletionRequest{
		Model:  "azure_davinci-002",
		Prompt: "hello",
	})
	if err != nil {
		t.Fatalf("Completion: %v", err)
	}

	if gotPath != "/openai/deployments/azure_davinci-002/completions" {
		t.Errorf("path = %q, want completions endpoint", gotPath)
	}
	if resp.Choices[0].Text != "raw" {
		t.Errorf("text = %q", resp.Choices[0].Text)
	}
}

func TestStreamChatCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var wire map[string]any
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &wire)
		if wire["stream"] != true {
			t.Error("outbound payload must set stream=true")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, data := range []string{
			`{"id":"c1","choices":[{"index":0,"delta":{"content":"A"}}]}`,
			`{"id":"c1","choices":[{"index":0,"delta":{"content":"B"},"finish_reason":"stop"}]}`,
			`[DONE]`,
		} {
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}))
	defer srv.Close()

	adapter := testAdapter(t, "azure_gpt-4", srv.URL)

	events, err := adapter.StreamChatCompletion(context.Background(), &types.ChatCompletionRequest{
		Model:    "azure_gpt-4",
		Messages: []types.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("StreamChatCompletion: %v", err)
	}

	var content string
	for ev := range events {
		if ev.Err != nil {
			t.Fatalf("stream error: %v", ev.Err)
		}
		for _, c := range ev.Chunk.Choices {
			content += c.Delta.Content
			if c.Delta.Role != "assistant" {
				t.Errorf("delta role = %q, want assistant default", c.Delta.Role)
			}
		}
	}
	if content != "AB" {
		t.Errorf("content = %q, want AB", content)
	}
}

func TestListModels(t *testing.T) {
	var gotURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL.String()
		fmt.Fprint(w, `{"data": [
			{"id": "gpt-4o", "capabilities": {"chat_completion": true}},
			{"id": "text-embedding-ada-002", "capabilities": {"embeddings": true}}
		]}`)
	}))
	defer srv.Close()

	adapter := testAdapter(t, "azure_gpt-4o", srv.URL)

	models, err := adapter.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}

	if gotURL != "/openai/models?api-version=2024-06-01" {
		t.Errorf("url = %q", gotURL)
	}
	if len(models) != 2 {
		t.Fatalf("models = %d, want 2", len(models))
	}
	if models[0].ID != "gpt-4o" {
		t.Errorf("first model = %q", models[0].ID)
	}
	if models[0].Capabilities["chat_completion"] != true {
		t.Errorf("capabilities not carried: %v", models[0].Capabilities)
	}
}
