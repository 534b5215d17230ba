package proxy

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"fulcrum-hq/portunus/pkg/catalog"
	"fulcrum-hq/portunus/pkg/proxy/types"
)

func BenchmarkParseChatCompletionRequest(b *testing.B) {
	reqBody := types.ChatCompletionRequest{
		Model: "openai_gpt-4",
		Messages: []types.Message{
			{Role: "system", Content: "You are a helpful assistant"},
			{Role: "user", Content: "Hello, world!"},
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")

		if _, err := ParseChatCompletionRequest(req, 0); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkWriteJSON(b *testing.B) {
	response := &types.ChatCompletionResponse{
		ID:      "chatcmpl-123",
		Object:  "chat.completion",
		Created: 1234567890,
		Model:   "openai_gpt-4",
		Choices: []types.Choice{
			{Message: types.Message{Role: "assistant", Content: "Hello! How can I help you today?"}, FinishReason: "stop"},
		},
		Usage: types.Usage{PromptTokens: 10, CompletionTokens: 15, TotalTokens: 25},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		if err := WriteJSON(w, http.StatusOK, response); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkStatusForError(b *testing.B) {
	err := catalog.NewNotFound("model", "openai_gpt-9")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = StatusForError(err)
	}
}
