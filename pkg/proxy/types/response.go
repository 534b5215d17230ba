package types

// ChatCompletionResponse represents an OpenAI-compatible chat completion
// response. This is returned for non-streaming requests.
type ChatCompletionResponse struct {
	// ID is a unique identifier for the chat completion.
	ID string `json:"id"`

	// Object is always "chat.completion".
	Object string `json:"object"`

	// Created is the Unix timestamp of when the completion was created.
	Created int64 `json:"created"`

	// Model is the model used for the completion.
	Model string `json:"model"`

	// Choices is a list of completion choices (typically only one).
	Choices []Choice `json:"choices"`

	// Usage contains token usage statistics.
	Usage Usage `json:"usage"`

	// SystemFingerprint is a unique identifier for the backend configuration.
	SystemFingerprint string `json:"system_fingerprint,omitempty"`

	// LatencyMS is the upstream round-trip time measured by the proxy.
	LatencyMS int64 `json:"latency_ms,omitempty"`

	// Timestamp is the RFC 3339 time the proxy completed the call.
	Timestamp string `json:"timestamp,omitempty"`
}

// CompletionResponse represents a legacy OpenAI text completion response.
type CompletionResponse struct {
	// ID is a unique identifier for the completion.
	ID string `json:"id"`

	// Object is always "text_completion".
	Object string `json:"object"`

	// Created is the Unix timestamp of when the completion was created.
	Created int64 `json:"created"`

	// Model is the model used for the completion.
	Model string `json:"model"`

	// Choices is a list of completion choices.
	Choices []CompletionChoice `json:"choices"`

	// Usage contains token usage statistics.
	Usage Usage `json:"usage"`

	// LatencyMS is the upstream round-trip time measured by the proxy.
	LatencyMS int64 `json:"latency_ms,omitempty"`

	// Timestamp is the RFC 3339 time the proxy completed the call.
	Timestamp string `json:"timestamp,omitempty"`
}

// Choice represents a single chat completion choice.
type Choice struct {
	// Index is the index of this choice in the list of choices.
	Index int `json:"index"`

	// Message is the generated message.
	Message Message `json:"message"`

	// FinishReason explains why the model stopped generating tokens.
	// Possible values: "stop", "length", "tool_calls", "content_filter".
	FinishReason string `json:"finish_reason"`

	// LogProbs contains log probability information (optional).
	LogProbs interface{} `json:"logprobs,omitempty"`
}

// CompletionChoice represents a single legacy completion choice.
type CompletionChoice struct {
	// Text is the completion text.
	Text string `json:"text"`

	// Index is the index of this choice in the list of choices.
	Index int `json:"index"`

	// LogProbs contains log probability information (optional).
	LogProbs interface{} `json:"logprobs,omitempty"`

	// FinishReason explains why the model stopped generating tokens.
	FinishReason string `json:"finish_reason"`
}

// Usage contains token usage statistics.
type Usage struct {
	// PromptTokens is the number of tokens in the prompt.
	PromptTokens int `json:"prompt_tokens"`

	// CompletionTokens is the number of tokens in the completion.
	CompletionTokens int `json:"completion_tokens"`

	// TotalTokens is the total number of tokens (prompt + completion).
	TotalTokens int `json:"total_tokens"`
}

// ChatCompletionStreamChunk represents a chunk in a streaming response.
// Chunks are sent as Server-Sent Events when stream=true.
type ChatCompletionStreamChunk struct {
	// ID is a unique identifier for the chat completion.
	ID string `json:"id"`

	// Object is always "chat.completion.chunk".
	Object string `json:"object"`

	// Created is the Unix timestamp of when the chunk was created.
	Created int64 `json:"created"`

	// Model is the model used for the completion.
	Model string `json:"model"`

	// Choices is a list of streaming choices.
	Choices []StreamChoice `json:"choices"`

	// Usage is present on the final chunk for providers that report it.
	Usage *Usage `json:"usage,omitempty"`
}

// StreamChoice represents a single choice in a streaming response.
type StreamChoice struct {
	// Index is the index of this choice in the list of choices.
	Index int `json:"index"`

	// Delta contains incremental content.
	Delta Delta `json:"delta"`

	// FinishReason explains why the model stopped generating tokens.
	// Only present in the final chunk.
	FinishReason *string `json:"finish_reason"`
}

// Delta contains incremental content in a streaming response. Role defaults
// to "assistant" and Content to "" when the upstream omits them.
type Delta struct {
	// Role is the role of the message author (only in the first chunk).
	Role string `json:"role,omitempty"`

	// Content is the incremental text content.
	Content string `json:"content"`

	// ToolCalls contains incremental tool call information.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ModelList is the response body for GET /v1/models.
type ModelList struct {
	// Object is always "list".
	Object string `json:"object"`

	// Data is the list of models visible to the caller.
	Data []ModelInfo `json:"data"`
}

// ModelInfo describes a single model in a /v1/models listing.
type ModelInfo struct {
	// ID is the model's technical name as addressed by clients.
	ID string `json:"id"`

	// Object is always "model".
	Object string `json:"object"`

	// Created is the Unix timestamp of when the model entry was created.
	Created int64 `json:"created"`

	// OwnedBy is the provider that serves the model.
	OwnedBy string `json:"owned_by"`
}

// WhoAmI is the response body for GET /v1/whoami.
type WhoAmI struct {
	// ID is the principal's stable identifier (user ID or token subject).
	ID string `json:"id"`

	// Username is the resolved display identity.
	Username string `json:"username"`

	// AuthType is the credential kind: "api_key" or "jwt".
	AuthType string `json:"auth_type"`

	// Groups is the principal's resolved group list.
	Groups []string `json:"groups"`

	// CacheCleared reports whether force_cache_clear evicted a cache entry.
	CacheCleared bool `json:"cache_cleared,omitempty"`
}
