package types

import (
	"fmt"
	"strings"
)

// ChatCompletionRequest represents an OpenAI-compatible chat completion request.
// This matches the OpenAI Chat Completions API format exactly to ensure
// compatibility with existing OpenAI SDKs and tools.
type ChatCompletionRequest struct {
	// Model is the ID of the model to use. Clients address models by the
	// catalog's technical name (e.g. "openai_gpt-4", "azure_gpt-4o").
	Model string `json:"model"`

	// Messages is the conversation history as a list of messages.
	Messages []Message `json:"messages"`

	// Temperature controls randomness in the response (0.0 to 2.0).
	// Optional, defaults to 1.0.
	Temperature *float64 `json:"temperature,omitempty"`

	// MaxTokens is the maximum number of tokens to generate.
	// Optional, defaults to provider-specific limits.
	MaxTokens *int `json:"max_tokens,omitempty"`

	// TopP controls nucleus sampling (0.0 to 1.0).
	// Alternative to temperature. Optional, defaults to 1.0.
	TopP *float64 `json:"top_p,omitempty"`

	// N is the number of completions to generate for each prompt.
	// Optional, defaults to 1.
	N *int `json:"n,omitempty"`

	// Stream enables server-sent events (SSE) streaming.
	// Optional, defaults to false.
	Stream bool `json:"stream,omitempty"`

	// Stop is a list of sequences where generation stops. Maximum 4.
	Stop []string `json:"stop,omitempty"`

	// PresencePenalty penalizes tokens already present in the text (-2.0 to 2.0).
	PresencePenalty *float64 `json:"presence_penalty,omitempty"`

	// FrequencyPenalty penalizes tokens by frequency in the text (-2.0 to 2.0).
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`

	// User is a unique identifier for the end-user making the request.
	User string `json:"user,omitempty"`

	// Tools is a list of tools/functions the model can call.
	Tools []Tool `json:"tools,omitempty"`

	// ToolChoice controls which tool the model should use.
	// Can be "none", "auto", or {"type": "function", "function": {"name": ...}}.
	ToolChoice interface{} `json:"tool_choice,omitempty"`

	// ResponseFormat specifies the format of the response.
	// Optional, can be {"type": "json_object"} for JSON mode.
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`

	// Seed enables deterministic sampling where supported.
	Seed *int `json:"seed,omitempty"`
}

// CompletionRequest represents a legacy OpenAI text completion request
// (POST /v1/completions).
type CompletionRequest struct {
	// Model is the catalog technical name of the model to use.
	Model string `json:"model"`

	// Prompt is the text to complete. Per the OpenAI API it may be a single
	// string or an array of strings; use PromptStrings to normalize.
	Prompt interface{} `json:"prompt"`

	// Suffix is text appended after the completion. Not supported by Azure.
	Suffix string `json:"suffix,omitempty"`

	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens *int `json:"max_tokens,omitempty"`

	// Temperature controls randomness (0.0 to 2.0).
	Temperature *float64 `json:"temperature,omitempty"`

	// TopP controls nucleus sampling (0.0 to 1.0).
	TopP *float64 `json:"top_p,omitempty"`

	// N is the number of completions to generate.
	N *int `json:"n,omitempty"`

	// Stream enables SSE streaming.
	Stream bool `json:"stream,omitempty"`

	// LogProbs requests log probabilities for the top N tokens.
	LogProbs *int `json:"logprobs,omitempty"`

	// Echo includes the prompt in the completion. Not supported by Azure.
	Echo bool `json:"echo,omitempty"`

	// Stop is a list of sequences where generation stops. Maximum 4.
	Stop []string `json:"stop,omitempty"`

	// PresencePenalty penalizes tokens already present in the text (-2.0 to 2.0).
	PresencePenalty *float64 `json:"presence_penalty,omitempty"`

	// FrequencyPenalty penalizes tokens by frequency in the text (-2.0 to 2.0).
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`

	// BestOf generates N completions server-side and returns the best.
	// Not supported by Azure.
	BestOf *int `json:"best_of,omitempty"`

	// LogitBias adjusts the likelihood of specified tokens. Not supported
	// by Azure.
	LogitBias map[string]float64 `json:"logit_bias,omitempty"`

	// User is a unique identifier for the end-user making the request.
	User string `json:"user,omitempty"`
}

// Message represents a single message in a conversation.
type Message struct {
	// Role is the author of the message ("system", "user", "assistant", "tool").
	Role string `json:"role"`

	// Content is the text content of the message.
	// Can be a string or an array of content parts (for multimodal models).
	Content interface{} `json:"content"`

	// Name is the name of the author (optional).
	Name string `json:"name,omitempty"`

	// ToolCalls is a list of tool calls made by the assistant (optional).
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID is the ID of the tool call this message responds to (tool role).
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ContentString returns the message content as plain text. Multimodal
// content arrays are flattened to their text parts joined by spaces.
func (m Message) ContentString() string {
	switch c := m.Content.(type) {
	case nil:
		return ""
	case string:
		return c
	case []interface{}:
		var parts []string
		for _, part := range c {
			pm, ok := part.(map[string]interface{})
			if !ok {
				continue
			}
			if pm["type"] == "text" {
				if text, ok := pm["text"].(string); ok {
					parts = append(parts, text)
				}
			}
		}
		return strings.Join(parts, " ")
	default:
		return fmt.Sprintf("%v", c)
	}
}

// Tool represents a function/tool that the model can call.
type Tool struct {
	// Type is always "function" for function calling.
	Type string `json:"type"`

	// Function describes the function to call.
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes a function that can be called by the model.
type FunctionDefinition struct {
	// Name is the name of the function to call.
	Name string `json:"name"`

	// Description explains what the function does.
	Description string `json:"description,omitempty"`

	// Parameters is a JSON Schema object describing the function parameters.
	Parameters map[string]interface{} `json:"parameters"`
}

// ToolCall represents a function call made by the model.
type ToolCall struct {
	// ID is a unique identifier for the tool call.
	ID string `json:"id"`

	// Type is always "function" for function calling.
	Type string `json:"type"`

	// Function contains the function name and arguments.
	Function FunctionCall `json:"function"`
}

// FunctionCall represents the function name and arguments.
type FunctionCall struct {
	// Name is the name of the function to call.
	Name string `json:"name"`

	// Arguments is a JSON string containing the function arguments.
	Arguments string `json:"arguments"`
}

// ResponseFormat specifies the format of the model's output.
type ResponseFormat struct {
	// Type is the format type ("text" or "json_object").
	Type string `json:"type"`
}

// PromptStrings normalizes the Prompt field to a slice of strings.
// A plain string becomes a one-element slice. Returns nil when the prompt
// is absent or not a recognized shape.
func (r *CompletionRequest) PromptStrings() []string {
	switch p := r.Prompt.(type) {
	case nil:
		return nil
	case string:
		return []string{p}
	case []string:
		return p
	case []interface{}:
		out := make([]string, 0, len(p))
		for _, v := range p {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// PromptText returns the prompt as a single string, joining array prompts
// with newlines. This is the coercion applied before forwarding to providers
// that accept only a single prompt string.
func (r *CompletionRequest) PromptText() string {
	return strings.Join(r.PromptStrings(), "\n")
}

// Validate validates the chat completion request.
// It checks that required fields are present and values are within
// acceptable ranges.
func (r *ChatCompletionRequest) Validate() error {
	if r.Model == "" {
		return &ValidationError{Field: "model", Message: "model is required"}
	}

	if len(r.Messages) == 0 {
		return &ValidationError{
			Field:   "messages",
			Message: "messages must contain at least one message",
		}
	}

	if r.Temperature != nil && (*r.Temperature < 0.0 || *r.Temperature > 2.0) {
		return &ValidationError{
			Field:   "temperature",
			Message: "temperature must be between 0.0 and 2.0",
		}
	}

	if r.TopP != nil && (*r.TopP < 0.0 || *r.TopP > 1.0) {
		return &ValidationError{
			Field:   "top_p",
			Message: "top_p must be between 0.0 and 1.0",
		}
	}

	if r.MaxTokens != nil && *r.MaxTokens < 1 {
		return &ValidationError{
			Field:   "max_tokens",
			Message: "max_tokens must be greater than 0",
		}
	}

	if r.N != nil && *r.N < 1 {
		return &ValidationError{Field: "n", Message: "n must be greater than 0"}
	}

	if len(r.Stop) > 4 {
		return &ValidationError{
			Field:   "stop",
			Message: "stop sequences must not exceed 4",
		}
	}

	if r.PresencePenalty != nil && (*r.PresencePenalty < -2.0 || *r.PresencePenalty > 2.0) {
		return &ValidationError{
			Field:   "presence_penalty",
			Message: "presence_penalty must be between -2.0 and 2.0",
		}
	}

	if r.FrequencyPenalty != nil && (*r.FrequencyPenalty < -2.0 || *r.FrequencyPenalty > 2.0) {
		return &ValidationError{
			Field:   "frequency_penalty",
			Message: "frequency_penalty must be between -2.0 and 2.0",
		}
	}

	for i, msg := range r.Messages {
		if msg.Role == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("messages[%d].role", i),
				Message: "message role is required",
			}
		}

		if msg.Content == nil && len(msg.ToolCalls) == 0 {
			return &ValidationError{
				Field:   fmt.Sprintf("messages[%d].content", i),
				Message: "message content is required when no tool_calls present",
			}
		}
	}

	return nil
}

// Validate validates the legacy completion request.
func (r *CompletionRequest) Validate() error {
	if r.Model == "" {
		return &ValidationError{Field: "model", Message: "model is required"}
	}

	if r.Prompt == nil {
		return &ValidationError{Field: "prompt", Message: "prompt is required"}
	}

	if r.Temperature != nil && (*r.Temperature < 0.0 || *r.Temperature > 2.0) {
		return &ValidationError{
			Field:   "temperature",
			Message: "temperature must be between 0.0 and 2.0",
		}
	}

	if r.MaxTokens != nil && *r.MaxTokens < 1 {
		return &ValidationError{
			Field:   "max_tokens",
			Message: "max_tokens must be greater than 0",
		}
	}

	if len(r.Stop) > 4 {
		return &ValidationError{
			Field:   "stop",
			Message: "stop sequences must not exceed 4",
		}
	}

	return nil
}

// ValidationError represents a request validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return e.Message
}
