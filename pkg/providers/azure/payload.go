package azure

import (
	"fulcrum-hq/portunus/pkg/proxy/types"
)

// defaultMaxTokens is applied when the client omits max_tokens; some Azure
// deployments reject requests without it.
const defaultMaxTokens = 1000

// chatRequest is the chat payload sent to Azure. There is no model field:
// the deployment segment in the URL selects the model.
type chatRequest struct {
	Messages         []types.Message       `json:"messages"`
	Temperature      *float64              `json:"temperature,omitempty"`
	MaxTokens        *int                  `json:"max_tokens,omitempty"`
	TopP             *float64              `json:"top_p,omitempty"`
	N                *int                  `json:"n,omitempty"`
	Stream           bool                  `json:"stream,omitempty"`
	Stop             []string              `json:"stop,omitempty"`
	PresencePenalty  *float64              `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64              `json:"frequency_penalty,omitempty"`
	User             string                `json:"user,omitempty"`
	Tools            []types.Tool          `json:"tools,omitempty"`
	ToolChoice       interface{}           `json:"tool_choice,omitempty"`
	ResponseFormat   *types.ResponseFormat `json:"response_format,omitempty"`
	Seed             *int                  `json:"seed,omitempty"`
}

// completionRequest is the legacy completion payload sent to Azure. The
// fields Azure does not support (best_of, suffix, echo, logit_bias) are
// absent; prompt is always a single string.
type completionRequest struct {
	Prompt           string   `json:"prompt"`
	MaxTokens        *int     `json:"max_tokens,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	N                *int     `json:"n,omitempty"`
	Stream           bool     `json:"stream,omitempty"`
	LogProbs         *int     `json:"logprobs,omitempty"`
	Stop             []string `json:"stop,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	User             string   `json:"user,omitempty"`
}

// buildChatRequest converts a canonical chat request into the Azure
// payload: drop model, clamp ranges, default max_tokens.
func buildChatRequest(req *types.ChatCompletionRequest) *chatRequest {
	return &chatRequest{
		Messages:         req.Messages,
		Temperature:      clampFloat(req.Temperature, 0, 2),
		MaxTokens:        defaultTokens(clampInt(req.MaxTokens, 1, 0)),
		TopP:             clampFloat(req.TopP, 0, 1),
		N:                clampInt(req.N, 1, 128),
		Stream:           req.Stream,
		Stop:             truncateStop(req.Stop),
		PresencePenalty:  clampFloat(req.PresencePenalty, -2, 2),
		FrequencyPenalty: clampFloat(req.FrequencyPenalty, -2, 2),
		User:             req.User,
		Tools:            req.Tools,
		ToolChoice:       req.ToolChoice,
		ResponseFormat:   req.ResponseFormat,
		Seed:             req.Seed,
	}
}

// buildCompletionRequest converts a canonical completion request into the
// Azure payload: drop model and unsupported fields, join array prompts
// with newlines, clamp ranges, default max_tokens.
func buildCompletionRequest(req *types.CompletionRequest) *completionRequest {
	return &completionRequest{
		Prompt:           req.PromptText(),
		MaxTokens:        defaultTokens(clampInt(req.MaxTokens, 1, 0)),
		Temperature:      clampFloat(req.Temperature, 0, 2),
		TopP:             clampFloat(req.TopP, 0, 1),
		N:                clampInt(req.N, 1, 128),
		Stream:           req.Stream,
		LogProbs:         req.LogProbs,
		Stop:             truncateStop(req.Stop),
		PresencePenalty:  clampFloat(req.PresencePenalty, -2, 2),
		FrequencyPenalty: clampFloat(req.FrequencyPenalty, -2, 2),
		User:             req.User,
	}
}

// clampFloat bounds *v into [lo, hi]. Nil passes through so absent fields
// stay absent on the wire.
func clampFloat(v *float64, lo, hi float64) *float64 {
	if v == nil {
		return nil
	}
	clamped := *v
	if clamped < lo {
		clamped = lo
	}
	if clamped > hi {
		clamped = hi
	}
	return &clamped
}

// clampInt bounds *v into [lo, hi]. A hi of 0 means no upper bound.
func clampInt(v *int, lo, hi int) *int {
	if v == nil {
		return nil
	}
	clamped := *v
	if clamped < lo {
		clamped = lo
	}
	if hi > 0 && clamped > hi {
		clamped = hi
	}
	return &clamped
}

// defaultTokens fills in max_tokens when the client omitted it.
func defaultTokens(v *int) *int {
	if v != nil {
		return v
	}
	def := defaultMaxTokens
	return &def
}

// truncateStop keeps at most 4 stop sequences.
func truncateStop(stop []string) []string {
	if len(stop) > 4 {
		return stop[:4]
	}
	return stop
}
