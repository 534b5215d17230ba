// Package azure implements the adapter for Azure OpenAI upstreams.
//
// Azure differs from the OpenAI platform in three ways this adapter
// absorbs: inference URLs carry a deployment name and api-version
// ({base}/openai/deployments/{deployment}/{endpoint}?api-version={ver}),
// authentication uses the api-key header instead of a Bearer token, and
// several request fields are unsupported or range-restricted. Deployments
// on chat-only model families additionally have no completions endpoint,
// so legacy completion calls are downgraded to chat and the response is
// rewritten back to the text_completion shape.
package azure

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"fulcrum-hq/portunus/pkg/providers"
	"fulcrum-hq/portunus/pkg/proxy/types"
)

// chatOnlyFamilies marks model families that Azure serves exclusively
// through the chat endpoint. A deployment name containing one of these
// gets its completion calls downgraded to chat.
var chatOnlyFamilies = []string{"gpt-4", "gpt-3.5-turbo", "gpt-35-turbo", "claude", "mistral"}

// Adapter serves one Azure OpenAI deployment. The deployment name is the
// catalog technical name of the model.
type Adapter struct {
	client     *providers.Client
	deployment string
	apiVersion string
	tokens     *tokenCache

	// Overridable in tests; production values point at public Azure.
	loginBase      string
	managementBase string
}

// New creates an Azure OpenAI adapter.
func New(cfg providers.Config) (*Adapter, error) {
	if cfg.APIKey == "" {
		return nil, &providers.ConfigError{
			Provider: cfg.Name,
			Field:    "api_key",
			Message:  "API key is required",
		}
	}
	if cfg.APIVersion == "" {
		return nil, &providers.ConfigError{
			Provider: cfg.Name,
			Field:    "api_version",
			Message:  "api_version is required for azure",
		}
	}

	client, err := providers.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	return &Adapter{
		client:         client,
		deployment:     cfg.Name,
		apiVersion:     cfg.APIVersion,
		tokens:         &tokenCache{},
		loginBase:      "https://login.microsoftonline.com",
		managementBase: "https://management.azure.com",
	}, nil
}

// Name returns the deployment (catalog technical name) the adapter serves.
func (a *Adapter) Name() string {
	return a.client.Name()
}

// Close releases the adapter's connection pool.
func (a *Adapter) Close() error {
	return a.client.Close()
}

// ChatCompletion forwards a chat completion to the deployment.
func (a *Adapter) ChatCompletion(ctx context.Context, req *types.ChatCompletionRequest) (*types.ChatCompletionResponse, error) {
	var resp types.ChatCompletionResponse
	err := a.client.DoJSON(ctx, http.MethodPost, a.inferenceURL("chat/completions"),
		a.headers(), buildChatRequest(req), &resp, a.client.Config().Timeout)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Completion forwards a legacy completion. Deployments on chat-only model
// families are transparently served through the chat endpoint.
func (a *Adapter) Completion(ctx context.Context, req *types.CompletionRequest) (*types.CompletionResponse, error) {
	if isChatOnly(a.deployment) {
		return a.completionViaChat(ctx, req)
	}

	var resp types.CompletionResponse
	err := a.client.DoJSON(ctx, http.MethodPost, a.inferenceURL("completions"),
		a.headers(), buildCompletionRequest(req), &resp, a.client.Config().Timeout)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// completionViaChat rewrites a completion call as a chat call: the prompt
// becomes a single user message and the first-choice content comes back as
// the completion text, with the object type restored to text_completion.
func (a *Adapter) completionViaChat(ctx context.Context, req *types.CompletionRequest) (*types.CompletionResponse, error) {
	chatReq := &types.ChatCompletionRequest{
		Model:            req.Model,
		Messages:         []types.Message{{Role: providers.RoleUser, Content: req.PromptText()}},
		Temperature:      req.Temperature,
		MaxTokens:        req.MaxTokens,
		TopP:             req.TopP,
		N:                req.N,
		Stop:             req.Stop,
		PresencePenalty:  req.PresencePenalty,
		FrequencyPenalty: req.FrequencyPenalty,
		User:             req.User,
	}

	chatResp, err := a.ChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, err
	}

	resp := &types.CompletionResponse{
		ID:      chatResp.ID,
		Object:  "text_completion",
		Created: chatResp.Created,
		Model:   chatResp.Model,
		Usage:   chatResp.Usage,
		Choices: make([]types.CompletionChoice, 0, len(chatResp.Choices)),
	}
	for _, choice := range chatResp.Choices {
		resp.Choices = append(resp.Choices, types.CompletionChoice{
			Text:         choice.Message.ContentString(),
			Index:        choice.Index,
			FinishReason: choice.FinishReason,
		})
	}
	return resp, nil
}

// StreamChatCompletion opens a streaming chat completion against the
// deployment. Azure streams the OpenAI chunk dialect.
func (a *Adapter) StreamChatCompletion(ctx context.Context, req *types.ChatCompletionRequest) (<-chan providers.StreamEvent, error) {
	streamReq := *req
	streamReq.Stream = true

	body, err := a.client.OpenSSE(ctx, http.MethodPost, a.inferenceURL("chat/completions"),
		a.headers(), buildChatRequest(&streamReq))
	if err != nil {
		return nil, err
	}
	return a.client.Stream(ctx, body, decodeChunk), nil
}

// modelList is the Azure /openai/models response envelope.
type modelList struct {
	Data []struct {
		ID           string         `json:"id"`
		Capabilities map[string]any `json:"capabilities"`
	} `json:"data"`
}

// ListModels returns the models on the account's data-plane listing
// endpoint.
func (a *Adapter) ListModels(ctx context.Context) ([]providers.ModelInfo, error) {
	u := fmt.Sprintf("%s/openai/models?api-version=%s",
		strings.TrimRight(a.client.Config().BaseURL, "/"), url.QueryEscape(a.apiVersion))

	var list modelList
	err := a.client.DoJSON(ctx, http.MethodGet, u, a.headers(), nil, &list, a.client.Config().ListTimeout)
	if err != nil {
		return nil, err
	}

	models := make([]providers.ModelInfo, 0, len(list.Data))
	for _, m := range list.Data {
		models = append(models, providers.ModelInfo{ID: m.ID, Capabilities: m.Capabilities})
	}
	return models, nil
}

// inferenceURL builds the deployment-scoped endpoint URL.
func (a *Adapter) inferenceURL(endpoint string) string {
	return fmt.Sprintf("%s/openai/deployments/%s/%s?api-version=%s",
		strings.TrimRight(a.client.Config().BaseURL, "/"),
		url.PathEscape(a.deployment),
		endpoint,
		url.QueryEscape(a.apiVersion))
}

// headers returns the Azure auth header. Bearer is not used on the data
// plane.
func (a *Adapter) headers() http.Header {
	h := http.Header{}
	h.Set("api-key", a.client.Config().APIKey)
	return h
}

// decodeChunk parses an Azure SSE data payload. Azure emits the OpenAI
// chunk dialect, including occasional empty-choice content-filter chunks,
// which pass through unchanged.
func decodeChunk(data []byte) (*types.ChatCompletionStreamChunk, error) {
	var chunk types.ChatCompletionStreamChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return nil, err
	}
	return providers.NormalizeChunk(&chunk), nil
}

// isChatOnly reports whether the deployment name indicates a chat-only
// model family.
func isChatOnly(deployment string) bool {
	name := strings.ToLower(deployment)
	for _, family := range chatOnlyFamilies {
		if strings.Contains(name, family) {
			return true
		}
	}
	return false
}
