// Package unique implements the adapter for the Unique FinanceGPT
// platform.
//
// The vendor speaks an OpenAI-adjacent dialect with three differences
// this adapter absorbs: every call carries tenant headers (x-app-id,
// x-company-id, x-user-id), the chat contract wants synthetic chat, user,
// and assistant message identifiers minted per streamed call, and
// responses frequently omit usage figures, which are then estimated from
// word counts. The platform has no completions endpoint, so legacy
// completion calls are downgraded to chat like on Azure.
package unique

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"fulcrum-hq/portunus/pkg/providers"
	"fulcrum-hq/portunus/pkg/proxy/tokens"
	"fulcrum-hq/portunus/pkg/proxy/types"
)

// Adapter forwards to the Unique platform's chat surface.
type Adapter struct {
	client *providers.Client
	tenant providers.UniqueTenant
}

// New creates a Unique adapter.
func New(cfg providers.Config) (*Adapter, error) {
	if cfg.APIKey == "" {
		return nil, &providers.ConfigError{
			Provider: cfg.Name,
			Field:    "api_key",
			Message:  "API key is required",
		}
	}
	if cfg.Unique == nil || cfg.Unique.AppID == "" || cfg.Unique.CompanyID == "" {
		return nil, &providers.ConfigError{
			Provider: cfg.Name,
			Field:    "unique",
			Message:  "app_id and company_id are required for unique",
		}
	}

	client, err := providers.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Adapter{client: client, tenant: *cfg.Unique}, nil
}

// Name returns the catalog technical name the adapter serves.
func (a *Adapter) Name() string {
	return a.client.Name()
}

// Close releases the adapter's connection pool.
func (a *Adapter) Close() error {
	return a.client.Close()
}

// vendorMessage is a conversation message in the vendor's shape: content
// is always flat text.
type vendorMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatPayload is the vendor chat request. The three identifier fields are
// minted fresh for every call; the vendor contract requires them on
// streamed calls.
type chatPayload struct {
	Model              string          `json:"model"`
	Messages           []vendorMessage `json:"messages"`
	ChatID             string          `json:"chatId"`
	UserMessageID      string          `json:"userMessageId"`
	AssistantMessageID string          `json:"assistantMessageId"`
	Temperature        *float64        `json:"temperature,omitempty"`
	MaxTokens          *int            `json:"maxTokens,omitempty"`
	TopP               *float64        `json:"topP,omitempty"`
	Stream             bool            `json:"stream,omitempty"`
	Stop               []string        `json:"stop,omitempty"`
}

// chatResponse is the vendor chat response. Usage is a pointer because
// the vendor frequently omits it.
type chatResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []types.Choice `json:"choices"`
	Usage   *types.Usage   `json:"usage"`
}

// buildChatPayload converts a canonical chat request into the vendor
// shape, flattening message content to text and minting the synthetic
// identifiers.
func buildChatPayload(req *types.ChatCompletionRequest, stream bool) *chatPayload {
	messages := make([]vendorMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, vendorMessage{
			Role:    m.Role,
			Content: m.ContentString(),
		})
	}

	return &chatPayload{
		Model:              req.Model,
		Messages:           messages,
		ChatID:             uuid.NewString(),
		UserMessageID:      uuid.NewString(),
		AssistantMessageID: uuid.NewString(),
		Temperature:        req.Temperature,
		MaxTokens:          req.MaxTokens,
		TopP:               req.TopP,
		Stream:             stream,
		Stop:               req.Stop,
	}
}

// ChatCompletion forwards a chat completion, estimating usage when the
// vendor omits it.
func (a *Adapter) ChatCompletion(ctx context.Context, req *types.ChatCompletionRequest) (*types.ChatCompletionResponse, error) {
	var resp chatResponse
	err := a.client.DoJSON(ctx, http.MethodPost, a.url("/chat/completions"),
		a.headers(), buildChatPayload(req, false), &resp, a.client.Config().Timeout)
	if err != nil {
		return nil, err
	}

	out := &types.ChatCompletionResponse{
		ID:      resp.ID,
		Object:  "chat.completion",
		Created: resp.Created,
		Model:   resp.Model,
		Choices: resp.Choices,
	}
	if resp.Usage != nil {
		out.Usage = *resp.Usage
	} else {
		var completion string
		if len(resp.Choices) > 0 {
			completion = resp.Choices[0].Message.ContentString()
		}
		out.Usage = tokens.EstimateUsage(req.Messages, completion)
	}
	return out, nil
}

// Completion routes through a chat downgrade; the platform has no
// completions endpoint.
func (a *Adapter) Completion(ctx context.Context, req *types.CompletionRequest) (*types.CompletionResponse, error) {
	chatReq := &types.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    []types.Message{{Role: providers.RoleUser, Content: req.PromptText()}},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
		Stop:        req.Stop,
		User:        req.User,
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

// StreamChatCompletion opens a streaming chat completion with freshly
// minted message identifiers.
func (a *Adapter) StreamChatCompletion(ctx context.Context, req *types.ChatCompletionRequest) (<-chan providers.StreamEvent, error) {
	body, err := a.client.OpenSSE(ctx, http.MethodPost, a.url("/chat/completions"),
		a.headers(), buildChatPayload(req, true))
	if err != nil {
		return nil, err
	}
	return a.client.Stream(ctx, body, decodeChunk), nil
}

// modelList is the vendor model listing envelope.
type modelList struct {
	Data []providers.ModelInfo `json:"data"`
}

// ListModels returns the models the platform advertises.
func (a *Adapter) ListModels(ctx context.Context) ([]providers.ModelInfo, error) {
	var list modelList
	err := a.client.DoJSON(ctx, http.MethodGet, a.url("/models"),
		a.headers(), nil, &list, a.client.Config().ListTimeout)
	if err != nil {
		return nil, err
	}
	return list.Data, nil
}

// ListDeployments synthesizes one deployment per model; the platform has
// no deployment concept.
func (a *Adapter) ListDeployments(ctx context.Context) ([]providers.DeploymentInfo, error) {
	models, err := a.ListModels(ctx)
	if err != nil {
		return nil, err
	}

	deployments := make([]providers.DeploymentInfo, 0, len(models))
	for _, m := range models {
		deployments = append(deployments, providers.DeploymentInfo{
			Name:         m.ID,
			Model:        m.ID,
			Capabilities: m.Capabilities,
		})
	}
	return deployments, nil
}

func (a *Adapter) url(path string) string {
	return strings.TrimRight(a.client.Config().BaseURL, "/") + path
}

// headers returns the Bearer token plus the tenant identification headers
// required on every call.
func (a *Adapter) headers() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+a.client.Config().APIKey)
	h.Set("x-app-id", a.tenant.AppID)
	h.Set("x-company-id", a.tenant.CompanyID)
	if a.tenant.UserID != "" {
		h.Set("x-user-id", a.tenant.UserID)
	}
	return h
}

// decodeChunk parses a vendor SSE payload; the streamed dialect matches
// the OpenAI chunk shape.
func decodeChunk(data []byte) (*types.ChatCompletionStreamChunk, error) {
	var chunk types.ChatCompletionStreamChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return nil, err
	}
	return providers.NormalizeChunk(&chunk), nil
}
