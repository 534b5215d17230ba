// Package openai implements the adapter for OpenAI-native upstreams.
//
// The canonical wire shapes in pkg/proxy/types are the OpenAI shapes, so
// this adapter forwards requests nearly verbatim: absent optional fields
// are already stripped by pointer/omitempty encoding. Authentication is a
// Bearer token. Any endpoint that speaks the OpenAI dialect works through
// this adapter, which is also why the factory uses it as the fallback for
// unrecognized provider tags.
package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"fulcrum-hq/portunus/pkg/providers"
	"fulcrum-hq/portunus/pkg/proxy/types"
)

// Adapter forwards to {base}/chat/completions, {base}/completions, and
// {base}/models.
type Adapter struct {
	client *providers.Client
}

// New creates an OpenAI-native adapter.
func New(cfg providers.Config) (*Adapter, error) {
	if cfg.APIKey == "" {
		return nil, &providers.ConfigError{
			Provider: cfg.Name,
			Field:    "api_key",
			Message:  "API key is required",
		}
	}

	client, err := providers.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Adapter{client: client}, nil
}

// Name returns the catalog technical name the adapter serves.
func (a *Adapter) Name() string {
	return a.client.Name()
}

// Close releases the adapter's connection pool.
func (a *Adapter) Close() error {
	return a.client.Close()
}

// ChatCompletion forwards a chat completion request.
func (a *Adapter) ChatCompletion(ctx context.Context, req *types.ChatCompletionRequest) (*types.ChatCompletionResponse, error) {
	var resp types.ChatCompletionResponse
	err := a.client.DoJSON(ctx, http.MethodPost, a.url("/chat/completions"),
		a.headers(), req, &resp, a.client.Config().Timeout)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Completion forwards a legacy text completion request.
func (a *Adapter) Completion(ctx context.Context, req *types.CompletionRequest) (*types.CompletionResponse, error) {
	var resp types.CompletionResponse
	err := a.client.DoJSON(ctx, http.MethodPost, a.url("/completions"),
		a.headers(), req, &resp, a.client.Config().Timeout)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// StreamChatCompletion opens a streaming chat completion. The request is
// copied so the caller's Stream flag is not mutated.
func (a *Adapter) StreamChatCompletion(ctx context.Context, req *types.ChatCompletionRequest) (<-chan providers.StreamEvent, error) {
	streamReq := *req
	streamReq.Stream = true

	body, err := a.client.OpenSSE(ctx, http.MethodPost, a.url("/chat/completions"), a.headers(), &streamReq)
	if err != nil {
		return nil, err
	}
	return a.client.Stream(ctx, body, DecodeChunk), nil
}

// modelList is the OpenAI /models response envelope.
type modelList struct {
	Data []providers.ModelInfo `json:"data"`
}

// ListModels returns the models advertised on {base}/models.
func (a *Adapter) ListModels(ctx context.Context) ([]providers.ModelInfo, error) {
	var list modelList
	err := a.client.DoJSON(ctx, http.MethodGet, a.url("/models"),
		a.headers(), nil, &list, a.client.Config().ListTimeout)
	if err != nil {
		return nil, err
	}
	return list.Data, nil
}

// ListDeployments synthesizes one deployment per advertised model; the
// OpenAI platform has no deployment concept.
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

func (a *Adapter) headers() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+a.client.Config().APIKey)
	return h
}

// DecodeChunk parses an OpenAI SSE data payload into a canonical chunk
// with the streaming defaults applied.
func DecodeChunk(data []byte) (*types.ChatCompletionStreamChunk, error) {
	var chunk types.ChatCompletionStreamChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return nil, err
	}
	return providers.NormalizeChunk(&chunk), nil
}
