package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"fulcrum-hq/portunus/pkg/catalog"
	"fulcrum-hq/portunus/pkg/identity"
	"fulcrum-hq/portunus/pkg/providers"
	"fulcrum-hq/portunus/pkg/proxy"
	"fulcrum-hq/portunus/pkg/proxy/types"
	"fulcrum-hq/portunus/pkg/security/auth"
	"fulcrum-hq/portunus/pkg/storage"
	"fulcrum-hq/portunus/pkg/usage"
)

// echoProvider answers every call with a canned completion for the
// requested model.
type echoProvider struct {
	streamFn func(ctx context.Context) <-chan providers.StreamEvent
	chatErr  error
}

func (e *echoProvider) ChatCompletion(ctx context.Context, req *types.ChatCompletionRequest) (*types.ChatCompletionResponse, error) {
	if e.chatErr != nil {
		return nil, e.chatErr
	}
	return &types.ChatCompletionResponse{
		ID:     "chatcmpl-1",
		Object: "chat.completion",
		Model:  req.Model,
		Choices: []types.Choice{
			{Message: types.Message{Role: "assistant", Content: "pong"}, FinishReason: "stop"},
		},
		Usage: types.Usage{PromptTokens: 3, CompletionTokens: 1, TotalTokens: 4},
	}, nil
}

func (e *echoProvider) Completion(ctx context.Context, req *types.CompletionRequest) (*types.CompletionResponse, error) {
	return &types.CompletionResponse{
		ID:      "cmpl-1",
		Object:  "text_completion",
		Model:   req.Model,
		Choices: []types.CompletionChoice{{Text: "pong", FinishReason: "stop"}},
		Usage:   types.Usage{PromptTokens: 2, CompletionTokens: 1, TotalTokens: 3},
	}, nil
}

func (e *echoProvider) StreamChatCompletion(ctx context.Context, req *types.ChatCompletionRequest) (<-chan providers.StreamEvent, error) {
	if e.streamFn == nil {
		ch := make(chan providers.StreamEvent)
		close(ch)
		return ch, nil
	}
	return e.streamFn(ctx), nil
}

func (e *echoProvider) ListModels(ctx context.Context) ([]providers.ModelInfo, error) {
	return nil, nil
}

func (e *echoProvider) ListDeployments(ctx context.Context) ([]providers.DeploymentInfo, error) {
	return nil, nil
}

func (e *echoProvider) Name() string { return "echo" }
func (e *echoProvider) Close() error { return nil }

type staticSource struct {
	provider providers.Provider
}

func (s *staticSource) AdapterFor(ctx context.Context, m *catalog.Model) (providers.Provider, error) {
	return s.provider, nil
}

// fixture wires the handler dependencies over the in-memory store.
type fixture struct {
	store    *storage.Memory
	cat      *catalog.Service
	identity *identity.Service
	ledger   *usage.Ledger
	resolver *auth.Resolver
	provider *echoProvider
	orch     *proxy.Orchestrator
	model    *catalog.Model
	group    *catalog.Group
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store := storage.NewMemory()
	cat := catalog.NewService(store, nil)
	ids := identity.NewService(store, nil)
	ledger := usage.NewLedger(store, nil)
	resolver := auth.NewResolver(auth.Config{}, ids, nil, nil)

	model, _, err := cat.AddOrUpdateModel(ctx, &catalog.Model{
		URL:           "https://api.openai.com/v1",
		DisplayName:   "GPT-4",
		TechnicalName: "openai_gpt-4",
		Provider:      catalog.ProviderOpenAI,
		Status:        catalog.StatusApproved,
	})
	if err != nil {
		t.Fatalf("seed model: %v", err)
	}

	group, err := cat.CreateGroup(ctx, &catalog.Group{Name: "engineering"})
	if err != nil {
		t.Fatalf("seed group: %v", err)
	}
	if err := cat.AddModelToGroup(ctx, model.ID, group.ID); err != nil {
		t.Fatalf("link model: %v", err)
	}

	provider := &echoProvider{}
	orch := proxy.NewOrchestrator(cat, &staticSource{provider: provider}, ledger, nil)

	return &fixture{
		store:    store,
		cat:      cat,
		identity: ids,
		ledger:   ledger,
		resolver: resolver,
		provider: provider,
		orch:     orch,
		model:    model,
		group:    group,
	}
}

func member() *auth.Principal {
	return &auth.Principal{ID: "u1", Username: "alice", Kind: auth.KindAPIKey, Groups: []string{"engineering"}}
}

// request builds an HTTP request, optionally JSON-encoding a body and
// attaching a principal the way the auth middleware would.
func request(t *testing.T, method, target string, body any, p *auth.Principal) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p != nil {
		req = req.WithContext(auth.ContextWithPrincipal(req.Context(), p))
	}
	return req
}

// decode unmarshals a recorded JSON response body.
func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

// detail extracts the "detail" string from an error response.
func detail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Detail string `json:"detail"`
	}
	decode(t, rec, &body)
	return body.Detail
}

// adminMux mounts the admin handlers under the same patterns the server
// uses, so path parameters resolve in tests.
func adminMux(f *fixture, discoverer ModelDiscoverer) *http.ServeMux {
	models := NewAdminModelsHandler(f.cat, discoverer, nil)
	groups := NewAdminGroupsHandler(f.cat, nil)
	users := NewAdminUsersHandler(f.identity, f.ledger, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/admin/models", models.List)
	mux.HandleFunc("POST /v1/admin/models", models.Create)
	mux.HandleFunc("POST /v1/admin/models/refresh", models.Refresh)
	mux.HandleFunc("GET /v1/admin/models/{id}", models.Get)
	mux.HandleFunc("DELETE /v1/admin/models/{id}", models.Delete)
	mux.HandleFunc("PATCH /v1/admin/models/{id}/status", models.UpdateStatus)
	mux.HandleFunc("GET /v1/admin/models/{id}/groups", models.ListGroups)
	mux.HandleFunc("POST /v1/admin/models/{id}/groups/{gid}", models.AddGroup)
	mux.HandleFunc("DELETE /v1/admin/models/{id}/groups/{gid}", models.RemoveGroup)

	mux.HandleFunc("GET /v1/admin/groups", groups.List)
	mux.HandleFunc("POST /v1/admin/groups", groups.Create)
	mux.HandleFunc("GET /v1/admin/groups/{id}", groups.Get)
	mux.HandleFunc("PUT /v1/admin/groups/{id}", groups.Update)
	mux.HandleFunc("DELETE /v1/admin/groups/{id}", groups.Delete)
	mux.HandleFunc("GET /v1/admin/groups/{id}/models", groups.ListModels)

	mux.HandleFunc("GET /v1/admin/users", users.List)
	mux.HandleFunc("POST /v1/admin/users", users.Create)
	mux.HandleFunc("GET /v1/admin/users/{id}", users.Get)
	mux.HandleFunc("PUT /v1/admin/users/{id}", users.Update)
	mux.HandleFunc("DELETE /v1/admin/users/{id}", users.Delete)
	mux.HandleFunc("POST /v1/admin/users/{id}/deactivate", users.Deactivate)
	mux.HandleFunc("POST /v1/admin/users/{id}/api-keys", users.CreateAPIKey)
	mux.HandleFunc("GET /v1/admin/users/{id}/api-keys", users.ListAPIKeys)
	mux.HandleFunc("DELETE /v1/admin/users/{id}/api-keys/{kid}", users.DeleteAPIKey)
	mux.HandleFunc("GET /v1/admin/users/{id}/token-usage", users.TokenUsage)
	mux.HandleFunc("GET /v1/admin/users/{id}/token-usage/details", users.TokenUsageDetails)

	return mux
}
