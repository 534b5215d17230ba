package server

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fulcrum-hq/portunus/pkg/audit"
	"fulcrum-hq/portunus/pkg/catalog"
	"fulcrum-hq/portunus/pkg/config"
	"fulcrum-hq/portunus/pkg/identity"
	"fulcrum-hq/portunus/pkg/providers"
	"fulcrum-hq/portunus/pkg/proxy"
	"fulcrum-hq/portunus/pkg/proxy/types"
	"fulcrum-hq/portunus/pkg/security/auth"
	"fulcrum-hq/portunus/pkg/storage"
	"fulcrum-hq/portunus/pkg/telemetry/health"
	"fulcrum-hq/portunus/pkg/telemetry/metrics"
	"fulcrum-hq/portunus/pkg/telemetry/tracing"
	"fulcrum-hq/portunus/pkg/usage"
)

// cannedProvider serves a fixed chat completion.
type cannedProvider struct{}

func (cannedProvider) ChatCompletion(_ context.Context, req *types.ChatCompletionRequest) (*types.ChatCompletionResponse, error) {
	return &types.ChatCompletionResponse{
		ID:     "chatcmpl-1",
		Object: "chat.completion",
		Model:  req.Model,
		Choices: []types.Choice{{
			Message:      types.Message{Role: "assistant", Content: "pong"},
			FinishReason: "stop",
		}},
		Usage: types.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

func (cannedProvider) Completion(_ context.Context, req *types.CompletionRequest) (*types.CompletionResponse, error) {
	return &types.CompletionResponse{ID: "cmpl-1", Object: "text_completion", Model: req.Model}, nil
}

func (cannedProvider) StreamChatCompletion(context.Context, *types.ChatCompletionRequest) (<-chan providers.StreamEvent, error) {
	ch := make(chan providers.StreamEvent)
	close(ch)
	return ch, nil
}

func (cannedProvider) ListModels(context.Context) ([]providers.ModelInfo, error) { return nil, nil }
func (cannedProvider) ListDeployments(context.Context) ([]providers.DeploymentInfo, error) {
	return nil, nil
}
func (cannedProvider) Name() string { return "canned" }
func (cannedProvider) Close() error { return nil }

type cannedSource struct{}

func (cannedSource) AdapterFor(context.Context, *catalog.Model) (providers.Provider, error) {
	return cannedProvider{}, nil
}

type serverFixture struct {
	cfg     *config.Config
	store   *storage.Memory
	ids     *identity.Service
	checker *health.Checker
	srv     *Server
	handler http.Handler
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	ctx := context.Background()

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)

	store := storage.NewMemory()
	cat := catalog.NewService(store, nil)
	ids := identity.NewService(store, nil)
	ledger := usage.NewLedger(store, nil)
	resolver := auth.NewResolver(auth.Config{}, ids, nil, nil)
	orch := proxy.NewOrchestrator(cat, cannedSource{}, ledger, nil)
	checker := health.New(0)
	collector := metrics.NewCollector(config.MetricsConfig{}, nil)

	auditSvc := audit.NewService(audit.Config{DBEnabled: true, QueueSize: 64}, store, nil, nil)
	t.Cleanup(func() { auditSvc.Close() })

	tracer, err := tracing.Setup(config.TracingConfig{}, "test")
	if err != nil {
		t.Fatalf("tracing setup: %v", err)
	}

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

	srv := New(cfg, Deps{
		Catalog:      cat,
		Identity:     ids,
		Usage:        ledger,
		Audit:        auditSvc,
		Resolver:     resolver,
		Orchestrator: orch,
		Discoverer:   nil,
		Health:       checker,
		Metrics:      collector,
		Tracer:       tracer,
		Build:        health.BuildInfo{Version: "test", Commit: "abc"},
		Logger:       nil,
	})

	return &serverFixture{
		cfg:     cfg,
		store:   store,
		ids:     ids,
		checker: checker,
		srv:     srv,
		handler: srv.Handler(),
	}
}

// apiKey provisions a user in the given groups and returns a live key.
func (f *serverFixture) apiKey(t *testing.T, username string, groups ...string) string {
	t.Helper()
	user, err := f.ids.CreateUser(context.Background(), &identity.User{Username: username, Groups: groups})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	created, err := f.ids.CreateAPIKey(context.Background(), user.ID, "test", nil)
	if err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}
	return created.Key
}

func (f *serverFixture) do(t *testing.T, method, target, key string, body any) *httptest.ResponseRecorder {
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
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthRoutesNeedNoCredentials(t *testing.T) {
	f := newServerFixture(t)

	for _, path := range []string{"/v1/health", "/v1/health/live", "/v1/health/ready"} {
		if rec := f.do(t, http.MethodGet, path, "", nil); rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}

	rec := f.do(t, http.MethodGet, "/v1/health/detailed", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /v1/health/detailed = %d, want 200", rec.Code)
	}
	var body struct {
		Build struct {
			Version string `json:"version"`
		} `json:"build"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode detailed body: %v", err)
	}
	if body.Build.Version != "test" {
		t.Errorf("build.version = %q, want %q", body.Build.Version, "test")
	}
}

func TestReadinessReflectsFailingProbe(t *testing.T) {
	f := newServerFixture(t)
	f.checker.Register("db", func(context.Context) error { return context.DeadlineExceeded })

	if rec := f.do(t, http.MethodGet, "/v1/health/ready", "", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("ready = %d, want 503", rec.Code)
	}
	// Liveness ignores dependency state: a broken database means out of
	// rotation, not a restart loop.
	if rec := f.do(t, http.MethodGet, "/v1/health/live", "", nil); rec.Code != http.StatusOK {
		t.Errorf("live = %d, want 200", rec.Code)
	}
}

func TestMetricsEndpointNeedsNoCredentials(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "portunus_") {
		t.Error("metrics exposition contains no portunus_ families")
	}
}

func TestMetricsEndpointAbsentWhenDisabled(t *testing.T) {
	f := newServerFixture(t)
	disabled := false
	f.srv.deps.Metrics = metrics.NewCollector(config.MetricsConfig{Enabled: &disabled}, nil)
	f.handler = f.srv.Handler()

	rec := f.do(t, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /metrics = %d, want 404", rec.Code)
	}
}

func TestAPIRequiresCredentials(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodGet, "/v1/models", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body["detail"] == "" {
		t.Error("missing detail in error body")
	}
}

func TestModelsListWithAPIKey(t *testing.T) {
	f := newServerFixture(t)
	key := f.apiKey(t, "alice", "engineering")

	rec := f.do(t, http.MethodGet, "/v1/models", key, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if rid := rec.Header().Get("X-Request-ID"); rid == "" {
		t.Error("response carries no X-Request-ID")
	}
	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Data) != 1 || body.Data[0].ID != "openai_gpt-4" {
		t.Errorf("models = %+v, want [openai_gpt-4]", body.Data)
	}
}

func TestChatCompletionThroughFullStack(t *testing.T) {
	f := newServerFixture(t)
	key := f.apiKey(t, "alice", "engineering")

	rec := f.do(t, http.MethodPost, "/v1/chat/completions", key, map[string]any{
		"model":    "openai_gpt-4",
		"messages": []map[string]string{{"role": "user", "content": "ping"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp types.ChatCompletionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Model != "openai_gpt-4" || resp.Usage.TotalTokens != 15 {
		t.Errorf("resp model %q usage %+v", resp.Model, resp.Usage)
	}

	rows, err := f.store.ListUsage(context.Background(), "alice", time.Time{}, 10)
	if err != nil {
		t.Fatalf("ListUsage: %v", err)
	}
	if len(rows) != 1 || rows[0].TotalTokens != 15 {
		t.Errorf("usage rows = %+v, want one row of 15 tokens", rows)
	}
}

func TestAdminSurfaceGatedByGroup(t *testing.T) {
	f := newServerFixture(t)
	memberKey := f.apiKey(t, "alice", "engineering")
	adminKey := f.apiKey(t, "root", catalog.AdminGroup)

	rec := f.do(t, http.MethodGet, "/v1/admin/models", memberKey, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("member status = %d, want 403", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/v1/admin/models", adminKey, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestUnknownRoutesAnswerJSON(t *testing.T) {
	f := newServerFixture(t)
	key := f.apiKey(t, "alice", "engineering")

	for _, tc := range []struct {
		target string
		key    string
	}{
		{"/nope", ""},
		{"/v1/nope", key},
		{"/v1/admin/nope", f.apiKey(t, "root2", catalog.AdminGroup)},
	} {
		rec := f.do(t, http.MethodGet, tc.target, tc.key, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("GET %s = %d, want 404", tc.target, rec.Code)
			continue
		}
		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Errorf("GET %s: non-JSON 404 body %q", tc.target, rec.Body.String())
			continue
		}
		if body["detail"] == "" {
			t.Errorf("GET %s: 404 body missing detail", tc.target)
		}
	}
}

func TestPreflightBypassesAuth(t *testing.T) {
	f := newServerFixture(t)

	req := httptest.NewRequest(http.MethodOptions, "/v1/chat/completions", nil)
	req.Header.Set("Origin", "https://console.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("preflight missing Access-Control-Allow-Origin")
	}
}

func TestStartStopsOnContextCancel(t *testing.T) {
	f := newServerFixture(t)
	f.cfg.Server.Host = "127.0.0.1"
	f.cfg.Server.Port = 0
	f.cfg.Server.ShutdownTimeout = 2 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.srv.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !f.srv.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !f.srv.IsRunning() {
		t.Fatal("server never reported running")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after cancel")
	}
	if f.srv.IsRunning() {
		t.Error("IsRunning still true after shutdown")
	}
}

func TestShutdownBeforeStartIsNoOp(t *testing.T) {
	f := newServerFixture(t)
	if err := f.srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

// writeKeyPair writes a self-signed certificate and key under dir and
// returns their paths.
func writeKeyPair(t *testing.T, dir string, serial int64) (string, string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := x509.Certificate{
		SerialNumber:          big.NewInt(serial),
		Subject:               pkix.Name{CommonName: "localhost"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}

	certPath := filepath.Join(dir, "server.crt")
	keyPath := filepath.Join(dir, "server.key")
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	if err := os.WriteFile(certPath, certPEM, 0o600); err != nil {
		t.Fatalf("write cert: %v", err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	return certPath, keyPath
}

func TestServerTLSConfigMinVersion(t *testing.T) {
	certPath, keyPath := writeKeyPair(t, t.TempDir(), 1)

	tests := []struct {
		configured string
		want       uint16
	}{
		{"", tls.VersionTLS12},
		{"1.2", tls.VersionTLS12},
		{"1.3", tls.VersionTLS13},
	}
	for _, tc := range tests {
		got, err := serverTLSConfig(config.TLSConfig{
			Enabled:    true,
			CertFile:   certPath,
			KeyFile:    keyPath,
			MinVersion: tc.configured,
		})
		if err != nil {
			t.Fatalf("min_version %q: %v", tc.configured, err)
		}
		if got.MinVersion != tc.want {
			t.Errorf("min_version %q: MinVersion = %x, want %x", tc.configured, got.MinVersion, tc.want)
		}
		cert, err := got.GetCertificate(&tls.ClientHelloInfo{})
		if err != nil || cert == nil {
			t.Errorf("min_version %q: GetCertificate = %v, %v", tc.configured, cert, err)
		}
	}
}

func TestServerTLSConfigClientCA(t *testing.T) {
	certPath, keyPath := writeKeyPair(t, t.TempDir(), 1)

	got, err := serverTLSConfig(config.TLSConfig{
		Enabled:      true,
		CertFile:     certPath,
		KeyFile:      keyPath,
		ClientCAFile: certPath,
	})
	if err != nil {
		t.Fatalf("serverTLSConfig: %v", err)
	}
	if got.ClientAuth != tls.RequireAndVerifyClientCert {
		t.Errorf("ClientAuth = %v, want RequireAndVerifyClientCert", got.ClientAuth)
	}
	if got.ClientCAs == nil {
		t.Error("ClientCAs not populated")
	}

	if _, err := serverTLSConfig(config.TLSConfig{
		Enabled:      true,
		CertFile:     certPath,
		KeyFile:      keyPath,
		ClientCAFile: filepath.Join(t.TempDir(), "missing.pem"),
	}); err == nil {
		t.Error("missing CA bundle accepted")
	}
}

func TestCertReloaderPicksUpRotation(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeKeyPair(t, dir, 1)

	r, err := newCertReloader(certPath, keyPath)
	if err != nil {
		t.Fatalf("newCertReloader: %v", err)
	}
	r.interval = 0

	first, err := r.get(&tls.ClientHelloInfo{})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	firstLeaf, err := x509.ParseCertificate(first.Certificate[0])
	if err != nil {
		t.Fatalf("parse first leaf: %v", err)
	}
	if firstLeaf.SerialNumber.Int64() != 1 {
		t.Fatalf("first serial = %d, want 1", firstLeaf.SerialNumber.Int64())
	}

	writeKeyPair(t, dir, 2)
	future := time.Now().Add(time.Minute)
	if err := os.Chtimes(certPath, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	second, err := r.get(&tls.ClientHelloInfo{})
	if err != nil {
		t.Fatalf("get after rotation: %v", err)
	}
	secondLeaf, err := x509.ParseCertificate(second.Certificate[0])
	if err != nil {
		t.Fatalf("parse second leaf: %v", err)
	}
	if secondLeaf.SerialNumber.Int64() != 2 {
		t.Errorf("serial after rotation = %d, want 2", secondLeaf.SerialNumber.Int64())
	}
}
