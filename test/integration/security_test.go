//go:build integration

package integration

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"io"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"fulcrum-hq/portunus/internal/upstreamtest"
	"fulcrum-hq/portunus/pkg/catalog"
	"fulcrum-hq/portunus/pkg/config"
	"fulcrum-hq/portunus/pkg/identity"
	"fulcrum-hq/portunus/pkg/providerfactory"
	"fulcrum-hq/portunus/pkg/proxy"
	"fulcrum-hq/portunus/pkg/proxy/types"
	"fulcrum-hq/portunus/pkg/security/auth"
	"fulcrum-hq/portunus/pkg/security/secrets"
	securityTLS "fulcrum-hq/portunus/pkg/security/tls"
	"fulcrum-hq/portunus/pkg/server"
	"fulcrum-hq/portunus/pkg/storage"
	"fulcrum-hq/portunus/pkg/telemetry/health"
	"fulcrum-hq/portunus/pkg/usage"
)

func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// secureGateway is the proxy stack without a listener, so each test can
// serve it plain or behind whatever TLS setup it exercises.
type secureGateway struct {
	cfg      *config.Config
	handler  http.Handler
	catalog  *catalog.Service
	identity *identity.Service
	adapters *providerfactory.Manager
}

func newSecureGateway(t *testing.T, authCfg auth.Config, secretSource providerfactory.SecretResolver, endpoints ...config.ModelConfig) *secureGateway {
	t.Helper()
	quiet := quietLogger()

	cfg := &config.Config{
		ModelConfigs: endpoints,
		Retry: config.RetryConfig{
			MaxAttempts: 2,
			BaseDelay:   time.Millisecond,
			MaxDelay:    5 * time.Millisecond,
		},
	}
	config.ApplyDefaults(cfg)

	store := storage.NewMemory()
	t.Cleanup(func() { store.Close() })

	cat := catalog.NewService(store, quiet)
	ids := identity.NewService(store, quiet)
	ledger := usage.NewLedger(store, quiet)

	resolver := auth.NewResolver(authCfg, ids, nil, quiet)

	adapters := providerfactory.NewManager(cfg, secretSource, quiet)
	t.Cleanup(func() { adapters.Close() })

	orch := proxy.NewOrchestrator(cat, adapters, ledger, quiet)

	checker := health.New(time.Second)
	checker.Register("database", store.Ping)

	srv := server.New(cfg, server.Deps{
		Catalog:      cat,
		Identity:     ids,
		Usage:        ledger,
		Resolver:     resolver,
		Orchestrator: orch,
		Discoverer:   adapters,
		Health:       checker,
		Logger:       quiet,
	})

	return &secureGateway{
		cfg:      cfg,
		handler:  srv.Handler(),
		catalog:  cat,
		identity: ids,
		adapters: adapters,
	}
}

// seedChatModel registers an approved openai chat model on url and
// grants the research group access to it.
func (g *secureGateway) seedChatModel(t *testing.T, url string) {
	t.Helper()
	ctx := context.Background()

	model, _, err := g.catalog.AddOrUpdateModel(ctx, &catalog.Model{
		URL:           url,
		TechnicalName: "openai_gpt-4",
		DisplayName:   "openai_gpt-4",
		Provider:      catalog.ProviderOpenAI,
		Status:        catalog.StatusApproved,
	})
	if err != nil {
		t.Fatalf("seeding model: %v", err)
	}
	grp, err := g.catalog.CreateGroup(ctx, &catalog.Group{Name: "research"})
	if err != nil {
		t.Fatalf("seeding group: %v", err)
	}
	if err := g.catalog.AddModelToGroup(ctx, model.ID, grp.ID); err != nil {
		t.Fatalf("linking model to group: %v", err)
	}
}

// seedKey creates a user in the research group and returns an API key.
func (g *secureGateway) seedKey(t *testing.T, username string) string {
	t.Helper()
	ctx := context.Background()

	user, err := g.identity.Provision(ctx, username, []string{"research"})
	if err != nil {
		t.Fatalf("seeding user: %v", err)
	}
	key, err := g.identity.CreateAPIKey(ctx, user.ID, "integration", nil)
	if err != nil {
		t.Fatalf("creating key: %v", err)
	}
	return key.Key
}

func chatRequest(t *testing.T, client *http.Client, baseURL, credential string) *http.Response {
	t.Helper()

	payload := map[string]any{
		"model":    "openai_gpt-4",
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("encoding request: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/v1/chat/completions", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", credential)

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("chat request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// testCA is an in-test certificate authority for TLS scenarios.
type testCA struct {
	cert    *x509.Certificate
	key     *rsa.PrivateKey
	certPEM []byte
}

func newTestCA(t *testing.T) *testCA {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating CA key: %v", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		t.Fatalf("generating serial: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"Portunus Integration"},
			CommonName:   "Portunus Test CA",
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("creating CA certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parsing CA certificate: %v", err)
	}

	return &testCA{
		cert:    cert,
		key:     key,
		certPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
	}
}

func (ca *testCA) caFile(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "ca.pem")
	if err := os.WriteFile(path, ca.certPEM, 0o600); err != nil {
		t.Fatalf("writing CA file: %v", err)
	}
	return path
}

// issue signs a leaf certificate for the given role and writes the PEM
// pair under dir using the prefix.
func (ca *testCA) issue(t *testing.T, dir, prefix string, client bool) (certFile, keyFile string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating leaf key: %v", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		t.Fatalf("generating serial: %v", err)
	}

	usage := []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
	if client {
		usage = []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}
	}
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"Portunus Integration"},
			CommonName:   prefix,
		},
		NotBefore:   time.Now().Add(-time.Hour),
		NotAfter:    time.Now().Add(24 * time.Hour),
		KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage: usage,
		DNSNames:    []string{"localhost"},
		IPAddresses: []net.IP{net.IPv4(127, 0, 0, 1)},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, ca.cert, &key.PublicKey, ca.key)
	if err != nil {
		t.Fatalf("creating leaf certificate: %v", err)
	}

	certFile = filepath.Join(dir, prefix+"-cert.pem")
	keyFile = filepath.Join(dir, prefix+"-key.pem")

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	if err := os.WriteFile(certFile, certPEM, 0o600); err != nil {
		t.Fatalf("writing leaf cert: %v", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	if err := os.WriteFile(keyFile, keyPEM, 0o600); err != nil {
		t.Fatalf("writing leaf key: %v", err)
	}
	return certFile, keyFile
}

func insecureClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
}

func TestGatewayServesTLS(t *testing.T) {
	ca := newTestCA(t)
	certFile, keyFile := ca.issue(t, t.TempDir(), "server", false)

	tlsCfg := &securityTLS.ServerConfig{
		Enabled:    true,
		CertFile:   certFile,
		KeyFile:    keyFile,
		MinVersion: "1.3",
	}
	built, err := tlsCfg.Build()
	if err != nil {
		t.Fatalf("building TLS config: %v", err)
	}

	gw := newSecureGateway(t, auth.Config{}, nil)

	ts := httptest.NewUnstartedServer(gw.handler)
	ts.TLS = built
	ts.StartTLS()
	defer ts.Close()

	resp, err := insecureClient().Get(ts.URL + "/v1/health")
	if err != nil {
		t.Fatalf("HTTPS request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if resp.TLS == nil {
		t.Fatal("response carries no TLS state")
	}
	if resp.TLS.Version < tls.VersionTLS13 {
		t.Errorf("negotiated TLS version 0x%x is below 1.3", resp.TLS.Version)
	}

	// The configured certificate must be the one served, not a default.
	leaf := resp.TLS.PeerCertificates[0]
	if len(leaf.Subject.Organization) == 0 || leaf.Subject.Organization[0] != "Portunus Integration" {
		t.Errorf("served certificate subject = %v", leaf.Subject)
	}
}

func TestGatewayRequiresClientCertificate(t *testing.T) {
	dir := t.TempDir()
	ca := newTestCA(t)
	serverCert, serverKey := ca.issue(t, dir, "server", false)
	clientCert, clientKey := ca.issue(t, dir, "client", true)
	caFile := ca.caFile(t, dir)

	tlsCfg := &securityTLS.ServerConfig{
		Enabled:    true,
		CertFile:   serverCert,
		KeyFile:    serverKey,
		MinVersion: "1.3",
		MTLS: securityTLS.MTLSConfig{
			Enabled:        true,
			ClientCAFile:   caFile,
			ClientAuthType: "require",
		},
	}
	built, err := tlsCfg.Build()
	if err != nil {
		t.Fatalf("building mTLS config: %v", err)
	}

	gw := newSecureGateway(t, auth.Config{}, nil)

	ts := httptest.NewUnstartedServer(gw.handler)
	ts.TLS = built
	ts.StartTLS()
	defer ts.Close()

	pair, err := tls.LoadX509KeyPair(clientCert, clientKey)
	if err != nil {
		t.Fatalf("loading client pair: %v", err)
	}
	withCert := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				Certificates:       []tls.Certificate{pair},
				InsecureSkipVerify: true,
			},
		},
	}

	resp, err := withCert.Get(ts.URL + "/v1/health")
	if err != nil {
		t.Fatalf("request with client certificate failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	if _, err := insecureClient().Get(ts.URL + "/v1/health"); err == nil {
		t.Error("request without a client certificate was not rejected")
	}
}

func TestUpstreamCredentialResolvedFromSecretFile(t *testing.T) {
	secretsDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(secretsDir, "upstream-key"), []byte("sk-vault-7"), 0o600); err != nil {
		t.Fatalf("writing secret file: %v", err)
	}

	fileProvider, err := secrets.NewFileProvider(secretsDir, false)
	if err != nil {
		t.Fatalf("creating file provider: %v", err)
	}
	defer fileProvider.Close()

	manager := secrets.NewManager(
		[]secrets.SecretProvider{fileProvider},
		secrets.CacheConfig{Enabled: true, TTL: time.Minute, MaxSize: 10},
	)

	up := upstreamtest.New()
	defer up.Close()
	up.Respond("/chat/completions", upstreamtest.Response{
		Body: upstreamtest.ChatCompletion("gpt-4", "hello"),
	})

	gw := newSecureGateway(t, auth.Config{}, manager, config.ModelConfig{
		URL:      up.URL(),
		Provider: "openai",
		APIKey:   "${secret:upstream-key}",
	})
	gw.seedChatModel(t, up.URL())
	key := gw.seedKey(t, "ada")

	ts := httptest.NewServer(gw.handler)
	defer ts.Close()

	resp := chatRequest(t, ts.Client(), ts.URL, key)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	sent := up.RequestsTo("/chat/completions")
	if len(sent) != 1 {
		t.Fatalf("upstream calls = %d, want 1", len(sent))
	}
	if got := sent[0].Header.Get("Authorization"); got != "Bearer sk-vault-7" {
		t.Errorf("upstream Authorization = %q, want the resolved secret", got)
	}
}

func TestUpstreamCredentialResolvedFromEnv(t *testing.T) {
	t.Setenv("PORTUNUS_TEST_UPSTREAM_KEY", "sk-env-9")

	manager := secrets.NewManager(
		[]secrets.SecretProvider{secrets.NewEnvProvider("")},
		secrets.CacheConfig{},
	)

	up := upstreamtest.New()
	defer up.Close()
	up.Respond("/chat/completions", upstreamtest.Response{
		Body: upstreamtest.ChatCompletion("gpt-4", "hello"),
	})

	gw := newSecureGateway(t, auth.Config{}, manager, config.ModelConfig{
		URL:      up.URL(),
		Provider: "openai",
		APIKey:   "env:PORTUNUS_TEST_UPSTREAM_KEY",
	})
	gw.seedChatModel(t, up.URL())
	key := gw.seedKey(t, "ada")

	ts := httptest.NewServer(gw.handler)
	defer ts.Close()

	resp := chatRequest(t, ts.Client(), ts.URL, key)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	sent := up.RequestsTo("/chat/completions")
	if len(sent) != 1 {
		t.Fatalf("upstream calls = %d, want 1", len(sent))
	}
	if got := sent[0].Header.Get("Authorization"); got != "Bearer sk-env-9" {
		t.Errorf("upstream Authorization = %q", got)
	}
}

// TestSecretRotationAfterReload rotates an upstream credential and checks
// that a configuration reload makes the new value take effect while the
// old adapter's requests keep working until then.
func TestSecretRotationAfterReload(t *testing.T) {
	t.Setenv("PORTUNUS_ROTATING_KEY", "sk-v1")

	manager := secrets.NewManager(
		[]secrets.SecretProvider{secrets.NewEnvProvider("")},
		secrets.CacheConfig{},
	)

	up := upstreamtest.New()
	defer up.Close()
	up.Respond("/chat/completions", upstreamtest.Response{
		Body: upstreamtest.ChatCompletion("gpt-4", "hello"),
	})

	gw := newSecureGateway(t, auth.Config{}, manager, config.ModelConfig{
		URL:      up.URL(),
		Provider: "openai",
		APIKey:   "env:PORTUNUS_ROTATING_KEY",
	})
	gw.seedChatModel(t, up.URL())
	key := gw.seedKey(t, "ada")

	ts := httptest.NewServer(gw.handler)
	defer ts.Close()

	if resp := chatRequest(t, ts.Client(), ts.URL, key); resp.StatusCode != http.StatusOK {
		t.Fatalf("first request: status = %d", resp.StatusCode)
	}

	// Rotate the credential. The cached adapter still carries the old
	// value until a reload drops it.
	os.Setenv("PORTUNUS_ROTATING_KEY", "sk-v2")

	if resp := chatRequest(t, ts.Client(), ts.URL, key); resp.StatusCode != http.StatusOK {
		t.Fatalf("pre-reload request: status = %d", resp.StatusCode)
	}

	gw.adapters.Reload(gw.cfg)

	if resp := chatRequest(t, ts.Client(), ts.URL, key); resp.StatusCode != http.StatusOK {
		t.Fatalf("post-reload request: status = %d", resp.StatusCode)
	}

	sent := up.RequestsTo("/chat/completions")
	if len(sent) != 3 {
		t.Fatalf("upstream calls = %d, want 3", len(sent))
	}
	for i, want := range []string{"Bearer sk-v1", "Bearer sk-v1", "Bearer sk-v2"} {
		if got := sent[i].Header.Get("Authorization"); got != want {
			t.Errorf("call %d Authorization = %q, want %q", i, got, want)
		}
	}
}

func TestJWTAuthentication(t *testing.T) {
	const sharedSecret = "integration-shared-secret"

	gw := newSecureGateway(t, auth.Config{JWTSecret: sharedSecret}, nil)

	ts := httptest.NewServer(gw.handler)
	defer ts.Close()

	mint := func(t *testing.T, secret string, exp time.Time) string {
		t.Helper()
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"preferred_username": "grace",
			"groups":             []string{"research"},
			"iat":                time.Now().Unix(),
			"exp":                exp.Unix(),
		})
		signed, err := token.SignedString([]byte(secret))
		if err != nil {
			t.Fatalf("signing token: %v", err)
		}
		return signed
	}

	whoami := func(t *testing.T, credential string) *http.Response {
		t.Helper()
		req, err := http.NewRequest(http.MethodGet, ts.URL+"/v1/whoami", nil)
		if err != nil {
			t.Fatalf("building request: %v", err)
		}
		req.Header.Set("Authorization", credential)
		resp, err := ts.Client().Do(req)
		if err != nil {
			t.Fatalf("whoami request failed: %v", err)
		}
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	t.Run("valid token", func(t *testing.T) {
		resp := whoami(t, "Bearer "+mint(t, sharedSecret, time.Now().Add(time.Hour)))
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}

		var body types.WhoAmI
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
		if body.Username != "grace" {
			t.Errorf("username = %q, want grace", body.Username)
		}
		if body.AuthType != "jwt" {
			t.Errorf("auth_type = %q, want jwt", body.AuthType)
		}
		if len(body.Groups) != 1 || body.Groups[0] != "research" {
			t.Errorf("groups = %v, want [research]", body.Groups)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		resp := whoami(t, "Bearer "+mint(t, sharedSecret, time.Now().Add(-time.Hour)))
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", resp.StatusCode)
		}
	})

	t.Run("wrong signing key", func(t *testing.T) {
		resp := whoami(t, "Bearer "+mint(t, "some-other-secret", time.Now().Add(time.Hour)))
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", resp.StatusCode)
		}
	})

	t.Run("unsigned token", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
			"preferred_username": "grace",
			"exp":                time.Now().Add(time.Hour).Unix(),
		})
		signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		if err != nil {
			t.Fatalf("signing token: %v", err)
		}
		resp := whoami(t, "Bearer "+signed)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", resp.StatusCode)
		}
	})
}

// TestCertificateRotationServesNewCert swaps the certificate files under
// a running listener and checks that new handshakes pick up the
// replacement without a restart.
func TestCertificateRotationServesNewCert(t *testing.T) {
	dir := t.TempDir()
	ca := newTestCA(t)

	certFile, keyFile := ca.issue(t, dir, "server", false)

	reloader := securityTLS.NewCertificateReloader(certFile, keyFile, 50*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := reloader.Start(ctx); err != nil {
		t.Fatalf("starting reloader: %v", err)
	}

	gw := newSecureGateway(t, auth.Config{}, nil)

	ts := httptest.NewUnstartedServer(gw.handler)
	ts.TLS = &tls.Config{
		GetCertificate: reloader.GetCertificateFunc(),
		MinVersion:     tls.VersionTLS13,
	}
	ts.StartTLS()
	defer ts.Close()

	serialOf := func(t *testing.T) *big.Int {
		t.Helper()
		// A fresh transport forces a new handshake.
		resp, err := insecureClient().Get(ts.URL + "/v1/health")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		if resp.TLS == nil || len(resp.TLS.PeerCertificates) == 0 {
			t.Fatal("no peer certificate on response")
		}
		return resp.TLS.PeerCertificates[0].SerialNumber
	}

	before := serialOf(t)

	// Overwrite both files with a freshly issued pair.
	newCert, newKey := ca.issue(t, dir, "rotated", false)
	for src, dst := range map[string]string{newCert: certFile, newKey: keyFile} {
		data, err := os.ReadFile(src)
		if err != nil {
			t.Fatalf("reading rotated file: %v", err)
		}
		if err := os.WriteFile(dst, data, 0o600); err != nil {
			t.Fatalf("replacing %s: %v", dst, err)
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if serialOf(t).Cmp(before) != 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("rotated certificate never served")
		}
		time.Sleep(100 * time.Millisecond)
	}
}
