package azure

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"fulcrum-hq/portunus/pkg/providers"
	"fulcrum-hq/portunus/pkg/retry"
)

func managedAdapter(t *testing.T, dataPlane, login, management string) *Adapter {
	t.Helper()

	adapter, err := New(providers.Config{
		Name:       "azure_gpt-4",
		BaseURL:    dataPlane,
		APIKey:     "azure-key",
		APIVersion: "2024-06-01",
		Retry:      retry.Config{MaxAttempts: 1, BaseDelay: time.Millisecond},
		Azure: &providers.AzureCredentials{
			TenantID:       "tenant-1",
			ClientID:       "client-1",
			ClientSecret:   "secret-1",
			SubscriptionID: "sub-1",
			ResourceGroup:  "rg-1",
			ResourceName:   "acct-1",
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	adapter.loginBase = login
	adapter.managementBase = management
	t.Cleanup(func() { adapter.Close() })
	return adapter
}

func deploymentsJSON() string {
	return `{"value": [
		{"name": "gpt-4", "properties": {"model": {"name": "gpt-4", "version": "0613"}, "provisioningState": "Succeeded"}},
		{"name": "gpt-4o-mini", "properties": {"model": {"name": "gpt-4o-mini", "version": "2024-07-18"}, "provisioningState": "Succeeded"}}
	]}`
}

func TestListDeploymentsViaManagementAPI(t *testing.T) {
	var tokenCalls, listCalls atomic.Int32
	var gotScope, gotGrant string

	login := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		r.ParseForm()
		gotGrant = r.PostForm.Get("grant_type")
		gotScope = r.PostForm.Get("scope")
		if r.URL.Path != "/tenant-1/oauth2/v2.0/token" {
			t.Errorf("token path = %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"access_token": "mgmt-token", "expires_in": 3600}`)
	}))
	defer login.Close()

	management := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		listCalls.Add(1)
		wantPath := "/subscriptions/sub-1/resourceGroups/rg-1/providers/Microsoft.CognitiveServices/accounts/acct-1/deployments"
		if r.URL.Path != wantPath {
			t.Errorf("path = %q, want %q", r.URL.Path, wantPath)
		}
		if got := r.URL.Query().Get("api-version"); got != managementAPIVersion {
			t.Errorf("api-version = %q, want %q", got, managementAPIVersion)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer mgmt-token" {
			t.Errorf("Authorization = %q", got)
		}
		fmt.Fprint(w, deploymentsJSON())
	}))
	defer management.Close()

	adapter := managedAdapter(t, "http://unused.invalid", login.URL, management.URL)

	deployments, err := adapter.ListDeployments(context.Background())
	if err != nil {
		t.Fatalf("ListDeployments: %v", err)
	}

	if gotGrant != "client_credentials" {
		t.Errorf("grant_type = %q", gotGrant)
	}
	if gotScope != management.URL+"/.default" {
		t.Errorf("scope = %q", gotScope)
	}
	if len(deployments) != 2 {
		t.Fatalf("deployments = %d, want 2", len(deployments))
	}
	if deployments[0].Name != "gpt-4" || deployments[0].Version != "0613" || deployments[0].Status != "Succeeded" {
		t.Errorf("unexpected deployment: %+v", deployments[0])
	}

	// Second listing reuses the cached token.
	if _, err := adapter.ListDeployments(context.Background()); err != nil {
		t.Fatalf("second ListDeployments: %v", err)
	}
	if got := tokenCalls.Load(); got != 1 {
		t.Errorf("token fetches = %d, want 1 (cached)", got)
	}
	if got := listCalls.Load(); got != 2 {
		t.Errorf("list calls = %d, want 2", got)
	}
}

func TestTokenCacheRespectsExpiryMargin(t *testing.T) {
	tc := &tokenCache{}
	calls := 0
	fetch := func(ctx context.Context) (string, time.Duration, error) {
		calls++
		return fmt.Sprintf("token-%d", calls), 6 * time.Minute, nil
	}

	first, err := tc.get(context.Background(), fetch)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	// Lifetime 6m minus the 5m margin leaves 1m of cache validity.
	second, _ := tc.get(context.Background(), fetch)
	if first != second || calls != 1 {
		t.Errorf("expected cached token, got %q then %q (%d fetches)", first, second, calls)
	}

	// Force the margin past: a token whose remaining life is inside the
	// margin is refreshed.
	tc.expiresAt = time.Now().Add(-time.Second)
	third, _ := tc.get(context.Background(), fetch)
	if third == first || calls != 2 {
		t.Errorf("expected refreshed token, got %q (%d fetches)", third, calls)
	}
}

func TestListDeploymentsFallsBackWithoutCredentials(t *testing.T) {
	dataPlane := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/openai/models" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"data": [{"id": "gpt-4"}]}`)
	}))
	defer dataPlane.Close()

	adapter := testAdapter(t, "azure_gpt-4", dataPlane.URL)

	deployments, err := adapter.ListDeployments(context.Background())
	if err != nil {
		t.Fatalf("ListDeployments: %v", err)
	}
	if len(deployments) != 1 || deployments[0].Name != "gpt-4" {
		t.Errorf("unexpected fallback deployments: %+v", deployments)
	}
}

func TestListDeploymentsFallsBackOnManagementFailure(t *testing.T) {
	login := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error": "invalid_client"}`)
	}))
	defer login.Close()

	dataPlane := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/openai/models" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"data": [{"id": "gpt-4o"}, {"id": "gpt-4"}]}`)
	}))
	defer dataPlane.Close()

	adapter := managedAdapter(t, dataPlane.URL, login.URL, "http://management.invalid")

	deployments, err := adapter.ListDeployments(context.Background())
	if err != nil {
		t.Fatalf("ListDeployments should recover via fallback: %v", err)
	}
	if len(deployments) != 2 {
		t.Errorf("deployments = %d, want 2 from fallback", len(deployments))
	}
}
