package azure

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"fulcrum-hq/portunus/pkg/providers"
)

// managementAPIVersion is the Cognitive Services deployments API version.
const managementAPIVersion = "2024-10-01"

// tokenExpiryMargin is subtracted from the declared token lifetime so a
// token is never used right at its expiry edge.
const tokenExpiryMargin = 5 * time.Minute

// azureADTimeout bounds a token fetch; managementTimeout bounds a
// deployment listing call.
const (
	azureADTimeout    = 30 * time.Second
	managementTimeout = 60 * time.Second
)

// tokenCache holds one management token per adapter. Azure AD tokens live
// about an hour, so the cache saves a round trip per refresh cycle.
type tokenCache struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// get returns the cached token or fetches a fresh one through fetch.
func (tc *tokenCache) get(ctx context.Context, fetch func(context.Context) (string, time.Duration, error)) (string, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.token != "" && time.Now().Before(tc.expiresAt) {
		return tc.token, nil
	}

	token, lifetime, err := fetch(ctx)
	if err != nil {
		return "", err
	}

	tc.token = token
	tc.expiresAt = time.Now().Add(lifetime - tokenExpiryMargin)
	return token, nil
}

// ListDeployments lists the named deployments on the Cognitive Services
// account through the Azure Management API. Without management
// credentials, or when the management call fails, it falls back to the
// data-plane models endpoint and synthesizes one deployment per model.
func (a *Adapter) ListDeployments(ctx context.Context) ([]providers.DeploymentInfo, error) {
	creds := a.client.Config().Azure
	if !creds.Complete() {
		return a.deploymentsFromModels(ctx)
	}

	deployments, err := a.listManagedDeployments(ctx, creds)
	if err != nil {
		a.client.Logger().Warn("management API listing failed, falling back to models endpoint",
			"error", err,
		)
		return a.deploymentsFromModels(ctx)
	}
	return deployments, nil
}

// tokenResponse is the Azure AD v2.0 token endpoint response.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// deploymentList is the Management API deployments response.
type deploymentList struct {
	Value []struct {
		Name       string `json:"name"`
		Properties struct {
			Model struct {
				Name    string `json:"name"`
				Version string `json:"version"`
			} `json:"model"`
			ProvisioningState string         `json:"provisioningState"`
			Capabilities      map[string]any `json:"capabilities"`
		} `json:"properties"`
	} `json:"value"`
}

// listManagedDeployments performs the authenticated Management API call.
func (a *Adapter) listManagedDeployments(ctx context.Context, creds *providers.AzureCredentials) ([]providers.DeploymentInfo, error) {
	token, err := a.tokens.get(ctx, func(ctx context.Context) (string, time.Duration, error) {
		return a.fetchManagementToken(ctx, creds)
	})
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/subscriptions/%s/resourceGroups/%s/providers/Microsoft.CognitiveServices/accounts/%s/deployments?api-version=%s",
		a.managementBase,
		url.PathEscape(creds.SubscriptionID),
		url.PathEscape(creds.ResourceGroup),
		url.PathEscape(creds.ResourceName),
		managementAPIVersion)

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+token)

	var list deploymentList
	if err := a.client.DoJSON(ctx, http.MethodGet, u, headers, nil, &list, managementTimeout); err != nil {
		return nil, err
	}

	deployments := make([]providers.DeploymentInfo, 0, len(list.Value))
	for _, d := range list.Value {
		deployments = append(deployments, providers.DeploymentInfo{
			Name:         d.Name,
			Model:        d.Properties.Model.Name,
			Version:      d.Properties.Model.Version,
			Status:       d.Properties.ProvisioningState,
			Capabilities: d.Properties.Capabilities,
		})
	}
	return deployments, nil
}

// fetchManagementToken runs the client-credentials grant against Azure AD.
func (a *Adapter) fetchManagementToken(ctx context.Context, creds *providers.AzureCredentials) (string, time.Duration, error) {
	u := fmt.Sprintf("%s/%s/oauth2/v2.0/token", a.loginBase, url.PathEscape(creds.TenantID))

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", creds.ClientID)
	form.Set("client_secret", creds.ClientSecret)
	form.Set("scope", a.managementBase+"/.default")

	var resp tokenResponse
	if err := a.client.DoForm(ctx, u, form, &resp, azureADTimeout); err != nil {
		return "", 0, fmt.Errorf("azure ad token request failed: %w", err)
	}
	if resp.AccessToken == "" {
		return "", 0, fmt.Errorf("azure ad token response carried no access_token")
	}
	return resp.AccessToken, time.Duration(resp.ExpiresIn) * time.Second, nil
}

// deploymentsFromModels synthesizes deployments from the data-plane models
// listing, the fallback when management access is unavailable.
func (a *Adapter) deploymentsFromModels(ctx context.Context) ([]providers.DeploymentInfo, error) {
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
