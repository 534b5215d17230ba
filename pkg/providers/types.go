package providers

import (
	"time"

	"fulcrum-hq/portunus/pkg/retry"
	securityTLS "fulcrum-hq/portunus/pkg/security/tls"
)

// Config parameterizes one adapter instance. An adapter serves exactly one
// catalog model; the factory builds one Config per (url, technical name)
// pair from the model_configs section.
type Config struct {
	// Name is the catalog technical name the adapter serves. For Azure
	// it doubles as the deployment name in the request path.
	Name string

	// BaseURL is the upstream base, e.g. "https://api.openai.com/v1" or
	// "https://myresource.openai.azure.com".
	BaseURL string

	// APIKey authenticates against the upstream. OpenAI-shaped upstreams
	// send it as a Bearer token, Azure as the api-key header.
	APIKey string

	// APIVersion is the Azure api-version query parameter. Required for
	// Azure adapters, ignored elsewhere.
	APIVersion string

	// Timeout bounds a single inference call. Default: 120s.
	Timeout time.Duration

	// ListTimeout bounds model and deployment listing calls.
	// Default: 30s.
	ListTimeout time.Duration

	// ConnectTimeout bounds TCP connection establishment. Default: 10s.
	ConnectTimeout time.Duration

	// ProxyURL overrides environment proxy detection when set.
	ProxyURL string

	// TLS customizes upstream certificate verification. Nil means system
	// defaults.
	TLS *securityTLS.ClientConfig

	// MaxIdleConns, MaxIdleConnsPerHost, and IdleConnTimeout tune the
	// adapter's connection pool. Zero values take the pool defaults.
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration

	// Retry is the retry profile for inference calls. The zero value
	// takes the LLM default (4 attempts, 2s base, 120s cap).
	Retry retry.Config

	// Azure carries Management API credentials for deployment listing.
	// Optional; without it ListDeployments falls back to the data-plane
	// models endpoint.
	Azure *AzureCredentials

	// Unique carries the tenant identifiers the Unique upstream requires
	// as headers on every call.
	Unique *UniqueTenant
}

// WithDefaults returns a copy of the config with zero fields filled in.
func (c Config) WithDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 120 * time.Second
	}
	if c.ListTimeout <= 0 {
		c.ListTimeout = 30 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry = retry.DefaultLLM()
	}
	return c
}

// AzureCredentials is the client-credentials grant and the Cognitive
// Services account coordinates used to list deployments through the Azure
// Management API.
type AzureCredentials struct {
	TenantID     string
	ClientID     string
	ClientSecret string

	SubscriptionID string
	ResourceGroup  string
	ResourceName   string
}

// Complete reports whether every field needed for a Management API call is
// present.
func (a *AzureCredentials) Complete() bool {
	if a == nil {
		return false
	}
	return a.TenantID != "" && a.ClientID != "" && a.ClientSecret != "" &&
		a.SubscriptionID != "" && a.ResourceGroup != "" && a.ResourceName != ""
}

// UniqueTenant identifies the calling tenant to the Unique upstream. The
// values are sent as x-app-id, x-company-id, and x-user-id headers.
type UniqueTenant struct {
	AppID     string
	CompanyID string
	UserID    string
}

// ModelInfo describes one model advertised by an upstream listing
// endpoint. ID is the remote identifier before the catalog prefixes it
// into a technical name.
type ModelInfo struct {
	// ID is the upstream model identifier, e.g. "gpt-4".
	ID string `json:"id"`

	// OwnedBy is the owning organization as reported by the upstream.
	OwnedBy string `json:"owned_by,omitempty"`

	// Created is the Unix timestamp the upstream reports for the model.
	Created int64 `json:"created,omitempty"`

	// Capabilities carries upstream capability hints when available.
	Capabilities map[string]any `json:"capabilities,omitempty"`
}

// DeploymentInfo describes a named deployment on an upstream account.
// Azure deployments map a deployment name to a base model and version;
// other providers synthesize one deployment per model.
type DeploymentInfo struct {
	// Name is the deployment name used as the URL path segment on
	// inference calls.
	Name string `json:"name"`

	// Model is the base model the deployment serves, e.g. "gpt-4o".
	Model string `json:"model"`

	// Version is the model version pinned by the deployment, if any.
	Version string `json:"version,omitempty"`

	// Status is the upstream provisioning state, e.g. "Succeeded".
	Status string `json:"status,omitempty"`

	// Capabilities carries upstream capability flags when available.
	Capabilities map[string]any `json:"capabilities,omitempty"`
}

// Message role constants used when adapters synthesize messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Finish reason constants in the canonical response shape.
const (
	FinishReasonStop          = "stop"
	FinishReasonLength        = "length"
	FinishReasonToolCalls     = "tool_calls"
	FinishReasonContentFilter = "content_filter"
)
