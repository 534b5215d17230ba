package catalog

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a catalog model. Only approved models
// are served by the proxy; every other state exists for governance
// workflows around onboarding and retirement.
type Status string

const (
	StatusNew        Status = "NEW"
	StatusPending    Status = "PENDING"
	StatusApproved   Status = "APPROVED"
	StatusDisabled   Status = "DISABLED"
	StatusRejected   Status = "REJECTED"
	StatusDeprecated Status = "DEPRECATED"
	StatusRetired    Status = "RETIRED"
)

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusPending, StatusApproved, StatusDisabled,
		StatusRejected, StatusDeprecated, StatusRetired:
		return true
	}
	return false
}

// Servable reports whether a model in this state may receive traffic.
func (s Status) Servable() bool {
	return s == StatusApproved
}

// Provider identifies the upstream family that hosts a model.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAzure     Provider = "azure"
	ProviderUnique    Provider = "unique"
	ProviderAnthropic Provider = "anthropic"
	ProviderMistral   Provider = "mistral"
	ProviderCohere    Provider = "cohere"
)

// Valid reports whether p is a known provider family.
func (p Provider) Valid() bool {
	switch p {
	case ProviderOpenAI, ProviderAzure, ProviderUnique,
		ProviderAnthropic, ProviderMistral, ProviderCohere:
		return true
	}
	return false
}

// ModelTypeLLM is the discriminator value for language models. The models
// table carries the discriminator so future model kinds (embeddings,
// rerankers) can share it.
const ModelTypeLLM = "llm"

// AdminGroup is the group name that grants access to every approved model
// and to the administrative API.
const AdminGroup = "admin"

// Model is a catalog entry for an upstream model. TechnicalName is the
// unique identifier clients use in requests; DisplayName is the
// human-facing label shown in listings.
type Model struct {
	ID            int64          `json:"id"`
	ModelType     string         `json:"model_type"`
	URL           string         `json:"url"`
	DisplayName   string         `json:"display_name"`
	TechnicalName string         `json:"technical_name"`
	Provider      Provider       `json:"provider"`
	Status        Status         `json:"status"`
	APIVersion    string         `json:"api_version,omitempty"`
	Capabilities  map[string]any `json:"capabilities,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Validate checks the invariants every persisted model must satisfy.
func (m *Model) Validate() error {
	if m.URL == "" {
		return &ValidationError{Field: "url", Message: "url is required"}
	}
	if m.DisplayName == "" {
		return &ValidationError{Field: "display_name", Message: "display_name is required"}
	}
	if m.TechnicalName == "" {
		return &ValidationError{Field: "technical_name", Message: "technical_name is required"}
	}
	if !m.Provider.Valid() {
		return &ValidationError{Field: "provider", Message: fmt.Sprintf("unknown provider %q", m.Provider)}
	}
	if m.Status != "" && !m.Status.Valid() {
		return &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", m.Status)}
	}
	if m.Provider == ProviderAzure && m.APIVersion == "" {
		return &ValidationError{Field: "api_version", Message: "api_version is required for azure models"}
	}
	if m.Provider != ProviderAzure && m.APIVersion != "" {
		return &ValidationError{Field: "api_version", Message: fmt.Sprintf("api_version is not allowed for %s models", m.Provider)}
	}
	return nil
}

// Group is a named set of users granted access to a set of models.
type Group struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate checks group invariants.
func (g *Group) Validate() error {
	if g.Name == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	return nil
}

// DiscoveredModel is an upstream model found during catalog refresh,
// before it is merged into the catalog.
type DiscoveredModel struct {
	URL          string
	Provider     Provider
	RemoteID     string
	APIVersion   string
	Capabilities map[string]any
}

// TechnicalName derives the catalog identity of a discovered model. The
// provider prefix keeps identically named models on different upstreams
// distinct.
func (d DiscoveredModel) TechnicalName() string {
	return string(d.Provider) + "_" + d.RemoteID
}

// SyncResult summarizes one catalog refresh.
type SyncResult struct {
	Created []string `json:"created"`
	Updated []string `json:"updated"`
}
