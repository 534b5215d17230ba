package providerfactory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"fulcrum-hq/portunus/pkg/catalog"
	"fulcrum-hq/portunus/pkg/config"
	"fulcrum-hq/portunus/pkg/providers"
	"fulcrum-hq/portunus/pkg/retry"
)

// SecretResolver resolves secret references ("env:NAME", "file:/path")
// to their values. Plain values pass through unchanged. The secrets
// manager implements it.
type SecretResolver interface {
	ResolveValue(ctx context.Context, value string) (string, error)
}

// adapterKey identifies one cached adapter. Two catalog models on the
// same URL get distinct adapters: the technical name feeds the Azure
// deployment path and error attribution.
type adapterKey struct {
	url  string
	name string
}

// Manager builds and caches one adapter per catalog model, wiring in
// the endpoint credentials from configuration. It is the orchestrator's
// adapter source and the refresh endpoint's discoverer.
//
// Manager is safe for concurrent use. Reload swaps the configuration
// and drops the cache so new credentials take effect without restart.
type Manager struct {
	mu       sync.RWMutex
	cfg      *config.Config
	adapters map[adapterKey]providers.Provider

	secrets SecretResolver
	logger  *slog.Logger
}

// NewManager creates an adapter manager over the given configuration.
// secrets may be nil, in which case api_key values are used verbatim.
func NewManager(cfg *config.Config, secrets SecretResolver, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:      cfg,
		adapters: make(map[adapterKey]providers.Provider),
		secrets:  secrets,
		logger:   logger.With("component", "provider_factory"),
	}
}

// AdapterFor returns the adapter serving the model, building and caching
// it on first use. A model whose URL has no configuration entry, or
// whose entry lacks an API key, fails with a ConfigError; the client
// sees a 500 that names the model, never the credential.
func (m *Manager) AdapterFor(ctx context.Context, model *catalog.Model) (providers.Provider, error) {
	key := adapterKey{url: model.URL, name: model.TechnicalName}

	m.mu.RLock()
	adapter, ok := m.adapters[key]
	cfg := m.cfg
	m.mu.RUnlock()
	if ok {
		return adapter, nil
	}

	mc := cfg.ModelConfigFor(model.URL, model.TechnicalName)
	if mc == nil {
		return nil, &providers.ConfigError{
			Provider: model.TechnicalName,
			Field:    "url",
			Message:  fmt.Sprintf("no configured endpoint for %q", model.URL),
		}
	}

	pcfg, err := m.providerConfig(ctx, cfg, mc, model)
	if err != nil {
		return nil, err
	}

	built, err := Build(pcfg, model.Provider)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if existing, ok := m.adapters[key]; ok {
		// Another request built the same adapter first.
		m.mu.Unlock()
		_ = built.Close()
		return existing, nil
	}
	m.adapters[key] = built
	m.mu.Unlock()

	m.logger.Info("adapter created",
		"technical_name", model.TechnicalName,
		"provider", model.Provider,
		"url", model.URL,
	)
	return built, nil
}

// providerConfig assembles the adapter configuration for one model from
// its endpoint entry and the global HTTP client and retry settings.
func (m *Manager) providerConfig(ctx context.Context, cfg *config.Config, mc *config.ModelConfig, model *catalog.Model) (providers.Config, error) {
	apiKey, err := m.resolveSecret(ctx, mc.APIKey)
	if err != nil {
		return providers.Config{}, &providers.ConfigError{
			Provider: model.TechnicalName,
			Field:    "api_key",
			Message:  fmt.Sprintf("resolving credential reference: %v", err),
		}
	}

	apiVersion := model.APIVersion
	if apiVersion == "" {
		apiVersion = mc.APIVersion
	}

	pcfg := providers.Config{
		Name:           model.TechnicalName,
		BaseURL:        model.URL,
		APIKey:         apiKey,
		APIVersion:     apiVersion,
		Timeout:        cfg.HTTPClient.RequestTimeout,
		ConnectTimeout: cfg.HTTPClient.ConnectTimeout,
		ProxyURL:       cfg.HTTPClient.ProxyURL,
		TLS:            &cfg.HTTPClient.TLS,
		Retry:          retryProfile(cfg.Retry),
	}

	if mc.Azure != nil {
		secret, err := m.resolveSecret(ctx, mc.Azure.ClientSecret)
		if err != nil {
			return providers.Config{}, &providers.ConfigError{
				Provider: model.TechnicalName,
				Field:    "azure.client_secret",
				Message:  fmt.Sprintf("resolving credential reference: %v", err),
			}
		}
		pcfg.Azure = &providers.AzureCredentials{
			TenantID:       mc.Azure.TenantID,
			ClientID:       mc.Azure.ClientID,
			ClientSecret:   secret,
			SubscriptionID: mc.Azure.SubscriptionID,
			ResourceGroup:  mc.Azure.ResourceGroup,
			ResourceName:   mc.Azure.ResourceName,
		}
	}
	if mc.Unique != nil {
		pcfg.Unique = &providers.UniqueTenant{
			AppID:     mc.Unique.AppID,
			CompanyID: mc.Unique.CompanyID,
			UserID:    mc.Unique.UserID,
		}
	}
	return pcfg, nil
}

func (m *Manager) resolveSecret(ctx context.Context, value string) (string, error) {
	if m.secrets == nil || value == "" {
		return value, nil
	}
	return m.secrets.ResolveValue(ctx, value)
}

// retryProfile maps the file configuration onto the retry package,
// filling blanks from the LLM default profile.
func retryProfile(rc config.RetryConfig) retry.Config {
	profile := retry.DefaultLLM()
	if rc.MaxAttempts > 0 {
		profile.MaxAttempts = rc.MaxAttempts
	}
	if rc.BaseDelay > 0 {
		profile.BaseDelay = rc.BaseDelay
	}
	if rc.MaxDelay > 0 {
		profile.MaxDelay = rc.MaxDelay
	}
	if rc.Multiplier > 0 {
		profile.Multiplier = rc.Multiplier
	}
	if rc.Jitter != nil {
		profile.Jitter = *rc.Jitter
	}
	if rc.Strategy != "" {
		profile.Strategy = retry.Strategy(rc.Strategy)
	}
	return profile
}

// Discover lists the models every configured endpoint advertises,
// mapped into catalog discovery records. Azure endpoints list
// deployments; everything else lists models. An endpoint that fails to
// list is skipped with a warning so one down upstream does not block a
// refresh, but if every endpoint fails the last error is returned.
func (m *Manager) Discover(ctx context.Context) ([]catalog.DiscoveredModel, error) {
	m.mu.RLock()
	cfg := m.cfg
	m.mu.RUnlock()

	endpoints := cfg.EndpointConfigs()
	if len(endpoints) == 0 {
		return nil, &providers.ConfigError{
			Provider: "discovery",
			Field:    "model_configs",
			Message:  "no upstream endpoints configured",
		}
	}

	var (
		discovered []catalog.DiscoveredModel
		lastErr    error
		succeeded  int
	)
	for _, mc := range endpoints {
		models, err := m.discoverEndpoint(ctx, cfg, mc)
		if err != nil {
			lastErr = fmt.Errorf("listing models on %s: %w", mc.URL, err)
			m.logger.Warn("endpoint discovery failed", "url", mc.URL, "error", err)
			continue
		}
		succeeded++
		discovered = append(discovered, models...)
	}

	if succeeded == 0 && lastErr != nil {
		return nil, lastErr
	}
	return discovered, nil
}

func (m *Manager) discoverEndpoint(ctx context.Context, cfg *config.Config, mc *config.ModelConfig) ([]catalog.DiscoveredModel, error) {
	family := catalog.Provider(mc.Provider)

	// A throwaway adapter for the listing call. The per-model cache is
	// not used: listing is endpoint-scoped, not model-scoped.
	placeholder := &catalog.Model{
		URL:           mc.URL,
		TechnicalName: string(family) + "-discovery",
		Provider:      family,
		APIVersion:    mc.APIVersion,
	}
	pcfg, err := m.providerConfig(ctx, cfg, mc, placeholder)
	if err != nil {
		return nil, err
	}
	adapter, err := Build(pcfg, family)
	if err != nil {
		return nil, err
	}
	defer adapter.Close()

	if family == catalog.ProviderAzure {
		deployments, err := adapter.ListDeployments(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]catalog.DiscoveredModel, 0, len(deployments))
		for _, d := range deployments {
			out = append(out, catalog.DiscoveredModel{
				URL:          mc.URL,
				Provider:     family,
				RemoteID:     d.Name,
				APIVersion:   mc.APIVersion,
				Capabilities: mergeCapabilities(mc.Capabilities, d.Capabilities),
			})
		}
		return out, nil
	}

	models, err := adapter.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]catalog.DiscoveredModel, 0, len(models))
	for _, info := range models {
		out = append(out, catalog.DiscoveredModel{
			URL:          mc.URL,
			Provider:     family,
			RemoteID:     info.ID,
			Capabilities: mergeCapabilities(mc.Capabilities, info.Capabilities),
		})
	}
	return out, nil
}

// mergeCapabilities overlays upstream-reported capabilities on the
// operator-configured ones; the upstream wins on conflicts.
func mergeCapabilities(configured, reported map[string]any) map[string]any {
	if len(configured) == 0 && len(reported) == 0 {
		return nil
	}
	merged := make(map[string]any, len(configured)+len(reported))
	for k, v := range configured {
		merged[k] = v
	}
	for k, v := range reported {
		merged[k] = v
	}
	return merged
}

// Reload swaps in a new configuration and drops every cached adapter so
// changed credentials and endpoints take effect. In-flight requests
// finish on the old adapters; their connection pools are closed here,
// which lets active calls drain.
func (m *Manager) Reload(cfg *config.Config) {
	m.mu.Lock()
	old := m.adapters
	m.adapters = make(map[adapterKey]providers.Provider)
	m.cfg = cfg
	m.mu.Unlock()

	for key, adapter := range old {
		if err := adapter.Close(); err != nil {
			m.logger.Warn("closing adapter on reload", "technical_name", key.name, "error", err)
		}
	}
	m.logger.Info("provider configuration reloaded", "dropped_adapters", len(old))
}

// Close releases every cached adapter. The manager must not be used
// afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for key, adapter := range m.adapters {
		if err := adapter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing adapter %s: %w", key.name, err))
		}
	}
	m.adapters = make(map[adapterKey]providers.Provider)
	return errors.Join(errs...)
}

// Size reports the number of cached adapters.
func (m *Manager) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.adapters)
}
