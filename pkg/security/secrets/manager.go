package secrets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// secretRefRegex matches ${secret:name} patterns in configuration text.
var secretRefRegex = regexp.MustCompile(`\$\{secret:([^}]+)\}`)

// Manager chains secret providers with priority-based fallback and a
// shared cache.
type Manager struct {
	providers []SecretProvider
	cache     *Cache
}

// NewManager creates a manager. Providers are tried in order; the first
// one that supports a name and returns a value wins.
func NewManager(providers []SecretProvider, cacheConfig CacheConfig) *Manager {
	return &Manager{
		providers: providers,
		cache:     NewCache(cacheConfig),
	}
}

// GetSecret resolves a secret through the cache and provider chain.
func (m *Manager) GetSecret(ctx context.Context, name string) (string, error) {
	if value, ok := m.cache.Get(name); ok {
		return value, nil
	}

	var lastErr error
	for _, provider := range m.providers {
		if !provider.Supports(name) {
			continue
		}

		value, err := provider.GetSecret(ctx, name)
		if err != nil {
			lastErr = err
			slog.Debug("secret provider miss",
				"provider", provider.Provider(),
				"name", redactSecretName(name),
				"error", err,
			)
			continue
		}

		m.cache.Set(name, value)
		return value, nil
	}

	if lastErr != nil {
		return "", fmt.Errorf("failed to get secret %q: %w", name, lastErr)
	}
	return "", fmt.Errorf("secret not found: %q (no provider supports this secret)", name)
}

// ResolveValue resolves a single configuration value that may be a secret
// reference. Three forms are understood:
//
//	env:NAME        read the NAME environment variable
//	file:/path      read the file at /path (trimmed)
//	${secret:name}  resolve name through the provider chain
//
// Values in none of these forms are returned untouched.
func (m *Manager) ResolveValue(ctx context.Context, value string) (string, error) {
	switch {
	case strings.HasPrefix(value, "env:"):
		name := strings.TrimPrefix(value, "env:")
		v := os.Getenv(name)
		if v == "" {
			return "", fmt.Errorf("environment variable %s is not set", name)
		}
		return v, nil

	case strings.HasPrefix(value, "file:"):
		path := strings.TrimPrefix(value, "file:")
		// #nosec G304 - operator-supplied config path
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read secret file %s: %w", path, err)
		}
		return strings.TrimSpace(string(data)), nil

	case secretRefRegex.MatchString(value):
		return m.ResolveReferences(ctx, value)

	default:
		return value, nil
	}
}

// ResolveReferences replaces every ${secret:name} pattern in input with
// the resolved value. Unresolvable references are left in place and
// reported in the returned error.
func (m *Manager) ResolveReferences(ctx context.Context, input string) (string, error) {
	var failures []string

	output := secretRefRegex.ReplaceAllStringFunc(input, func(match string) string {
		matches := secretRefRegex.FindStringSubmatch(match)
		if len(matches) < 2 {
			failures = append(failures, fmt.Sprintf("invalid secret reference: %s", match))
			return match
		}

		name := matches[1]
		value, err := m.GetSecret(ctx, name)
		if err != nil {
			failures = append(failures, fmt.Sprintf("failed to resolve secret %q: %v", name, err))
			return match
		}
		return value
	})

	if len(failures) > 0 {
		return output, fmt.Errorf("failed to resolve secret references: %s", strings.Join(failures, "; "))
	}
	return output, nil
}

// Refresh reloads all refreshable providers and clears the cache. Called
// when rotated credentials must take effect.
func (m *Manager) Refresh(ctx context.Context) error {
	var failures []string
	for _, provider := range m.providers {
		refreshable, ok := provider.(RefreshableProvider)
		if !ok {
			continue
		}
		if err := refreshable.Refresh(ctx); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", provider.Provider(), err))
			slog.Error("failed to refresh secret provider",
				"provider", provider.Provider(),
				"error", err,
			)
		}
	}

	m.cache.Clear()

	if len(failures) > 0 {
		return fmt.Errorf("failed to refresh some providers: %s", strings.Join(failures, "; "))
	}
	return nil
}

// ListSecrets returns the union of secret names across providers. Values
// are never included.
func (m *Manager) ListSecrets(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	for _, provider := range m.providers {
		names, err := provider.ListSecrets(ctx)
		if err != nil {
			slog.Warn("failed to list secrets from provider",
				"provider", provider.Provider(),
				"error", err,
			)
			continue
		}
		for _, name := range names {
			seen[name] = true
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	return names, nil
}

// redactSecretName keeps log lines useful without leaking full names.
func redactSecretName(name string) string {
	if len(name) <= 4 {
		return "***"
	}
	return name[:2] + "..." + name[len(name)-2:]
}
