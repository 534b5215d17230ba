// Package secrets loads credential material (provider API keys, client
// secrets, JWT signing secrets) from pluggable sources.
package secrets

import "context"

// SecretProvider retrieves secrets from a backend.
//
// Implementations include environment variables and mounted secret files.
// Providers can be chained with priority-based fallback.
type SecretProvider interface {
	// GetSecret retrieves a secret by name.
	// Returns an error if the secret is not found or cannot be retrieved.
	GetSecret(ctx context.Context, name string) (string, error)

	// ListSecrets returns all secret names available from this provider.
	// Values are never included.
	ListSecrets(ctx context.Context) ([]string, error)

	// Provider returns the provider name (env, file).
	Provider() string

	// Supports indicates if this provider can resolve the given name,
	// used to pick a provider when several are configured.
	Supports(name string) bool
}

// RefreshableProvider can reload secrets without restart. Implemented by
// providers backed by rotatable material, such as mounted secret files.
type RefreshableProvider interface {
	SecretProvider

	// Refresh reloads all secrets from the backend.
	Refresh(ctx context.Context) error
}
