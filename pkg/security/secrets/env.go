package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// DefaultEnvPrefix namespaces secret environment variables.
const DefaultEnvPrefix = "PORTUNUS_SECRET_"

// EnvProvider loads secrets from environment variables.
//
// Secret names map to uppercase variable names with hyphens replaced by
// underscores, under an optional prefix:
//
//	"openai-api-key" -> "PORTUNUS_SECRET_OPENAI_API_KEY"
type EnvProvider struct {
	// Prefix is prepended to every environment variable name.
	Prefix string
}

// NewEnvProvider creates an environment variable secret provider.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{Prefix: prefix}
}

// GetSecret reads the mapped environment variable. Empty values count as
// missing.
func (p *EnvProvider) GetSecret(ctx context.Context, name string) (string, error) {
	envVar := p.secretNameToEnvVar(name)
	value := os.Getenv(envVar)
	if value == "" {
		return "", fmt.Errorf("secret not found in environment: %s (env var: %s)", name, envVar)
	}
	return value, nil
}

// ListSecrets scans the environment for variables under the prefix and
// returns their names converted back to secret form.
func (p *EnvProvider) ListSecrets(ctx context.Context) ([]string, error) {
	var secrets []string
	for _, env := range os.Environ() {
		if p.Prefix != "" && !strings.HasPrefix(env, p.Prefix) {
			continue
		}
		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 {
			continue
		}
		secrets = append(secrets, p.envVarToSecretName(parts[0]))
	}
	return secrets, nil
}

// Provider returns the provider name.
func (p *EnvProvider) Provider() string {
	return "env"
}

// Supports always returns true. Any secret may be provided via the
// environment, which makes this provider a natural fallback.
func (p *EnvProvider) Supports(name string) bool {
	return true
}

func (p *EnvProvider) secretNameToEnvVar(name string) string {
	return p.Prefix + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

func (p *EnvProvider) envVarToSecretName(envVar string) string {
	name := strings.TrimPrefix(envVar, p.Prefix)
	return strings.ToLower(strings.ReplaceAll(name, "_", "-"))
}
