/*
Package secrets resolves credential material referenced from configuration:
upstream API keys, Azure client secrets, and the JWT shared secret.

# Providers

Two providers ship by default. EnvProvider maps secret names to prefixed
environment variables; FileProvider reads Kubernetes-style mounted secret
files with strict permission checks and optional fsnotify invalidation.
Providers are chained through a Manager with priority fallback and a TTL
cache:

	env := secrets.NewEnvProvider(secrets.DefaultEnvPrefix)
	files, _ := secrets.NewFileProvider("/etc/portunus/secrets", true)
	manager := secrets.NewManager(
		[]secrets.SecretProvider{files, env},
		secrets.CacheConfig{Enabled: true, TTL: 5 * time.Minute, MaxSize: 64},
	)

# Configuration references

Configuration values can reference secrets three ways:

	api_key: env:OPENAI_API_KEY
	api_key: file:/run/secrets/openai-key
	api_key: ${secret:openai-api-key}

Manager.ResolveValue handles all three; ResolveReferences interpolates
${secret:...} patterns inside larger documents.
*/
package secrets
