// Portunus is an authenticating, auditing reverse proxy for
// OpenAI-compatible LLM APIs.
//
// It fronts multiple upstream providers behind one endpoint, resolving
// API keys and JWTs to principals, gating models by group membership,
// recording token usage per user and model, and keeping an audit trail
// of every request.
//
// Usage:
//
//	# Start the proxy with the default configuration file
//	portunus run
//
//	# Start with a specific configuration file
//	portunus run --config /etc/portunus/config.yaml
//
//	# Check a configuration file without starting
//	portunus validate
//
//	# Bootstrap the first admin API key
//	portunus keys create --username admin --groups admin
//
//	# Inspect the audit trail offline
//	portunus audit list --since 24h
package main

func main() {
	Execute()
}
