/*
Package security groups transport security (TLS/mTLS), secret resolution,
and credential authentication for the gateway.

# TLS Configuration

Configure TLS for the inbound listener:

	cfg := &tls.ServerConfig{
		Enabled:    true,
		CertFile:   "/etc/portunus/certs/server.crt",
		KeyFile:    "/etc/portunus/certs/server.key",
		MinVersion: "1.3",
	}

	tlsConfig, err := cfg.Build()
	if err != nil {
		log.Fatal(err)
	}

# Secret Resolution

Resolve secret references from configuration values:

	manager := secrets.NewManager([]secrets.SecretProvider{
		secrets.NewEnvProvider("PORTUNUS_SECRET_"),
	}, secrets.CacheConfig{TTL: 5 * time.Minute})

	apiKey, err := manager.ResolveValue(ctx, "env:OPENAI_API_KEY")
	if err != nil {
		log.Fatal(err)
	}

# Authentication

Resolve API keys and JWTs in HTTP middleware:

	resolver := auth.NewResolver(authCfg, identityService, keycloakKeys, logger)
	middleware := auth.NewMiddleware(resolver, logger)

	http.Handle("/v1/", middleware.Handle(handler))
*/
package security
