/*
Package tls builds TLS material for both sides of the proxy: the inbound
listener (server certificates, optional mTLS, hot reload) and outbound
upstream connections (verification modes, custom CA bundles, client
certificates).

# Server TLS

Enable TLS 1.3 for the HTTP server:

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

# Outbound verification modes

Upstream connections support four verification modes:

	cfg := &tls.ClientConfig{
		Mode:   tls.VerifyCustomCA,
		CAFile: "/etc/portunus/certs/upstream-ca.pem",
	}

	tlsConfig, err := cfg.Build()

VerifyDefault uses the system trust store, VerifyDisable skips verification
entirely (test environments only), VerifyCustomCA trusts a PEM bundle, and
VerifyPreloaded reuses a *tls.Config supplied by the caller.

# Certificate auto-reload

Reload server certificates without restart:

	reloader := NewCertificateReloader(certFile, keyFile, 5*time.Minute)
	if err := reloader.Start(ctx); err != nil {
		log.Fatal(err)
	}

	tlsConfig.GetCertificate = reloader.GetCertificateFunc()
*/
package tls
