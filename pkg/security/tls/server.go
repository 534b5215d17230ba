package tls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"
)

// ServerConfig holds TLS settings for the inbound HTTP listener.
// It supports TLS 1.2 and 1.3, configurable cipher suites, and optional
// client certificate authentication.
type ServerConfig struct {
	// Enabled indicates whether the listener serves TLS.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// CertFile is the path to the PEM-encoded certificate file.
	CertFile string `yaml:"cert_file" json:"cert_file"`

	// KeyFile is the path to the PEM-encoded private key file.
	KeyFile string `yaml:"key_file" json:"key_file"`

	// MinVersion is the minimum TLS version to accept ("1.2" or "1.3").
	// Default: "1.3".
	MinVersion string `yaml:"min_version" json:"min_version"`

	// CipherSuites lists enabled TLS 1.2 cipher suites by name.
	// Empty means Go's secure defaults.
	CipherSuites []string `yaml:"cipher_suites" json:"cipher_suites"`

	// ReloadInterval is how often to check for certificate changes
	// ("5m", "1h"). Default: "5m".
	ReloadInterval string `yaml:"cert_reload_interval" json:"cert_reload_interval"`

	// MTLS configures client certificate authentication.
	MTLS MTLSConfig `yaml:"mtls" json:"mtls"`
}

// MTLSConfig configures mutual TLS on the listener.
type MTLSConfig struct {
	// Enabled indicates whether client certificates are requested.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// ClientCAFile is the PEM-encoded CA bundle used to verify client
	// certificates.
	ClientCAFile string `yaml:"client_ca_file" json:"client_ca_file"`

	// ClientAuthType selects how missing client certificates are handled:
	// "require" rejects, "request" asks but allows absence,
	// "verify_if_given" verifies only when presented. Default: "require".
	ClientAuthType string `yaml:"client_auth_type" json:"client_auth_type"`
}

// Build converts the configuration into a crypto/tls.Config. It returns
// (nil, nil) when TLS is disabled.
func (c *ServerConfig) Build() (*tls.Config, error) {
	if !c.Enabled {
		return nil, nil
	}

	if c.CertFile == "" {
		return nil, fmt.Errorf("cert_file is required when TLS is enabled")
	}
	if c.KeyFile == "" {
		return nil, fmt.Errorf("key_file is required when TLS is enabled")
	}

	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}
	if err := ValidateCertificate(&cert); err != nil {
		return nil, fmt.Errorf("certificate validation failed: %w", err)
	}

	// #nosec G402 - MinVersion is validated below; TLS 1.0/1.1 are never produced
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   c.minVersion(),
		CipherSuites: c.cipherSuites(),
	}

	if c.MTLS.Enabled {
		if err := c.configureMTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure mTLS: %w", err)
		}
	}

	return tlsConfig, nil
}

// minVersion maps the configured version string to a tls constant.
// TLS 1.0 and 1.1 are never returned.
func (c *ServerConfig) minVersion() uint16 {
	switch c.MinVersion {
	case "1.2":
		return tls.VersionTLS12
	default:
		return tls.VersionTLS13
	}
}

// cipherSuites resolves configured suite names, ignoring unknown entries.
// Empty input keeps Go's defaults.
func (c *ServerConfig) cipherSuites() []uint16 {
	if len(c.CipherSuites) == 0 {
		return nil
	}

	var suites []uint16
	for _, name := range c.CipherSuites {
		if id, ok := cipherSuiteMap[name]; ok {
			suites = append(suites, id)
		}
	}
	return suites
}

// ParseReloadInterval returns the certificate reload check interval,
// defaulting to five minutes when unset or invalid.
func (c *ServerConfig) ParseReloadInterval() time.Duration {
	if c.ReloadInterval == "" {
		return 5 * time.Minute
	}
	d, err := time.ParseDuration(c.ReloadInterval)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// cipherSuiteMap names the secure cipher suites this server will negotiate.
var cipherSuiteMap = map[string]uint16{
	"TLS_AES_128_GCM_SHA256":       tls.TLS_AES_128_GCM_SHA256,
	"TLS_AES_256_GCM_SHA384":       tls.TLS_AES_256_GCM_SHA384,
	"TLS_CHACHA20_POLY1305_SHA256": tls.TLS_CHACHA20_POLY1305_SHA256,

	"TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256":   tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	"TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384":   tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	"TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256": tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	"TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384": tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	"TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305":    tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
	"TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305":  tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
}

func (c *ServerConfig) configureMTLS(tlsConfig *tls.Config) error {
	if c.MTLS.ClientCAFile == "" {
		return fmt.Errorf("client_ca_file is required when mTLS is enabled")
	}

	caCert, err := os.ReadFile(c.MTLS.ClientCAFile)
	if err != nil {
		return fmt.Errorf("failed to read client CA: %w", err)
	}

	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(caCert) {
		return fmt.Errorf("failed to parse client CA certificate")
	}

	tlsConfig.ClientCAs = caPool
	tlsConfig.ClientAuth = c.clientAuthType()
	return nil
}

func (c *ServerConfig) clientAuthType() tls.ClientAuthType {
	switch c.MTLS.ClientAuthType {
	case "request":
		return tls.RequestClientCert
	case "verify_if_given":
		return tls.VerifyClientCertIfGiven
	default:
		return tls.RequireAndVerifyClientCert
	}
}
