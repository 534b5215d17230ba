package tls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// VerifyMode selects how upstream server certificates are verified.
type VerifyMode string

const (
	// VerifyDefault verifies against the system trust store.
	VerifyDefault VerifyMode = "verify"

	// VerifyDisable skips certificate verification entirely. Only for
	// test environments and self-signed upstreams.
	VerifyDisable VerifyMode = "disable"

	// VerifyCustomCA verifies against a PEM bundle given in CAFile.
	VerifyCustomCA VerifyMode = "custom_ca"

	// VerifyPreloaded reuses the *tls.Config supplied in Preloaded.
	VerifyPreloaded VerifyMode = "preloaded"
)

// ClientConfig holds TLS settings for outbound upstream connections.
type ClientConfig struct {
	// Mode selects the verification behavior. Default: VerifyDefault.
	Mode VerifyMode `yaml:"mode" json:"mode"`

	// CAFile is the PEM bundle trusted when Mode is VerifyCustomCA.
	CAFile string `yaml:"ca_file" json:"ca_file"`

	// ClientCertFile and ClientKeyFile enable mTLS toward the upstream.
	ClientCertFile string `yaml:"client_cert" json:"client_cert"`
	ClientKeyFile  string `yaml:"client_key" json:"client_key"`

	// ServerName overrides SNI and hostname verification.
	ServerName string `yaml:"server_name" json:"server_name"`

	// Preloaded is used verbatim when Mode is VerifyPreloaded.
	Preloaded *tls.Config `yaml:"-" json:"-"`
}

// Build produces a *tls.Config for outbound connections. It returns
// (nil, nil) for the default mode with no client certificate, letting the
// transport use its zero-value behavior.
func (c *ClientConfig) Build() (*tls.Config, error) {
	if c == nil {
		return nil, nil
	}

	if c.Mode == VerifyPreloaded {
		if c.Preloaded == nil {
			return nil, fmt.Errorf("preloaded TLS mode requires a prebuilt config")
		}
		return c.Preloaded, nil
	}

	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: c.ServerName,
	}

	switch c.Mode {
	case VerifyDisable:
		// #nosec G402 - explicit opt-out, surfaced in config as mode=disable
		cfg.InsecureSkipVerify = true

	case VerifyCustomCA:
		if c.CAFile == "" {
			return nil, fmt.Errorf("ca_file is required for custom CA verification")
		}
		pem, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("failed to parse CA bundle %s", c.CAFile)
		}
		cfg.RootCAs = pool

	case VerifyDefault, "":
		// System trust store.

	default:
		return nil, fmt.Errorf("unknown TLS verification mode %q", c.Mode)
	}

	if c.ClientCertFile != "" || c.ClientKeyFile != "" {
		if c.ClientCertFile == "" || c.ClientKeyFile == "" {
			return nil, fmt.Errorf("client certificate and key must both be set")
		}
		cert, err := tls.LoadX509KeyPair(c.ClientCertFile, c.ClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	if (c.Mode == VerifyDefault || c.Mode == "") && c.ServerName == "" && len(cfg.Certificates) == 0 {
		return nil, nil
	}

	return cfg, nil
}
