package server

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	"fulcrum-hq/portunus/pkg/config"
)

// serverTLSConfig builds the listener's TLS configuration: minimum
// version per config, certificates served through a reloading getter,
// and client certificate verification when a CA bundle is configured.
func serverTLSConfig(cfg config.TLSConfig) (*tls.Config, error) {
	reloader, err := newCertReloader(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, err
	}

	tlsConfig := &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: reloader.get,
	}
	if cfg.MinVersion == "1.3" {
		tlsConfig.MinVersion = tls.VersionTLS13
	}

	if cfg.ClientCAFile != "" {
		pem, err := os.ReadFile(cfg.ClientCAFile)
		if err != nil {
			return nil, fmt.Errorf("reading client CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("client CA bundle %s contains no certificates", cfg.ClientCAFile)
		}
		tlsConfig.ClientCAs = pool
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
	}

	return tlsConfig, nil
}

// certReloader serves the keypair from disk and picks up rotated
// certificates without a restart. Staleness is checked at most once
// per interval so handshakes stay off the filesystem.
type certReloader struct {
	certFile string
	keyFile  string
	interval time.Duration

	mu        sync.RWMutex
	cert      *tls.Certificate
	loadedAt  time.Time
	checkedAt time.Time
}

func newCertReloader(certFile, keyFile string) (*certReloader, error) {
	r := &certReloader{
		certFile: certFile,
		keyFile:  keyFile,
		interval: 30 * time.Second,
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *certReloader) load() error {
	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return fmt.Errorf("loading keypair: %w", err)
	}

	r.mu.Lock()
	r.cert = &cert
	r.loadedAt = time.Now()
	r.checkedAt = time.Now()
	r.mu.Unlock()
	return nil
}

func (r *certReloader) get(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	r.mu.RLock()
	cert := r.cert
	due := time.Since(r.checkedAt) >= r.interval
	loadedAt := r.loadedAt
	r.mu.RUnlock()

	if !due {
		return cert, nil
	}

	r.mu.Lock()
	r.checkedAt = time.Now()
	r.mu.Unlock()

	info, err := os.Stat(r.certFile)
	if err != nil || !info.ModTime().After(loadedAt) {
		// Missing or unchanged file keeps the cert already in memory.
		return cert, nil
	}

	if err := r.load(); err != nil {
		// A half-written rotation must not break handshakes; the old
		// keypair stays live until the new one parses.
		return cert, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cert, nil
}
