package auth

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"fulcrum-hq/portunus/pkg/retry"
)

// KeycloakConfig locates the realm whose public key verifies incoming
// RS256 tokens and sizes the key cache.
type KeycloakConfig struct {
	// URL is the Keycloak base URL, e.g. "https://sso.example.com".
	URL string

	// Realm is the realm name.
	Realm string

	// CacheTTL is how long a fetched key stays fresh. Zero means 1 hour.
	CacheTTL time.Duration

	// CacheSize caps the key cache. Zero means 16 entries.
	CacheSize int
}

// KeycloakKeys fetches and caches a realm's RSA public key from the
// realm document at {url}/realms/{realm}. Fetches are retried on
// transient failures and collapsed through a singleflight group so a
// cache miss under load produces one upstream request. When a refresh
// fails outright, a previously fetched key is reused even if its TTL
// has lapsed; verification against a stale key beats rejecting every
// caller while Keycloak is down.
type KeycloakKeys struct {
	realmURL string
	client   *http.Client
	cache    *Cache[*rsa.PublicKey]
	flight   singleflight.Group
	retry    retry.Config
	logger   *slog.Logger
}

// NewKeycloakKeys creates a key fetcher for the configured realm.
func NewKeycloakKeys(cfg KeycloakConfig, client *http.Client, logger *slog.Logger) *KeycloakKeys {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = 16
	}

	return &KeycloakKeys{
		realmURL: strings.TrimRight(cfg.URL, "/") + "/realms/" + cfg.Realm,
		client:   client,
		cache:    NewCache[*rsa.PublicKey](ttl, size),
		retry:    retry.DefaultKeycloak(),
		logger:   logger.With("component", "keycloak_keys"),
	}
}

// RealmURL returns the realm document URL the fetcher reads from.
func (k *KeycloakKeys) RealmURL() string {
	return k.realmURL
}

// PublicKey returns the realm's RSA public key, from cache when fresh.
func (k *KeycloakKeys) PublicKey(ctx context.Context) (*rsa.PublicKey, error) {
	v, err, _ := k.flight.Do(k.realmURL, func() (any, error) {
		// Check inside the flight group so concurrent misses resolved by
		// another caller's fetch do not hit Keycloak again.
		if key, ok := k.cache.Get(k.realmURL); ok {
			return key, nil
		}

		key, err := k.fetch(ctx)
		if err != nil {
			if stale, ok := k.cache.GetStale(k.realmURL); ok {
				k.logger.Warn("realm key fetch failed, using stale cached key",
					"realm_url", k.realmURL,
					"error", err,
				)
				return stale, nil
			}
			return nil, err
		}

		k.cache.Set(k.realmURL, key)
		return key, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*rsa.PublicKey), nil
}

// Invalidate drops the cached key, forcing a fetch on the next use.
func (k *KeycloakKeys) Invalidate() {
	k.cache.Delete(k.realmURL)
}

// realmDocument is the subset of the Keycloak realm representation the
// verifier needs. The public_key field is a base64 DER blob without PEM
// armor.
type realmDocument struct {
	PublicKey string `json:"public_key"`
}

func (k *KeycloakKeys) fetch(ctx context.Context) (*rsa.PublicKey, error) {
	var doc realmDocument

	err := retry.Do(ctx, k.retry, "keycloak_realm_key", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.realmURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := k.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			return &realmFetchError{status: resp.StatusCode}
		}
		if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
			return fmt.Errorf("decoding realm document: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetching realm document from %s: %w", k.realmURL, err)
	}

	if doc.PublicKey == "" {
		return nil, errors.New("realm document has no public_key")
	}
	return ParseRealmPublicKey(doc.PublicKey)
}

// ParseRealmPublicKey decodes the base64 DER public key from a Keycloak
// realm document into an RSA public key.
func ParseRealmPublicKey(encoded string) (*rsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding realm public key: %w", err)
	}
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("parsing realm public key: %w", err)
	}
	rsaKey, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("realm public key is %T, want RSA", pub)
	}
	return rsaKey, nil
}

// realmFetchError carries the upstream status so the retry loop can
// classify Keycloak 5xx responses as transient.
type realmFetchError struct {
	status int
}

func (e *realmFetchError) Error() string {
	return fmt.Sprintf("keycloak realm endpoint returned status %d", e.status)
}

func (e *realmFetchError) HTTPStatus() int {
	return e.status
}
