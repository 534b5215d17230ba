package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"fulcrum-hq/portunus/pkg/catalog"
	"fulcrum-hq/portunus/pkg/identity"
)

// Config controls credential resolution.
type Config struct {
	// DevelopmentMode resolves credential-less requests to a synthetic
	// admin principal. Never enable in production.
	DevelopmentMode bool

	// JITProvisioning creates a user row the first time a verified JWT
	// names an unknown username. When disabled, unknown JWT principals
	// stay ephemeral.
	JITProvisioning bool

	// PrincipalCacheTTL is how long resolved JWT principals are cached.
	// Zero means 5 minutes.
	PrincipalCacheTTL time.Duration

	// PrincipalCacheSize caps the principal cache. Zero means 1024.
	PrincipalCacheSize int

	// JWTSecret is the HS256 shared secret, already resolved from any
	// secret reference. When empty, HS256 tokens are rejected.
	JWTSecret string

	// JWTAlgorithm restricts accepted signing algorithms to "RS256" or
	// "HS256". When empty, both are accepted.
	JWTAlgorithm string

	// Issuer, when set, must match the token's iss claim.
	Issuer string

	// Audience is checked against the aud claim when VerifyAudience is
	// set. Audience verification is off unless explicitly enabled.
	Audience       string
	VerifyAudience bool
}

// Resolver turns an Authorization header into a Principal. Two
// credential shapes are accepted, tried in order: a stored sk- API key
// (optionally behind a Bearer prefix) and a bearer JWT signed RS256 by
// the configured Keycloak realm or HS256 by a shared secret.
//
// JWT principals are cached by username so the stored-group lookup does
// not hit the database on every request; signatures are still verified
// per request. API keys skip the cache because the hash lookup is the
// authentication and it stamps last_used_at.
type Resolver struct {
	cfg        Config
	identity   *identity.Service
	keys       *KeycloakKeys
	principals *Cache[*Principal]
	logger     *slog.Logger
}

// NewResolver creates a resolver. keys may be nil when Keycloak is not
// configured, in which case RS256 tokens are rejected.
func NewResolver(cfg Config, ids *identity.Service, keys *KeycloakKeys, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.PrincipalCacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	size := cfg.PrincipalCacheSize
	if size <= 0 {
		size = 1024
	}

	return &Resolver{
		cfg:        cfg,
		identity:   ids,
		keys:       keys,
		principals: NewCache[*Principal](ttl, size),
		logger:     logger.With("component", "auth_resolver"),
	}
}

// Authenticate resolves the Authorization header value to a principal.
// Failures that the caller can act on (bad key, bad token, no usable
// username) come back as *AuthenticationError; anything else signals a
// backend problem.
func (r *Resolver) Authenticate(ctx context.Context, authorization string) (*Principal, error) {
	credential := strings.TrimSpace(authorization)
	credential = strings.TrimPrefix(credential, "Bearer ")
	credential = strings.TrimSpace(credential)

	if credential == "" {
		if r.cfg.DevelopmentMode {
			return devPrincipal(), nil
		}
		return nil, NewAuthentication("missing credentials")
	}

	if identity.IsAPIKey(credential) {
		return r.resolveAPIKey(ctx, credential)
	}
	return r.resolveJWT(ctx, credential)
}

// InvalidateUser evicts a username from the principal cache.
func (r *Resolver) InvalidateUser(username string) {
	r.principals.Delete(username)
}

// CacheSize reports the number of cached principals, for telemetry.
func (r *Resolver) CacheSize() int {
	return r.principals.Size()
}

// RefreshFromStore re-reads the principal's stored groups, bypassing
// and repopulating the cache. Principals without a stored user row come
// back unchanged.
func (r *Resolver) RefreshFromStore(ctx context.Context, p *Principal) (*Principal, error) {
	r.principals.Delete(p.Username)

	user, err := r.identity.GetUserByUsername(ctx, p.Username)
	if identity.IsNotFound(err) {
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up user %q: %w", p.Username, err)
	}

	refreshed := &Principal{
		ID:       user.ID,
		Username: user.Username,
		Kind:     p.Kind,
		Groups:   user.Groups,
	}
	if p.Kind == KindJWT {
		r.principals.Set(p.Username, refreshed)
	}
	return refreshed, nil
}

func (r *Resolver) resolveAPIKey(ctx context.Context, plaintext string) (*Principal, error) {
	user, _, err := r.identity.AuthenticateKey(ctx, plaintext)
	if err != nil {
		if identity.IsNotFound(err) {
			return nil, NewAuthentication("invalid API key")
		}
		var verr *identity.ValidationError
		if errors.As(err, &verr) {
			return nil, NewAuthentication(verr.Message)
		}
		return nil, fmt.Errorf("api key lookup: %w", err)
	}

	return &Principal{
		ID:       user.ID,
		Username: user.Username,
		Kind:     KindAPIKey,
		Groups:   user.Groups,
	}, nil
}

func (r *Resolver) resolveJWT(ctx context.Context, raw string) (*Principal, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, r.keyFunc(ctx), r.parserOptions()...)
	if err != nil || !token.Valid {
		r.logger.Debug("token verification failed", "error", err)
		return nil, NewAuthentication("invalid or expired token")
	}

	username := usernameFromClaims(claims)
	if username == "" {
		return nil, NewAuthentication("token carries no usable username claim")
	}

	if p, ok := r.principals.Get(username); ok {
		return p, nil
	}

	p, err := r.principalForUser(ctx, username, groupsFromClaims(claims))
	if err != nil {
		return nil, err
	}
	r.principals.Set(username, p)
	return p, nil
}

// principalForUser maps a verified username to a principal. A stored
// user row is authoritative for group membership; token groups only
// apply to users the store has never seen.
func (r *Resolver) principalForUser(ctx context.Context, username string, tokenGroups []string) (*Principal, error) {
	user, err := r.identity.GetUserByUsername(ctx, username)
	switch {
	case err == nil:
		if !user.IsActive {
			return nil, NewAuthentication("user is deactivated")
		}
		return &Principal{
			ID:       user.ID,
			Username: user.Username,
			Kind:     KindJWT,
			Groups:   user.Groups,
		}, nil

	case identity.IsNotFound(err):
		if r.cfg.JITProvisioning {
			user, err := r.identity.Provision(ctx, username, tokenGroups)
			if err != nil {
				return nil, fmt.Errorf("provisioning user %q: %w", username, err)
			}
			return &Principal{
				ID:       user.ID,
				Username: user.Username,
				Kind:     KindJWT,
				Groups:   user.Groups,
			}, nil
		}
		return &Principal{
			Username: username,
			Kind:     KindJWT,
			Groups:   tokenGroups,
		}, nil

	default:
		return nil, fmt.Errorf("looking up user %q: %w", username, err)
	}
}

func (r *Resolver) parserOptions() []jwt.ParserOption {
	methods := []string{"RS256", "HS256"}
	if r.cfg.JWTAlgorithm != "" {
		methods = []string{r.cfg.JWTAlgorithm}
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods(methods)}
	if r.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(r.cfg.Issuer))
	}
	if r.cfg.VerifyAudience && r.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(r.cfg.Audience))
	}
	return opts
}

func (r *Resolver) keyFunc(ctx context.Context) jwt.Keyfunc {
	return func(t *jwt.Token) (any, error) {
		switch t.Method.Alg() {
		case "RS256":
			if r.keys == nil {
				return nil, errors.New("RS256 token but Keycloak is not configured")
			}
			return r.keys.PublicKey(ctx)
		case "HS256":
			if r.cfg.JWTSecret == "" {
				return nil, errors.New("HS256 token but no shared secret is configured")
			}
			return []byte(r.cfg.JWTSecret), nil
		default:
			return nil, fmt.Errorf("unexpected signing algorithm %q", t.Method.Alg())
		}
	}
}

// devPrincipal is handed out in development mode for requests without
// credentials. A fresh value every call keeps callers from mutating
// shared state.
func devPrincipal() *Principal {
	return &Principal{
		ID:       "dev",
		Username: "dev",
		Kind:     KindDev,
		Groups:   []string{catalog.AdminGroup},
	}
}
