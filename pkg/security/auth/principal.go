package auth

import (
	"context"
	"sync"

	"fulcrum-hq/portunus/pkg/catalog"
)

// Kind identifies which credential produced a principal.
type Kind string

const (
	// KindAPIKey marks principals authenticated by a stored sk- API key.
	KindAPIKey Kind = "api_key"

	// KindJWT marks principals authenticated by a verified bearer JWT.
	KindJWT Kind = "jwt"

	// KindDev marks the synthetic principal handed out in development
	// mode when a request carries no credentials.
	KindDev Kind = "dev"
)

// Principal is the authenticated caller attached to a request after
// credential resolution. Group membership drives model access; the ID
// is empty for ephemeral principals that have no stored user row.
type Principal struct {
	ID       string   `json:"id,omitempty"`
	Username string   `json:"username"`
	Kind     Kind     `json:"kind"`
	Groups   []string `json:"groups"`
}

// InGroup reports whether the principal belongs to the named group.
func (p *Principal) InGroup(name string) bool {
	for _, g := range p.Groups {
		if g == name {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the principal belongs to the admin group.
func (p *Principal) IsAdmin() bool {
	return p.InGroup(catalog.AdminGroup)
}

type contextKey string

const (
	principalKey contextKey = "auth_principal"
	captureKey   contextKey = "auth_principal_capture"
)

// ContextWithPrincipal returns a context carrying the principal. When an
// upstream middleware installed a capture (WithPrincipalCapture), the
// principal is published there too so wrappers that run outside
// authentication can see who the request resolved to.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	if holder, ok := ctx.Value(captureKey).(*principalHolder); ok {
		holder.set(p)
	}
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext retrieves the principal stored by the
// authentication middleware, if any.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok
}

// principalHolder propagates the principal outward through the
// middleware chain. Context values only flow inward; the audit recorder
// wraps authentication and still needs the resolved identity after the
// inner handlers return.
type principalHolder struct {
	mu sync.Mutex
	p  *Principal
}

func (h *principalHolder) set(p *Principal) {
	h.mu.Lock()
	h.p = p
	h.mu.Unlock()
}

func (h *principalHolder) get() *Principal {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.p
}

// WithPrincipalCapture installs a capture slot on the context and
// returns a getter that reports the principal authentication resolved
// under it, or nil when the request never authenticated.
func WithPrincipalCapture(ctx context.Context) (context.Context, func() *Principal) {
	holder := &principalHolder{}
	return context.WithValue(ctx, captureKey, holder), holder.get
}
