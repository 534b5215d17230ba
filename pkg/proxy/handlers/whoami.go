package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"fulcrum-hq/portunus/pkg/proxy"
	"fulcrum-hq/portunus/pkg/proxy/types"
	"fulcrum-hq/portunus/pkg/security/auth"
)

// WhoAmIHandler serves GET /v1/whoami: the caller's resolved identity,
// with an opt-in principal cache refresh.
type WhoAmIHandler struct {
	resolver *auth.Resolver
	logger   *slog.Logger
}

// NewWhoAmIHandler creates the identity echo handler.
func NewWhoAmIHandler(resolver *auth.Resolver, logger *slog.Logger) *WhoAmIHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WhoAmIHandler{
		resolver: resolver,
		logger:   logger.With("component", "handlers"),
	}
}

// WhoAmI serves GET /v1/whoami. force_cache_clear=true evicts the
// caller's cached principal and re-reads group membership from storage,
// so a just-granted group takes effect without waiting for TTL expiry.
func (h *WhoAmIHandler) WhoAmI(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		proxy.WriteError(w, auth.NewAuthentication("authentication required"))
		return
	}

	cleared := false
	if force, _ := strconv.ParseBool(r.URL.Query().Get("force_cache_clear")); force {
		refreshed, err := h.resolver.RefreshFromStore(ctx, p)
		if err != nil {
			h.logger.ErrorContext(ctx, "principal refresh failed", "username", p.Username, "error", err)
			proxy.WriteError(w, err)
			return
		}
		p = refreshed
		cleared = true
	}

	body := types.WhoAmI{
		ID:           p.ID,
		Username:     p.Username,
		AuthType:     string(p.Kind),
		Groups:       p.Groups,
		CacheCleared: cleared,
	}
	if err := proxy.WriteJSON(w, http.StatusOK, body); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
}
