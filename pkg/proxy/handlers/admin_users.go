package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"fulcrum-hq/portunus/pkg/identity"
	"fulcrum-hq/portunus/pkg/proxy"
	"fulcrum-hq/portunus/pkg/proxy/types"
	"fulcrum-hq/portunus/pkg/usage"
)

// AdminUsersHandler serves the /v1/admin/users surface: user CRUD,
// deactivation, API key issuance, and per-user token usage reporting.
type AdminUsersHandler struct {
	identity *identity.Service
	ledger   *usage.Ledger
	logger   *slog.Logger
}

// NewAdminUsersHandler creates the admin user handler.
func NewAdminUsersHandler(id *identity.Service, ledger *usage.Ledger, logger *slog.Logger) *AdminUsersHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminUsersHandler{
		identity: id,
		ledger:   ledger,
		logger:   logger.With("component", "handlers"),
	}
}

// userRequest is the wire body for creating or updating a user.
type userRequest struct {
	Username string   `json:"username"`
	Email    string   `json:"email,omitempty"`
	Groups   []string `json:"groups,omitempty"`
	IsActive *bool    `json:"is_active,omitempty"`
}

// apiKeyRequest is the wire body for issuing an API key. ExpiresAt is
// RFC 3339; omitted means the key never expires.
type apiKeyRequest struct {
	Name      string     `json:"name"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// List serves GET /v1/admin/users.
func (h *AdminUsersHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	users, err := h.identity.ListUsers(ctx)
	if err != nil {
		proxy.WriteError(w, err)
		return
	}
	if err := proxy.WriteJSON(w, http.StatusOK, users); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
}

// Create serves POST /v1/admin/users. Duplicate usernames answer 409.
func (h *AdminUsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body userRequest
	if err := proxy.DecodeJSON(r, proxy.DefaultMaxBodyBytes, &body); err != nil {
		proxy.WriteError(w, err)
		return
	}

	u := &identity.User{
		Username: body.Username,
		Email:    body.Email,
		Groups:   body.Groups,
		IsActive: true,
	}
	if body.IsActive != nil {
		u.IsActive = *body.IsActive
	}

	created, err := h.identity.CreateUser(ctx, u)
	if err != nil {
		proxy.WriteError(w, err)
		return
	}
	if err := proxy.WriteJSON(w, http.StatusCreated, created); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
}

// Get serves GET /v1/admin/users/{id}.
func (h *AdminUsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	u, err := h.identity.GetUser(ctx, r.PathValue("id"))
	if err != nil {
		proxy.WriteError(w, err)
		return
	}
	if err := proxy.WriteJSON(w, http.StatusOK, u); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
}

// Update serves PUT /v1/admin/users/{id}. Absent fields keep their
// stored values; is_active is tri-state so false is distinguishable
// from omitted.
func (h *AdminUsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body userRequest
	if err := proxy.DecodeJSON(r, proxy.DefaultMaxBodyBytes, &body); err != nil {
		proxy.WriteError(w, err)
		return
	}

	existing, err := h.identity.GetUser(ctx, r.PathValue("id"))
	if err != nil {
		proxy.WriteError(w, err)
		return
	}
	if body.Username != "" {
		existing.Username = body.Username
	}
	if body.Email != "" {
		existing.Email = body.Email
	}
	if body.Groups != nil {
		existing.Groups = body.Groups
	}
	if body.IsActive != nil {
		existing.IsActive = *body.IsActive
	}

	updated, err := h.identity.UpdateUser(ctx, existing)
	if err != nil {
		proxy.WriteError(w, err)
		return
	}
	if err := proxy.WriteJSON(w, http.StatusOK, updated); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
}

// Delete serves DELETE /v1/admin/users/{id}. Usage ledger rows survive
// the user; only the account and its keys go away.
func (h *AdminUsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.identity.DeleteUser(ctx, r.PathValue("id")); err != nil {
		proxy.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Deactivate serves POST /v1/admin/users/{id}/deactivate. A deactivated
// user keeps their record but every credential stops authenticating.
func (h *AdminUsersHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	u, err := h.identity.DeactivateUser(ctx, r.PathValue("id"))
	if err != nil {
		proxy.WriteError(w, err)
		return
	}
	if err := proxy.WriteJSON(w, http.StatusOK, u); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
}

// CreateAPIKey serves POST /v1/admin/users/{id}/api-keys. The response
// carries the plaintext key; it is shown exactly once and only the hash
// is stored.
func (h *AdminUsersHandler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body apiKeyRequest
	if err := proxy.DecodeJSON(r, proxy.DefaultMaxBodyBytes, &body); err != nil {
		proxy.WriteError(w, err)
		return
	}

	created, err := h.identity.CreateAPIKey(ctx, r.PathValue("id"), body.Name, body.ExpiresAt)
	if err != nil {
		proxy.WriteError(w, err)
		return
	}
	if err := proxy.WriteJSON(w, http.StatusCreated, created); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
}

// ListAPIKeys serves GET /v1/admin/users/{id}/api-keys. Hashes and
// plaintext never appear in the listing.
func (h *AdminUsersHandler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	keys, err := h.identity.ListAPIKeys(ctx, r.PathValue("id"))
	if err != nil {
		proxy.WriteError(w, err)
		return
	}
	if err := proxy.WriteJSON(w, http.StatusOK, keys); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
}

// DeleteAPIKey serves DELETE /v1/admin/users/{id}/api-keys/{kid}.
func (h *AdminUsersHandler) DeleteAPIKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	kid, err := pathID(r, "kid")
	if err != nil {
		proxy.WriteError(w, err)
		return
	}

	// The user lookup keeps key ids from being deleted across accounts.
	if _, err := h.identity.GetUser(ctx, r.PathValue("id")); err != nil {
		proxy.WriteError(w, err)
		return
	}

	if err := h.identity.DeleteAPIKey(ctx, kid); err != nil {
		proxy.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TokenUsage serves GET /v1/admin/users/{id}/token-usage[?days]: the
// per-model rollup for the trailing window.
func (h *AdminUsersHandler) TokenUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	u, err := h.identity.GetUser(ctx, r.PathValue("id"))
	if err != nil {
		proxy.WriteError(w, err)
		return
	}

	days, err := queryInt(r, "days")
	if err != nil {
		proxy.WriteError(w, err)
		return
	}

	summary, err := h.ledger.Summary(ctx, u.Username, days)
	if err != nil {
		proxy.WriteError(w, err)
		return
	}
	if err := proxy.WriteJSON(w, http.StatusOK, summary); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
}

// TokenUsageDetails serves GET
// /v1/admin/users/{id}/token-usage/details[?days&limit]: the individual
// ledger rows, newest first.
func (h *AdminUsersHandler) TokenUsageDetails(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	u, err := h.identity.GetUser(ctx, r.PathValue("id"))
	if err != nil {
		proxy.WriteError(w, err)
		return
	}

	days, err := queryInt(r, "days")
	if err != nil {
		proxy.WriteError(w, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		proxy.WriteError(w, err)
		return
	}

	rows, err := h.ledger.Details(ctx, u.Username, days, limit)
	if err != nil {
		proxy.WriteError(w, err)
		return
	}
	if err := proxy.WriteJSON(w, http.StatusOK, rows); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
}

// queryInt parses an optional non-negative integer query parameter.
// Absent or empty returns 0, which callers treat as "use the default".
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, &types.ValidationError{
			Field:   name,
			Message: "must be a non-negative integer",
		}
	}
	return v, nil
}
