package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"fulcrum-hq/portunus/pkg/catalog"
	"fulcrum-hq/portunus/pkg/proxy"
	"fulcrum-hq/portunus/pkg/proxy/types"
)

// ModelDiscoverer lists the models currently available on the configured
// upstream endpoints. The provider factory implements it; the refresh
// endpoint feeds its results into the catalog.
type ModelDiscoverer interface {
	Discover(ctx context.Context) ([]catalog.DiscoveredModel, error)
}

// AdminModelsHandler serves the /v1/admin/models surface: catalog CRUD,
// lifecycle transitions, upstream refresh, and group authorization edges.
type AdminModelsHandler struct {
	catalog    *catalog.Service
	discoverer ModelDiscoverer
	logger     *slog.Logger
}

// NewAdminModelsHandler creates the admin model handler. discoverer may
// be nil, in which case the refresh endpoint reports a validation error.
func NewAdminModelsHandler(cat *catalog.Service, discoverer ModelDiscoverer, logger *slog.Logger) *AdminModelsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminModelsHandler{
		catalog:    cat,
		discoverer: discoverer,
		logger:     logger.With("component", "handlers"),
	}
}

// modelRequest is the wire body for creating or upserting a model.
type modelRequest struct {
	URL           string         `json:"url"`
	DisplayName   string         `json:"display_name"`
	TechnicalName string         `json:"technical_name"`
	Provider      string         `json:"provider"`
	Status        string         `json:"status,omitempty"`
	APIVersion    string         `json:"api_version,omitempty"`
	Capabilities  map[string]any `json:"capabilities,omitempty"`
}

// statusRequest is the wire body for PATCH /v1/admin/models/{id}/status.
type statusRequest struct {
	Status string `json:"status"`
}

// List serves GET /v1/admin/models: every catalog entry, any status.
func (h *AdminModelsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	models, err := h.catalog.GetAllModels(ctx)
	if err != nil {
		proxy.WriteError(w, err)
		return
	}
	if err := proxy.WriteJSON(w, http.StatusOK, models); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
}

// Create serves POST /v1/admin/models. Creation is an upsert keyed by
// technical name: a new entry answers 201, a refreshed existing one 200.
func (h *AdminModelsHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body modelRequest
	if err := proxy.DecodeJSON(r, proxy.DefaultMaxBodyBytes, &body); err != nil {
		proxy.WriteError(w, err)
		return
	}

	m := &catalog.Model{
		URL:           body.URL,
		DisplayName:   body.DisplayName,
		TechnicalName: body.TechnicalName,
		Provider:      catalog.Provider(body.Provider),
		Status:        catalog.Status(body.Status),
		APIVersion:    body.APIVersion,
		Capabilities:  body.Capabilities,
	}

	saved, created, err := h.catalog.AddOrUpdateModel(ctx, m)
	if err != nil {
		proxy.WriteError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	if err := proxy.WriteJSON(w, status, saved); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
}

// Get serves GET /v1/admin/models/{id}.
func (h *AdminModelsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathID(r, "id")
	if err != nil {
		proxy.WriteError(w, err)
		return
	}

	m, err := h.catalog.GetModel(ctx, id)
	if err != nil {
		proxy.WriteError(w, err)
		return
	}
	if err := proxy.WriteJSON(w, http.StatusOK, m); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
}

// Delete serves DELETE /v1/admin/models/{id}. Deleting an unknown model
// answers 404, never a silent success.
func (h *AdminModelsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathID(r, "id")
	if err != nil {
		proxy.WriteError(w, err)
		return
	}

	if err := h.catalog.DeleteModel(ctx, id); err != nil {
		proxy.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateStatus serves PATCH /v1/admin/models/{id}/status.
func (h *AdminModelsHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathID(r, "id")
	if err != nil {
		proxy.WriteError(w, err)
		return
	}

	var body statusRequest
	if err := proxy.DecodeJSON(r, proxy.DefaultMaxBodyBytes, &body); err != nil {
		proxy.WriteError(w, err)
		return
	}

	m, err := h.catalog.UpdateModelStatus(ctx, id, catalog.Status(body.Status))
	if err != nil {
		proxy.WriteError(w, err)
		return
	}
	if err := proxy.WriteJSON(w, http.StatusOK, m); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
}

// Refresh serves POST /v1/admin/models/refresh: discover the models on
// every configured upstream and merge them into the catalog. New models
// land as NEW pending approval; known ones keep their status.
func (h *AdminModelsHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.discoverer == nil {
		proxy.WriteError(w, &types.ValidationError{
			Field:   "refresh",
			Message: "no upstream endpoints configured for discovery",
		})
		return
	}

	discovered, err := h.discoverer.Discover(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "model discovery failed", "error", err)
		proxy.WriteError(w, err)
		return
	}

	result, err := h.catalog.SyncDiscovered(ctx, discovered)
	if err != nil {
		proxy.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "catalog refreshed",
		"discovered", len(discovered),
		"created", len(result.Created),
		"updated", len(result.Updated),
	)
	if err := proxy.WriteJSON(w, http.StatusOK, result); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
}

// ListGroups serves GET /v1/admin/models/{id}/groups.
func (h *AdminModelsHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathID(r, "id")
	if err != nil {
		proxy.WriteError(w, err)
		return
	}

	groups, err := h.catalog.GroupsForModel(ctx, id)
	if err != nil {
		proxy.WriteError(w, err)
		return
	}
	if err := proxy.WriteJSON(w, http.StatusOK, groups); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
}

// AddGroup serves POST /v1/admin/models/{id}/groups/{gid}. Adding an
// existing edge is a no-op; both cases answer with the current model.
func (h *AdminModelsHandler) AddGroup(w http.ResponseWriter, r *http.Request) {
	h.linkGroup(w, r, h.catalog.AddModelToGroup)
}

// RemoveGroup serves DELETE /v1/admin/models/{id}/groups/{gid}. Removing
// an edge that does not exist answers 404.
func (h *AdminModelsHandler) RemoveGroup(w http.ResponseWriter, r *http.Request) {
	h.linkGroup(w, r, h.catalog.RemoveModelFromGroup)
}

func (h *AdminModelsHandler) linkGroup(w http.ResponseWriter, r *http.Request, op func(context.Context, int64, int64) error) {
	ctx := r.Context()

	modelID, err := pathID(r, "id")
	if err != nil {
		proxy.WriteError(w, err)
		return
	}
	groupID, err := pathID(r, "gid")
	if err != nil {
		proxy.WriteError(w, err)
		return
	}

	if err := op(ctx, modelID, groupID); err != nil {
		proxy.WriteError(w, err)
		return
	}

	m, err := h.catalog.GetModel(ctx, modelID)
	if err != nil {
		proxy.WriteError(w, err)
		return
	}
	if err := proxy.WriteJSON(w, http.StatusOK, m); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
}

// pathID parses a numeric path parameter set by the router.
func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &types.ValidationError{
			Field:   name,
			Message: "must be a positive integer",
		}
	}
	return id, nil
}
