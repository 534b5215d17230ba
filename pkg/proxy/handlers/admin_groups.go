package handlers

import (
	"log/slog"
	"net/http"

	"fulcrum-hq/portunus/pkg/catalog"
	"fulcrum-hq/portunus/pkg/proxy"
)

// AdminGroupsHandler serves the /v1/admin/groups surface.
type AdminGroupsHandler struct {
	catalog *catalog.Service
	logger  *slog.Logger
}

// NewAdminGroupsHandler creates the admin group handler.
func NewAdminGroupsHandler(cat *catalog.Service, logger *slog.Logger) *AdminGroupsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminGroupsHandler{
		catalog: cat,
		logger:  logger.With("component", "handlers"),
	}
}

// groupRequest is the wire body for creating or updating a group.
type groupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// List serves GET /v1/admin/groups.
func (h *AdminGroupsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	groups, err := h.catalog.ListGroups(ctx)
	if err != nil {
		proxy.WriteError(w, err)
		return
	}
	if err := proxy.WriteJSON(w, http.StatusOK, groups); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
}

// Create serves POST /v1/admin/groups. Duplicate names answer 409.
func (h *AdminGroupsHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body groupRequest
	if err := proxy.DecodeJSON(r, proxy.DefaultMaxBodyBytes, &body); err != nil {
		proxy.WriteError(w, err)
		return
	}

	g, err := h.catalog.CreateGroup(ctx, &catalog.Group{
		Name:        body.Name,
		Description: body.Description,
	})
	if err != nil {
		proxy.WriteError(w, err)
		return
	}
	if err := proxy.WriteJSON(w, http.StatusCreated, g); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
}

// Get serves GET /v1/admin/groups/{id}.
func (h *AdminGroupsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathID(r, "id")
	if err != nil {
		proxy.WriteError(w, err)
		return
	}

	g, err := h.catalog.GetGroup(ctx, id)
	if err != nil {
		proxy.WriteError(w, err)
		return
	}
	if err := proxy.WriteJSON(w, http.StatusOK, g); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
}

// Update serves PUT /v1/admin/groups/{id}.
func (h *AdminGroupsHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathID(r, "id")
	if err != nil {
		proxy.WriteError(w, err)
		return
	}

	var body groupRequest
	if err := proxy.DecodeJSON(r, proxy.DefaultMaxBodyBytes, &body); err != nil {
		proxy.WriteError(w, err)
		return
	}

	existing, err := h.catalog.GetGroup(ctx, id)
	if err != nil {
		proxy.WriteError(w, err)
		return
	}
	existing.Name = body.Name
	existing.Description = body.Description

	g, err := h.catalog.UpdateGroup(ctx, existing)
	if err != nil {
		proxy.WriteError(w, err)
		return
	}
	if err := proxy.WriteJSON(w, http.StatusOK, g); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
}

// Delete serves DELETE /v1/admin/groups/{id}.
func (h *AdminGroupsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathID(r, "id")
	if err != nil {
		proxy.WriteError(w, err)
		return
	}

	if err := h.catalog.DeleteGroup(ctx, id); err != nil {
		proxy.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListModels serves GET /v1/admin/groups/{id}/models: the models this
// group is authorized to use.
func (h *AdminGroupsHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathID(r, "id")
	if err != nil {
		proxy.WriteError(w, err)
		return
	}

	models, err := h.catalog.ModelsForGroup(ctx, id)
	if err != nil {
		proxy.WriteError(w, err)
		return
	}
	if err := proxy.WriteJSON(w, http.StatusOK, models); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
}
