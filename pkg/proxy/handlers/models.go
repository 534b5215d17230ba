package handlers

import (
	"log/slog"
	"net/http"

	"fulcrum-hq/portunus/pkg/catalog"
	"fulcrum-hq/portunus/pkg/proxy"
	"fulcrum-hq/portunus/pkg/proxy/types"
	"fulcrum-hq/portunus/pkg/security/auth"
)

// ModelsHandler serves GET /v1/models: the approved models visible to
// the calling principal, in OpenAI list format.
type ModelsHandler struct {
	catalog *catalog.Service
	logger  *slog.Logger
}

// NewModelsHandler creates the model listing handler.
func NewModelsHandler(cat *catalog.Service, logger *slog.Logger) *ModelsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ModelsHandler{
		catalog: cat,
		logger:  logger.With("component", "handlers"),
	}
}

// List serves GET /v1/models.
func (h *ModelsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		proxy.WriteError(w, auth.NewAuthentication("authentication required"))
		return
	}

	models, err := h.catalog.AccessibleModels(ctx, p.Groups)
	if err != nil {
		h.logger.ErrorContext(ctx, "model listing failed", "username", p.Username, "error", err)
		proxy.WriteError(w, err)
		return
	}

	list := types.ModelList{Object: "list", Data: make([]types.ModelInfo, 0, len(models))}
	for _, m := range models {
		list.Data = append(list.Data, types.ModelInfo{
			ID:      m.TechnicalName,
			Object:  "model",
			Created: m.CreatedAt.Unix(),
			OwnedBy: string(m.Provider),
		})
	}

	if err := proxy.WriteJSON(w, http.StatusOK, list); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
}
