package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"fulcrum-hq/portunus/pkg/audit"
	"fulcrum-hq/portunus/pkg/proxy"
	"fulcrum-hq/portunus/pkg/proxy/types"
)

// AdminAuditHandler serves the /v1/admin/audit-logs surface: filtered
// queries over the persisted audit trail and bulk export.
type AdminAuditHandler struct {
	audit  *audit.Service
	logger *slog.Logger
}

// NewAdminAuditHandler creates the audit query handler.
func NewAdminAuditHandler(svc *audit.Service, logger *slog.Logger) *AdminAuditHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminAuditHandler{
		audit:  svc,
		logger: logger.With("component", "handlers"),
	}
}

// auditPage is the response envelope for audit queries.
type auditPage struct {
	Records []audit.Record `json:"records"`
	Total   int64          `json:"total"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
}

// List serves GET /v1/admin/audit-logs with optional filters:
// user, path (prefix), status, since, until (RFC 3339), limit, offset.
func (h *AdminAuditHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	q, err := auditQueryFromRequest(r)
	if err != nil {
		proxy.WriteError(w, err)
		return
	}

	records, total, err := h.audit.Query(ctx, q)
	if err != nil {
		proxy.WriteError(w, err)
		return
	}

	q.Normalize()
	page := auditPage{
		Records: records,
		Total:   total,
		Limit:   q.Limit,
		Offset:  q.Offset,
	}
	if err := proxy.WriteJSON(w, http.StatusOK, page); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
}

// Export serves GET /v1/admin/audit-logs/export?format={json,csv}. The
// same filters as List apply; the page size caps at the query maximum.
func (h *AdminAuditHandler) Export(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "csv" {
		proxy.WriteError(w, &types.ValidationError{
			Field:   "format",
			Message: fmt.Sprintf("unsupported export format %q, want json or csv", format),
		})
		return
	}

	q, err := auditQueryFromRequest(r)
	if err != nil {
		proxy.WriteError(w, err)
		return
	}
	if q.Limit <= 0 {
		q.Limit = audit.MaxQueryLimit
	}

	records, _, err := h.audit.Query(ctx, q)
	if err != nil {
		proxy.WriteError(w, err)
		return
	}

	stamp := time.Now().UTC().Format("20060102-150405")
	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", "audit-logs-"+stamp+".csv"))
		err = audit.ExportCSV(w, records)
	default:
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", "audit-logs-"+stamp+".json"))
		err = audit.ExportJSON(w, records)
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "audit export failed", "format", format, "error", err)
	}
}

// auditQueryFromRequest builds an audit query from URL parameters.
func auditQueryFromRequest(r *http.Request) (audit.Query, error) {
	var q audit.Query
	params := r.URL.Query()

	q.Username = params.Get("user")
	q.PathPrefix = params.Get("path")

	status, err := queryInt(r, "status")
	if err != nil {
		return q, err
	}
	q.StatusCode = status

	q.Limit, err = queryInt(r, "limit")
	if err != nil {
		return q, err
	}
	q.Offset, err = queryInt(r, "offset")
	if err != nil {
		return q, err
	}

	q.Since, err = queryTime(r, "since")
	if err != nil {
		return q, err
	}
	q.Until, err = queryTime(r, "until")
	if err != nil {
		return q, err
	}
	return q, nil
}

// queryTime parses an optional RFC 3339 query parameter.
func queryTime(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, &types.ValidationError{
			Field:   name,
			Message: "must be an RFC 3339 timestamp",
		}
	}
	return t, nil
}
