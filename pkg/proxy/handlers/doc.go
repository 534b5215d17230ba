// Package handlers provides the HTTP handlers behind every proxy route.
//
// The public surface speaks the OpenAI wire protocol:
//
//   - CompletionsHandler: POST /v1/chat/completions (JSON or SSE) and
//     POST /v1/completions, delegating to the proxy orchestrator
//   - ModelsHandler: GET /v1/models, filtered to the caller's groups
//   - WhoAmIHandler: GET /v1/whoami with optional cache refresh
//
// The admin surface manages the catalog and tenancy; the server guards
// it with the admin group requirement:
//
//   - AdminModelsHandler: model CRUD, lifecycle status, upstream
//     discovery refresh, and group authorization edges
//   - AdminGroupsHandler: group CRUD and per-group model listings
//   - AdminUsersHandler: user CRUD, deactivation, API key issuance,
//     and token usage reporting
//   - AdminAuditHandler: audit trail queries and JSON/CSV export
//
// Handlers are thin: they parse and validate the wire request, call one
// service operation, and translate the result or error back to HTTP.
// Routing uses method-qualified patterns, so handlers read path
// parameters with r.PathValue and never inspect r.Method.
package handlers
