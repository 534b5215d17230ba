// Package proxy implements the request path of the gateway: parsing
// OpenAI-compatible requests, orchestrating the catalog lookup, access
// check and upstream call, and rendering JSON or SSE responses.
//
// The Orchestrator is the center of the package. Handlers decode the
// wire format and delegate to it; it resolves the model by technical
// name (display name as fallback), rejects models that are not
// APPROVED, verifies the principal's group grants access, rewrites the
// request to the model's technical name, obtains an adapter, times the
// upstream call, and appends a token usage row for successful calls.
// Failed or cancelled calls never produce usage rows.
//
// Error mapping is centralized in WriteError: domain errors from the
// catalog, identity, and auth packages carry their own HTTP semantics
// (404/409/400/401/403), upstream failures surface as 502 or 504 after
// the retry budget, and adapter misconfiguration as 500. Every error
// body is {"detail": "<message>"}.
//
// Streaming responses use StreamWriter, which frames each event as
// "data: <json>\r\n\r\n" and guarantees the "data: [DONE]\r\n\r\n"
// terminator is the last line on the wire, including after mid-stream
// upstream failures.
package proxy
