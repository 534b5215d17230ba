package handlers

import (
	"log/slog"
	"net/http"

	"fulcrum-hq/portunus/pkg/proxy"
	"fulcrum-hq/portunus/pkg/proxy/middleware"
	"fulcrum-hq/portunus/pkg/proxy/types"
	"fulcrum-hq/portunus/pkg/security/auth"
)

// CompletionsHandler serves the OpenAI-compatible inference endpoints:
// POST /v1/chat/completions and POST /v1/completions. It parses and
// validates the wire request, hands it to the orchestrator, and writes
// the response as JSON or as an SSE stream.
type CompletionsHandler struct {
	orch    *proxy.Orchestrator
	maxBody int64
	logger  *slog.Logger
}

// NewCompletionsHandler creates the inference handler. maxBody bounds the
// request body size; values <= 0 fall back to proxy.DefaultMaxBodyBytes.
func NewCompletionsHandler(orch *proxy.Orchestrator, maxBody int64, logger *slog.Logger) *CompletionsHandler {
	if maxBody <= 0 {
		maxBody = proxy.DefaultMaxBodyBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CompletionsHandler{
		orch:    orch,
		maxBody: maxBody,
		logger:  logger.With("component", "handlers"),
	}
}

// Chat serves POST /v1/chat/completions.
func (h *CompletionsHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		proxy.WriteError(w, auth.NewAuthentication("authentication required"))
		return
	}

	req, err := proxy.ParseChatCompletionRequest(r, h.maxBody)
	if err != nil {
		proxy.WriteError(w, err)
		return
	}

	if req.Stream {
		h.streamChat(w, r, p, req)
		return
	}

	resp, err := h.orch.ChatCompletion(ctx, p, req)
	if err != nil {
		h.logger.ErrorContext(ctx, "chat completion failed",
			"request_id", middleware.GetRequestID(ctx),
			"model", req.Model,
			"username", p.Username,
			"error", err,
		)
		proxy.WriteError(w, err)
		return
	}

	if err := proxy.WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
}

// Completions serves POST /v1/completions. Streaming is not offered on
// the legacy endpoint; clients that need SSE use chat completions.
func (h *CompletionsHandler) Completions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		proxy.WriteError(w, auth.NewAuthentication("authentication required"))
		return
	}

	req, err := proxy.ParseCompletionRequest(r, h.maxBody)
	if err != nil {
		proxy.WriteError(w, err)
		return
	}
	if req.Stream {
		proxy.WriteError(w, &types.ValidationError{
			Field:   "stream",
			Message: "streaming is not supported on /v1/completions; use /v1/chat/completions",
		})
		return
	}

	resp, err := h.orch.Completion(ctx, p, req)
	if err != nil {
		h.logger.ErrorContext(ctx, "completion failed",
			"request_id", middleware.GetRequestID(ctx),
			"model", req.Model,
			"username", p.Username,
			"error", err,
		)
		proxy.WriteError(w, err)
		return
	}

	if err := proxy.WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
}

// streamChat relays an upstream SSE stream to the client. Failures
// before the first byte map to a plain JSON error with the usual status;
// once streaming has begun, errors become a terminal stream_error chunk
// followed by [DONE].
func (h *CompletionsHandler) streamChat(w http.ResponseWriter, r *http.Request, p *auth.Principal, req *types.ChatCompletionRequest) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	events, err := h.orch.StreamChatCompletion(ctx, p, req)
	if err != nil {
		h.logger.ErrorContext(ctx, "stream setup failed",
			"request_id", requestID,
			"model", req.Model,
			"username", p.Username,
			"error", err,
		)
		proxy.WriteError(w, err)
		return
	}

	sw, err := proxy.NewStreamWriter(w)
	if err != nil {
		h.logger.ErrorContext(ctx, "streaming unsupported by connection",
			"request_id", requestID,
			"error", err,
		)
		proxy.WriteError(w, err)
		return
	}

	for ev := range events {
		if ev.Err != nil {
			h.logger.ErrorContext(ctx, "stream failed",
				"request_id", requestID,
				"model", req.Model,
				"error", ev.Err,
			)
			if werr := sw.WriteError(proxy.DetailForError(ev.Err)); werr != nil {
				h.logger.WarnContext(ctx, "failed to write stream error", "error", werr)
			}
			break
		}
		if ev.Chunk == nil {
			continue
		}
		if err := sw.WriteChunk(ev.Chunk); err != nil {
			h.logger.WarnContext(ctx, "client write failed during stream",
				"request_id", requestID,
				"error", err,
			)
			break
		}
	}

	if err := sw.WriteDone(); err != nil {
		h.logger.WarnContext(ctx, "failed to write stream terminator",
			"request_id", requestID,
			"error", err,
		)
	}
}
