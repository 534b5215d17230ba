package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fulcrum-hq/portunus/pkg/catalog"
	"fulcrum-hq/portunus/pkg/providers"
	"fulcrum-hq/portunus/pkg/proxy/middleware"
	"fulcrum-hq/portunus/pkg/proxy/tokens"
	"fulcrum-hq/portunus/pkg/proxy/types"
	"fulcrum-hq/portunus/pkg/security/auth"
	"fulcrum-hq/portunus/pkg/usage"
)

// Endpoint names recorded on token usage rows.
const (
	EndpointChatCompletions = "/v1/chat/completions"
	EndpointCompletions     = "/v1/completions"
)

// AdapterSource yields the provider adapter serving a catalog model.
// Construction failures (typically a missing API key for the model's
// URL) surface as provider configuration errors.
type AdapterSource interface {
	AdapterFor(ctx context.Context, m *catalog.Model) (providers.Provider, error)
}

// UpstreamMetrics receives upstream call outcomes and token counts. The
// telemetry collector implements it; recording is skipped when none is
// set.
type UpstreamMetrics interface {
	UpstreamRequest(provider, model, outcome string, seconds float64)
	RecordTokens(model string, prompt, completion int)
}

// Orchestrator drives a completion request end to end: catalog lookup,
// access check, adapter selection, the timed upstream call, and the
// usage ledger write. Handlers stay thin HTTP shims over it.
type Orchestrator struct {
	catalog  *catalog.Service
	adapters AdapterSource
	ledger   *usage.Ledger
	metrics  UpstreamMetrics
	logger   *slog.Logger
}

// NewOrchestrator wires an orchestrator from its collaborators.
func NewOrchestrator(cat *catalog.Service, adapters AdapterSource, ledger *usage.Ledger, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		catalog:  cat,
		adapters: adapters,
		ledger:   ledger,
		logger:   logger.With("component", "orchestrator"),
	}
}

// SetMetrics attaches upstream metric recording. Call before serving.
func (o *Orchestrator) SetMetrics(m UpstreamMetrics) {
	o.metrics = m
}

// ChatCompletion executes a non-streaming chat completion for the
// principal. On success the response carries the gateway-measured
// latency and timestamp, and one usage row is appended. Failures append
// nothing.
func (o *Orchestrator) ChatCompletion(ctx context.Context, p *auth.Principal, req *types.ChatCompletionRequest) (*types.ChatCompletionResponse, error) {
	m, adapter, err := o.prepare(ctx, p, req.Model)
	if err != nil {
		return nil, err
	}
	req.Model = m.TechnicalName

	start := time.Now()
	resp, err := adapter.ChatCompletion(ctx, req)
	o.observeUpstream(m, err, time.Since(start))
	if err != nil {
		return nil, err
	}
	stampResponse(&resp.LatencyMS, &resp.Timestamp, start)

	u := resp.Usage
	if u.TotalTokens == 0 {
		u = tokens.EstimateUsage(req.Messages, completionText(resp))
	}
	o.appendUsage(ctx, p, m, u, EndpointChatCompletions, middleware.GetRequestID(ctx))
	return resp, nil
}

// Completion executes a legacy text completion. Adapters that no longer
// speak the completions dialect downgrade to chat internally.
func (o *Orchestrator) Completion(ctx context.Context, p *auth.Principal, req *types.CompletionRequest) (*types.CompletionResponse, error) {
	m, adapter, err := o.prepare(ctx, p, req.Model)
	if err != nil {
		return nil, err
	}
	req.Model = m.TechnicalName

	start := time.Now()
	resp, err := adapter.Completion(ctx, req)
	o.observeUpstream(m, err, time.Since(start))
	if err != nil {
		return nil, err
	}
	stampResponse(&resp.LatencyMS, &resp.Timestamp, start)

	u := resp.Usage
	if u.TotalTokens == 0 {
		prompt := tokens.EstimateText(req.PromptText())
		done := 0
		for _, c := range resp.Choices {
			done += tokens.EstimateText(c.Text)
		}
		u = types.Usage{PromptTokens: prompt, CompletionTokens: done, TotalTokens: prompt + done}
	}
	o.appendUsage(ctx, p, m, u, EndpointCompletions, middleware.GetRequestID(ctx))
	return resp, nil
}

// StreamChatCompletion opens a streaming chat completion and relays the
// upstream events. When the stream completes normally a usage row is
// appended, taking counts from the final chunk when the provider sends
// them and estimating from the accumulated text otherwise. Cancelled or
// failed streams append nothing.
func (o *Orchestrator) StreamChatCompletion(ctx context.Context, p *auth.Principal, req *types.ChatCompletionRequest) (<-chan providers.StreamEvent, error) {
	m, adapter, err := o.prepare(ctx, p, req.Model)
	if err != nil {
		return nil, err
	}
	req.Model = m.TechnicalName

	start := time.Now()
	upstream, err := adapter.StreamChatCompletion(ctx, req)
	if err != nil {
		o.observeUpstream(m, err, time.Since(start))
		return nil, err
	}

	requestID := middleware.GetRequestID(ctx)
	messages := req.Messages
	out := make(chan providers.StreamEvent)

	go func() {
		defer close(out)

		var completion strings.Builder
		var reported *types.Usage
		failed := false

		for ev := range upstream {
			if ev.Err != nil {
				failed = true
			}
			if ev.Chunk != nil {
				for _, c := range ev.Chunk.Choices {
					completion.WriteString(c.Delta.Content)
				}
				if ev.Chunk.Usage != nil {
					reported = ev.Chunk.Usage
				}
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				// Client went away: drain stops, no usage row.
				o.observeStream(m, "cancelled", start)
				return
			}
		}
		if failed || ctx.Err() != nil {
			outcome := "error"
			if ctx.Err() != nil && !failed {
				outcome = "cancelled"
			}
			o.observeStream(m, outcome, start)
			return
		}
		o.observeStream(m, "success", start)

		u := types.Usage{}
		if reported != nil {
			u = *reported
		}
		if u.TotalTokens == 0 {
			u = tokens.EstimateUsage(messages, completion.String())
		}
		// The request context may be torn down right after the last
		// chunk; the ledger write still has to land.
		o.appendUsage(context.WithoutCancel(ctx), p, m, u, EndpointChatCompletions, requestID)
	}()

	return out, nil
}

// prepare resolves the model, enforces the catalog gates, and picks the
// adapter. Shared by all three entry points.
func (o *Orchestrator) prepare(ctx context.Context, p *auth.Principal, modelName string) (*catalog.Model, providers.Provider, error) {
	m, err := o.catalog.GetByName(ctx, modelName)
	if err != nil {
		return nil, nil, err
	}
	if !m.Status.Servable() {
		return nil, nil, &catalog.ValidationError{
			Field:   "model",
			Message: fmt.Sprintf("model %q is not approved for serving (status %s)", modelName, m.Status),
		}
	}

	ok, err := o.catalog.CanAccess(ctx, p.Groups, m.ID)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, auth.NewAuthorization(fmt.Sprintf("access to model %q denied", modelName))
	}

	adapter, err := o.adapters.AdapterFor(ctx, m)
	if err != nil {
		return nil, nil, err
	}
	return m, adapter, nil
}

// observeUpstream records a finished non-streaming upstream call.
func (o *Orchestrator) observeUpstream(m *catalog.Model, err error, elapsed time.Duration) {
	if o.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	o.metrics.UpstreamRequest(string(m.Provider), m.TechnicalName, outcome, elapsed.Seconds())
}

// observeStream records a stream's final outcome with the full
// first-byte-to-close duration.
func (o *Orchestrator) observeStream(m *catalog.Model, outcome string, start time.Time) {
	if o.metrics == nil {
		return
	}
	o.metrics.UpstreamRequest(string(m.Provider), m.TechnicalName, outcome, time.Since(start).Seconds())
}

func (o *Orchestrator) appendUsage(ctx context.Context, p *auth.Principal, m *catalog.Model, u types.Usage, endpoint, requestID string) {
	rec := &usage.Record{
		Username:         p.Username,
		Model:            m.TechnicalName,
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
		Endpoint:         endpoint,
		RequestID:        requestID,
	}
	if err := o.ledger.Append(ctx, rec); err != nil {
		// Accounting failures must not fail the completed request.
		o.logger.Error("token usage write failed",
			"username", p.Username,
			"model", m.TechnicalName,
			"request_id", requestID,
			"error", err,
		)
	}
	if o.metrics != nil {
		o.metrics.RecordTokens(m.TechnicalName, u.PromptTokens, u.CompletionTokens)
	}
}

func stampResponse(latencyMS *int64, timestamp *string, start time.Time) {
	*latencyMS = time.Since(start).Milliseconds()
	*timestamp = time.Now().UTC().Format(time.RFC3339)
}

func completionText(resp *types.ChatCompletionResponse) string {
	var b strings.Builder
	for _, c := range resp.Choices {
		b.WriteString(c.Message.ContentString())
	}
	return b.String()
}
