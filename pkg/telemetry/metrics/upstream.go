package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// upstreamMetrics covers calls the proxy makes to LLM providers and the
// tokens they account for.
type upstreamMetrics struct {
	requestsTotal *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	tokensTotal   *prometheus.CounterVec
}

func newUpstreamMetrics(namespace string, registry *prometheus.Registry) *upstreamMetrics {
	um := &upstreamMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_requests_total",
				Help:      "Upstream provider calls, by provider family, model, and outcome.",
			},
			[]string{"provider", "model", "outcome"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_latency_seconds",
				Help:      "Upstream call latency including retries.",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"provider", "model"},
		),
		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_total",
				Help:      "Tokens accounted against models, split into prompt and completion.",
			},
			[]string{"model", "type"},
		),
	}

	registry.MustRegister(um.requestsTotal, um.latency, um.tokensTotal)
	return um
}

// UpstreamRequest records one provider call. outcome is "success",
// "error", or "cancelled" for streams the client abandoned; latency
// covers the whole call including retry attempts, and for streams runs
// until the stream closes.
func (c *Collector) UpstreamRequest(provider, model, outcome string, seconds float64) {
	if !c.enabled {
		return
	}
	model = c.modelLabel(model)
	c.upstream.requestsTotal.WithLabelValues(provider, model, outcome).Inc()
	c.upstream.latency.WithLabelValues(provider, model).Observe(seconds)
}

// RecordTokens adds prompt and completion token counts for a model.
// Zero counts record nothing.
func (c *Collector) RecordTokens(model string, prompt, completion int) {
	if !c.enabled {
		return
	}
	model = c.modelLabel(model)
	if prompt > 0 {
		c.upstream.tokensTotal.WithLabelValues(model, "prompt").Add(float64(prompt))
	}
	if completion > 0 {
		c.upstream.tokensTotal.WithLabelValues(model, "completion").Add(float64(completion))
	}
}
