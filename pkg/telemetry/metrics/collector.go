package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fulcrum-hq/portunus/pkg/config"
)

// defaultNamespace prefixes every metric name.
const defaultNamespace = "portunus"

// maxModelCardinality caps the distinct model label values before new
// ones collapse into "other". The catalog bounds model names in
// practice; the cap guards against a misbehaving refresh flooding the
// registry.
const maxModelCardinality = 2000

// Collector owns the Prometheus registry and every metric family the
// proxy records: the HTTP surface, upstream calls and token counts, and
// cache sizes. All recording methods are safe when metrics are disabled
// and cheap enough for the hot path.
type Collector struct {
	enabled   bool
	namespace string
	registry  *prometheus.Registry

	http     *httpMetrics
	upstream *upstreamMetrics

	models *cardinalityLimiter
}

// NewCollector builds a collector from the telemetry configuration.
// A nil registry gets a private one, keeping tests isolated from the
// process-global default registry.
func NewCollector(cfg config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = defaultNamespace
	}

	enabled := true
	if cfg.Enabled != nil {
		enabled = *cfg.Enabled
	}

	c := &Collector{
		enabled:   enabled,
		namespace: namespace,
		registry:  registry,
		models:    newCardinalityLimiter(maxModelCardinality),
	}
	c.http = newHTTPMetrics(namespace, registry)
	c.upstream = newUpstreamMetrics(namespace, registry)
	return c
}

// Enabled reports whether recording and the /metrics endpoint are on.
func (c *Collector) Enabled() bool {
	return c.enabled
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// modelLabel funnels unexpected label growth into one bucket.
func (c *Collector) modelLabel(model string) string {
	if c.models.allow(model) {
		return model
	}
	return "other"
}

// cardinalityLimiter bounds the set of label values a metric family can
// accumulate.
type cardinalityLimiter struct {
	mu   sync.RWMutex
	max  int
	seen map[string]struct{}
}

func newCardinalityLimiter(max int) *cardinalityLimiter {
	return &cardinalityLimiter{max: max, seen: make(map[string]struct{})}
}

// allow admits values already seen, and new values while under the cap.
func (l *cardinalityLimiter) allow(value string) bool {
	l.mu.RLock()
	_, ok := l.seen[value]
	l.mu.RUnlock()
	if ok {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.seen[value]; ok {
		return true
	}
	if len(l.seen) >= l.max {
		return false
	}
	l.seen[value] = struct{}{}
	return true
}
