package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// RegisterCacheSize exposes a named cache's entry count as a gauge,
// sampled at scrape time. The proxy registers its principal cache and
// the upstream adapter cache this way. Registering the same name twice
// panics, like any duplicate metric registration.
func (c *Collector) RegisterCacheSize(name string, size func() int) {
	if !c.enabled {
		return
	}
	c.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace:   c.namespace,
			Name:        "cache_entries",
			Help:        "Current number of entries in a named in-process cache.",
			ConstLabels: prometheus.Labels{"cache": name},
		},
		func() float64 { return float64(size()) },
	))
}
