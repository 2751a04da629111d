// Package metrics exposes proxy counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric registered through Registerer.
const Namespace = "hydraproxy_"

// Error reasons used as the "reason" label of the errors counter.
const (
	ReasonTimeout  = "timeout"
	ReasonSocket   = "socket"
	ReasonUpstream = "upstream_io"
	ReasonClient   = "client_io"
	ReasonCanceled = "canceled"
	ReasonProtocol = "protocol"
	ReasonOther    = "other"
)

// Metrics holds the proxy collectors and the registry that serves them.
type Metrics struct {
	reg *prometheus.Registry

	Queries      prometheus.Counter
	CacheHits    prometheus.Counter
	CacheMisses  prometheus.Counter
	Forwarded    prometheus.Counter
	Answered     prometheus.Counter
	Dropped      prometheus.Counter
	FormErr      prometheus.Counter
	Errors       *prometheus.CounterVec
	Inflight     prometheus.Gauge
	CacheEntries prometheus.Gauge
	Evictions    prometheus.Counter
	UpstreamRTT  prometheus.Histogram
}

// New creates a registry with process and Go runtime collectors and
// registers the proxy collectors on it.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(collectors.NewGoCollector())

	m := &Metrics{
		reg: reg,
		Queries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "queries_total", Help: "Client queries received.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total", Help: "Queries answered from the cache.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total", Help: "Queries that missed the cache.",
		}),
		Forwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forwarded_total", Help: "Queries sent upstream.",
		}),
		Answered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "upstream_answers_total", Help: "Matching upstream responses received.",
		}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dropped_total", Help: "Queries dropped because the request table was full.",
		}),
		FormErr: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "formerr_total", Help: "Malformed client queries.",
		}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "request_errors_total", Help: "Requests that ended in error, by reason.",
		}, []string{"reason"}),
		Inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "inflight_requests", Help: "Requests in the request table.",
		}),
		CacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cache_entries", Help: "Entries held by the answer cache.",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_evictions_total", Help: "Expired cache entries removed.",
		}),
		UpstreamRTT: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "upstream_rtt_seconds",
			Help:    "Time between forwarding a query and receiving its answer.",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
	}
	m.Registerer().MustRegister(
		m.Queries, m.CacheHits, m.CacheMisses, m.Forwarded, m.Answered,
		m.Dropped, m.FormErr, m.Errors, m.Inflight, m.CacheEntries,
		m.Evictions, m.UpstreamRTT,
	)
	return m
}

// Registerer returns a registerer that prefixes names with Namespace.
func (m *Metrics) Registerer() prometheus.Registerer {
	return prometheus.WrapRegistererWithPrefix(Namespace, m.reg)
}

// Gatherer returns the underlying registry.
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
