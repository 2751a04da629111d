package server

import (
	"errors"
	"time"

	"github.com/jroosing/hydraproxy/internal/dns"
	"github.com/jroosing/hydraproxy/internal/metrics"
	"github.com/jroosing/hydraproxy/internal/request"
)

// observer feeds request outcomes into Stats and, when set, Prometheus.
type observer struct {
	stats   *Stats
	metrics *metrics.Metrics
}

func (o observer) CacheHit() {
	o.stats.RecordCacheHit()
	if o.metrics != nil {
		o.metrics.CacheHits.Inc()
	}
}

func (o observer) CacheMiss() {
	o.stats.RecordCacheMiss()
	if o.metrics != nil {
		o.metrics.CacheMisses.Inc()
	}
}

func (o observer) Forwarded() {
	o.stats.RecordForwarded()
	if o.metrics != nil {
		o.metrics.Forwarded.Inc()
	}
}

func (o observer) Answered(rtt time.Duration) {
	o.stats.RecordAnswered(rtt)
	if o.metrics != nil {
		o.metrics.Answered.Inc()
		o.metrics.UpstreamRTT.Observe(rtt.Seconds())
	}
}

func (o observer) Failed(err error) {
	o.stats.RecordError(errors.Is(err, request.ErrTimeout))
	if o.metrics != nil {
		o.metrics.Errors.WithLabelValues(errorReason(err)).Inc()
	}
}

// errorReason maps a request error to its metrics label.
func errorReason(err error) string {
	switch {
	case errors.Is(err, request.ErrTimeout):
		return metrics.ReasonTimeout
	case errors.Is(err, request.ErrSocketAlloc):
		return metrics.ReasonSocket
	case errors.Is(err, request.ErrUpstreamIO):
		return metrics.ReasonUpstream
	case errors.Is(err, request.ErrClientIO):
		return metrics.ReasonClient
	case errors.Is(err, request.ErrCanceled):
		return metrics.ReasonCanceled
	case errors.Is(err, dns.ErrDNSError):
		return metrics.ReasonProtocol
	default:
		return metrics.ReasonOther
	}
}
