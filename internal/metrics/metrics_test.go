package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jroosing/hydraproxy/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAndGauges(t *testing.T) {
	m := metrics.New()

	m.Queries.Inc()
	m.Queries.Inc()
	m.Errors.WithLabelValues(metrics.ReasonTimeout).Inc()
	m.CacheEntries.Set(7)

	assert.InDelta(t, 2, testutil.ToFloat64(m.Queries), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Errors.WithLabelValues(metrics.ReasonTimeout)), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.Errors.WithLabelValues(metrics.ReasonSocket)), 0)
	assert.InDelta(t, 7, testutil.ToFloat64(m.CacheEntries), 0)
}

func TestHandler(t *testing.T) {
	m := metrics.New()
	m.CacheHits.Inc()
	m.UpstreamRTT.Observe(0.02)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "hydraproxy_cache_hits_total 1")
	assert.Contains(t, string(body), "hydraproxy_upstream_rtt_seconds_count 1")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestNewIsIndependent(t *testing.T) {
	a, b := metrics.New(), metrics.New()
	a.Dropped.Inc()
	assert.InDelta(t, 0, testutil.ToFloat64(b.Dropped), 0)
}
