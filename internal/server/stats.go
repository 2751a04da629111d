package server

import (
	"sync/atomic"
	"time"
)

// Stats collects proxy statistics.
// All methods are safe for concurrent use; the dispatch loop writes and the
// API reads.
type Stats struct {
	queries     atomic.Uint64
	cacheHits   atomic.Uint64
	cacheMisses atomic.Uint64
	forwarded   atomic.Uint64
	answered    atomic.Uint64
	completed   atomic.Uint64
	errors      atomic.Uint64
	timeouts    atomic.Uint64
	formErr     atomic.Uint64
	dropped     atomic.Uint64
	rttTotalNs  atomic.Uint64

	inflight       atomic.Int64
	cacheEntries   atomic.Int64
	cacheEvictions atomic.Uint64
}

// NewStats creates a new statistics collector.
func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) RecordQuery()     { s.queries.Add(1) }
func (s *Stats) RecordCacheHit()  { s.cacheHits.Add(1) }
func (s *Stats) RecordCacheMiss() { s.cacheMisses.Add(1) }
func (s *Stats) RecordForwarded() { s.forwarded.Add(1) }
func (s *Stats) RecordCompleted() { s.completed.Add(1) }
func (s *Stats) RecordFormErr()   { s.formErr.Add(1) }
func (s *Stats) RecordDropped()   { s.dropped.Add(1) }

// RecordError records a request that ended in error.
func (s *Stats) RecordError(timeout bool) {
	s.errors.Add(1)
	if timeout {
		s.timeouts.Add(1)
	}
}

// RecordAnswered records an upstream answer and its round trip time.
func (s *Stats) RecordAnswered(rtt time.Duration) {
	s.answered.Add(1)
	if rtt > 0 {
		s.rttTotalNs.Add(uint64(rtt))
	}
}

// SetInflight publishes the size of the request table.
func (s *Stats) SetInflight(n int) { s.inflight.Store(int64(n)) }

// SetCache publishes the cache size and its total eviction count.
func (s *Stats) SetCache(entries int, evictions uint64) {
	s.cacheEntries.Store(int64(entries))
	s.cacheEvictions.Store(evictions)
}

// StatsSnapshot is a point-in-time snapshot of proxy statistics.
type StatsSnapshot struct {
	Queries        uint64  `json:"queries"`
	CacheHits      uint64  `json:"cache_hits"`
	CacheMisses    uint64  `json:"cache_misses"`
	Forwarded      uint64  `json:"forwarded"`
	Answered       uint64  `json:"answered"`
	Completed      uint64  `json:"completed"`
	Errors         uint64  `json:"errors"`
	Timeouts       uint64  `json:"timeouts"`
	FormErr        uint64  `json:"formerr"`
	Dropped        uint64  `json:"dropped"`
	Inflight       int64   `json:"inflight"`
	CacheEntries   int64   `json:"cache_entries"`
	CacheEvictions uint64  `json:"cache_evictions"`
	HitRatio       float64 `json:"hit_ratio"`
	AvgUpstreamMs  float64 `json:"avg_upstream_ms"`
}

// Snapshot returns the current statistics.
func (s *Stats) Snapshot() StatsSnapshot {
	hits := s.cacheHits.Load()
	misses := s.cacheMisses.Load()
	answered := s.answered.Load()

	ratio := 0.0
	if hits+misses > 0 {
		ratio = float64(hits) / float64(hits+misses)
	}
	avgMs := 0.0
	if answered > 0 {
		avgMs = float64(s.rttTotalNs.Load()) / float64(answered) / 1e6
	}

	return StatsSnapshot{
		Queries:        s.queries.Load(),
		CacheHits:      hits,
		CacheMisses:    misses,
		Forwarded:      s.forwarded.Load(),
		Answered:       answered,
		Completed:      s.completed.Load(),
		Errors:         s.errors.Load(),
		Timeouts:       s.timeouts.Load(),
		FormErr:        s.formErr.Load(),
		Dropped:        s.dropped.Load(),
		Inflight:       s.inflight.Load(),
		CacheEntries:   s.cacheEntries.Load(),
		CacheEvictions: s.cacheEvictions.Load(),
		HitRatio:       ratio,
		AvgUpstreamMs:  avgMs,
	}
}
