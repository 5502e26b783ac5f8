package devlink

import (
	"sync"
	"time"
)

// Metrics accumulates request counters and latency aggregates for the
// gateway. A snapshot is exposed for an external metrics exporter to read;
// this package does not export anything itself.
type Metrics struct {
	mu           sync.Mutex
	total        uint64
	succeeded    uint64
	failed       uint64
	cacheHits    uint64
	cacheMisses  uint64
	retries      uint64
	totalLatency time.Duration
	minLatency   time.Duration
	maxLatency   time.Duration
	samples      uint64
}

// MetricsSnapshot is a point-in-time copy of the gateway counters
type MetricsSnapshot struct {
	Total       uint64
	Succeeded   uint64
	Failed      uint64
	CacheHits   uint64
	CacheMisses uint64
	Retries     uint64
	AvgLatency  time.Duration
	MinLatency  time.Duration
	MaxLatency  time.Duration
}

// CacheHitRate returns the fraction of requests served from cache
func (s MetricsSnapshot) CacheHitRate() float64 {
	lookups := s.CacheHits + s.CacheMisses
	if lookups == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(lookups)
}

func (m *Metrics) recordHit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total++
	m.succeeded++
	m.cacheHits++
}

func (m *Metrics) recordMiss() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheMisses++
}

func (m *Metrics) recordRetry() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries++
}

func (m *Metrics) recordResult(latency time.Duration, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	if ok {
		m.succeeded++
	} else {
		m.failed++
	}

	m.totalLatency += latency
	m.samples++
	if m.minLatency == 0 || latency < m.minLatency {
		m.minLatency = latency
	}
	if latency > m.maxLatency {
		m.maxLatency = latency
	}
}

// Snapshot returns a copy of the current counters
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := MetricsSnapshot{
		Total:       m.total,
		Succeeded:   m.succeeded,
		Failed:      m.failed,
		CacheHits:   m.cacheHits,
		CacheMisses: m.cacheMisses,
		Retries:     m.retries,
		MinLatency:  m.minLatency,
		MaxLatency:  m.maxLatency,
	}
	if m.samples > 0 {
		snap.AvgLatency = m.totalLatency / time.Duration(m.samples)
	}
	return snap
}
