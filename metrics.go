package fhirtx

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks runtime validation queries using lock-free atomic operations.
// All methods are safe for concurrent use.
type Metrics struct {
	// Query outcomes
	queriesTotal    atomic.Uint64
	queriesMember   atomic.Uint64
	unknownTotal    atomic.Uint64
	prohibitedTotal atomic.Uint64

	// Timing (stored as nanoseconds)
	queryTimeTotal atomic.Uint64
	queryTimeMin   atomic.Uint64
	queryTimeMax   atomic.Uint64

	// Per-artifact query counts
	artifacts sync.Map // map[string]*artifactMetrics
}

type artifactMetrics struct {
	queries atomic.Uint64
	members atomic.Uint64
}

// NewMetrics creates a new Metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.queryTimeMin.Store(^uint64(0))
	return m
}

// --- Recording Methods ---

// RecordQuery records a completed membership test against the artifact
// identified by url.
func (m *Metrics) RecordQuery(url string, duration time.Duration, member bool) {
	m.queriesTotal.Add(1)
	if member {
		m.queriesMember.Add(1)
	}

	am := m.getOrCreateArtifactMetrics(url)
	am.queries.Add(1)
	if member {
		am.members.Add(1)
	}

	ns := uint64(duration.Nanoseconds()) //nolint:gosec // durations are non-negative
	m.queryTimeTotal.Add(ns)

	for {
		old := m.queryTimeMin.Load()
		if ns >= old || m.queryTimeMin.CompareAndSwap(old, ns) {
			break
		}
	}
	for {
		old := m.queryTimeMax.Load()
		if ns <= old || m.queryTimeMax.CompareAndSwap(old, ns) {
			break
		}
	}
}

// RecordUnknown records a query against an unknown value set or code system.
func (m *Metrics) RecordUnknown() {
	m.unknownTotal.Add(1)
}

// RecordProhibited records a query refused by policy.
func (m *Metrics) RecordProhibited() {
	m.prohibitedTotal.Add(1)
}

func (m *Metrics) getOrCreateArtifactMetrics(url string) *artifactMetrics {
	if v, ok := m.artifacts.Load(url); ok {
		return v.(*artifactMetrics)
	}
	am := &artifactMetrics{}
	actual, _ := m.artifacts.LoadOrStore(url, am)
	return actual.(*artifactMetrics)
}

// --- Query Methods ---

// QueriesTotal returns the number of membership tests performed.
func (m *Metrics) QueriesTotal() uint64 {
	return m.queriesTotal.Load()
}

// QueriesMember returns the number of tests that found a member.
func (m *Metrics) QueriesMember() uint64 {
	return m.queriesMember.Load()
}

// UnknownTotal returns the number of lookups for missing artifacts.
func (m *Metrics) UnknownTotal() uint64 {
	return m.unknownTotal.Load()
}

// ProhibitedTotal returns the number of queries refused by policy.
func (m *Metrics) ProhibitedTotal() uint64 {
	return m.prohibitedTotal.Load()
}

// MemberRate returns the fraction of tests that found a member (0.0 to 1.0).
func (m *Metrics) MemberRate() float64 {
	total := m.queriesTotal.Load()
	if total == 0 {
		return 0
	}
	return float64(m.queriesMember.Load()) / float64(total)
}

// AverageQueryTime returns the average membership test duration.
func (m *Metrics) AverageQueryTime() time.Duration {
	total := m.queriesTotal.Load()
	if total == 0 {
		return 0
	}
	return time.Duration(m.queryTimeTotal.Load() / total) //nolint:gosec // nanoseconds within int64 range
}

// MinQueryTime returns the fastest membership test.
func (m *Metrics) MinQueryTime() time.Duration {
	v := m.queryTimeMin.Load()
	if v == ^uint64(0) {
		return 0
	}
	return time.Duration(v) //nolint:gosec // nanoseconds within int64 range
}

// MaxQueryTime returns the slowest membership test.
func (m *Metrics) MaxQueryTime() time.Duration {
	return time.Duration(m.queryTimeMax.Load()) //nolint:gosec // nanoseconds within int64 range
}

// ArtifactStats holds query counts for one artifact.
type ArtifactStats struct {
	URL     string `json:"url"`
	Queries uint64 `json:"queries"`
	Members uint64 `json:"members"`
}

// ArtifactStats returns query counts for the artifact with the given URL.
func (m *Metrics) ArtifactStats(url string) (ArtifactStats, bool) {
	v, ok := m.artifacts.Load(url)
	if !ok {
		return ArtifactStats{URL: url}, false
	}
	am := v.(*artifactMetrics)
	return ArtifactStats{URL: url, Queries: am.queries.Load(), Members: am.members.Load()}, true
}

// AllArtifactStats returns query counts for every artifact queried so far.
func (m *Metrics) AllArtifactStats() []ArtifactStats {
	var stats []ArtifactStats
	m.artifacts.Range(func(key, value any) bool {
		am := value.(*artifactMetrics)
		stats = append(stats, ArtifactStats{
			URL:     key.(string),
			Queries: am.queries.Load(),
			Members: am.members.Load(),
		})
		return true
	})
	return stats
}

// --- Export Methods ---

// Snapshot represents a point-in-time snapshot of all metrics.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`

	QueriesTotal    uint64  `json:"queries_total"`
	QueriesMember   uint64  `json:"queries_member"`
	MemberRate      float64 `json:"member_rate"`
	UnknownTotal    uint64  `json:"unknown_total"`
	ProhibitedTotal uint64  `json:"prohibited_total"`

	AvgQueryTimeNs uint64 `json:"avg_query_time_ns"`
	MinQueryTimeNs uint64 `json:"min_query_time_ns"`
	MaxQueryTimeNs uint64 `json:"max_query_time_ns"`

	Artifacts []ArtifactStats `json:"artifacts,omitempty"`
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (m *Metrics) Snapshot() Snapshot {
	total := m.queriesTotal.Load()

	var avg uint64
	var rate float64
	if total > 0 {
		avg = m.queryTimeTotal.Load() / total
		rate = float64(m.queriesMember.Load()) / float64(total)
	}

	minTime := m.queryTimeMin.Load()
	if minTime == ^uint64(0) {
		minTime = 0
	}

	return Snapshot{
		Timestamp:       time.Now(),
		QueriesTotal:    total,
		QueriesMember:   m.queriesMember.Load(),
		MemberRate:      rate,
		UnknownTotal:    m.unknownTotal.Load(),
		ProhibitedTotal: m.prohibitedTotal.Load(),
		AvgQueryTimeNs:  avg,
		MinQueryTimeNs:  minTime,
		MaxQueryTimeNs:  m.queryTimeMax.Load(),
		Artifacts:       m.AllArtifactStats(),
	}
}

// Reset clears all metrics.
func (m *Metrics) Reset() {
	m.queriesTotal.Store(0)
	m.queriesMember.Store(0)
	m.unknownTotal.Store(0)
	m.prohibitedTotal.Store(0)
	m.queryTimeTotal.Store(0)
	m.queryTimeMin.Store(^uint64(0))
	m.queryTimeMax.Store(0)

	m.artifacts.Range(func(key, _ any) bool {
		m.artifacts.Delete(key)
		return true
	})
}
