package elmrequirements

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks analysis counters using lock-free atomic operations.
// All methods are safe for concurrent use, so one Metrics value may be shared
// by analyzers running in parallel.
type Metrics struct {
	// Run counts
	runsTotal  atomic.Uint64
	runsFailed atomic.Uint64

	// Timing (stored as nanoseconds)
	runTimeTotal atomic.Uint64
	runTimeMin   atomic.Uint64
	runTimeMax   atomic.Uint64

	// Library resolution
	cacheHits   atomic.Uint64
	cacheMisses atomic.Uint64

	// Traversal
	definitionsVisited   atomic.Uint64
	requirementsReported atomic.Uint64
	unboundSynthesized   atomic.Uint64
	unresolvedProperties atomic.Uint64

	// Per-library visit counts
	libraryVisits sync.Map // map[string]*atomic.Uint64
}

// NewMetrics creates a new Metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	// Initialize min to max uint64 so first value becomes the minimum
	m.runTimeMin.Store(^uint64(0))
	return m
}

// --- Recording Methods ---

// RecordRun records a completed analysis run.
func (m *Metrics) RecordRun(duration time.Duration, failed bool) {
	m.runsTotal.Add(1)
	if failed {
		m.runsFailed.Add(1)
	}

	ns := uint64(duration.Nanoseconds()) //nolint:gosec // durations of finished runs are positive
	m.runTimeTotal.Add(ns)

	for {
		old := m.runTimeMin.Load()
		if ns >= old {
			break
		}
		if m.runTimeMin.CompareAndSwap(old, ns) {
			break
		}
	}

	for {
		old := m.runTimeMax.Load()
		if ns <= old {
			break
		}
		if m.runTimeMax.CompareAndSwap(old, ns) {
			break
		}
	}
}

// RecordCacheHit records a library cache hit.
func (m *Metrics) RecordCacheHit() {
	m.cacheHits.Add(1)
}

// RecordCacheMiss records a library cache miss.
func (m *Metrics) RecordCacheMiss() {
	m.cacheMisses.Add(1)
}

// RecordDefinitionVisit records the analysis of one definition in library.
func (m *Metrics) RecordDefinitionVisit(library string) {
	m.definitionsVisited.Add(1)
	v, ok := m.libraryVisits.Load(library)
	if !ok {
		v, _ = m.libraryVisits.LoadOrStore(library, &atomic.Uint64{})
	}
	v.(*atomic.Uint64).Add(1)
}

// RecordRequirement records a reported requirement.
func (m *Metrics) RecordRequirement() {
	m.requirementsReported.Add(1)
}

// RecordUnboundRequirement records a synthesized unbound-type requirement.
func (m *Metrics) RecordUnboundRequirement() {
	m.unboundSynthesized.Add(1)
}

// RecordUnresolvedProperty records a property whose source type could not
// be determined.
func (m *Metrics) RecordUnresolvedProperty() {
	m.unresolvedProperties.Add(1)
}

// --- Query Methods ---

// RunsTotal returns the number of runs recorded.
func (m *Metrics) RunsTotal() uint64 {
	return m.runsTotal.Load()
}

// RunsFailed returns the number of runs that ended with an error.
func (m *Metrics) RunsFailed() uint64 {
	return m.runsFailed.Load()
}

// AverageRunTime returns the average run duration.
func (m *Metrics) AverageRunTime() time.Duration {
	total := m.runsTotal.Load()
	if total == 0 {
		return 0
	}
	return time.Duration(m.runTimeTotal.Load() / total) //nolint:gosec // nanoseconds within int64 range
}

// MinRunTime returns the minimum run duration.
func (m *Metrics) MinRunTime() time.Duration {
	minVal := m.runTimeMin.Load()
	if minVal == ^uint64(0) {
		return 0
	}
	return time.Duration(minVal) //nolint:gosec // nanoseconds within int64 range
}

// MaxRunTime returns the maximum run duration.
func (m *Metrics) MaxRunTime() time.Duration {
	return time.Duration(m.runTimeMax.Load()) //nolint:gosec // nanoseconds within int64 range
}

// CacheHits returns the total library cache hits.
func (m *Metrics) CacheHits() uint64 {
	return m.cacheHits.Load()
}

// CacheMisses returns the total library cache misses.
func (m *Metrics) CacheMisses() uint64 {
	return m.cacheMisses.Load()
}

// CacheHitRate returns the cache hit rate (0.0 to 1.0).
func (m *Metrics) CacheHitRate() float64 {
	hits := m.cacheHits.Load()
	total := hits + m.cacheMisses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// DefinitionsVisited returns the number of analyzed definitions.
func (m *Metrics) DefinitionsVisited() uint64 {
	return m.definitionsVisited.Load()
}

// RequirementsReported returns the number of reported requirements.
func (m *Metrics) RequirementsReported() uint64 {
	return m.requirementsReported.Load()
}

// UnboundSynthesized returns the number of synthesized unbound-type requirements.
func (m *Metrics) UnboundSynthesized() uint64 {
	return m.unboundSynthesized.Load()
}

// UnresolvedProperties returns the number of properties skipped because
// their source type was unknown.
func (m *Metrics) UnresolvedProperties() uint64 {
	return m.unresolvedProperties.Load()
}

// LibraryVisits returns the number of definitions analyzed in library.
func (m *Metrics) LibraryVisits(library string) uint64 {
	v, ok := m.libraryVisits.Load(library)
	if !ok {
		return 0
	}
	return v.(*atomic.Uint64).Load()
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	RunsTotal            uint64        `json:"runsTotal" yaml:"runsTotal"`
	RunsFailed           uint64        `json:"runsFailed" yaml:"runsFailed"`
	AverageRunTime       time.Duration `json:"averageRunTime" yaml:"averageRunTime"`
	CacheHits            uint64        `json:"cacheHits" yaml:"cacheHits"`
	CacheMisses          uint64        `json:"cacheMisses" yaml:"cacheMisses"`
	DefinitionsVisited   uint64        `json:"definitionsVisited" yaml:"definitionsVisited"`
	RequirementsReported uint64        `json:"requirementsReported" yaml:"requirementsReported"`
	UnboundSynthesized   uint64        `json:"unboundSynthesized" yaml:"unboundSynthesized"`
	UnresolvedProperties uint64        `json:"unresolvedProperties" yaml:"unresolvedProperties"`
}

// Snapshot returns the current counters.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		RunsTotal:            m.RunsTotal(),
		RunsFailed:           m.RunsFailed(),
		AverageRunTime:       m.AverageRunTime(),
		CacheHits:            m.CacheHits(),
		CacheMisses:          m.CacheMisses(),
		DefinitionsVisited:   m.DefinitionsVisited(),
		RequirementsReported: m.RequirementsReported(),
		UnboundSynthesized:   m.UnboundSynthesized(),
		UnresolvedProperties: m.UnresolvedProperties(),
	}
}

// Reset clears all counters.
func (m *Metrics) Reset() {
	m.runsTotal.Store(0)
	m.runsFailed.Store(0)
	m.runTimeTotal.Store(0)
	m.runTimeMin.Store(^uint64(0))
	m.runTimeMax.Store(0)
	m.cacheHits.Store(0)
	m.cacheMisses.Store(0)
	m.definitionsVisited.Store(0)
	m.requirementsReported.Store(0)
	m.unboundSynthesized.Store(0)
	m.unresolvedProperties.Store(0)
	m.libraryVisits.Range(func(k, _ any) bool {
		m.libraryVisits.Delete(k)
		return true
	})
}
