package es

import "github.com/axleworks/axle-go/core/metrics"

// Metrics is the instrumentation hook for the event sourcing pillar.
// Implementations must be safe for concurrent use.
type Metrics interface {
	RepoLoadDuration(aggType string) metrics.Timer
	RepoSaveDuration(aggType string) metrics.Timer
	ConcurrencyConflict(aggType string)
	EventsAppended(aggType string, count int)

	SnapshotCreated(aggType string)
	SnapshotCacheHit(aggType string)
	SnapshotCacheMiss(aggType string)
}

type nopMetrics struct{}

func (nopMetrics) RepoLoadDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopMetrics) RepoSaveDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopMetrics) ConcurrencyConflict(string)            {}
func (nopMetrics) EventsAppended(string, int)            {}
func (nopMetrics) SnapshotCreated(string)                {}
func (nopMetrics) SnapshotCacheHit(string)               {}
func (nopMetrics) SnapshotCacheMiss(string)              {}

// NopMetrics returns a Metrics implementation that discards everything.
func NopMetrics() Metrics { return nopMetrics{} }
