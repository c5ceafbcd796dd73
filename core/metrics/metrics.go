// Package metrics defines small instrumentation interfaces so that core
// packages can report counters and latencies without depending on a concrete
// backend. The prometheus adapter provides a real implementation; everything
// defaults to no-ops.
package metrics

// Counter is a monotonically increasing metric.
type Counter interface {
	Inc()
	// Add increments the counter by delta. delta must be >= 0.
	Add(delta float64)
}

// Gauge is a metric that can go up and down.
type Gauge interface {
	Set(value float64)
	Inc()
	Dec()
	Add(delta float64)
}

// Histogram samples observations into configurable buckets.
type Histogram interface {
	Observe(value float64)
}

// Timer measures the duration of a single operation. Call ObserveDuration
// when the operation completes:
//
//	defer m.RepoLoadDuration("account").ObserveDuration()
type Timer interface {
	ObserveDuration()
}
