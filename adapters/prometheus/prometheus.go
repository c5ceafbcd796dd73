// Package prometheus backs the framework's metrics interfaces with
// prometheus collectors. All collectors register on construction; use a
// dedicated registry per instance.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/axleworks/axle-go/core/command"
	"github.com/axleworks/axle-go/core/es"
	"github.com/axleworks/axle-go/core/eventbus"
	"github.com/axleworks/axle-go/core/metrics"
	"github.com/axleworks/axle-go/core/saga"
)

type promTimer struct{ t *prometheus.Timer }

func (p promTimer) ObserveDuration() { p.t.ObserveDuration() }

func startTimer(o prometheus.Observer) metrics.Timer {
	return promTimer{t: prometheus.NewTimer(o)}
}

// ESMetrics implements es.Metrics.
type ESMetrics struct {
	loadDuration  *prometheus.HistogramVec
	saveDuration  *prometheus.HistogramVec
	conflicts     *prometheus.CounterVec
	appended      *prometheus.CounterVec
	snapshots     *prometheus.CounterVec
	snapshotCache *prometheus.CounterVec
}

func NewESMetrics(reg prometheus.Registerer) *ESMetrics {
	m := &ESMetrics{
		loadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "axle", Subsystem: "repo", Name: "load_duration_seconds",
			Help:    "Aggregate load latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"aggregate_type"}),
		saveDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "axle", Subsystem: "repo", Name: "save_duration_seconds",
			Help:    "Aggregate save latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"aggregate_type"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "axle", Subsystem: "repo", Name: "concurrency_conflicts_total",
			Help: "Optimistic concurrency conflicts on save.",
		}, []string{"aggregate_type"}),
		appended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "axle", Subsystem: "store", Name: "events_appended_total",
			Help: "Events appended to the event store.",
		}, []string{"aggregate_type"}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "axle", Subsystem: "store", Name: "snapshots_created_total",
			Help: "Snapshots materialized.",
		}, []string{"aggregate_type"}),
		snapshotCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "axle", Subsystem: "store", Name: "snapshot_cache_total",
			Help: "Snapshot cache lookups by outcome.",
		}, []string{"aggregate_type", "outcome"}),
	}
	reg.MustRegister(m.loadDuration, m.saveDuration, m.conflicts, m.appended, m.snapshots, m.snapshotCache)
	return m
}

func (m *ESMetrics) RepoLoadDuration(aggType string) metrics.Timer {
	return startTimer(m.loadDuration.WithLabelValues(aggType))
}

func (m *ESMetrics) RepoSaveDuration(aggType string) metrics.Timer {
	return startTimer(m.saveDuration.WithLabelValues(aggType))
}

func (m *ESMetrics) ConcurrencyConflict(aggType string) {
	m.conflicts.WithLabelValues(aggType).Inc()
}

func (m *ESMetrics) EventsAppended(aggType string, count int) {
	m.appended.WithLabelValues(aggType).Add(float64(count))
}

func (m *ESMetrics) SnapshotCreated(aggType string) {
	m.snapshots.WithLabelValues(aggType).Inc()
}

func (m *ESMetrics) SnapshotCacheHit(aggType string) {
	m.snapshotCache.WithLabelValues(aggType, "hit").Inc()
}

func (m *ESMetrics) SnapshotCacheMiss(aggType string) {
	m.snapshotCache.WithLabelValues(aggType, "miss").Inc()
}

var _ es.Metrics = (*ESMetrics)(nil)

// CommandMetrics implements command.Metrics.
type CommandMetrics struct {
	dispatchDuration *prometheus.HistogramVec
	failures         *prometheus.CounterVec
}

func NewCommandMetrics(reg prometheus.Registerer) *CommandMetrics {
	m := &CommandMetrics{
		dispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "axle", Subsystem: "command", Name: "dispatch_duration_seconds",
			Help:    "Command dispatch latency, handler included.",
			Buckets: prometheus.DefBuckets,
		}, []string{"payload_type"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "axle", Subsystem: "command", Name: "dispatch_failures_total",
			Help: "Commands resolved on the failure path.",
		}, []string{"payload_type"}),
	}
	reg.MustRegister(m.dispatchDuration, m.failures)
	return m
}

func (m *CommandMetrics) DispatchDuration(payloadType string) metrics.Timer {
	return startTimer(m.dispatchDuration.WithLabelValues(payloadType))
}

func (m *CommandMetrics) DispatchFailed(payloadType string) {
	m.failures.WithLabelValues(payloadType).Inc()
}

var _ command.Metrics = (*CommandMetrics)(nil)

// EventBusMetrics implements eventbus.Metrics.
type EventBusMetrics struct {
	published *prometheus.CounterVec
	failures  *prometheus.CounterVec
}

func NewEventBusMetrics(reg prometheus.Registerer) *EventBusMetrics {
	m := &EventBusMetrics{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "axle", Subsystem: "eventbus", Name: "events_published_total",
			Help: "Events handed to a cluster for delivery.",
		}, []string{"cluster"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "axle", Subsystem: "eventbus", Name: "listener_failures_total",
			Help: "Listener invocations that returned an error.",
		}, []string{"cluster"}),
	}
	reg.MustRegister(m.published, m.failures)
	return m
}

func (m *EventBusMetrics) EventsPublished(cluster string, count int) {
	m.published.WithLabelValues(cluster).Add(float64(count))
}

func (m *EventBusMetrics) ListenerFailure(cluster string) {
	m.failures.WithLabelValues(cluster).Inc()
}

var _ eventbus.Metrics = (*EventBusMetrics)(nil)

// SagaMetrics implements saga.Metrics.
type SagaMetrics struct {
	created  *prometheus.CounterVec
	ended    *prometheus.CounterVec
	handled  *prometheus.HistogramVec
	failures *prometheus.CounterVec
}

func NewSagaMetrics(reg prometheus.Registerer) *SagaMetrics {
	m := &SagaMetrics{
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "axle", Subsystem: "saga", Name: "created_total",
			Help: "Saga instances spawned.",
		}, []string{"saga_type"}),
		ended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "axle", Subsystem: "saga", Name: "ended_total",
			Help: "Saga instances ended and removed.",
		}, []string{"saga_type"}),
		handled: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "axle", Subsystem: "saga", Name: "event_handling_duration_seconds",
			Help:    "Per-event saga management latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"saga_type"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "axle", Subsystem: "saga", Name: "handler_failures_total",
			Help: "Saga handlers that returned an error.",
		}, []string{"saga_type"}),
	}
	reg.MustRegister(m.created, m.ended, m.handled, m.failures)
	return m
}

func (m *SagaMetrics) SagasCreated(sagaType string) {
	m.created.WithLabelValues(sagaType).Inc()
}

func (m *SagaMetrics) SagasEnded(sagaType string) {
	m.ended.WithLabelValues(sagaType).Inc()
}

func (m *SagaMetrics) EventsHandled(sagaType string) metrics.Timer {
	return startTimer(m.handled.WithLabelValues(sagaType))
}

func (m *SagaMetrics) HandlerFailure(sagaType string) {
	m.failures.WithLabelValues(sagaType).Inc()
}

var _ saga.Metrics = (*SagaMetrics)(nil)
