package prometheus

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestESMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewESMetrics(reg)

	m.ConcurrencyConflict("account")
	m.ConcurrencyConflict("account")
	m.EventsAppended("account", 3)
	m.SnapshotCreated("account")
	m.SnapshotCacheHit("account")
	m.SnapshotCacheMiss("account")
	m.RepoLoadDuration("account").ObserveDuration()
	m.RepoSaveDuration("account").ObserveDuration()

	assert.EqualValues(t, 2, testutil.ToFloat64(m.conflicts.WithLabelValues("account")))
	assert.EqualValues(t, 3, testutil.ToFloat64(m.appended.WithLabelValues("account")))
	assert.EqualValues(t, 1, testutil.ToFloat64(m.snapshots.WithLabelValues("account")))
	assert.EqualValues(t, 1, testutil.ToFloat64(m.snapshotCache.WithLabelValues("account", "hit")))
	assert.EqualValues(t, 1, testutil.ToFloat64(m.snapshotCache.WithLabelValues("account", "miss")))

	// histograms registered and observed without blowing up
	count, err := testutil.GatherAndCount(reg,
		"axle_repo_load_duration_seconds", "axle_repo_save_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCommandAndBusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	cm := NewCommandMetrics(reg)
	bm := NewEventBusMetrics(reg)
	sm := NewSagaMetrics(reg)

	cm.DispatchDuration("pay.Order").ObserveDuration()
	cm.DispatchFailed("pay.Order")
	bm.EventsPublished("default", 5)
	bm.ListenerFailure("default")
	sm.SagasCreated("order")
	sm.SagasEnded("order")
	sm.EventsHandled("order").ObserveDuration()
	sm.HandlerFailure("order")

	assert.EqualValues(t, 1, testutil.ToFloat64(cm.failures.WithLabelValues("pay.Order")))
	assert.EqualValues(t, 5, testutil.ToFloat64(bm.published.WithLabelValues("default")))
	assert.EqualValues(t, 1, testutil.ToFloat64(bm.failures.WithLabelValues("default")))
	assert.EqualValues(t, 1, testutil.ToFloat64(sm.created.WithLabelValues("order")))
	assert.EqualValues(t, 1, testutil.ToFloat64(sm.ended.WithLabelValues("order")))
	assert.EqualValues(t, 1, testutil.ToFloat64(sm.failures.WithLabelValues("order")))
}
