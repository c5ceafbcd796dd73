package sqlite

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axleworks/axle-go/core/es"
	"github.com/axleworks/axle-go/core/message"
	"github.com/axleworks/axle-go/core/saga"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(context.Background(), slog.Default(), filepath.Join(t.TempDir(), "axle.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func envelope(aggID string, seq es.Version, data string) es.Envelope {
	return es.Envelope{
		ID:             gonanoid.Must(),
		SequenceNumber: seq,
		AggregateType:  "account",
		AggregateID:    aggID,
		Type:           "test.Event",
		OccurredAt:     time.Now(),
		Data:           []byte(data),
	}
}

func TestEventStore_AppendAndLoad(t *testing.T) {
	store := NewEventStore(openTestDB(t))

	envs := []es.Envelope{
		envelope("a-1", 0, `{"n":1}`),
		envelope("a-1", 1, `{"n":2}`),
	}
	envs[1].Metadata = map[string]string{"trace_id": "t-1"}

	res, err := store.Append(context.Background(), "account", "a-1", es.NewStream, envs)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.LastSequence)

	loaded, err := store.Load(context.Background(), "account", "a-1")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	for i, env := range loaded {
		assert.EqualValues(t, i, env.SequenceNumber)
		assert.Equal(t, "account", env.AggregateType)
		assert.Equal(t, "a-1", env.AggregateID)
		assert.NoError(t, env.Validate())
	}
	assert.Equal(t, map[string]string{"trace_id": "t-1"}, loaded[1].Metadata)
	assert.JSONEq(t, `{"n":1}`, string(loaded[0].Data))
}

func TestEventStore_LoadFromSequence(t *testing.T) {
	store := NewEventStore(openTestDB(t))

	_, err := store.Append(context.Background(), "account", "a-1", es.NewStream,
		[]es.Envelope{envelope("a-1", 0, `{}`), envelope("a-1", 1, `{}`), envelope("a-1", 2, `{}`)})
	require.NoError(t, err)

	loaded, err := store.Load(context.Background(), "account", "a-1", es.WithFromSequence(2))
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.EqualValues(t, 2, loaded[0].SequenceNumber)
}

func TestEventStore_NotFound(t *testing.T) {
	store := NewEventStore(openTestDB(t))
	_, err := store.Load(context.Background(), "account", "missing")
	require.ErrorIs(t, err, es.ErrAggregateNotFound)
}

func TestEventStore_OptimisticConflict(t *testing.T) {
	store := NewEventStore(openTestDB(t))

	_, err := store.Append(context.Background(), "account", "a-1", es.NewStream,
		[]es.Envelope{envelope("a-1", 0, `{}`)})
	require.NoError(t, err)

	// stale writer still expects the empty stream
	_, err = store.Append(context.Background(), "account", "a-1", es.NewStream,
		[]es.Envelope{envelope("a-1", 0, `{}`)})
	require.ErrorIs(t, err, es.ErrConcurrencyConflict)

	// correct expected version succeeds
	_, err = store.Append(context.Background(), "account", "a-1", es.Version(0),
		[]es.Envelope{envelope("a-1", 1, `{}`)})
	require.NoError(t, err)
}

func TestEventStore_RejectsGappyBatch(t *testing.T) {
	store := NewEventStore(openTestDB(t))

	_, err := store.Append(context.Background(), "account", "a-1", es.NewStream,
		[]es.Envelope{envelope("a-1", 0, `{}`), envelope("a-1", 2, `{}`)})
	require.Error(t, err)

	// nothing of the batch was stored
	_, err = store.Load(context.Background(), "account", "a-1")
	require.ErrorIs(t, err, es.ErrAggregateNotFound)
}

func TestSnapshotter_RoundTrip(t *testing.T) {
	s := NewSnapshotter(openTestDB(t))

	_, err := s.LoadSnapshot(context.Background(), "account", "a-1")
	require.ErrorIs(t, err, es.ErrSnapshotNotFound)

	first := &es.Snapshot{
		SnapshotID:     "ss-1",
		AggregateType:  "account",
		AggregateID:    "a-1",
		SequenceNumber: 4,
		CreatedAt:      time.Now(),
		SchemaVersion:  1,
		Encoding:       "json",
		Data:           []byte(`{"balance":10}`),
	}
	require.NoError(t, s.SaveSnapshot(context.Background(), first))

	loaded, err := s.LoadSnapshot(context.Background(), "account", "a-1")
	require.NoError(t, err)
	assert.Equal(t, "ss-1", loaded.SnapshotID)
	assert.EqualValues(t, 4, loaded.SequenceNumber)
	assert.JSONEq(t, `{"balance":10}`, string(loaded.Data))

	// a newer snapshot replaces the old one
	second := *first
	second.SnapshotID = "ss-2"
	second.SequenceNumber = 9
	require.NoError(t, s.SaveSnapshot(context.Background(), &second))

	loaded, err = s.LoadSnapshot(context.Background(), "account", "a-1")
	require.NoError(t, err)
	assert.Equal(t, "ss-2", loaded.SnapshotID)
	assert.EqualValues(t, 9, loaded.SequenceNumber)
}

type paymentSaga struct {
	saga.BaseSaga

	Step string `json:"step"`
}

func (s *paymentSaga) HandleEvent(context.Context, message.EventMessage) error { return nil }

func TestSagaStore_Lifecycle(t *testing.T) {
	store := NewSagaStore(openTestDB(t))
	store.RegisterType("payment", func() saga.Saga {
		return &paymentSaga{BaseSaga: saga.NewBaseSaga()}
	})

	s := &paymentSaga{BaseSaga: saga.NewBaseSaga(), Step: "authorized"}
	s.AssociateWith(saga.Associate("payment_id", "p-1"))
	s.AssociateWith(saga.Associate("order_id", "o-1"))
	require.NoError(t, store.Add(context.Background(), "payment", s))

	ids, err := store.Find(context.Background(), "payment", saga.Associate("order_id", "o-1"))
	require.NoError(t, err)
	require.Equal(t, []string{s.SagaID()}, ids)

	loaded, err := store.Load(context.Background(), "payment", s.SagaID())
	require.NoError(t, err)
	restored := loaded.(*paymentSaga)
	assert.Equal(t, s.SagaID(), restored.SagaID())
	assert.Equal(t, "authorized", restored.Step)
	assert.True(t, restored.IsActive())
	assert.ElementsMatch(t, s.AssociationValues(), restored.AssociationValues())

	// association changes commit as a replacement of the index rows
	restored.RemoveAssociation(saga.Associate("order_id", "o-1"))
	restored.Step = "captured"
	require.NoError(t, store.Commit(context.Background(), "payment", restored))

	ids, err = store.Find(context.Background(), "payment", saga.Associate("order_id", "o-1"))
	require.NoError(t, err)
	assert.Empty(t, ids)
	ids, err = store.Find(context.Background(), "payment", saga.Associate("payment_id", "p-1"))
	require.NoError(t, err)
	assert.Equal(t, []string{s.SagaID()}, ids)

	// ending the saga removes state and index entries
	restored.End()
	require.NoError(t, store.Commit(context.Background(), "payment", restored))

	_, err = store.Load(context.Background(), "payment", s.SagaID())
	require.ErrorIs(t, err, saga.ErrSagaNotFound)
	ids, err = store.Find(context.Background(), "payment", saga.Associate("payment_id", "p-1"))
	require.NoError(t, err)
	assert.Empty(t, ids)
}
