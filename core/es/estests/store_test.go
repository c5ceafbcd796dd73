package estests

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axleworks/axle-go/core/es"
	"github.com/axleworks/axle-go/core/es/estests/domain"
)

func TestStore_AppendAndLoad(t *testing.T) {
	te := es.StartTestEnv(t, es.WithAggregates(new(domain.Account)))

	res := te.Append(context.Background(), "account", "a-1", es.NewStream,
		&domain.Deposited{Amount: 10},
		&domain.Deposited{Amount: 5},
	)
	require.EqualValues(t, 1, res.LastSequence)

	envs, err := te.Store.Load(context.Background(), "account", "a-1")
	require.NoError(t, err)
	require.Len(t, envs, 2)

	for i, env := range envs {
		assert.EqualValues(t, i, env.SequenceNumber)
		assert.Equal(t, "account", env.AggregateType)
		assert.Equal(t, "a-1", env.AggregateID)
		assert.NoError(t, env.Validate())
	}
}

func TestStore_LoadFromSequence(t *testing.T) {
	te := es.StartTestEnv(t, es.WithAggregates(new(domain.Account)))

	te.Append(context.Background(), "account", "a-1", es.NewStream,
		&domain.Deposited{Amount: 1},
		&domain.Deposited{Amount: 2},
		&domain.Deposited{Amount: 3},
	)

	envs, err := te.Store.Load(context.Background(), "account", "a-1", es.WithFromSequence(1))
	require.NoError(t, err)
	require.Len(t, envs, 2)
	assert.EqualValues(t, 1, envs[0].SequenceNumber)
	assert.EqualValues(t, 2, envs[1].SequenceNumber)
}

func TestStore_NotFound(t *testing.T) {
	te := es.StartTestEnv(t)
	_, err := te.Store.Load(context.Background(), "account", "missing")
	require.ErrorIs(t, err, es.ErrAggregateNotFound)
}

func TestStore_OptimisticConflict(t *testing.T) {
	te := es.StartTestEnv(t, es.WithAggregates(new(domain.Account)))

	te.Append(context.Background(), "account", "a-1", es.NewStream, &domain.Deposited{Amount: 1})

	// stale writer still expects an empty stream
	env := es.Envelope{
		ID:             "stale",
		SequenceNumber: 0,
		AggregateType:  "account",
		AggregateID:    "a-1",
		Type:           "stale",
		OccurredAt:     time.Now(),
	}
	_, err := te.Store.Append(context.Background(), "account", "a-1", es.NewStream, []es.Envelope{env})
	require.ErrorIs(t, err, es.ErrConcurrencyConflict)
}

func TestStore_Subscribe_ReplayThenLive(t *testing.T) {
	te := es.StartTestEnv(t, es.WithAggregates(new(domain.Account)))

	te.Append(context.Background(), "account", "a-1", es.NewStream,
		&domain.Deposited{Amount: 1},
		&domain.Deposited{Amount: 2},
	)

	sub, err := te.Store.Subscribe(context.Background(), es.WithDeliverPolicy(es.DeliverAllPolicy))
	require.NoError(t, err)
	defer sub.Cancel()

	te.Append(context.Background(), "account", "a-1", es.Version(1), &domain.Deposited{Amount: 3})

	var got []es.Version
	timeout := time.After(2 * time.Second)
	for len(got) < 3 {
		select {
		case env := <-sub.Chan():
			got = append(got, env.SequenceNumber)
		case <-timeout:
			t.Fatalf("timed out, got %v", got)
		}
	}
	assert.Equal(t, []es.Version{0, 1, 2}, got)
}

func TestStore_Subscribe_Filtered(t *testing.T) {
	te := es.StartTestEnv(t, es.WithAggregates(new(domain.Account)))

	sub, err := te.Store.Subscribe(context.Background(),
		es.WithFilters(es.StreamFilter{AggregateID: "a-2"}),
	)
	require.NoError(t, err)
	defer sub.Cancel()

	te.Append(context.Background(), "account", "a-1", es.NewStream, &domain.Deposited{Amount: 1})
	te.Append(context.Background(), "account", "a-2", es.NewStream, &domain.Deposited{Amount: 2})

	select {
	case env := <-sub.Chan():
		assert.Equal(t, "a-2", env.AggregateID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for filtered event")
	}
}
