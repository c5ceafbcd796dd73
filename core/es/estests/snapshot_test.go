package estests

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axleworks/axle-go/core/es"
	"github.com/axleworks/axle-go/core/es/estests/domain"
)

func TestSnapshot_RestoreAndReplayAbove(t *testing.T) {
	var (
		te   = es.StartTestEnv(t, es.WithAggregates(new(domain.Account)))
		repo = es.NewTypedRepositoryFrom[*domain.Account](slog.Default(), te.Repository())
	)

	a, err := repo.Create(context.Background(), "acc-1")
	require.NoError(t, err)
	require.NoError(t, a.Deposit(50))
	require.NoError(t, repo.Save(context.Background(), a, es.WithSnapshot()))

	ss, err := te.Snapshotter.LoadSnapshot(context.Background(), "account", "acc-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, ss.SequenceNumber)

	// events after the snapshot
	require.NoError(t, a.Deposit(25))
	require.NoError(t, repo.Save(context.Background(), a))

	loaded, err := repo.GetByID(context.Background(), "acc-1", es.WithSnapshot())
	require.NoError(t, err)
	assert.EqualValues(t, 75, loaded.Balance)
	assert.EqualValues(t, 2, loaded.GetVersion())
	// only the post-snapshot event was replayed onto the restored state
	assert.Equal(t, 2, loaded.NumDeposits)
}

func TestSnapshot_AutomaticEveryN(t *testing.T) {
	var (
		te = es.StartTestEnv(t,
			es.WithAggregates(new(domain.Account)),
			es.WithRepoOptions(es.WithSnapshotEvery(5)),
		)
		repo = es.NewTypedRepositoryFrom[*domain.Account](slog.Default(), te.Repository())
	)

	a, err := repo.Create(context.Background(), "acc-1")
	require.NoError(t, err)

	_, err = te.Snapshotter.LoadSnapshot(context.Background(), "account", "acc-1")
	require.ErrorIs(t, err, es.ErrSnapshotNotFound)

	for i := 0; i < 6; i++ {
		require.NoError(t, a.Deposit(1))
	}
	require.NoError(t, repo.Save(context.Background(), a)) // crosses 5 committed events

	ss, err := te.Snapshotter.LoadSnapshot(context.Background(), "account", "acc-1")
	require.NoError(t, err)
	assert.EqualValues(t, 6, ss.SequenceNumber)
}

func TestSnapshot_CacheServesRepeatLoads(t *testing.T) {
	var (
		te = es.StartTestEnv(t,
			es.WithAggregates(new(domain.Account)),
			es.WithRepoOptions(es.WithSnapshotCacheLRU(16)),
		)
		repo = es.NewTypedRepositoryFrom[*domain.Account](slog.Default(), te.Repository())
	)

	a, err := repo.Create(context.Background(), "acc-1")
	require.NoError(t, err)
	require.NoError(t, a.Deposit(10))
	require.NoError(t, repo.Save(context.Background(), a, es.WithSnapshot()))

	for i := 0; i < 3; i++ {
		loaded, err := repo.GetByID(context.Background(), "acc-1", es.WithSnapshot())
		require.NoError(t, err)
		assert.EqualValues(t, 10, loaded.Balance)
	}
}
