package estests

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axleworks/axle-go/core/es"
	"github.com/axleworks/axle-go/core/es/estests/domain"
)

// balanceProjection keeps a per-account balance read model.
type balanceProjection struct {
	mu       sync.Mutex
	balances map[string]int64
	handled  int
}

func newBalanceProjection() *balanceProjection {
	return &balanceProjection{balances: map[string]int64{}}
}

func (p *balanceProjection) Name() string { return "balances" }

func (p *balanceProjection) HandleEnvelope(_ context.Context, env es.Envelope, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handled++
	switch e := event.(type) {
	case *domain.Deposited:
		p.balances[env.AggregateID] += e.Amount
	case *domain.Withdrawn:
		p.balances[env.AggregateID] -= e.Amount
	}
	return nil
}

func (p *balanceProjection) snapshot() (map[string]int64, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]int64, len(p.balances))
	for k, v := range p.balances {
		out[k] = v
	}
	return out, p.handled
}

// The projector replays stored history first, then keeps following live
// appends.
func TestProjector_ReplayThenLive(t *testing.T) {
	te := es.StartTestEnv(t, es.WithAggregates(new(domain.Account)))

	te.Append(context.Background(), "account", "a-1", es.NewStream,
		&domain.Deposited{Amount: 100},
		&domain.Withdrawn{Amount: 40},
	)

	projection := newBalanceProjection()
	p := es.NewProjector(te.Store, te.Registry, projection)
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	require.Eventually(t, func() bool {
		_, handled := projection.snapshot()
		return handled == 2
	}, 2*time.Second, 10*time.Millisecond)

	te.Append(context.Background(), "account", "a-2", es.NewStream, &domain.Deposited{Amount: 5})

	require.Eventually(t, func() bool {
		_, handled := projection.snapshot()
		return handled == 3
	}, 2*time.Second, 10*time.Millisecond)

	balances, _ := projection.snapshot()
	assert.EqualValues(t, 60, balances["a-1"])
	assert.EqualValues(t, 5, balances["a-2"])
}

func TestProjector_Filtered(t *testing.T) {
	te := es.StartTestEnv(t, es.WithAggregates(new(domain.Account)))

	projection := newBalanceProjection()
	p := es.NewProjector(te.Store, te.Registry, projection,
		es.WithProjectorFilters(es.StreamFilter{AggregateID: "a-1"}),
	)
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	te.Append(context.Background(), "account", "a-1", es.NewStream, &domain.Deposited{Amount: 1})
	te.Append(context.Background(), "account", "a-2", es.NewStream, &domain.Deposited{Amount: 2})

	require.Eventually(t, func() bool {
		balances, _ := projection.snapshot()
		return balances["a-1"] == 1
	}, 2*time.Second, 10*time.Millisecond)

	balances, handled := projection.snapshot()
	assert.Equal(t, 1, handled)
	assert.NotContains(t, balances, "a-2")
}
