package saga

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axleworks/axle-go/core/ds"
	"github.com/axleworks/axle-go/core/message"
	"github.com/axleworks/axle-go/core/perkey"
	"github.com/axleworks/axle-go/internal/reflector"
)

type (
	orderPlaced    struct{ OrderID string }
	orderPaid      struct{ OrderID string }
	orderShipped   struct{ OrderID, ShipmentID string }
	orderCancelled struct{ OrderID string }
)

// orderSaga tracks one order from placement to shipment or cancellation.
type orderSaga struct {
	BaseSaga

	mu      sync.Mutex
	handled []string
}

func (s *orderSaga) HandleEvent(_ context.Context, e message.EventMessage) error {
	s.mu.Lock()
	s.handled = append(s.handled, e.ID)
	s.mu.Unlock()

	switch p := e.Payload.(type) {
	case *orderShipped:
		s.AssociateWith(Associate("shipment_id", p.ShipmentID))
	case *orderCancelled:
		s.End()
	}
	return nil
}

func (s *orderSaga) handledEvents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.handled...)
}

func byOrderID(id func(e message.EventMessage) string) Extractor {
	return func(e message.EventMessage) []AssociationValue {
		return []AssociationValue{Associate("order_id", id(e))}
	}
}

func orderResolver() *Resolver {
	r := NewResolver()
	r.Bind(reflector.TypeInfoFor[orderPlaced]().Name, CreateIfNoneFound,
		byOrderID(func(e message.EventMessage) string { return e.Payload.(*orderPlaced).OrderID }))
	r.Bind(reflector.TypeInfoFor[orderPaid]().Name, CreateNone,
		byOrderID(func(e message.EventMessage) string { return e.Payload.(*orderPaid).OrderID }))
	r.Bind(reflector.TypeInfoFor[orderShipped]().Name, CreateNone,
		byOrderID(func(e message.EventMessage) string { return e.Payload.(*orderShipped).OrderID }))
	r.Bind(reflector.TypeInfoFor[orderCancelled]().Name, CreateNone,
		byOrderID(func(e message.EventMessage) string { return e.Payload.(*orderCancelled).OrderID }))
	return r
}

func newOrderManager(t *testing.T, repo *InMemoryRepository, resolver *Resolver) *Manager {
	t.Helper()
	m := NewManager(slog.Default(), repo, resolver, "order", func() Saga {
		s := &orderSaga{BaseSaga: NewBaseSaga()}
		return s
	})
	t.Cleanup(m.Close)
	return m
}

// requireIndexInvariant asserts that the association index equals exactly
// the union of the association values of all stored sagas.
func requireIndexInvariant(t *testing.T, repo *InMemoryRepository) {
	t.Helper()
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	want := map[indexKey]*ds.Set[string]{}
	for key, s := range repo.sagas {
		for _, av := range s.AssociationValues() {
			k := indexKey{sagaType: key.sagaType, av: av}
			if want[k] == nil {
				want[k] = ds.NewSet[string]()
			}
			want[k].Add(key.id)
		}
	}

	require.Len(t, repo.index, len(want))
	for k, ids := range want {
		got, ok := repo.index[k]
		require.True(t, ok, "missing index entry %v", k)
		assert.ElementsMatch(t, ids.Values(), got.Values())
	}
}

func TestManager_CreatesAndRoutes(t *testing.T) {
	repo := NewInMemoryRepository()
	m := newOrderManager(t, repo, orderResolver())

	require.NoError(t, m.HandleEvent(context.Background(), message.NewEvent(&orderPlaced{OrderID: "o-1"})))
	requireIndexInvariant(t, repo)

	ids, err := repo.Find(context.Background(), "order", Associate("order_id", "o-1"))
	require.NoError(t, err)
	require.Len(t, ids, 1)

	paid := message.NewEvent(&orderPaid{OrderID: "o-1"})
	require.NoError(t, m.HandleEvent(context.Background(), paid))

	s, err := repo.Load(context.Background(), "order", ids[0])
	require.NoError(t, err)
	assert.Contains(t, s.(*orderSaga).handledEvents(), paid.ID)
}

// CreateIfNoneFound spawns only when no existing saga matches.
func TestManager_CreateIfNoneFound(t *testing.T) {
	repo := NewInMemoryRepository()
	m := newOrderManager(t, repo, orderResolver())

	require.NoError(t, m.HandleEvent(context.Background(), message.NewEvent(&orderPlaced{OrderID: "o-1"})))
	require.NoError(t, m.HandleEvent(context.Background(), message.NewEvent(&orderPlaced{OrderID: "o-1"})))

	ids, err := repo.Find(context.Background(), "order", Associate("order_id", "o-1"))
	require.NoError(t, err)
	assert.Len(t, ids, 1, "second placement must reuse the existing saga")

	// a different order still spawns its own saga
	require.NoError(t, m.HandleEvent(context.Background(), message.NewEvent(&orderPlaced{OrderID: "o-2"})))
	ids, err = repo.Find(context.Background(), "order", Associate("order_id", "o-2"))
	require.NoError(t, err)
	assert.Len(t, ids, 1)
	requireIndexInvariant(t, repo)
}

// CreateAlways spawns a new saga per matching event even when matches exist.
func TestManager_CreateAlways(t *testing.T) {
	repo := NewInMemoryRepository()
	r := NewResolver()
	r.Bind(reflector.TypeInfoFor[orderPlaced]().Name, CreateAlways,
		byOrderID(func(e message.EventMessage) string { return e.Payload.(*orderPlaced).OrderID }))
	m := newOrderManager(t, repo, r)

	for i := 0; i < 3; i++ {
		require.NoError(t, m.HandleEvent(context.Background(), message.NewEvent(&orderPlaced{OrderID: "o-1"})))
	}

	ids, err := repo.Find(context.Background(), "order", Associate("order_id", "o-1"))
	require.NoError(t, err)
	assert.Len(t, ids, 3)
	requireIndexInvariant(t, repo)
}

// A saga matching an event through several association values is invoked
// once, not once per value.
func TestManager_InvokedOncePerEvent(t *testing.T) {
	repo := NewInMemoryRepository()
	r := orderResolver()
	m := newOrderManager(t, repo, r)

	require.NoError(t, m.HandleEvent(context.Background(), message.NewEvent(&orderPlaced{OrderID: "o-1"})))
	shipped := message.NewEvent(&orderShipped{OrderID: "o-1", ShipmentID: "s-9"})
	require.NoError(t, m.HandleEvent(context.Background(), shipped))
	requireIndexInvariant(t, repo)

	// this event resolves to both the order and the shipment association,
	// and both point at the same saga
	r.Bind(reflector.TypeInfoFor[orderPaid]().Name, CreateNone,
		func(e message.EventMessage) []AssociationValue {
			return []AssociationValue{
				Associate("order_id", e.Payload.(*orderPaid).OrderID),
				Associate("shipment_id", "s-9"),
			}
		})

	paid := message.NewEvent(&orderPaid{OrderID: "o-1"})
	require.NoError(t, m.HandleEvent(context.Background(), paid))

	ids, err := repo.Find(context.Background(), "order", Associate("order_id", "o-1"))
	require.NoError(t, err)
	require.Len(t, ids, 1)
	s, err := repo.Load(context.Background(), "order", ids[0])
	require.NoError(t, err)

	count := 0
	for _, id := range s.(*orderSaga).handledEvents() {
		if id == paid.ID {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

// Invocation rides the per-key scheduler's synchronous path, so a cancelled
// context surfaces from HandleEvent instead of silently skipping sagas.
func TestManager_CancelledContext(t *testing.T) {
	repo := NewInMemoryRepository()
	m := newOrderManager(t, repo, orderResolver())

	require.NoError(t, m.HandleEvent(context.Background(), message.NewEvent(&orderPlaced{OrderID: "o-1"})))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.HandleEvent(ctx, message.NewEvent(&orderPaid{OrderID: "o-1"}))
	require.ErrorIs(t, err, context.Canceled)
}

// A closed manager rejects further events instead of hanging.
func TestManager_Closed(t *testing.T) {
	repo := NewInMemoryRepository()
	m := NewManager(slog.Default(), repo, orderResolver(), "order", func() Saga {
		return &orderSaga{BaseSaga: NewBaseSaga()}
	})

	require.NoError(t, m.HandleEvent(context.Background(), message.NewEvent(&orderPlaced{OrderID: "o-1"})))
	m.Close()

	err := m.HandleEvent(context.Background(), message.NewEvent(&orderPaid{OrderID: "o-1"}))
	require.ErrorIs(t, err, perkey.ErrSchedulerClosed)
}

// An ended saga disappears from the repository and the index, and stops
// receiving events.
func TestManager_EndRemovesSaga(t *testing.T) {
	repo := NewInMemoryRepository()
	m := newOrderManager(t, repo, orderResolver())

	require.NoError(t, m.HandleEvent(context.Background(), message.NewEvent(&orderPlaced{OrderID: "o-1"})))
	require.NoError(t, m.HandleEvent(context.Background(), message.NewEvent(&orderCancelled{OrderID: "o-1"})))

	ids, err := repo.Find(context.Background(), "order", Associate("order_id", "o-1"))
	require.NoError(t, err)
	assert.Empty(t, ids)
	requireIndexInvariant(t, repo)

	// no saga left, CreateNone event goes nowhere
	require.NoError(t, m.HandleEvent(context.Background(), message.NewEvent(&orderPaid{OrderID: "o-1"})))
	assert.Empty(t, repo.sagas)
}

// Index invariant holds across an arbitrary associate/dissociate/end
// sequence driven through event handling.
func TestRepository_IndexInvariant(t *testing.T) {
	repo := NewInMemoryRepository()

	s := &orderSaga{BaseSaga: NewBaseSaga()}
	s.AssociateWith(Associate("order_id", "o-1"))
	require.NoError(t, repo.Add(context.Background(), "order", s))
	requireIndexInvariant(t, repo)

	s.AssociateWith(Associate("customer_id", "c-7"))
	s.AssociateWith(Associate("order_id", "o-2"))
	require.NoError(t, repo.Commit(context.Background(), "order", s))
	requireIndexInvariant(t, repo)

	s.RemoveAssociation(Associate("order_id", "o-1"))
	require.NoError(t, repo.Commit(context.Background(), "order", s))
	requireIndexInvariant(t, repo)

	ids, err := repo.Find(context.Background(), "order", Associate("order_id", "o-1"))
	require.NoError(t, err)
	assert.Empty(t, ids)
	ids, err = repo.Find(context.Background(), "order", Associate("customer_id", "c-7"))
	require.NoError(t, err)
	assert.Equal(t, []string{s.SagaID()}, ids)

	s.End()
	require.NoError(t, repo.Commit(context.Background(), "order", s))
	requireIndexInvariant(t, repo)
	assert.Empty(t, repo.index)
	assert.Empty(t, repo.sagas)
}

func TestRepository_LoadMissing(t *testing.T) {
	repo := NewInMemoryRepository()
	_, err := repo.Load(context.Background(), "order", "nope")
	require.ErrorIs(t, err, ErrSagaNotFound)
}
