package saga

import (
	"context"
	"errors"
	"sync"

	"github.com/axleworks/axle-go/core/ds"
)

// ErrSagaNotFound is returned when loading a saga that does not exist or
// was already ended.
var ErrSagaNotFound = errors.New("saga not found")

// Repository stores saga instances and owns the association index: a
// multimap from (sagaType, associationValue) to the set of saga IDs holding
// that association. Invariant: the index equals exactly the union of the
// association values of all active sagas.
type Repository interface {
	// Find returns the IDs of sagas of sagaType associated with av.
	Find(ctx context.Context, sagaType string, av AssociationValue) ([]string, error)
	Load(ctx context.Context, sagaType, id string) (Saga, error)
	// Add stores a freshly created saga and indexes its associations.
	Add(ctx context.Context, sagaType string, s Saga) error
	// Commit persists association changes made while handling an event.
	// An inactive saga is removed together with all its index entries.
	Commit(ctx context.Context, sagaType string, s Saga) error
}

type sagaKey struct {
	sagaType string
	id       string
}

type indexKey struct {
	sagaType string
	av       AssociationValue
}

// InMemoryRepository keeps sagas and the association index under one mutex.
type InMemoryRepository struct {
	mu sync.RWMutex

	sagas map[sagaKey]Saga
	index map[indexKey]*ds.Set[string]

	// associations as last committed, to diff on the next commit
	committed map[sagaKey]*ds.Set[AssociationValue]
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		sagas:     map[sagaKey]Saga{},
		index:     map[indexKey]*ds.Set[string]{},
		committed: map[sagaKey]*ds.Set[AssociationValue]{},
	}
}

func (r *InMemoryRepository) Find(_ context.Context, sagaType string, av AssociationValue) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids, ok := r.index[indexKey{sagaType: sagaType, av: av}]
	if !ok {
		return nil, nil
	}
	return ids.Values(), nil
}

func (r *InMemoryRepository) Load(_ context.Context, sagaType, id string) (Saga, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sagas[sagaKey{sagaType: sagaType, id: id}]
	if !ok {
		return nil, ErrSagaNotFound
	}
	return s, nil
}

func (r *InMemoryRepository) Add(_ context.Context, sagaType string, s Saga) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := sagaKey{sagaType: sagaType, id: s.SagaID()}
	r.sagas[key] = s

	snapshot := ds.NewSet[AssociationValue]()
	for _, av := range s.AssociationValues() {
		r.indexLocked(sagaType, av, s.SagaID())
		snapshot.Add(av)
	}
	r.committed[key] = snapshot
	return nil
}

func (r *InMemoryRepository) Commit(_ context.Context, sagaType string, s Saga) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := sagaKey{sagaType: sagaType, id: s.SagaID()}
	before, ok := r.committed[key]
	if !ok {
		return ErrSagaNotFound
	}

	if !s.IsActive() {
		before.ForEach(func(av AssociationValue) {
			r.unindexLocked(sagaType, av, s.SagaID())
		})
		delete(r.sagas, key)
		delete(r.committed, key)
		return nil
	}

	after := ds.NewSet[AssociationValue]()
	for _, av := range s.AssociationValues() {
		after.Add(av)
		if !before.Contains(av) {
			r.indexLocked(sagaType, av, s.SagaID())
		}
	}
	before.ForEach(func(av AssociationValue) {
		if !after.Contains(av) {
			r.unindexLocked(sagaType, av, s.SagaID())
		}
	})
	r.committed[key] = after
	return nil
}

func (r *InMemoryRepository) indexLocked(sagaType string, av AssociationValue, id string) {
	k := indexKey{sagaType: sagaType, av: av}
	ids, ok := r.index[k]
	if !ok {
		ids = ds.NewSet[string]()
		r.index[k] = ids
	}
	ids.Add(id)
}

func (r *InMemoryRepository) unindexLocked(sagaType string, av AssociationValue, id string) {
	k := indexKey{sagaType: sagaType, av: av}
	ids, ok := r.index[k]
	if !ok {
		return
	}
	ids.Remove(id)
	if ids.Len() == 0 {
		delete(r.index, k)
	}
}

var _ Repository = (*InMemoryRepository)(nil)
