package es

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
)

// maxTxAttempts bounds the optimistic retry loop in WithTransaction.
const maxTxAttempts = 10

// TypedRepository is a generic veneer over Repository for a single aggregate
// type.
type TypedRepository[T Aggregate] interface {
	AggregateType() string
	New() T
	NewWithID(id string) T
	Load(ctx context.Context, agg T, opts ...LoadOption) error
	Create(ctx context.Context, aggID string) (T, error)
	GetByID(ctx context.Context, aggID string, opts ...LoadOption) (T, error)
	GetOrCreate(ctx context.Context, aggID string, opts ...LoadOption) (T, error)
	Save(ctx context.Context, agg T, opts ...SaveOption) error
	// WithTransaction loads the aggregate, applies fn, and saves. On a
	// concurrency conflict the whole cycle is retried against a fresh load,
	// up to maxTxAttempts times.
	WithTransaction(ctx context.Context, aggID string, fn func(agg T) error) error
}

type typedRepo[T Aggregate] struct {
	r   Repository
	log *slog.Logger
}

func NewTypedRepository[T Aggregate](log *slog.Logger, store EventStore, registry *EventRegistry, opts ...RepositoryOption) TypedRepository[T] {
	return NewTypedRepositoryFrom[T](log, NewRepository(log, store, registry, opts...))
}

func NewTypedRepositoryFrom[T Aggregate](log *slog.Logger, r Repository) TypedRepository[T] {
	return &typedRepo[T]{
		r:   r,
		log: log.With(slog.String("repo", fmt.Sprintf("%T", *new(T)))),
	}
}

func (t *typedRepo[T]) New() T { return t.NewWithID("") }

func (t *typedRepo[T]) NewWithID(id string) T {
	var a T
	rt := reflect.TypeOf((*T)(nil)).Elem()
	if rt.Kind() == reflect.Pointer {
		a = reflect.New(rt.Elem()).Interface().(T)
	} else {
		a = *new(T)
	}
	a.SetID(id)
	return a
}

func (t *typedRepo[T]) AggregateType() string {
	return t.New().AggregateType()
}

func (t *typedRepo[T]) Load(ctx context.Context, agg T, opts ...LoadOption) error {
	return t.r.Load(ctx, agg, opts...)
}

func (t *typedRepo[T]) Create(ctx context.Context, aggID string) (a T, err error) {
	if aggID == "" {
		return a, errors.New("aggregate id is empty")
	}
	a = t.NewWithID(aggID)
	if err = a.Create(aggID); err != nil {
		return a, err
	}
	if err = t.Save(ctx, a); err != nil {
		return a, err
	}
	t.log.Debug("created", slog.String("id", aggID))
	return a, nil
}

func (t *typedRepo[T]) GetByID(ctx context.Context, aggID string, opts ...LoadOption) (a T, err error) {
	if aggID == "" {
		return a, errors.New("aggregate id is empty")
	}
	a = t.NewWithID(aggID)
	if err = t.r.Load(ctx, a, opts...); err != nil {
		return a, err
	}
	return a, nil
}

func (t *typedRepo[T]) GetOrCreate(ctx context.Context, aggID string, opts ...LoadOption) (T, error) {
	a, err := t.GetByID(ctx, aggID, opts...)
	if errors.Is(err, ErrAggregateNotFound) {
		return t.Create(ctx, aggID)
	}
	return a, err
}

func (t *typedRepo[T]) Save(ctx context.Context, agg T, opts ...SaveOption) error {
	return t.r.Save(ctx, agg, opts...)
}

func (t *typedRepo[T]) WithTransaction(ctx context.Context, aggID string, fn func(agg T) error) error {
	for attempt := 1; ; attempt++ {
		a, err := t.GetByID(ctx, aggID)
		if err != nil {
			return err
		}
		if err := fn(a); err != nil {
			return err
		}
		err = t.Save(ctx, a)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConcurrencyConflict) || attempt >= maxTxAttempts {
			return err
		}
		t.log.Debug("transaction conflict, retrying",
			slog.String("id", aggID),
			slog.Int("attempt", attempt),
		)
	}
}
