package es

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestEnv wires an in-memory store, registry, snapshotter and repository for
// package tests.
type TestEnv struct {
	t           *testing.T
	Store       *InMemoryStore
	Registry    *EventRegistry
	Snapshotter *InMemorySnapshotter
	Repo        Repository
}

type testEnvOptions struct {
	aggregates []Aggregate
	repoOpts   []RepositoryOption
}

type TestEnvOption func(*testEnvOptions)

// WithAggregates registers the event types of the given aggregates.
func WithAggregates(aggs ...Aggregate) TestEnvOption {
	return func(o *testEnvOptions) { o.aggregates = append(o.aggregates, aggs...) }
}

// WithRepoOptions passes extra options to the repository under test.
func WithRepoOptions(opts ...RepositoryOption) TestEnvOption {
	return func(o *testEnvOptions) { o.repoOpts = append(o.repoOpts, opts...) }
}

func StartTestEnv(t *testing.T, opts ...TestEnvOption) *TestEnv {
	t.Helper()

	options := testEnvOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	e := &TestEnv{
		t:           t,
		Store:       NewInMemoryStore(),
		Registry:    NewRegistry(),
		Snapshotter: NewInMemorySnapshotter(),
	}

	RegisterEventFor[AggregateCreated](e.Registry)
	RegisterEventFor[AggregateDeleted](e.Registry)
	for _, agg := range options.aggregates {
		agg.Register(e.Registry)
	}

	repoOpts := append([]RepositoryOption{WithSnapshotter(e.Snapshotter)}, options.repoOpts...)
	e.Repo = NewRepository(slog.Default(), e.Store, e.Registry, repoOpts...)

	return e
}

func (e *TestEnv) Repository() Repository { return e.Repo }

// Append stores events directly, bypassing an aggregate. Fails the test on
// error.
func (e *TestEnv) Append(ctx context.Context, aggType, aggID string, expected Version, events ...any) *AppendResult {
	e.t.Helper()

	r := &repository{log: slog.Default(), store: e.Store, registry: e.Registry}
	envelopes, err := r.envelopesFor(aggType, aggID, expected, events)
	require.NoError(e.t, err)

	res, err := e.Store.Append(ctx, aggType, aggID, expected, envelopes)
	require.NoError(e.t, err)
	return res
}
