package es

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/axleworks/axle-go/core/message"
)

// EventPublisher receives committed domain events after a successful append.
// The repository invokes it only once the events are durably stored.
type EventPublisher func(ctx context.Context, events []message.EventMessage) error

// Repository rehydrates aggregates from their event stream and persists new
// events with optimistic concurrency.
type Repository interface {
	Load(ctx context.Context, agg Aggregate, opts ...LoadOption) error
	Save(ctx context.Context, agg Aggregate, opts ...SaveOption) error
	CreateSnapshot(ctx context.Context, agg Aggregate) (*Snapshot, error)
}

type repository struct {
	log      *slog.Logger
	store    EventStore
	registry *EventRegistry
	opts     repoOptions
}

func NewRepository(
	log *slog.Logger,
	store EventStore,
	registry *EventRegistry,
	opts ...RepositoryOption,
) Repository {
	options := repoOptions{metrics: NopMetrics()}
	for _, opt := range opts {
		opt.applyToRepo(&options)
	}
	if options.metrics == nil {
		options.metrics = NopMetrics()
	}

	return &repository{
		log:      log.With(slog.String("repo", fmt.Sprintf("%T", store))),
		store:    store,
		registry: registry,
		opts:     options,
	}
}

// Load rehydrates agg by restoring the latest snapshot (when requested) and
// replaying all events above it in strictly increasing sequence order.
func (r *repository) Load(ctx context.Context, agg Aggregate, opts ...LoadOption) error {
	aggType := agg.AggregateType()
	if aggType == "" {
		return errors.New("aggregate type is empty")
	}
	aggID := agg.GetID()
	if aggID == "" {
		return errors.New("aggregate id is empty")
	}
	if len(agg.Uncommitted()) != 0 {
		return errors.New("aggregate has uncommitted events")
	}

	defer r.opts.metrics.RepoLoadDuration(aggType).ObserveDuration()

	loadOptions := repoLoadOptions{}
	for _, opt := range opts {
		opt.applyToLoad(&loadOptions)
	}

	log := r.log.With(slog.Group("agg",
		slog.String("type", aggType),
		slog.String("id", aggID),
	))

	snapshotRestored := false
	if loadOptions.snapshot {
		restored, err := r.restoreLatestSnapshot(ctx, agg)
		if err != nil {
			return err
		}
		snapshotRestored = restored
		if restored {
			log.Debug("snapshot restored", agg.GetVersion().SlogAttr())
		}
	}

	from := agg.GetVersion().Next()
	loaded, err := r.store.Load(ctx, aggType, aggID, WithFromSequence(from))
	if err != nil {
		// a snapshot may cover the whole stream on stores that drop
		// fully-snapshotted streams
		if errors.Is(err, ErrAggregateNotFound) && snapshotRestored {
			loaded = nil
		} else {
			return err
		}
	}

	for _, e := range loaded {
		expect := agg.GetVersion().Next()
		if e.SequenceNumber != expect {
			return fmt.Errorf("gap in stream %s-%s: expect seq %d, got %d", aggType, aggID, expect, e.SequenceNumber)
		}

		if r.opts.upcaster != nil && r.opts.upcaster.CanUpcast(serializedTypeOf(e)) {
			e, err = upcastEnvelope(r.opts.upcaster, e)
			if err != nil {
				return err
			}
		}

		evt, err := r.registry.Decode(e)
		if err != nil {
			return err
		}
		if err := agg.Apply(evt); err != nil {
			return err
		}
		agg.setVersion(e.SequenceNumber)
	}

	if agg.GetVersion() == NewStream {
		return ErrAggregateNotFound
	}
	if agg.IsDeleted() {
		return ErrAggregateDeleted
	}

	log.Debug("loaded", agg.GetVersion().SlogAttr(), slog.Int("num_events", len(loaded)))
	return nil
}

func (r *repository) restoreLatestSnapshot(ctx context.Context, agg Aggregate) (bool, error) {
	if r.opts.snapshotter == nil {
		return false, ErrSnapshotterUnconfigured
	}

	aggType := agg.AggregateType()
	key := streamKey(aggType, agg.GetID())

	if r.opts.snapshotCache != nil {
		if v, ok := r.opts.snapshotCache.Get(key); ok {
			r.opts.metrics.SnapshotCacheHit(aggType)
			return true, restoreSnapshot(agg, v.(*Snapshot))
		}
		r.opts.metrics.SnapshotCacheMiss(aggType)
	}

	snapshot, err := r.opts.snapshotter.LoadSnapshot(ctx, aggType, agg.GetID())
	if err != nil {
		if errors.Is(err, ErrSnapshotNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if err := restoreSnapshot(agg, snapshot); err != nil {
		return false, err
	}
	if r.opts.snapshotCache != nil {
		r.opts.snapshotCache.Put(key, snapshot)
	}
	return true, nil
}

// Save appends the aggregate's uncommitted events as one atomic batch,
// verifies the stream did not move since load, and publishes the committed
// events afterwards.
func (r *repository) Save(ctx context.Context, agg Aggregate, opts ...SaveOption) error {
	uncommitted := agg.Uncommitted()
	if len(uncommitted) == 0 {
		return nil
	}
	aggType := agg.AggregateType()
	if aggType == "" {
		return errors.New("aggregate type is empty")
	}
	aggID := agg.GetID()
	if aggID == "" {
		return errors.New("aggregate id is empty")
	}

	defer r.opts.metrics.RepoSaveDuration(aggType).ObserveDuration()

	saveOptions := repoSaveOptions{}
	for _, opt := range opts {
		opt.applyToSave(&saveOptions)
	}

	expected := agg.GetVersion()
	envelopes, err := r.envelopesFor(aggType, aggID, expected, uncommitted)
	if err != nil {
		return err
	}

	res, err := r.store.Append(ctx, aggType, aggID, expected, envelopes)
	if errors.Is(err, ErrConcurrencyConflict) && r.opts.resolver != nil {
		// the rebased envelopes replace the originals so that publication
		// below carries the sequence numbers actually committed
		envelopes, res, err = r.resolveAndRetry(ctx, aggType, aggID, expected, uncommitted)
	}
	if err != nil {
		if errors.Is(err, ErrConcurrencyConflict) {
			r.opts.metrics.ConcurrencyConflict(aggType)
		}
		return fmt.Errorf("failed to save agg_type=%s agg_id=%s: %w", aggType, aggID, err)
	}
	if res == nil {
		return errors.New("append returned nil result")
	}

	agg.setVersion(res.LastSequence)
	agg.ClearUncommitted()
	r.opts.metrics.EventsAppended(aggType, len(envelopes))

	r.log.Debug("saved",
		slog.Group("agg",
			slog.String("type", aggType),
			slog.String("id", aggID),
			agg.GetVersion().SlogAttr(),
		),
		slog.Int("num_events", len(envelopes)),
	)

	if saveOptions.snapshot || r.snapshotDue(expected, res.LastSequence) {
		if _, err := r.CreateSnapshot(ctx, agg); err != nil {
			return err
		}
	}

	if r.opts.publisher != nil {
		msgs := make([]message.EventMessage, 0, len(envelopes))
		for i, env := range envelopes {
			msgs = append(msgs, message.EventMessage{
				ID:             env.ID,
				Payload:        uncommitted[i],
				Meta:           message.MetaData{},
				OccurredAt:     env.OccurredAt,
				AggregateType:  env.AggregateType,
				AggregateID:    env.AggregateID,
				SequenceNumber: env.SequenceNumber.Int64(),
			})
		}
		if err := r.opts.publisher(ctx, msgs); err != nil {
			return fmt.Errorf("events stored but publication failed: %w", err)
		}
	}

	return nil
}

// resolveAndRetry consults the conflict resolver against the concurrently
// committed events and, when accepted, re-sequences the new events after them
// and retries the append once. Returns the rebased envelopes it appended;
// they, not the caller's originals, carry the committed sequence numbers.
func (r *repository) resolveAndRetry(
	ctx context.Context,
	aggType, aggID string,
	expected Version,
	uncommitted []any,
) ([]Envelope, *AppendResult, error) {
	committed, err := r.store.Load(ctx, aggType, aggID, WithFromSequence(expected.Next()))
	if err != nil {
		return nil, nil, ErrConcurrencyConflict
	}
	if len(committed) == 0 {
		return nil, nil, ErrConcurrencyConflict
	}
	if err := r.opts.resolver.Resolve(committed, uncommitted); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrConcurrencyConflict, err)
	}

	rebased := committed[len(committed)-1].SequenceNumber
	envelopes, err := r.envelopesFor(aggType, aggID, rebased, uncommitted)
	if err != nil {
		return nil, nil, err
	}

	r.log.Debug("conflict accepted, rebasing",
		slog.String("agg_id", aggID),
		expected.SlogAttrWithKey("expected"),
		rebased.SlogAttrWithKey("rebased"),
	)

	res, err := r.store.Append(ctx, aggType, aggID, rebased, envelopes)
	if err != nil {
		return nil, nil, err
	}
	return envelopes, res, nil
}

func (r *repository) envelopesFor(aggType, aggID string, expected Version, events []any) ([]Envelope, error) {
	envelopes := make([]Envelope, 0, len(events))
	for i, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return nil, err
		}
		env := Envelope{
			ID:             gonanoid.Must(),
			SequenceNumber: expected.Next() + Version(i),
			AggregateType:  aggType,
			AggregateID:    aggID,
			Type:           eventTypeOf(ev),
			Revision:       revisionOf(ev),
			OccurredAt:     time.Now(),
			Data:           data,
		}
		if err := env.Validate(); err != nil {
			return nil, err
		}
		envelopes = append(envelopes, env)
	}
	return envelopes, nil
}

func (r *repository) snapshotDue(before, after Version) bool {
	n := r.opts.snapshotEvery
	if n <= 0 || r.opts.snapshotter == nil {
		return false
	}
	// crossed a multiple of n committed events
	return (int64(before)+1)/int64(n) != (int64(after)+1)/int64(n)
}

func (r *repository) CreateSnapshot(ctx context.Context, agg Aggregate) (*Snapshot, error) {
	if r.opts.snapshotter == nil {
		return nil, ErrSnapshotterUnconfigured
	}
	ss, err := CreateSnapshot(agg)
	if err != nil {
		return nil, err
	}
	if err := r.opts.snapshotter.SaveSnapshot(ctx, ss); err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}
	if r.opts.snapshotCache != nil {
		r.opts.snapshotCache.Put(streamKey(ss.AggregateType, ss.AggregateID), ss)
	}
	r.opts.metrics.SnapshotCreated(agg.AggregateType())
	r.log.Debug("snapshot saved", ss.logAttrs())
	return ss, nil
}

var _ Repository = (*repository)(nil)
