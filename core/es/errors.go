package es

import "errors"

var (
	// ErrAggregateNotFound is returned when loading an aggregate that has no
	// committed events. Not retryable.
	ErrAggregateNotFound = errors.New("aggregate not found")

	// ErrAggregateDeleted is returned when loading an aggregate whose stream
	// ends in a deletion event.
	ErrAggregateDeleted = errors.New("aggregate deleted")

	// ErrConcurrencyConflict is returned when an append races with another
	// commit on the same stream. Retryable: reload and reapply.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrUnknownEventType is returned when decoding an envelope whose type
	// was never registered.
	ErrUnknownEventType = errors.New("unknown event type")

	// ErrNoEvents is returned when appending an empty batch.
	ErrNoEvents = errors.New("no events to store")

	// ErrSnapshotNotFound is returned when no snapshot exists for a stream.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrSnapshotterUnconfigured is returned when a snapshot operation is
	// requested but no snapshotter was provided.
	ErrSnapshotterUnconfigured = errors.New("no snapshotter configured")
)
