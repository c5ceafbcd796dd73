// Package es implements event-sourced aggregates: an append-only event store
// abstraction with optimistic concurrency, a repository that rebuilds
// aggregate state by replaying event streams (optionally from a snapshot),
// and projectors that derive read models from the stream.
//
// Sequence numbers within an aggregate stream are gapless and start at 0; an
// aggregate's version is the sequence number of its last committed event.
// Two writers racing on the same version produce exactly one winner, the
// loser gets ErrConcurrencyConflict and is expected to reload and retry
// (see TypedRepository.WithTransaction), unless a ConflictResolver accepts
// the interleaving.
package es
