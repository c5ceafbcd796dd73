package es

import (
	"github.com/axleworks/axle-go/core/cache"
	"github.com/axleworks/axle-go/core/serializer"
)

type repoOptions struct {
	snapshotter   Snapshotter
	snapshotEvery int
	snapshotCache cache.Cache
	publisher     EventPublisher
	resolver      ConflictResolver
	upcaster      serializer.Upcaster
	metrics       Metrics
}

// RepositoryOption configures a Repository.
type RepositoryOption interface {
	applyToRepo(*repoOptions)
}

type (
	snapshotterOption   struct{ v Snapshotter }
	snapshotEveryOption struct{ n int }
	snapshotCacheOption struct{ c cache.Cache }
	publisherOption     struct{ p EventPublisher }
	resolverOption      struct{ r ConflictResolver }
	upcasterOption      struct{ u serializer.Upcaster }
	metricsOption       struct{ m Metrics }
)

func (o snapshotterOption) applyToRepo(opts *repoOptions)   { opts.snapshotter = o.v }
func (o snapshotEveryOption) applyToRepo(opts *repoOptions) { opts.snapshotEvery = o.n }
func (o snapshotCacheOption) applyToRepo(opts *repoOptions) { opts.snapshotCache = o.c }
func (o publisherOption) applyToRepo(opts *repoOptions)     { opts.publisher = o.p }
func (o resolverOption) applyToRepo(opts *repoOptions)      { opts.resolver = o.r }
func (o upcasterOption) applyToRepo(opts *repoOptions)      { opts.upcaster = o.u }
func (o metricsOption) applyToRepo(opts *repoOptions)       { opts.metrics = o.m }

// WithSnapshotter enables snapshot support.
func WithSnapshotter(s Snapshotter) RepositoryOption { return snapshotterOption{s} }

// WithSnapshotEvery creates a snapshot whenever a save crosses a multiple of
// n committed events. n <= 0 disables automatic snapshots.
func WithSnapshotEvery(n int) RepositoryOption { return snapshotEveryOption{n} }

// WithSnapshotCache keeps recently loaded snapshots in the given cache,
// sparing the snapshotter round-trip on hot aggregates.
func WithSnapshotCache(c cache.Cache) RepositoryOption { return snapshotCacheOption{c} }

// WithSnapshotCacheLRU is WithSnapshotCache with a fresh LRU of the given
// size.
func WithSnapshotCacheLRU(size int) RepositoryOption {
	return snapshotCacheOption{cache.NewLRU(size)}
}

// WithPublisher publishes committed events after each successful append.
func WithPublisher(p EventPublisher) RepositoryOption { return publisherOption{p} }

// WithConflictResolver installs the policy consulted on concurrent commits.
// Without it, every version mismatch fails with ErrConcurrencyConflict.
func WithConflictResolver(r ConflictResolver) RepositoryOption { return resolverOption{r} }

// WithUpcasters rewrites stored envelopes of older revisions forward before
// they are decoded during replay.
func WithUpcasters(u serializer.Upcaster) RepositoryOption { return upcasterOption{u} }

// WithMetrics sets the instrumentation backend.
func WithMetrics(m Metrics) RepositoryOption { return metricsOption{m} }

// === per-call options ===

type (
	repoLoadOptions struct{ snapshot bool }
	repoSaveOptions struct{ snapshot bool }

	// LoadOption configures a single Load call.
	LoadOption interface{ applyToLoad(*repoLoadOptions) }
	// SaveOption configures a single Save call.
	SaveOption interface{ applyToSave(*repoSaveOptions) }

	// SnapshotOption requests snapshot usage for a single Load or Save.
	SnapshotOption struct{}
)

func (SnapshotOption) applyToLoad(o *repoLoadOptions) { o.snapshot = true }
func (SnapshotOption) applyToSave(o *repoSaveOptions) { o.snapshot = true }

// WithSnapshot restores from the latest snapshot on Load, or forces snapshot
// creation on Save.
func WithSnapshot() SnapshotOption { return SnapshotOption{} }
