package es

// ConflictResolver decides whether events committed concurrently by another
// writer actually conflict with the events the current writer wants to
// append. Returning nil accepts the interleaving: the new events are
// re-sequenced after the concurrent ones and the append is retried.
// Returning an error rejects it and the save fails with
// ErrConcurrencyConflict, leaving the caller to reload and retry.
//
// The repository default is fail-closed: without an explicit resolver every
// version mismatch is a conflict.
type ConflictResolver interface {
	Resolve(committed []Envelope, uncommitted []any) error
}

// ConflictResolverFunc adapts a function to a ConflictResolver.
type ConflictResolverFunc func(committed []Envelope, uncommitted []any) error

func (f ConflictResolverFunc) Resolve(committed []Envelope, uncommitted []any) error {
	return f(committed, uncommitted)
}

// AcceptAllConflicts resolves every concurrent commit in favor of appending,
// for domains where interleaved commits never invalidate each other.
func AcceptAllConflicts() ConflictResolver {
	return ConflictResolverFunc(func([]Envelope, []any) error { return nil })
}
