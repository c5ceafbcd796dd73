package es

import "context"

type (
	storeLoadOptions struct {
		fromSequence Version
	}

	// StoreLoadOption narrows a stream read.
	StoreLoadOption interface {
		applyToStoreLoad(*storeLoadOptions)
	}

	fromSequenceOption struct{ v Version }
)

func (o fromSequenceOption) applyToStoreLoad(opts *storeLoadOptions) { opts.fromSequence = o.v }

// WithFromSequence limits a load to events with a sequence number greater
// than or equal to seq.
func WithFromSequence(seq Version) StoreLoadOption { return fromSequenceOption{seq} }

// ResolveFromSequence folds load options into the effective lower sequence
// bound. For store implementations outside this package.
func ResolveFromSequence(opts ...StoreLoadOption) Version {
	options := storeLoadOptions{}
	for _, opt := range opts {
		opt.applyToStoreLoad(&options)
	}
	return options.fromSequence
}

// AppendResult reports the outcome of a successful append.
type AppendResult struct {
	// LastSequence is the sequence number of the last appended event.
	LastSequence Version
}

// EventStore is the append-only ordered event log. Append is atomic per
// batch: either all envelopes of a call are stored or none. expected is the
// sequence number of the last event the caller observed (NewStream for a
// fresh aggregate); a mismatch with the stream head fails with
// ErrConcurrencyConflict.
type EventStore interface {
	Load(ctx context.Context, aggType, aggID string, opts ...StoreLoadOption) ([]Envelope, error)
	Append(ctx context.Context, aggType, aggID string, expected Version, events []Envelope) (*AppendResult, error)
}
