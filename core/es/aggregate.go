package es

import (
	"errors"
	"fmt"
	"time"
)

// lifecycle events raised by BaseAggregate
type (
	// AggregateCreated is the first event of every aggregate stream created
	// through Create.
	AggregateCreated struct {
		ID        string    `json:"id"`
		CreatedAt time.Time `json:"created_at"`
	}

	// AggregateDeleted marks an aggregate as deleted. Streams ending in this
	// event are excluded from subsequent loads.
	AggregateDeleted struct{}
)

func (e AggregateCreated) Validate() error {
	if e.ID == "" {
		return errors.New("id is required")
	}
	if e.CreatedAt.IsZero() {
		return errors.New("created at time is zero")
	}
	return nil
}

// Applier is implemented by types that mutate their state from events.
type Applier interface {
	Apply(event any) error
}

// Aggregate is the contract event-sourced domain objects implement to work
// with the Repository.
//
// An aggregate maintains:
//   - Identity: AggregateType and ID naming its event stream
//   - Version: sequence number of the last committed event (NewStream before
//     the first commit)
//   - Uncommitted events: raised but not yet persisted
//
// Lifecycle: create or load via Repository, execute domain logic that raises
// events (RaiseAndApply), save via Repository which appends the uncommitted
// events and clears the buffer.
type Aggregate interface {
	// AggregateType returns the stream type name, e.g. "account".
	AggregateType() string
	GetID() string
	SetID(string)

	GetVersion() Version
	setVersion(Version)

	// IsDeleted reports whether the aggregate's stream ends in a deletion
	// event. Deleted aggregates fail subsequent loads.
	IsDeleted() bool

	// Create initializes a fresh aggregate with the given ID by raising
	// AggregateCreated.
	Create(id string) error

	// Register declares the aggregate's event types with the registry.
	Register(r Registrar)

	// Raise records an event as uncommitted without applying it.
	Raise(event any)
	// Apply mutates the aggregate state from an event. Called synchronously
	// for each raised event before it becomes externally visible, and for
	// each stored event during replay.
	Apply(event any) error

	// Uncommitted returns a copy of the raised-but-unpersisted events.
	Uncommitted() []any
	ClearUncommitted()
}

// BaseAggregate is an embeddable helper that tracks identity, version and
// the uncommitted event buffer. Domain aggregates embed it and delegate
// unrecognized events to its Apply:
//
//	func (a *Account) Apply(event any) error {
//		switch e := event.(type) {
//		case *Deposited:
//			...
//		default:
//			return a.BaseAggregate.Apply(event)
//		}
//	}
type BaseAggregate struct {
	CreatedAt time.Time `json:"created_at"`

	id string
	// seqPlusOne holds GetVersion()+1 so that the zero value reports
	// NewStream (-1) for a fresh aggregate.
	seqPlusOne  int64
	deleted     bool
	uncommitted []any
}

func (b *BaseAggregate) Apply(event any) error {
	switch e := event.(type) {
	case *AggregateCreated:
		b.id = e.ID
		b.CreatedAt = e.CreatedAt
		return nil
	case *AggregateDeleted:
		b.deleted = true
		return nil
	}
	return fmt.Errorf("unknown base aggregate event: %T", event)
}

func (b *BaseAggregate) IsCreated() bool         { return !b.CreatedAt.IsZero() }
func (b *BaseAggregate) GetCreatedAt() time.Time { return b.CreatedAt }
func (b *BaseAggregate) IsDeleted() bool         { return b.deleted }

func (b *BaseAggregate) Create(id string) error {
	if b.IsCreated() {
		return errors.New("aggregate already created")
	}
	if id == "" {
		return errors.New("id is required")
	}
	return RaiseAndApply(b, &AggregateCreated{ID: id, CreatedAt: time.Now()})
}

// Delete marks the aggregate deleted. Further loads of the stream return
// ErrAggregateDeleted once the deletion is committed.
func (b *BaseAggregate) Delete() error {
	if b.deleted {
		return nil
	}
	return RaiseAndApply(b, &AggregateDeleted{})
}

func (b *BaseAggregate) GetID() string        { return b.id }
func (b *BaseAggregate) SetID(id string)      { b.id = id }
func (b *BaseAggregate) GetVersion() Version  { return Version(b.seqPlusOne - 1) }
func (b *BaseAggregate) setVersion(v Version) { b.seqPlusOne = int64(v) + 1 }

func (b *BaseAggregate) Raise(event any)   { b.uncommitted = append(b.uncommitted, event) }
func (b *BaseAggregate) ClearUncommitted() { b.uncommitted = nil }
func (b *BaseAggregate) Uncommitted() []any {
	out := make([]any, len(b.uncommitted))
	copy(out, b.uncommitted)
	return out
}

// === Helpers ===

type raiseApplier interface {
	Raise(event any)
	Apply(event any) error
}

// RaiseAndApply validates each event, records it as uncommitted, and applies
// it to mutate state. The aggregate's handler runs synchronously before the
// event is visible anywhere else.
func RaiseAndApply(a raiseApplier, events ...any) (err error) {
	for _, e := range events {
		if v, ok := e.(interface{ Validate() error }); ok {
			if err = v.Validate(); err != nil {
				return fmt.Errorf("invalid event %T: %w", e, err)
			}
		}
	}

	for _, e := range events {
		a.Raise(e)
		if err = a.Apply(e); err != nil {
			return
		}
	}
	return
}
