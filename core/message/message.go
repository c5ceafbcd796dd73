// Package message defines the envelopes carried by the command and event
// buses. A message wraps a payload with a unique identifier and metadata;
// event messages additionally carry a timestamp and, for events raised by an
// aggregate, the aggregate identity and sequence number.
package message

import (
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/axleworks/axle-go/internal/reflector"
)

// MetaData is the metadata attached to a message. Treat values as immutable:
// all mutating helpers return a copy.
type MetaData map[string]any

// With returns a copy of m with key set to value.
func (m MetaData) With(key string, value any) MetaData {
	out := make(MetaData, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out[key] = value
	return out
}

// Merged returns a copy of m with all entries of other applied on top.
func (m MetaData) Merged(other MetaData) MetaData {
	out := make(MetaData, len(m)+len(other))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

func (m MetaData) Get(key string) (any, bool) {
	v, ok := m[key]
	return v, ok
}

// CommandMessage wraps a command payload for dispatch on the command bus.
type CommandMessage struct {
	ID      string
	Payload any
	Meta    MetaData
}

// NewCommand wraps payload into a CommandMessage with a fresh identifier.
func NewCommand(payload any) CommandMessage {
	return CommandMessage{
		ID:      gonanoid.Must(),
		Payload: payload,
		Meta:    MetaData{},
	}
}

// PayloadType returns the fully qualified type name of the payload.
func (c CommandMessage) PayloadType() string {
	return reflector.TypeInfoOf(c.Payload).Name
}

// WithMeta returns a copy of the message with the metadata entry set.
func (c CommandMessage) WithMeta(key string, value any) CommandMessage {
	c.Meta = c.Meta.With(key, value)
	return c
}

// EventMessage wraps an event payload for publication on the event bus.
// Events raised by an aggregate carry the aggregate identity and the
// per-stream sequence number; plain application events leave those zero.
type EventMessage struct {
	ID         string
	Payload    any
	Meta       MetaData
	OccurredAt time.Time

	AggregateType  string
	AggregateID    string
	SequenceNumber int64
}

// NewEvent wraps payload into an EventMessage with a fresh identifier and
// the current time.
func NewEvent(payload any) EventMessage {
	return EventMessage{
		ID:         gonanoid.Must(),
		Payload:    payload,
		Meta:       MetaData{},
		OccurredAt: time.Now(),
	}
}

// NewDomainEvent wraps an event applied by an aggregate stream.
func NewDomainEvent(aggType, aggID string, seq int64, payload any) EventMessage {
	e := NewEvent(payload)
	e.AggregateType = aggType
	e.AggregateID = aggID
	e.SequenceNumber = seq
	return e
}

// IsDomainEvent reports whether the event originates from an aggregate
// stream.
func (e EventMessage) IsDomainEvent() bool { return e.AggregateID != "" }

// PayloadType returns the fully qualified type name of the payload.
func (e EventMessage) PayloadType() string {
	return reflector.TypeInfoOf(e.Payload).Name
}

// WithMeta returns a copy of the message with the metadata entry set.
func (e EventMessage) WithMeta(key string, value any) EventMessage {
	e.Meta = e.Meta.With(key, value)
	return e
}
