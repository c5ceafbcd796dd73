package es

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope wraps a domain event with the metadata needed to store, replay
// and route it. It is the unit of storage in the EventStore.
type Envelope struct {
	// ID is the unique identifier of this event.
	ID string `json:"id"`
	// SequenceNumber is the position of the event in its aggregate stream.
	// Gapless, starting at 0. Used for optimistic concurrency control.
	SequenceNumber Version `json:"seq"`
	// AggregateType identifies the kind of aggregate the event belongs to.
	AggregateType string `json:"aggregate_type"`
	// AggregateID identifies the aggregate instance.
	AggregateID string `json:"aggregate_id"`
	// Type is the event payload type name, used to route deserialization.
	Type string `json:"type"`
	// Revision is the payload schema revision. Empty for unversioned
	// payloads. Upcasters rewrite older revisions forward on read.
	Revision string `json:"revision,omitempty"`
	// OccurredAt is when the event was raised.
	OccurredAt time.Time `json:"occurred_at"`
	// Data is the JSON-encoded event payload.
	Data json.RawMessage `json:"data"`
	// Metadata carries contextual key/value pairs attached at raise time.
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (e Envelope) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("envelope id is empty")
	}
	if e.SequenceNumber < 0 {
		return fmt.Errorf("envelope sequence number is negative")
	}
	if e.AggregateType == "" {
		return fmt.Errorf("envelope aggregate type is empty")
	}
	if e.AggregateID == "" {
		return fmt.Errorf("envelope aggregate id is empty")
	}
	if e.Type == "" {
		return fmt.Errorf("envelope type is empty")
	}
	if e.OccurredAt.IsZero() {
		return fmt.Errorf("envelope occurred at is zero")
	}
	return nil
}

// Decoder turns a stored envelope back into its payload value.
type Decoder interface {
	Decode(e Envelope) (any, error)
}
