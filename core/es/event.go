package es

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/axleworks/axle-go/internal/reflector"
)

// EventRegistry maps event type names to constructors so that persisted
// envelopes can be decoded into fresh payload values.
type EventRegistry struct {
	mu   sync.RWMutex
	news map[string]func() any
}

func NewRegistry() *EventRegistry {
	return &EventRegistry{news: map[string]func() any{}}
}

func (r *EventRegistry) Register(eventType string, ctor func() any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.news[eventType] = ctor
}

func (r *EventRegistry) Decode(env Envelope) (any, error) {
	r.mu.RLock()
	ctor, ok := r.news[env.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, env.Type)
	}
	ev := ctor()
	if env.Data != nil {
		if err := json.Unmarshal(env.Data, ev); err != nil {
			return nil, err
		}
	}
	return ev, nil
}

var _ Decoder = (*EventRegistry)(nil)

// Registrar is the registration half of the EventRegistry, handed to
// aggregates so they can declare their event types.
type Registrar interface {
	Register(eventType string, ctor func() any)
}

// Event returns a reflection-free constructor for an event of type T. Each
// call to the returned function constructs a fresh *T.
func Event[T any]() func() any { return func() any { return new(T) } }

// RegisterEventFor registers the event type T under its type name.
func RegisterEventFor[T any](r Registrar) {
	ti := reflector.TypeInfoFor[T]()
	r.Register(ti.Name, func() any { return any(new(T)) })
}

// RegisterEvents registers event constructors. Each constructor is invoked
// once to derive the type name; subsequent decodes call the constructor again
// so every decode yields a fresh instance.
func RegisterEvents(r Registrar, ctors ...func() any) {
	for _, ctor := range ctors {
		sample := ctor()
		r.Register(eventTypeOf(sample), ctor)
	}
}

// eventTypeOf resolves the type name of an event payload. Payloads may
// override the derived name by implementing EventType() string.
func eventTypeOf(ev any) string {
	if t, ok := ev.(interface{ EventType() string }); ok {
		return t.EventType()
	}
	return reflector.TypeInfoOf(ev).Name
}

// revisionOf resolves the schema revision of an event payload. Payloads
// declare a revision by implementing Revision() string; the zero revision is
// the empty string.
func revisionOf(ev any) string {
	if t, ok := ev.(interface{ Revision() string }); ok {
		return t.Revision()
	}
	return ""
}
