package saga

import (
	"sync"

	"github.com/axleworks/axle-go/core/message"
)

// CreationPolicy decides whether an event spawns a new saga instance.
type CreationPolicy int

const (
	// CreateNone never spawns; the event only reaches existing sagas.
	CreateNone CreationPolicy = iota
	// CreateIfNoneFound spawns only when no existing saga matched.
	CreateIfNoneFound
	// CreateAlways spawns a new saga for every matching event, even when
	// existing sagas matched too.
	CreateAlways
)

// Extractor derives the association values an event correlates on. An empty
// result means the event is irrelevant for this saga type.
type Extractor func(e message.EventMessage) []AssociationValue

type binding struct {
	policy  CreationPolicy
	extract Extractor
}

// Resolver is the per-saga-type registry mapping event payload types to
// their association extraction and creation policy. Built once at startup.
type Resolver struct {
	mu       sync.RWMutex
	bindings map[string]binding
}

func NewResolver() *Resolver {
	return &Resolver{bindings: map[string]binding{}}
}

// Bind registers how events of payloadType associate with the saga type.
func (r *Resolver) Bind(payloadType string, policy CreationPolicy, extract Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[payloadType] = binding{policy: policy, extract: extract}
}

// Resolve returns the association values and creation policy for e, or
// ok=false when the event payload type has no binding.
func (r *Resolver) Resolve(e message.EventMessage) ([]AssociationValue, CreationPolicy, bool) {
	r.mu.RLock()
	b, ok := r.bindings[e.PayloadType()]
	r.mu.RUnlock()
	if !ok {
		return nil, CreateNone, false
	}
	return b.extract(e), b.policy, true
}
