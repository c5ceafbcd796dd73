// Package saga manages long-running business processes correlated to events
// through association values. A saga moves absent -> active -> inactive;
// once inactive it is removed from the repository and never invoked again.
package saga

import (
	"context"

	"github.com/google/uuid"

	"github.com/axleworks/axle-go/core/ds"
	"github.com/axleworks/axle-go/core/message"
)

// Saga is a stateful process reacting to events. Implementations embed
// BaseSaga for identity and lifecycle and add their HandleEvent logic.
// The manager serializes all calls for one saga instance, so
// implementations need no internal locking.
type Saga interface {
	SagaID() string
	IsActive() bool
	AssociationValues() []AssociationValue

	AssociateWith(av AssociationValue)
	RemoveAssociation(av AssociationValue)
	End()

	HandleEvent(ctx context.Context, e message.EventMessage) error
}

// BaseSaga carries identity, the association set and the lifecycle flag.
type BaseSaga struct {
	id           string
	active       bool
	associations *ds.Set[AssociationValue]
}

// NewBaseSaga returns an active saga base with a fresh identifier.
func NewBaseSaga() BaseSaga {
	return BaseSaga{
		id:           uuid.NewString(),
		active:       true,
		associations: ds.NewSet[AssociationValue](),
	}
}

func (b *BaseSaga) SagaID() string { return b.id }
func (b *BaseSaga) IsActive() bool { return b.active }

func (b *BaseSaga) AssociationValues() []AssociationValue {
	return b.associations.Values()
}

func (b *BaseSaga) AssociateWith(av AssociationValue) {
	b.associations.Add(av)
}

func (b *BaseSaga) RemoveAssociation(av AssociationValue) {
	b.associations.Remove(av)
}

// End transitions the saga to inactive. The next commit removes it and all
// its index entries.
func (b *BaseSaga) End() { b.active = false }

// RestoreIdentity reinstates a persisted saga's identity and associations.
// Repositories call this when rehydrating; only active sagas are stored, so
// the restored saga is always active.
func (b *BaseSaga) RestoreIdentity(id string, avs []AssociationValue) {
	b.id = id
	b.active = true
	b.associations = ds.NewSet[AssociationValue]()
	for _, av := range avs {
		b.associations.Add(av)
	}
}
