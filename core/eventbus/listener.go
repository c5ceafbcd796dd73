package eventbus

import (
	"context"

	"github.com/axleworks/axle-go/core/message"
)

// Listener receives published events. Returning an error marks the event as
// failed for this listener only; other listeners still see it.
type Listener interface {
	HandleEvent(ctx context.Context, e message.EventMessage) error
}

// ListenerFunc adapts a plain function to a Listener.
type ListenerFunc func(ctx context.Context, e message.EventMessage) error

func (f ListenerFunc) HandleEvent(ctx context.Context, e message.EventMessage) error {
	return f(ctx, e)
}

var _ Listener = ListenerFunc(nil)
