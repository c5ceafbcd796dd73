package eventbus

import (
	"context"

	"github.com/axleworks/axle-go/core/es"
	"github.com/axleworks/axle-go/core/message"
)

// PublisherFor adapts the bus into the repository's post-commit hook, so
// stored events flow onto the bus once the append succeeded.
func PublisherFor(bus Bus) es.EventPublisher {
	return func(ctx context.Context, events []message.EventMessage) error {
		return bus.Publish(ctx, events...)
	}
}
