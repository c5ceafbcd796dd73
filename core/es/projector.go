package es

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Projection builds a read model from the event stream. HandleEnvelope is
// called once per matching envelope, in store append order.
type Projection interface {
	Name() string
	HandleEnvelope(ctx context.Context, env Envelope, event any) error
}

type projectorOptions struct {
	log     *slog.Logger
	filters []StreamFilter
}

// ProjectorOption configures a Projector.
type ProjectorOption func(*projectorOptions)

func WithProjectorLog(log *slog.Logger) ProjectorOption {
	return func(o *projectorOptions) { o.log = log }
}

func WithProjectorFilters(filters ...StreamFilter) ProjectorOption {
	return func(o *projectorOptions) { o.filters = filters }
}

// Projector subscribes a Projection to a Stream, replaying stored history
// before delivering live events. Handler errors are logged and do not stop
// the projector.
type Projector struct {
	stream     Stream
	decoder    Decoder
	projection Projection
	log        *slog.Logger
	filters    []StreamFilter

	closeOnce sync.Once
	closeChan chan struct{}
	done      chan struct{}
}

func NewProjector(stream Stream, decoder Decoder, projection Projection, opts ...ProjectorOption) *Projector {
	options := projectorOptions{log: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	return &Projector{
		stream:     stream,
		decoder:    decoder,
		projection: projection,
		log:        options.log.With(slog.String("projection", projection.Name())),
		filters:    options.filters,
		closeChan:  make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (p *Projector) Start(ctx context.Context) error {
	sub, err := p.stream.Subscribe(
		ctx,
		WithDeliverPolicy(DeliverAllPolicy),
		WithFilters(p.filters...),
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe projection %s: %w", p.projection.Name(), err)
	}

	p.log.Info("projector started")

	go func() {
		defer func() {
			sub.Cancel()
			close(p.done)
			p.log.Info("projector stopped")
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.closeChan:
				return
			case env, ok := <-sub.Chan():
				if !ok {
					return
				}
				if err := p.handle(ctx, env); err != nil {
					p.log.Error("projection handler failed",
						slog.String("event_id", env.ID),
						slog.String("event_type", env.Type),
						slog.Any("error", err),
					)
				}
			}
		}
	}()

	return nil
}

func (p *Projector) handle(ctx context.Context, env Envelope) error {
	event, err := p.decoder.Decode(env)
	if err != nil {
		return fmt.Errorf("failed to decode event: %w", err)
	}
	return p.projection.HandleEnvelope(ctx, env, event)
}

func (p *Projector) Stop() {
	p.closeOnce.Do(func() {
		close(p.closeChan)
		<-p.done
	})
}
