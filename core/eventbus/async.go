package eventbus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/axleworks/axle-go/core/message"
	"github.com/axleworks/axle-go/core/perkey"
)

// AsyncCluster hands member invocation to a per-key scheduler. The cluster's
// sequencing policy maps each event to a serial key: events with the same
// key reach the members in arrival order, events without a key run fully
// concurrently.
type AsyncCluster struct {
	name      string
	log       *slog.Logger
	metrics   Metrics
	policy    SequencingPolicy
	scheduler *perkey.Scheduler[string]

	mu      sync.RWMutex
	members []Listener

	concurrent sync.WaitGroup
}

func NewAsyncCluster(log *slog.Logger, name string, policy SequencingPolicy, opts ...ClusterOption) *AsyncCluster {
	options := clusterOptions{metrics: NopMetrics()}
	for _, opt := range opts {
		opt(&options)
	}
	return &AsyncCluster{
		name:      name,
		log:       log.With(slog.String("cluster", name)),
		metrics:   options.metrics,
		policy:    policy,
		scheduler: perkey.New[string](),
	}
}

func (c *AsyncCluster) Name() string { return c.name }

func (c *AsyncCluster) Subscribe(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.members = append(c.members, l)
}

func (c *AsyncCluster) Publish(ctx context.Context, events ...message.EventMessage) {
	for _, e := range events {
		e := e
		key, sequential := c.policy.SequenceKey(e)
		if !sequential {
			c.concurrent.Add(1)
			go func() {
				defer c.concurrent.Done()
				c.deliver(ctx, e)
			}()
			continue
		}
		if err := c.scheduler.Go(key, func() error {
			c.deliver(ctx, e)
			return nil
		}, nil); err != nil {
			c.log.Error("event dropped, cluster closed",
				slog.String("event_id", e.ID),
				slog.String("err", err.Error()),
			)
		}
	}
	c.metrics.EventsPublished(c.name, len(events))
}

func (c *AsyncCluster) deliver(ctx context.Context, e message.EventMessage) {
	c.mu.RLock()
	members := make([]Listener, len(c.members))
	copy(members, c.members)
	c.mu.RUnlock()

	for _, l := range members {
		if err := l.HandleEvent(ctx, e); err != nil {
			c.metrics.ListenerFailure(c.name)
			c.log.Error("listener failed",
				slog.String("payload_type", e.PayloadType()),
				slog.String("event_id", e.ID),
				slog.String("err", err.Error()),
			)
		}
	}
}

// Drain blocks until all events published so far have been delivered.
func (c *AsyncCluster) Drain() {
	c.scheduler.Wait()
	c.concurrent.Wait()
}

// Close drains pending deliveries and stops the cluster's workers.
func (c *AsyncCluster) Close() {
	c.scheduler.Close()
	c.concurrent.Wait()
}

var _ Cluster = (*AsyncCluster)(nil)
