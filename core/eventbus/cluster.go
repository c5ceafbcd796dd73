package eventbus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/axleworks/axle-go/core/message"
)

// Cluster groups listeners that share delivery semantics. The bus routes
// every published event to every cluster; the cluster decides how its
// members are invoked.
type Cluster interface {
	Name() string
	Subscribe(l Listener)
	Publish(ctx context.Context, events ...message.EventMessage)
}

// Metrics is the instrumentation hook for event distribution.
type Metrics interface {
	EventsPublished(cluster string, count int)
	ListenerFailure(cluster string)
}

type nopMetrics struct{}

func (nopMetrics) EventsPublished(string, int) {}
func (nopMetrics) ListenerFailure(string)      {}

func NopMetrics() Metrics { return nopMetrics{} }

type clusterOptions struct {
	metrics Metrics
}

type ClusterOption func(*clusterOptions)

func WithClusterMetrics(m Metrics) ClusterOption {
	return func(o *clusterOptions) { o.metrics = m }
}

// SimpleCluster invokes its members synchronously, in subscription order,
// on the publishing goroutine. A failing member is logged and skipped; the
// remaining members still receive the event.
type SimpleCluster struct {
	name    string
	log     *slog.Logger
	metrics Metrics

	mu      sync.RWMutex
	members []Listener
}

func NewSimpleCluster(log *slog.Logger, name string, opts ...ClusterOption) *SimpleCluster {
	options := clusterOptions{metrics: NopMetrics()}
	for _, opt := range opts {
		opt(&options)
	}
	return &SimpleCluster{
		name:    name,
		log:     log.With(slog.String("cluster", name)),
		metrics: options.metrics,
	}
}

func (c *SimpleCluster) Name() string { return c.name }

func (c *SimpleCluster) Subscribe(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.members = append(c.members, l)
}

func (c *SimpleCluster) Publish(ctx context.Context, events ...message.EventMessage) {
	c.mu.RLock()
	members := make([]Listener, len(c.members))
	copy(members, c.members)
	c.mu.RUnlock()

	for _, e := range events {
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
	c.metrics.EventsPublished(c.name, len(events))
}

var _ Cluster = (*SimpleCluster)(nil)
