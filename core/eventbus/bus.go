// Package eventbus distributes committed events to subscribed listeners.
// Listeners are grouped into clusters; a cluster selector decides which
// cluster a listener joins, and the cluster decides delivery semantics
// (synchronous ordered fan-out or asynchronous per-key sequencing).
package eventbus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/axleworks/axle-go/core/message"
)

// ClusterSelector maps a subscribing listener to the cluster that should
// host it. Returning nil lets a later selector (or the default cluster)
// take over.
type ClusterSelector interface {
	SelectCluster(l Listener) Cluster
}

// ClusterSelectorFunc adapts a plain function to a ClusterSelector.
type ClusterSelectorFunc func(l Listener) Cluster

func (f ClusterSelectorFunc) SelectCluster(l Listener) Cluster { return f(l) }

// CompositeSelector tries each selector in order and returns the first
// non-nil cluster.
func CompositeSelector(selectors ...ClusterSelector) ClusterSelector {
	return ClusterSelectorFunc(func(l Listener) Cluster {
		for _, s := range selectors {
			if c := s.SelectCluster(l); c != nil {
				return c
			}
		}
		return nil
	})
}

// Bus publishes events to all clusters holding at least one listener.
type Bus interface {
	Publish(ctx context.Context, events ...message.EventMessage) error
	Subscribe(l Listener)
}

// ClusteringBus routes subscriptions through a cluster selector and fans
// published events out to every known cluster.
type ClusteringBus struct {
	log      *slog.Logger
	selector ClusterSelector
	fallback Cluster

	mu       sync.RWMutex
	clusters map[string]Cluster
}

type busOptions struct {
	selector ClusterSelector
}

type BusOption func(*busOptions)

// WithSelector installs the cluster selector consulted before falling back
// to the default cluster.
func WithSelector(s ClusterSelector) BusOption {
	return func(o *busOptions) { o.selector = s }
}

// NewClusteringBus creates a bus whose listeners land in the default
// synchronous cluster unless a selector places them elsewhere.
func NewClusteringBus(log *slog.Logger, opts ...BusOption) *ClusteringBus {
	options := busOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	b := &ClusteringBus{
		log:      log.With(slog.String("component", "event_bus")),
		selector: options.selector,
		fallback: NewSimpleCluster(log, "default"),
		clusters: map[string]Cluster{},
	}
	return b
}

func (b *ClusteringBus) Subscribe(l Listener) {
	cluster := b.fallback
	if b.selector != nil {
		if c := b.selector.SelectCluster(l); c != nil {
			cluster = c
		}
	}

	b.mu.Lock()
	b.clusters[cluster.Name()] = cluster
	b.mu.Unlock()

	cluster.Subscribe(l)
	b.log.Debug("listener subscribed", slog.String("cluster", cluster.Name()))
}

func (b *ClusteringBus) Publish(ctx context.Context, events ...message.EventMessage) error {
	if len(events) == 0 {
		return nil
	}

	b.mu.RLock()
	clusters := make([]Cluster, 0, len(b.clusters))
	for _, c := range b.clusters {
		clusters = append(clusters, c)
	}
	b.mu.RUnlock()

	for _, c := range clusters {
		c.Publish(ctx, events...)
	}
	return nil
}

var _ Bus = (*ClusteringBus)(nil)
