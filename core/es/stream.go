package es

import "context"

// DeliverPolicy selects where a subscription starts.
type DeliverPolicy string

const (
	// DeliverAllPolicy replays all stored events before going live.
	DeliverAllPolicy DeliverPolicy = "all"
	// DeliverNewPolicy delivers only events appended after subscribing.
	DeliverNewPolicy DeliverPolicy = "new"
)

// StreamFilter restricts a subscription. Empty fields match everything.
type StreamFilter struct {
	AggregateType string
	AggregateID   string
	EventType     string
}

type SubscribeOpts struct {
	deliverPolicy DeliverPolicy
	filters       []StreamFilter
}

type SubscribeOption func(*SubscribeOpts)

func newSubscribeOpts(opts ...SubscribeOption) SubscribeOpts {
	options := SubscribeOpts{deliverPolicy: DeliverNewPolicy}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

func WithDeliverPolicy(policy DeliverPolicy) SubscribeOption {
	return func(opts *SubscribeOpts) { opts.deliverPolicy = policy }
}

func WithFilters(filters ...StreamFilter) SubscribeOption {
	return func(opts *SubscribeOpts) { opts.filters = filters }
}

// Subscription delivers envelopes in store append order until cancelled.
type Subscription interface {
	Chan() <-chan Envelope
	Cancel()
}

// Stream is implemented by stores that support live subscriptions, used by
// projectors to build read models.
type Stream interface {
	Subscribe(ctx context.Context, opts ...SubscribeOption) (Subscription, error)
}

func matchFilters(env Envelope, filters []StreamFilter) bool {
	for _, f := range filters {
		if !matchFilter(env, f) {
			return false
		}
	}
	return true
}

func matchFilter(env Envelope, f StreamFilter) bool {
	if f.AggregateType != "" && env.AggregateType != f.AggregateType {
		return false
	}
	if f.AggregateID != "" && env.AggregateID != f.AggregateID {
		return false
	}
	if f.EventType != "" && env.Type != f.EventType {
		return false
	}
	return true
}
