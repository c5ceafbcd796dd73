package es

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// InMemoryStore is a simple, correct (optimistic) store for tests and
// development. It also implements Stream so projectors can subscribe.
type InMemoryStore struct {
	mu      sync.Mutex
	log     *slog.Logger
	streams map[string][]Envelope
	all     []Envelope // store append order
	subs    map[string]*memorySubscription
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		log:     slog.Default().With(slog.String("store", "memory")),
		streams: map[string][]Envelope{},
		subs:    map[string]*memorySubscription{},
	}
}

func streamKey(aggType, aggID string) string {
	return fmt.Sprintf("%s-%s", aggType, aggID)
}

func (s *InMemoryStore) Load(
	_ context.Context,
	aggType, aggID string,
	opts ...StoreLoadOption,
) ([]Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loadOpts := &storeLoadOptions{}
	for _, opt := range opts {
		opt.applyToStoreLoad(loadOpts)
	}

	events, ok := s.streams[streamKey(aggType, aggID)]
	if !ok {
		return nil, ErrAggregateNotFound
	}

	out := make([]Envelope, 0, len(events))
	for _, e := range events {
		if e.SequenceNumber < loadOpts.fromSequence {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *InMemoryStore) Append(
	_ context.Context,
	aggType, aggID string,
	expected Version,
	events []Envelope,
) (*AppendResult, error) {
	if len(events) == 0 {
		return nil, ErrNoEvents
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		sk      = streamKey(aggType, aggID)
		stream  = s.streams[sk]
		current = NewStream
	)
	if len(stream) > 0 {
		current = stream[len(stream)-1].SequenceNumber
	}
	if current != expected {
		return nil, ErrConcurrencyConflict
	}

	next := expected.Next()
	for i, e := range events {
		if err := e.Validate(); err != nil {
			return nil, err
		}
		if e.SequenceNumber != next+Version(i) {
			return nil, fmt.Errorf("gap in batch: expect seq %d, got %d", next+Version(i), e.SequenceNumber)
		}
	}

	s.streams[sk] = append(stream, events...)
	s.all = append(s.all, events...)
	last := events[len(events)-1].SequenceNumber

	s.log.Debug(
		"append",
		slog.String("stream", sk),
		last.SlogAttrWithKey("last_seq"),
		slog.Int("num_events", len(events)),
	)

	for _, sub := range s.subs {
		sub.push(events...)
	}

	return &AppendResult{LastSequence: last}, nil
}

// Subscribe registers a live subscription. With DeliverAllPolicy the stored
// history is queued ahead of live events, so a subscriber sees every matching
// envelope exactly once, in store append order.
func (s *InMemoryStore) Subscribe(ctx context.Context, opts ...SubscribeOption) (Subscription, error) {
	options := newSubscribeOpts(opts...)

	s.mu.Lock()
	defer s.mu.Unlock()

	subID := gonanoid.Must()
	sub := &memorySubscription{
		filters: options.filters,
		ch:      make(chan Envelope),
		wake:    make(chan struct{}, 1),
		cancel: func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, subID)
		},
	}

	if options.deliverPolicy == DeliverAllPolicy {
		sub.push(s.all...)
	}

	s.subs[subID] = sub
	go sub.run(ctx)

	context.AfterFunc(ctx, sub.Cancel)

	return sub, nil
}

var (
	_ EventStore = (*InMemoryStore)(nil)
	_ Stream     = (*InMemoryStore)(nil)
)

// === Subscription ===

// memorySubscription buffers matching envelopes in an unbounded queue so the
// store never blocks on a slow subscriber, and drains the queue to ch from a
// dedicated goroutine, preserving append order.
type memorySubscription struct {
	filters []StreamFilter
	ch      chan Envelope
	cancel  func()

	mu     sync.Mutex
	queue  []Envelope
	closed bool
	wake   chan struct{}
}

func (m *memorySubscription) Chan() <-chan Envelope { return m.ch }

func (m *memorySubscription) Cancel() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()
	m.cancel()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *memorySubscription) push(events ...Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	for _, e := range events {
		if matchFilters(e, m.filters) {
			m.queue = append(m.queue, e)
		}
	}
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *memorySubscription) run(ctx context.Context) {
	defer close(m.ch)
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return
		}
		if len(m.queue) == 0 {
			m.mu.Unlock()
			select {
			case <-m.wake:
				continue
			case <-ctx.Done():
				m.Cancel()
				return
			}
		}
		next := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()

		select {
		case m.ch <- next:
		case <-ctx.Done():
			m.Cancel()
			return
		}
	}
}
