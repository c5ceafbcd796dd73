package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/axleworks/axle-go/core/ds"
	"github.com/axleworks/axle-go/core/message"
	"github.com/axleworks/axle-go/core/metrics"
	"github.com/axleworks/axle-go/core/perkey"
)

// Metrics is the instrumentation hook for saga management.
type Metrics interface {
	SagasCreated(sagaType string)
	SagasEnded(sagaType string)
	EventsHandled(sagaType string) metrics.Timer
	HandlerFailure(sagaType string)
}

type nopMetrics struct{}

func (nopMetrics) SagasCreated(string)                {}
func (nopMetrics) SagasEnded(string)                  {}
func (nopMetrics) EventsHandled(string) metrics.Timer { return metrics.NopTimer() }
func (nopMetrics) HandlerFailure(string)              {}

func NopMetrics() Metrics { return nopMetrics{} }

// Factory creates a fresh saga instance for events whose creation policy
// spawns one.
type Factory func() Saga

// Manager routes events to saga instances of one saga type. Per event it
// resolves the association values, finds matching sagas through the index,
// applies the creation policy, and invokes every matched saga exactly once.
// Invocations for one saga instance are serialized through a per-key
// scheduler; distinct sagas proceed concurrently.
type Manager struct {
	log       *slog.Logger
	repo      Repository
	resolver  *Resolver
	sagaType  string
	factory   Factory
	metrics   Metrics
	scheduler *perkey.Scheduler[string]
}

type managerOptions struct {
	metrics Metrics
}

type ManagerOption func(*managerOptions)

func WithMetrics(m Metrics) ManagerOption {
	return func(o *managerOptions) { o.metrics = m }
}

func NewManager(
	log *slog.Logger,
	repo Repository,
	resolver *Resolver,
	sagaType string,
	factory Factory,
	opts ...ManagerOption,
) *Manager {
	options := managerOptions{metrics: NopMetrics()}
	for _, opt := range opts {
		opt(&options)
	}

	return &Manager{
		log:       log.With(slog.String("saga_type", sagaType)),
		repo:      repo,
		resolver:  resolver,
		sagaType:  sagaType,
		factory:   factory,
		metrics:   options.metrics,
		scheduler: perkey.New[string](),
	}
}

// HandleEvent implements the event bus listener contract.
func (m *Manager) HandleEvent(ctx context.Context, e message.EventMessage) error {
	avs, policy, ok := m.resolver.Resolve(e)
	if !ok || len(avs) == 0 {
		return nil
	}

	defer m.metrics.EventsHandled(m.sagaType).ObserveDuration()

	// dedupe: a saga matching through several association values is still
	// invoked only once for this event
	matched := ds.NewSet[string]()
	for _, av := range avs {
		ids, err := m.repo.Find(ctx, m.sagaType, av)
		if err != nil {
			return fmt.Errorf("association lookup failed for %s: %w", av, err)
		}
		for _, id := range ids {
			matched.Add(id)
		}
	}

	if policy == CreateAlways || (policy == CreateIfNoneFound && matched.Len() == 0) {
		id, err := m.create(ctx, avs)
		if err != nil {
			return err
		}
		matched.Add(id)
	}

	// each matched saga runs on its serial queue; HandleEvent returns once
	// all of them finished, so ordering across successive events holds
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	matched.ForEach(func(id string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.scheduler.DoContext(ctx, id, func() error {
				return m.invoke(ctx, id, e)
			}); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	})
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	return errors.Join(errs...)
}

func (m *Manager) create(ctx context.Context, avs []AssociationValue) (string, error) {
	s := m.factory()
	for _, av := range avs {
		s.AssociateWith(av)
	}
	if err := m.repo.Add(ctx, m.sagaType, s); err != nil {
		return "", fmt.Errorf("failed to add saga: %w", err)
	}
	m.metrics.SagasCreated(m.sagaType)
	m.log.Debug("saga created", slog.String("saga_id", s.SagaID()))
	return s.SagaID(), nil
}

// invoke runs one saga's handler for the event and commits the outcome.
// Runs on the saga's serial queue.
func (m *Manager) invoke(ctx context.Context, id string, e message.EventMessage) error {
	s, err := m.repo.Load(ctx, m.sagaType, id)
	if err != nil {
		// ended concurrently between lookup and invocation
		if errors.Is(err, ErrSagaNotFound) {
			return nil
		}
		return err
	}

	if err := s.HandleEvent(ctx, e); err != nil {
		m.metrics.HandlerFailure(m.sagaType)
		m.log.Error("saga handler failed",
			slog.String("saga_id", id),
			slog.String("payload_type", e.PayloadType()),
			slog.String("err", err.Error()),
		)
		// association changes made before the failure still commit
	}

	wasActive := s.IsActive()
	if err := m.repo.Commit(ctx, m.sagaType, s); err != nil {
		return fmt.Errorf("failed to commit saga %s: %w", id, err)
	}
	if !wasActive {
		m.metrics.SagasEnded(m.sagaType)
		m.log.Debug("saga ended", slog.String("saga_id", id))
	}
	return nil
}

// Close drains in-flight invocations and stops the manager's workers.
func (m *Manager) Close() { m.scheduler.Close() }
