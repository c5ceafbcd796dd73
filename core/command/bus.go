// Package command routes command messages to exactly one registered handler.
// Handlers register per payload type; when a payload structurally matches
// several handlers through the type hierarchy, a deterministic specificity
// ranking picks the winner.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/axleworks/axle-go/core/message"
	"github.com/axleworks/axle-go/core/metrics"
)

// ErrNoHandler is delivered on the callback failure path when no registered
// handler accepts the command's payload type.
var ErrNoHandler = errors.New("no handler for command")

// Handler processes a single command and returns its result.
type Handler func(ctx context.Context, cmd message.CommandMessage) (any, error)

// Bus dispatches commands to a single handler.
type Bus interface {
	// Dispatch fires the command without waiting for a result. Failures
	// are logged.
	Dispatch(ctx context.Context, cmd message.CommandMessage)
	// DispatchWithCallback resolves cb with the handler outcome. The
	// callback always resolves, success or failure.
	DispatchWithCallback(ctx context.Context, cmd message.CommandMessage, cb Callback)
	// DispatchAndWait blocks until the handler resolved or ctx is done.
	DispatchAndWait(ctx context.Context, cmd message.CommandMessage) (any, error)
	// Subscribe registers handler for payloadType. A later subscription
	// for the same payload type replaces the earlier one.
	Subscribe(payloadType string, handler Handler, opts ...SubscribeOption)
}

// Metrics is the instrumentation hook for the command bus.
type Metrics interface {
	DispatchDuration(payloadType string) metrics.Timer
	DispatchFailed(payloadType string)
}

type nopMetrics struct{}

func (nopMetrics) DispatchDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopMetrics) DispatchFailed(string)                 {}

func NopMetrics() Metrics { return nopMetrics{} }

type subscription struct {
	payloadType      string
	handler          Handler
	declarationDepth int
}

// SubscribeOption configures a single subscription.
type SubscribeOption func(*subscription)

// WithDeclarationDepth records how specific the declaring side of the
// handler is. Deeper declarations outrank shallower ones when several
// handlers accept the same payload. Defaults to 1.
func WithDeclarationDepth(depth int) SubscribeOption {
	return func(s *subscription) { s.declarationDepth = depth }
}

// SimpleBus is a synchronous, in-process command bus. Handlers run on the
// dispatching goroutine; panics are recovered and turned into callback
// failures.
type SimpleBus struct {
	log       *slog.Logger
	hierarchy *TypeHierarchy
	metrics   Metrics

	mu       sync.RWMutex
	handlers map[string]*subscription
}

type busOptions struct {
	hierarchy *TypeHierarchy
	metrics   Metrics
}

type BusOption func(*busOptions)

// WithHierarchy supplies the payload type hierarchy used for polymorphic
// handler matching. Without one, dispatch matches by exact payload type
// name only.
func WithHierarchy(h *TypeHierarchy) BusOption {
	return func(o *busOptions) { o.hierarchy = h }
}

func WithMetrics(m Metrics) BusOption {
	return func(o *busOptions) { o.metrics = m }
}

func NewSimpleBus(log *slog.Logger, opts ...BusOption) *SimpleBus {
	options := busOptions{
		hierarchy: NewTypeHierarchy(),
		metrics:   NopMetrics(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &SimpleBus{
		log:       log.With(slog.String("component", "command_bus")),
		hierarchy: options.hierarchy,
		metrics:   options.metrics,
		handlers:  map[string]*subscription{},
	}
}

func (b *SimpleBus) Subscribe(payloadType string, handler Handler, opts ...SubscribeOption) {
	sub := &subscription{
		payloadType:      payloadType,
		handler:          handler,
		declarationDepth: 1,
	}
	for _, opt := range opts {
		opt(sub)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.handlers[payloadType]; exists {
		b.log.Warn("handler replaced", slog.String("payload_type", payloadType))
	}
	b.handlers[payloadType] = sub
}

func (b *SimpleBus) Dispatch(ctx context.Context, cmd message.CommandMessage) {
	b.DispatchWithCallback(ctx, cmd, CallbackFunc(func(ctx context.Context, _ any, err error) {
		if err != nil {
			b.log.Error("command failed",
				slog.String("payload_type", cmd.PayloadType()),
				slog.String("command_id", cmd.ID),
				slog.String("err", err.Error()),
			)
		}
	}))
}

func (b *SimpleBus) DispatchWithCallback(ctx context.Context, cmd message.CommandMessage, cb Callback) {
	payloadType := cmd.PayloadType()
	defer b.metrics.DispatchDuration(payloadType).ObserveDuration()

	sub := b.resolve(payloadType)
	if sub == nil {
		b.metrics.DispatchFailed(payloadType)
		cb.OnFailure(ctx, fmt.Errorf("%w: payload_type=%s", ErrNoHandler, payloadType))
		return
	}

	result, err := b.invoke(ctx, sub, cmd)
	if err != nil {
		b.metrics.DispatchFailed(payloadType)
		cb.OnFailure(ctx, err)
		return
	}
	cb.OnSuccess(ctx, result)
}

func (b *SimpleBus) DispatchAndWait(ctx context.Context, cmd message.CommandMessage) (any, error) {
	future := NewFuture()
	go b.DispatchWithCallback(ctx, cmd, future)
	return future.Wait(ctx)
}

// resolve picks the handler for payloadType: candidates are the handlers
// registered for the payload type itself or any of its supertypes, ranked
// by specificity. The best ranked candidate wins.
func (b *SimpleBus) resolve(payloadType string) *subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()

	type candidate struct {
		sub   *subscription
		score score
	}

	var candidates []candidate
	for _, name := range b.hierarchy.Closure(payloadType) {
		sub, ok := b.handlers[name]
		if !ok {
			continue
		}
		candidates = append(candidates, candidate{
			sub:   sub,
			score: b.hierarchy.scoreFor(sub.declarationDepth, name),
		})
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score.Less(candidates[j].score)
	})
	return candidates[0].sub
}

// invoke runs the handler, converting a panic into an error so the callback
// always resolves and the dispatching goroutine survives.
func (b *SimpleBus) invoke(ctx context.Context, sub *subscription, cmd message.CommandMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("handler panicked",
				slog.String("payload_type", sub.payloadType),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("handler for %s panicked: %v", sub.payloadType, r)
		}
	}()
	return sub.handler(ctx, cmd)
}

var _ Bus = (*SimpleBus)(nil)
