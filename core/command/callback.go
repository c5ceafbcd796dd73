package command

import (
	"context"
)

// Callback receives the outcome of a dispatched command. Exactly one of the
// two methods is invoked, exactly once.
type Callback interface {
	OnSuccess(ctx context.Context, result any)
	OnFailure(ctx context.Context, err error)
}

// CallbackFunc adapts a plain function to a Callback.
type CallbackFunc func(ctx context.Context, result any, err error)

func (f CallbackFunc) OnSuccess(ctx context.Context, result any) { f(ctx, result, nil) }
func (f CallbackFunc) OnFailure(ctx context.Context, err error)  { f(ctx, nil, err) }

// Future is a callback that stores the outcome for a later, possibly
// timeout-bound, wait.
type Future struct {
	done   chan struct{}
	result any
	err    error
}

func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) OnSuccess(_ context.Context, result any) {
	f.result = result
	close(f.done)
}

func (f *Future) OnFailure(_ context.Context, err error) {
	f.err = err
	close(f.done)
}

// Wait blocks until the command resolved or ctx is done.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

var (
	_ Callback = CallbackFunc(nil)
	_ Callback = (*Future)(nil)
)
