// Package perkey provides a scheduler that serializes work per key while
// allowing work for different keys to proceed concurrently.
//
// This is the sequencing primitive of the framework: event listeners and
// sagas require that all messages for the same sequencing key (aggregate ID,
// saga ID) are handled one at a time, in arrival order, while unrelated keys
// are free to run in parallel.
package perkey

import (
	"context"
	"errors"
	"sync"
)

// ErrSchedulerClosed is returned by Do after Close has been called.
var ErrSchedulerClosed = errors.New("perkey: scheduler closed")

// Option configures a Scheduler.
type Option func(*config)

type config struct {
	bufferSize int
}

// WithBufferSize sets the task buffer size per key (default: 64).
func WithBufferSize(size int) Option {
	return func(c *config) {
		if size > 0 {
			c.bufferSize = size
		}
	}
}

// Scheduler runs tasks such that for any given key, tasks execute
// sequentially in submission order. Tasks for different keys may run in
// parallel.
type Scheduler[K comparable] struct {
	mu         sync.Mutex
	workers    map[K]*worker
	closed     bool
	pending    sync.WaitGroup // in-flight Do calls
	running    sync.WaitGroup // worker goroutines
	bufferSize int
}

type worker struct {
	tasks chan *task
}

type task struct {
	fn   func() error
	done chan error
}

// New creates a Scheduler.
func New[K comparable](opts ...Option) *Scheduler[K] {
	cfg := &config{bufferSize: 64}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Scheduler[K]{
		workers:    make(map[K]*worker),
		bufferSize: cfg.bufferSize,
	}
}

// Do schedules fn for the given key and blocks until fn finishes, returning
// its error. All fn calls for the same key execute sequentially.
func (s *Scheduler[K]) Do(key K, fn func() error) error {
	return s.DoContext(context.Background(), key, fn)
}

// DoContext is like Do but respects context cancellation while waiting to
// enqueue or waiting for completion. A task that was already enqueued still
// executes even if the caller's context is cancelled.
func (s *Scheduler[K]) DoContext(ctx context.Context, key K, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSchedulerClosed
	}
	s.pending.Add(1)
	w := s.workerLocked(key)
	s.mu.Unlock()
	defer s.pending.Done()

	t := &task{fn: fn, done: make(chan error, 1)}

	select {
	case w.tasks <- t:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Go schedules fn for the given key without waiting for completion. The
// task's error is passed to onErr, which may be nil. Tasks are enqueued in
// call order, so per-key ordering matches submission order; when the key's
// buffer is full, Go blocks until there is room.
func (s *Scheduler[K]) Go(key K, fn func() error, onErr func(error)) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSchedulerClosed
	}
	s.pending.Add(1)
	w := s.workerLocked(key)
	s.mu.Unlock()

	t := &task{fn: fn, done: make(chan error, 1)}
	w.tasks <- t
	go func() {
		defer s.pending.Done()
		err := <-t.done
		if onErr != nil && err != nil {
			onErr(err)
		}
	}()
	return nil
}

func (s *Scheduler[K]) workerLocked(key K) *worker {
	w, ok := s.workers[key]
	if !ok {
		w = &worker{tasks: make(chan *task, s.bufferSize)}
		s.workers[key] = w
		s.running.Add(1)
		go func() {
			defer s.running.Done()
			for t := range w.tasks {
				t.done <- t.fn()
			}
		}()
	}
	return w
}

// Wait blocks until all submitted tasks have completed.
func (s *Scheduler[K]) Wait() {
	s.pending.Wait()
}

// Close stops accepting new tasks, drains queued ones, and waits for all
// workers to exit. Safe to call more than once.
func (s *Scheduler[K]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.pending.Wait()

	s.mu.Lock()
	for _, w := range s.workers {
		close(w.tasks)
	}
	s.mu.Unlock()

	s.running.Wait()
}
