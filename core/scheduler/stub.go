package scheduler

import (
	"container/heap"
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/axleworks/axle-go/core/eventbus"
	"github.com/axleworks/axle-go/core/message"
)

// StubScheduler is the virtual-clock scheduler for tests: "now" is a
// mutable cursor that only moves when AdvanceBy or AdvanceTo is called.
// Advancing fires all pending events whose trigger time falls inside the
// window, in (trigger time, creation order) order. Schedules created by the
// handlers of fired events cascade: when their trigger time still falls
// inside the window they fire within the same advance call.
type StubScheduler struct {
	log *slog.Logger
	bus eventbus.Bus

	mu      sync.Mutex
	now     time.Time
	seq     int64
	pending pendingQueue
	byToken map[ScheduleToken]*pendingEvent
}

// ScheduledItem describes one pending schedule, for test assertions.
type ScheduledItem struct {
	Token   ScheduleToken
	At      time.Time
	Payload any
}

type pendingEvent struct {
	token     ScheduleToken
	at        time.Time
	seq       int64
	payload   any
	cancelled bool
	index     int
}

func NewStubScheduler(log *slog.Logger, bus eventbus.Bus, now time.Time) *StubScheduler {
	return &StubScheduler{
		log:     log.With(slog.String("component", "stub_scheduler")),
		bus:     bus,
		now:     now,
		byToken: map[ScheduleToken]*pendingEvent{},
	}
}

// Now returns the virtual clock cursor.
func (s *StubScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *StubScheduler) ScheduleAfter(d time.Duration, payload any) (ScheduleToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduleLocked(s.now.Add(d), payload)
}

func (s *StubScheduler) ScheduleAt(at time.Time, payload any) (ScheduleToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduleLocked(at, payload)
}

func (s *StubScheduler) scheduleLocked(at time.Time, payload any) (ScheduleToken, error) {
	e := &pendingEvent{
		token:   ScheduleToken(gonanoid.Must()),
		at:      at,
		seq:     s.seq,
		payload: payload,
	}
	s.seq++
	heap.Push(&s.pending, e)
	s.byToken[e.token] = e
	return e.token, nil
}

func (s *StubScheduler) Cancel(token ScheduleToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.byToken[token]; ok {
		// lazily dropped when it reaches the top of the heap
		e.cancelled = true
		delete(s.byToken, token)
	}
}

// AdvanceBy moves the clock forward by d, firing everything due in the
// window.
func (s *StubScheduler) AdvanceBy(d time.Duration) {
	s.AdvanceTo(s.Now().Add(d))
}

// AdvanceTo moves the clock to target, firing all pending events with
// trigger time <= target in (trigger time, creation order) order. Handlers
// run without the scheduler lock, so they may schedule or cancel; new
// schedules due within the window fire in the same call. The cursor ends at
// target even when nothing fired.
func (s *StubScheduler) AdvanceTo(target time.Time) {
	for {
		s.mu.Lock()
		if s.pending.Len() == 0 || s.pending[0].at.After(target) {
			if target.After(s.now) {
				s.now = target
			}
			s.mu.Unlock()
			return
		}

		e := heap.Pop(&s.pending).(*pendingEvent)
		if e.cancelled {
			s.mu.Unlock()
			continue
		}
		delete(s.byToken, e.token)
		if e.at.After(s.now) {
			s.now = e.at
		}
		s.mu.Unlock()

		if err := s.bus.Publish(context.Background(), message.NewEvent(e.payload)); err != nil {
			s.log.Error("scheduled publication failed",
				slog.String("token", string(e.token)),
				slog.String("err", err.Error()),
			)
		}
	}
}

// Pending returns the not-yet-fired schedules in firing order.
func (s *StubScheduler) Pending() []ScheduledItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := make([]*pendingEvent, 0, len(s.byToken))
	for _, e := range s.pending {
		if !e.cancelled {
			events = append(events, e)
		}
	}
	sort.Slice(events, func(i, j int) bool {
		if !events[i].at.Equal(events[j].at) {
			return events[i].at.Before(events[j].at)
		}
		return events[i].seq < events[j].seq
	})

	items := make([]ScheduledItem, 0, len(events))
	for _, e := range events {
		items = append(items, ScheduledItem{Token: e.token, At: e.at, Payload: e.payload})
	}
	return items
}

// heap.Interface over pending events, ordered by (trigger time, creation
// order).
type pendingQueue []*pendingEvent

func (q pendingQueue) Len() int { return len(q) }

func (q pendingQueue) Less(i, j int) bool {
	if !q[i].at.Equal(q[j].at) {
		return q[i].at.Before(q[j].at)
	}
	return q[i].seq < q[j].seq
}

func (q pendingQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *pendingQueue) Push(x any) {
	e := x.(*pendingEvent)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *pendingQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return e
}

var _ EventScheduler = (*StubScheduler)(nil)
