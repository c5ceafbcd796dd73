package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/axleworks/axle-go/core/eventbus"
	"github.com/axleworks/axle-go/core/message"
)

// PublishingScheduler fires scheduled payloads onto the event bus using
// wall-clock timers.
type PublishingScheduler struct {
	log *slog.Logger
	bus eventbus.Bus

	mu     sync.Mutex
	timers map[ScheduleToken]*time.Timer
	closed bool
}

func NewPublishingScheduler(log *slog.Logger, bus eventbus.Bus) *PublishingScheduler {
	return &PublishingScheduler{
		log:    log.With(slog.String("component", "event_scheduler")),
		bus:    bus,
		timers: map[ScheduleToken]*time.Timer{},
	}
}

func (s *PublishingScheduler) ScheduleAfter(d time.Duration, payload any) (ScheduleToken, error) {
	if d < 0 {
		d = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrSchedulingFailed
	}

	token := ScheduleToken(gonanoid.Must())
	s.timers[token] = time.AfterFunc(d, func() { s.fire(token, payload) })
	return token, nil
}

func (s *PublishingScheduler) ScheduleAt(at time.Time, payload any) (ScheduleToken, error) {
	return s.ScheduleAfter(time.Until(at), payload)
}

func (s *PublishingScheduler) Cancel(token ScheduleToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[token]; ok {
		timer.Stop()
		delete(s.timers, token)
	}
}

func (s *PublishingScheduler) fire(token ScheduleToken, payload any) {
	s.mu.Lock()
	_, pending := s.timers[token]
	delete(s.timers, token)
	s.mu.Unlock()
	if !pending {
		// cancelled after the timer already fired
		return
	}

	if err := s.bus.Publish(context.Background(), message.NewEvent(payload)); err != nil {
		s.log.Error("scheduled publication failed",
			slog.String("token", string(token)),
			slog.String("err", err.Error()),
		)
	}
}

// Close cancels all pending schedules. Subsequent schedule calls fail with
// ErrSchedulingFailed.
func (s *PublishingScheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for token, timer := range s.timers {
		timer.Stop()
		delete(s.timers, token)
	}
}

var _ EventScheduler = (*PublishingScheduler)(nil)
