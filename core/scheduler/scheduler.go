// Package scheduler defers event publication to a future point in time.
// The publishing scheduler runs on the wall clock; the stub scheduler runs
// on a virtual clock that only moves when a test advances it.
package scheduler

import (
	"errors"
	"time"
)

// ErrSchedulingFailed signals a transient scheduling error. Safe to retry.
var ErrSchedulingFailed = errors.New("event scheduling failed")

// ScheduleToken is an opaque handle referencing a pending scheduled
// publication.
type ScheduleToken string

// EventScheduler schedules a payload for publication on the event bus at a
// future point. Cancel removes a pending schedule and is a no-op once the
// event fired.
type EventScheduler interface {
	ScheduleAfter(d time.Duration, payload any) (ScheduleToken, error)
	ScheduleAt(at time.Time, payload any) (ScheduleToken, error)
	Cancel(token ScheduleToken)
}
