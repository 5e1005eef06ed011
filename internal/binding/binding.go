// Package binding answers the one question the recognition worker asks on
// every frame: which Event, if any, is this camera currently serving?
package binding

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/technosupport/sentinel/internal/models"
	"github.com/technosupport/sentinel/internal/repository"
)

// Resolver resolves the active event for a camera at call time.
type Resolver struct {
	store repository.Store
	now   func() time.Time
}

// New builds a Resolver against the given store. now defaults to
// time.Now; tests inject a fixed clock.
func New(store repository.Store, now func() time.Time) *Resolver {
	if now == nil {
		now = time.Now
	}
	return &Resolver{store: store, now: now}
}

// ActiveEventForCamera returns the id of the Event currently binding this
// camera, or ok=false if none is active right now. Ties are broken by
// preferring the Event with the latest CreatedAt.
func (r *Resolver) ActiveEventForCamera(ctx context.Context, cameraID uuid.UUID) (uuid.UUID, bool, error) {
	bindings, err := r.store.EventCameras().FindByCameraID(ctx, cameraID)
	if err != nil {
		return uuid.UUID{}, false, fmt.Errorf("find event cameras for camera %s: %w", cameraID, err)
	}

	now := r.now()
	var best *models.Event
	for _, b := range bindings {
		if !b.IsActive {
			continue
		}
		ev, err := r.store.Events().Get(ctx, b.EventID)
		if err != nil {
			return uuid.UUID{}, false, fmt.Errorf("get event %s: %w", b.EventID, err)
		}
		if ev == nil || !ev.IsActive || !ev.IsScheduled {
			continue
		}
		if !ShouldBeActive(*ev, now) {
			continue
		}
		if best == nil || ev.CreatedAt.After(best.CreatedAt) {
			best = ev
		}
	}
	if best == nil {
		return uuid.UUID{}, false, nil
	}
	return best.ID, true, nil
}

// ShouldBeActive decides whether an Event's schedule covers instant now.
// A misconfigured schedule (e.g. weekly with no weekDays) resolves to
// false rather than erroring, per the engine's "schedule misconfiguration
// is not an error" policy.
func ShouldBeActive(e models.Event, now time.Time) bool {
	if !e.IsScheduled || e.Type != "scheduled" {
		return false
	}
	if !inTimeWindow(now, e.StartTime, e.EndTime) {
		return false
	}
	switch e.RecurrenceType {
	case models.RecurrenceOnce:
		if e.ScheduledDate == nil {
			return false
		}
		return sameDate(*e.ScheduledDate, now)
	case models.RecurrenceDaily:
		return true
	case models.RecurrenceWeekly:
		if len(e.WeekDays) == 0 {
			return false
		}
		today := weekDayOf(now)
		for _, d := range e.WeekDays {
			if d == today {
				return true
			}
		}
		return false
	case models.RecurrenceMonthly:
		// Monthly recurrence has no day-of-month field in the data model;
		// treated as never active rather than guessing a day.
		return false
	default:
		return false
	}
}

// inTimeWindow compares now's local HH:MM against [start, end), both
// "HH:MM" strings. A malformed bound resolves to not-in-window.
func inTimeWindow(now time.Time, start, end string) bool {
	s, errStart := time.Parse("15:04", start)
	e, errEnd := time.Parse("15:04", end)
	if errStart != nil || errEnd != nil {
		return false
	}
	cur := now.Hour()*60 + now.Minute()
	// end is deliberately exclusive: an event scheduled 09:00-17:00 frees
	// the camera at 17:00 sharp instead of holding it for one more minute.
	return cur >= s.Hour()*60+s.Minute() && cur < e.Hour()*60+e.Minute()
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func weekDayOf(t time.Time) models.WeekDay {
	switch t.Weekday() {
	case time.Sunday:
		return models.Sunday
	case time.Monday:
		return models.Monday
	case time.Tuesday:
		return models.Tuesday
	case time.Wednesday:
		return models.Wednesday
	case time.Thursday:
		return models.Thursday
	case time.Friday:
		return models.Friday
	default:
		return models.Saturday
	}
}
