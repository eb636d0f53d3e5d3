// Package recur computes occurrence dates for tracked events and decides
// which events are due for a reminder on a given day.
package recur

import (
	"errors"
	"fmt"
	"time"

	"renewd/internal/event"
)

// maxSteps bounds the forward-stepping search in Next. Realistic gaps
// between an anchor date and today are a handful of cycles; anything that
// needs this many steps is a pathological input.
const maxSteps = 10000

// ErrDiverged means the forward-stepping search hit its iteration ceiling
// without reaching today. The affected event is skipped; the rest of the
// batch keeps evaluating.
var ErrDiverged = errors.New("recurrence stepping exceeded iteration ceiling")

// DateOnly truncates t to midnight UTC so occurrence math never mixes in
// wall-clock time or zone offsets.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Next resolves the first occurrence of ev on or after today.
//
// ONCE events return their base date unchanged regardless of today. All
// other cycle types step forward from the base date one interval at a time
// until the candidate is no longer before today. Stepping through real
// calendar increments (AddDate) rather than day-count modulo keeps
// month-length and leap-year boundaries correct; the loop is bounded by
// maxSteps.
//
// Lunar events are resolved with the same solar arithmetic as solar ones.
func Next(ev event.Event, today time.Time) (time.Time, error) {
	base, err := ev.BaseDate()
	if err != nil {
		return time.Time{}, err
	}
	if ev.CycleType == event.CycleOnce {
		return base, nil
	}

	today = DateOnly(today)
	interval := ev.Interval
	if interval < 1 {
		// Validated upstream; guard anyway so the loop always progresses.
		interval = 1
	}

	next := base
	for steps := 0; next.Before(today); steps++ {
		if steps >= maxSteps {
			return time.Time{}, fmt.Errorf("event %s: %w", ev.ID, ErrDiverged)
		}
		switch ev.CycleType {
		case event.CycleDaily:
			next = next.AddDate(0, 0, interval)
		case event.CycleWeekly:
			next = next.AddDate(0, 0, 7*interval)
		case event.CycleMonthly:
			next = next.AddDate(0, interval, 0)
		case event.CycleYearly:
			next = next.AddDate(interval, 0, 0)
		default:
			return time.Time{}, fmt.Errorf("event %s: unknown cycle type %q", ev.ID, ev.CycleType)
		}
	}
	return next, nil
}
