package recur

import (
	"time"

	"renewd/internal/event"
)

// DueOn reports whether today is the trigger day for ev's upcoming
// occurrence, i.e. whether today + reminderDays lands on the event.
//
// Matching compares against the literal stored anchor date, not the
// resolved next occurrence:
//
//	YEARLY  -> anchor month and day
//	MONTHLY -> anchor day of month
//	ONCE    -> full anchor date
//
// DAILY and WEEKLY have no matching rule: a month/day comparison cannot
// express "every N days since the anchor", so those events never fire
// here. This is a known limitation carried over deliberately.
//
// Well-formed input never produces an error; events with an unparseable
// date simply don't match.
func DueOn(ev event.Event, today time.Time) bool {
	anchor, err := ev.BaseDate()
	if err != nil {
		return false
	}

	lead := ev.ReminderDays
	if lead < 0 {
		lead = 0
	}
	check := DateOnly(today).AddDate(0, 0, lead)

	switch ev.CycleType {
	case event.CycleYearly:
		return check.Month() == anchor.Month() && check.Day() == anchor.Day()
	case event.CycleMonthly:
		return check.Day() == anchor.Day()
	case event.CycleOnce:
		return check.Year() == anchor.Year() &&
			check.Month() == anchor.Month() &&
			check.Day() == anchor.Day()
	default:
		return false
	}
}
