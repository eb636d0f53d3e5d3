package event

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Normalize validates a single event arriving from storage or the API and
// coerces fixable fields instead of trusting raw data:
//
//   - missing id        -> assigned (uuid)
//   - interval < 1      -> coerced to 1
//   - reminderDays < 0  -> coerced to 0
//   - empty/unknown calendar type -> SOLAR
//
// Unfixable records (unparseable base date, unknown cycle type) are
// rejected so they can never reach date arithmetic.
func Normalize(e Event) (Event, error) {
	if strings.TrimSpace(e.ID) == "" {
		e.ID = uuid.NewString()
	}

	if _, err := e.BaseDate(); err != nil {
		return Event{}, fmt.Errorf("event %s: invalid date %q: %w", e.ID, e.Date, err)
	}

	switch e.CycleType {
	case CycleOnce, CycleDaily, CycleWeekly, CycleMonthly, CycleYearly:
	default:
		return Event{}, fmt.Errorf("event %s: unknown cycle type %q", e.ID, e.CycleType)
	}

	switch e.CalendarType {
	case CalendarSolar, CalendarLunar:
	default:
		e.CalendarType = CalendarSolar
	}

	if e.Interval < 1 {
		e.Interval = 1
	}
	if e.ReminderDays < 0 {
		e.ReminderDays = 0
	}
	return e, nil
}

// NormalizeAll normalizes a whole events document, dropping records that
// Normalize rejects. It returns the kept events and one reason string per
// dropped record.
func NormalizeAll(events []Event) ([]Event, []string) {
	kept := make([]Event, 0, len(events))
	var dropped []string
	for _, e := range events {
		ne, err := Normalize(e)
		if err != nil {
			dropped = append(dropped, err.Error())
			continue
		}
		kept = append(kept, ne)
	}
	return kept, dropped
}

// PruneOrphans removes ledger entries that reference no surviving event.
// Deleting an event cascades to its ledger entries; this enforces that
// invariant on every whole-document write.
func PruneOrphans(entries []LedgerEntry, events []Event) []LedgerEntry {
	ids := make(map[string]struct{}, len(events))
	for _, e := range events {
		ids[e.ID] = struct{}{}
	}
	kept := make([]LedgerEntry, 0, len(entries))
	for _, le := range entries {
		if _, ok := ids[le.EventID]; ok {
			kept = append(kept, le)
		}
	}
	return kept
}
