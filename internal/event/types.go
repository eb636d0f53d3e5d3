package event

import (
	"strings"
	"time"
)

// CalendarType selects the calendar an event's base date is expressed in.
//
// LUNAR is accepted and stored, but occurrences are still computed with
// solar arithmetic. That mirrors the historical behavior; no lunar
// conversion happens anywhere in this repo.
type CalendarType string

const (
	CalendarSolar CalendarType = "SOLAR"
	CalendarLunar CalendarType = "LUNAR"
)

// CycleType is the repetition unit of a tracked event.
type CycleType string

const (
	CycleOnce    CycleType = "ONCE"
	CycleDaily   CycleType = "DAILY"
	CycleWeekly  CycleType = "WEEKLY"
	CycleMonthly CycleType = "MONTHLY"
	CycleYearly  CycleType = "YEARLY"
)

// DateLayout is the wire format of event base dates (date only, no zone).
const DateLayout = "2006-01-02"

// Event is a tracked recurring event (bill, birthday, renewal, ...).
//
// JSON field names match the documents the UI reads and writes; changing
// them breaks existing stored data.
type Event struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Date         string       `json:"date"` // base date, YYYY-MM-DD
	CalendarType CalendarType `json:"calendarType"`
	CycleType    CycleType    `json:"cycleType"`
	Interval     int          `json:"interval"`     // repeat every N cycle units, >= 1
	ReminderDays int          `json:"reminderDays"` // lead time in days, >= 0
	Description  string       `json:"description,omitempty"`
	CreatedAt    int64        `json:"created_at"`
}

// BaseDate parses the event's anchor date.
// Full timestamps are tolerated and truncated to their date part.
func (e Event) BaseDate() (time.Time, error) {
	s := strings.TrimSpace(e.Date)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// LedgerEntry is an expense/income record attached to an event.
// The core stores and serves these opaquely; the owning UI does the math.
type LedgerEntry struct {
	ID      string   `json:"id"`
	EventID string   `json:"eventId"`
	Date    string   `json:"date"`
	Title   string   `json:"title"`
	Amount  float64  `json:"amount"`
	Notes   string   `json:"notes"`
	Tags    []string `json:"tags"`
}

// Settings is the single process-wide notification settings document.
// All channel credentials are optional; an absent credential simply means
// that channel is not configured.
type Settings struct {
	DailyPushTime    string `json:"dailyPushTime,omitempty"` // "HH:MM"
	TelegramBotToken string `json:"telegramBotToken,omitempty"`
	TelegramChatID   string `json:"telegramChatId,omitempty"`
	BarkKey          string `json:"barkKey,omitempty"`
	PushPlusToken    string `json:"pushPlusToken,omitempty"`
	WebhookURL       string `json:"webhookUrl,omitempty"`
}
