// Package cycle runs the daily reminder pass: load, match, dispatch once.
package cycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"renewd/internal/event"
	"renewd/internal/notify"
	"renewd/internal/recur"
	"renewd/internal/storage"
	logx "renewd/pkg/logx"
)

type Runner struct {
	store *storage.Store
	disp  *notify.Service
	log   logx.Logger
}

func New(store *storage.Store, disp *notify.Service, log logx.Logger) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{store: store, disp: disp, log: log}
}

// Run evaluates every tracked event against today and, if any matched,
// dispatches the whole batch as one concatenated message. That bounds
// outbound traffic to one request per channel per pass no matter how many
// events fire.
//
// The pass is best-effort: a malformed or diverging event is logged and
// skipped, and channel failures are recorded by the dispatcher without
// aborting the batch. There is no "already notified today" marker;
// running twice on the same day sends the batch twice.
func (r *Runner) Run(ctx context.Context, today time.Time) error {
	events, err := r.store.LoadEvents(ctx)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	settings, err := r.store.LoadSettings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	events, dropped := event.NormalizeAll(events)
	for _, reason := range dropped {
		r.log.Warn("skipping malformed event", logx.String("reason", reason))
	}

	today = recur.DateOnly(today)
	var lines []string
	for _, ev := range events {
		// Resolve first so pathological recurrences are caught per event
		// instead of poisoning the rest of the batch.
		if _, err := recur.Next(ev, today); err != nil {
			r.log.Warn("skipping event", logx.String("event", ev.ID), logx.Err(err))
			continue
		}
		if !recur.DueOn(ev, today) {
			continue
		}
		lines = append(lines, formatReminder(ev))
	}

	if len(lines) == 0 {
		r.log.Debug("no events due", logx.Time("today", today), logx.Int("events", len(events)))
		return nil
	}

	outcomes := r.disp.Dispatch(ctx, strings.Join(lines, "\n\n"), settings)
	sent, failed := 0, 0
	for _, o := range outcomes {
		if o.Skipped {
			continue
		}
		if o.Err != nil {
			failed++
		} else {
			sent++
		}
	}
	r.log.Info("reminder batch dispatched",
		logx.Time("today", today),
		logx.Int("matched", len(lines)),
		logx.Int("sent", sent),
		logx.Int("failed", failed),
	)
	return nil
}

func formatReminder(ev event.Event) string {
	desc := strings.TrimSpace(ev.Description)
	if desc == "" {
		desc = "无"
	}
	return fmt.Sprintf("📅 [renewd] 提醒：%s 即将到来！\n备注：%s", ev.Name, desc)
}
