// Package report delivers the daily watch-time summary to the admin chat.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mkuhlmann/streamwatch/notify"
	"github.com/mkuhlmann/streamwatch/tracking"
)

const defaultLimit = 5

// Store is the read surface the report needs.
type Store interface {
	TopByLiveTime(ctx context.Context, limit int) ([]tracking.StreamerTotal, error)
}

// Job sends the top-streamers summary once a day at Hour UTC.
type Job struct {
	Store       Store
	Notifier    notify.Notifier
	AdminChatID string
	// Hour is the UTC hour of day the report fires at.
	Hour  int
	Limit int

	Now func() time.Time
}

func (j *Job) now() time.Time {
	if j.Now != nil {
		return j.Now()
	}
	return time.Now()
}

func (j *Job) limit() int {
	if j.Limit > 0 {
		return j.Limit
	}
	return defaultLimit
}

// NextRun returns the next firing time strictly after now.
func (j *Job) NextRun(now time.Time) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), j.Hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

// Run blocks until ctx is cancelled, firing once per day. A failed send is
// logged and retried at the next scheduled time.
func (j *Job) Run(ctx context.Context) {
	if j.AdminChatID == "" {
		slog.Info("daily report disabled: no admin chat configured", slog.String("component", "report"))
		return
	}
	slog.Info("daily report job starting",
		slog.String("component", "report"),
		slog.Int("hour_utc", j.Hour))
	for {
		wait := j.NextRun(j.now()).Sub(j.now())
		select {
		case <-ctx.Done():
			slog.Info("daily report job stopped", slog.String("component", "report"))
			return
		case <-time.After(wait):
			if err := j.Send(ctx); err != nil {
				slog.Error("daily report failed",
					slog.String("component", "report"),
					slog.Any("err", err))
			}
		}
	}
}

// Send builds and delivers one summary immediately.
func (j *Job) Send(ctx context.Context) error {
	top, err := j.Store.TopByLiveTime(ctx, j.limit())
	if err != nil {
		return fmt.Errorf("load top streamers: %w", err)
	}
	text := Format(top)
	if err := j.Notifier.Message(ctx, j.AdminChatID, text); err != nil {
		return fmt.Errorf("deliver report: %w", err)
	}
	slog.Info("daily report sent",
		slog.String("component", "report"),
		slog.Int("entries", len(top)))
	return nil
}

// Format renders the summary as plain text.
func Format(top []tracking.StreamerTotal) string {
	if len(top) == 0 {
		return "Daily summary: no tracked streamers yet."
	}
	var b strings.Builder
	b.WriteString("Daily summary, top streamers by live time:\n")
	for i, st := range top {
		d := time.Duration(st.TotalSeconds) * time.Second
		fmt.Fprintf(&b, "%d. %s: %dh %dm\n", i+1, st.Streamer,
			int(d.Hours()), int(d.Minutes())%60)
	}
	return notify.Truncate(strings.TrimRight(b.String(), "\n"))
}
