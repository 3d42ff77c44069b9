// Package ratelimit implements a persisted fixed-window counter per
// (chat, command). The window resets wholesale at reset_at rather than
// sliding, so two bursts adjacent to a window boundary can admit up to
// 2x MaxRequests in a short span. Known tradeoff of fixed windows.
package ratelimit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type Limiter struct {
	DB          *sql.DB
	MaxRequests int
	Window      time.Duration

	// Now is overridable in tests; defaults to time.Now.
	Now func() time.Time
}

func NewLimiter(db *sql.DB, maxRequests int, window time.Duration) *Limiter {
	return &Limiter{DB: db, MaxRequests: maxRequests, Window: window}
}

func (l *Limiter) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// Allow records one invocation of command by chatID. It returns whether the
// call may proceed and, when rejected, how long until the window resets.
// The counter update is a conditional atomic increment so concurrent
// invocations never lose updates.
func (l *Limiter) Allow(ctx context.Context, chatID, command string) (bool, time.Duration, error) {
	now := l.now()
	reset := now.Add(l.Window)

	// An expired window is logically reset before use.
	if _, err := l.DB.ExecContext(ctx, `
		UPDATE rate_limits SET count = 0, reset_at = $3
		WHERE chat_id = $1 AND command = $2 AND reset_at <= $4`,
		chatID, command, reset, now); err != nil {
		return false, 0, fmt.Errorf("reset rate window: %w", err)
	}

	// Increment only while below the cap; no row comes back on rejection.
	var count int
	var resetAt time.Time
	err := l.DB.QueryRowContext(ctx, `
		INSERT INTO rate_limits (chat_id, command, count, reset_at)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (chat_id, command) DO UPDATE SET count = rate_limits.count + 1
		WHERE rate_limits.count < $4
		RETURNING count, reset_at`,
		chatID, command, reset, l.MaxRequests).Scan(&count, &resetAt)
	if err == nil {
		return true, 0, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, 0, fmt.Errorf("increment rate counter: %w", err)
	}

	// Rejected: report the remaining wait.
	if err := l.DB.QueryRowContext(ctx,
		`SELECT reset_at FROM rate_limits WHERE chat_id = $1 AND command = $2`,
		chatID, command).Scan(&resetAt); err != nil {
		return false, 0, fmt.Errorf("read rate window: %w", err)
	}
	wait := resetAt.Sub(now)
	if wait < 0 {
		wait = 0
	}
	return false, wait, nil
}
