// Package quota tracks daily consumed units for the quota-constrained
// platform. Gating happens before the metered call; consumption is a single
// atomic upsert so parallel checks never lose updates. A new UTC day starts a
// fresh counter implicitly via its key.
package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mkuhlmann/streamwatch/telemetry"
)

// ErrExhausted is returned by callers that gate on the ledger when the
// remaining budget cannot cover the requested cost.
var ErrExhausted = errors.New("daily quota exhausted")

type Ledger struct {
	DB  *sql.DB
	Cap int

	// Now is overridable in tests; defaults to time.Now.
	Now func() time.Time
}

func NewLedger(db *sql.DB, cap int) *Ledger {
	return &Ledger{DB: db, Cap: cap}
}

func (l *Ledger) day() string {
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	return now().UTC().Format("2006-01-02")
}

// Remaining returns cap minus today's consumed units, floored at 0.
func (l *Ledger) Remaining(ctx context.Context) (int, error) {
	var used int
	err := l.DB.QueryRowContext(ctx,
		`SELECT consumed_units FROM quota_usage WHERE day = $1`, l.day()).Scan(&used)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("read quota usage: %w", err)
	}
	rem := l.Cap - used
	if rem < 0 {
		rem = 0
	}
	return rem, nil
}

// Gate reports whether the remaining budget covers cost. It must be checked
// before issuing the metered call it protects.
func (l *Ledger) Gate(ctx context.Context, cost int) (bool, error) {
	rem, err := l.Remaining(ctx)
	if err != nil {
		return false, err
	}
	return rem >= cost, nil
}

// Consume atomically adds units to today's counter.
func (l *Ledger) Consume(ctx context.Context, units int) error {
	if units <= 0 {
		return nil
	}
	_, err := l.DB.ExecContext(ctx, `
		INSERT INTO quota_usage (day, consumed_units) VALUES ($1, $2)
		ON CONFLICT (day) DO UPDATE
		SET consumed_units = quota_usage.consumed_units + EXCLUDED.consumed_units`,
		l.day(), units)
	if err != nil {
		return fmt.Errorf("consume quota: %w", err)
	}
	telemetry.AddQuotaConsumed(units)
	return nil
}
