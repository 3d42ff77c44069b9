// Package tracking persists the tracked (chat, streamer, platform) triples and
// their live-state. All status/session/peak/cumulative mutations flow through
// ApplyTransitions; Add and Remove only touch identity fields.
package tracking

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Platform identifiers as stored in the subscriptions table.
const (
	PlatformTwitch  = "twitch"
	PlatformYouTube = "youtube"
)

// Subscription is one tracked (chat, streamer, platform) triple.
type Subscription struct {
	ChatID           string
	Streamer         string
	Platform         string
	UserID           string
	IsLive           bool
	AddedAt          time.Time
	SessionStart     *time.Time
	SessionEnd       *time.Time
	PeakViewers      int
	TotalLiveSeconds int64
}

// LiveTransition stages one OFFLINE->LIVE edge.
type LiveTransition struct {
	ChatID      string
	Streamer    string
	Platform    string
	StartedAt   time.Time
	PeakViewers int
}

// OfflineTransition stages one LIVE->OFFLINE edge. SessionSeconds is the
// elapsed session duration credited to the cumulative total.
type OfflineTransition struct {
	ChatID         string
	Streamer       string
	Platform       string
	EndedAt        time.Time
	SessionSeconds int64
}

type Store struct {
	DB *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{DB: db} }

// Add inserts a subscription if absent. Duplicate adds are a no-op; the
// returned bool reports whether a row was actually created.
func (s *Store) Add(ctx context.Context, chatID, streamer, platform, userID string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
		INSERT INTO subscriptions (chat_id, streamer, platform, user_id, is_live, added_at)
		VALUES ($1, $2, $3, $4, FALSE, NOW())
		ON CONFLICT (chat_id, streamer, platform) DO NOTHING`,
		chatID, streamer, platform, userID)
	if err != nil {
		return false, fmt.Errorf("insert subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Remove deletes a subscription and reports whether a row was removed.
func (s *Store) Remove(ctx context.Context, chatID, streamer, platform string) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE chat_id = $1 AND streamer = $2 AND platform = $3`,
		chatID, streamer, platform)
	if err != nil {
		return false, fmt.Errorf("delete subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// List returns all subscriptions for a chat.
func (s *Store) List(ctx context.Context, chatID string) ([]Subscription, error) {
	rows, err := s.DB.QueryContext(ctx, selectColumns+` WHERE chat_id = $1`, chatID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return scanSubscriptions(rows)
}

// All returns every subscription. Called once per reconciliation cycle.
func (s *Store) All(ctx context.Context) ([]Subscription, error) {
	rows, err := s.DB.QueryContext(ctx, selectColumns)
	if err != nil {
		return nil, fmt.Errorf("load subscriptions: %w", err)
	}
	return scanSubscriptions(rows)
}

const selectColumns = `
	SELECT chat_id, streamer, platform, user_id, is_live, added_at,
	       session_start, session_end, peak_viewers, total_live_seconds
	FROM subscriptions`

func scanSubscriptions(rows *sql.Rows) ([]Subscription, error) {
	defer rows.Close()
	var out []Subscription
	for rows.Next() {
		var sub Subscription
		var start, end sql.NullTime
		if err := rows.Scan(&sub.ChatID, &sub.Streamer, &sub.Platform, &sub.UserID,
			&sub.IsLive, &sub.AddedAt, &start, &end, &sub.PeakViewers, &sub.TotalLiveSeconds); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		if start.Valid {
			t := start.Time
			sub.SessionStart = &t
		}
		if end.Valid {
			t := end.Time
			sub.SessionEnd = &t
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// ApplyTransitions persists staged edges as two batched updates, one per
// transition kind, each applied atomically in its own transaction. The
// cumulative total is incremented in SQL so no stale field is read back.
func (s *Store) ApplyTransitions(ctx context.Context, wentLive []LiveTransition, wentOffline []OfflineTransition) error {
	if len(wentLive) > 0 {
		if err := s.applyLive(ctx, wentLive); err != nil {
			return fmt.Errorf("apply went-live batch: %w", err)
		}
	}
	if len(wentOffline) > 0 {
		if err := s.applyOffline(ctx, wentOffline); err != nil {
			return fmt.Errorf("apply went-offline batch: %w", err)
		}
	}
	return nil
}

func (s *Store) applyLive(ctx context.Context, batch []LiveTransition) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit
	for _, tr := range batch {
		if _, err := tx.ExecContext(ctx, `
			UPDATE subscriptions
			SET is_live = TRUE, session_start = $1, session_end = NULL, peak_viewers = $2
			WHERE chat_id = $3 AND streamer = $4 AND platform = $5`,
			tr.StartedAt, tr.PeakViewers, tr.ChatID, tr.Streamer, tr.Platform); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) applyOffline(ctx context.Context, batch []OfflineTransition) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit
	for _, tr := range batch {
		if _, err := tx.ExecContext(ctx, `
			UPDATE subscriptions
			SET is_live = FALSE, session_end = $1,
			    total_live_seconds = total_live_seconds + $2
			WHERE chat_id = $3 AND streamer = $4 AND platform = $5`,
			tr.EndedAt, tr.SessionSeconds, tr.ChatID, tr.Streamer, tr.Platform); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// TopByLiveTime returns up to limit streamers ordered by total live time,
// summed across chats. Used by the daily summary report.
func (s *Store) TopByLiveTime(ctx context.Context, limit int) ([]StreamerTotal, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT streamer, SUM(total_live_seconds)
		FROM subscriptions
		GROUP BY streamer
		ORDER BY SUM(total_live_seconds) DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("top streamers: %w", err)
	}
	defer rows.Close()
	var out []StreamerTotal
	for rows.Next() {
		var st StreamerTotal
		if err := rows.Scan(&st.Streamer, &st.TotalSeconds); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// StreamerTotal is one row of the daily summary.
type StreamerTotal struct {
	Streamer     string
	TotalSeconds int64
}

// Counts returns the total number of subscriptions and how many are
// currently marked live. Used by the /status endpoint.
func (s *Store) Counts(ctx context.Context) (total, live int, err error) {
	err = s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE is_live) FROM subscriptions`).Scan(&total, &live)
	return total, live, err
}
