// Package engine runs the periodic reconciliation loop: it snapshots the
// tracked subscriptions, checks live status per platform and turns the
// observed edges into persisted transitions and notifications.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mkuhlmann/streamwatch/notify"
	"github.com/mkuhlmann/streamwatch/telemetry"
	"github.com/mkuhlmann/streamwatch/tracking"
	"github.com/mkuhlmann/streamwatch/twitchapi"
	"github.com/mkuhlmann/streamwatch/youtubeapi"
)

// SubscriptionStore is the persistence surface the loop needs.
type SubscriptionStore interface {
	All(ctx context.Context) ([]tracking.Subscription, error)
	ApplyTransitions(ctx context.Context, live []tracking.LiveTransition, offline []tracking.OfflineTransition) error
	Counts(ctx context.Context) (total, live int, err error)
}

// TwitchClient is the batch live-status surface.
type TwitchClient interface {
	GetStreams(ctx context.Context, userIDs []string) (map[string]twitchapi.Stream, error)
	GetRecentClip(ctx context.Context, broadcasterID string) (string, error)
}

// YouTubeClient is the metered per-channel live-check surface.
type YouTubeClient interface {
	CheckLive(ctx context.Context, channelID string) (youtubeapi.LiveStatus, error)
}

// QuotaGate answers whether a whole YouTube pass fits in today's budget.
type QuotaGate interface {
	Gate(ctx context.Context, cost int) (bool, error)
	Remaining(ctx context.Context) (int, error)
}

// CycleStats summarizes the most recent reconciliation cycle.
type CycleStats struct {
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration_ns"`
	Subscriptions   int           `json:"subscriptions"`
	TwitchChecked   int           `json:"twitch_checked"`
	YouTubeChecked  int           `json:"youtube_checked"`
	YouTubeSkipped  bool          `json:"youtube_skipped"`
	WentLive        int           `json:"went_live"`
	WentOffline     int           `json:"went_offline"`
	Error           string        `json:"error,omitempty"`
}

// Reconciler drives the fixed-period reconciliation loop. Cycles are
// independent: a failed cycle is reported and the next tick proceeds.
type Reconciler struct {
	Store    SubscriptionStore
	Twitch   TwitchClient
	YouTube  YouTubeClient
	Quota    QuotaGate
	Notifier notify.Notifier

	Interval     time.Duration
	InitialDelay time.Duration
	// CallCost is the quota cost of one YouTube live check, used for the
	// all-or-nothing pre-gate over the whole platform pass.
	CallCost int
	// AdminChatID receives operational-error notifications.
	AdminChatID string

	Now func() time.Time

	mu   sync.Mutex
	last CycleStats
}

// LastCycle returns a copy of the most recent cycle's stats.
func (r *Reconciler) LastCycle() CycleStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Run blocks until ctx is cancelled. The first cycle starts after
// InitialDelay, subsequent cycles on a fixed Interval ticker.
func (r *Reconciler) Run(ctx context.Context) {
	slog.Info("reconciler starting",
		slog.String("component", "engine"),
		slog.Duration("interval", r.Interval),
		slog.Duration("initial_delay", r.InitialDelay))

	select {
	case <-ctx.Done():
		return
	case <-time.After(r.InitialDelay):
	}
	r.cycle(ctx)

	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("reconciler stopped", slog.String("component", "engine"))
			return
		case <-ticker.C:
			r.cycle(ctx)
		}
	}
}

func (r *Reconciler) cycle(ctx context.Context) {
	telemetry.ReconcileCycles.Inc()
	var stats CycleStats
	d := telemetry.TimeFunc(telemetry.CycleDuration, func() {
		stats = r.runCycle(ctx)
	})
	stats.Duration = d

	r.mu.Lock()
	r.last = stats
	r.mu.Unlock()

	if stats.Error != "" {
		telemetry.ReconcileCycleErrors.Inc()
		slog.Error("reconciliation cycle failed",
			slog.String("component", "engine"),
			slog.String("err", stats.Error))
		if r.AdminChatID != "" {
			ev := notify.NewErrorEvent(r.AdminChatID, "reconciliation cycle failed: "+stats.Error)
			if nerr := r.Notifier.OperationalError(ctx, ev); nerr != nil {
				telemetry.NotifyFailures.Inc()
				slog.Error("operational-error notification failed", slog.Any("err", nerr))
			}
		}
		return
	}
	slog.Debug("reconciliation cycle complete",
		slog.String("component", "engine"),
		slog.Int("subscriptions", stats.Subscriptions),
		slog.Int("went_live", stats.WentLive),
		slog.Int("went_offline", stats.WentOffline),
		slog.Duration("duration", d))
}

func (r *Reconciler) runCycle(ctx context.Context) CycleStats {
	stats := CycleStats{StartedAt: r.now()}

	subs, err := r.Store.All(ctx)
	if err != nil {
		stats.Error = fmt.Sprintf("load subscriptions: %v", err)
		return stats
	}
	stats.Subscriptions = len(subs)

	var twitchSubs, youtubeSubs []tracking.Subscription
	for _, sub := range subs {
		switch sub.Platform {
		case tracking.PlatformTwitch:
			twitchSubs = append(twitchSubs, sub)
		case tracking.PlatformYouTube:
			youtubeSubs = append(youtubeSubs, sub)
		}
	}

	var live []tracking.LiveTransition
	var offline []tracking.OfflineTransition

	if len(twitchSubs) > 0 {
		l, o, checked, err := r.reconcileTwitch(ctx, twitchSubs)
		if err != nil {
			stats.Error = fmt.Sprintf("twitch pass: %v", err)
			return stats
		}
		stats.TwitchChecked = checked
		live = append(live, l...)
		offline = append(offline, o...)
	}

	if len(youtubeSubs) > 0 {
		l, o, checked, skipped := r.reconcileYouTube(ctx, youtubeSubs)
		stats.YouTubeChecked = checked
		stats.YouTubeSkipped = skipped
		live = append(live, l...)
		offline = append(offline, o...)
	}

	stats.WentLive = len(live)
	stats.WentOffline = len(offline)

	if err := r.Store.ApplyTransitions(ctx, live, offline); err != nil {
		stats.Error = fmt.Sprintf("apply transitions: %v", err)
		return stats
	}

	r.updateGauges(ctx)
	return stats
}

// reconcileTwitch diffs the batch live lookup against stored state. A failed
// lookup fails the whole pass; absence from the response is a confirmed
// offline.
func (r *Reconciler) reconcileTwitch(ctx context.Context, subs []tracking.Subscription) ([]tracking.LiveTransition, []tracking.OfflineTransition, int, error) {
	ids := make([]string, 0, len(subs))
	seen := make(map[string]bool, len(subs))
	for _, sub := range subs {
		if sub.UserID == "" || seen[sub.UserID] {
			continue
		}
		seen[sub.UserID] = true
		ids = append(ids, sub.UserID)
	}
	if len(ids) == 0 {
		return nil, nil, 0, nil
	}

	streams, err := r.Twitch.GetStreams(ctx, ids)
	if err != nil {
		return nil, nil, 0, err
	}

	var live []tracking.LiveTransition
	var offline []tracking.OfflineTransition
	checked := 0
	for _, sub := range subs {
		if sub.UserID == "" {
			continue
		}
		checked++
		stream, isLive := streams[sub.UserID]
		switch {
		case isLive && !sub.IsLive:
			ev := notify.LiveEvent{
				ChatID:       sub.ChatID,
				Streamer:     sub.Streamer,
				Platform:     sub.Platform,
				Title:        stream.Title,
				ViewerCount:  stream.ViewerCount,
				ThumbnailURL: stream.Thumbnail(640, 360),
			}
			// Best effort: a missing clip never blocks the announcement.
			if clip, err := r.Twitch.GetRecentClip(ctx, sub.UserID); err == nil {
				ev.ClipURL = clip
			} else {
				slog.Debug("clip lookup failed", slog.String("streamer", sub.Streamer), slog.Any("err", err))
			}
			// Session start is the detection edge, not the platform's stream
			// start. A stream already in progress when tracking begins is
			// credited only for tracked time.
			tr := tracking.LiveTransition{
				ChatID:      sub.ChatID,
				Streamer:    sub.Streamer,
				Platform:    sub.Platform,
				StartedAt:   r.now(),
				PeakViewers: stream.ViewerCount,
			}
			if st := r.emitLive(ctx, ev, tr); st != nil {
				live = append(live, *st)
			}
		case !isLive && sub.IsLive:
			if tr := r.stageOffline(ctx, sub); tr != nil {
				offline = append(offline, *tr)
			}
		}
	}
	return live, offline, checked, nil
}

// reconcileYouTube runs the metered sequential pass. The whole pass is
// pre-gated against the daily budget; when it does not fit, the pass is
// skipped entirely rather than checking a prefix of the channels. Unknown
// results carry no new information and never produce a transition.
func (r *Reconciler) reconcileYouTube(ctx context.Context, subs []tracking.Subscription) ([]tracking.LiveTransition, []tracking.OfflineTransition, int, bool) {
	cost := r.CallCost * len(subs)
	ok, err := r.Quota.Gate(ctx, cost)
	if err != nil {
		slog.Error("quota gate failed", slog.String("component", "engine"), slog.Any("err", err))
		return nil, nil, 0, true
	}
	if !ok {
		telemetry.QuotaRejections.Inc()
		slog.Warn("youtube pass skipped: daily quota cannot cover it",
			slog.String("component", "engine"),
			slog.Int("channels", len(subs)),
			slog.Int("cost", cost))
		return nil, nil, 0, true
	}

	var live []tracking.LiveTransition
	var offline []tracking.OfflineTransition
	checked := 0
	for _, sub := range subs {
		if sub.UserID == "" {
			continue
		}
		status, err := r.YouTube.CheckLive(ctx, sub.UserID)
		if err != nil {
			slog.Warn("youtube live check failed",
				slog.String("streamer", sub.Streamer),
				slog.Any("err", err))
		}
		checked++
		if status.Degraded {
			telemetry.DegradedChecks.Inc()
		}
		switch {
		case status.State == youtubeapi.StateLive && !sub.IsLive:
			ev := notify.LiveEvent{
				ChatID:   sub.ChatID,
				Streamer: sub.Streamer,
				Platform: sub.Platform,
				Title:    status.Title,
				Degraded: status.Degraded,
			}
			tr := tracking.LiveTransition{
				ChatID:    sub.ChatID,
				Streamer:  sub.Streamer,
				Platform:  sub.Platform,
				StartedAt: r.now(),
			}
			if st := r.emitLive(ctx, ev, tr); st != nil {
				live = append(live, *st)
			}
		case status.State == youtubeapi.StateOffline && sub.IsLive:
			if tr := r.stageOffline(ctx, sub); tr != nil {
				offline = append(offline, *tr)
			}
		}
	}
	return live, offline, checked, false
}

// emitLive delivers the went-live notification and, on success, returns the
// transition to stage. A failed delivery leaves stored state untouched so the
// edge is re-detected and re-announced next cycle.
func (r *Reconciler) emitLive(ctx context.Context, ev notify.LiveEvent, tr tracking.LiveTransition) *tracking.LiveTransition {
	if err := r.Notifier.StreamLive(ctx, ev); err != nil {
		telemetry.NotifyFailures.Inc()
		slog.Error("live notification failed",
			slog.String("streamer", ev.Streamer),
			slog.Any("err", err))
		return nil
	}
	telemetry.RecordTransition(tr.Platform, "live")
	slog.Info("stream went live",
		slog.String("streamer", tr.Streamer),
		slog.String("platform", tr.Platform),
		slog.String("chat_id", tr.ChatID))
	return &tr
}

func (r *Reconciler) stageOffline(ctx context.Context, sub tracking.Subscription) *tracking.OfflineTransition {
	endedAt := r.now()
	var seconds int64
	if sub.SessionStart != nil {
		seconds = int64(endedAt.Sub(*sub.SessionStart) / time.Second)
		if seconds < 0 {
			seconds = 0
		}
	}
	ev := notify.OfflineEvent{
		ChatID:   sub.ChatID,
		Streamer: sub.Streamer,
		Platform: sub.Platform,
		Duration: time.Duration(seconds) * time.Second,
	}
	if err := r.Notifier.StreamOffline(ctx, ev); err != nil {
		telemetry.NotifyFailures.Inc()
		slog.Error("offline notification failed",
			slog.String("streamer", sub.Streamer),
			slog.Any("err", err))
		return nil
	}
	telemetry.RecordTransition(sub.Platform, "offline")
	slog.Info("stream went offline",
		slog.String("streamer", sub.Streamer),
		slog.String("platform", sub.Platform),
		slog.Int64("session_seconds", seconds))
	return &tracking.OfflineTransition{
		ChatID:         sub.ChatID,
		Streamer:       sub.Streamer,
		Platform:       sub.Platform,
		EndedAt:        endedAt,
		SessionSeconds: seconds,
	}
}

func (r *Reconciler) updateGauges(ctx context.Context) {
	if total, liveCount, err := r.Store.Counts(ctx); err == nil {
		telemetry.SetSubscriptionCounts(total, liveCount)
	}
	if remaining, err := r.Quota.Remaining(ctx); err == nil {
		telemetry.SetQuotaRemaining(remaining)
	}
}
