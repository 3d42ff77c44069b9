// Package commands implements the transport-facing command handlers. The
// chat transport parses user input, calls a handler and renders the returned
// reply string; everything behind that boundary (rate limiting, identifier
// resolution, persistence) lives here.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mkuhlmann/streamwatch/quota"
	"github.com/mkuhlmann/streamwatch/telemetry"
	"github.com/mkuhlmann/streamwatch/tracking"
	"github.com/mkuhlmann/streamwatch/twitchapi"
	"github.com/mkuhlmann/streamwatch/youtubeapi"
)

// UserInputError marks failures caused by the user's input. The transport
// shows the message verbatim instead of a generic error.
type UserInputError struct {
	Message string
}

func (e *UserInputError) Error() string { return e.Message }

func inputErrorf(format string, args ...any) error {
	return &UserInputError{Message: fmt.Sprintf(format, args...)}
}

// RateLimitedError is returned when the per-chat command budget is spent.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry in %s", e.RetryAfter.Round(time.Second))
}

// SubscriptionStore is the persistence surface the handlers need.
type SubscriptionStore interface {
	Add(ctx context.Context, chatID, streamer, platform, userID string) (bool, error)
	Remove(ctx context.Context, chatID, streamer, platform string) (bool, error)
	List(ctx context.Context, chatID string) ([]tracking.Subscription, error)
}

// RateLimiter gates command invocations per (chat, command).
type RateLimiter interface {
	Allow(ctx context.Context, chatID, command string) (bool, time.Duration, error)
}

// TwitchResolver resolves a login to its user id.
type TwitchResolver interface {
	GetUserID(ctx context.Context, login string) (string, error)
}

// YouTubeResolver resolves a channel name to its channel id (metered).
type YouTubeResolver interface {
	ResolveChannelID(ctx context.Context, name string) (string, error)
}

// QuotaReader exposes the remaining daily YouTube budget.
type QuotaReader interface {
	Remaining(ctx context.Context) (int, error)
}

type Handler struct {
	Store   SubscriptionStore
	Limiter RateLimiter
	Twitch  TwitchResolver
	YouTube YouTubeResolver
	Quota   QuotaReader

	// ResolutionCost is the quota cost of one YouTube channel resolution,
	// checked before attempting it.
	ResolutionCost int
}

// limit consumes one rate-limit slot and converts a rejection into
// RateLimitedError.
func (h *Handler) limit(ctx context.Context, chatID, command string) error {
	allowed, retryAfter, err := h.Limiter.Allow(ctx, chatID, command)
	if err != nil {
		return fmt.Errorf("rate limit check: %w", err)
	}
	if !allowed {
		telemetry.RateLimitRejections.Inc()
		slog.Debug("command rate limited",
			slog.String("chat_id", chatID),
			slog.String("command", command),
			slog.Duration("retry_after", retryAfter))
		return &RateLimitedError{RetryAfter: retryAfter}
	}
	return nil
}

func normalizePlatform(platform string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(platform)) {
	case tracking.PlatformTwitch:
		return tracking.PlatformTwitch, nil
	case tracking.PlatformYouTube:
		return tracking.PlatformYouTube, nil
	default:
		return "", inputErrorf("unknown platform %q, expected twitch or youtube", platform)
	}
}

// Track subscribes the chat to a streamer. The platform identifier is
// resolved up front so the reconciliation loop never has to.
func (h *Handler) Track(ctx context.Context, chatID, streamer, platform string) (string, error) {
	if err := h.limit(ctx, chatID, "track"); err != nil {
		return "", err
	}

	streamer = strings.TrimSpace(streamer)
	if streamer == "" {
		return "", inputErrorf("streamer name missing")
	}
	platform, err := normalizePlatform(platform)
	if err != nil {
		return "", err
	}

	var userID string
	switch platform {
	case tracking.PlatformTwitch:
		userID, err = h.Twitch.GetUserID(ctx, streamer)
		if errors.Is(err, twitchapi.ErrNotFound) {
			return "", inputErrorf("twitch user %q not found", streamer)
		}
		if err != nil {
			return "", fmt.Errorf("resolve twitch user: %w", err)
		}
	case tracking.PlatformYouTube:
		remaining, err := h.Quota.Remaining(ctx)
		if err != nil {
			return "", fmt.Errorf("read quota: %w", err)
		}
		if remaining < h.ResolutionCost {
			return "", inputErrorf("daily YouTube quota exhausted, try again tomorrow")
		}
		userID, err = h.YouTube.ResolveChannelID(ctx, streamer)
		if errors.Is(err, quota.ErrExhausted) {
			return "", inputErrorf("daily YouTube quota exhausted, try again tomorrow")
		}
		if errors.Is(err, youtubeapi.ErrNotFound) {
			return "", inputErrorf("youtube channel %q not found", streamer)
		}
		if err != nil {
			return "", fmt.Errorf("resolve youtube channel: %w", err)
		}
	}

	created, err := h.Store.Add(ctx, chatID, streamer, platform, userID)
	if err != nil {
		return "", err
	}
	if !created {
		return fmt.Sprintf("Already tracking %s on %s.", streamer, platform), nil
	}
	slog.Info("subscription added",
		slog.String("chat_id", chatID),
		slog.String("streamer", streamer),
		slog.String("platform", platform))
	return fmt.Sprintf("Now tracking %s on %s.", streamer, platform), nil
}

// Untrack removes a subscription.
func (h *Handler) Untrack(ctx context.Context, chatID, streamer, platform string) (string, error) {
	if err := h.limit(ctx, chatID, "untrack"); err != nil {
		return "", err
	}

	streamer = strings.TrimSpace(streamer)
	if streamer == "" {
		return "", inputErrorf("streamer name missing")
	}
	platform, err := normalizePlatform(platform)
	if err != nil {
		return "", err
	}

	removed, err := h.Store.Remove(ctx, chatID, streamer, platform)
	if err != nil {
		return "", err
	}
	if !removed {
		return "", inputErrorf("%s on %s is not tracked", streamer, platform)
	}
	slog.Info("subscription removed",
		slog.String("chat_id", chatID),
		slog.String("streamer", streamer),
		slog.String("platform", platform))
	return fmt.Sprintf("Stopped tracking %s on %s.", streamer, platform), nil
}

// UntrackButton handles the inline-button callback whose payload encodes
// "platform:streamer". It shares the untrack rate budget.
func (h *Handler) UntrackButton(ctx context.Context, chatID, payload string) (string, error) {
	platform, streamer, found := strings.Cut(payload, ":")
	if !found || streamer == "" {
		return "", inputErrorf("malformed untrack payload %q", payload)
	}
	return h.Untrack(ctx, chatID, streamer, platform)
}

// List renders the chat's subscriptions. Read-only, so it spends no
// rate-limit budget.
func (h *Handler) List(ctx context.Context, chatID string) (string, error) {
	subs, err := h.Store.List(ctx, chatID)
	if err != nil {
		return "", err
	}
	if len(subs) == 0 {
		return "No streamers tracked. Use track <name> <twitch|youtube> to add one.", nil
	}

	var b strings.Builder
	b.WriteString("Tracked streamers:\n")
	for _, sub := range subs {
		marker := "⚫"
		if sub.IsLive {
			marker = "🔴"
		}
		fmt.Fprintf(&b, "%s %s (%s)\n", marker, sub.Streamer, sub.Platform)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
