// Package notify defines the events the reconciliation engine emits and the
// Notifier boundary the chat transport implements. Rendering to a concrete
// transport (Telegram, Discord, webhooks) lives outside this repository; the
// text helpers here produce the canonical plain-text form.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// maxMessageLen caps any operator-facing message. Longer texts are cut with
// a trailing ellipsis.
const maxMessageLen = 4096

// LiveEvent announces a went-live transition. Degraded events come from the
// fallback live-check and carry no title, thumbnail or clip.
type LiveEvent struct {
	ChatID       string
	Streamer     string
	Platform     string
	Title        string
	ViewerCount  int
	ThumbnailURL string
	ClipURL      string
	Degraded     bool
}

// OfflineEvent announces a went-offline transition after a completed session.
type OfflineEvent struct {
	ChatID   string
	Streamer string
	Platform string
	Duration time.Duration
}

// ErrorEvent reports an operational failure to the operator chat.
type ErrorEvent struct {
	ChatID  string
	Message string
}

// Notifier is implemented by the external chat transport. Delivery is
// at-least-once from the caller's perspective: the engine emits before it
// persists the matching transition.
type Notifier interface {
	StreamLive(ctx context.Context, ev LiveEvent) error
	StreamOffline(ctx context.Context, ev OfflineEvent) error
	OperationalError(ctx context.Context, ev ErrorEvent) error
	Message(ctx context.Context, chatID, text string) error
}

// NewErrorEvent builds an ErrorEvent with the message already truncated.
func NewErrorEvent(chatID, message string) ErrorEvent {
	return ErrorEvent{ChatID: chatID, Message: Truncate(message)}
}

// Truncate cuts s to the transport message limit, rune-safe.
func Truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= maxMessageLen {
		return s
	}
	return string(runes[:maxMessageLen-1]) + "…"
}

// Text renders the canonical plain-text announcement.
func (ev LiveEvent) Text() string {
	if ev.Degraded {
		return Truncate(fmt.Sprintf("🔴 %s is live on %s (limited data)", ev.Streamer, ev.Platform))
	}
	msg := fmt.Sprintf("🔴 %s is live on %s", ev.Streamer, ev.Platform)
	if ev.Title != "" {
		msg += ": " + ev.Title
	}
	if ev.ViewerCount > 0 {
		msg += fmt.Sprintf(" (%d viewers)", ev.ViewerCount)
	}
	if ev.ClipURL != "" {
		msg += "\nRecent clip: " + ev.ClipURL
	}
	return Truncate(msg)
}

// Text renders the canonical plain-text announcement.
func (ev OfflineEvent) Text() string {
	return Truncate(fmt.Sprintf("⚫ %s went offline on %s after %s",
		ev.Streamer, ev.Platform, formatDuration(ev.Duration)))
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}

// LogNotifier writes events to the structured log. It is the default
// transport when the process runs without an external one attached.
type LogNotifier struct{}

func (LogNotifier) StreamLive(ctx context.Context, ev LiveEvent) error {
	slog.Info("event: stream live",
		slog.String("component", "notify"),
		slog.String("chat_id", ev.ChatID),
		slog.String("text", ev.Text()))
	return nil
}

func (LogNotifier) StreamOffline(ctx context.Context, ev OfflineEvent) error {
	slog.Info("event: stream offline",
		slog.String("component", "notify"),
		slog.String("chat_id", ev.ChatID),
		slog.String("text", ev.Text()))
	return nil
}

func (LogNotifier) OperationalError(ctx context.Context, ev ErrorEvent) error {
	slog.Warn("event: operational error",
		slog.String("component", "notify"),
		slog.String("chat_id", ev.ChatID),
		slog.String("message", ev.Message))
	return nil
}

func (LogNotifier) Message(ctx context.Context, chatID, text string) error {
	slog.Info("event: message",
		slog.String("component", "notify"),
		slog.String("chat_id", chatID),
		slog.String("text", Truncate(text)))
	return nil
}
