package notify

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestTruncate(t *testing.T) {
	short := "hello"
	if got := Truncate(short); got != short {
		t.Errorf("Truncate(short) = %q", got)
	}

	long := strings.Repeat("x", 5000)
	got := Truncate(long)
	if n := utf8.RuneCountInString(got); n != maxMessageLen {
		t.Errorf("truncated length = %d runes, want %d", n, maxMessageLen)
	}
	if !strings.HasSuffix(got, "…") {
		t.Error("truncated message missing ellipsis")
	}

	// Multi-byte runes must not be split.
	wide := strings.Repeat("好", 5000)
	got = Truncate(wide)
	if !utf8.ValidString(got) {
		t.Error("truncation produced invalid UTF-8")
	}
}

func TestLiveEventText(t *testing.T) {
	ev := LiveEvent{
		Streamer:    "somestreamer",
		Platform:    "twitch",
		Title:       "Speedrun",
		ViewerCount: 123,
		ClipURL:     "https://clips.example/abc",
	}
	text := ev.Text()
	for _, want := range []string{"somestreamer", "twitch", "Speedrun", "123 viewers", "https://clips.example/abc"} {
		if !strings.Contains(text, want) {
			t.Errorf("Text() = %q, missing %q", text, want)
		}
	}
}

func TestLiveEventTextDegraded(t *testing.T) {
	ev := LiveEvent{
		Streamer: "somechannel",
		Platform: "youtube",
		Title:    "should not appear",
		Degraded: true,
	}
	text := ev.Text()
	if !strings.Contains(text, "limited data") {
		t.Errorf("degraded Text() = %q, missing limited-data marker", text)
	}
	if strings.Contains(text, "should not appear") {
		t.Errorf("degraded Text() leaks title: %q", text)
	}
}

func TestOfflineEventText(t *testing.T) {
	ev := OfflineEvent{
		Streamer: "somestreamer",
		Platform: "twitch",
		Duration: 2*time.Hour + 30*time.Minute,
	}
	text := ev.Text()
	if !strings.Contains(text, "2h 30m") {
		t.Errorf("Text() = %q, want 2h 30m", text)
	}

	short := OfflineEvent{Streamer: "s", Platform: "twitch", Duration: 12 * time.Minute}
	if got := short.Text(); !strings.Contains(got, "12m") {
		t.Errorf("Text() = %q, want 12m", got)
	}
}

func TestNewErrorEventTruncates(t *testing.T) {
	ev := NewErrorEvent("chat-1", strings.Repeat("e", 10000))
	if n := utf8.RuneCountInString(ev.Message); n != maxMessageLen {
		t.Errorf("message length = %d runes, want %d", n, maxMessageLen)
	}
	if ev.ChatID != "chat-1" {
		t.Errorf("ChatID = %q", ev.ChatID)
	}
}
