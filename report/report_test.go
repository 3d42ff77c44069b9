package report

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mkuhlmann/streamwatch/notify"
	"github.com/mkuhlmann/streamwatch/tracking"
)

type fakeStore struct {
	top []tracking.StreamerTotal
	err error
}

func (f *fakeStore) TopByLiveTime(ctx context.Context, limit int) ([]tracking.StreamerTotal, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.top) {
		return f.top[:limit], nil
	}
	return f.top, nil
}

type fakeNotifier struct {
	chatIDs []string
	texts   []string
	err     error
}

func (f *fakeNotifier) StreamLive(ctx context.Context, ev notify.LiveEvent) error       { return nil }
func (f *fakeNotifier) StreamOffline(ctx context.Context, ev notify.OfflineEvent) error { return nil }
func (f *fakeNotifier) OperationalError(ctx context.Context, ev notify.ErrorEvent) error {
	return nil
}

func (f *fakeNotifier) Message(ctx context.Context, chatID, text string) error {
	if f.err != nil {
		return f.err
	}
	f.chatIDs = append(f.chatIDs, chatID)
	f.texts = append(f.texts, text)
	return nil
}

func TestNextRun(t *testing.T) {
	job := &Job{Hour: 8}

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "before hour fires today",
			now:  time.Date(2024, 10, 15, 6, 30, 0, 0, time.UTC),
			want: time.Date(2024, 10, 15, 8, 0, 0, 0, time.UTC),
		},
		{
			name: "after hour fires tomorrow",
			now:  time.Date(2024, 10, 15, 9, 0, 0, 0, time.UTC),
			want: time.Date(2024, 10, 16, 8, 0, 0, 0, time.UTC),
		},
		{
			name: "exactly at hour fires tomorrow",
			now:  time.Date(2024, 10, 15, 8, 0, 0, 0, time.UTC),
			want: time.Date(2024, 10, 16, 8, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := job.NextRun(tt.now); !got.Equal(tt.want) {
				t.Errorf("NextRun(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestSend(t *testing.T) {
	store := &fakeStore{top: []tracking.StreamerTotal{
		{Streamer: "streamer_a", TotalSeconds: 9000}, // 2h 30m
		{Streamer: "streamer_b", TotalSeconds: 3600},
	}}
	notifier := &fakeNotifier{}
	job := &Job{Store: store, Notifier: notifier, AdminChatID: "admin", Hour: 8}

	if err := job.Send(context.Background()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(notifier.texts) != 1 {
		t.Fatalf("messages sent = %d, want 1", len(notifier.texts))
	}
	if notifier.chatIDs[0] != "admin" {
		t.Errorf("chat = %q, want admin", notifier.chatIDs[0])
	}
	text := notifier.texts[0]
	for _, want := range []string{"1. streamer_a: 2h 30m", "2. streamer_b: 1h 0m"} {
		if !strings.Contains(text, want) {
			t.Errorf("report = %q, missing %q", text, want)
		}
	}
}

func TestSendEmpty(t *testing.T) {
	notifier := &fakeNotifier{}
	job := &Job{Store: &fakeStore{}, Notifier: notifier, AdminChatID: "admin", Hour: 8}

	if err := job.Send(context.Background()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !strings.Contains(notifier.texts[0], "no tracked streamers") {
		t.Errorf("report = %q", notifier.texts[0])
	}
}

func TestSendStoreError(t *testing.T) {
	job := &Job{
		Store:       &fakeStore{err: errors.New("db down")},
		Notifier:    &fakeNotifier{},
		AdminChatID: "admin",
		Hour:        8,
	}
	if err := job.Send(context.Background()); err == nil {
		t.Fatal("Send() error = nil, want store failure")
	}
}
