package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PollInterval != 60*time.Second {
		t.Errorf("PollInterval = %v, want 60s", cfg.PollInterval)
	}
	if cfg.PollInitialDelay != 10*time.Second {
		t.Errorf("PollInitialDelay = %v, want 10s", cfg.PollInitialDelay)
	}
	if cfg.YouTubeDailyCap != 10000 {
		t.Errorf("YouTubeDailyCap = %d, want 10000", cfg.YouTubeDailyCap)
	}
	if cfg.YouTubeCallCost != 100 {
		t.Errorf("YouTubeCallCost = %d, want 100", cfg.YouTubeCallCost)
	}
	if cfg.RateLimitMax != 5 {
		t.Errorf("RateLimitMax = %d, want 5", cfg.RateLimitMax)
	}
	if cfg.RateLimitWindow != 30*time.Second {
		t.Errorf("RateLimitWindow = %v, want 30s", cfg.RateLimitWindow)
	}
	if cfg.ReportHourUTC != 8 {
		t.Errorf("ReportHourUTC = %d, want 8", cfg.ReportHourUTC)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "90s")
	t.Setenv("RATE_LIMIT_MAX", "3")
	t.Setenv("YOUTUBE_DAILY_CAP", "5000")
	t.Setenv("DB_DSN", "postgres://u:p@db:5432/x")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PollInterval != 90*time.Second {
		t.Errorf("PollInterval = %v, want 90s", cfg.PollInterval)
	}
	if cfg.RateLimitMax != 3 {
		t.Errorf("RateLimitMax = %d, want 3", cfg.RateLimitMax)
	}
	if cfg.YouTubeDailyCap != 5000 {
		t.Errorf("YouTubeDailyCap = %d, want 5000", cfg.YouTubeDailyCap)
	}
	if cfg.DBDsn != "postgres://u:p@db:5432/x" {
		t.Errorf("DBDsn = %q", cfg.DBDsn)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"POLL_INTERVAL", "soon"},
		{"POLL_INTERVAL", "-5s"},
		{"RATE_LIMIT_MAX", "many"},
		{"RATE_LIMIT_MAX", "-1"},
		{"REPORT_HOUR_UTC", "24"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() with %s=%s: expected error", tt.key, tt.value)
			}
		})
	}
}
