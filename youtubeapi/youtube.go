// Package youtubeapi wraps the YouTube Data API v3 search endpoint for
// channel-id resolution and live-broadcast checks. Every metered call is
// gated by the daily quota ledger before it is issued and billed to the
// ledger after it succeeds. When the remote service rejects a call mid-flight
// for quota reasons, the check degrades to an unauthenticated HTML fallback
// that yields only a boolean.
package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/mkuhlmann/streamwatch/quota"
)

// ErrNotFound is returned when a channel search yields no result.
var ErrNotFound = errors.New("youtube channel not found")

// State of one live-check. Unknown means "no new data": the engine must not
// derive an offline transition from it.
type State string

const (
	StateLive    State = "live"
	StateOffline State = "offline"
	StateUnknown State = "unknown"
)

// LiveStatus is the outcome of CheckLive. Degraded marks results from the
// fallback path, which carries no title or video id.
type LiveStatus struct {
	State    State
	Title    string
	VideoID  string
	Degraded bool
}

// QuotaLedger is the subset of the quota ledger the client needs.
type QuotaLedger interface {
	Gate(ctx context.Context, cost int) (bool, error)
	Consume(ctx context.Context, units int) error
}

// rejectPenaltyUnits is billed when the remote service rejects a call for
// quota reasons mid-flight, so repeated rejected calls still show up in the
// ledger.
const rejectPenaltyUnits = 1

type Client struct {
	svc      *yt.Service
	quota    QuotaLedger
	fallback *FallbackChecker

	// CallCost is the metered cost of one search call.
	CallCost int
	// MaxAttempts bounds retries on transient errors; BaseBackoff doubles
	// after each failed attempt.
	MaxAttempts int
	BaseBackoff time.Duration
	// CallTimeout caps each individual remote call.
	CallTimeout time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a Client authenticated by API key. Extra options (endpoint
// overrides) are for tests.
func New(ctx context.Context, apiKey string, ledger QuotaLedger, opts ...option.ClientOption) (*Client, error) {
	all := append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := yt.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	return &Client{
		svc:         svc,
		quota:       ledger,
		fallback:    NewFallbackChecker(),
		CallCost:    100,
		MaxAttempts: 3,
		BaseBackoff: 2 * time.Second,
		CallTimeout: 10 * time.Second,
		sleep:       sleepCtx,
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// ResolveChannelID resolves a channel name to its id via a metered search.
// Quota is consumed only on success. Returns quota.ErrExhausted without
// issuing the call when the budget cannot cover it.
func (c *Client) ResolveChannelID(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("channel name empty")
	}
	ok, err := c.quota.Gate(ctx, c.CallCost)
	if err != nil {
		return "", fmt.Errorf("quota gate: %w", err)
	}
	if !ok {
		return "", quota.ErrExhausted
	}

	tctx, cancel := context.WithTimeout(ctx, c.CallTimeout)
	defer cancel()
	resp, err := c.svc.Search.List([]string{"snippet"}).
		Q(name).Type("channel").MaxResults(1).Context(tctx).Do()
	if err != nil {
		return "", fmt.Errorf("channel search: %w", err)
	}
	if err := c.quota.Consume(ctx, c.CallCost); err != nil {
		return "", err
	}
	if len(resp.Items) == 0 || resp.Items[0].Id == nil || resp.Items[0].Id.ChannelId == "" {
		return "", ErrNotFound
	}
	return resp.Items[0].Id.ChannelId, nil
}

// CheckLive reports whether the channel is currently broadcasting. A
// mid-call quota rejection bills a small penalty and degrades to the HTML
// fallback; other transient errors are retried with exponential backoff.
// After exhausting retries the result is StateUnknown together with the last
// error, never a confirmed offline.
func (c *Client) CheckLive(ctx context.Context, channelID string) (LiveStatus, error) {
	ok, err := c.quota.Gate(ctx, c.CallCost)
	if err != nil {
		return LiveStatus{State: StateUnknown}, fmt.Errorf("quota gate: %w", err)
	}
	if !ok {
		return LiveStatus{State: StateUnknown}, quota.ErrExhausted
	}

	var lastErr error
	for attempt := 0; attempt < c.MaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := c.BaseBackoff * time.Duration(1<<(attempt-1))
			slog.Warn("retrying youtube live check",
				slog.String("channel_id", channelID),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoff))
			if err := c.sleep(ctx, backoff); err != nil {
				return LiveStatus{State: StateUnknown}, err
			}
		}

		status, err := c.checkOnce(ctx, channelID)
		if err == nil {
			return status, nil
		}
		if isQuotaRejected(err) {
			if cerr := c.quota.Consume(ctx, rejectPenaltyUnits); cerr != nil {
				slog.Warn("quota penalty not recorded", slog.Any("err", cerr))
			}
			return c.checkDegraded(ctx, channelID)
		}
		lastErr = err
	}
	return LiveStatus{State: StateUnknown}, fmt.Errorf("live check exhausted retries: %w", lastErr)
}

func (c *Client) checkOnce(ctx context.Context, channelID string) (LiveStatus, error) {
	tctx, cancel := context.WithTimeout(ctx, c.CallTimeout)
	defer cancel()
	resp, err := c.svc.Search.List([]string{"snippet"}).
		ChannelId(channelID).EventType("live").Type("video").Context(tctx).Do()
	if err != nil {
		return LiveStatus{}, err
	}
	if err := c.quota.Consume(ctx, c.CallCost); err != nil {
		return LiveStatus{}, err
	}
	if len(resp.Items) == 0 {
		return LiveStatus{State: StateOffline}, nil
	}
	item := resp.Items[0]
	status := LiveStatus{State: StateLive}
	if item.Snippet != nil {
		status.Title = item.Snippet.Title
	}
	if item.Id != nil {
		status.VideoID = item.Id.VideoId
	}
	return status, nil
}

func (c *Client) checkDegraded(ctx context.Context, channelID string) (LiveStatus, error) {
	live, err := c.fallback.IsLive(ctx, channelID)
	if err != nil {
		return LiveStatus{State: StateUnknown}, fmt.Errorf("fallback live check: %w", err)
	}
	state := StateOffline
	if live {
		state = StateLive
	}
	return LiveStatus{State: state, Degraded: true}, nil
}

// SetFallback replaces the degraded-path checker. Intended for tests.
func (c *Client) SetFallback(f *FallbackChecker) { c.fallback = f }

func isQuotaRejected(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != 403 {
		return false
	}
	for _, e := range apiErr.Errors {
		switch e.Reason {
		case "quotaExceeded", "dailyLimitExceeded":
			return true
		}
	}
	return false
}
