// Package twitchapi contains minimal helpers to interact with Twitch Helix
// APIs for login resolution, batched live-status queries, and recent clips,
// using a cached app access token. All calls fail fast: every request carries
// a timeout and nothing here retries.
package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrNotFound is returned when a login resolves to no Twitch user.
var ErrNotFound = errors.New("twitch user not found")

// maxIDsPerCall is the documented Helix limit on user_id values per
// streams query.
const maxIDsPerCall = 100

var defaultHTTPClient = &http.Client{Timeout: 10 * time.Second}

// Stream is the live-metadata for one broadcasting user. The response's
// started_at is deliberately not decoded; session tracking is the engine's
// job, not the platform's.
type Stream struct {
	UserID       string `json:"user_id"`
	Title        string `json:"title"`
	ViewerCount  int    `json:"viewer_count"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// Thumbnail expands the Helix thumbnail template to concrete dimensions.
func (s Stream) Thumbnail(width, height int) string {
	url := strings.ReplaceAll(s.ThumbnailURL, "{width}", fmt.Sprintf("%d", width))
	return strings.ReplaceAll(url, "{height}", fmt.Sprintf("%d", height))
}

// HelixClient provides the Helix methods the reconciliation engine and the
// command handlers need.
type HelixClient struct {
	AppTokenSource *TokenSource
	ClientID       string
	HTTPClient     *http.Client
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return defaultHTTPClient
}

func (hc *HelixClient) get(ctx context.Context, url string, query map[string][]string, out any) error {
	tok, err := hc.AppTokenSource.Get(ctx)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	q := req.URL.Query()
	for k, vals := range query {
		for _, v := range vals {
			q.Add(k, v)
		}
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := hc.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("helix request failed: %s: %s", resp.Status, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetUserID resolves a login name to its user ID. Returns ErrNotFound when
// the login does not exist.
func (hc *HelixClient) GetUserID(ctx context.Context, login string) (string, error) {
	if login == "" {
		return "", fmt.Errorf("login empty")
	}
	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := hc.get(ctx, "https://api.twitch.tv/helix/users", map[string][]string{"login": {login}}, &body); err != nil {
		return "", err
	}
	if len(body.Data) == 0 {
		return "", ErrNotFound
	}
	return body.Data[0].ID, nil
}

// GetStreams returns live-metadata for every currently-broadcasting user in
// userIDs, keyed by user id. IDs absent from the result are offline. Queries
// are chunked at the per-call id limit; a single chunk failure fails the
// whole lookup so a partial result is never mistaken for "offline".
func (hc *HelixClient) GetStreams(ctx context.Context, userIDs []string) (map[string]Stream, error) {
	out := make(map[string]Stream, len(userIDs))
	for start := 0; start < len(userIDs); start += maxIDsPerCall {
		end := start + maxIDsPerCall
		if end > len(userIDs) {
			end = len(userIDs)
		}
		var body struct {
			Data []Stream `json:"data"`
		}
		q := map[string][]string{"user_id": userIDs[start:end], "first": {"100"}}
		if err := hc.get(ctx, "https://api.twitch.tv/helix/streams", q, &body); err != nil {
			return nil, err
		}
		for _, st := range body.Data {
			out[st.UserID] = st
		}
	}
	return out, nil
}

// GetRecentClip returns the most recent clip URL for a broadcaster, or ""
// when none exists. Best-effort; callers ignore errors.
func (hc *HelixClient) GetRecentClip(ctx context.Context, broadcasterID string) (string, error) {
	if broadcasterID == "" {
		return "", fmt.Errorf("broadcasterID empty")
	}
	var body struct {
		Data []struct {
			URL string `json:"url"`
		} `json:"data"`
	}
	q := map[string][]string{"broadcaster_id": {broadcasterID}, "first": {"1"}}
	if err := hc.get(ctx, "https://api.twitch.tv/helix/clips", q, &body); err != nil {
		return "", err
	}
	if len(body.Data) == 0 {
		return "", nil
	}
	return body.Data[0].URL, nil
}
