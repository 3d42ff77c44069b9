package youtubeapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const defaultWatchBaseURL = "https://www.youtube.com"

// FallbackChecker performs the degraded, unauthenticated live-check: fetch
// the channel's /live page and look for the live-broadcast structured-data
// marker. Heuristic by nature and boolean-only; no title or video id.
type FallbackChecker struct {
	HTTPClient *http.Client
	BaseURL    string
}

func NewFallbackChecker() *FallbackChecker {
	return &FallbackChecker{
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		BaseURL:    defaultWatchBaseURL,
	}
}

// IsLive fetches the public channel page and reports whether the
// live-broadcast marker is present.
func (f *FallbackChecker) IsLive(ctx context.Context, channelID string) (bool, error) {
	base := f.BaseURL
	if base == "" {
		base = defaultWatchBaseURL
	}
	url := base + "/channel/" + channelID + "/live"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept-Language", "en")

	hc := f.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("channel page fetch failed: %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return false, fmt.Errorf("parse channel page: %w", err)
	}
	marker := doc.Find(`link[itemprop="isLiveBroadcast"], meta[itemprop="isLiveBroadcast"]`)
	return marker.Length() > 0, nil
}
