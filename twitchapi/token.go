package twitchapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const defaultTokenURL = "https://id.twitch.tv/oauth2/token" //nolint:gosec // G101: endpoint URL, not a credential

// expiryMargin is subtracted from the server-reported TTL so a token is
// refreshed before it actually expires.
const expiryMargin = 60 * time.Second

// AuthError wraps a failed or malformed credential fetch. Callers treat it as
// "platform temporarily unavailable" for the current call, never as fatal;
// the next call retries implicitly.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return "twitch auth: " + e.Err.Error() }
func (e *AuthError) Unwrap() error { return e.Err }

// TokenSource fetches and caches a Twitch app access (client credentials)
// token, shared process-wide by all Helix callers. Concurrent callers during
// a simultaneous expiry may each trigger a refresh; the fetch is cheap and
// idempotent, so no single-flight guard is needed.
type TokenSource struct {
	ClientID     string
	ClientSecret string
	TokenURL     string // defaults to the Twitch id endpoint
	HTTPClient   *http.Client

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

// Get returns a valid (fresh or cached) app access token.
func (ts *TokenSource) Get(ctx context.Context) (string, error) {
	ts.mu.RLock()
	if ts.token != "" && time.Now().Before(ts.expiresAt) {
		tok := ts.token
		ts.mu.RUnlock()
		return tok, nil
	}
	ts.mu.RUnlock()
	return ts.refresh(ctx)
}

// SetToken seeds the cache directly. Intended for tests.
func (ts *TokenSource) SetToken(token string, expiresAt time.Time) {
	ts.mu.Lock()
	ts.token = token
	ts.expiresAt = expiresAt
	ts.mu.Unlock()
}

func (ts *TokenSource) refresh(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.token != "" && time.Now().Before(ts.expiresAt) {
		return ts.token, nil
	}

	tokenURL := ts.TokenURL
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	cc := clientcredentials.Config{
		ClientID:     ts.ClientID,
		ClientSecret: ts.ClientSecret,
		TokenURL:     tokenURL,
	}
	if ts.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, ts.HTTPClient)
	}
	tok, err := cc.Token(ctx)
	if err != nil {
		return "", &AuthError{Err: err}
	}

	expiry := tok.Expiry
	if expiry.IsZero() {
		// Some test doubles omit expires_in; treat the token as long-lived.
		expiry = time.Now().Add(time.Hour)
	}
	ts.token = tok.AccessToken
	ts.expiresAt = expiry.Add(-expiryMargin)
	return ts.token, nil
}
