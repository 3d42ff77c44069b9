package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// rewriteTransport points production URLs at the test server.
type rewriteTransport struct {
	Transport http.RoundTripper
	host      string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = "http"
	if t.host != "" {
		host := t.host
		host = strings.TrimPrefix(host, "http://")
		host = strings.TrimPrefix(host, "https://")
		req.URL.Host = host
	}
	return t.Transport.RoundTrip(req)
}

func newHelixClient(serverURL string) *HelixClient {
	ts := &TokenSource{ClientID: "test-client-id", ClientSecret: "test-secret"}
	ts.SetToken("test-token", time.Now().Add(1*time.Hour))
	return &HelixClient{
		AppTokenSource: ts,
		ClientID:       "test-client-id",
		HTTPClient: &http.Client{Transport: &rewriteTransport{
			Transport: http.DefaultTransport,
			host:      serverURL,
		}},
	}
}

func TestHelixClient_GetUserID(t *testing.T) {
	tests := []struct {
		response   interface{}
		name       string
		login      string
		wantUserID string
		statusCode int
		wantErr    error
	}{
		{
			name:  "successful user lookup",
			login: "testuser",
			response: map[string]interface{}{
				"data": []map[string]string{
					{"id": "12345", "login": "testuser"},
				},
			},
			statusCode: http.StatusOK,
			wantUserID: "12345",
		},
		{
			name:  "user not found",
			login: "nonexistent",
			response: map[string]interface{}{
				"data": []map[string]string{},
			},
			statusCode: http.StatusOK,
			wantErr:    ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Client-Id") != "test-client-id" {
					t.Errorf("missing or wrong Client-Id header")
				}
				if r.Header.Get("Authorization") != "Bearer test-token" {
					t.Errorf("missing or wrong Authorization header")
				}
				if got := r.URL.Query().Get("login"); got != tt.login {
					t.Errorf("login query param = %s, want %s", got, tt.login)
				}
				w.WriteHeader(tt.statusCode)
				_ = json.NewEncoder(w).Encode(tt.response)
			}))
			defer server.Close()

			userID, err := newHelixClient(server.URL).GetUserID(context.Background(), tt.login)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("GetUserID() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetUserID() unexpected error = %v", err)
			}
			if userID != tt.wantUserID {
				t.Errorf("GetUserID() = %s, want %s", userID, tt.wantUserID)
			}
		})
	}
}

func TestHelixClient_GetStreams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/helix/streams" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		ids := r.URL.Query()["user_id"]
		if len(ids) != 3 {
			t.Fatalf("user_id params = %v, want 3 ids", ids)
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{
					"user_id":       "u-1",
					"title":         "Live Now",
					"viewer_count":  50,
					"thumbnail_url": "https://cdn.example/{width}x{height}.jpg",
					"started_at":    "2024-10-15T14:30:00Z",
				},
				{
					"user_id":      "u-3",
					"title":        "Also Live",
					"viewer_count": 7,
				},
			},
		})
	}))
	defer server.Close()

	streams, err := newHelixClient(server.URL).GetStreams(context.Background(), []string{"u-1", "u-2", "u-3"})
	if err != nil {
		t.Fatalf("GetStreams() error = %v", err)
	}
	if len(streams) != 2 {
		t.Fatalf("expected 2 live streams, got %d", len(streams))
	}
	st, ok := streams["u-1"]
	if !ok {
		t.Fatal("u-1 missing from result map")
	}
	if st.Title != "Live Now" || st.ViewerCount != 50 {
		t.Errorf("unexpected stream meta: %+v", st)
	}
	if got := st.Thumbnail(640, 360); got != "https://cdn.example/640x360.jpg" {
		t.Errorf("Thumbnail() = %q", got)
	}
	// Absent from the response means offline, not an error.
	if _, ok := streams["u-2"]; ok {
		t.Error("u-2 reported live, want absent")
	}
}

func TestHelixClient_GetStreamsChunks(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if n := len(r.URL.Query()["user_id"]); n > 100 {
			t.Errorf("chunk of %d ids exceeds per-call limit", n)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": []map[string]interface{}{}})
	}))
	defer server.Close()

	ids := make([]string, 150)
	for i := range ids {
		ids[i] = "u"
	}
	if _, err := newHelixClient(server.URL).GetStreams(context.Background(), ids); err != nil {
		t.Fatalf("GetStreams() error = %v", err)
	}
	if calls != 2 {
		t.Fatalf("helix calls = %d, want 2", calls)
	}
}

func TestHelixClient_GetStreamsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	if _, err := newHelixClient(server.URL).GetStreams(context.Background(), []string{"u-1"}); err == nil {
		t.Fatal("GetStreams() error = nil, want failure on 5xx")
	}
}

func TestHelixClient_GetRecentClip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/helix/clips" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if got := r.URL.Query().Get("broadcaster_id"); got != "u-1" {
			t.Errorf("broadcaster_id = %q, want u-1", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]string{{"url": "https://clips.example/abc"}},
		})
	}))
	defer server.Close()

	url, err := newHelixClient(server.URL).GetRecentClip(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("GetRecentClip() error = %v", err)
	}
	if url != "https://clips.example/abc" {
		t.Errorf("GetRecentClip() = %q", url)
	}
}

func TestHelixClient_GetRecentClipNone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": []map[string]string{}})
	}))
	defer server.Close()

	url, err := newHelixClient(server.URL).GetRecentClip(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("GetRecentClip() error = %v", err)
	}
	if url != "" {
		t.Errorf("GetRecentClip() = %q, want empty", url)
	}
}
