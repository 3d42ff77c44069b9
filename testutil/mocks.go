package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// MockTwitchServer creates a test server that mocks Twitch Helix API responses
type MockTwitchServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockTwitchServer creates a new mock Twitch API server
func NewMockTwitchServer(t *testing.T) *MockTwitchServer {
	t.Helper()
	m := &MockTwitchServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		if handler, ok := m.Handlers[key]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockUserResponse adds a handler for /helix/users endpoint
func (m *MockTwitchServer) MockUserResponse(userID, login string) {
	m.Handlers["/helix/users"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"data": []map[string]string{
				{"id": userID, "login": login},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockStreamsResponse adds a handler for /helix/streams endpoint
func (m *MockTwitchServer) MockStreamsResponse(streams []map[string]interface{}) {
	m.Handlers["/helix/streams"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"data": streams,
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockClipsResponse adds a handler for /helix/clips endpoint
func (m *MockTwitchServer) MockClipsResponse(clipURL string) {
	m.Handlers["/helix/clips"] = func(w http.ResponseWriter, r *http.Request) {
		data := []map[string]string{}
		if clipURL != "" {
			data = append(data, map[string]string{"url": clipURL})
		}
		response := map[string]interface{}{"data": data}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockOAuthTokenResponse adds a handler for OAuth token endpoint
func (m *MockTwitchServer) MockOAuthTokenResponse(accessToken string, expiresIn int) {
	m.Handlers["/oauth2/token"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"access_token": accessToken,
			"expires_in":   expiresIn,
			"token_type":   "bearer",
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockYouTubeServer creates a test server that mocks YouTube Data API search
// responses keyed by the request's eventType/type parameters.
type MockYouTubeServer struct {
	*httptest.Server
	// LiveChannels maps channelId to the video returned for live searches.
	LiveChannels map[string]map[string]string
	// Channels maps query strings to channel ids for resolution searches.
	Channels map[string]string
}

// NewMockYouTubeServer creates a new mock YouTube Data API server
func NewMockYouTubeServer(t *testing.T) *MockYouTubeServer {
	t.Helper()
	m := &MockYouTubeServer{
		LiveChannels: make(map[string]map[string]string),
		Channels:     make(map[string]string),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		items := []map[string]interface{}{}
		switch {
		case q.Get("eventType") == "live":
			if video, ok := m.LiveChannels[q.Get("channelId")]; ok {
				items = append(items, map[string]interface{}{
					"id":      map[string]string{"kind": "youtube#video", "videoId": video["videoId"]},
					"snippet": map[string]string{"title": video["title"]},
				})
			}
		case q.Get("type") == "channel":
			if id, ok := m.Channels[q.Get("q")]; ok {
				items = append(items, map[string]interface{}{
					"id":      map[string]string{"kind": "youtube#channel", "channelId": id},
					"snippet": map[string]string{"title": q.Get("q")},
				})
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"kind":  "youtube#searchListResponse",
			"items": items,
		}) //nolint:errcheck // test mock response
	}))
	t.Cleanup(m.Close)
	return m
}
