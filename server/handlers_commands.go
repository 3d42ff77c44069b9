package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mkuhlmann/streamwatch/commands"
)

// CommandHandler is the transport-facing command API exposed over HTTP so an
// external chat transport can drive it.
type CommandHandler interface {
	Track(ctx context.Context, chatID, streamer, platform string) (string, error)
	Untrack(ctx context.Context, chatID, streamer, platform string) (string, error)
	UntrackButton(ctx context.Context, chatID, payload string) (string, error)
	List(ctx context.Context, chatID string) (string, error)
}

type commandRequest struct {
	ChatID   string `json:"chat_id"`
	Streamer string `json:"streamer"`
	Platform string `json:"platform"`
	Payload  string `json:"payload"`
}

type commandResponse struct {
	Reply string `json:"reply"`
}

func (h *Handlers) handleCommand(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, req commandRequest) (string, error)) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if req.ChatID == "" {
		http.Error(w, "chat_id missing", http.StatusBadRequest)
		return
	}

	reply, err := fn(r.Context(), req)
	if err != nil {
		var uerr *commands.UserInputError
		if errors.As(err, &uerr) {
			http.Error(w, uerr.Message, http.StatusBadRequest)
			return
		}
		var rerr *commands.RateLimitedError
		if errors.As(err, &rerr) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(rerr.RetryAfter/time.Second)+1))
			http.Error(w, rerr.Error(), http.StatusTooManyRequests)
			return
		}
		http.Error(w, "command failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(commandResponse{Reply: reply})
}

// HandleTrack subscribes a chat to a streamer.
func (h *Handlers) HandleTrack(w http.ResponseWriter, r *http.Request) {
	h.handleCommand(w, r, func(ctx context.Context, req commandRequest) (string, error) {
		return h.cmds.Track(ctx, req.ChatID, req.Streamer, req.Platform)
	})
}

// HandleUntrack removes a subscription. A payload field selects the
// button-callback form.
func (h *Handlers) HandleUntrack(w http.ResponseWriter, r *http.Request) {
	h.handleCommand(w, r, func(ctx context.Context, req commandRequest) (string, error) {
		if req.Payload != "" {
			return h.cmds.UntrackButton(ctx, req.ChatID, req.Payload)
		}
		return h.cmds.Untrack(ctx, req.ChatID, req.Streamer, req.Platform)
	})
}

// HandleList renders a chat's subscriptions.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	h.handleCommand(w, r, func(ctx context.Context, req commandRequest) (string, error) {
		return h.cmds.List(ctx, req.ChatID)
	})
}
