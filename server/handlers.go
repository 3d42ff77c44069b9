package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/mkuhlmann/streamwatch/engine"
)

// CycleSource exposes the most recent reconciliation cycle.
type CycleSource interface {
	LastCycle() engine.CycleStats
}

// QuotaReader exposes the remaining daily YouTube budget.
type QuotaReader interface {
	Remaining(ctx context.Context) (int, error)
}

// SubscriptionCounter exposes subscription totals.
type SubscriptionCounter interface {
	Counts(ctx context.Context) (total, live int, err error)
}

type Handlers struct {
	db     *sql.DB
	cycles CycleSource
	store  SubscriptionCounter
	quota  QuotaReader
	cmds   CommandHandler
}

func NewHandlers(db *sql.DB, cycles CycleSource, store SubscriptionCounter, quota QuotaReader, cmds CommandHandler) *Handlers {
	return &Handlers{db: db, cycles: cycles, store: store, quota: quota, cmds: cmds}
}

// HandleHealthz responds to liveness probe requests by checking database connectivity.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probe requests with detailed system checks.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"database", func() error { return h.db.PingContext(r.Context()) }},
		{"quota_ledger", func() error {
			_, err := h.quota.Remaining(r.Context())
			return err
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

type statusResponse struct {
	Subscriptions  int               `json:"subscriptions"`
	Live           int               `json:"live"`
	QuotaRemaining int               `json:"quota_remaining"`
	LastCycle      engine.CycleStats `json:"last_cycle"`
}

// HandleStatus returns a JSON snapshot of the engine's state.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	total, live, err := h.store.Counts(r.Context())
	if err != nil {
		http.Error(w, "status unavailable", http.StatusInternalServerError)
		return
	}
	remaining, err := h.quota.Remaining(r.Context())
	if err != nil {
		http.Error(w, "status unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(statusResponse{
		Subscriptions:  total,
		Live:           live,
		QuotaRemaining: remaining,
		LastCycle:      h.cycles.LastCycle(),
	})
}
