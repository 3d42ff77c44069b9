// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	ReconcileCycles       prometheus.Counter
	ReconcileCycleErrors  prometheus.Counter
	NotifyFailures        prometheus.Counter
	RateLimitRejections   prometheus.Counter
	QuotaUnitsConsumed    prometheus.Counter
	QuotaRejections       prometheus.Counter
	DegradedChecks        prometheus.Counter
	Transitions           *prometheus.CounterVec // labels: platform, direction

	// Histograms (seconds)
	CycleDuration prometheus.Observer

	// Gauges
	SubscriptionsGauge  prometheus.Gauge
	LiveStreamsGauge    prometheus.Gauge
	QuotaRemainingGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		ReconcileCycles = promauto.NewCounter(prometheus.CounterOpts{Name: "streamwatch_reconcile_cycles_total", Help: "Number of reconciliation cycles run"})
		ReconcileCycleErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "streamwatch_reconcile_cycle_errors_total", Help: "Number of reconciliation cycles that failed"})
		NotifyFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "streamwatch_notify_failures_total", Help: "Number of notification deliveries that failed"})
		RateLimitRejections = promauto.NewCounter(prometheus.CounterOpts{Name: "streamwatch_rate_limit_rejections_total", Help: "Number of commands rejected by the rate limiter"})
		QuotaUnitsConsumed = promauto.NewCounter(prometheus.CounterOpts{Name: "streamwatch_quota_units_consumed_total", Help: "YouTube quota units consumed"})
		QuotaRejections = promauto.NewCounter(prometheus.CounterOpts{Name: "streamwatch_quota_rejections_total", Help: "Number of YouTube calls skipped or rejected for quota reasons"})
		DegradedChecks = promauto.NewCounter(prometheus.CounterOpts{Name: "streamwatch_degraded_checks_total", Help: "Number of live checks served by the degraded fallback path"})
		Transitions = promauto.NewCounterVec(prometheus.CounterOpts{Name: "streamwatch_transitions_total", Help: "Live/offline transitions detected"}, []string{"platform", "direction"})
		CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "streamwatch_cycle_duration_seconds", Help: "Reconciliation cycle duration seconds", Buckets: prometheus.DefBuckets})
		SubscriptionsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "streamwatch_subscriptions", Help: "Current number of tracked subscriptions"})
		LiveStreamsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "streamwatch_live_streams", Help: "Subscriptions currently marked live"})
		QuotaRemainingGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "streamwatch_quota_remaining_units", Help: "YouTube quota units remaining for the current UTC day"})
	})
}

// RecordTransition increments the transition counter for one detected edge.
func RecordTransition(platform, direction string) {
	if Transitions != nil {
		Transitions.WithLabelValues(platform, direction).Inc()
	}
}

// SetSubscriptionCounts records current subscription totals.
func SetSubscriptionCounts(total, live int) {
	if SubscriptionsGauge != nil {
		SubscriptionsGauge.Set(float64(total))
	}
	if LiveStreamsGauge != nil {
		LiveStreamsGauge.Set(float64(live))
	}
}

// SetQuotaRemaining records the remaining daily quota.
func SetQuotaRemaining(units int) {
	if QuotaRemainingGauge != nil {
		QuotaRemainingGauge.Set(float64(units))
	}
}

// AddQuotaConsumed records units billed to the ledger.
func AddQuotaConsumed(units int) {
	if QuotaUnitsConsumed != nil {
		QuotaUnitsConsumed.Add(float64(units))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
