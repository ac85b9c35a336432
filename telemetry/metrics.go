// Package telemetry provides Prometheus metrics, OpenTelemetry tracing setup,
// and correlation-id aware logging helpers.
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
	MessagesIngested  prometheus.Counter
	IngestErrors      prometheus.Counter
	VerifyRequests    prometheus.Counter
	VerifyFailures    prometheus.Counter
	SummariesStarted  prometheus.Counter
	SummariesFailed   prometheus.Counter
	SubmitTimeouts    prometheus.Counter

	// Histograms (seconds)
	SummaryDuration prometheus.Observer

	// Gauges
	WatchlistSize  prometheus.Gauge
	ConnectedGauge prometheus.Gauge // 1=connected,0=disconnected
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		MessagesIngested = promauto.NewCounter(prometheus.CounterOpts{Name: "groupgist_messages_ingested_total", Help: "Number of group messages persisted"})
		IngestErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "groupgist_ingest_errors_total", Help: "Number of messages dropped due to ingestion errors"})
		VerifyRequests = promauto.NewCounter(prometheus.CounterOpts{Name: "groupgist_verify_requests_total", Help: "Number of group verification attempts"})
		VerifyFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "groupgist_verify_failures_total", Help: "Number of failed group verifications"})
		SummariesStarted = promauto.NewCounter(prometheus.CounterOpts{Name: "groupgist_summaries_started_total", Help: "Number of summary requests started"})
		SummariesFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "groupgist_summaries_failed_total", Help: "Number of summary requests that failed"})
		SubmitTimeouts = promauto.NewCounter(prometheus.CounterOpts{Name: "groupgist_bridge_submit_timeouts_total", Help: "Number of bridge submissions that hit the outer timeout"})
		SummaryDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "groupgist_summary_duration_seconds", Help: "Summary generation duration seconds", Buckets: prometheus.DefBuckets})
		WatchlistSize = promauto.NewGauge(prometheus.GaugeOpts{Name: "groupgist_watchlist_size", Help: "Current number of watched groups"})
		ConnectedGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "groupgist_client_connected", Help: "Telegram client connected=1 disconnected=0"})
	})
}

// UpdateConnectedGauge sets the gauge to 1 if connected else 0.
func UpdateConnectedGauge(connected bool) {
	if ConnectedGauge != nil {
		if connected {
			ConnectedGauge.Set(1)
		} else {
			ConnectedGauge.Set(0)
		}
	}
}

// SetWatchlistSize records the current watched group count.
func SetWatchlistSize(n int) {
	if WatchlistSize != nil {
		WatchlistSize.Set(float64(n))
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

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
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
