// Package observability provides Prometheus metrics for the alert loop and its adapters.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the application's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Evaluation loop
	TicksTotal         *prometheus.CounterVec
	TickDuration       prometheus.Histogram
	ActiveWatches      prometheus.Gauge
	WatchesTriggered   prometheus.Counter
	ClaimsLost         prometheus.Counter
	LastSuccessfulTick prometheus.Gauge

	// Adapters
	QuoteFetchErrors     *prometheus.CounterVec
	NotificationFailures prometheus.Counter

	// Chat
	WatchesCreated prometheus.Counter
	BotUpdates     *prometheus.CounterVec
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "coinwatch"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		TicksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluator",
			Name:      "ticks_total",
			Help:      "Evaluation ticks by outcome",
		}, []string{"outcome"}),
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "evaluator",
			Name:      "tick_duration_seconds",
			Help:      "Duration of one evaluation tick in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		ActiveWatches: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "evaluator",
			Name:      "active_watches",
			Help:      "Active watches seen by the last tick",
		}),
		WatchesTriggered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluator",
			Name:      "watches_triggered_total",
			Help:      "Watches claimed and notified",
		}),
		ClaimsLost: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluator",
			Name:      "claims_lost_total",
			Help:      "Trigger claims on watches that were already inactive",
		}),
		LastSuccessfulTick: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_tick_timestamp",
			Help:      "Unix timestamp of the last completed tick",
		}),

		QuoteFetchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quotes",
			Name:      "fetch_errors_total",
			Help:      "Quote fetch failures by error kind",
		}, []string{"kind"}),
		NotificationFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "failures_total",
			Help:      "Notifications that could not be delivered",
		}),

		WatchesCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watches",
			Name:      "created_total",
			Help:      "Watches registered",
		}),
		BotUpdates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bot",
			Name:      "updates_total",
			Help:      "Telegram updates handled by type",
		}, []string{"type"}),
	}
}

// Registry exposes the underlying registry (tests, custom collectors).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordTick records one tick outcome ("ok", "skipped", "error") and its duration.
func (m *Metrics) RecordTick(outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.TicksTotal.WithLabelValues(outcome).Inc()
	if outcome == "skipped" {
		return
	}
	m.TickDuration.Observe(time.Since(started).Seconds())
	if outcome == "ok" {
		m.LastSuccessfulTick.SetToCurrentTime()
	}
}

// SetActiveWatches updates the active watches gauge.
func (m *Metrics) SetActiveWatches(n int) {
	if m == nil {
		return
	}
	m.ActiveWatches.Set(float64(n))
}

// RecordQuoteError counts a failed quote fetch.
func (m *Metrics) RecordQuoteError(kind string) {
	if m == nil {
		return
	}
	m.QuoteFetchErrors.WithLabelValues(kind).Inc()
}

// RecordTrigger counts a claimed watch; notified reports delivery.
func (m *Metrics) RecordTrigger(notified bool) {
	if m == nil {
		return
	}
	m.WatchesTriggered.Inc()
	if !notified {
		m.NotificationFailures.Inc()
	}
}

// RecordClaimLost counts a trigger that lost its claim.
func (m *Metrics) RecordClaimLost() {
	if m == nil {
		return
	}
	m.ClaimsLost.Inc()
}

// RecordWatchCreated counts a registered watch.
func (m *Metrics) RecordWatchCreated() {
	if m == nil {
		return
	}
	m.WatchesCreated.Inc()
}

// RecordBotUpdate counts a handled Telegram update ("message", "callback").
func (m *Metrics) RecordBotUpdate(kind string) {
	if m == nil {
		return
	}
	m.BotUpdates.WithLabelValues(kind).Inc()
}
