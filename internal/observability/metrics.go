package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// alerting engine.
type Metrics struct {
	ForecastFetches *prometheus.CounterVec // labels: outcome={success,error}
	CacheResults    *prometheus.CounterVec // labels: result={fresh,fetched,stale_fallback,miss}

	EvaluationTicks *prometheus.CounterVec // labels: outcome={success,error}
	TickDuration    prometheus.Histogram

	SubscriptionsEvaluated prometheus.Counter
	AlertsFired            prometheus.Counter
	AlertsSuppressed       prometheus.Counter // within the re-alert gap
	SubscriptionsSkipped   prometheus.Counter // bad per-subscription data
	NotifyErrors           prometheus.Counter

	SchedulerRunning prometheus.Gauge
}

// NewMetrics creates and registers all engine metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		ForecastFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aurora_alerter",
			Name:      "forecast_fetches_total",
			Help:      "Upstream forecast fetch attempts by outcome.",
		}, []string{"outcome"}),
		CacheResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aurora_alerter",
			Name:      "forecast_cache_results_total",
			Help:      "Forecast cache lookups by result. stale_fallback means a fetch failed and an expired cached grid was served.",
		}, []string{"result"}),
		EvaluationTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aurora_alerter",
			Name:      "evaluation_ticks_total",
			Help:      "Evaluation passes by outcome.",
		}, []string{"outcome"}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "aurora_alerter",
			Name:      "tick_duration_seconds",
			Help:      "Duration of a complete fetch-match-notify evaluation pass.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		SubscriptionsEvaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aurora_alerter",
			Name:      "subscriptions_evaluated_total",
			Help:      "Subscriptions evaluated across all passes.",
		}),
		AlertsFired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aurora_alerter",
			Name:      "alerts_fired_total",
			Help:      "Notifications successfully dispatched.",
		}),
		AlertsSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aurora_alerter",
			Name:      "alerts_suppressed_total",
			Help:      "Qualifying alerts suppressed by the minimum re-alert gap.",
		}),
		SubscriptionsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aurora_alerter",
			Name:      "subscriptions_skipped_total",
			Help:      "Subscriptions skipped for invalid data (for example an out-of-scale threshold).",
		}),
		NotifyErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aurora_alerter",
			Name:      "notify_errors_total",
			Help:      "Failed notification dispatches.",
		}),
		SchedulerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aurora_alerter",
			Name:      "scheduler_running",
			Help:      "1 when the evaluation scheduler is active, 0 when shut down.",
		}),
	}

	prometheus.MustRegister(
		m.ForecastFetches,
		m.CacheResults,
		m.EvaluationTicks,
		m.TickDuration,
		m.SubscriptionsEvaluated,
		m.AlertsFired,
		m.AlertsSuppressed,
		m.SubscriptionsSkipped,
		m.NotifyErrors,
		m.SchedulerRunning,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		ForecastFetches:        prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "aurora_alerter", Name: "forecast_fetches_total"}, []string{"outcome"}),
		CacheResults:           prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "aurora_alerter", Name: "forecast_cache_results_total"}, []string{"result"}),
		EvaluationTicks:        prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "aurora_alerter", Name: "evaluation_ticks_total"}, []string{"outcome"}),
		TickDuration:           prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "aurora_alerter", Name: "tick_duration_seconds"}),
		SubscriptionsEvaluated: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "aurora_alerter", Name: "subscriptions_evaluated_total"}),
		AlertsFired:            prometheus.NewCounter(prometheus.CounterOpts{Namespace: "aurora_alerter", Name: "alerts_fired_total"}),
		AlertsSuppressed:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: "aurora_alerter", Name: "alerts_suppressed_total"}),
		SubscriptionsSkipped:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: "aurora_alerter", Name: "subscriptions_skipped_total"}),
		NotifyErrors:           prometheus.NewCounter(prometheus.CounterOpts{Namespace: "aurora_alerter", Name: "notify_errors_total"}),
		SchedulerRunning:       prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "aurora_alerter", Name: "scheduler_running"}),
	}
}
