package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ticksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transit_engine",
		Subsystem: "scheduler",
		Name:      "user_ticks_total",
		Help:      "User evaluation ticks by outcome (ok, error, skipped_overlap).",
	}, []string{"outcome"})

	evaluateDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "transit_engine",
		Subsystem: "analysis",
		Name:      "evaluate_duration_seconds",
		Help:      "End-to-end duration of one user analysis evaluation.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})

	providerDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "transit_engine",
		Subsystem: "provider",
		Name:      "request_duration_seconds",
		Help:      "Duration of position provider requests, including failures.",
		Buckets:   []float64{.01, .025, .05, .1, .2, .4, .8, 1.6},
	})

	cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transit_engine",
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Cache lookups by cache name and result (hit, miss).",
	}, []string{"cache", "result"})

	alertsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transit_engine",
		Subsystem: "alerts",
		Name:      "emitted_total",
		Help:      "Alert records created, by transition kind.",
	}, []string{"kind"})

	alertsSuppressed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "transit_engine",
		Subsystem: "alerts",
		Name:      "suppressed_total",
		Help:      "Alerts suppressed by the per-user rate ceiling.",
	})

	deliveryFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transit_engine",
		Subsystem: "alerts",
		Name:      "delivery_failures_total",
		Help:      "Channel adapter delivery failures by channel name.",
	}, []string{"channel"})
)

func init() {
	prometheus.MustRegister(ticksTotal, evaluateDuration, providerDuration,
		cacheLookups, alertsTotal, alertsSuppressed, deliveryFailures)
}

// RecordTick counts one user tick with its outcome.
func RecordTick(outcome string) {
	ticksTotal.WithLabelValues(outcome).Inc()
}

// ObserveEvaluation records the duration of one analysis evaluation.
func ObserveEvaluation(d time.Duration) {
	evaluateDuration.Observe(d.Seconds())
}

// ObserveProviderCall records the duration of one position provider request.
func ObserveProviderCall(d time.Duration) {
	providerDuration.Observe(d.Seconds())
}

// RecordCacheLookup counts a cache hit or miss.
func RecordCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(cache, result).Inc()
}

// RecordAlert counts one created alert record.
func RecordAlert(kind string) {
	alertsTotal.WithLabelValues(kind).Inc()
}

// RecordSuppressed counts one rate-limited alert.
func RecordSuppressed() {
	alertsSuppressed.Inc()
}

// RecordDeliveryFailure counts one failed channel delivery.
func RecordDeliveryFailure(channel string) {
	deliveryFailures.WithLabelValues(channel).Inc()
}

// Handler exposes the prometheus registry over HTTP.
func Handler() http.Handler {
	return promhttp.Handler()
}
