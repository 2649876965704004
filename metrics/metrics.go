package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcomes for RequestsTotal.
const (
	OutcomeCompleted      = "completed"
	OutcomeInvalid        = "invalid"
	OutcomeUpstreamFailed = "upstream_failed"
	OutcomeTruncated      = "truncated"
	OutcomeClientGone     = "client_gone"
)

var (
	once sync.Once

	// RequestsTotal counts summarize requests by outcome.
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "visit_summary",
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "Total number of visit summary requests, labeled by outcome.",
	}, []string{"outcome"})

	// ActiveStreams is the number of responses currently streaming.
	ActiveStreams = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "visit_summary",
		Subsystem: "api",
		Name:      "active_streams",
		Help:      "Current number of event streams being written to clients.",
	})

	FragmentsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "visit_summary",
		Subsystem: "upstream",
		Name:      "fragments_total",
		Help:      "Total number of non-empty text fragments received from the completion provider.",
	})

	EventLinesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "visit_summary",
		Subsystem: "api",
		Name:      "event_lines_total",
		Help:      "Total number of data lines written to clients, marker lines included.",
	})

	// TimeToFirstFragmentSeconds measures from opening the upstream call to its first fragment.
	TimeToFirstFragmentSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "visit_summary",
		Subsystem: "upstream",
		Name:      "time_to_first_fragment_seconds",
		Help:      "Time from opening the completion stream to the first fragment.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})

	StreamDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "visit_summary",
		Subsystem: "api",
		Name:      "stream_duration_seconds",
		Help:      "End-to-end time of a summarize request.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 60, 120},
	}, []string{"outcome"})

	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "visit_summary",
		Subsystem: "api",
		Name:      "rate_limited_total",
		Help:      "Total number of requests rejected by the per-IP limiter.",
	})

	AuthFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "visit_summary",
		Subsystem: "auth",
		Name:      "failures_total",
		Help:      "Total number of rejected bearer tokens, labeled by reason.",
	}, []string{"reason"})
)

// Register registers service metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			RequestsTotal,
			ActiveStreams,
			FragmentsTotal,
			EventLinesTotal,
			TimeToFirstFragmentSeconds,
			StreamDurationSeconds,
			RateLimitedTotal,
			AuthFailuresTotal,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
