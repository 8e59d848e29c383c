package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Round metrics
	RoundsByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fedcoord_rounds_by_state",
			Help: "Number of rounds currently in each state",
		},
		[]string{"state"},
	)

	RoundsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedcoord_rounds_total",
			Help: "Total number of rounds closed, by outcome",
		},
		[]string{"outcome"},
	)

	ActiveWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fedcoord_active_workers",
			Help: "Total number of registered workers",
		},
	)

	RoundDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fedcoord_round_duration_seconds",
			Help:    "Time from round open to round close in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	AggregationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fedcoord_aggregation_duration_seconds",
			Help:    "Time spent aggregating a round's updates in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Update metrics
	UpdatesSubmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fedcoord_updates_submitted_total",
			Help: "Total number of weight-delta update submissions received",
		},
	)

	UpdatesRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedcoord_updates_rejected_total",
			Help: "Total number of update submissions rejected, by reason",
		},
		[]string{"reason"},
	)

	UpdatesAcceptedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fedcoord_updates_accepted_total",
			Help: "Total number of update submissions accepted",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedcoord_api_requests_total",
			Help: "Total number of API requests by route and status",
		},
		[]string{"route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fedcoord_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// Privacy metrics
	PrivacyClipsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fedcoord_privacy_clips_total",
			Help: "Total number of accepted weight-delta updates in which clipping to the configured L2 norm changed at least one value",
		},
	)

	// Incentive / reputation metrics
	TokensOutstanding = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fedcoord_tokens_outstanding",
			Help: "Sum of simulated incentive tokens earned across all workers",
		},
	)
)

func init() {
	prometheus.MustRegister(RoundsByState)
	prometheus.MustRegister(RoundsTotal)
	prometheus.MustRegister(ActiveWorkers)
	prometheus.MustRegister(RoundDuration)
	prometheus.MustRegister(AggregationDuration)
	prometheus.MustRegister(UpdatesSubmittedTotal)
	prometheus.MustRegister(UpdatesRejectedTotal)
	prometheus.MustRegister(UpdatesAcceptedTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(PrivacyClipsTotal)
	prometheus.MustRegister(TokensOutstanding)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
