// Package metrics holds the Prometheus collectors of the service. They are
// registered on the default registry and served by promhttp on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Action outcomes used as the "outcome" label.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeReplayed = "replayed"
	OutcomeInternal = "internal_error"
)

var (
	// ActionsTotal counts dispatched actions by type and outcome
	ActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bills_actions_total",
		Help: "Total dispatched actions by type and outcome",
	}, []string{"type", "outcome"})

	// ActionDuration tracks action execution latency, replays included
	ActionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bills_action_duration_seconds",
		Help:    "Action execution duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
	}, []string{"type"})

	// AdvisorCalls counts advisor tasks by outcome (ok, cached, fallback, error)
	AdvisorCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bills_advisor_calls_total",
		Help: "Total advisor queries by task and outcome",
	}, []string{"task", "outcome"})

	// AdvisorAttempts tracks how many provider attempts a query needed
	AdvisorAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bills_advisor_attempts",
		Help:    "Provider attempts per advisor query",
		Buckets: []float64{1, 2, 3, 4, 5},
	})

	// HTTPRequestDuration tracks request latency by route pattern and status class
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bills_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	// RolloverRuns counts month rollover runs by result
	RolloverRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bills_rollover_runs_total",
		Help: "Total month rollover runs by result",
	}, []string{"result"})

	// QueueMessages counts consumed action request messages by result
	QueueMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bills_queue_messages_total",
		Help: "Consumed action request messages by result",
	}, []string{"result"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
