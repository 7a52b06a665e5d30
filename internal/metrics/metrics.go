// Package metrics provides Prometheus instrumentation for the match
// service. It exposes a gauge for the pending pool size, counters for
// request outcomes and pairing conflicts, and a histogram for time-to-match.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PendingRequests tracks the current number of requests in the pending pool.
	PendingRequests = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "peercode_match_pending_requests",
		Help: "Current number of requests in the pending pool",
	})

	// Outcomes counts resolved requests, labeled by terminal outcome:
	// "matched", "timed_out", or "cancelled".
	Outcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "peercode_match_outcomes_total",
		Help: "Total number of resolved match requests by outcome",
	}, []string{"outcome"}) // outcome = "matched", "timed_out", "cancelled"

	// MatchDuration records the time from request submission to pairing.
	MatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "peercode_match_duration_seconds",
		Help:    "Time from match request to successful pairing",
		Buckets: []float64{.1, .5, 1, 2, 5, 10, 15, 20, 25, 30},
	})

	// ClaimConflicts counts pairing attempts that lost the atomic claim to
	// a concurrent attempt and had to retry.
	ClaimConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "peercode_match_claim_conflicts_total",
		Help: "Total number of pairing attempts that lost the claim race",
	})

	// DuplicateRequests counts submissions rejected because the user
	// already had an active request.
	DuplicateRequests = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "peercode_match_duplicate_requests_total",
		Help: "Total number of submissions rejected as duplicates",
	})
)

func init() {
	prometheus.MustRegister(
		PendingRequests,
		Outcomes,
		MatchDuration,
		ClaimConflicts,
		DuplicateRequests,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
