package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		dispatchOutcomesTotal,
		dispatchLatencyMs,
		dispatchActiveLanes,
		dispatchLaneDepth,
		rateLimitTriggeredTotal,
		sessionCasConflictsTotal,
		updatesReceivedTotal,
	)
}

var (
	dispatchOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_outcomes_total",
			Help: "Dispatch outcomes by kind and reason.",
		},
		[]string{"kind", "reason"},
	)

	dispatchLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_latency_ms",
			Help:    "End-to-end update processing latency in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"command"},
	)

	dispatchActiveLanes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_active_lanes",
			Help: "Number of live per-user execution lanes.",
		},
	)

	dispatchLaneDepth = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_lane_depth",
			Help:    "Pending updates observed in a lane at submit time.",
			Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64},
		},
	)

	rateLimitTriggeredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limit_triggered_total",
			Help: "Total number of times users have been rate-limited.",
		},
	)

	sessionCasConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "session_cas_conflicts_total",
			Help: "Compare-and-swap failures when persisting sessions.",
		},
	)

	updatesReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updates_received_total",
			Help: "Inbound updates by type (command, text, callback).",
		},
		[]string{"type"},
	)
)

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func IncOutcome(kind, reason string) {
	dispatchOutcomesTotal.WithLabelValues(norm(kind), norm(reason)).Inc()
}

func ObserveDispatchLatency(command string, ms float64) {
	if command == "" {
		command = "text"
	}
	dispatchLatencyMs.WithLabelValues(norm(command)).Observe(ms)
}

func SetActiveLanes(n int) { dispatchActiveLanes.Set(float64(n)) }

func ObserveLaneDepth(depth int) { dispatchLaneDepth.Observe(float64(depth)) }

func IncRateLimitTriggered() { rateLimitTriggeredTotal.Inc() }

func IncCasConflict() { sessionCasConflictsTotal.Inc() }

func IncUpdateReceived(typ string) { updatesReceivedTotal.WithLabelValues(norm(typ)).Inc() }
