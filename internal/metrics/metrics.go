package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gitgame"

var (
	WSConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ws_connections",
		Help:      "Number of open websocket connections.",
	})

	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_sessions",
		Help:      "Number of game sessions held in memory.",
	})

	RoundsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rounds_started_total",
		Help:      "Total number of rounds that produced a prompt.",
	})

	Reveals = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reveals_total",
		Help:      "Total number of answer reveals by trigger.",
	}, []string{"trigger"})

	ChunkFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chunk_failures_total",
		Help:      "Total number of picked files that yielded no usable chunk.",
	})

	ProviderRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_requests_total",
		Help:      "Total code-hosting provider requests by endpoint and status code.",
	}, []string{"endpoint", "status"})

	TransitionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "transition_duration_seconds",
		Help:      "Time spent handling one session event, including broadcasts.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"event"})
)

// Register adds all collectors to reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		WSConnections,
		ActiveSessions,
		RoundsStarted,
		Reveals,
		ChunkFailures,
		ProviderRequests,
		TransitionDuration,
	)
}
