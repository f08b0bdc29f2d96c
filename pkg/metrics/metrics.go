package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CallTransitions counts committed call status transitions by target status.
	CallTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voice_call_transitions_total",
			Help: "Total number of committed call status transitions",
		},
		[]string{"to"},
	)

	// SideEffectFailures counts best-effort steps that failed after a commit (cache|notify|recording|audit|directory|touch).
	SideEffectFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voice_call_side_effect_failures_total",
			Help: "Best-effort side effects that failed after the record store commit",
		},
		[]string{"step"},
	)

	// Notifications counts notify attempts by delivery path (realtime|push|none) and result.
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voice_notifications_total",
			Help: "Notification dispatch attempts",
		},
		[]string{"via", "result"},
	)

	// SweepActions counts sessions forced terminal by the periodic sweep.
	SweepActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voice_sweep_actions_total",
			Help: "Sessions transitioned by the stale-session sweep",
		},
		[]string{"action"},
	)

	RingTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "voice_ring_timeouts_total",
			Help: "Calls marked missed by the in-process ring timer",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "voice_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// RegisterRuntimeGauges exposes in-process state that is not in the record
// store. Call it once per registerer.
func RegisterRuntimeGauges(reg prometheus.Registerer, pendingRingTimers, realtimeConnections func() int) {
	f := promauto.With(reg)
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "voice_pending_ring_timers",
		Help: "Calls with an armed in-process ring timer",
	}, func() float64 { return float64(pendingRingTimers()) })
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "voice_realtime_connections",
		Help: "Open real-time channel connections",
	}, func() float64 { return float64(realtimeConnections()) })
}
