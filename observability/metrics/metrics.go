package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics records engine activity for the /metrics endpoint.
type SettlementMetrics struct {
	Transitions *prometheus.CounterVec
	Failures    *prometheus.CounterVec
	Finalized   prometheus.Counter
	Paused      prometheus.Gauge
}

var (
	settlementOnce sync.Once
	settlementReg  *SettlementMetrics
)

// Settlement returns the lazily-initialised settlement metrics registry.
func Settlement() *SettlementMetrics {
	settlementOnce.Do(func() {
		settlementReg = &SettlementMetrics{
			Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "arena",
				Subsystem: "settlement",
				Name:      "transitions_total",
				Help:      "Committed settlement transitions segmented by operation.",
			}, []string{"op"}),
			Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "arena",
				Subsystem: "settlement",
				Name:      "failures_total",
				Help:      "Rejected settlement transitions segmented by operation and reason.",
			}, []string{"op", "reason"}),
			Finalized: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "arena",
				Subsystem: "settlement",
				Name:      "tournament_finalizations_total",
				Help:      "Completed tournament finalizations.",
			}),
			Paused: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "arena",
				Subsystem: "settlement",
				Name:      "paused",
				Help:      "Whether the settlement engine is paused (1) or live (0).",
			}),
		}
		prometheus.MustRegister(
			settlementReg.Transitions,
			settlementReg.Failures,
			settlementReg.Finalized,
			settlementReg.Paused,
		)
	})
	return settlementReg
}
