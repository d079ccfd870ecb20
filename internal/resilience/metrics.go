package resilience

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collectors are labelled by outbound dependency; the gateway is "chipin".
var (
	BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "outbound_breaker_state",
		Help: "Breaker state per outbound dependency: 0=closed, 1=open, 2=half-open.",
	}, []string{"target"})
	BreakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbound_breaker_transition_total",
		Help: "Breaker state transitions per outbound dependency.",
	}, []string{"target", "from", "to"})
	BreakerOpenedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbound_breaker_open_total",
		Help: "Times an outbound breaker opened.",
	}, []string{"target"})
	OutboundDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outbound_request_duration_seconds",
		Help:    "Latency of single outbound attempts by dependency and outcome.",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20},
	}, []string{"target", "outcome"})
)

func init() {
	prometheus.MustRegister(BreakerState, BreakerTransitions, BreakerOpenedTotal, OutboundDuration)
}

func observeOutbound(target, outcome string, d time.Duration) {
	OutboundDuration.WithLabelValues(target, outcome).Observe(d.Seconds())
}
