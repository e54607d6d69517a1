package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// GatewayMetrics records payment gateway calls and the breaker state.
type GatewayMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	breaker  *prometheus.GaugeVec
}

// NewGatewayMetrics registers the gateway metrics on the provided registerer.
func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	if reg == nil {
		return &GatewayMetrics{}
	}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_requests_total",
		Help: "Payment gateway calls by operation and outcome.",
	}, []string{"operation", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_request_duration_seconds",
		Help:    "Latency of payment gateway calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	breaker := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gateway_circuit_state",
		Help: "Circuit breaker state (0 closed, 1 half-open, 2 open).",
	}, []string{"breaker"})
	reg.MustRegister(requests, duration, breaker)
	return &GatewayMetrics{requests: requests, duration: duration, breaker: breaker}
}

// ObserveCall records one call with its outcome label.
func (g *GatewayMetrics) ObserveCall(operation, outcome string, took time.Duration) {
	if g == nil || g.requests == nil {
		return
	}
	g.requests.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Inc()
	g.duration.WithLabelValues(normalizeLabel(operation)).Observe(took.Seconds())
}

// SetBreakerState publishes the numeric breaker state.
func (g *GatewayMetrics) SetBreakerState(name string, state float64) {
	if g == nil || g.breaker == nil {
		return
	}
	g.breaker.WithLabelValues(normalizeLabel(name)).Set(state)
}
