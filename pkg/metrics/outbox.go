package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RelayMetrics tracks what the outbox relay did with each row.
type RelayMetrics struct {
	events    *prometheus.CounterVec
	latency   prometheus.Histogram
	lastBatch prometheus.Gauge
}

func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	if reg == nil {
		return &RelayMetrics{}
	}
	m := &RelayMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_relay_events_total",
			Help: "Outbox rows handled by the relay by event type and outcome.",
		}, []string{"event_type", "outcome"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "outbox_relay_publish_duration_seconds",
			Help:    "Time to get a Pub/Sub acknowledgement for one event.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
		lastBatch: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_relay_batch_size",
			Help: "Rows returned by the most recent outbox fetch.",
		}),
	}
	reg.MustRegister(m.events, m.latency, m.lastBatch)
	return m
}

func (m *RelayMetrics) Event(eventType, outcome string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(eventType, normalizeLabel(outcome)).Inc()
}

func (m *RelayMetrics) PublishTook(d time.Duration) {
	if m == nil || m.latency == nil {
		return
	}
	m.latency.Observe(d.Seconds())
}

func (m *RelayMetrics) Fetched(n int) {
	if m == nil || m.lastBatch == nil {
		return
	}
	m.lastBatch.Set(float64(n))
}
