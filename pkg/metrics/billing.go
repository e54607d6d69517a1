package metrics

import "github.com/prometheus/client_golang/prometheus"

// SweepMetrics counts per-row outcomes of the billing sweeps.
type SweepMetrics struct {
	rows *prometheus.CounterVec
}

func NewSweepMetrics(reg prometheus.Registerer) *SweepMetrics {
	if reg == nil {
		return &SweepMetrics{}
	}
	rows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_sweep_rows_total",
		Help: "Rows handled by billing sweeps by outcome.",
	}, []string{"sweep", "outcome"})
	reg.MustRegister(rows)
	return &SweepMetrics{rows: rows}
}

// Add increments the outcome counter of a sweep by n.
func (s *SweepMetrics) Add(sweep, outcome string, n int) {
	if s == nil || s.rows == nil || n <= 0 {
		return
	}
	s.rows.WithLabelValues(normalizeLabel(sweep), normalizeLabel(outcome)).Add(float64(n))
}
