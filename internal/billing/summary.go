package billing

import "go.uber.org/multierr"

// SweepSummary is the per-run result reported by the scheduled sweeps.
// Row failures are counted, never returned as a sweep error.
type SweepSummary struct {
	TotalProcessed int   `json:"totalProcessed"`
	Succeeded      int   `json:"succeeded"`
	Failed         int   `json:"failed"`
	Skipped        int   `json:"-"`
	Err            error `json:"-"`
}

// Success records a resolved row.
func (s *SweepSummary) Success() {
	s.TotalProcessed++
	s.Succeeded++
}

// Skip records a row another run already resolved. It still counts as succeeded.
func (s *SweepSummary) Skip() {
	s.Success()
	s.Skipped++
}

// Failure records a row that could not be resolved in this run.
func (s *SweepSummary) Failure(err error) {
	s.TotalProcessed++
	s.Failed++
	if err != nil {
		s.Err = multierr.Append(s.Err, err)
	}
}
