package evaluation

import (
	"math"

	"github.com/kalambet/profilesim/internal/faults"
)

// Trace is the per-turn sequence of reports for one session.
type Trace []Report

// ValidateThreshold reports a ConfigurationError unless 0 < threshold <= 1.
func ValidateThreshold(threshold float64) error {
	if math.IsNaN(threshold) || threshold <= 0 || threshold > 1 {
		return faults.Configf("convergence_threshold", "%v outside (0,1]", threshold)
	}
	return nil
}

// TurnsToConverge returns the turn of the first report from which overall
// accuracy stays at or above threshold through the end of the trace. Reports
// without a turn number count by position, starting at 1.
func (t Trace) TurnsToConverge(threshold float64) (int, bool) {
	start := -1
	for i, r := range t {
		if r.OverallAccuracy >= threshold {
			if start < 0 {
				start = i
			}
		} else {
			start = -1
		}
	}
	if start < 0 {
		return 0, false
	}
	if turn := t[start].Turn; turn > 0 {
		return turn, true
	}
	return start + 1, true
}

// Last returns the final report.
func (t Trace) Last() (Report, bool) {
	if len(t) == 0 {
		return Report{}, false
	}
	return t[len(t)-1], true
}

// Accuracies returns the overall accuracy of each report in order.
func (t Trace) Accuracies() []float64 {
	out := make([]float64, len(t))
	for i, r := range t {
		out[i] = r.OverallAccuracy
	}
	return out
}
