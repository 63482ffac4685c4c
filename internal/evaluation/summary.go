package evaluation

import (
	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
)

// RunOutcome is the part of a finished session that Summarize aggregates.
type RunOutcome struct {
	Final         Report
	Turns         int
	ConvergedTurn int
	Converged     bool
}

// Summary aggregates many sessions.
type Summary struct {
	Runs           int                `json:"runs"`
	MeanAccuracy   float64            `json:"mean_accuracy"`
	StdDevAccuracy float64            `json:"stddev_accuracy"`
	MinAccuracy    float64            `json:"min_accuracy"`
	MaxAccuracy    float64            `json:"max_accuracy"`
	MeanRecall     float64            `json:"mean_recall"`
	ConvergedRuns  int                `json:"converged_runs"`
	ConvergedRate  float64            `json:"converged_rate"`
	MedianTurns    float64            `json:"median_turns_to_converge,omitempty"`
	P90Turns       float64            `json:"p90_turns_to_converge,omitempty"`
	ErrorCounts    map[ErrorKind]int  `json:"error_counts"`
	Dimensions     map[string]float64 `json:"mean_dimension_accuracy"`
}

// Summarize computes summary statistics over runs. An empty input yields a
// zero Summary.
func Summarize(runs []RunOutcome) (Summary, error) {
	s := Summary{
		Runs:        len(runs),
		ErrorCounts: map[ErrorKind]int{},
		Dimensions:  map[string]float64{},
	}
	if len(runs) == 0 {
		return s, nil
	}

	acc := make([]float64, len(runs))
	recall := make([]float64, len(runs))
	var turns stats.Float64Data
	for i, r := range runs {
		acc[i] = r.Final.OverallAccuracy
		recall[i] = r.Final.Recall
		for kind, n := range r.Final.ErrorCounts() {
			s.ErrorCounts[kind] += n
		}
		for d, a := range r.Final.PerDimensionAccuracy {
			s.Dimensions[string(d)] += a / float64(len(runs))
		}
		if r.Converged {
			s.ConvergedRuns++
			turns = append(turns, float64(r.ConvergedTurn))
		}
	}

	if len(acc) > 1 {
		s.MeanAccuracy, s.StdDevAccuracy = stat.MeanStdDev(acc, nil)
	} else {
		s.MeanAccuracy = acc[0]
	}
	s.MeanRecall = stat.Mean(recall, nil)
	s.ConvergedRate = float64(s.ConvergedRuns) / float64(len(runs))

	var err error
	if s.MinAccuracy, err = stats.Min(acc); err != nil {
		return s, err
	}
	if s.MaxAccuracy, err = stats.Max(acc); err != nil {
		return s, err
	}
	if len(turns) > 0 {
		if s.MedianTurns, err = turns.Median(); err != nil {
			return s, err
		}
		if s.P90Turns, err = turns.Percentile(90); err != nil {
			return s, err
		}
	}
	return s, nil
}
