// Package evaluation scores an extracted profile against the ground truth it
// was built from.
package evaluation

import (
	"fmt"

	"github.com/kalambet/profilesim/internal/profile"
)

// ErrorKind classifies a field the extraction got wrong.
type ErrorKind string

const (
	// Missed: known in the ground truth, null in the extraction.
	Missed ErrorKind = "missed"
	// Hallucinated: null in the ground truth, known in the extraction.
	Hallucinated ErrorKind = "hallucinated"
	// WrongValue: known in both with different values.
	WrongValue ErrorKind = "wrong_value"
)

// FieldError is one incorrect field.
type FieldError struct {
	Dimension profile.Dimension `json:"dimension"`
	Field     string            `json:"field"`
	Kind      ErrorKind         `json:"kind"`
	Expected  profile.Value     `json:"expected"`
	Got       profile.Value     `json:"got"`
}

// SetOverlap is the Jaccard similarity of a set field known on both sides.
type SetOverlap struct {
	Dimension profile.Dimension `json:"dimension"`
	Field     string            `json:"field"`
	Jaccard   float64           `json:"jaccard"`
}

// Report is the accuracy of one extracted profile.
type Report struct {
	Turn                 int                           `json:"turn,omitempty"`
	OverallAccuracy      float64                       `json:"overall_accuracy"`
	PerDimensionAccuracy map[profile.Dimension]float64 `json:"dimension_accuracy"`
	// Recall is the share of known ground-truth fields extracted correctly.
	Recall        float64      `json:"recall"`
	CorrectFields int          `json:"correct_fields"`
	TotalFields   int          `json:"total_fields"`
	TruthFields   int          `json:"truth_fields"`
	Errors        []FieldError `json:"errors,omitempty"`
	SetOverlaps   []SetOverlap `json:"set_overlaps,omitempty"`
}

// ErrorCounts tallies Errors by kind.
func (r Report) ErrorCounts() map[ErrorKind]int {
	out := map[ErrorKind]int{}
	for _, e := range r.Errors {
		out[e.Kind]++
	}
	return out
}

// Evaluate compares extracted with truth field by field. A field is correct
// when both are null or both hold equal values; confidences are ignored.
func Evaluate(extracted, truth profile.Profile) (Report, error) {
	if err := profile.Validate(extracted); err != nil {
		return Report{}, fmt.Errorf("extracted profile: %w", err)
	}
	if err := profile.Validate(truth); err != nil {
		return Report{}, fmt.Errorf("ground truth: %w", err)
	}

	r := Report{PerDimensionAccuracy: map[profile.Dimension]float64{}}
	truthCorrect := 0
	for _, d := range profile.Dimensions() {
		keys := profile.KeysOf(d)
		correct := 0
		for _, k := range keys {
			got, want := extracted.Get(k).Value, truth.Get(k).Value
			r.TotalFields++
			if !want.IsNull() {
				r.TruthFields++
			}

			if want.Kind() == profile.KindSet && got.Kind() == profile.KindSet {
				r.SetOverlaps = append(r.SetOverlaps, SetOverlap{
					Dimension: d,
					Field:     k.Field,
					Jaccard:   profile.Jaccard(got, want),
				})
			}

			switch {
			case got.Equal(want):
				correct++
				if !want.IsNull() {
					truthCorrect++
				}
				continue
			case got.IsNull():
				r.Errors = append(r.Errors, FieldError{Dimension: d, Field: k.Field, Kind: Missed, Expected: want})
			case want.IsNull():
				r.Errors = append(r.Errors, FieldError{Dimension: d, Field: k.Field, Kind: Hallucinated, Got: got})
			default:
				r.Errors = append(r.Errors, FieldError{Dimension: d, Field: k.Field, Kind: WrongValue, Expected: want, Got: got})
			}
		}
		r.CorrectFields += correct
		r.PerDimensionAccuracy[d] = float64(correct) / float64(len(keys))
	}

	r.OverallAccuracy = float64(r.CorrectFields) / float64(r.TotalFields)
	if r.TruthFields == 0 {
		r.Recall = 1
	} else {
		r.Recall = float64(truthCorrect) / float64(r.TruthFields)
	}
	return r, nil
}
