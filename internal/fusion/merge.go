// Package fusion merges newly extracted partial profiles into an accumulated
// profile under per-field confidence rules.
package fusion

import (
	"fmt"

	"github.com/kalambet/profilesim/internal/profile"
)

// Decision records how a conflict between two non-null values was resolved.
type Decision string

const (
	DecisionAdopted Decision = "adopted"
	DecisionKept    Decision = "kept"
)

// Conflict is one (dimension, field) where the old and new values were both
// known and differed.
type Conflict struct {
	Turn      int               `json:"turn,omitempty"`
	Dimension profile.Dimension `json:"dimension"`
	Field     string            `json:"field"`
	Old       profile.Field     `json:"old"`
	New       profile.Field     `json:"new"`
	Decision  Decision          `json:"decision"`
}

// Merger applies the fusion rules. The zero value is ready to use and
// adopts a conflicting value on any strict confidence increase.
type Merger struct {
	// Margin is the minimum confidence gain a conflicting value needs to
	// replace the old one. Zero means any strict increase.
	Margin float64
	// Audit, when set, receives every conflict. It never affects the result.
	Audit *AuditLog
}

// Merge folds partial into old with the default Merger.
func Merge(old, partial profile.Profile) (profile.Profile, error) {
	return Merger{}.Merge(old, partial)
}

// Merge folds partial into old and returns a new profile. Neither argument
// is modified.
func (m Merger) Merge(old, partial profile.Profile) (profile.Profile, error) {
	out, conflicts, err := m.MergeWithConflicts(old, partial)
	if err != nil {
		return nil, err
	}
	if m.Audit != nil {
		m.Audit.Record(conflicts...)
	}
	return out, nil
}

// MergeWithConflicts is Merge that also returns the conflicts it resolved,
// in schema order. The Audit log is not written.
func (m Merger) MergeWithConflicts(old, partial profile.Profile) (profile.Profile, []Conflict, error) {
	if err := profile.Validate(old); err != nil {
		return nil, nil, fmt.Errorf("old profile: %w", err)
	}
	if err := profile.Validate(partial); err != nil {
		return nil, nil, fmt.Errorf("partial profile: %w", err)
	}

	out := old.Clone()
	var conflicts []Conflict
	for _, k := range profile.Keys() {
		o, n := old.Get(k), partial.Get(k)
		merged, decision, conflict := m.mergeField(o, n)
		out[k.Dimension][k.Field] = merged
		if conflict {
			conflicts = append(conflicts, Conflict{
				Dimension: k.Dimension,
				Field:     k.Field,
				Old:       o,
				New:       n,
				Decision:  decision,
			})
		}
	}
	return out, conflicts, nil
}

// marginTolerance absorbs float error in confidence differences, so 0.9 over
// 0.8 clears a margin of 0.1.
const marginTolerance = 1e-9

func (m Merger) mergeField(o, n profile.Field) (profile.Field, Decision, bool) {
	switch {
	case !n.Known():
		return o, "", false
	case !o.Known():
		return n, "", false
	case o.Value.Equal(n.Value):
		// Equal sets still go through Union so the stored form is canonical.
		return profile.Field{
			Value:      o.Value.Union(n.Value),
			Confidence: max(o.Confidence, n.Confidence),
		}, "", false
	}

	gain := n.Confidence - o.Confidence
	if gain > 0 && gain+marginTolerance >= m.Margin {
		return n, DecisionAdopted, true
	}
	return o, DecisionKept, true
}
