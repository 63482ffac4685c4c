// Package noise perturbs ground-truth facts the way a person's recollection
// does: facts are forgotten, hedged, misremembered, or mentioned off-topic.
package noise

import (
	"math"
	"math/rand/v2"

	"github.com/kalambet/profilesim/internal/faults"
	"github.com/kalambet/profilesim/internal/profile"
)

// Model holds the four independent per-fact noise rates, each in [0,1].
type Model struct {
	Forgetfulness float64 `json:"forgetfulness" yaml:"forgetfulness"`
	Vagueness     float64 `json:"vagueness" yaml:"vagueness"`
	Misleading    float64 `json:"misleading" yaml:"misleading"`
	TopicHopping  float64 `json:"topic_hopping" yaml:"topic_hopping"`
}

// Validate reports a ConfigurationError for any rate outside [0,1].
func (m Model) Validate() error {
	for _, r := range []struct {
		name string
		rate float64
	}{
		{"noise.forgetfulness", m.Forgetfulness},
		{"noise.vagueness", m.Vagueness},
		{"noise.misleading", m.Misleading},
		{"noise.topic_hopping", m.TopicHopping},
	} {
		if math.IsNaN(r.rate) || r.rate < 0 || r.rate > 1 {
			return faults.Configf(r.name, "rate %v outside [0,1]", r.rate)
		}
	}
	return nil
}

// Fact is one ground-truth (dimension, field, value) triple.
type Fact struct {
	Key   profile.Key
	Value profile.Value
}

// Disclosed is a fact as the person actually states it.
type Disclosed struct {
	Key profile.Key `json:"key"`
	// Value is what was said, which differs from Truth when Misleading.
	Value profile.Value `json:"value"`
	Truth profile.Value `json:"truth"`
	// Hedge is the qualifier attached to a vague statement ("I think").
	Hedge      string `json:"hedge,omitempty"`
	Vague      bool   `json:"vague,omitempty"`
	Misleading bool   `json:"misleading,omitempty"`
	TopicHop   bool   `json:"topic_hop,omitempty"`
}

// Hedges are the qualifiers used for vague statements.
var Hedges = []string{"I think", "Maybe", "Probably", "If I remember right,", "Approximately"}

// Apply runs fact through m using rng. It returns false when the fact is
// forgotten. Draws happen in a fixed order (forget, mislead, vague, topic
// hop) so a seeded rng replays identically.
func Apply(f Fact, m Model, rng *rand.Rand) (Disclosed, bool) {
	if hit(rng, m.Forgetfulness) {
		return Disclosed{}, false
	}

	d := Disclosed{Key: f.Key, Value: f.Value, Truth: f.Value}
	if hit(rng, m.Misleading) {
		if alt, ok := Alternative(f.Key, f.Value, rng); ok {
			d.Value = alt
			d.Misleading = true
		}
	}
	if !d.Misleading && hit(rng, m.Vagueness) {
		d.Vague = true
		d.Hedge = Hedges[rng.IntN(len(Hedges))]
	}
	d.TopicHop = hit(rng, m.TopicHopping)
	return d, true
}

// hit draws one Bernoulli trial. Rates of 0 and 1 never consume the rng so
// noiseless runs stay deterministic regardless of the seed.
func hit(rng *rand.Rand, rate float64) bool {
	switch {
	case rate <= 0:
		return false
	case rate >= 1:
		return true
	default:
		return rng.Float64() < rate
	}
}
