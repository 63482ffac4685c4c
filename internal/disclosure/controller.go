// Package disclosure decides which ground-truth facts a simulated person
// reveals on each conversational turn.
package disclosure

import (
	"fmt"
	"math/rand/v2"

	"github.com/kalambet/profilesim/internal/faults"
	"github.com/kalambet/profilesim/internal/noise"
	"github.com/kalambet/profilesim/internal/profile"
)

// State is the controller lifecycle stage.
type State int

const (
	StateInit State = iota
	StateDisclosing
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateDisclosing:
		return "disclosing"
	case StateExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config controls disclosure pacing.
type Config struct {
	// PriorityOrder ranks dimensions; unlisted dimensions follow in schema
	// order.
	PriorityOrder      []profile.Dimension `json:"priority_order"`
	MaxNewFactsPerTurn int                 `json:"max_new_facts_per_turn"`
	Noise              noise.Model         `json:"noise"`
}

// DefaultPriorityOrder is the ranking used when none is configured.
var DefaultPriorityOrder = []profile.Dimension{
	profile.IdentityLanguage,
	profile.HealthSafety,
	profile.LifestyleSocial,
	profile.EmotionalSupport,
	profile.CognitiveInteraction,
	profile.ValuesPreferences,
}

// Validate reports a ConfigurationError for an empty or malformed priority
// order, a non-positive cap, or invalid noise rates.
func (c Config) Validate() error {
	if len(c.PriorityOrder) == 0 {
		return faults.Configf("priority_order", "must name at least one dimension")
	}
	seen := make(map[profile.Dimension]bool, len(c.PriorityOrder))
	for _, d := range c.PriorityOrder {
		if !profile.KnownDimension(d) {
			return faults.Configf("priority_order", "unknown dimension %q", d)
		}
		if seen[d] {
			return faults.Configf("priority_order", "dimension %q listed twice", d)
		}
		seen[d] = true
	}
	if c.MaxNewFactsPerTurn <= 0 {
		return faults.Configf("max_new_facts_per_turn", "must be positive, got %d", c.MaxNewFactsPerTurn)
	}
	return c.Noise.Validate()
}

// Plan is the set of facts disclosed on one turn, in disclosure order.
type Plan struct {
	Turn  int               `json:"turn"`
	Facts []noise.Disclosed `json:"facts"`
	// Forgotten counts the candidates the noise model dropped this turn.
	Forgotten int `json:"forgotten"`
}

// Controller owns the expressed profile of one session. It is not safe for
// concurrent use; turns are sequential.
type Controller struct {
	truth     profile.Profile
	expressed profile.Profile
	cfg       Config
	order     []profile.Dimension
	rng       *rand.Rand
	state     State
	turn      int
}

// NewController validates the ground truth and configuration and returns a
// controller in StateInit with nothing expressed.
func NewController(truth profile.Profile, cfg Config, rng *rand.Rand) (*Controller, error) {
	if err := profile.Validate(truth); err != nil {
		return nil, fmt.Errorf("ground truth: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, faults.Configf("rng", "a random source is required")
	}
	return &Controller{
		truth:     truth.Clone(),
		expressed: profile.Init(),
		cfg:       cfg,
		order:     effectiveOrder(cfg.PriorityOrder),
		rng:       rng,
	}, nil
}

// State returns the lifecycle stage.
func (c *Controller) State() State { return c.state }

// Expressed returns a copy of everything disclosed so far.
func (c *Controller) Expressed() profile.Profile { return c.expressed.Clone() }

// Remaining returns how many ground-truth facts are still undisclosed.
func (c *Controller) Remaining() int {
	return len(Candidates(c.truth, c.expressed, c.order, profile.FieldCount()))
}

// SelectFacts picks up to MaxNewFactsPerTurn undisclosed facts in priority
// order, passes each through the noise model and marks the survivors
// expressed. Forgotten candidates are not replaced. Once nothing remains
// undisclosed it returns an empty plan.
func (c *Controller) SelectFacts() Plan {
	c.turn++
	plan := Plan{Turn: c.turn}
	if c.state == StateExhausted {
		return plan
	}

	candidates := Candidates(c.truth, c.expressed, c.order, c.cfg.MaxNewFactsPerTurn)
	if len(candidates) == 0 {
		c.state = StateExhausted
		return plan
	}
	c.state = StateDisclosing

	for _, f := range candidates {
		d, ok := noise.Apply(f, c.cfg.Noise, c.rng)
		if !ok {
			plan.Forgotten++
			continue
		}
		plan.Facts = append(plan.Facts, d)
		// A misleading value is recorded as said; the field counts as
		// expressed and is not offered again.
		c.expressed[f.Key.Dimension][f.Key.Field] = profile.Field{Value: d.Value, Confidence: 1}
	}

	if len(Candidates(c.truth, c.expressed, c.order, 1)) == 0 {
		c.state = StateExhausted
	}
	return plan
}

// Candidates returns at most k facts that are known in truth but still null
// in expressed, ordered by dimension priority then schema field order.
func Candidates(truth, expressed profile.Profile, order []profile.Dimension, k int) []noise.Fact {
	var out []noise.Fact
	for _, d := range effectiveOrder(order) {
		for _, key := range profile.KeysOf(d) {
			if len(out) >= k {
				return out
			}
			t := truth.Get(key)
			if !t.Known() || expressed.Get(key).Known() {
				continue
			}
			out = append(out, noise.Fact{Key: key, Value: t.Value})
		}
	}
	return out
}

// effectiveOrder appends the dimensions missing from order in schema order.
func effectiveOrder(order []profile.Dimension) []profile.Dimension {
	out := make([]profile.Dimension, 0, len(profile.Dimensions()))
	seen := map[profile.Dimension]bool{}
	for _, d := range order {
		if profile.KnownDimension(d) && !seen[d] {
			out = append(out, d)
			seen[d] = true
		}
	}
	for _, d := range profile.Dimensions() {
		if !seen[d] {
			out = append(out, d)
		}
	}
	return out
}
