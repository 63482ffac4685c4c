package session

import (
	"time"

	"github.com/kalambet/profilesim/internal/disclosure"
	"github.com/kalambet/profilesim/internal/evaluation"
	"github.com/kalambet/profilesim/internal/faults"
	"github.com/kalambet/profilesim/internal/noise"
)

// Config is everything that shapes one session apart from the persona and
// the seed.
type Config struct {
	Disclosure           disclosure.Config `json:"disclosure"`
	ConvergenceThreshold float64           `json:"convergence_threshold"`
	MaxTurns             int               `json:"max_turns"`
	// ExtractTimeout bounds each extraction call. Zero leaves the call
	// bounded only by the session context.
	ExtractTimeout time.Duration `json:"extract_timeout"`
	ConflictMargin float64       `json:"conflict_margin"`
}

// DefaultConfig returns a noiseless configuration.
func DefaultConfig() Config {
	return Config{
		Disclosure: disclosure.Config{
			PriorityOrder:      disclosure.DefaultPriorityOrder,
			MaxNewFactsPerTurn: 3,
			Noise:              noise.Model{},
		},
		ConvergenceThreshold: 0.9,
		MaxTurns:             20,
		ExtractTimeout:       30 * time.Second,
	}
}

// Validate reports a ConfigurationError for any setting out of range.
func (c Config) Validate() error {
	if err := c.Disclosure.Validate(); err != nil {
		return err
	}
	if err := evaluation.ValidateThreshold(c.ConvergenceThreshold); err != nil {
		return err
	}
	if c.MaxTurns <= 0 {
		return faults.Configf("max_turns", "must be positive, got %d", c.MaxTurns)
	}
	if c.ExtractTimeout < 0 {
		return faults.Configf("extract_timeout", "must not be negative, got %s", c.ExtractTimeout)
	}
	if c.ConflictMargin < 0 || c.ConflictMargin > 1 {
		return faults.Configf("conflict_margin", "%v outside [0,1]", c.ConflictMargin)
	}
	return nil
}
