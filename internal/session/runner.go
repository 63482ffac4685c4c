// Package session drives simulated conversations: each turn a controller
// picks facts for the simulated person to disclose, the renderer voices
// them, the extractor reads them back, fusion folds the result into the
// accumulated profile and the evaluator scores it against the ground truth.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/profilesim/internal/disclosure"
	"github.com/kalambet/profilesim/internal/evaluation"
	"github.com/kalambet/profilesim/internal/extraction"
	"github.com/kalambet/profilesim/internal/faults"
	"github.com/kalambet/profilesim/internal/fusion"
	"github.com/kalambet/profilesim/internal/profile"
	"github.com/kalambet/profilesim/internal/render"
)

// seedMix decorrelates the two PCG words derived from one session seed.
const seedMix = 0x9e3779b97f4a7c15

// NewRand returns the session random source for seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^seedMix))
}

// Spec identifies one session to run.
type Spec struct {
	// ID is generated when empty.
	ID          string
	Persona     string
	GroundTruth profile.Profile
	Config      Config
	Seed        uint64
}

// Turn records one conversation turn.
type Turn struct {
	Number int             `json:"number"`
	Plan   disclosure.Plan `json:"plan"`
	Text   string          `json:"text"`
	// ExtractionError is set when extraction failed and fusion was skipped.
	ExtractionError string            `json:"extraction_error,omitempty"`
	Conflicts       []fusion.Conflict `json:"conflicts,omitempty"`
	Report          evaluation.Report `json:"report"`
}

// Result is a finished session.
type Result struct {
	ID            string           `json:"id"`
	Persona       string           `json:"persona"`
	Seed          uint64           `json:"seed"`
	Config        Config           `json:"config"`
	Turns         []Turn           `json:"turns"`
	Trace         evaluation.Trace `json:"-"`
	ConvergedTurn int              `json:"converged_turn,omitempty"`
	Converged     bool             `json:"converged"`
	Final         profile.Profile  `json:"final"`
	Expressed     profile.Profile  `json:"expressed"`
	Exhausted     bool             `json:"exhausted"`
	StartedAt     time.Time        `json:"started_at"`
	FinishedAt    time.Time        `json:"finished_at"`
}

// FinalReport returns the evaluation of the last turn.
func (r *Result) FinalReport() evaluation.Report {
	last, _ := r.Trace.Last()
	return last
}

// Outcome reduces the result to what evaluation.Summarize aggregates.
func (r *Result) Outcome() evaluation.RunOutcome {
	return evaluation.RunOutcome{
		Final:         r.FinalReport(),
		Turns:         len(r.Turns),
		ConvergedTurn: r.ConvergedTurn,
		Converged:     r.Converged,
	}
}

// Conflicts returns every fusion conflict of the session in turn order.
func (r *Result) Conflicts() []fusion.Conflict {
	var out []fusion.Conflict
	for _, t := range r.Turns {
		out = append(out, t.Conflicts...)
	}
	return out
}

// Runner runs sessions against one extractor. It is safe for concurrent use
// when the extractor is.
type Runner struct {
	extractor extraction.Extractor
	renderer  *render.Renderer
	metrics   *Metrics
	logger    *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithMetrics records session metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithRenderer replaces the default renderer.
func WithRenderer(rd *render.Renderer) Option {
	return func(r *Runner) { r.renderer = rd }
}

// NewRunner creates a Runner that reads utterances back with ext.
func NewRunner(ext extraction.Extractor, opts ...Option) *Runner {
	r := &Runner{
		extractor: ext,
		renderer:  &render.Renderer{},
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run drives one session until the controller is exhausted or MaxTurns
// turns have run. Extraction failures are recorded on the turn and leave
// the accumulated profile unchanged. Cancelling ctx aborts the session.
func (r *Runner) Run(ctx context.Context, spec Spec) (*Result, error) {
	if err := spec.Config.Validate(); err != nil {
		return nil, err
	}
	ctrl, err := disclosure.NewController(spec.GroundTruth, spec.Config.Disclosure, NewRand(spec.Seed))
	if err != nil {
		return nil, err
	}

	res := &Result{
		ID:        spec.ID,
		Persona:   spec.Persona,
		Seed:      spec.Seed,
		Config:    spec.Config,
		StartedAt: time.Now().UTC(),
	}
	if res.ID == "" {
		res.ID = uuid.New().String()
	}
	log := r.logger.With("session", res.ID, "persona", spec.Persona, "seed", spec.Seed)

	merger := fusion.Merger{Margin: spec.Config.ConflictMargin}
	accumulated := profile.Init()

	for n := 1; n <= spec.Config.MaxTurns; n++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("session %s: %w", res.ID, err)
		}
		if ctrl.State() == disclosure.StateExhausted {
			break
		}

		plan := ctrl.SelectFacts()
		r.metrics.observePlan(plan)
		turn := Turn{Number: n, Plan: plan, Text: r.renderer.Render(plan)}

		partial, err := r.extract(ctx, spec.Config.ExtractTimeout, turn.Text)
		if ctx.Err() != nil {
			return nil, fmt.Errorf("session %s: %w", res.ID, ctx.Err())
		}
		if err != nil {
			log.Warn("extraction failed, skipping fusion", "turn", n, "error", err)
			turn.ExtractionError = err.Error()
		} else {
			merged, conflicts, err := merger.MergeWithConflicts(accumulated, partial)
			if err != nil {
				return nil, fmt.Errorf("turn %d: merging: %w", n, err)
			}
			for i := range conflicts {
				conflicts[i].Turn = n
			}
			r.metrics.observeConflicts(conflicts)
			accumulated = merged
			turn.Conflicts = conflicts
		}

		report, err := evaluation.Evaluate(accumulated, spec.GroundTruth)
		if err != nil {
			return nil, fmt.Errorf("turn %d: evaluating: %w", n, err)
		}
		report.Turn = n
		turn.Report = report

		res.Turns = append(res.Turns, turn)
		res.Trace = append(res.Trace, report)
		log.Debug("turn complete",
			"turn", n,
			"facts", len(plan.Facts),
			"forgotten", plan.Forgotten,
			"accuracy", report.OverallAccuracy,
		)
	}

	res.ConvergedTurn, res.Converged = res.Trace.TurnsToConverge(spec.Config.ConvergenceThreshold)
	res.Final = accumulated
	res.Expressed = ctrl.Expressed()
	res.Exhausted = ctrl.State() == disclosure.StateExhausted
	res.FinishedAt = time.Now().UTC()

	final := res.FinalReport()
	log.Info("session complete",
		"turns", len(res.Turns),
		"accuracy", final.OverallAccuracy,
		"recall", final.Recall,
		"converged", res.Converged,
		"converged_turn", res.ConvergedTurn,
	)
	return res, nil
}

// extract calls the extractor under the per-call timeout. Text with nothing
// in it yields an empty partial profile without a call. Invalid output is
// reported as an ExternalCallFailure.
func (r *Runner) extract(ctx context.Context, timeout time.Duration, text string) (profile.Profile, error) {
	if text == "" {
		return profile.Init(), nil
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	partial, err := r.extractor.Extract(ctx, text)
	if err == nil {
		if verr := profile.Validate(partial); verr != nil {
			err = fmt.Errorf("invalid partial profile: %w", verr)
		}
	}
	r.metrics.observeExtraction(time.Since(start), err)
	if err != nil {
		if !errors.Is(err, faults.ErrExternalCall) {
			err = faults.External("extract", err)
		}
		return nil, err
	}
	return partial, nil
}
