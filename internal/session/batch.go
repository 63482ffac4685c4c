package session

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/profilesim/internal/evaluation"
)

// DefaultParallelism bounds RunBatch when no limit is given.
const DefaultParallelism = 4

// RunBatch runs independent sessions concurrently, at most parallelism at
// a time. Results are returned in spec order. The first failing session
// cancels the rest.
func (r *Runner) RunBatch(ctx context.Context, specs []Spec, parallelism int) ([]*Result, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}

	results := make([]*Result, len(specs))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for i, spec := range specs {
		g.Go(func() error {
			res, err := r.Run(gCtx, spec)
			if err != nil {
				return fmt.Errorf("session %d (%s seed %d): %w", i, spec.Persona, spec.Seed, err)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Summarize aggregates finished sessions.
func Summarize(results []*Result) (evaluation.Summary, error) {
	outcomes := make([]evaluation.RunOutcome, 0, len(results))
	for _, r := range results {
		outcomes = append(outcomes, r.Outcome())
	}
	return evaluation.Summarize(outcomes)
}
