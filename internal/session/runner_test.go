package session

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/profilesim/internal/disclosure"
	"github.com/kalambet/profilesim/internal/extraction"
	"github.com/kalambet/profilesim/internal/faults"
	"github.com/kalambet/profilesim/internal/fusion"
	"github.com/kalambet/profilesim/internal/noise"
	"github.com/kalambet/profilesim/internal/profile"
)

var age = profile.Key{Dimension: profile.IdentityLanguage, Field: "age"}

func groundTruth(t *testing.T) profile.Profile {
	t.Helper()
	gt, err := profile.FromRaw(map[string]map[string]any{
		"identity_language": {"age": 72, "gender": "female", "education_level": "high_school"},
		"health_safety":     {"chronic_conditions": []any{"hypertension", "heart_disease"}},
		"lifestyle_social":  {"core_interests": []any{"chess", "gardening"}},
	}, 1.0)
	require.NoError(t, err)
	return gt
}

func config(perTurn int) Config {
	cfg := DefaultConfig()
	cfg.Disclosure.MaxNewFactsPerTurn = perTurn
	cfg.ConvergenceThreshold = 1
	cfg.MaxTurns = 10
	cfg.ExtractTimeout = time.Second
	return cfg
}

func spec(t *testing.T, cfg Config) Spec {
	return Spec{Persona: "test", GroundTruth: groundTruth(t), Config: cfg, Seed: 7}
}

func TestRun_NoiselessConverges(t *testing.T) {
	r := NewRunner(extraction.NewStatementExtractor())
	res, err := r.Run(context.Background(), spec(t, config(2)))
	require.NoError(t, err)

	assert.NotEmpty(t, res.ID)
	require.Len(t, res.Turns, 3, "five facts at two per turn")
	assert.True(t, res.Exhausted)
	assert.True(t, res.Converged)
	assert.Equal(t, 3, res.ConvergedTurn)
	assert.Equal(t, 1.0, res.FinalReport().OverallAccuracy)
	assert.Equal(t, 1.0, res.FinalReport().Recall)
	assert.True(t, res.Expressed.Equal(groundTruth(t)))

	for i, turn := range res.Turns {
		assert.Equal(t, i+1, turn.Number)
		assert.Equal(t, i+1, turn.Report.Turn)
		assert.Empty(t, turn.ExtractionError)
	}
	assert.Equal(t, res.Trace.Accuracies()[0], res.Turns[0].Report.OverallAccuracy)
	assert.Less(t, res.Trace.Accuracies()[0], 1.0)
}

func TestRun_ExtractionFailureSkipsFusion(t *testing.T) {
	var calls atomic.Int32
	inner := extraction.NewStatementExtractor()
	ext := extraction.Func(func(ctx context.Context, text string) (profile.Profile, error) {
		if calls.Add(1) == 2 {
			return nil, errors.New("model offline")
		}
		return inner.Extract(ctx, text)
	})

	res, err := NewRunner(ext).Run(context.Background(), spec(t, config(2)))
	require.NoError(t, err)
	require.Len(t, res.Turns, 3)

	failed := res.Turns[1]
	assert.Contains(t, failed.ExtractionError, "model offline")
	assert.Equal(t, res.Turns[0].Report.OverallAccuracy, failed.Report.OverallAccuracy, "profile unchanged on failure")
	assert.Less(t, res.FinalReport().OverallAccuracy, 1.0)
	assert.False(t, res.Converged)
}

func TestRun_InvalidPartialIsExtractionFailure(t *testing.T) {
	ext := extraction.Func(func(ctx context.Context, text string) (profile.Profile, error) {
		p := profile.Init()
		delete(p, profile.ValuesPreferences)
		return p, nil
	})
	res, err := NewRunner(ext).Run(context.Background(), spec(t, config(5)))
	require.NoError(t, err)
	require.Len(t, res.Turns, 1)
	assert.Contains(t, res.Turns[0].ExtractionError, "invalid partial profile")
	assert.Equal(t, 0, res.Final.KnownCount())
}

func TestRun_ExtractionTimeout(t *testing.T) {
	ext := extraction.Func(func(ctx context.Context, text string) (profile.Profile, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	cfg := config(5)
	cfg.ExtractTimeout = 10 * time.Millisecond

	res, err := NewRunner(ext).Run(context.Background(), spec(t, cfg))
	require.NoError(t, err)
	require.Len(t, res.Turns, 1)
	assert.Contains(t, res.Turns[0].ExtractionError, context.DeadlineExceeded.Error())
}

func TestRun_ParentCancelAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ext := extraction.Func(func(context.Context, string) (profile.Profile, error) {
		cancel()
		return nil, errors.New("interrupted")
	})
	_, err := NewRunner(ext).Run(ctx, spec(t, config(2)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_InvalidConfig(t *testing.T) {
	r := NewRunner(extraction.NewStatementExtractor())

	bad := []func(*Config){
		func(c *Config) { c.ConvergenceThreshold = 0 },
		func(c *Config) { c.MaxTurns = 0 },
		func(c *Config) { c.ConflictMargin = -0.1 },
		func(c *Config) { c.Disclosure.MaxNewFactsPerTurn = 0 },
		func(c *Config) { c.Disclosure.Noise.Misleading = 2 },
	}
	for i, mutate := range bad {
		cfg := config(2)
		mutate(&cfg)
		_, err := r.Run(context.Background(), spec(t, cfg))
		assert.ErrorIs(t, err, faults.ErrConfiguration, "case %d", i)
	}
}

func TestRun_InvalidGroundTruth(t *testing.T) {
	s := spec(t, config(2))
	delete(s.GroundTruth, profile.HealthSafety)
	_, err := NewRunner(extraction.NewStatementExtractor()).Run(context.Background(), s)
	assert.ErrorIs(t, err, faults.ErrSchema)
	assert.Equal(t, 1, strings.Count(err.Error(), "ground truth"), "err = %v", err)
}

func TestRun_ForgetEverythingRunsToMaxTurns(t *testing.T) {
	cfg := config(3)
	cfg.MaxTurns = 4
	cfg.Disclosure.Noise = noise.Model{Forgetfulness: 1}

	calls := 0
	ext := extraction.Func(func(context.Context, string) (profile.Profile, error) {
		calls++
		return profile.Init(), nil
	})
	res, err := NewRunner(ext).Run(context.Background(), spec(t, cfg))
	require.NoError(t, err)

	assert.Len(t, res.Turns, 4)
	assert.False(t, res.Exhausted)
	assert.Equal(t, 0, res.Final.KnownCount())
	assert.Equal(t, 0, res.Expressed.KnownCount())
	assert.Equal(t, 0, calls, "nothing said, nothing to extract")
	for _, turn := range res.Turns {
		assert.Equal(t, 3, turn.Plan.Forgotten)
		assert.Empty(t, turn.Text)
	}
}

func TestRun_Deterministic(t *testing.T) {
	cfg := config(2)
	cfg.Disclosure.Noise = noise.Model{Forgetfulness: 0.2, Vagueness: 0.4, Misleading: 0.2, TopicHopping: 0.3}
	r := NewRunner(extraction.NewStatementExtractor())

	a, err := r.Run(context.Background(), spec(t, cfg))
	require.NoError(t, err)
	b, err := r.Run(context.Background(), spec(t, cfg))
	require.NoError(t, err)

	require.Equal(t, len(a.Turns), len(b.Turns))
	for i := range a.Turns {
		assert.Equal(t, a.Turns[i].Text, b.Turns[i].Text)
		assert.Equal(t, a.Turns[i].Report.OverallAccuracy, b.Turns[i].Report.OverallAccuracy)
	}
	assert.True(t, a.Final.Equal(b.Final))
}

func TestRun_ConflictsStampedWithTurn(t *testing.T) {
	// Each turn the extractor reports the age it heard plus a guess about
	// the previous one.
	answers := []profile.Field{
		{Value: profile.Number(70), Confidence: 0.5},
		{Value: profile.Number(72), Confidence: 0.9},
	}
	n := 0
	ext := extraction.Func(func(context.Context, string) (profile.Profile, error) {
		f := answers[min(n, len(answers)-1)]
		n++
		return profile.Init().With(age, f), nil
	})

	cfg := config(1)
	cfg.Disclosure.PriorityOrder = []profile.Dimension{profile.IdentityLanguage}
	res, err := NewRunner(ext).Run(context.Background(), spec(t, cfg))
	require.NoError(t, err)

	conflicts := res.Conflicts()
	require.Len(t, conflicts, 1)
	assert.Equal(t, 2, conflicts[0].Turn)
	assert.Equal(t, fusion.DecisionAdopted, conflicts[0].Decision)
	assert.True(t, res.Final.Get(age).Value.Equal(profile.Number(72)))
	assert.Equal(t, 0.9, res.Final.Get(age).Confidence)
}

func TestRun_MisleadingFactIsExpressed(t *testing.T) {
	cfg := config(5)
	cfg.Disclosure.Noise = noise.Model{Misleading: 1}

	res, err := NewRunner(extraction.NewStatementExtractor()).Run(context.Background(), spec(t, cfg))
	require.NoError(t, err)
	assert.True(t, res.Exhausted)
	assert.Equal(t, 5, res.Expressed.KnownCount())
	assert.False(t, res.Expressed.Equal(groundTruth(t)))
	assert.Less(t, res.FinalReport().Recall, 1.0)
}

func TestRunBatch(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	r := NewRunner(extraction.NewStatementExtractor(), WithMetrics(m))

	var specs []Spec
	for seed := uint64(1); seed <= 6; seed++ {
		s := spec(t, config(2))
		s.Seed = seed
		specs = append(specs, s)
	}

	results, err := r.RunBatch(context.Background(), specs, 3)
	require.NoError(t, err)
	require.Len(t, results, 6)
	for i, res := range results {
		assert.Equal(t, specs[i].Seed, res.Seed)
	}

	assert.Equal(t, 18.0, testutil.ToFloat64(m.Turns))
	assert.Equal(t, 30.0, testutil.ToFloat64(m.Disclosed.WithLabelValues("plain")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ExtractionFailures))

	sum, err := Summarize(results)
	require.NoError(t, err)
	assert.Equal(t, 6, sum.Runs)
	assert.Equal(t, 1.0, sum.MeanAccuracy)
	assert.Equal(t, 6, sum.ConvergedRuns)
	assert.Equal(t, 3.0, sum.MedianTurns)
}

func TestRunBatch_FailureCancels(t *testing.T) {
	specs := []Spec{spec(t, config(2)), spec(t, config(2))}
	specs[1].Config.MaxTurns = 0

	_, err := NewRunner(extraction.NewStatementExtractor()).RunBatch(context.Background(), specs, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, faults.ErrConfiguration)
	assert.True(t, strings.Contains(err.Error(), "session 1"))
}

func TestRunBatch_Empty(t *testing.T) {
	results, err := NewRunner(nil).RunBatch(context.Background(), nil, 2)
	assert.NoError(t, err)
	assert.Nil(t, results)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.observePlan(disclosure.Plan{Forgotten: 1})
		m.observeExtraction(time.Second, errors.New("x"))
		m.observeConflicts([]fusion.Conflict{{Decision: fusion.DecisionKept}})
	})
}

func TestMetrics_TopicHopsCountedSeparately(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.observePlan(disclosure.Plan{Facts: []noise.Disclosed{
		{Vague: true, TopicHop: true},
		{TopicHop: true},
		{Misleading: true},
	}})

	total := 0.0
	for _, kind := range []string{"plain", "vague", "misleading"} {
		total += testutil.ToFloat64(m.Disclosed.WithLabelValues(kind))
	}
	assert.Equal(t, 3.0, total, "each disclosed fact is counted once")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Disclosed.WithLabelValues("vague")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TopicHops))
}
