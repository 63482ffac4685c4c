package fusion

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/profilesim/internal/faults"
	"github.com/kalambet/profilesim/internal/profile"
)

var (
	age        = profile.Key{Dimension: profile.IdentityLanguage, Field: "age"}
	mobility   = profile.Key{Dimension: profile.HealthSafety, Field: "mobility_level"}
	conditions = profile.Key{Dimension: profile.HealthSafety, Field: "chronic_conditions"}
	interests  = profile.Key{Dimension: profile.LifestyleSocial, Field: "core_interests"}
)

func field(v profile.Value, c float64) profile.Field {
	return profile.Field{Value: v, Confidence: c}
}

func TestMerge_NullPartialKeepsOld(t *testing.T) {
	old := profile.Init().With(age, field(profile.Number(70), 0.8))
	out, err := Merge(old, profile.Init())
	require.NoError(t, err)
	assert.True(t, out.Equal(old))
}

func TestMerge_NullOldAdoptsNew(t *testing.T) {
	partial := profile.Init().With(mobility, field(profile.Enum("limited"), 0.6))
	out, err := Merge(profile.Init(), partial)
	require.NoError(t, err)
	assert.Equal(t, field(profile.Enum("limited"), 0.6), out.Get(mobility))
}

func TestMerge_EqualValuesRaiseConfidence(t *testing.T) {
	old := profile.Init().With(age, field(profile.Number(72), 0.6))
	partial := profile.Init().With(age, field(profile.Number(72), 0.9))

	out, err := Merge(old, partial)
	require.NoError(t, err)
	assert.Equal(t, 0.9, out.Get(age).Confidence)

	// Lower confidence on an equal value never lowers the stored one.
	out, err = Merge(partial, old)
	require.NoError(t, err)
	assert.Equal(t, 0.9, out.Get(age).Confidence)
}

func TestMerge_EqualSetsUnion(t *testing.T) {
	old := profile.Init().With(conditions, field(profile.Set("diabetes", "hypertension"), 0.7))
	partial := profile.Init().With(conditions, field(profile.Set("hypertension", "diabetes"), 0.8))

	out, err := Merge(old, partial)
	require.NoError(t, err)
	got := out.Get(conditions)
	assert.True(t, got.Value.Equal(profile.Set("diabetes", "hypertension")))
	assert.Equal(t, 0.8, got.Confidence)
}

func TestMerge_AgeCorrectedOverTurns(t *testing.T) {
	region := profile.Key{Dimension: profile.IdentityLanguage, Field: "region"}

	first, err := Merge(profile.Init(), profile.Init().With(age, field(profile.Number(70), 0.4)))
	require.NoError(t, err)
	assert.Equal(t, field(profile.Number(70), 0.4), first.Get(age), "null old adopts the first reading")
	assert.False(t, first.Get(region).Known())

	second, err := Merge(first, profile.Init().With(age, field(profile.Number(72), 0.9)))
	require.NoError(t, err)
	assert.Equal(t, field(profile.Number(72), 0.9), second.Get(age))
	assert.False(t, second.Get(region).Known())
}

// Age 70 at 0.8 is overridden by 72 at 0.9 but survives 72 at 0.8.
func TestMerge_ConflictOverride(t *testing.T) {
	old := profile.Init().With(age, field(profile.Number(70), 0.8))

	out, err := Merge(old, profile.Init().With(age, field(profile.Number(72), 0.9)))
	require.NoError(t, err)
	assert.Equal(t, field(profile.Number(72), 0.9), out.Get(age))

	out, err = Merge(old, profile.Init().With(age, field(profile.Number(72), 0.8)))
	require.NoError(t, err)
	assert.Equal(t, field(profile.Number(70), 0.8), out.Get(age), "ties keep the old value")
}

func TestMerge_Margin(t *testing.T) {
	old := profile.Init().With(age, field(profile.Number(70), 0.5))
	partial := profile.Init().With(age, field(profile.Number(72), 0.625))

	out, err := Merger{Margin: 0.25}.Merge(old, partial)
	require.NoError(t, err)
	assert.Equal(t, 70.0, mustNum(t, out.Get(age).Value), "gain below margin keeps old")

	partial = profile.Init().With(age, field(profile.Number(72), 0.75))
	out, err = Merger{Margin: 0.25}.Merge(old, partial)
	require.NoError(t, err)
	assert.Equal(t, 72.0, mustNum(t, out.Get(age).Value), "gain at margin adopts new")
}

func TestMerge_MarginDecimalConfidences(t *testing.T) {
	old := profile.Init().With(age, field(profile.Number(70), 0.8))
	partial := profile.Init().With(age, field(profile.Number(72), 0.9))

	out, err := Merger{Margin: 0.1}.Merge(old, partial)
	require.NoError(t, err)
	assert.Equal(t, 72.0, mustNum(t, out.Get(age).Value), "0.9 over 0.8 clears a 0.1 margin")

	out, err = Merger{Margin: 0.11}.Merge(old, partial)
	require.NoError(t, err)
	assert.Equal(t, 70.0, mustNum(t, out.Get(age).Value))

	same := profile.Init().With(age, field(profile.Number(72), 0.8))
	out, err = Merge(old, same)
	require.NoError(t, err)
	assert.Equal(t, 70.0, mustNum(t, out.Get(age).Value), "a tie keeps old")
}

func TestMerge_AuditRecordsConflicts(t *testing.T) {
	log := &AuditLog{}
	m := Merger{Audit: log}

	old := profile.Init().
		With(age, field(profile.Number(70), 0.8)).
		With(mobility, field(profile.Enum("independent"), 0.9))
	partial := profile.Init().
		With(age, field(profile.Number(72), 0.9)).
		With(mobility, field(profile.Enum("limited"), 0.5)).
		With(interests, field(profile.Set("chess"), 0.7))

	withAudit, err := m.Merge(old, partial)
	require.NoError(t, err)
	withoutAudit, err := Merge(old, partial)
	require.NoError(t, err)
	assert.True(t, withAudit.Equal(withoutAudit), "audit must not change the result")

	entries := log.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "age", entries[0].Field)
	assert.Equal(t, DecisionAdopted, entries[0].Decision)
	assert.Equal(t, "mobility_level", entries[1].Field)
	assert.Equal(t, DecisionKept, entries[1].Decision)
}

func TestMerge_InvalidArguments(t *testing.T) {
	bad := profile.Init()
	delete(bad, profile.HealthSafety)

	_, err := Merge(bad, profile.Init())
	assert.True(t, errors.Is(err, faults.ErrSchema))

	_, err = Merge(profile.Init(), bad)
	assert.True(t, errors.Is(err, faults.ErrSchema))
}

func TestMerge_DoesNotMutateArguments(t *testing.T) {
	old := profile.Init().With(age, field(profile.Number(70), 0.5))
	partial := profile.Init().With(age, field(profile.Number(72), 0.9))
	oldCopy, partialCopy := old.Clone(), partial.Clone()

	_, err := Merge(old, partial)
	require.NoError(t, err)
	assert.True(t, old.Equal(oldCopy))
	assert.True(t, partial.Equal(partialCopy))
}

func TestMerge_Properties(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 200; i++ {
		p := randomProfile(rng)
		q := randomProfile(rng)

		self, err := Merge(p, p)
		require.NoError(t, err)
		assert.True(t, self.Equal(p), "merge(p, p) must equal p")

		out, err := Merge(p, q)
		require.NoError(t, err)
		require.NoError(t, profile.Validate(out))
		for _, k := range profile.Keys() {
			before, after := p.Get(k), out.Get(k)
			if before.Known() && after.Value.Equal(before.Value) {
				assert.GreaterOrEqual(t, after.Confidence, before.Confidence, "confidence regressed at %s", k)
			}
			if before.Known() {
				assert.True(t, after.Known(), "known field %s became null", k)
			}
		}

		again, err := Merge(p, q)
		require.NoError(t, err)
		assert.True(t, again.Equal(out), "merge must be deterministic")
	}
}

func randomProfile(rng *rand.Rand) profile.Profile {
	p := profile.Init()
	for _, k := range profile.Keys() {
		if rng.Float64() < 0.4 {
			continue
		}
		spec, _ := profile.Lookup(k)
		var v profile.Value
		switch spec.Kind {
		case profile.KindNumber:
			v = profile.Number(float64(60 + rng.IntN(3)))
		case profile.KindText:
			v = profile.Text(spec.Options[rng.IntN(2)])
		case profile.KindEnum:
			v = profile.Enum(spec.Options[rng.IntN(2)])
		case profile.KindSet:
			v = profile.Set(spec.Options[rng.IntN(2)], spec.Options[2])
		}
		p[k.Dimension][k.Field] = field(v, float64(rng.IntN(5))/4)
	}
	return p
}

func mustNum(t *testing.T, v profile.Value) float64 {
	t.Helper()
	n, ok := v.Num()
	require.True(t, ok, "value %v is not a number", v)
	return n
}
