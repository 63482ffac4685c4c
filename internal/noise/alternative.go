package noise

import (
	"math"
	"math/rand/v2"

	"github.com/kalambet/profilesim/internal/profile"
)

// Alternative returns a plausible value for k that differs from v, drawn
// from the field's domain. It returns false when the domain offers nothing
// different (for example a one-option enum).
func Alternative(k profile.Key, v profile.Value, rng *rand.Rand) (profile.Value, bool) {
	spec, ok := profile.Lookup(k)
	if !ok || v.IsNull() {
		return profile.Null, false
	}

	switch spec.Kind {
	case profile.KindNumber:
		return nudgeNumber(spec, v, rng)
	case profile.KindText:
		s, _ := v.Str()
		alts := otherOptions(spec.Options, func(o string) bool { return profile.Text(o).Equal(profile.Text(s)) })
		if len(alts) == 0 {
			return profile.Null, false
		}
		return profile.Text(alts[rng.IntN(len(alts))]), true
	case profile.KindEnum:
		s, _ := v.Str()
		alts := otherOptions(spec.Options, func(o string) bool { return o == s })
		if len(alts) == 0 {
			return profile.Null, false
		}
		return profile.Enum(alts[rng.IntN(len(alts))]), true
	case profile.KindSet:
		return swapMember(spec, v, rng)
	}
	return profile.Null, false
}

// nudgeNumber moves the value by 2-10 units in a random direction, staying
// inside the field's bounds.
func nudgeNumber(spec profile.FieldSpec, v profile.Value, rng *rand.Rand) (profile.Value, bool) {
	n, _ := v.Num()
	delta := float64(2 + rng.IntN(9))
	if rng.IntN(2) == 0 {
		delta = -delta
	}
	for _, d := range []float64{delta, -delta} {
		alt := math.Round(n + d)
		if alt >= spec.Min && alt <= spec.Max && alt != n {
			return profile.Number(alt), true
		}
	}
	return profile.Null, false
}

// swapMember replaces one member of the set with a domain option the set
// does not hold. When every option is already present it drops a member
// instead, as long as one remains.
func swapMember(spec profile.FieldSpec, v profile.Value, rng *rand.Rand) (profile.Value, bool) {
	items := v.Items()
	outside := otherOptions(spec.Options, v.Contains)
	if len(outside) > 0 {
		items[rng.IntN(len(items))] = outside[rng.IntN(len(outside))]
		return profile.Set(items...), true
	}
	if len(items) > 1 {
		i := rng.IntN(len(items))
		items = append(items[:i], items[i+1:]...)
		return profile.Set(items...), true
	}
	return profile.Null, false
}

func otherOptions(options []string, same func(string) bool) []string {
	var out []string
	for _, o := range options {
		if !same(o) {
			out = append(out, o)
		}
	}
	return out
}
