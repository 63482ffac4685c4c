package extraction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kalambet/profilesim/internal/faults"
	"github.com/kalambet/profilesim/internal/profile"
)

type countingExtractor struct {
	calls int
	err   error
}

func (c *countingExtractor) Extract(ctx context.Context, text string) (profile.Profile, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return profile.Init().With(ageKey, profile.Field{Value: profile.Number(72), Confidence: 0.9}), nil
}

func TestCached_HitsAfterFirstCall(t *testing.T) {
	inner := &countingExtractor{}
	c := NewCached(inner, time.Minute)

	first, err := c.Extract(context.Background(), "My age is 72.")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	// Mutating a returned profile must not poison the cache.
	first[profile.IdentityLanguage]["age"] = profile.Field{}

	second, err := c.Extract(context.Background(), "My age is 72.")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("inner called %d times, want 1", inner.calls)
	}
	if !second.Get(ageKey).Known() {
		t.Error("cached profile was mutated through a returned copy")
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestCached_DoesNotCacheErrors(t *testing.T) {
	inner := &countingExtractor{err: errors.New("boom")}
	c := NewCached(inner, time.Minute)
	for i := 0; i < 2; i++ {
		if _, err := c.Extract(context.Background(), "x"); err == nil {
			t.Fatal("expected error")
		}
	}
	if inner.calls != 2 {
		t.Errorf("inner called %d times, want 2", inner.calls)
	}
}

func TestRateLimited_CancelledWait(t *testing.T) {
	inner := &countingExtractor{}
	r := NewRateLimited(inner, 0.001, 1)

	if _, err := r.Extract(context.Background(), "a"); err != nil {
		t.Fatalf("first call should use the burst: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := r.Extract(ctx, "b")
	if !errors.Is(err, faults.ErrExternalCall) {
		t.Fatalf("err = %v, want external call failure", err)
	}
	if inner.calls != 1 {
		t.Errorf("inner called %d times, want 1", inner.calls)
	}
}

func TestFunc(t *testing.T) {
	f := Func(func(ctx context.Context, text string) (profile.Profile, error) {
		return profile.Init(), nil
	})
	var _ Extractor = f
	if _, err := f.Extract(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
}
