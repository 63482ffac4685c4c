package extraction

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/kalambet/profilesim/internal/faults"
	"github.com/kalambet/profilesim/internal/profile"
)

// Cached memoises successful extractions by text. Failures are not cached.
type Cached struct {
	next  Extractor
	cache *cache.Cache
}

// NewCached wraps next with a TTL cache.
func NewCached(next Extractor, ttl time.Duration) *Cached {
	return &Cached{next: next, cache: cache.New(ttl, 2*ttl)}
}

func (c *Cached) Extract(ctx context.Context, text string) (profile.Profile, error) {
	key := cacheKey(text)
	if v, ok := c.cache.Get(key); ok {
		return v.(profile.Profile).Clone(), nil
	}
	p, err := c.next.Extract(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(key, p.Clone())
	return p, nil
}

// Len returns the number of cached entries.
func (c *Cached) Len() int { return c.cache.ItemCount() }

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// RateLimited spaces calls to next so a batch of parallel sessions stays
// under a provider's request quota.
type RateLimited struct {
	next    Extractor
	limiter *rate.Limiter
}

// NewRateLimited allows perSecond calls per second with the given burst.
func NewRateLimited(next Extractor, perSecond float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (r *RateLimited) Extract(ctx context.Context, text string) (profile.Profile, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, faults.External("extract", err)
	}
	return r.next.Extract(ctx, text)
}
