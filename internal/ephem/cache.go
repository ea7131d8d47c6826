package ephem

import (
	"context"
	"sync"
	"time"

	"github.com/litescript/ls-solarmach/internal/astro"
)

// DefaultCacheTTL is how long heliocentric positions stay cached.
const DefaultCacheTTL = 10 * time.Minute

// cacheKey identifies one lookup: a body at an instant.
type cacheKey struct {
	naifID TargetID
	unix   int64 // nanoseconds since the Unix epoch
}

// cachedVector is one cached position.
type cachedVector struct {
	pos       astro.Vec3
	fetchedAt time.Time
}

// CachedProvider memoizes successful lookups of another provider.
// Failures are never cached.
type CachedProvider struct {
	inner Provider
	ttl   time.Duration
	now   func() time.Time

	mu   sync.RWMutex
	data map[cacheKey]cachedVector

	hits, misses uint64
}

// NewCachedProvider wraps p with a cache of the given TTL.
func NewCachedProvider(p Provider, ttl time.Duration) *CachedProvider {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedProvider{
		inner: p,
		ttl:   ttl,
		now:   time.Now,
		data:  make(map[cacheKey]cachedVector),
	}
}

// Name implements Provider.
func (c *CachedProvider) Name() string {
	return c.inner.Name()
}

// HeliocentricPosition implements Provider.
func (c *CachedProvider) HeliocentricPosition(ctx context.Context, target TargetInfo, t time.Time) (astro.Vec3, error) {
	key := cacheKey{naifID: target.NAIFID, unix: t.UnixNano()}

	c.mu.RLock()
	cached, ok := c.data[key]
	c.mu.RUnlock()

	if ok && c.now().Sub(cached.fetchedAt) < c.ttl {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return cached.pos, nil
	}

	pos, err := c.inner.HeliocentricPosition(ctx, target, t)
	if err != nil {
		return astro.Vec3{}, err
	}

	c.mu.Lock()
	c.misses++
	c.data[key] = cachedVector{pos: pos, fetchedAt: c.now()}
	c.mu.Unlock()

	return pos, nil
}

// Stats returns the hit and miss counters.
func (c *CachedProvider) Stats() (hits, misses uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

// Purge drops expired entries and returns how many were removed.
func (c *CachedProvider) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for k, v := range c.data {
		if now.Sub(v.fetchedAt) >= c.ttl {
			delete(c.data, k)
			n++
		}
	}
	return n
}

// Len returns the number of cached entries.
func (c *CachedProvider) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
