// Package directory caches owner e-mail lookups in front of the store.
package directory

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/lcrostarosa/legacyvault/internal/deadman"
	"github.com/lcrostarosa/legacyvault/internal/logging"
)

// DefaultTTL is how long a resolved address is reused.
const DefaultTTL = 10 * time.Minute

// Cached is a deadman.OwnerDirectory that remembers resolved addresses.
// Lookup failures are never cached, so a newly registered owner resolves on
// the next scan.
type Cached struct {
	next  deadman.OwnerDirectory
	cache *cache.Cache

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCached wraps next. A non-positive ttl uses DefaultTTL.
func NewCached(next deadman.OwnerDirectory, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cached{
		next:  next,
		cache: cache.New(ttl, ttl*2),
	}
}

func cacheKey(ownerRef string) string {
	return "owner:" + ownerRef
}

// ResolveEmail implements deadman.OwnerDirectory.
func (c *Cached) ResolveEmail(ctx context.Context, ownerRef string) (string, error) {
	if cached, found := c.cache.Get(cacheKey(ownerRef)); found {
		if email, ok := cached.(string); ok {
			c.hits.Add(1)
			return email, nil
		}
	}
	c.misses.Add(1)

	email, err := c.next.ResolveEmail(ctx, ownerRef)
	if err != nil {
		return "", err
	}
	c.cache.Set(cacheKey(ownerRef), email, cache.DefaultExpiration)
	logging.Debug("Owner address cached", logging.String("owner_ref", ownerRef))
	return email, nil
}

// Invalidate drops the cached address for ownerRef.
func (c *Cached) Invalidate(ownerRef string) {
	c.cache.Delete(cacheKey(ownerRef))
}

// Stats returns cache hits and misses since creation.
func (c *Cached) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
