package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Store is the keyed TTL cache the access resolver depends on. A read past
// an entry's TTL is equivalent to absence.
type Store[V any] interface {
	Get(key string) (V, bool)
	Set(key string, value V, ttl time.Duration)
	Delete(key string)
}

// TTL is an in-memory Store with passive per-read expiry plus a background
// cleanup sweep. The sweep runs only between Start and Stop so request
// handling never depends on it.
type TTL[V any] struct {
	cache *ttlcache.Cache[string, V]
}

// NewTTL constructs a TTL store. defaultTTL applies to Set calls passing a
// non-positive ttl; a non-positive defaultTTL disables expiration. Reads do
// not extend an entry's lifetime: the TTL is a hard staleness bound.
func NewTTL[V any](defaultTTL time.Duration) *TTL[V] {
	opts := []ttlcache.Option[string, V]{
		ttlcache.WithDisableTouchOnHit[string, V](),
	}
	if defaultTTL > 0 {
		opts = append(opts, ttlcache.WithTTL[string, V](defaultTTL))
	}
	return &TTL[V]{cache: ttlcache.New(opts...)}
}

func (c *TTL[V]) Get(key string) (V, bool) {
	if item := c.cache.Get(key); item != nil {
		return item.Value(), true
	}
	var zero V
	return zero, false
}

func (c *TTL[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = ttlcache.DefaultTTL
	}
	c.cache.Set(key, value, ttl)
}

func (c *TTL[V]) Delete(key string) {
	c.cache.Delete(key)
}

// Start runs the background cleanup sweep and blocks until the context is
// cancelled.
func (c *TTL[V]) Start(ctx context.Context) {
	go c.cache.Start()
	<-ctx.Done()
	c.cache.Stop()
}

// Stop halts the cleanup sweep. Safe to call after Start has returned.
func (c *TTL[V]) Stop() {
	c.cache.Stop()
}
