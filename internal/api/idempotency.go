package api

import (
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"
)

// ─── Collect Idempotency ────────────────────────────────────────────────────
// A client retrying POST .../collect with the same Idempotency-Key gets the
// first successful answer back instead of a second, empty collect.

const defaultCollectCacheSize = 4096

type collectResponse struct {
	Status int
	Body   map[string]interface{}
}

type collectCache struct {
	cache  *lru.Cache
	flight singleflight.Group
}

func newCollectCache(size int) *collectCache {
	cache, _ := lru.New(size)
	return &collectCache{cache: cache}
}

func collectKey(userID, key string) string {
	return userID + "\x00" + key
}

// Do returns the cached response for key, or runs fn once across concurrent
// callers and caches its result when fn reports success.
func (c *collectCache) Do(userID, key string, fn func() (collectResponse, bool)) collectResponse {
	if key == "" {
		resp, _ := fn()
		return resp
	}
	k := collectKey(userID, key)
	if v, ok := c.cache.Get(k); ok {
		return v.(collectResponse)
	}
	v, _, _ := c.flight.Do(k, func() (interface{}, error) {
		if v, ok := c.cache.Get(k); ok {
			return v, nil
		}
		resp, cacheable := fn()
		if cacheable {
			c.cache.Add(k, resp)
		}
		return resp, nil
	})
	return v.(collectResponse)
}

// Len returns the number of cached responses.
func (c *collectCache) Len() int { return c.cache.Len() }
