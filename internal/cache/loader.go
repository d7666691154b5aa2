// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cache provides a bounded loader cache that coalesces concurrent
// loads of the same key. Sessions share it to read each origin document once.
package cache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// Loader fills the cache on a miss.
type Loader[V any] func(ctx context.Context, key string) (V, error)

// Cache is an LRU keyed by string. On a miss exactly one goroutine runs the
// loader for a key; concurrent callers wait for and share its result.
// Failed loads are not cached.
type Cache[V any] struct {
	lru   *lru.Cache[string, V]
	group singleflight.Group
}

// New creates a cache holding at most maxEntries values.
func New[V any](maxEntries int) (*Cache[V], error) {
	l, err := lru.New[string, V](maxEntries)
	if err != nil {
		return nil, err
	}
	return &Cache[V]{lru: l}, nil
}

// Get returns the cached value for key, loading it on a miss. The boolean
// reports whether the value was already cached.
func (c *Cache[V]) Get(ctx context.Context, key string, load Loader[V]) (V, bool, error) {
	if v, ok := c.lru.Get(key); ok {
		return v, true, nil
	}

	val, err, _ := c.group.Do(key, func() (any, error) {
		loaded, err := load(ctx, key)
		if err != nil {
			return nil, err
		}
		c.lru.Add(key, loaded)
		return loaded, nil
	})
	if err != nil {
		var zero V
		return zero, false, err
	}
	return val.(V), false, nil
}

// Invalidate drops key from the cache.
func (c *Cache[V]) Invalidate(key string) {
	c.lru.Remove(key)
}

// Len returns the number of cached entries.
func (c *Cache[V]) Len() int {
	return c.lru.Len()
}
