// Package profilecache implements the Agent-Profile Cache (C4): a
// TTL-bounded cache in front of the relational store's agent/organization
// lookup, collapsing concurrent misses for the same key into a single
// upstream fetch. Grounded on the teacher's internal/llm.TokenCache
// entry/expiration shape, extended with golang.org/x/sync/singleflight
// (per spec.md §5's explicit allowance for suspending calls on a cache
// miss) and an optional Redis backing store for cross-process sharing.
package profilecache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/apperr"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/observability"
)

// Fetcher loads a fresh profile for key from the system of record (the
// relational store holding Agent/Organization rows).
type Fetcher func(ctx context.Context, key string) (any, error)

// Backend is the optional cross-process store behind the in-process cache.
// A Redis-backed implementation lives in redis.go; tests and single-process
// deployments may omit it entirely.
type Backend interface {
	Get(ctx context.Context, key string) (any, bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

type entry struct {
	value      any
	expiresAt  time.Time
	lastSeenAt time.Time
}

// Cache is the Agent-Profile Cache. Concurrent misses for the same key
// collapse into one Fetcher call via singleflight; if the Fetcher fails
// and a stale entry exists, Cache serves the stale value once and logs a
// warning instead of failing the caller, per spec.md §4.3's degrade-rather-
// than-fail posture for profile lookups.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	fetch   Fetcher
	group   singleflight.Group
	backend Backend
}

// New builds a Cache with the given TTL and upstream Fetcher. backend may
// be nil for a purely in-process cache.
func New(ttl time.Duration, fetch Fetcher, backend Backend) *Cache {
	return &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
		fetch:   fetch,
		backend: backend,
	}
}

// Get returns the cached value for key, fetching it on a miss. On an
// upstream failure with no cached value available, Get returns
// apperr.ProfileUnavailable.
func (c *Cache) Get(ctx context.Context, key string) (any, error) {
	if v, ok := c.lookupFresh(key); ok {
		return v, nil
	}

	if c.backend != nil {
		if v, ok, err := c.backend.Get(ctx, key); err == nil && ok {
			c.store(key, v)
			return v, nil
		}
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		fetched, ferr := c.fetch(ctx, key)
		if ferr != nil {
			return nil, ferr
		}
		c.store(key, fetched)
		if c.backend != nil {
			_ = c.backend.Set(ctx, key, fetched, c.ttl)
		}
		return fetched, nil
	})
	if err == nil {
		return v, nil
	}

	if stale, ok := c.lookupStale(key); ok {
		observability.LoggerWithTrace(ctx).Warn().
			Err(err).
			Str("key", key).
			Msg("profile_cache_serving_stale_after_upstream_failure")
		return stale, nil
	}

	return nil, apperr.Wrap(apperr.ProfileUnavailable, "agent profile unavailable", err)
}

// Invalidate drops any cached value for key, forcing the next Get to
// refetch.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *Cache) lookupFresh(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// lookupStale returns any cached value regardless of expiry, used only as
// a last resort when the upstream fetch has failed outright.
func (c *Cache) lookupStale(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return e.value, true
}

func (c *Cache) store(key string, value any) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, expiresAt: now.Add(c.ttl), lastSeenAt: now}
}
