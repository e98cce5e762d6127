// Package cache holds the single-slot, owner-keyed list cache used by the
// synchronizers to avoid re-reading the store on every view.
package cache

import (
	"sync"
	"time"
)

const DefaultFreshness = 5 * time.Second

// Cache stores the most recent list fetched for one owner. A Set for a
// different owner evicts the previous slot.
type Cache[T any] struct {
	mu        sync.RWMutex
	owner     string
	items     []T
	fetchedAt time.Time
	populated bool

	Freshness time.Duration
	Now       func() time.Time
}

func New[T any](freshness time.Duration, now func() time.Time) *Cache[T] {
	if freshness <= 0 {
		freshness = DefaultFreshness
	}
	if now == nil {
		now = time.Now
	}
	return &Cache[T]{Freshness: freshness, Now: now}
}

// Get returns a copy of the cached items and whether they are fresh for owner.
func (c *Cache[T]) Get(owner string) ([]T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.populated || owner == "" || c.owner != owner {
		return nil, false
	}
	if c.now().Sub(c.fetchedAt) >= c.Freshness {
		return nil, false
	}
	return clone(c.items), true
}

func (c *Cache[T]) Set(owner string, items []T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.owner = owner
	c.items = clone(items)
	c.fetchedAt = c.now()
	c.populated = true
}

func (c *Cache[T]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.owner = ""
	c.items = nil
	c.fetchedAt = time.Time{}
	c.populated = false
}

// Owner reports which owner currently occupies the slot.
func (c *Cache[T]) Owner() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.owner
}

func (c *Cache[T]) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

func clone[T any](items []T) []T {
	out := make([]T, len(items))
	copy(out, items)
	return out
}
