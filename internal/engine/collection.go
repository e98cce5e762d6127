package engine

import (
	"context"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"studyplan/internal/cache"
	"studyplan/internal/domain"
)

// collection keeps one owner's list of T: the freshness cache, the list the
// signed-in viewer currently sees, and a generation counter that stops a fetch
// begun before a write from overwriting newer state.
type collection[T any] struct {
	op    string
	cache *cache.Cache[T]
	fetch func(ctx context.Context, owner string) ([]T, error)
	sort  func([]T)
	group singleflight.Group

	mu      sync.Mutex
	gen     uint64
	viewer  string
	visible []T
}

func newCollection[T any](op string, c *cache.Cache[T], fetch func(context.Context, string) ([]T, error), sortFn func([]T)) *collection[T] {
	return &collection[T]{op: op, cache: c, fetch: fetch, sort: sortFn}
}

// list serves from cache when fresh; otherwise one remote read is shared by
// every concurrent caller for the same owner and generation.
func (c *collection[T]) list(ctx context.Context, owner string) ([]T, error) {
	if owner == "" {
		return []T{}, nil
	}
	if items, fresh := c.cache.Get(owner); fresh {
		return items, nil
	}
	c.mu.Lock()
	key := owner + "#" + strconv.FormatUint(c.gen, 10)
	c.mu.Unlock()
	ch := c.group.DoChan(key, func() (any, error) {
		return c.load(context.WithoutCancel(ctx), owner)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return clone(res.Val.([]T)), nil
	case <-ctx.Done():
		return nil, domain.Transient(c.op, ctx.Err())
	}
}

// refresh always reads the store and never joins a fetch already in flight.
func (c *collection[T]) refresh(ctx context.Context, owner string) ([]T, error) {
	if owner == "" {
		return []T{}, nil
	}
	return c.load(ctx, owner)
}

func (c *collection[T]) load(ctx context.Context, owner string) ([]T, error) {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	items, err := c.fetch(ctx, owner)
	if err != nil {
		c.mu.Lock()
		if c.gen == gen {
			c.cache.Invalidate()
			if c.viewer == owner {
				c.visible = nil
			}
		}
		c.mu.Unlock()
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	c.sort(items)

	c.mu.Lock()
	if c.gen == gen {
		c.cache.Set(owner, items)
		if c.viewer == owner {
			c.visible = clone(items)
		}
	}
	c.mu.Unlock()
	return items, nil
}

// written marks the cached list stale after a committed write.
func (c *collection[T]) written() {
	c.mu.Lock()
	c.gen++
	c.cache.Invalidate()
	c.mu.Unlock()
}

func (c *collection[T]) show(owner string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.viewer != owner {
		c.visible = nil
	}
	c.viewer = owner
}

// reset drops all cached and visible state for the signed-out viewer.
func (c *collection[T]) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.cache.Invalidate()
	c.viewer = ""
	c.visible = nil
}

func (c *collection[T]) snapshot() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return clone(c.visible)
}

func clone[T any](items []T) []T {
	out := make([]T, len(items))
	copy(out, items)
	return out
}
