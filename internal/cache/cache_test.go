package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func TestCacheFreshWithinWindow(t *testing.T) {
	clk := &clock{t: time.Date(2025, 7, 15, 9, 0, 0, 0, time.UTC)}
	c := New[int](5*time.Second, clk.Now)

	_, fresh := c.Get("alice")
	assert.False(t, fresh, "empty cache is never fresh")

	c.Set("alice", []int{1, 2})
	items, fresh := c.Get("alice")
	require.True(t, fresh)
	assert.Equal(t, []int{1, 2}, items)

	clk.t = clk.t.Add(4 * time.Second)
	_, fresh = c.Get("alice")
	assert.True(t, fresh)

	clk.t = clk.t.Add(time.Second)
	_, fresh = c.Get("alice")
	assert.False(t, fresh, "entry at the window boundary is stale")
}

func TestCacheOwnerMismatch(t *testing.T) {
	clk := &clock{t: time.Now()}
	c := New[string](0, clk.Now)
	c.Set("alice", []string{"a"})

	_, fresh := c.Get("bob")
	assert.False(t, fresh)

	c.Set("bob", []string{"b"})
	_, fresh = c.Get("alice")
	assert.False(t, fresh, "second owner evicts the first")
	assert.Equal(t, "bob", c.Owner())
}

func TestCacheCopiesItems(t *testing.T) {
	c := New[int](time.Minute, nil)
	src := []int{1, 2, 3}
	c.Set("alice", src)
	src[0] = 99

	got, _ := c.Get("alice")
	assert.Equal(t, 1, got[0])
	got[1] = 42

	again, _ := c.Get("alice")
	assert.Equal(t, 2, again[1])
}

func TestCacheInvalidate(t *testing.T) {
	c := New[int](time.Minute, nil)
	c.Set("alice", []int{1})
	c.Invalidate()
	_, fresh := c.Get("alice")
	assert.False(t, fresh)
	assert.Empty(t, c.Owner())
}
