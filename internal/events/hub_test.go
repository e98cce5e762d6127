package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, sub *Subscription) Change {
	t.Helper()
	select {
	case c, ok := <-sub.C:
		require.True(t, ok, "subscription closed")
		return c
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for change")
	}
	return Change{}
}

func TestHubFiltersByOwnerAndCollection(t *testing.T) {
	h := NewHub()
	alice := h.Subscribe(Filter{Owner: "alice", Collection: CollectionTasks}, 4)
	all := h.Subscribe(Filter{}, 4)
	defer alice.Close()
	defer all.Close()

	s1 := h.Publish(Change{Owner: "bob", Collection: CollectionTasks, Action: "create"})
	s2 := h.Publish(Change{Owner: "alice", Collection: CollectionTests, Action: "create"})
	s3 := h.Publish(Change{Owner: "alice", Collection: CollectionTasks, Action: "toggle", EntityID: "t1"})
	assert.Equal(t, []uint64{1, 2, 3}, []uint64{s1, s2, s3})
	assert.Equal(t, uint64(3), h.Seq())

	got := recv(t, alice)
	assert.Equal(t, s3, got.Seq)
	assert.Equal(t, "t1", got.EntityID)
	assert.False(t, got.At.IsZero())

	for _, want := range []uint64{s1, s2, s3} {
		assert.Equal(t, want, recv(t, all).Seq)
	}
}

func TestHubDropsWhenSubscriberIsFull(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe(Filter{}, 1)
	defer sub.Close()
	h.Publish(Change{Owner: "a"})
	h.Publish(Change{Owner: "a"})
	assert.Equal(t, uint64(1), h.Dropped())
}

func TestHubCloseClosesSubscriptions(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe(Filter{}, 1)
	h.Close()
	_, ok := <-sub.C
	assert.False(t, ok)
	sub.Close()

	late := h.Subscribe(Filter{}, 1)
	_, ok = <-late.C
	assert.False(t, ok)
	assert.Equal(t, uint64(1), h.Publish(Change{}))
}
