package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collections that publish changes.
const (
	CollectionTasks    = "tasks"
	CollectionTests    = "tests"
	CollectionSyllabus = "syllabus"
)

// Change announces one committed write.
type Change struct {
	Seq        uint64    `json:"seq"`
	Owner      string    `json:"owner"`
	Collection string    `json:"collection"`
	Action     string    `json:"action"`
	EntityID   string    `json:"entity_id,omitempty"`
	At         time.Time `json:"at"`
}

// Filter selects changes for a subscriber. Empty fields match everything.
type Filter struct {
	Owner      string
	Collection string
}

func (f Filter) match(c Change) bool {
	if f.Owner != "" && f.Owner != c.Owner {
		return false
	}
	if f.Collection != "" && f.Collection != c.Collection {
		return false
	}
	return true
}

// Hub fans committed changes out to in-process subscribers.
// Slow subscribers lose messages rather than blocking publishers.
type Hub struct {
	mu      sync.Mutex
	seq     uint64
	subs    map[*Subscription]struct{}
	closed  bool
	dropped atomic.Uint64
	Now     func() time.Time
}

type Subscription struct {
	C      <-chan Change
	ch     chan Change
	filter Filter
	hub    *Hub
	once   sync.Once
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

// Publish stamps the change with the next sequence number and delivers it.
func (h *Hub) Publish(c Change) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	c.Seq = h.seq
	if c.At.IsZero() {
		if h.Now != nil {
			c.At = h.Now()
		} else {
			c.At = time.Now()
		}
	}
	if h.closed {
		return c.Seq
	}
	for sub := range h.subs {
		if !sub.filter.match(c) {
			continue
		}
		select {
		case sub.ch <- c:
		default:
			h.dropped.Add(1)
		}
	}
	return c.Seq
}

// Seq returns the sequence number of the last published change.
func (h *Hub) Seq() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seq
}

func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

func (h *Hub) Subscribe(f Filter, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Change, buffer)
	sub := &Subscription{C: ch, ch: ch, filter: f, hub: h}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		sub.once.Do(func() {})
		return sub
	}
	h.subs[sub] = struct{}{}
	return sub
}

// Close detaches the subscription and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s)
		s.hub.mu.Unlock()
		close(s.ch)
	})
}

func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := make([]*Subscription, 0, len(h.subs))
	for sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()
	for _, sub := range subs {
		sub.Close()
	}
}
