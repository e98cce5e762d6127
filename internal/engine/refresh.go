package engine

import (
	"context"
	"fmt"
	"log"
	"sync"

	"studyplan/internal/domain"
	"studyplan/internal/events"
)

type Strategy string

const (
	StrategyPoll Strategy = "poll"
	StrategyLive Strategy = "live"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategyPoll:
		return StrategyPoll, nil
	case StrategyLive:
		return StrategyLive, nil
	}
	return "", fmt.Errorf("unknown sync strategy %q (want poll or live)", s)
}

type refreshFunc func(ctx context.Context, owner string) error

// Refresher decides how a synchronizer's visible list catches up with the store.
type Refresher interface {
	Start(owner string)
	Stop()
	// AfterWrite returns once the visible list reflects the write published as seq.
	AfterWrite(ctx context.Context, owner string, seq uint64) error
}

func newRefresher(strategy Strategy, hub *events.Hub, collection string, refresh refreshFunc, logger *log.Logger) Refresher {
	if strategy == StrategyLive && hub != nil {
		return &liveRefresher{hub: hub, collection: collection, refresh: refresh, logger: logger}
	}
	return pollRefresher{refresh: refresh}
}

// pollRefresher re-reads the collection after every write.
type pollRefresher struct {
	refresh refreshFunc
}

func (pollRefresher) Start(string) {}
func (pollRefresher) Stop()        {}

func (p pollRefresher) AfterWrite(ctx context.Context, owner string, _ uint64) error {
	return p.refresh(ctx, owner)
}

// liveRefresher re-reads on every pushed change for its owner and lets writers
// wait for the push carrying their own write.
type liveRefresher struct {
	hub        *events.Hub
	collection string
	refresh    refreshFunc
	logger     *log.Logger

	mu        sync.Mutex
	owner     string
	sub       *events.Subscription
	cancel    context.CancelFunc
	done      chan struct{}
	applied   uint64
	attempted uint64
	advanced  chan struct{}
}

func (l *liveRefresher) Start(owner string) {
	l.Stop()
	ctx, cancel := context.WithCancel(context.Background())
	sub := l.hub.Subscribe(events.Filter{Owner: owner, Collection: l.collection}, 64)
	done := make(chan struct{})

	l.mu.Lock()
	l.owner = owner
	l.sub = sub
	l.cancel = cancel
	l.done = done
	l.applied = 0
	l.attempted = 0
	l.advanced = make(chan struct{})
	l.mu.Unlock()

	go l.run(ctx, owner, sub, done)
}

func (l *liveRefresher) Stop() {
	l.mu.Lock()
	sub, cancel, done := l.sub, l.cancel, l.done
	l.sub, l.cancel, l.done = nil, nil, nil
	l.owner = ""
	if l.advanced != nil {
		close(l.advanced)
		l.advanced = nil
	}
	l.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if sub != nil {
		sub.Close()
	}
	<-done
}

func (l *liveRefresher) run(ctx context.Context, owner string, sub *events.Subscription, done chan struct{}) {
	defer close(done)
	defer l.detach(sub)
	for range sub.C {
		drain(sub.C)
		// Everything published up to here is committed, so one read covers it.
		upTo := l.hub.Seq()
		err := l.refresh(ctx, owner)
		if err != nil && ctx.Err() == nil {
			l.logger.Printf("live refresh %s for %s failed: %v", l.collection, owner, err)
		}
		l.advance(upTo, err == nil)
		if ctx.Err() != nil {
			return
		}
	}
}

// detach marks the refresher stopped once its feed ends, e.g. when the hub
// is closed, so writers fall back to reading the store themselves.
func (l *liveRefresher) detach(sub *events.Subscription) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sub != sub {
		return
	}
	l.sub = nil
	if l.advanced != nil {
		close(l.advanced)
		l.advanced = make(chan struct{})
	}
}

func drain(ch <-chan events.Change) {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func (l *liveRefresher) advance(seq uint64, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if seq > l.attempted {
		l.attempted = seq
	}
	if ok && seq > l.applied {
		l.applied = seq
	}
	if l.advanced != nil {
		close(l.advanced)
		l.advanced = make(chan struct{})
	}
}

func (l *liveRefresher) AfterWrite(ctx context.Context, owner string, seq uint64) error {
	for {
		l.mu.Lock()
		running := l.sub != nil && l.owner == owner
		applied, attempted, wake := l.applied, l.attempted, l.advanced
		l.mu.Unlock()

		switch {
		case !running || seq == 0:
			return l.refresh(ctx, owner)
		case applied >= seq:
			return nil
		case attempted >= seq:
			// the pushed refresh failed; read directly so the caller sees the error
			return l.refresh(ctx, owner)
		}
		select {
		case <-wake:
		case <-ctx.Done():
			return domain.Transient("await "+l.collection+" refresh", ctx.Err())
		}
	}
}
