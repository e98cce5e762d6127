package engine

import (
	"fmt"
	"sync"

	"studyplan/internal/domain"
)

// inflight rejects a mutation while an identical one is still running.
type inflight struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func (g *inflight) acquire(owner, op, target string) (func(), error) {
	key := owner + "\x00" + op + "\x00" + target
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.keys == nil {
		g.keys = make(map[string]struct{})
	}
	if _, busy := g.keys[key]; busy {
		return nil, fmt.Errorf("%s %s: %w", op, target, domain.ErrInFlight)
	}
	g.keys[key] = struct{}{}
	return func() {
		g.mu.Lock()
		delete(g.keys, key)
		g.mu.Unlock()
	}, nil
}
