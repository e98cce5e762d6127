package server

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"studyplan/internal/app"
	"studyplan/internal/engine"
	"studyplan/internal/identity"
)

const (
	defaultSessionCacheSize = 256
	defaultSessionTTL       = 30 * time.Minute
)

// sessions keeps one planner per recently active owner. Evicted planners are
// closed; a request still holding one keeps working against the store.
type sessions struct {
	app *app.App
	mu  sync.Mutex
	lru *expirable.LRU[string, *engine.Planner]
}

func newSessions(a *app.App, size int, ttl time.Duration) *sessions {
	if size <= 0 {
		size = defaultSessionCacheSize
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	onEvict := func(_ string, p *engine.Planner) {
		p.Close()
	}
	return &sessions{app: a, lru: expirable.NewLRU[string, *engine.Planner](size, onEvict, ttl)}
}

func (s *sessions) get(owner string) *engine.Planner {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.lru.Get(owner); ok {
		return p
	}
	session := identity.NewSession()
	session.SignIn(owner)
	p := s.app.NewPlanner(session, false)
	s.lru.Add(owner, p)
	return p
}

func (s *sessions) len() int { return s.lru.Len() }

func (s *sessions) purge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lru.Purge()
}
