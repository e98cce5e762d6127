// Package identity tracks who is signed in and issues the tokens that carry
// the owner key across the HTTP boundary.
package identity

import (
	"strings"
	"sync"
)

// State is delivered to subscribers on every sign-in or sign-out.
type State struct {
	Owner    string
	SignedIn bool
}

// Session holds the current owner key. A zero Session is signed out.
type Session struct {
	mu       sync.Mutex
	owner    string
	subs     map[int]func(State)
	nextID   int
	notifyMu sync.Mutex
}

func NewSession() *Session {
	return &Session{}
}

// Owner returns the signed-in owner key.
func (s *Session) Owner() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner, s.owner != ""
}

// SignIn switches the session to owner. Switching owners first signs the
// previous owner out so subscribers drop its data.
func (s *Session) SignIn(owner string) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		s.SignOut()
		return
	}
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	prev := s.owner
	if prev == owner {
		s.mu.Unlock()
		return
	}
	s.owner = owner
	subs := s.snapshot()
	s.mu.Unlock()

	if prev != "" {
		notify(subs, State{Owner: prev, SignedIn: false})
	}
	notify(subs, State{Owner: owner, SignedIn: true})
}

func (s *Session) SignOut() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	prev := s.owner
	if prev == "" {
		s.mu.Unlock()
		return
	}
	s.owner = ""
	subs := s.snapshot()
	s.mu.Unlock()

	notify(subs, State{Owner: prev, SignedIn: false})
}

// Subscribe registers fn for state changes and returns a function that removes it.
// fn is called synchronously and must not call SignIn or SignOut.
func (s *Session) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs == nil {
		s.subs = make(map[int]func(State))
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Session) snapshot() []func(State) {
	out := make([]func(State), 0, len(s.subs))
	for i := 0; i < s.nextID; i++ {
		if fn, ok := s.subs[i]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func notify(subs []func(State), st State) {
	for _, fn := range subs {
		fn(st)
	}
}
