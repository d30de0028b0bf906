package auth

import (
	"context"
	"sync"
)

// StaticGuard serves a fixed bearer token. It cannot refresh, so an upstream
// rejection surfaces as an auth failure.
type StaticGuard struct {
	mu        sync.RWMutex
	session   *Session
	listeners listeners
}

// NewStaticGuard creates a guard for token. An empty token means signed out.
func NewStaticGuard(token string) *StaticGuard {
	g := &StaticGuard{}
	if token != "" {
		g.session = &Session{Subject: "static", AccessToken: token, TokenType: "Bearer"}
	}
	return g
}

// CurrentSession returns the static session
func (g *StaticGuard) CurrentSession(_ context.Context) (*Session, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return copySession(g.session), g.session != nil
}

// RefreshSession always fails; static tokens cannot be renewed
func (*StaticGuard) RefreshSession(_ context.Context) (*Session, error) {
	return nil, ErrRefreshUnsupported
}

// OnSessionChange registers a session change listener
func (g *StaticGuard) OnSessionChange(fn func(Change)) func() {
	return g.listeners.add(fn)
}

// SetToken replaces the token and notifies listeners. An empty token signs out.
func (g *StaticGuard) SetToken(token string) {
	g.mu.Lock()
	var change Change
	switch {
	case token == "" && g.session == nil:
		g.mu.Unlock()
		return
	case token == "":
		g.session = nil
		change = Change{Kind: ChangeSignedOut}
	case g.session == nil:
		g.session = &Session{Subject: "static", AccessToken: token, TokenType: "Bearer"}
		change = Change{Kind: ChangeSignedIn, Session: copySession(g.session)}
	default:
		g.session.AccessToken = token
		change = Change{Kind: ChangeRefreshed, Session: copySession(g.session)}
	}
	g.mu.Unlock()

	g.listeners.notify(change)
}

type anonymousGuard struct{}

// Anonymous returns a guard for upstreams that need no credentials.
// It always has a session and its refresh is a no-op.
func Anonymous() SessionGuard {
	return anonymousGuard{}
}

var anonymousSession = Session{Subject: "anonymous"}

func (anonymousGuard) CurrentSession(_ context.Context) (*Session, bool) {
	s := anonymousSession
	return &s, true
}

func (anonymousGuard) RefreshSession(_ context.Context) (*Session, error) {
	s := anonymousSession
	return &s, nil
}

func (anonymousGuard) OnSessionChange(_ func(Change)) func() {
	return func() {}
}
