// Package auth provides the session guards consulted before every fetch.
//
// A SessionGuard reports whether an authenticated session exists, refreshes
// it when the upstream rejects it, and notifies listeners when the session
// changes so that schedulers can recover from auth failures promptly.
package auth

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	// ErrNotSignedIn is returned when an operation needs a session and there is none
	ErrNotSignedIn = errors.New("not signed in")

	// ErrRefreshUnsupported is returned by guards that cannot refresh their credentials
	ErrRefreshUnsupported = errors.New("session refresh not supported")
)

// Session is an authenticated identity usable for upstream requests
type Session struct {
	Subject     string    `json:"subject,omitempty"`
	AccessToken string    `json:"-"`
	TokenType   string    `json:"tokenType,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt,omitempty"`
}

// Expired reports whether the session is past its expiry. Sessions without
// expiry never expire.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// ChangeKind identifies a session transition
type ChangeKind string

const (
	// ChangeSignedIn means a session became available
	ChangeSignedIn ChangeKind = "signed_in"

	// ChangeSignedOut means the session was removed
	ChangeSignedOut ChangeKind = "signed_out"

	// ChangeRefreshed means the session credentials were renewed
	ChangeRefreshed ChangeKind = "refreshed"
)

// Change describes a session transition. Session is nil for ChangeSignedOut.
type Change struct {
	Kind    ChangeKind
	Session *Session
}

// SessionGuard provides the authenticated session for fetches
type SessionGuard interface {
	// CurrentSession returns the active session, or false when signed out
	CurrentSession(ctx context.Context) (*Session, bool)

	// RefreshSession renews the session credentials
	RefreshSession(ctx context.Context) (*Session, error)

	// OnSessionChange registers fn for session transitions and returns a
	// function that unregisters it
	OnSessionChange(fn func(Change)) func()
}

// listeners is a registry of session change callbacks.
// The zero value is ready to use.
type listeners struct {
	mu   sync.Mutex
	next uint64
	fns  map[uint64]func(Change)
}

func (l *listeners) add(fn func(Change)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fns == nil {
		l.fns = make(map[uint64]func(Change))
	}
	id := l.next
	l.next++
	l.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.fns, id)
		})
	}
}

// notify calls every registered listener in registration order.
// Listeners run outside the lock and may unregister themselves.
func (l *listeners) notify(c Change) {
	l.mu.Lock()
	ids := make([]uint64, 0, len(l.fns))
	for id := range l.fns {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(Change), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, l.fns[id])
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

func copySession(s *Session) *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
