// Package activity tracks whether the user is engaged with the synchronized
// views: whether they are visible and when the user last interacted with them.
// A Signal is shared by every session of a process.
package activity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// EventType is the kind of engagement event
type EventType string

const (
	// EventActivity records a user interaction
	EventActivity EventType = "activity"

	// EventVisibility changes the visibility of the views
	EventVisibility EventType = "visibility"
)

// ErrInvalidEvent is returned for events that cannot be applied
var ErrInvalidEvent = errors.New("invalid engagement event")

// Event is an engagement message from a UI, API client or message bus
type Event struct {
	Type    EventType `json:"type"`
	Visible *bool     `json:"visible,omitempty"`
}

// Validate checks that the event is well formed
func (e Event) Validate() error {
	switch e.Type {
	case EventActivity:
		return nil
	case EventVisibility:
		if e.Visible == nil {
			return fmt.Errorf("%w: visibility event without visible flag", ErrInvalidEvent)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, e.Type)
	}
}

// ActivityEvent returns an activity event
func ActivityEvent() Event {
	return Event{Type: EventActivity}
}

// VisibilityEvent returns a visibility event
func VisibilityEvent(visible bool) Event {
	return Event{Type: EventVisibility, Visible: &visible}
}

// Snapshot is a point-in-time copy of the activity state
type Snapshot struct {
	Visible        bool      `json:"visible"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	Now            time.Time `json:"-"`
}

// IsVisible reports whether the views were visible
func (s Snapshot) IsVisible() bool {
	return s.Visible
}

// IsInactive reports whether no activity was seen for longer than threshold
func (s Snapshot) IsInactive(threshold time.Duration) bool {
	return s.Now.Sub(s.LastActivityAt) > threshold
}

// Signal holds the activity state. It starts visible with activity at creation time.
type Signal struct {
	clock clock.PassiveClock

	mu             sync.RWMutex
	visible        bool
	lastActivityAt time.Time

	watchMu  sync.Mutex
	watchers map[uint64]chan struct{}
	nextID   uint64
}

// NewSignal creates a Signal reading time from clk
func NewSignal(clk clock.PassiveClock) *Signal {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Signal{
		clock:          clk,
		visible:        true,
		lastActivityAt: clk.Now(),
		watchers:       make(map[uint64]chan struct{}),
	}
}

// RecordActivity marks the current time as the last user activity
func (s *Signal) RecordActivity() {
	s.mu.Lock()
	s.lastActivityAt = s.clock.Now()
	s.mu.Unlock()

	s.broadcast()
}

// SetVisible changes the visibility. Becoming visible counts as activity.
func (s *Signal) SetVisible(visible bool) {
	s.mu.Lock()
	changed := s.visible != visible
	s.visible = visible
	if changed && visible {
		s.lastActivityAt = s.clock.Now()
	}
	s.mu.Unlock()

	if changed {
		s.broadcast()
	}
}

// IsVisible reports whether the views are visible
func (s *Signal) IsVisible() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.visible
}

// IsInactive reports whether no activity was recorded for longer than threshold
func (s *Signal) IsInactive(threshold time.Duration) bool {
	return s.Snapshot().IsInactive(threshold)
}

// Snapshot returns a copy of the current state
func (s *Signal) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Visible:        s.visible,
		LastActivityAt: s.lastActivityAt,
		Now:            s.clock.Now(),
	}
}

// Watch returns a channel that receives a value after the state changes.
// Notifications are coalesced; a receiver must read the state itself.
// The returned function stops the notifications.
func (s *Signal) Watch() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	s.watchMu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = ch
	s.watchMu.Unlock()

	return ch, func() {
		s.watchMu.Lock()
		delete(s.watchers, id)
		s.watchMu.Unlock()
	}
}

func (s *Signal) broadcast() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for _, ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Apply updates the state from an engagement event
func (s *Signal) Apply(e Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	switch e.Type {
	case EventActivity:
		s.RecordActivity()
	case EventVisibility:
		s.SetVisible(*e.Visible)
	}
	return nil
}

// Pump applies events from ch until ctx is done or ch is closed.
// Invalid events are logged and skipped.
func (s *Signal) Pump(ctx context.Context, ch <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if err := s.Apply(e); err != nil {
				slog.Debug("Dropping engagement event", "error", err)
			}
		}
	}
}
