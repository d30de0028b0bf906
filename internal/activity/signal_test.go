package activity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestSignal_InitialState(t *testing.T) {
	t.Parallel()

	s := NewSignal(clocktesting.NewFakePassiveClock(epoch))

	assert.True(t, s.IsVisible())
	assert.False(t, s.IsInactive(time.Second))
	assert.Equal(t, epoch, s.Snapshot().LastActivityAt)
}

func TestSignal_IsInactive(t *testing.T) {
	t.Parallel()

	clk := clocktesting.NewFakePassiveClock(epoch)
	s := NewSignal(clk)

	clk.SetTime(epoch.Add(5 * time.Minute))
	assert.False(t, s.IsInactive(5*time.Minute), "exactly at the threshold is still active")

	clk.SetTime(epoch.Add(5*time.Minute + time.Millisecond))
	assert.True(t, s.IsInactive(5*time.Minute))

	s.RecordActivity()
	assert.False(t, s.IsInactive(5*time.Minute))
	assert.Equal(t, clk.Now(), s.Snapshot().LastActivityAt)
}

func TestSignal_SetVisible(t *testing.T) {
	t.Parallel()

	clk := clocktesting.NewFakePassiveClock(epoch)
	s := NewSignal(clk)

	s.SetVisible(false)
	assert.False(t, s.IsVisible())

	clk.SetTime(epoch.Add(time.Hour))
	assert.True(t, s.IsInactive(time.Minute))

	s.SetVisible(true)
	assert.True(t, s.IsVisible())
	assert.False(t, s.IsInactive(time.Minute), "becoming visible counts as activity")

	clk.SetTime(epoch.Add(2 * time.Hour))
	s.SetVisible(true)
	assert.True(t, s.IsInactive(time.Minute), "staying visible is not activity")
}

func TestSignal_Watch(t *testing.T) {
	t.Parallel()

	s := NewSignal(clocktesting.NewFakePassiveClock(epoch))
	ch, stop := s.Watch()

	s.RecordActivity()
	s.RecordActivity()
	requireNotified(t, ch)
	requireNotNotified(t, ch)

	s.SetVisible(true)
	requireNotNotified(t, ch)

	s.SetVisible(false)
	requireNotified(t, ch)

	stop()
	s.RecordActivity()
	requireNotNotified(t, ch)
}

func TestSignal_Apply(t *testing.T) {
	t.Parallel()

	clk := clocktesting.NewFakePassiveClock(epoch)
	s := NewSignal(clk)

	require.NoError(t, s.Apply(VisibilityEvent(false)))
	assert.False(t, s.IsVisible())

	clk.SetTime(epoch.Add(time.Minute))
	require.NoError(t, s.Apply(ActivityEvent()))
	assert.Equal(t, clk.Now(), s.Snapshot().LastActivityAt)

	require.ErrorIs(t, s.Apply(Event{Type: EventVisibility}), ErrInvalidEvent)
	require.ErrorIs(t, s.Apply(Event{Type: "scroll"}), ErrInvalidEvent)
}

func TestSignal_Pump(t *testing.T) {
	t.Parallel()

	s := NewSignal(clocktesting.NewFakePassiveClock(epoch))
	events := make(chan Event, 3)
	events <- Event{Type: "bogus"}
	events <- VisibilityEvent(false)
	close(events)

	done := make(chan struct{})
	go func() {
		s.Pump(context.Background(), events)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Pump did not return after the channel closed")
	}
	assert.False(t, s.IsVisible())
}

func TestSignal_PumpStopsOnCancel(t *testing.T) {
	t.Parallel()

	s := NewSignal(clocktesting.NewFakePassiveClock(epoch))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Pump(ctx, make(chan Event))
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Pump did not return after cancel")
	}
}

func TestSnapshot(t *testing.T) {
	t.Parallel()

	snap := Snapshot{Visible: false, LastActivityAt: epoch, Now: epoch.Add(2 * time.Minute)}
	assert.False(t, snap.IsVisible())
	assert.True(t, snap.IsInactive(time.Minute))
	assert.False(t, snap.IsInactive(2*time.Minute))
}

func requireNotified(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	default:
		t.Fatal("expected a notification")
	}
}

func requireNotNotified(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
		t.Fatal("unexpected notification")
	default:
	}
}
