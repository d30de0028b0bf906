package v1

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/GlobalTax/Crmcapittal-sub010/internal/activity"
	pkgsync "github.com/GlobalTax/Crmcapittal-sub010/internal/sync"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/sync/coordinator"
)

// fakeSessions serves fixed views and lets the test publish states
type fakeSessions struct {
	mu    sync.Mutex
	views map[string]pkgsync.SessionView
	subs  map[int]func(pkgsync.SessionView)
	next  int
}

func newFakeSessions(ids ...string) *fakeSessions {
	f := &fakeSessions{
		views: make(map[string]pkgsync.SessionView),
		subs:  make(map[int]func(pkgsync.SessionView)),
	}
	for _, id := range ids {
		f.views[id] = pkgsync.SessionView{PollingState: pkgsync.PollingState{SessionID: id, Phase: pkgsync.PhaseScheduled, Seq: 1}}
	}
	return f
}

func (f *fakeSessions) List() []pkgsync.SessionView {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]pkgsync.SessionView, 0, len(f.views))
	for _, v := range f.views {
		out = append(out, v)
	}
	return out
}

func (f *fakeSessions) View(id string) (pkgsync.SessionView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.views[id]
	if !ok {
		return v, fmt.Errorf("%w: %s", coordinator.ErrSessionNotFound, id)
	}
	return v, nil
}

func (f *fakeSessions) SessionConfig(id string) (pkgsync.SessionConfig, error) {
	return pkgsync.DefaultSessionConfig(id), nil
}

func (*fakeSessions) ForceRefresh(string) error                      { return nil }
func (*fakeSessions) Reconfigure(string, pkgsync.SessionPatch) error { return nil }
func (*fakeSessions) Dispose(context.Context, string) error          { return nil }

func (f *fakeSessions) Subscribe(fn func(pkgsync.SessionView)) func() {
	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

func (f *fakeSessions) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeSessions) publish(v pkgsync.SessionView) {
	f.mu.Lock()
	subs := make([]func(pkgsync.SessionView), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()
	for _, fn := range subs {
		fn(v)
	}
}

func dial(t *testing.T, server *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readState(t *testing.T, conn *websocket.Conn) StreamMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg StreamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func newStreamServer(t *testing.T, svc SessionService, eng Engagement) (*httptest.Server, *Routes) {
	t.Helper()
	routes := NewRoutes(svc, eng)
	server := httptest.NewServer(routes.Router())
	t.Cleanup(server.Close)
	t.Cleanup(routes.Close)
	return server, routes
}

func TestStreamSession(t *testing.T) {
	t.Parallel()

	svc := newFakeSessions("deals", "contacts")
	signal := activity.NewSignal(clocktesting.NewFakePassiveClock(time.Now()))
	server, _ := newStreamServer(t, svc, signal)

	conn := dial(t, server, "/sessions/deals/stream")

	first := readState(t, conn)
	assert.Equal(t, StreamMessageTypeState, first.Type)
	assert.Equal(t, "deals", first.Session.SessionID)
	assert.Equal(t, uint64(1), first.Session.Seq)

	require.Eventually(t, func() bool { return svc.subscribers() == 1 }, 5*time.Second, 5*time.Millisecond)

	svc.publish(pkgsync.SessionView{PollingState: pkgsync.PollingState{SessionID: "contacts", Seq: 2}})
	svc.publish(pkgsync.SessionView{PollingState: pkgsync.PollingState{SessionID: "deals", Phase: pkgsync.PhaseFetching, Seq: 2}})

	next := readState(t, conn)
	assert.Equal(t, "deals", next.Session.SessionID, "other sessions are filtered out")
	assert.Equal(t, pkgsync.PhaseFetching, next.Session.Phase)
}

func TestStreamAll(t *testing.T) {
	t.Parallel()

	svc := newFakeSessions("deals", "contacts")
	server, _ := newStreamServer(t, svc, activity.NewSignal(nil))

	conn := dial(t, server, "/stream")

	ids := map[string]bool{}
	ids[readState(t, conn).Session.SessionID] = true
	ids[readState(t, conn).Session.SessionID] = true
	assert.Equal(t, map[string]bool{"deals": true, "contacts": true}, ids)

	require.Eventually(t, func() bool { return svc.subscribers() == 1 }, 5*time.Second, 5*time.Millisecond)
	svc.publish(pkgsync.SessionView{PollingState: pkgsync.PollingState{SessionID: "contacts", Seq: 5}})
	assert.Equal(t, uint64(5), readState(t, conn).Session.Seq)
}

func TestStreamEngagementMessages(t *testing.T) {
	t.Parallel()

	svc := newFakeSessions("deals")
	signal := activity.NewSignal(nil)
	server, _ := newStreamServer(t, svc, signal)

	conn := dial(t, server, "/sessions/deals/stream")
	_ = readState(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("garbage")))
	require.NoError(t, conn.WriteJSON(activity.VisibilityEvent(false)))

	require.Eventually(t, func() bool { return !signal.IsVisible() }, 5*time.Second, 5*time.Millisecond)
}

func TestStreamUnknownSession(t *testing.T) {
	t.Parallel()

	server, _ := newStreamServer(t, newFakeSessions(), activity.NewSignal(nil))

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/sessions/missing/stream"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, 404, resp.StatusCode)
}

func TestStreamClosedOnShutdown(t *testing.T) {
	t.Parallel()

	svc := newFakeSessions("deals")
	server, routes := newStreamServer(t, svc, activity.NewSignal(nil))

	conn := dial(t, server, "/sessions/deals/stream")
	_ = readState(t, conn)

	routes.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway))

	require.Eventually(t, func() bool { return svc.subscribers() == 0 }, 5*time.Second, 5*time.Millisecond)
}

func TestOfferLatest(t *testing.T) {
	t.Parallel()

	ch := make(chan pkgsync.SessionView, 2)
	for seq := uint64(1); seq <= 5; seq++ {
		offerLatest(ch, pkgsync.SessionView{PollingState: pkgsync.PollingState{Seq: seq}})
	}
	assert.Equal(t, uint64(4), (<-ch).Seq)
	assert.Equal(t, uint64(5), (<-ch).Seq)
}
