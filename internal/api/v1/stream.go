package v1

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/GlobalTax/Crmcapittal-sub010/internal/activity"
	pkgsync "github.com/GlobalTax/Crmcapittal-sub010/internal/sync"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	maxInboundMessage = 4096
	streamBuffer      = 32
)

func (rt *Routes) streamAll(w http.ResponseWriter, r *http.Request) {
	rt.serveStream(w, r, "", rt.svc.List())
}

func (rt *Routes) streamSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	view, err := rt.svc.View(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rt.serveStream(w, r, id, []pkgsync.SessionView{view})
}

// serveStream sends the initial views and then every published state of the
// session (all sessions when id is empty). Text messages from the client are
// applied as engagement events. This goroutine is the only writer.
func (rt *Routes) serveStream(w http.ResponseWriter, r *http.Request, id string, initial []pkgsync.SessionView) {
	conn, err := rt.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("WebSocket upgrade failed", "error", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	updates := make(chan pkgsync.SessionView, streamBuffer)
	unsubscribe := rt.svc.Subscribe(func(v pkgsync.SessionView) {
		if id != "" && v.SessionID != id {
			return
		}
		offerLatest(updates, v)
	})
	defer unsubscribe()

	closed := make(chan struct{})
	go rt.readEngagement(conn, closed)

	slog.Debug("Stream client connected", "session", id, "remote", r.RemoteAddr)

	for _, v := range initial {
		if err := writeState(conn, v); err != nil {
			return
		}
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			slog.Debug("Stream client disconnected", "session", id, "remote", r.RemoteAddr)
			return
		case <-rt.shutdown:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		case v := <-updates:
			if err := writeState(conn, v); err != nil {
				slog.Debug("Stream write failed", "session", id, "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readEngagement reads client messages until the connection fails and then closes done
func (rt *Routes) readEngagement(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(maxInboundMessage)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("Stream read failed", "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var e activity.Event
		if err := json.Unmarshal(data, &e); err != nil {
			slog.Debug("Dropping malformed stream message", "error", err)
			continue
		}
		if err := rt.engagement.Apply(e); err != nil {
			slog.Debug("Dropping engagement event", "error", err)
		}
	}
}

func writeState(conn *websocket.Conn, v pkgsync.SessionView) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(StreamMessage{Type: StreamMessageTypeState, Session: v})
}

// offerLatest queues v, discarding the oldest queued view when the client lags
func offerLatest(ch chan pkgsync.SessionView, v pkgsync.SessionView) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
