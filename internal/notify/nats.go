// Package notify fans session states out over NATS and brings engagement
// events in from it.
//
// Every published state goes to <prefix>.sessions.<id>.state as a JSON
// status.SessionStatus. Engagement events (activity.Event as JSON) are read
// from <prefix>.engagement.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"k8s.io/utils/clock"

	"github.com/GlobalTax/Crmcapittal-sub010/internal/activity"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/config"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/status"
	pkgsync "github.com/GlobalTax/Crmcapittal-sub010/internal/sync"
)

const (
	// DefaultPort is the client port of an embedded server when none is configured
	DefaultPort = 4222

	// ClientName identifies the daemon's connection to the NATS server
	ClientName = "syncd"

	engagementBuffer = 64
	readyTimeout     = 5 * time.Second
	flushTimeout     = time.Second
)

// Notifier publishes session states and receives engagement events
type Notifier struct {
	conn   *nats.Conn
	prefix string
	clock  clock.PassiveClock

	// embedded is the in-process server, nil when connected to an external one
	embedded *server.Server
}

// Option is a function that configures a Notifier
type Option func(*Notifier)

// WithClock sets the clock used for status timestamps
func WithClock(c clock.PassiveClock) Option {
	return func(n *Notifier) {
		n.clock = c
	}
}

// New creates a Notifier on an established connection
func New(conn *nats.Conn, prefix string, opts ...Option) *Notifier {
	if prefix == "" {
		prefix = config.DefaultSubjectPrefix
	}
	n := &Notifier{
		conn:   conn,
		prefix: prefix,
		clock:  clock.RealClock{},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Connect connects to the server described by cfg, starting an embedded
// server first when cfg.Embedded is set.
func Connect(cfg *config.NATSConfig, opts ...Option) (*Notifier, error) {
	var embedded *server.Server
	serverURL := cfg.URL
	if cfg.Embedded {
		srv, err := RunEmbedded(cfg.URL)
		if err != nil {
			return nil, err
		}
		embedded = srv
		serverURL = srv.ClientURL()
	}

	conn, err := nats.Connect(serverURL,
		nats.Name(ClientName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("Disconnected from NATS", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("Reconnected to NATS", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		if embedded != nil {
			embedded.Shutdown()
		}
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", serverURL, err)
	}

	n := New(conn, cfg.GetSubjectPrefix(), opts...)
	n.embedded = embedded
	slog.Info("Connected to NATS", "url", conn.ConnectedUrl(), "embedded", embedded != nil, "prefix", n.prefix)
	return n, nil
}

// RunEmbedded starts an in-process NATS server listening on the host and port
// of rawURL, 127.0.0.1:4222 when rawURL is empty.
func RunEmbedded(rawURL string) (*server.Server, error) {
	host, port := "127.0.0.1", DefaultPort
	if rawURL != "" {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("invalid NATS url %q: %w", rawURL, err)
		}
		if h := u.Hostname(); h != "" {
			host = h
		}
		if p := u.Port(); p != "" {
			port, err = strconv.Atoi(p)
			if err != nil {
				return nil, fmt.Errorf("invalid NATS port %q: %w", p, err)
			}
		}
	}

	srv, err := server.NewServer(&server.Options{
		Host:   host,
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedded NATS server: %w", err)
	}
	go srv.Start()

	if !srv.ReadyForConnections(readyTimeout) {
		srv.Shutdown()
		return nil, fmt.Errorf("embedded NATS server not ready on %s", net.JoinHostPort(host, strconv.Itoa(port)))
	}
	return srv, nil
}

// StateSubject returns the subject states of session id are published to
func (n *Notifier) StateSubject(id string) string {
	return n.prefix + ".sessions." + id + ".state"
}

// EngagementSubject returns the subject engagement events are read from
func (n *Notifier) EngagementSubject() string {
	return n.prefix + ".engagement"
}

// Publish sends the polling state of view. Data is not published.
func (n *Notifier) Publish(view pkgsync.SessionView) error {
	data, err := json.Marshal(status.FromState(view.PollingState, n.clock.Now()))
	if err != nil {
		return fmt.Errorf("failed to marshal state of session '%s': %w", view.SessionID, err)
	}
	if err := n.conn.Publish(n.StateSubject(view.SessionID), data); err != nil {
		return fmt.Errorf("failed to publish state of session '%s': %w", view.SessionID, err)
	}
	return nil
}

// PublishView publishes view and logs failures. It fits Coordinator.Subscribe.
func (n *Notifier) PublishView(view pkgsync.SessionView) {
	if err := n.Publish(view); err != nil {
		slog.Warn("Failed to publish session state", "session", view.SessionID, "error", err)
	}
}

// Engagement subscribes to engagement events until ctx is done. Malformed
// messages are dropped, as are events arriving while the buffer is full.
// The returned channel is never closed.
func (n *Notifier) Engagement(ctx context.Context) (<-chan activity.Event, error) {
	ch := make(chan activity.Event, engagementBuffer)

	sub, err := n.conn.Subscribe(n.EngagementSubject(), func(msg *nats.Msg) {
		var e activity.Event
		if err := json.Unmarshal(msg.Data, &e); err != nil {
			slog.Debug("Dropping malformed engagement message", "subject", msg.Subject, "error", err)
			return
		}
		select {
		case ch <- e:
		case <-ctx.Done():
		default:
			slog.Warn("Engagement buffer full, dropping event", "type", e.Type)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", n.EngagementSubject(), err)
	}

	go func() {
		<-ctx.Done()
		if err := sub.Unsubscribe(); err != nil && n.conn.IsConnected() {
			slog.Debug("Failed to unsubscribe from engagement events", "error", err)
		}
	}()

	return ch, nil
}

// Close flushes pending messages, closes the connection and stops the
// embedded server if one was started.
func (n *Notifier) Close() {
	if err := n.conn.FlushTimeout(flushTimeout); err != nil {
		slog.Debug("Failed to flush NATS connection", "error", err)
	}
	n.conn.Close()

	if n.embedded != nil {
		n.embedded.Shutdown()
		n.embedded.WaitForShutdown()
	}
}
