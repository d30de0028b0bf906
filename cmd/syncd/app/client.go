package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/GlobalTax/Crmcapittal-sub010/internal/activity"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/api"
	v1 "github.com/GlobalTax/Crmcapittal-sub010/internal/api/v1"
	pkgsync "github.com/GlobalTax/Crmcapittal-sub010/internal/sync"
)

const clientTimeout = 10 * time.Second

// apiClient talks to a running daemon
type apiClient struct {
	base   *url.URL
	token  string
	client *http.Client
}

func newAPIClient(server, token string) (*apiClient, error) {
	u, err := url.Parse(strings.TrimSuffix(server, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server URL %q: scheme must be http or https", server)
	}
	return &apiClient{base: u, token: token, client: &http.Client{Timeout: clientTimeout}}, nil
}

func (c *apiClient) endpoint(path string) string {
	return c.base.String() + path
}

func (c *apiClient) do(ctx context.Context, method, path string, body any, dst any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach daemon at %s: %w", c.base, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = resp.Status
		}
		return fmt.Errorf("%s %s: %s", method, path, e.Error)
	}
	if dst == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

func (c *apiClient) sessions(ctx context.Context) ([]pkgsync.SessionView, error) {
	var resp v1.SessionListResponse
	if err := c.do(ctx, http.MethodGet, "/v1/sessions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

func (c *apiClient) version(ctx context.Context) (api.VersionResponse, error) {
	var resp api.VersionResponse
	err := c.do(ctx, http.MethodGet, "/version", nil, &resp)
	return resp, err
}

func (c *apiClient) refresh(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(id)+"/refresh", nil, nil)
}

// dialStream opens the all-sessions stream
func (c *apiClient) dialStream(ctx context.Context) (*streamConn, error) {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += "/v1/stream"

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	return &streamConn{conn: conn}, nil
}

// streamConn serializes writes so that engagement events can be sent from
// any goroutine while a single reader consumes states
type streamConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *streamConn) send(e activity.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(clientTimeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(e)
}

func (s *streamConn) next() (pkgsync.SessionView, error) {
	var msg v1.StreamMessage
	if err := s.conn.ReadJSON(&msg); err != nil {
		return pkgsync.SessionView{}, err
	}
	return msg.Session, nil
}

func (s *streamConn) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return s.conn.Close()
}
