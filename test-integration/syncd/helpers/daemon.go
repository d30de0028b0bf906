package helpers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/onsi/gomega"

	"github.com/GlobalTax/Crmcapittal-sub010/internal/activity"
	v1 "github.com/GlobalTax/Crmcapittal-sub010/internal/api/v1"
	daemon "github.com/GlobalTax/Crmcapittal-sub010/internal/app"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/config"
	pkgsync "github.com/GlobalTax/Crmcapittal-sub010/internal/sync"
)

// DaemonTestHelper manages a sync daemon started in-process
type DaemonTestHelper struct {
	ctx        context.Context
	configPath string
	app        *daemon.SyncApp
	baseURL    string
	httpClient *http.Client
	startErr   chan error
}

// NewDaemonTestHelper creates a helper for the configuration at configPath
func NewDaemonTestHelper(ctx context.Context, configPath string) *DaemonTestHelper {
	return &DaemonTestHelper{
		ctx:        ctx,
		configPath: configPath,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Start builds the daemon, starts it on a free loopback port and waits
// until it answers health checks
func (d *DaemonTestHelper) Start() error {
	cfg, err := config.LoadConfig(config.WithConfigPath(d.configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	app, err := daemon.NewSyncApp(d.ctx, daemon.WithConfig(cfg), daemon.WithAddress("127.0.0.1:0"))
	if err != nil {
		return fmt.Errorf("failed to build app: %w", err)
	}
	d.app = app
	d.startErr = make(chan error, 1)

	go func() {
		err := app.Start()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Daemon start failed: %v\n", err)
		}
		d.startErr <- err
	}()

	gomega.Eventually(app.Addr, 10*time.Second, 20*time.Millisecond).ShouldNot(gomega.BeEmpty())
	d.baseURL = "http://" + app.Addr()
	d.WaitForReady(10 * time.Second)
	return nil
}

// Stop shuts the daemon down and returns the error of Start
func (d *DaemonTestHelper) Stop() error {
	if d.app == nil {
		return nil
	}
	if err := d.app.Stop(5 * time.Second); err != nil {
		return err
	}
	select {
	case err := <-d.startErr:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("daemon did not stop")
	}
}

// WaitForReady waits until /readiness reports every session registered
func (d *DaemonTestHelper) WaitForReady(timeout time.Duration) {
	gomega.Eventually(func() error {
		resp, err := d.httpClient.Get(d.baseURL + "/readiness")
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("readiness returned status %d", resp.StatusCode)
		}
		return nil
	}, timeout, 50*time.Millisecond).Should(gomega.Succeed(), "daemon should become ready")
}

// BaseURL returns the URL of the daemon API
func (d *DaemonTestHelper) BaseURL() string {
	return d.baseURL
}

// ListSessions calls GET /v1/sessions
func (d *DaemonTestHelper) ListSessions() ([]pkgsync.SessionView, error) {
	var resp v1.SessionListResponse
	if _, err := d.do(http.MethodGet, "/v1/sessions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// GetSession calls GET /v1/sessions/{id}
func (d *DaemonTestHelper) GetSession(id string) (v1.SessionResponse, error) {
	var resp v1.SessionResponse
	status, err := d.do(http.MethodGet, "/v1/sessions/"+id, nil, &resp)
	if err == nil && status != http.StatusOK {
		err = fmt.Errorf("GET session %s returned %d", id, status)
	}
	return resp, err
}

// Refresh calls POST /v1/sessions/{id}/refresh and returns the status code
func (d *DaemonTestHelper) Refresh(id string) (int, error) {
	return d.do(http.MethodPost, "/v1/sessions/"+id+"/refresh", nil, nil)
}

// Reconfigure calls PATCH /v1/sessions/{id}
func (d *DaemonTestHelper) Reconfigure(id string, req v1.ReconfigureRequest) (int, error) {
	return d.do(http.MethodPatch, "/v1/sessions/"+id, req, nil)
}

// Dispose calls DELETE /v1/sessions/{id}
func (d *DaemonTestHelper) Dispose(id string) (int, error) {
	return d.do(http.MethodDelete, "/v1/sessions/"+id, nil, nil)
}

// PostEngagement calls POST /v1/engagement
func (d *DaemonTestHelper) PostEngagement(e activity.Event) (int, error) {
	return d.do(http.MethodPost, "/v1/engagement", e, nil)
}

func (d *DaemonTestHelper) do(method, path string, body, dst any) (int, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(d.ctx, method, d.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if dst != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}
