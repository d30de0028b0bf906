package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/mock/gomock"

	"github.com/GlobalTax/Crmcapittal-sub010/internal/auth"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/config"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/sync/state/mocks"
)

// testConfig returns a config with one session polling upstreamURL and
// file state under a temporary directory
func testConfig(t *testing.T, upstreamURL string) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{Address: "127.0.0.1:0"},
		State:  &config.StateConfig{Type: config.StateTypeFile, Path: t.TempDir()},
		Sessions: []config.SessionConfig{
			{ID: "deals", URL: upstreamURL + "/deals", ItemsPath: "items"},
		},
	}
}

func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[{"id":1},{"id":2}]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestBaseConfig(t *testing.T) {
	t.Parallel()

	cfg, err := baseConfig(WithConfig(&config.Config{}))
	require.NoError(t, err)
	assert.Equal(t, config.DefaultServerAddress, cfg.address)
	assert.Equal(t, defaultRequestTimeout, cfg.requestTimeout)
	assert.Equal(t, defaultReadTimeout, cfg.readTimeout)
	assert.Equal(t, defaultWriteTimeout, cfg.writeTimeout)
	assert.Equal(t, defaultIdleTimeout, cfg.idleTimeout)
	assert.NotNil(t, cfg.clock)

	cfg, err = baseConfig(WithConfig(&config.Config{}), WithAddress("127.0.0.1:9191"))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9191", cfg.address)

	_, err = baseConfig()
	require.ErrorContains(t, err, "config cannot be nil")

	_, err = baseConfig(WithConfig(&config.Config{Server: config.ServerConfig{Address: "nowhere"}}))
	require.Error(t, err)
}

func TestWithConfig(t *testing.T) {
	t.Parallel()

	testConfig := &config.Config{Sessions: []config.SessionConfig{{ID: "deals"}}}
	cfg := &syncAppConfig{}
	require.NoError(t, WithConfig(testConfig)(cfg))
	assert.Equal(t, testConfig, cfg.config)
}

func TestWithAddress(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		address string
		want    string
		wantErr bool
	}{
		{name: "valid address", address: ":9999", want: ":9999"},
		{name: "valid address with host", address: "127.0.0.1:9999", want: "127.0.0.1:9999"},
		{name: "valid address with localhost", address: "localhost:9999", want: "localhost:9999"},
		{name: "valid ipv6 address", address: "[::1]:9999", want: "[::1]:9999"},
		{name: "ephemeral port", address: "127.0.0.1:0", want: "127.0.0.1:0"},
		{name: "invalid empty address", address: "", wantErr: true},
		{name: "invalid empty port", address: ":", wantErr: true},
		{name: "invalid missing port", address: "localhost", wantErr: true},
		{name: "invalid port out of range", address: "localhost:999999", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &syncAppConfig{}
			err := WithAddress(tt.address)(cfg)

			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.address)
		})
	}
}

func TestWithRequestTimeout(t *testing.T) {
	t.Parallel()

	cfg := &syncAppConfig{}
	require.NoError(t, WithRequestTimeout(3*time.Second)(cfg))
	assert.Equal(t, 3*time.Second, cfg.requestTimeout)

	require.Error(t, WithRequestTimeout(0)(cfg))
}

func TestWithMiddlewares(t *testing.T) {
	t.Parallel()

	mw := func(next http.Handler) http.Handler { return next }
	cfg := &syncAppConfig{}
	require.NoError(t, WithMiddlewares(mw, mw)(cfg))
	assert.Len(t, cfg.middlewares, 2)
}

func TestNewSyncApp(t *testing.T) {
	t.Parallel()

	upstream := newUpstream(t)
	app, err := NewSyncApp(context.Background(),
		WithConfig(testConfig(t, upstream.URL)),
		WithMeterProvider(noop.NewMeterProvider()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Stop(5 * time.Second) })

	server := app.GetHTTPServer()
	assert.Equal(t, "127.0.0.1:0", server.Addr)
	assert.Equal(t, defaultReadTimeout, server.ReadTimeout)
	assert.Equal(t, defaultWriteTimeout, server.WriteTimeout)
	assert.Equal(t, defaultIdleTimeout, server.IdleTimeout)

	c := app.Components()
	require.NotNil(t, c.Coordinator)
	require.NotNil(t, c.Signal)
	require.NotNil(t, c.StateService)
	require.NotNil(t, c.API)
	assert.Nil(t, c.Notifier)
	assert.Equal(t, auth.Anonymous(), c.Guard)

	// Sessions are registered on Start
	assert.Empty(t, c.Coordinator.List())
	require.Len(t, app.sessions, 1)
	assert.Equal(t, "deals", app.sessions[0].config.ID)
	assert.True(t, app.sessions[0].fetchOnStart)

	rr := httptest.NewRecorder()
	server.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	server.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readiness", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestNewSyncApp_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name: "invalid session interval",
			mutate: func(c *config.Config) {
				c.Sessions[0].BaseInterval = "soon"
			},
			wantErr: `session "deals"`,
		},
		{
			name: "invalid executor",
			mutate: func(c *config.Config) {
				c.Executor = &config.ExecutorConfig{BaseDelay: "later"}
			},
			wantErr: "failed to build sync components",
		},
		{
			name: "unsupported credentials",
			mutate: func(c *config.Config) {
				c.Credentials = &config.CredentialsConfig{Type: "kerberos"}
			},
			wantErr: "failed to build upstream credentials",
		},
		{
			name: "unsupported state",
			mutate: func(c *config.Config) {
				c.State = &config.StateConfig{Type: "etcd"}
			},
			wantErr: "unsupported state type",
		},
		{
			name: "unsupported auth mode",
			mutate: func(c *config.Config) {
				c.Auth = &config.AuthConfig{Mode: "mtls"}
			},
			wantErr: "failed to build auth middleware",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := testConfig(t, "http://127.0.0.1:1")
			tt.mutate(cfg)

			_, err := NewSyncApp(context.Background(), WithConfig(cfg))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewSyncApp_ClosesStateOnFailure(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	stateSvc := mocks.NewMockSessionStateService(ctrl)
	stateSvc.EXPECT().Initialize(gomock.Any(), []string{"deals"}).Return(nil, errors.New("disk full"))
	stateSvc.EXPECT().Close().Return(nil)

	_, err := NewSyncApp(context.Background(),
		WithConfig(testConfig(t, "http://127.0.0.1:1")),
		WithStateService(stateSvc),
	)
	require.ErrorContains(t, err, "disk full")
}

func TestNewSyncApp_InjectedGuard(t *testing.T) {
	t.Parallel()

	auths := make(chan string, 1)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auths <- r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	t.Cleanup(upstream.Close)

	guard := auth.NewStaticGuard("injected")
	app, err := NewSyncApp(context.Background(),
		WithConfig(testConfig(t, upstream.URL)),
		WithSessionGuard(guard),
		WithSourceClient(upstream.Client()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Stop(5 * time.Second) })

	assert.Same(t, guard, app.Components().Guard)

	payload, err := app.sessions[0].source.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, payload.Items)
	assert.Equal(t, "Bearer injected", <-auths)
}

func TestNewSyncApp_Authorization(t *testing.T) {
	t.Parallel()

	const (
		secret = "a-shared-secret-for-tests"
		issuer = "https://sso.example.com"
	)
	secretFile := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(secretFile, []byte(secret+"\n"), 0o600))

	cfg := testConfig(t, newUpstream(t).URL)
	cfg.Auth = &config.AuthConfig{
		Mode: config.AuthModeOAuth,
		OAuth: &config.OAuthConfig{
			ResourceURL: "https://syncd.example.com",
			Providers:   []config.OAuthProviderConfig{{Name: "test", IssuerURL: issuer, SecretFile: secretFile}},
		},
		Authz: &config.AuthzConfig{},
	}

	app, err := NewSyncApp(context.Background(), WithConfig(cfg))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Stop(5 * time.Second) })

	token := func(scope string) string {
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"iss":   issuer,
			"sub":   "alice",
			"exp":   time.Now().Add(time.Hour).Unix(),
			"scope": scope,
		}).SignedString([]byte(secret))
		require.NoError(t, err)
		return signed
	}

	do := func(method, path, bearer string) int {
		req := httptest.NewRequest(method, path, nil)
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		rec := httptest.NewRecorder()
		app.GetHTTPServer().Handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/health", ""))
	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/version", ""))
	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/.well-known/oauth-protected-resource", ""))
	assert.NotEqual(t, http.StatusUnauthorized, do(http.MethodGet, "/readiness", ""))
	assert.Equal(t, http.StatusUnauthorized, do(http.MethodGet, "/v1/sessions", ""))
	assert.Equal(t, http.StatusUnauthorized, do(http.MethodGet, "/health%2f..%2fv1/sessions", ""))
	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/v1/sessions", token("syncd:read")))
	assert.Equal(t, http.StatusForbidden, do(http.MethodDelete, "/v1/sessions/deals", token("syncd:read")))
	assert.Equal(t, http.StatusForbidden, do(http.MethodGet, "/v1/sessions", token("unrelated")))
	assert.NotEqual(t, http.StatusForbidden, do(http.MethodDelete, "/v1/sessions/deals", token("syncd:admin")))
}

func TestNewSyncApp_InvalidPolicies(t *testing.T) {
	t.Parallel()

	secretFile := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(secretFile, []byte("secret"), 0o600))
	policyFile := filepath.Join(t.TempDir(), "policies.cedar")
	require.NoError(t, os.WriteFile(policyFile, []byte("not cedar"), 0o600))

	cfg := testConfig(t, newUpstream(t).URL)
	cfg.Auth = &config.AuthConfig{
		Mode: config.AuthModeOAuth,
		OAuth: &config.OAuthConfig{
			ResourceURL: "https://syncd.example.com",
			Providers:   []config.OAuthProviderConfig{{Name: "test", IssuerURL: "https://sso.example.com", SecretFile: secretFile}},
		},
		Authz: &config.AuthzConfig{PolicyFile: policyFile},
	}

	_, err := NewSyncApp(context.Background(), WithConfig(cfg))
	require.ErrorContains(t, err, "failed to parse Cedar policies")
}
