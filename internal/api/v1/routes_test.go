package v1_test

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/GlobalTax/Crmcapittal-sub010/internal/activity"
	v1 "github.com/GlobalTax/Crmcapittal-sub010/internal/api/v1"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/api/v1/mocks"
	pkgsync "github.com/GlobalTax/Crmcapittal-sub010/internal/sync"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/sync/coordinator"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/sync/scheduler"
)

func newRouter(t *testing.T) (http.Handler, *mocks.MockSessionService, *mocks.MockEngagement) {
	t.Helper()
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockSessionService(ctrl)
	eng := mocks.NewMockEngagement(ctrl)
	return v1.NewRoutes(svc, eng, v1.WithRequestTimeout(5*time.Second)).Router(), svc, eng
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", coordinator.ErrSessionNotFound, id)
}

func TestListSessions(t *testing.T) {
	t.Parallel()

	h, svc, _ := newRouter(t)
	svc.EXPECT().List().Return([]pkgsync.SessionView{
		{PollingState: pkgsync.PollingState{SessionID: "contacts", Phase: pkgsync.PhaseScheduled, Seq: 3}},
		{PollingState: pkgsync.PollingState{SessionID: "deals", Phase: pkgsync.PhasePaused, Paused: true}},
	})

	rr := serve(h, http.MethodGet, "/sessions", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), `"sessionId":"contacts"`)
	assert.Contains(t, rr.Body.String(), `"phase":"Paused"`)
}

func TestListSessions_Empty(t *testing.T) {
	t.Parallel()

	h, svc, _ := newRouter(t)
	svc.EXPECT().List().Return(nil)

	rr := serve(h, http.MethodGet, "/sessions", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"sessions":[]}`, rr.Body.String())
}

func TestGetSession(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		target     string
		setup      func(*mocks.MockSessionService)
		wantStatus int
		wantBody   []string
	}{
		{
			name:   "found",
			target: "/sessions/deals",
			setup: func(m *mocks.MockSessionService) {
				m.EXPECT().View("deals").Return(pkgsync.SessionView{
					PollingState: pkgsync.PollingState{SessionID: "deals", Phase: pkgsync.PhaseScheduled},
					Data:         map[string]int{"items": 3},
				}, nil)
				m.EXPECT().SessionConfig("deals").Return(pkgsync.DefaultSessionConfig("deals"), nil)
			},
			wantStatus: http.StatusOK,
			wantBody:   []string{`"items":3`, `"baseInterval":"30s"`, `"pauseMode":"slow"`},
		},
		{
			name:   "not found",
			target: "/sessions/missing",
			setup: func(m *mocks.MockSessionService) {
				m.EXPECT().View("missing").Return(pkgsync.SessionView{}, notFound("missing"))
			},
			wantStatus: http.StatusNotFound,
			wantBody:   []string{"session not found"},
		},
		{
			name:       "invalid id",
			target:     "/sessions/deals.v2",
			setup:      func(*mocks.MockSessionService) {},
			wantStatus: http.StatusBadRequest,
			wantBody:   []string{"may only contain"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h, svc, _ := newRouter(t)
			tt.setup(svc)

			rr := serve(h, http.MethodGet, tt.target, "")
			assert.Equal(t, tt.wantStatus, rr.Code)
			for _, s := range tt.wantBody {
				assert.Contains(t, rr.Body.String(), s)
			}
		})
	}
}

func TestRefreshSession(t *testing.T) {
	t.Parallel()

	h, svc, _ := newRouter(t)
	svc.EXPECT().ForceRefresh("deals").Return(nil)
	svc.EXPECT().ForceRefresh("missing").Return(notFound("missing"))

	assert.Equal(t, http.StatusAccepted, serve(h, http.MethodPost, "/sessions/deals/refresh", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodPost, "/sessions/missing/refresh", "").Code)
}

func TestReconfigureSession(t *testing.T) {
	t.Parallel()

	base := 10 * time.Second
	mode := pkgsync.PauseModeStop
	hidden := false

	tests := []struct {
		name       string
		body       string
		setup      func(*mocks.MockSessionService)
		wantStatus int
		wantBody   string
	}{
		{
			name: "applies patch",
			body: `{"baseInterval":"10s","pauseMode":"stop","pauseWhenHidden":false}`,
			setup: func(m *mocks.MockSessionService) {
				m.EXPECT().Reconfigure("deals", pkgsync.SessionPatch{
					BaseInterval:    &base,
					PauseMode:       &mode,
					PauseWhenHidden: &hidden,
				}).Return(nil)
				cfg := pkgsync.DefaultSessionConfig("deals")
				cfg.BaseInterval = base
				cfg.PauseMode = mode
				cfg.PauseWhenHidden = hidden
				m.EXPECT().SessionConfig("deals").Return(cfg, nil)
			},
			wantStatus: http.StatusOK,
			wantBody:   `"baseInterval":"10s"`,
		},
		{
			name:       "bad duration",
			body:       `{"maxInterval":"soon"}`,
			setup:      func(*mocks.MockSessionService) {},
			wantStatus: http.StatusBadRequest,
			wantBody:   "maxInterval",
		},
		{
			name:       "unknown field",
			body:       `{"interval":"5s"}`,
			setup:      func(*mocks.MockSessionService) {},
			wantStatus: http.StatusBadRequest,
			wantBody:   "unknown field",
		},
		{
			name: "invalid result",
			body: `{"maxInterval":"1s"}`,
			setup: func(m *mocks.MockSessionService) {
				m.EXPECT().Reconfigure("deals", gomock.Any()).
					Return(fmt.Errorf("%w: maxInterval must be >= baseInterval", pkgsync.ErrInvalidConfig))
			},
			wantStatus: http.StatusBadRequest,
			wantBody:   "maxInterval must be",
		},
		{
			name: "disposed",
			body: `{"backoffMultiplier":2}`,
			setup: func(m *mocks.MockSessionService) {
				m.EXPECT().Reconfigure("deals", gomock.Any()).Return(scheduler.ErrDisposed)
			},
			wantStatus: http.StatusConflict,
		},
		{
			name: "unexpected error",
			body: `{"backoffMultiplier":2}`,
			setup: func(m *mocks.MockSessionService) {
				m.EXPECT().Reconfigure("deals", gomock.Any()).Return(errors.New("boom"))
			},
			wantStatus: http.StatusInternalServerError,
			wantBody:   "internal error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h, svc, _ := newRouter(t)
			tt.setup(svc)

			rr := serve(h, http.MethodPatch, "/sessions/deals", tt.body)
			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.wantBody)
		})
	}
}

func TestDisposeSession(t *testing.T) {
	t.Parallel()

	h, svc, _ := newRouter(t)
	svc.EXPECT().Dispose(gomock.Any(), "deals").Return(nil)
	svc.EXPECT().Dispose(gomock.Any(), "missing").Return(notFound("missing"))

	assert.Equal(t, http.StatusNoContent, serve(h, http.MethodDelete, "/sessions/deals", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodDelete, "/sessions/missing", "").Code)
}

func TestEngagement(t *testing.T) {
	t.Parallel()

	h, _, eng := newRouter(t)

	seen := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	eng.EXPECT().Snapshot().Return(activity.Snapshot{Visible: true, LastActivityAt: seen})
	eng.EXPECT().Apply(activity.VisibilityEvent(false)).Return(nil)
	eng.EXPECT().Apply(activity.Event{Type: "scroll"}).
		Return(fmt.Errorf("%w: unknown type \"scroll\"", activity.ErrInvalidEvent))

	rr := serve(h, http.MethodGet, "/engagement", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"visible":true,"lastActivityAt":"2026-03-01T09:00:00Z"}`, rr.Body.String())

	assert.Equal(t, http.StatusNoContent, serve(h, http.MethodPost, "/engagement", `{"type":"visibility","visible":false}`).Code)
	assert.Equal(t, http.StatusBadRequest, serve(h, http.MethodPost, "/engagement", `{"type":"scroll"}`).Code)
	assert.Equal(t, http.StatusBadRequest, serve(h, http.MethodPost, "/engagement", "").Code)
}

func TestReconfigureRequest_Patch(t *testing.T) {
	t.Parallel()

	empty, err := v1.ReconfigureRequest{}.Patch()
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())

	threshold := "2m"
	p, err := v1.ReconfigureRequest{InactivityThreshold: &threshold}.Patch()
	require.NoError(t, err)
	require.NotNil(t, p.InactivityThreshold)
	assert.Equal(t, 2*time.Minute, *p.InactivityThreshold)
}
