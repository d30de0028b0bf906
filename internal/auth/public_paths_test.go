package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublicPaths_Match(t *testing.T) {
	t.Parallel()

	probes := newPublicPaths("/health", "/readiness", "/version", "/.well-known")

	tests := []struct {
		path string
		want bool
	}{
		{"/health", true},
		{"/readiness", true},
		{"/.well-known/oauth-protected-resource", true},
		{"/version/", true},
		{"//health", true},
		{"/./version", true},
		{"/version/a/../b", true},

		{"/v1/sessions", false},
		{"/healthz", false},
		{"/Health", false},
		{"/health/../v1/sessions", false},
		{"//health/..//v1/sessions/deals/refresh", false},
		{"/health/..%2fv1/sessions", false},
		{"/.well-known/%2E%2E/v1/stream", false},
		{"/health/..%5cv1", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, probes.Match(tt.path))
		})
	}
}

func TestPublicPaths_Root(t *testing.T) {
	t.Parallel()

	all := newPublicPaths("/")
	assert.True(t, all.Match("/v1/sessions"))
	assert.True(t, all.Match("/"))
	assert.False(t, all.Match("/v1/%2e%2e/x"), "encoded dots are refused even when everything is public")

	none := newPublicPaths()
	assert.False(t, none.Match("/health"))
	assert.False(t, none.Match("/"))
}

func TestPublicPaths_UncleanConfig(t *testing.T) {
	t.Parallel()

	p := newPublicPaths("health/", "/metrics/../version")
	assert.True(t, p.Match("/health/live"))
	assert.True(t, p.Match("/version"))
	assert.False(t, p.Match("/metrics"))
}

func TestWrapWithPublicPaths(t *testing.T) {
	t.Parallel()

	deny := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
	}
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := WrapWithPublicPaths(deny, []string{"/health"})(ok)

	for path, want := range map[string]int{
		"/health":               http.StatusNoContent,
		"/health/live":          http.StatusNoContent,
		"/v1/sessions":          http.StatusUnauthorized,
		"/health/../v1/session": http.StatusUnauthorized,
		"/health%2f..%2fv1":     http.StatusUnauthorized,
	} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, rr.Code, path)
	}
}
