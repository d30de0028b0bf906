package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/GlobalTax/Crmcapittal-sub010/internal/auth/mocks"
)

// newTestAuthenticator trusts one mocked validator per name, in order
func newTestAuthenticator(t *testing.T, resourceURL string, names ...string) (*authenticator, map[string]*mocks.MocktokenValidatorInterface) {
	t.Helper()
	ctrl := gomock.NewController(t)

	validators := make(map[string]*mocks.MocktokenValidatorInterface, len(names))
	providers := make([]providerConfig, 0, len(names))
	for _, name := range names {
		validators[name] = mocks.NewMocktokenValidatorInterface(ctrl)
		providers = append(providers, providerConfig{Name: name, IssuerURL: "https://" + name + ".example.com"})
	}

	a, err := newAuthenticator(context.Background(), providers, resourceURL, "", func(_ context.Context, pc providerConfig) (tokenValidatorInterface, error) {
		return validators[pc.Name], nil
	})
	require.NoError(t, err)
	return a, validators
}

func TestNewAuthenticator(t *testing.T) {
	t.Parallel()

	_, err := newAuthenticator(context.Background(), nil, "", "", DefaultValidatorFactory)
	require.ErrorContains(t, err, "at least one provider must be configured")

	_, err = newAuthenticator(context.Background(), []providerConfig{{Name: "sso"}}, "", "",
		func(context.Context, providerConfig) (tokenValidatorInterface, error) {
			return nil, errors.New("unreachable issuer")
		})
	require.ErrorContains(t, err, `provider "sso": unreachable issuer`)
}

func TestAuthenticator_Authenticate(t *testing.T) {
	t.Parallel()

	t.Run("first accepting issuer wins", func(t *testing.T) {
		t.Parallel()
		a, v := newTestAuthenticator(t, "", "sso", "dashboard")
		v["sso"].EXPECT().ValidateToken(gomock.Any(), "tok").Return(nil, errors.New("bad signature"))
		v["dashboard"].EXPECT().ValidateToken(gomock.Any(), "tok").Return(jwt.MapClaims{"sub": "alice"}, nil)

		p, err := a.Authenticate(context.Background(), "tok")
		require.NoError(t, err)
		assert.Equal(t, "dashboard", p.Provider)
		assert.Equal(t, "alice", p.Subject)
	})

	t.Run("later issuers are not consulted", func(t *testing.T) {
		t.Parallel()
		a, v := newTestAuthenticator(t, "", "sso", "dashboard")
		v["sso"].EXPECT().ValidateToken(gomock.Any(), "tok").Return(jwt.MapClaims{}, nil)

		p, err := a.Authenticate(context.Background(), "tok")
		require.NoError(t, err)
		assert.Equal(t, "sso", p.Provider)
		assert.Empty(t, p.Subject)
	})

	t.Run("every rejection is reported", func(t *testing.T) {
		t.Parallel()
		a, v := newTestAuthenticator(t, "", "sso", "dashboard")
		expired := errors.New("token expired")
		v["sso"].EXPECT().ValidateToken(gomock.Any(), "tok").Return(nil, expired)
		v["dashboard"].EXPECT().ValidateToken(gomock.Any(), "tok").Return(nil, errors.New("wrong audience"))

		_, err := a.Authenticate(context.Background(), "tok")
		require.Error(t, err)
		assert.ErrorIs(t, err, expired)
		assert.Contains(t, err.Error(), "sso: token expired")
		assert.Contains(t, err.Error(), "dashboard: wrong audience")
	})
}

func TestAuthenticator_Middleware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		header     string
		expect     func(v *mocks.MocktokenValidatorInterface)
		wantStatus int
		wantError  string
	}{
		{name: "no header", wantStatus: http.StatusUnauthorized, wantError: errInvalidRequest},
		{name: "basic auth", header: "Basic dXNlcjpwdw==", wantStatus: http.StatusUnauthorized, wantError: errInvalidRequest},
		{name: "empty bearer", header: "Bearer   ", wantStatus: http.StatusUnauthorized, wantError: errInvalidRequest},
		{
			name:   "rejected token",
			header: "Bearer tok",
			expect: func(v *mocks.MocktokenValidatorInterface) {
				v.EXPECT().ValidateToken(gomock.Any(), "tok").Return(nil, errors.New("expired"))
			},
			wantStatus: http.StatusUnauthorized,
			wantError:  errInvalidToken,
		},
		{
			name:   "accepted token, scheme is case insensitive",
			header: "bearer tok",
			expect: func(v *mocks.MocktokenValidatorInterface) {
				v.EXPECT().ValidateToken(gomock.Any(), "tok").Return(jwt.MapClaims{"sub": "alice"}, nil)
			},
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a, v := newTestAuthenticator(t, "https://syncd.example.com", "sso")
			if tt.expect != nil {
				tt.expect(v["sso"])
			}

			var got *Principal
			h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = PrincipalFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			require.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantStatus == http.StatusOK {
				require.NotNil(t, got)
				assert.Equal(t, "alice", got.Subject)
				assert.Empty(t, rr.Header().Get("WWW-Authenticate"))
				return
			}

			assert.Nil(t, got)
			challenge := rr.Header().Get("WWW-Authenticate")
			assert.Contains(t, challenge, `error="`+tt.wantError+`"`)
			assert.Contains(t, challenge, `resource_metadata="https://syncd.example.com/.well-known/oauth-protected-resource"`)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestBearerToken_WebSocketQuery(t *testing.T) {
	t.Parallel()

	upgrade := httptest.NewRequest(http.MethodGet, "/v1/stream?access_token=tok", nil)
	upgrade.Header.Set("Upgrade", "websocket")
	token, err := bearerToken(upgrade)
	require.NoError(t, err)
	assert.Equal(t, "tok", token)

	plain := httptest.NewRequest(http.MethodGet, "/v1/sessions?access_token=tok", nil)
	_, err = bearerToken(plain)
	assert.ErrorIs(t, err, errNoBearer)

	both := httptest.NewRequest(http.MethodGet, "/v1/stream?access_token=query", nil)
	both.Header.Set("Upgrade", "websocket")
	both.Header.Set("Authorization", "Bearer header")
	token, err = bearerToken(both)
	require.NoError(t, err)
	assert.Equal(t, "header", token)
}

func TestChallenge(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		`Bearer realm="syncd", error="invalid_token", error_description="token validation failed"`,
		newChallenge("", "").header(errInvalidToken, "token validation failed"))

	assert.Equal(t,
		`Bearer realm="crm", error="invalid_request", error_description="x", resource_metadata="https://syncd.example.com/.well-known/oauth-protected-resource"`,
		newChallenge("crm", "https://syncd.example.com/").header(errInvalidRequest, "x"))

	injected := newChallenge("evil\r\nX-Injected: 1", "").header(errInvalidToken, `say "hi" \ bye`)
	assert.NotContains(t, injected, "\r")
	assert.NotContains(t, injected, "\n")
	assert.Contains(t, injected, `realm="evilX-Injected: 1"`)
	assert.Contains(t, injected, `error_description="say \"hi\" \\ bye"`)
}

func TestClaimsContext(t *testing.T) {
	t.Parallel()

	_, ok := ClaimsFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithClaims(context.Background(), jwt.MapClaims{"sub": "bob", "scope": "sessions:read"})
	claims, ok := ClaimsFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "sessions:read", claims["scope"])

	p, ok := PrincipalFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "bob", p.Subject)
}
