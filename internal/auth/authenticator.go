package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/GlobalTax/Crmcapittal-sub010/internal/api/common"
)

// RFC 6750 error codes
const (
	errInvalidRequest = "invalid_request"
	errInvalidToken   = "invalid_token"
)

var errNoBearer = errors.New("missing bearer token")

// issuer is a trusted token issuer and the validator of its tokens
type issuer struct {
	name      string
	validator tokenValidatorInterface
}

// authenticator accepts a bearer token when any issuer validates it.
// Issuers are tried in configuration order.
type authenticator struct {
	issuers   []issuer
	challenge challenge
}

func newAuthenticator(
	ctx context.Context,
	providers []providerConfig,
	resourceURL string,
	realm string,
	factory validatorFactory,
) (*authenticator, error) {
	if len(providers) == 0 {
		return nil, errors.New("at least one provider must be configured")
	}

	a := &authenticator{
		issuers:   make([]issuer, 0, len(providers)),
		challenge: newChallenge(realm, resourceURL),
	}
	for _, pc := range providers {
		v, err := factory(ctx, pc)
		if err != nil {
			return nil, fmt.Errorf("failed to create validator for provider %q: %w", pc.Name, err)
		}
		a.issuers = append(a.issuers, issuer{name: pc.Name, validator: v})
	}
	return a, nil
}

// Authenticate returns the caller identified by token. When every issuer
// rejects it the error joins their reasons.
func (a *authenticator) Authenticate(ctx context.Context, token string) (*Principal, error) {
	var errs []error
	for _, iss := range a.issuers {
		claims, err := iss.validator.ValidateToken(ctx, token)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", iss.name, err))
			continue
		}
		return newPrincipal(iss.name, claims), nil
	}
	return nil, fmt.Errorf("token rejected by every provider: %w", errors.Join(errs...))
}

// Middleware rejects requests without a valid bearer token and stores the
// Principal of the others in the request context
func (a *authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err != nil {
			slog.Warn("Rejected request without bearer token", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
			a.reject(w, errInvalidRequest, "missing or malformed authorization header")
			return
		}

		p, err := a.Authenticate(r.Context(), token)
		if err != nil {
			slog.Warn("Rejected bearer token", "path", r.URL.Path, "remote_addr", r.RemoteAddr, "error", err)
			a.reject(w, errInvalidToken, "token validation failed")
			return
		}

		slog.Debug("Authenticated request", "provider", p.Provider, "subject", p.Subject, "path", r.URL.Path)
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

func (a *authenticator) reject(w http.ResponseWriter, code, description string) {
	w.Header().Set("WWW-Authenticate", a.challenge.header(code, description))
	common.WriteErrorResponse(w, description, http.StatusUnauthorized)
}

// bearerToken returns the token of an "Authorization: Bearer" header.
// Browsers cannot set headers on WebSocket upgrades, so an upgrade may carry
// the token in the access_token query parameter instead.
func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			if token := r.URL.Query().Get("access_token"); token != "" {
				return token, nil
			}
		}
		return "", errNoBearer
	}

	scheme, token, _ := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", errNoBearer
	}
	return token, nil
}

// Principal is an authenticated API caller
type Principal struct {
	// Provider names the issuer that accepted the token
	Provider string
	Subject  string
	Claims   jwt.MapClaims
}

func newPrincipal(provider string, claims jwt.MapClaims) *Principal {
	sub, _ := claims.GetSubject()
	return &Principal{Provider: provider, Subject: sub, Claims: claims}
}

type principalKey struct{}

// WithPrincipal stores p in ctx
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the caller stored by the auth middleware
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

// WithClaims stores a caller known only by its claims
func WithClaims(ctx context.Context, claims jwt.MapClaims) context.Context {
	return WithPrincipal(ctx, newPrincipal("", claims))
}

// ClaimsFromContext returns the token claims of the caller
func ClaimsFromContext(ctx context.Context) (jwt.MapClaims, bool) {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return nil, false
	}
	return p.Claims, true
}
