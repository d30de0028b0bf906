package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// OAuthGuard manages an OAuth2 session whose tokens live in a TokenStore.
// Sessions are refreshed with the refresh token grant, or with the client
// credentials grant when no user token is available and the guard was
// created with NewClientCredentialsGuard.
type OAuthGuard struct {
	config     *oauth2.Config
	clientCred *clientcredentials.Config
	store      TokenStore
	httpClient *http.Client

	mu      sync.Mutex
	token   *oauth2.Token
	session *Session

	listeners listeners
}

// OAuthOption is a function that configures an OAuthGuard
type OAuthOption func(*OAuthGuard)

// WithHTTPClient sets the HTTP client used for token requests
func WithHTTPClient(client *http.Client) OAuthOption {
	return func(g *OAuthGuard) {
		g.httpClient = client
	}
}

// NewOAuthGuard creates a guard for a user session and loads any stored token.
func NewOAuthGuard(ctx context.Context, config *oauth2.Config, store TokenStore, opts ...OAuthOption) (*OAuthGuard, error) {
	g := &OAuthGuard{config: config, store: store}
	for _, opt := range opts {
		opt(g)
	}

	tok, err := store.Load(ctx)
	switch {
	case errors.Is(err, ErrTokenNotFound):
		slog.Info("No stored token, waiting for sign-in")
	case err != nil:
		return nil, fmt.Errorf("failed to load stored token: %w", err)
	default:
		g.setToken(tok)
		slog.Info("Loaded stored session", "subject", g.session.Subject, "expires_at", g.session.ExpiresAt)
	}

	return g, nil
}

// NewClientCredentialsGuard creates a guard that obtains service tokens with
// the client credentials grant. The first token is requested immediately.
func NewClientCredentialsGuard(
	ctx context.Context, config *clientcredentials.Config, store TokenStore, opts ...OAuthOption,
) (*OAuthGuard, error) {
	g := &OAuthGuard{clientCred: config, store: store}
	for _, opt := range opts {
		opt(g)
	}

	if tok, err := store.Load(ctx); err == nil && tok.Valid() {
		g.setToken(tok)
		return g, nil
	}

	if _, err := g.RefreshSession(ctx); err != nil {
		return nil, fmt.Errorf("failed to obtain client credentials token: %w", err)
	}
	return g, nil
}

// CurrentSession returns the session loaded from the latest token
func (g *OAuthGuard) CurrentSession(_ context.Context) (*Session, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return copySession(g.session), g.session != nil
}

// OnSessionChange registers a session change listener
func (g *OAuthGuard) OnSessionChange(fn func(Change)) func() {
	return g.listeners.add(fn)
}

// RefreshSession obtains a new access token. A refresh token rejected by the
// authorization server signs the session out.
func (g *OAuthGuard) RefreshSession(ctx context.Context) (*Session, error) {
	if g.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
	}

	g.mu.Lock()
	tok, signedOut, err := g.refreshLocked(ctx)
	if err != nil {
		g.mu.Unlock()
		if signedOut {
			g.listeners.notify(Change{Kind: ChangeSignedOut})
		}
		return nil, err
	}
	wasSignedIn := g.session != nil
	g.setToken(tok)
	session := copySession(g.session)
	g.mu.Unlock()

	if err := g.store.Save(ctx, tok); err != nil {
		slog.Warn("Failed to persist refreshed token", "error", err)
	}

	kind := ChangeRefreshed
	if !wasSignedIn {
		kind = ChangeSignedIn
	}
	g.listeners.notify(Change{Kind: kind, Session: copySession(session)})
	return session, nil
}

func (g *OAuthGuard) refreshLocked(ctx context.Context) (*oauth2.Token, bool, error) {
	if g.clientCred != nil {
		tok, err := g.clientCred.Token(ctx)
		if err != nil {
			return nil, false, fmt.Errorf("client credentials grant failed: %w", err)
		}
		return tok, false, nil
	}

	if g.token == nil || g.token.RefreshToken == "" {
		return nil, false, ErrNotSignedIn
	}

	// An access-token-less token forces the token source to refresh
	src := g.config.TokenSource(ctx, &oauth2.Token{RefreshToken: g.token.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.ErrorCode == "invalid_grant" {
			g.token, g.session = nil, nil
			if derr := g.store.Delete(ctx); derr != nil {
				slog.Warn("Failed to delete rejected token", "error", derr)
			}
			return nil, true, fmt.Errorf("%w: refresh token rejected", ErrNotSignedIn)
		}
		return nil, false, fmt.Errorf("token refresh failed: %w", err)
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = g.token.RefreshToken
	}
	return tok, false, nil
}

// SignIn stores tok as the new session
func (g *OAuthGuard) SignIn(ctx context.Context, tok *oauth2.Token) error {
	if tok == nil || tok.AccessToken == "" {
		return errors.New("token has no access token")
	}
	if err := g.store.Save(ctx, tok); err != nil {
		return err
	}

	g.mu.Lock()
	g.setToken(tok)
	session := copySession(g.session)
	g.mu.Unlock()

	g.listeners.notify(Change{Kind: ChangeSignedIn, Session: session})
	return nil
}

// SignOut removes the session and its stored token
func (g *OAuthGuard) SignOut(ctx context.Context) error {
	if err := g.store.Delete(ctx); err != nil {
		return err
	}

	g.mu.Lock()
	had := g.session != nil
	g.token, g.session = nil, nil
	g.mu.Unlock()

	if had {
		g.listeners.notify(Change{Kind: ChangeSignedOut})
	}
	return nil
}

func (g *OAuthGuard) setToken(tok *oauth2.Token) {
	g.token = tok
	g.session = sessionFromToken(tok)
}

// sessionFromToken builds a session from tok. JWT access tokens contribute
// their subject and expiry; opaque tokens are used as they are.
func sessionFromToken(tok *oauth2.Token) *Session {
	s := &Session{
		AccessToken: tok.AccessToken,
		TokenType:   tok.Type(),
		ExpiresAt:   tok.Expiry,
	}

	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tok.AccessToken, &claims); err == nil {
		s.Subject = claims.Subject
		if s.ExpiresAt.IsZero() && claims.ExpiresAt != nil {
			s.ExpiresAt = claims.ExpiresAt.Time
		}
	}
	return s
}
