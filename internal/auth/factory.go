package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/GlobalTax/Crmcapittal-sub010/internal/config"
)

// NewAuthMiddleware builds the authentication of the API from cfg. It returns
// the middleware and, in OAuth mode, the handler of the protected resource
// metadata document. Anonymous mode, the default, lets every request through.
func NewAuthMiddleware(
	ctx context.Context,
	cfg *config.AuthConfig,
	factory validatorFactory,
) (func(http.Handler) http.Handler, http.Handler, error) {
	mode := config.AuthModeAnonymous
	if cfg != nil && cfg.Mode != "" {
		mode = cfg.Mode
	}

	switch mode {
	case config.AuthModeAnonymous:
		slog.Info("API auth disabled, serving anonymous clients")
		return passThrough, nil, nil
	case config.AuthModeOAuth:
	default:
		return nil, nil, fmt.Errorf("unsupported auth mode: %s", mode)
	}

	oauth := cfg.OAuth
	if oauth == nil {
		return nil, nil, errors.New("oauth configuration is required for oauth mode")
	}
	providers, err := resolveProviders(oauth.Providers)
	if err != nil {
		return nil, nil, err
	}

	a, err := newAuthenticator(ctx, providers, oauth.ResourceURL, oauth.Realm, factory)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create authenticator: %w", err)
	}

	issuers := make([]string, 0, len(providers))
	for _, p := range providers {
		if len(p.HMACSecret) == 0 {
			issuers = append(issuers, p.IssuerURL)
		}
	}
	metadata, err := newProtectedResourceHandler(oauth.ResourceURL, issuers, oauth.ScopesSupported)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create protected resource handler: %w", err)
	}

	slog.Info("API auth enabled", "mode", mode, "providers", len(providers))
	return a.Middleware, metadata, nil
}

// resolveProviders reads the shared secrets of the configured providers
func resolveProviders(in []config.OAuthProviderConfig) ([]providerConfig, error) {
	out := make([]providerConfig, 0, len(in))
	for _, p := range in {
		pc := providerConfig{
			Name:      p.Name,
			IssuerURL: p.IssuerURL,
			JWKSURL:   p.JWKSURL,
			Audience:  p.Audience,
		}
		secret, err := p.GetSecret()
		if err != nil {
			return nil, fmt.Errorf("failed to read secret for provider %q: %w", p.Name, err)
		}
		if secret != "" {
			pc.HMACSecret = []byte(secret)
		}
		out = append(out, pc)
	}
	return out, nil
}

func passThrough(next http.Handler) http.Handler {
	return next
}
