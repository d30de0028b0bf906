package auth

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/GlobalTax/Crmcapittal-sub010/internal/config"
)

// NewTokenStore creates the TokenStore selected by cfg
func NewTokenStore(cfg config.TokenStoreConfig) (TokenStore, error) {
	switch cfg.Type {
	case config.TokenStoreFile, "":
		if cfg.Path == "" {
			return NewFileTokenStore(config.DefaultTokenPath()), nil
		}
		return NewFileTokenStore(cfg.Path), nil
	case config.TokenStoreKeyring:
		return NewKeyringTokenStore(DefaultKeyringService, DefaultKeyringUser), nil
	default:
		return nil, fmt.Errorf("unsupported token store type: %s", cfg.Type)
	}
}

// NewUpstreamGuard creates the SessionGuard that authenticates requests to
// data sources. A nil config means no credentials.
func NewUpstreamGuard(ctx context.Context, cfg *config.CredentialsConfig, opts ...OAuthOption) (SessionGuard, error) {
	if cfg == nil {
		slog.Info("Upstream credentials: none")
		return Anonymous(), nil
	}

	switch cfg.Type {
	case config.CredentialsNone, "":
		slog.Info("Upstream credentials: none")
		return Anonymous(), nil

	case config.CredentialsStatic:
		token, err := cfg.GetToken()
		if err != nil {
			return nil, err
		}
		if token == "" {
			return nil, fmt.Errorf("static credentials configured but no token found")
		}
		slog.Info("Upstream credentials: static token")
		return NewStaticGuard(token), nil

	case config.CredentialsOAuth2, config.CredentialsClientCredentials:
		if cfg.OAuth2 == nil {
			return nil, fmt.Errorf("oauth2 client configuration is required for %s credentials", cfg.Type)
		}
		secret, err := cfg.OAuth2.GetClientSecret()
		if err != nil {
			return nil, err
		}
		store, err := NewTokenStore(cfg.GetStore())
		if err != nil {
			return nil, err
		}

		if cfg.Type == config.CredentialsClientCredentials {
			slog.Info("Upstream credentials: client credentials", "token_url", cfg.OAuth2.TokenURL)
			return NewClientCredentialsGuard(ctx, &clientcredentials.Config{
				ClientID:     cfg.OAuth2.ClientID,
				ClientSecret: secret,
				TokenURL:     cfg.OAuth2.TokenURL,
				Scopes:       cfg.OAuth2.Scopes,
			}, store, opts...)
		}

		slog.Info("Upstream credentials: oauth2", "token_url", cfg.OAuth2.TokenURL)
		return NewOAuthGuard(ctx, &oauth2.Config{
			ClientID:     cfg.OAuth2.ClientID,
			ClientSecret: secret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.OAuth2.AuthURL,
				TokenURL: cfg.OAuth2.TokenURL,
			},
			Scopes: cfg.OAuth2.Scopes,
		}, store, opts...)

	default:
		return nil, fmt.Errorf("unsupported credentials type: %s", cfg.Type)
	}
}
