package auth

//go:generate mockgen -destination=mocks/mock_validator.go -package=mocks -source=validator.go tokenValidatorInterface

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"
	jwxjwt "github.com/lestrrat-go/jwx/v3/jwt"
)

// providerConfig is one trusted token issuer, resolved from configuration
type providerConfig struct {
	Name      string
	IssuerURL string

	// JWKSURL is empty when the key set lives at <IssuerURL>/.well-known/jwks.json
	JWKSURL  string
	Audience string

	// HMACSecret selects shared-secret verification
	HMACSecret []byte
}

// tokenValidatorInterface abstracts token validation for testability.
type tokenValidatorInterface interface {
	ValidateToken(ctx context.Context, token string) (jwt.MapClaims, error)
}

// validatorFactory creates the validator of one provider
type validatorFactory func(ctx context.Context, pc providerConfig) (tokenValidatorInterface, error)

// DefaultValidatorFactory verifies with a shared secret when one is configured,
// otherwise with the provider's JWKS.
var DefaultValidatorFactory validatorFactory = func(
	ctx context.Context,
	pc providerConfig,
) (tokenValidatorInterface, error) {
	if len(pc.HMACSecret) > 0 {
		return newHMACValidator(pc)
	}
	return newJWKSValidator(ctx, pc)
}

// jwksValidator verifies tokens signed by keys published at a JWKS endpoint.
// The key set is cached and refreshed in the background.
type jwksValidator struct {
	keys     jwk.Set
	issuer   string
	audience string
}

func newJWKSValidator(ctx context.Context, pc providerConfig) (*jwksValidator, error) {
	jwksURL := pc.JWKSURL
	if jwksURL == "" {
		if pc.IssuerURL == "" {
			return nil, errors.New("issuerURL or jwksURL is required")
		}
		jwksURL = pc.IssuerURL + "/.well-known/jwks.json"
	}

	cache, err := jwk.NewCache(ctx, httprc.NewClient())
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS cache: %w", err)
	}
	if err := cache.Register(ctx, jwksURL); err != nil {
		return nil, fmt.Errorf("failed to register JWKS %s: %w", jwksURL, err)
	}
	keys, err := cache.CachedSet(jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to load JWKS %s: %w", jwksURL, err)
	}

	return &jwksValidator{
		keys:     keys,
		issuer:   pc.IssuerURL,
		audience: pc.Audience,
	}, nil
}

// ValidateToken verifies the signature and the registered claims of token
func (v *jwksValidator) ValidateToken(_ context.Context, token string) (jwt.MapClaims, error) {
	opts := []jwxjwt.ParseOption{
		jwxjwt.WithKeySet(v.keys),
		jwxjwt.WithValidate(true),
	}
	if v.issuer != "" {
		opts = append(opts, jwxjwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwxjwt.WithAudience(v.audience))
	}

	if _, err := jwxjwt.Parse([]byte(token), opts...); err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}

	// The signature is verified above; this only decodes the claims
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("failed to decode claims: %w", err)
	}
	return claims, nil
}

// hmacValidator verifies tokens signed with a shared secret
type hmacValidator struct {
	secret []byte
	parser *jwt.Parser
}

func newHMACValidator(pc providerConfig) (*hmacValidator, error) {
	if len(pc.HMACSecret) == 0 {
		return nil, errors.New("hmac secret is empty")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
	}
	if pc.IssuerURL != "" {
		opts = append(opts, jwt.WithIssuer(pc.IssuerURL))
	}
	if pc.Audience != "" {
		opts = append(opts, jwt.WithAudience(pc.Audience))
	}

	return &hmacValidator{secret: pc.HMACSecret, parser: jwt.NewParser(opts...)}, nil
}

// ValidateToken verifies the HMAC signature and the registered claims of token
func (v *hmacValidator) ValidateToken(_ context.Context, token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}
	return claims, nil
}
