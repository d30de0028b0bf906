package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
)

// AuthMode selects how API requests are authenticated
type AuthMode string

const (
	// AuthModeAnonymous accepts every request
	AuthModeAnonymous AuthMode = "anonymous"

	// AuthModeOAuth requires a bearer token accepted by one of the providers
	AuthModeOAuth AuthMode = "oauth"
)

// Authorization actions granted through scopes
const (
	ActionRead  = "read"
	ActionWrite = "write"
	ActionAdmin = "admin"
)

// DefaultScopes are advertised in the protected resource metadata when none are configured
var DefaultScopes = []string{"syncd:read", "syncd:write", "syncd:admin"}

// DefaultScopeMapping is used when auth.authz.scopeMapping is empty
var DefaultScopeMapping = []ScopeMappingEntry{
	{Scope: "syncd:read", Actions: []string{ActionRead}},
	{Scope: "syncd:write", Actions: []string{ActionRead, ActionWrite}},
	{Scope: "syncd:admin", Actions: []string{ActionRead, ActionWrite, ActionAdmin}},
}

// AuthConfig defines authentication for the HTTP API
type AuthConfig struct {
	Mode  AuthMode     `yaml:"mode"`
	OAuth *OAuthConfig `yaml:"oauth,omitempty"`

	// Authz enables scope based authorization of authenticated requests
	Authz *AuthzConfig `yaml:"authz,omitempty"`
}

// AuthzConfig maps token scopes to actions evaluated by Cedar policies
type AuthzConfig struct {
	// PolicyFile replaces the built-in policies
	PolicyFile   string              `yaml:"policyFile,omitempty"`
	ScopeMapping []ScopeMappingEntry `yaml:"scopeMapping,omitempty"`
}

// ScopeMappingEntry grants actions to the holders of a scope
type ScopeMappingEntry struct {
	Scope   string   `yaml:"scope"`
	Actions []string `yaml:"actions"`
}

// GetScopeMapping returns the configured mapping or DefaultScopeMapping
func (a *AuthzConfig) GetScopeMapping() []ScopeMappingEntry {
	if a == nil || len(a.ScopeMapping) == 0 {
		return DefaultScopeMapping
	}
	return a.ScopeMapping
}

// GetPolicies reads PolicyFile. No file configured yields nil.
func (a *AuthzConfig) GetPolicies() ([]byte, error) {
	if a == nil || a.PolicyFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(filepath.Clean(a.PolicyFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return data, nil
}

// OAuthConfig defines the OAuth protected resource settings
type OAuthConfig struct {
	// ResourceURL is the public URL of this API, used in WWW-Authenticate
	// and the protected resource metadata document
	ResourceURL string `yaml:"resourceUrl,omitempty"`

	// Realm is the WWW-Authenticate realm. Defaults to "syncd".
	Realm string `yaml:"realm,omitempty"`

	ScopesSupported []string `yaml:"scopesSupported,omitempty"`

	// Providers are tried in order until one accepts the token
	Providers []OAuthProviderConfig `yaml:"providers"`
}

// OAuthProviderConfig defines a token issuer trusted by the API
type OAuthProviderConfig struct {
	Name      string `yaml:"name"`
	IssuerURL string `yaml:"issuerUrl"`

	// JWKSURL overrides the key set location. Defaults to <issuerUrl>/.well-known/jwks.json.
	JWKSURL  string `yaml:"jwksUrl,omitempty"`
	Audience string `yaml:"audience,omitempty"`

	// SecretFile holds a shared HMAC secret. When set, tokens are verified
	// with the secret instead of the issuer's key set.
	SecretFile string `yaml:"secretFile,omitempty"`
}

// GetSecret returns the shared secret read from SecretFile, whitespace trimmed.
// No file configured yields an empty secret.
func (p *OAuthProviderConfig) GetSecret() (string, error) {
	if p.SecretFile == "" {
		return "", nil
	}
	return readSecretFile(p.SecretFile, "secret")
}

func (a *AuthConfig) validate() error {
	switch a.Mode {
	case "", AuthModeAnonymous:
		if a.Authz != nil {
			return fmt.Errorf("auth.authz requires mode %s", AuthModeOAuth)
		}
		return nil
	case AuthModeOAuth:
	default:
		return fmt.Errorf("auth.mode must be %s or %s, got %s", AuthModeAnonymous, AuthModeOAuth, a.Mode)
	}

	if a.OAuth == nil {
		return fmt.Errorf("auth.oauth is required when mode is %s", AuthModeOAuth)
	}
	if len(a.OAuth.Providers) == 0 {
		return fmt.Errorf("auth.oauth.providers must contain at least one provider")
	}

	names := make(map[string]bool)
	for i, p := range a.OAuth.Providers {
		prefix := fmt.Sprintf("auth.oauth.providers[%d]", i)
		if p.Name == "" {
			return fmt.Errorf("%s: name is required", prefix)
		}
		if names[p.Name] {
			return fmt.Errorf("%s: duplicate provider name '%s'", prefix, p.Name)
		}
		names[p.Name] = true

		if p.IssuerURL == "" {
			return fmt.Errorf("%s: issuerUrl is required", prefix)
		}
		if err := validateIssuerURL(p.IssuerURL); err != nil {
			return fmt.Errorf("%s: issuerUrl %w", prefix, err)
		}
		if p.SecretFile == "" && p.Audience == "" {
			return fmt.Errorf("%s: audience is required unless secretFile is set", prefix)
		}
	}
	return a.Authz.validate()
}

func (a *AuthzConfig) validate() error {
	if a == nil {
		return nil
	}
	for i, e := range a.ScopeMapping {
		if e.Scope == "" {
			return fmt.Errorf("auth.authz.scopeMapping[%d]: scope is required", i)
		}
		for _, action := range e.Actions {
			switch action {
			case ActionRead, ActionWrite, ActionAdmin:
			default:
				return fmt.Errorf("auth.authz.scopeMapping[%d]: unknown action '%s'", i, action)
			}
		}
	}
	return nil
}

func validateIssuerURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("must be an absolute URL with host")
	}
	if u.Scheme != "https" && u.Hostname() != "localhost" && u.Hostname() != "127.0.0.1" {
		return fmt.Errorf("must use HTTPS")
	}
	return nil
}
