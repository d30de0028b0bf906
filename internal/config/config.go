// Package config provides configuration loading and management for the sync daemon.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"

	"github.com/GlobalTax/Crmcapittal-sub010/internal/telemetry"
)

const (
	// EnvPrefix is the prefix of environment variables read by the daemon
	EnvPrefix = "SYNCD"

	// DefaultServerAddress is the API listen address used when none is configured
	DefaultServerAddress = ":8080"

	// DefaultSubjectPrefix is the NATS subject prefix used when none is configured
	DefaultSubjectPrefix = "syncd"
)

const (
	// StateTypeFile persists session status as JSON files
	StateTypeFile = "file"

	// StateTypeSQLite persists session status in a SQLite database
	StateTypeSQLite = "sqlite"
)

const (
	// CredentialsNone sends no credentials upstream
	CredentialsNone = "none"

	// CredentialsStatic sends a fixed bearer token upstream
	CredentialsStatic = "static"

	// CredentialsOAuth2 uses a stored OAuth2 user token with refresh
	CredentialsOAuth2 = "oauth2"

	// CredentialsClientCredentials uses the OAuth2 client credentials grant
	CredentialsClientCredentials = "clientCredentials"
)

const (
	// TokenStoreFile keeps tokens in a locked JSON file
	TokenStoreFile = "file"

	// TokenStoreKeyring keeps tokens in the OS keyring
	TokenStoreKeyring = "keyring"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		// Validate the path to prevent path traversal attacks
		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// Server configures the HTTP API
	Server ServerConfig `yaml:"server,omitempty"`

	// Auth protects the HTTP API. Nil means anonymous access.
	Auth *AuthConfig `yaml:"auth,omitempty"`

	// Credentials configures how the daemon authenticates to upstream data sources
	Credentials *CredentialsConfig `yaml:"credentials,omitempty"`

	// State configures session status persistence
	State *StateConfig `yaml:"state,omitempty"`

	// Notify configures state fan-out and engagement intake
	Notify *NotifyConfig `yaml:"notify,omitempty"`

	// Defaults apply to every session unless the session overrides them
	Defaults PollingConfig `yaml:"defaults,omitempty"`

	// Executor tunes the in-call retry loop shared by all sessions
	Executor *ExecutorConfig `yaml:"executor,omitempty"`

	// Sessions lists the synchronized views
	Sessions []SessionConfig `yaml:"sessions"`

	// Telemetry configures OpenTelemetry tracing and metrics
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
}

// ServerConfig defines HTTP API settings
type ServerConfig struct {
	Address string `yaml:"address,omitempty"`
}

// CredentialsConfig defines upstream credential settings
type CredentialsConfig struct {
	// Type is one of none, static, oauth2 or clientCredentials
	Type string `yaml:"type"`

	// Token is a fixed bearer token for the static type
	Token string `yaml:"token,omitempty"`

	// TokenFile is a file holding the static bearer token
	TokenFile string `yaml:"tokenFile,omitempty"`

	OAuth2 *OAuth2ClientConfig `yaml:"oauth2,omitempty"`

	Store *TokenStoreConfig `yaml:"store,omitempty"`
}

// OAuth2ClientConfig defines the OAuth2 client used for upstream tokens
type OAuth2ClientConfig struct {
	ClientID string `yaml:"clientID"`

	// ClientSecretFile is the path to a file containing the client secret
	ClientSecretFile string `yaml:"clientSecretFile,omitempty"`

	TokenURL string   `yaml:"tokenURL"`
	AuthURL  string   `yaml:"authURL,omitempty"`
	Scopes   []string `yaml:"scopes,omitempty"`
}

// TokenStoreConfig selects where OAuth2 tokens are kept
type TokenStoreConfig struct {
	Type string `yaml:"type"`
	Path string `yaml:"path,omitempty"`
}

// StateConfig defines session status persistence
type StateConfig struct {
	Type string `yaml:"type"`
	Path string `yaml:"path,omitempty"`
}

// NotifyConfig defines notification backends
type NotifyConfig struct {
	NATS *NATSConfig `yaml:"nats,omitempty"`
}

// NATSConfig defines the NATS connection used for state fan-out
type NATSConfig struct {
	URL           string `yaml:"url,omitempty"`
	SubjectPrefix string `yaml:"subjectPrefix,omitempty"`

	// Embedded runs an in-process NATS server on URL's port (4222 when URL is empty)
	Embedded bool `yaml:"embedded,omitempty"`
}

// PollingConfig holds the polling knobs of a session. Empty fields inherit
// from the defaults section and then from the built-in defaults.
type PollingConfig struct {
	BaseInterval        string   `yaml:"baseInterval,omitempty"`
	MaxInterval         string   `yaml:"maxInterval,omitempty"`
	BackoffMultiplier   *float64 `yaml:"backoffMultiplier,omitempty"`
	PauseWhenHidden     *bool    `yaml:"pauseWhenHidden,omitempty"`
	PauseWhenInactive   *bool    `yaml:"pauseWhenInactive,omitempty"`
	InactivityThreshold string   `yaml:"inactivityThreshold,omitempty"`
	PauseMode           string   `yaml:"pauseMode,omitempty"`
}

// ExecutorConfig defines the in-call retry settings
type ExecutorConfig struct {
	MaxAttempts int    `yaml:"maxAttempts,omitempty"`
	BaseDelay   string `yaml:"baseDelay,omitempty"`
	MaxDelay    string `yaml:"maxDelay,omitempty"`
}

// SessionConfig defines one synchronized view and its data source
type SessionConfig struct {
	// ID identifies the session in the API, metrics and notifications
	ID string `yaml:"id"`

	// URL is the endpoint polled for the session data
	URL string `yaml:"url"`

	// ItemsPath is a gjson path selecting the item array in the response, used for counts
	ItemsPath string `yaml:"itemsPath,omitempty"`

	// Timeout bounds a single request (e.g., "10s")
	Timeout string `yaml:"timeout,omitempty"`

	Headers map[string]string `yaml:"headers,omitempty"`

	// FetchOnStart fetches immediately instead of waiting one interval. Defaults to true.
	FetchOnStart *bool `yaml:"fetchOnStart,omitempty"`

	PollingConfig `yaml:",inline"`
}

// LoadConfig loads and parses configuration from a YAML file. Files ending in
// .json, .jsonc or .hujson may contain comments and trailing commas.
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(loaderCfg.path)) {
	case ".json", ".jsonc", ".hujson":
		data, err = hujson.Standardize(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	}

	return Parse(data)
}

// Parse validates data against the configuration schema and decodes it
func Parse(data []byte) (*Config, error) {
	if err := validateSchema(data); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// GetServerAddress returns the API listen address
func (c *Config) GetServerAddress() string {
	if c.Server.Address == "" {
		return DefaultServerAddress
	}
	return c.Server.Address
}

// GetCredentialsType returns the upstream credentials type, "none" if unset
func (c *Config) GetCredentialsType() string {
	if c.Credentials == nil || c.Credentials.Type == "" {
		return CredentialsNone
	}
	return c.Credentials.Type
}

// GetStateType returns the status persistence type, "file" if unset
func (c *Config) GetStateType() string {
	if c.State == nil || c.State.Type == "" {
		return StateTypeFile
	}
	return c.State.Type
}

// GetStatePath returns the status directory (file) or database path (sqlite)
func (c *Config) GetStatePath() string {
	if c.State != nil && c.State.Path != "" {
		return c.State.Path
	}
	if c.GetStateType() == StateTypeSQLite {
		return DefaultStateDBPath()
	}
	return DefaultStateDir()
}

// GetSubjectPrefix returns the NATS subject prefix
func (n *NATSConfig) GetSubjectPrefix() string {
	if n.SubjectPrefix == "" {
		return DefaultSubjectPrefix
	}
	return n.SubjectPrefix
}

// GetToken returns the static bearer token using the following priority:
// 1. Read from TokenFile if specified
// 2. The inline Token value
// 3. The SYNCD_UPSTREAM_TOKEN environment variable
func (c *CredentialsConfig) GetToken() (string, error) {
	if c.TokenFile != "" {
		return readSecretFile(c.TokenFile, "token")
	}
	if c.Token != "" {
		return c.Token, nil
	}
	return os.Getenv(EnvPrefix + "_UPSTREAM_TOKEN"), nil
}

// GetStore returns the token store settings, defaulting to a file under the data home
func (c *CredentialsConfig) GetStore() TokenStoreConfig {
	if c.Store == nil || c.Store.Type == "" {
		return TokenStoreConfig{Type: TokenStoreFile, Path: DefaultTokenPath()}
	}
	store := *c.Store
	if store.Type == TokenStoreFile && store.Path == "" {
		store.Path = DefaultTokenPath()
	}
	return store
}

// GetClientSecret returns the client secret read from ClientSecretFile.
// No file configured yields an empty secret (public client).
func (o *OAuth2ClientConfig) GetClientSecret() (string, error) {
	if o.ClientSecretFile == "" {
		return "", nil
	}
	return readSecretFile(o.ClientSecretFile, "client secret")
}

// GetFetchOnStart reports whether the session fetches right after registration
func (s *SessionConfig) GetFetchOnStart() bool {
	return s.FetchOnStart == nil || *s.FetchOnStart
}

// GetTimeout returns the per-request timeout, zero if unset
func (s *SessionConfig) GetTimeout() time.Duration {
	d, _ := time.ParseDuration(s.Timeout)
	return d
}

// Merge returns p with every empty field taken from fallback
func (p PollingConfig) Merge(fallback PollingConfig) PollingConfig {
	if p.BaseInterval == "" {
		p.BaseInterval = fallback.BaseInterval
	}
	if p.MaxInterval == "" {
		p.MaxInterval = fallback.MaxInterval
	}
	if p.BackoffMultiplier == nil {
		p.BackoffMultiplier = fallback.BackoffMultiplier
	}
	if p.PauseWhenHidden == nil {
		p.PauseWhenHidden = fallback.PauseWhenHidden
	}
	if p.PauseWhenInactive == nil {
		p.PauseWhenInactive = fallback.PauseWhenInactive
	}
	if p.InactivityThreshold == "" {
		p.InactivityThreshold = fallback.InactivityThreshold
	}
	if p.PauseMode == "" {
		p.PauseMode = fallback.PauseMode
	}
	return p
}

func readSecretFile(path, what string) (string, error) {
	// Use filepath.Clean to prevent path traversal attacks
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to read %s from file %s: %w", what, path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if len(c.Sessions) == 0 {
		return fmt.Errorf("at least one session must be configured")
	}

	if err := c.Defaults.validate("defaults"); err != nil {
		return err
	}

	ids := make(map[string]bool)
	for i := range c.Sessions {
		s := &c.Sessions[i]
		if err := ValidateSessionID(s.ID); err != nil {
			return fmt.Errorf("sessions[%d]: %w", i, err)
		}
		if ids[s.ID] {
			return fmt.Errorf("sessions[%d]: duplicate session id '%s'", i, s.ID)
		}
		ids[s.ID] = true

		if err := validateSession(s, fmt.Sprintf("sessions[%d] (%s)", i, s.ID)); err != nil {
			return err
		}
	}

	if c.Auth != nil {
		if err := c.Auth.validate(); err != nil {
			return err
		}
	}

	return errors.Join(
		c.validateCredentials(),
		c.validateState(),
		c.validateNotify(),
		c.validateExecutor(),
		c.validateTelemetry(),
	)
}

func validateSession(s *SessionConfig, prefix string) error {
	u, err := url.Parse(s.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%s: url must be an absolute http(s) URL", prefix)
	}
	if s.Timeout != "" {
		if err := validateDuration(s.Timeout, prefix+": timeout"); err != nil {
			return err
		}
	}
	return s.PollingConfig.validate(prefix)
}

// validate checks the fields that are set; empty fields are filled in later
func (p PollingConfig) validate(prefix string) error {
	for name, value := range map[string]string{
		"baseInterval":        p.BaseInterval,
		"maxInterval":         p.MaxInterval,
		"inactivityThreshold": p.InactivityThreshold,
	} {
		if value == "" {
			continue
		}
		if err := validateDuration(value, prefix+": "+name); err != nil {
			return err
		}
	}

	if p.BaseInterval != "" && p.MaxInterval != "" {
		base, _ := time.ParseDuration(p.BaseInterval)
		maxInterval, _ := time.ParseDuration(p.MaxInterval)
		if maxInterval < base {
			return fmt.Errorf("%s: maxInterval must not be less than baseInterval", prefix)
		}
	}

	if p.BackoffMultiplier != nil && *p.BackoffMultiplier < 1 {
		return fmt.Errorf("%s: backoffMultiplier must be at least 1", prefix)
	}

	switch p.PauseMode {
	case "", "slow", "stop":
	default:
		return fmt.Errorf("%s: pauseMode must be slow or stop, got %s", prefix, p.PauseMode)
	}
	return nil
}

func validateDuration(value, field string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s must be a valid duration (e.g., '30s', '5m'): %w", field, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive", field)
	}
	return nil
}

func (c *Config) validateCredentials() error {
	if c.Credentials == nil {
		return nil
	}
	cr := c.Credentials

	switch cr.Type {
	case "", CredentialsNone:
	case CredentialsStatic:
		if cr.Token != "" && cr.TokenFile != "" {
			return fmt.Errorf("credentials: only one of token or tokenFile may be specified")
		}
	case CredentialsOAuth2, CredentialsClientCredentials:
		if cr.OAuth2 == nil {
			return fmt.Errorf("credentials.oauth2 is required for type %s", cr.Type)
		}
		if cr.OAuth2.ClientID == "" {
			return fmt.Errorf("credentials.oauth2.clientID is required")
		}
		if cr.OAuth2.TokenURL == "" {
			return fmt.Errorf("credentials.oauth2.tokenURL is required")
		}
		if cr.Type == CredentialsClientCredentials && cr.OAuth2.ClientSecretFile == "" {
			return fmt.Errorf("credentials.oauth2.clientSecretFile is required for type %s", cr.Type)
		}
	default:
		return fmt.Errorf("credentials: unsupported type %s", cr.Type)
	}

	if cr.Store != nil {
		switch cr.Store.Type {
		case "", TokenStoreFile, TokenStoreKeyring:
		default:
			return fmt.Errorf("credentials.store: unsupported type %s", cr.Store.Type)
		}
	}
	return nil
}

func (c *Config) validateState() error {
	if c.State == nil {
		return nil
	}
	switch c.State.Type {
	case "", StateTypeFile, StateTypeSQLite:
		return nil
	default:
		return fmt.Errorf("state: unsupported type %s", c.State.Type)
	}
}

func (c *Config) validateNotify() error {
	if c.Notify == nil || c.Notify.NATS == nil {
		return nil
	}
	n := c.Notify.NATS
	if n.URL == "" && !n.Embedded {
		return fmt.Errorf("notify.nats.url is required unless notify.nats.embedded is set")
	}
	if n.URL != "" {
		if _, err := url.Parse(n.URL); err != nil {
			return fmt.Errorf("notify.nats.url is invalid: %w", err)
		}
	}
	return nil
}

func (c *Config) validateExecutor() error {
	if c.Executor == nil {
		return nil
	}
	if c.Executor.MaxAttempts < 0 {
		return fmt.Errorf("executor.maxAttempts must not be negative")
	}
	for name, value := range map[string]string{
		"executor.baseDelay": c.Executor.BaseDelay,
		"executor.maxDelay":  c.Executor.MaxDelay,
	} {
		if value == "" {
			continue
		}
		if err := validateDuration(value, name); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateTelemetry() error {
	if c.Telemetry == nil {
		return nil
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	return nil
}

// MaxSessionIDLength bounds session IDs. They appear in URLs, metric labels
// and NATS subjects.
const MaxSessionIDLength = 64

// ValidateSessionID checks id against the session ID alphabet: letters,
// digits, '-' and '_'.
func ValidateSessionID(id string) error {
	if id == "" {
		return errors.New("id is required")
	}
	if len(id) > MaxSessionIDLength {
		return fmt.Errorf("id is longer than %d characters", MaxSessionIDLength)
	}
	for _, c := range id {
		ok := c == '-' || c == '_' || ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
		if !ok {
			return fmt.Errorf("id '%s' may only contain letters, digits, '-' and '_'", id)
		}
	}
	return nil
}
