package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/zalando/go-keyring"
	"golang.org/x/oauth2"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/GlobalTax/Crmcapittal-sub010/internal/auth TokenStore

// ErrTokenNotFound is returned by a TokenStore that holds no token
var ErrTokenNotFound = errors.New("token not found")

const (
	// DefaultKeyringService is the keyring service name used for stored tokens
	DefaultKeyringService = "syncd"

	// DefaultKeyringUser is the keyring account name used for stored tokens
	DefaultKeyringUser = "default"

	lockRetryDelay = 50 * time.Millisecond
)

// TokenStore persists OAuth2 tokens between runs
type TokenStore interface {
	// Load returns the stored token, or ErrTokenNotFound
	Load(ctx context.Context) (*oauth2.Token, error)

	// Save replaces the stored token
	Save(ctx context.Context, token *oauth2.Token) error

	// Delete removes the stored token. Deleting a missing token is not an error.
	Delete(ctx context.Context) error
}

// fileTokenStore keeps the token in a JSON file guarded by an advisory file
// lock, so that the daemon and the CLI can share it.
type fileTokenStore struct {
	path string
}

// NewFileTokenStore creates a TokenStore backed by the file at path
func NewFileTokenStore(path string) TokenStore {
	return &fileTokenStore{path: path}
}

func (f *fileTokenStore) lock(ctx context.Context) (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create token directory: %w", err)
	}
	fl := flock.New(f.path + ".lock")
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to lock token file: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("failed to lock token file: %s", f.path)
	}
	return fl, nil
}

// Load reads the token file
func (f *fileTokenStore) Load(ctx context.Context) (*oauth2.Token, error) {
	fl, err := f.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = fl.Unlock() }()

	// #nosec G304 -- path comes from daemon configuration
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token file: %w", err)
	}
	return &tok, nil
}

// Save writes the token file atomically
func (f *fileTokenStore) Save(ctx context.Context, token *oauth2.Token) error {
	fl, err := f.lock(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = fl.Unlock() }()

	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	tempPath := f.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary token file: %w", err)
	}
	if err := os.Rename(tempPath, f.path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename token file: %w", err)
	}
	return nil
}

// Delete removes the token file
func (f *fileTokenStore) Delete(ctx context.Context) error {
	fl, err := f.lock(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = fl.Unlock() }()

	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}

// keyringTokenStore keeps the token in the operating system keyring
type keyringTokenStore struct {
	service string
	user    string
}

// NewKeyringTokenStore creates a TokenStore backed by the system keyring
func NewKeyringTokenStore(service, user string) TokenStore {
	if service == "" {
		service = DefaultKeyringService
	}
	if user == "" {
		user = DefaultKeyringUser
	}
	return &keyringTokenStore{service: service, user: user}
}

// Load reads the token from the keyring
func (k *keyringTokenStore) Load(_ context.Context) (*oauth2.Token, error) {
	secret, err := keyring.Get(k.service, k.user)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to read token from keyring: %w", err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal([]byte(secret), &tok); err != nil {
		return nil, fmt.Errorf("failed to unmarshal keyring token: %w", err)
	}
	return &tok, nil
}

// Save writes the token to the keyring
func (k *keyringTokenStore) Save(_ context.Context, token *oauth2.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := keyring.Set(k.service, k.user, string(data)); err != nil {
		return fmt.Errorf("failed to write token to keyring: %w", err)
	}
	return nil
}

// Delete removes the token from the keyring
func (k *keyringTokenStore) Delete(_ context.Context) error {
	if err := keyring.Delete(k.service, k.user); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to remove token from keyring: %w", err)
	}
	return nil
}
