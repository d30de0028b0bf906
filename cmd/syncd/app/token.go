package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/oauth2"

	"github.com/GlobalTax/Crmcapittal-sub010/internal/auth"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/config"
)

const loginTimeout = 5 * time.Minute

func newTokenCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the stored upstream OAuth2 token",
	}

	importCmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Store an OAuth2 token read from a JSON file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := tokenStore(v)
			if err != nil {
				return err
			}
			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(filepath.Clean(args[0]))
				if err != nil {
					return fmt.Errorf("failed to open token file: %w", err)
				}
				defer func() { _ = f.Close() }()
				in = f
			}
			return importToken(cmd.Context(), store, in, cmd.OutOrStdout())
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the stored token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := tokenStore(v)
			if err != nil {
				return err
			}
			if err := store.Delete(contextOf(cmd)); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "Token deleted")
			return err
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show whether a token is stored and when it expires",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := tokenStore(v)
			if err != nil {
				return err
			}
			return showToken(contextOf(cmd), store, cmd.OutOrStdout())
		},
	}

	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with the OAuth2 authorization code flow and store the token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(config.WithConfigPath(configPath(v)))
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if cfg.GetCredentialsType() != config.CredentialsOAuth2 || cfg.Credentials.OAuth2 == nil {
				return errors.New("login requires oauth2 credentials in the configuration")
			}
			store, err := auth.NewTokenStore(cfg.Credentials.GetStore())
			if err != nil {
				return err
			}
			secret, err := cfg.Credentials.OAuth2.GetClientSecret()
			if err != nil {
				return err
			}
			oc := cfg.Credentials.OAuth2
			oauthCfg := &oauth2.Config{
				ClientID:     oc.ClientID,
				ClientSecret: secret,
				Endpoint:     oauth2.Endpoint{AuthURL: oc.AuthURL, TokenURL: oc.TokenURL},
				Scopes:       oc.Scopes,
			}

			ctx, cancel := context.WithTimeout(contextOf(cmd), loginTimeout)
			defer cancel()
			tok, err := login(ctx, oauthCfg, browser.OpenURL, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if err := store.Save(ctx, tok); err != nil {
				return fmt.Errorf("failed to store token: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "Signed in")
			return err
		},
	}

	cmd.AddCommand(importCmd, clearCmd, showCmd, loginCmd)
	return cmd
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// tokenStore opens the store named in the configuration, or the default
// file store when no configuration file exists
func tokenStore(v *viper.Viper) (auth.TokenStore, error) {
	path := configPath(v)
	cfg, err := config.LoadConfig(config.WithConfigPath(path))
	if err != nil {
		if v.GetString(flagConfig) == "" && errors.Is(err, os.ErrNotExist) {
			return auth.NewFileTokenStore(config.DefaultTokenPath()), nil
		}
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Credentials == nil {
		return auth.NewFileTokenStore(config.DefaultTokenPath()), nil
	}
	return auth.NewTokenStore(cfg.Credentials.GetStore())
}

func importToken(ctx context.Context, store auth.TokenStore, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var tok oauth2.Token
	if err := json.NewDecoder(in).Decode(&tok); err != nil {
		return fmt.Errorf("failed to parse token: %w", err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return errors.New("token has neither access_token nor refresh_token")
	}
	if err := store.Save(ctx, &tok); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	_, err := fmt.Fprintln(out, "Token stored")
	return err
}

func showToken(ctx context.Context, store auth.TokenStore, out io.Writer) error {
	tok, err := store.Load(ctx)
	if errors.Is(err, auth.ErrTokenNotFound) {
		_, err = fmt.Fprintln(out, "No token stored")
		return err
	}
	if err != nil {
		return err
	}

	expiry := "never"
	if !tok.Expiry.IsZero() {
		expiry = tok.Expiry.Format(time.RFC3339)
	}
	_, err = fmt.Fprintf(out, "Token stored (expires %s, refresh token: %t)\n", expiry, tok.RefreshToken != "")
	return err
}

// login runs the authorization code flow with PKCE against a loopback
// redirect and returns the issued token
func login(
	ctx context.Context,
	cfg *oauth2.Config,
	open func(url string) error,
	out io.Writer,
) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to start callback listener: %w", err)
	}

	redirect := *cfg
	redirect.RedirectURL = fmt.Sprintf("http://%s/callback", ln.Addr())

	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()

	type result struct {
		code string
		err  error
	}
	results := make(chan result, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var res result
		switch {
		case q.Get("state") != state:
			res.err = errors.New("state mismatch in authorization response")
		case q.Get("error") != "":
			res.err = fmt.Errorf("authorization failed: %s", q.Get("error"))
		case q.Get("code") == "":
			res.err = errors.New("authorization response has no code")
		default:
			res.code = q.Get("code")
		}
		if res.err != nil {
			http.Error(w, res.err.Error(), http.StatusBadRequest)
		} else {
			_, _ = fmt.Fprintln(w, "Signed in. You can close this window.")
		}
		select {
		case results <- res:
		default:
		}
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Debug("Callback server failed", "error", err)
		}
	}()
	defer func() { _ = srv.Close() }()

	authURL := redirect.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
	_, _ = fmt.Fprintf(out, "Opening %s\n", authURL)
	if err := open(authURL); err != nil {
		_, _ = fmt.Fprintln(out, "Open the URL above in a browser to continue")
	}

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("sign-in not completed: %w", ctx.Err())
	case res := <-results:
		if res.err != nil {
			return nil, res.err
		}
		tok, err := redirect.Exchange(ctx, res.code, oauth2.VerifierOption(verifier))
		if err != nil {
			return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
		}
		return tok, nil
	}
}
