package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/GlobalTax/Crmcapittal-sub010/internal/config"
)

// resourceMetadata is the RFC 9728 document served at
// /.well-known/oauth-protected-resource
type resourceMetadata struct {
	Resource               string   `json:"resource"`
	ResourceName           string   `json:"resource_name,omitempty"`
	AuthorizationServers   []string `json:"authorization_servers,omitempty"`
	BearerMethodsSupported []string `json:"bearer_methods_supported"`
	ScopesSupported        []string `json:"scopes_supported"`
}

// metadataHandler serves a document rendered once at startup
type metadataHandler struct {
	body []byte
}

// newProtectedResourceHandler renders the metadata of the API. Issuers are
// listed in configuration order with duplicates dropped; providers that only
// verify shared secrets contribute none. Empty scopes fall back to
// config.DefaultScopes.
func newProtectedResourceHandler(resourceURL string, issuers []string, scopes []string) (http.Handler, error) {
	if resourceURL == "" {
		return nil, errors.New("resourceURL is required")
	}

	var servers []string
	for _, iss := range issuers {
		if iss != "" && !slices.Contains(servers, iss) {
			servers = append(servers, iss)
		}
	}
	if len(scopes) == 0 {
		scopes = config.DefaultScopes
	}

	body, err := json.Marshal(resourceMetadata{
		Resource:               resourceURL,
		ResourceName:           "syncd",
		AuthorizationServers:   servers,
		BearerMethodsSupported: []string{"header"},
		ScopesSupported:        slices.Clone(scopes),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode protected resource metadata: %w", err)
	}
	return &metadataHandler{body: body}, nil
}

func (h *metadataHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(h.body)
}
