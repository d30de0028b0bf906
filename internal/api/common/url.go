package common

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/GlobalTax/Crmcapittal-sub010/internal/config"
)

// PathParam returns the URL parameter name, percent-decoded
func PathParam(r *http.Request, name string) (string, error) {
	v, err := url.PathUnescape(chi.URLParam(r, name))
	if err != nil {
		return "", fmt.Errorf("invalid URL encoding in %s", name)
	}
	return v, nil
}

// SessionIDParam returns the session ID in URL parameter name. It must be a
// well formed ID; whether the session exists is for the caller to decide.
func SessionIDParam(r *http.Request, name string) (string, error) {
	id, err := PathParam(r, name)
	if err != nil {
		return "", err
	}
	if err := config.ValidateSessionID(id); err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return id, nil
}
