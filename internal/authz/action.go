package authz

import (
	"net/http"
	"strings"

	"github.com/GlobalTax/Crmcapittal-sub010/internal/config"
)

const (
	ActionRead  = config.ActionRead
	ActionWrite = config.ActionWrite
	ActionAdmin = config.ActionAdmin
)

const sessionsPrefix = "/v1/sessions/"

// RouteAction returns the action required by a request.
//
// Reads (including streams) need read. Engagement events and refreshes
// need write. Reconfiguring or disposing a session needs admin, as does any
// other mutating request.
func RouteAction(method, path string) string {
	switch method {
	case http.MethodGet, http.MethodHead:
		return ActionRead
	case http.MethodPost:
		if path == "/v1/engagement" || isSessionRefresh(path) {
			return ActionWrite
		}
	}
	return ActionAdmin
}

func isSessionRefresh(path string) bool {
	id, rest, ok := strings.Cut(strings.TrimPrefix(path, sessionsPrefix), "/")
	return strings.HasPrefix(path, sessionsPrefix) && ok && id != "" && rest == "refresh"
}

// SessionFromPath returns the session addressed by path, or "" when the
// path is not below /v1/sessions/.
func SessionFromPath(path string) string {
	if !strings.HasPrefix(path, sessionsPrefix) {
		return ""
	}
	id, _, _ := strings.Cut(strings.TrimPrefix(path, sessionsPrefix), "/")
	return id
}
