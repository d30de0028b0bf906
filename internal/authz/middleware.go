package authz

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/GlobalTax/Crmcapittal-sub010/internal/api/common"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/auth"
)

// ForbiddenResponse is the body of a denied request
type ForbiddenResponse struct {
	Error   string           `json:"error"`
	Details *ForbiddenDetail `json:"details,omitempty"`
}

// ForbiddenDetail names the action the request needed and the scopes that
// would have granted it
type ForbiddenDetail struct {
	RequiredAction string   `json:"required_action"`
	UserScopes     []string `json:"user_scopes"`
	Hint           string   `json:"hint"`
}

// Middleware authorizes authenticated requests and must run after the auth
// middleware. Requests without a principal, in anonymous mode or on public
// paths, are not checked.
func Middleware(authorizer Authorizer, scopes *ScopeMap) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			held := Scopes(p.Claims)
			req := Request{
				Subject:        p.Subject,
				Provider:       p.Provider,
				GrantedActions: scopes.Grant(held),
				Action:         RouteAction(r.Method, r.URL.Path),
				SessionID:      SessionFromPath(r.URL.Path),
			}
			log := slog.With("subject", p.Subject, "action", req.Action, "method", r.Method, "path", r.URL.Path)

			decision, err := authorizer.Authorize(r.Context(), req)
			if err != nil {
				log.Error("Authorization evaluation failed", "error", err)
				common.WriteErrorResponse(w, "authorization evaluation failed", http.StatusInternalServerError)
				return
			}
			if decision.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			log.Warn("Authorization denied", "scopes", held, "granted_actions", req.GrantedActions)
			common.WriteJSONResponse(w, ForbiddenResponse{
				Error: "forbidden",
				Details: &ForbiddenDetail{
					RequiredAction: req.Action,
					UserScopes:     held,
					Hint:           hint(scopes.ScopesFor(req.Action)),
				},
			}, http.StatusForbidden)
		})
	}
}

func hint(granting []string) string {
	if len(granting) == 0 {
		return "No configured scopes grant the required action."
	}
	return "This operation requires one of the following scopes: " + strings.Join(granting, ", ")
}
