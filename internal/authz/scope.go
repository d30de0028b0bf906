package authz

import (
	"slices"
	"strings"

	"github.com/GlobalTax/Crmcapittal-sub010/internal/config"
)

// ScopeMap resolves OAuth scopes into the actions they grant. Policies only
// ever see actions, so renaming a scope at the issuer is a configuration
// change.
type ScopeMap struct {
	actions map[string][]string
	scopes  map[string][]string
}

// NewScopeMap indexes entries in both directions
func NewScopeMap(entries []config.ScopeMappingEntry) *ScopeMap {
	m := &ScopeMap{
		actions: make(map[string][]string, len(entries)),
		scopes:  make(map[string][]string),
	}
	for _, e := range entries {
		m.actions[e.Scope] = append(m.actions[e.Scope], e.Actions...)
		for _, a := range e.Actions {
			if !slices.Contains(m.scopes[a], e.Scope) {
				m.scopes[a] = append(m.scopes[a], e.Scope)
			}
		}
	}
	return m
}

// Grant returns the sorted actions granted by scopes
func (m *ScopeMap) Grant(scopes []string) []string {
	var out []string
	for _, s := range scopes {
		out = append(out, m.actions[s]...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// ScopesFor returns the scopes granting action, in configuration order
func (m *ScopeMap) ScopesFor(action string) []string {
	return m.scopes[action]
}

// Scopes reads the scopes of a token. The space separated "scope" claim
// (RFC 8693) takes precedence over "scp", which issuers send either as an
// array or as a string.
func Scopes(claims map[string]any) []string {
	if s, ok := claims["scope"].(string); ok && s != "" {
		return strings.Fields(s)
	}

	switch scp := claims["scp"].(type) {
	case string:
		return strings.Fields(scp)
	case []string:
		return scp
	case []any:
		out := make([]string, 0, len(scp))
		for _, v := range scp {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
