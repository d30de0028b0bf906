package authz

import (
	"context"
	"fmt"
	"log/slog"

	cedar "github.com/cedar-policy/cedar-go"
)

// Entity types of the Syncd namespace
const (
	clientType  = cedar.EntityType("Syncd::Client")
	actionType  = cedar.EntityType("Syncd::Action")
	sessionType = cedar.EntityType("Syncd::Session")

	// allSessions is the resource of requests that address no single session
	allSessions = "*"
	anonymous   = "anonymous"
)

// CedarAuthorizer evaluates requests against a Cedar policy set.
//
// The principal is Syncd::Client::"<subject>" with the attributes
// grantedActions (set of strings) and provider. The resource is
// Syncd::Session::"<id>", or Syncd::Session::"*" for listing and engagement
// requests.
type CedarAuthorizer struct {
	policies *cedar.PolicySet
}

// NewCedarAuthorizer parses policies, or uses the built-in ones when nil
func NewCedarAuthorizer(policies []byte) (*CedarAuthorizer, error) {
	if policies == nil {
		policies = []byte(defaultPolicies)
	}
	ps, err := cedar.NewPolicySetFromBytes("policies.cedar", policies)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Cedar policies: %w", err)
	}
	return &CedarAuthorizer{policies: ps}, nil
}

// Authorize implements Authorizer. Evaluation never fails; errors of
// individual policies count as not applying.
func (a *CedarAuthorizer) Authorize(_ context.Context, req Request) (Decision, error) {
	principal, entities := principalEntity(req)

	resource := req.SessionID
	if resource == "" {
		resource = allSessions
	}

	decision, diag := cedar.Authorize(a.policies, entities, cedar.Request{
		Principal: principal,
		Action:    cedar.NewEntityUID(actionType, cedar.String(req.Action)),
		Resource:  cedar.NewEntityUID(sessionType, cedar.String(resource)),
		Context:   cedar.NewRecord(cedar.RecordMap{}),
	})

	reasons := make([]string, 0, len(diag.Reasons))
	for _, r := range diag.Reasons {
		reasons = append(reasons, string(r.PolicyID))
	}
	for _, e := range diag.Errors {
		slog.Warn("Cedar policy evaluation error", "policy", e.PolicyID, "error", e.Message)
	}

	slog.Debug("Authorization decision",
		"subject", req.Subject, "action", req.Action, "session", resource,
		"granted_actions", req.GrantedActions, "decision", decision)

	return Decision{Allowed: decision == cedar.Allow, Reasons: reasons}, nil
}

func principalEntity(req Request) (cedar.EntityUID, cedar.EntityMap) {
	subject := req.Subject
	if subject == "" {
		subject = anonymous
	}
	uid := cedar.NewEntityUID(clientType, cedar.String(subject))

	granted := make([]cedar.Value, 0, len(req.GrantedActions))
	for _, a := range req.GrantedActions {
		granted = append(granted, cedar.String(a))
	}

	return uid, cedar.EntityMap{
		uid: cedar.Entity{
			UID: uid,
			Attributes: cedar.NewRecord(cedar.RecordMap{
				"grantedActions": cedar.NewSet(granted...),
				"provider":       cedar.String(req.Provider),
			}),
		},
	}
}
