// Package authz authorizes API requests by evaluating Cedar policies against
// the actions granted to the caller's token scopes.
package authz

import "context"

// Authorizer decides whether a caller may perform an action
type Authorizer interface {
	Authorize(ctx context.Context, req Request) (Decision, error)
}

// Request is one authorization question
type Request struct {
	// Subject and Provider identify the caller; both may be empty
	Subject  string
	Provider string

	// GrantedActions come from the caller's scopes
	GrantedActions []string

	// Action is read, write or admin
	Action string

	// SessionID is empty for requests that address no single session
	SessionID string
}

// Decision is the answer to a Request
type Decision struct {
	Allowed bool

	// Reasons are the IDs of the determining policies
	Reasons []string
}
