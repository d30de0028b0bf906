package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCedarAuthorizer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		policyBytes []byte
		wantErr     string
	}{
		{name: "nil bytes uses default policies"},
		{name: "empty bytes creates authorizer with no policies", policyBytes: []byte("")},
		{
			name:        "invalid policy bytes returns error",
			policyBytes: []byte("this is not a valid cedar policy!!!"),
			wantErr:     "failed to parse Cedar policies",
		},
		{
			name: "valid custom policy",
			policyBytes: []byte(`permit(
				principal,
				action == Syncd::Action::"read",
				resource
			);`),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			authorizer, err := NewCedarAuthorizer(tt.policyBytes)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				assert.Nil(t, authorizer)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, authorizer)
			assert.NotNil(t, authorizer.policies)
		})
	}
}

func TestCedarAuthorizer_DefaultPolicies(t *testing.T) {
	t.Parallel()

	authorizer, err := NewCedarAuthorizer(nil)
	require.NoError(t, err)

	tests := []struct {
		name    string
		granted []string
		action  string
		allowed bool
	}{
		{name: "read granted", granted: []string{ActionRead}, action: ActionRead, allowed: true},
		{name: "write denied with read only", granted: []string{ActionRead}, action: ActionWrite, allowed: false},
		{name: "write granted", granted: []string{ActionRead, ActionWrite}, action: ActionWrite, allowed: true},
		{name: "admin denied without admin", granted: []string{ActionRead, ActionWrite}, action: ActionAdmin, allowed: false},
		{name: "admin granted", granted: []string{ActionAdmin}, action: ActionAdmin, allowed: true},
		{name: "nothing granted", granted: nil, action: ActionRead, allowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			decision, err := authorizer.Authorize(context.Background(), Request{
				GrantedActions: tt.granted,
				Action:         tt.action,
				SessionID:      "deals",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, decision.Allowed)
			if tt.allowed {
				assert.NotEmpty(t, decision.Reasons)
			}
		})
	}
}

func TestCedarAuthorizer_SessionPolicies(t *testing.T) {
	t.Parallel()

	// admins of the deals session only
	authorizer, err := NewCedarAuthorizer([]byte(`
permit(
  principal,
  action,
  resource == Syncd::Session::"deals"
) when {
  principal.grantedActions.contains("admin")
};

permit(
  principal,
  action == Syncd::Action::"read",
  resource
);
`))
	require.NoError(t, err)

	ctx := context.Background()
	admin := []string{ActionAdmin}

	decision, err := authorizer.Authorize(ctx, Request{GrantedActions: admin, Action: ActionAdmin, SessionID: "deals"})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	decision, err = authorizer.Authorize(ctx, Request{GrantedActions: admin, Action: ActionAdmin, SessionID: "tasks"})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	decision, err = authorizer.Authorize(ctx, Request{Action: ActionRead})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestCedarAuthorizer_Principal(t *testing.T) {
	t.Parallel()

	authorizer, err := NewCedarAuthorizer([]byte(`
permit(principal == Syncd::Client::"ops-bot", action, resource == Syncd::Session::"*");

permit(principal, action == Syncd::Action::"read", resource)
when { principal.provider == "sso" };
`))
	require.NoError(t, err)
	ctx := context.Background()

	decision, err := authorizer.Authorize(ctx, Request{Subject: "ops-bot", Action: ActionWrite})
	require.NoError(t, err)
	assert.True(t, decision.Allowed, "engagement addresses every session")

	decision, err = authorizer.Authorize(ctx, Request{Subject: "ops-bot", Action: ActionWrite, SessionID: "deals"})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	decision, err = authorizer.Authorize(ctx, Request{Subject: "alice", Provider: "sso", Action: ActionRead, SessionID: "deals"})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	decision, err = authorizer.Authorize(ctx, Request{Provider: "dashboard", Action: ActionRead})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}
