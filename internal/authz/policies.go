package authz

// defaultPolicies allow each action to the clients granted it. Session
// specific rules are left to a policy file.
const defaultPolicies = `
permit(principal, action == Syncd::Action::"read", resource)
when { principal.grantedActions.contains("read") };

permit(principal, action == Syncd::Action::"write", resource)
when { principal.grantedActions.contains("write") };

permit(principal, action == Syncd::Action::"admin", resource)
when { principal.grantedActions.contains("admin") };
`
