// Package federation owns the federated-identity broker: the component
// that exchanges verified domain tokens for short-lived credential sets
// and selects the caller's role through claim-matching rules.
package federation

import (
	"context"

	"saasid/internal/identity"
)

// BrokerHandle identifies a provisioned broker.
type BrokerHandle struct {
	ID string
}

// RoleRefs are the role ARNs wired into the broker's selection rules.
type RoleRefs struct {
	AuthRoleARN  string
	AdminRoleARN string
	UserRoleARN  string
}

// Provisioner creates and destroys federated-identity brokers.
type Provisioner interface {
	// CreateBroker trusts exactly one (domain, client) pair, with
	// unauthenticated identities disallowed and server-side token
	// verification enabled.
	CreateBroker(ctx context.Context, domain identity.DomainHandle, client identity.ClientHandle) (BrokerHandle, error)
	// SetRoleSelectionRules installs {authenticated: auth role} plus the
	// claim rules selecting the admin and user roles. A role claim that
	// matches neither rule resolves to denial, never to a default role.
	SetRoleSelectionRules(ctx context.Context, domain identity.DomainHandle, client identity.ClientHandle, broker BrokerHandle, roles RoleRefs) error
	// DeleteBroker is idempotent at the orchestrator level: absent
	// brokers fail with NotFound, which teardown treats as success.
	DeleteBroker(ctx context.Context, brokerID string) error
}
