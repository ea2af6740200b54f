// Package identity owns the tenant authentication domain: an isolated
// user directory with its own attribute schema and password policy,
// plus the client application registered against it.
package identity

import (
	"context"

	"saasid/pkg/token"
)

// DomainHandle identifies a provisioned authentication domain. The
// backing system assigns a fresh id on every create, so the handle (not
// the tenant id) is the domain's identity.
type DomainHandle struct {
	ID   string
	ARN  string
	Name string
}

// ClientHandle identifies an application registration inside a domain.
type ClientHandle struct {
	ID   string
	Name string
}

// Attributes are the identity's directory attributes. Role is
// TENANT_ADMIN or TENANT_USER and drives the broker's role selection.
type Attributes struct {
	TenantID  string
	UserName  string
	Email     string
	FirstName string
	LastName  string
	Role      string
	Tier      string
}

// Created reports the externally assigned identifiers of a new
// identity. SubjectID is the domain's immutable subject identifier.
type Created struct {
	ExternalID string
	SubjectID  string
}

// Summary is a directory listing entry.
type Summary struct {
	UserName string
	Email    string
	Enabled  bool
	Status   string
}

// Provisioner creates and destroys tenant authentication domains.
//
// CreateDomain is NOT idempotent on tenant id: calling it twice creates
// two domains. The orchestrator serializes per-tenant workflows to
// guarantee at-most-once invocation.
type Provisioner interface {
	CreateDomain(ctx context.Context, tenantID string) (DomainHandle, error)
	CreateClient(ctx context.Context, domain DomainHandle) (ClientHandle, error)
	CreateIdentity(ctx context.Context, domainID string, attrs Attributes) (Created, error)
	// DeleteDomain destroys the domain and every identity in it. Absent
	// domains fail with NotFound; teardown treats that as success.
	DeleteDomain(ctx context.Context, domainID string) error
	// ListIdentities enumerates a domain. Non-nil creds run the call
	// under the caller's brokered credentials instead of the system's.
	ListIdentities(ctx context.Context, domainID string, creds *token.Credentials) ([]Summary, error)
}
