// Package userstore persists the tenant-scoped user records binding a
// human identity to the provisioned infrastructure. Records are keyed
// by (tenantId, id) with a secondary lookup index on id alone for
// system-context lookups that do not yet know the tenant.
package userstore

import (
	"context"

	"saasid/internal/policy"
)

// Record is the durable user row. The subject id is populated only
// after the identity exists in the authentication domain, making
// record creation a two-phase write: Put first, SetSub once known.
type Record struct {
	TenantID    string `json:"tenantId" dynamodbav:"tenantId"`
	ID          string `json:"id" dynamodbav:"id"`
	UserName    string `json:"userName" dynamodbav:"userName"`
	Email       string `json:"email" dynamodbav:"email"`
	FirstName   string `json:"firstName" dynamodbav:"firstName"`
	LastName    string `json:"lastName" dynamodbav:"lastName"`
	Role        string `json:"role" dynamodbav:"role"`
	Tier        string `json:"tier" dynamodbav:"tier"`
	CompanyName string `json:"companyName,omitempty" dynamodbav:"companyName,omitempty"`
	AccountName string `json:"accountName,omitempty" dynamodbav:"accountName,omitempty"`
	OwnerName   string `json:"ownerName,omitempty" dynamodbav:"ownerName,omitempty"`

	// Tenant Identity Bundle.
	AuthDomainID string `json:"userPoolId" dynamodbav:"userPoolId"`
	ClientID     string `json:"clientId" dynamodbav:"clientId"`
	BrokerID     string `json:"identityPoolId" dynamodbav:"identityPoolId"`

	Sub string `json:"sub,omitempty" dynamodbav:"sub,omitempty"`
}

// Store owns all reads and writes of user records. The orchestrator
// never mutates a record after creation except through SetSub and
// PurgeTenant.
type Store interface {
	Put(ctx context.Context, rec Record) error
	SetSub(ctx context.Context, tenantID, id, sub string) error
	// Get fails with NotFound when the record is absent.
	Get(ctx context.Context, tenantID, id string) (Record, error)
	// LookupByID resolves a record through the secondary index; the
	// second return is false when no record exists.
	LookupByID(ctx context.Context, id string) (Record, bool, error)
	// PurgeTenant removes every record for the tenant and returns the
	// number deleted. Purging an unknown tenant is a no-op.
	PurgeTenant(ctx context.Context, tenantID string) (int, error)
	// DescribeDataResources resolves the data-table identifiers the
	// policy templates scope to. Read-only; safe for unbounded
	// concurrent callers.
	DescribeDataResources(ctx context.Context) (policy.DataResources, error)
}
