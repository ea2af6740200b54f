// Package roles owns the access-control roles a tenant needs: the
// authenticated-session role plus the admin and standard-user roles
// carrying rendered access policies.
package roles

import (
	"context"
	"fmt"

	"saasid/internal/policy"
)

// Handle identifies a provisioned role.
type Handle struct {
	Name string
	ARN  string
}

// Attached-policy names; preserved for cross-service lookups.
const (
	AdminPolicyName = "AdminPolicy"
	UserPolicyName  = "UserPolicy"
)

// Provisioner creates and destroys tenant roles. Role names follow
// {prefix}_{tenantId}_{Auth|Admin|User}Role and are externally visible.
type Provisioner interface {
	// CreateAuthRole creates the role assumable by the broker's
	// authenticated principals; it carries no attached permissions.
	CreateAuthRole(ctx context.Context, tenantID, brokerID string) (Handle, error)
	// CreateAdminRole attaches the rendered admin policy.
	CreateAdminRole(ctx context.Context, tenantID, brokerID, domainARN string, res policy.DataResources) (Handle, error)
	// CreateUserRole attaches the rendered standard-user policy.
	CreateUserRole(ctx context.Context, tenantID, brokerID, domainARN string, res policy.DataResources) (Handle, error)
	// DeleteRole detaches policyName first when given; detach failure is
	// reported but does not abort the role deletion. Absent roles fail
	// with NotFound, which teardown treats as success.
	DeleteRole(ctx context.Context, roleName, policyName string) error
}

// AuthRoleName returns the namespaced authenticated-session role name.
func AuthRoleName(prefix, tenantID string) string {
	return fmt.Sprintf("%s_%s_AuthRole", prefix, tenantID)
}

// AdminRoleName returns the namespaced tenant-admin role name.
func AdminRoleName(prefix, tenantID string) string {
	return fmt.Sprintf("%s_%s_AdminRole", prefix, tenantID)
}

// UserRoleName returns the namespaced standard-user role name.
func UserRoleName(prefix, tenantID string) string {
	return fmt.Sprintf("%s_%s_UserRole", prefix, tenantID)
}
