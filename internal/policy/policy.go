// Package policy renders the per-tenant access policy documents that
// get attached to the tenant's IAM roles. Documents are built from
// typed statements and serialized only at the boundary, so identifiers
// are never spliced into JSON text and rendering is deterministic:
// identical inputs produce byte-identical documents.
package policy

import (
	"encoding/json"

	"saasid/pkg/apperr"
)

const version = "2012-10-17"

type Document struct {
	Version   string      `json:"Version"`
	Statement []Statement `json:"Statement"`
}

type Statement struct {
	Effect    string            `json:"Effect"`
	Principal map[string]string `json:"Principal,omitempty"`
	Action    []string          `json:"Action"`
	Resource  []string          `json:"Resource,omitempty"`
	Condition Condition         `json:"Condition,omitempty"`
}

// Condition maps operator -> context key -> value(s). Serialization is
// deterministic because encoding/json sorts map keys.
type Condition map[string]map[string]any

// JSON serializes the document for the role store.
func (d Document) JSON() (string, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DataResources are the ARNs of the tenant-shared data tables the
// rendered policies scope down to a single tenant's partition.
type DataResources struct {
	UserTableARN    string
	OrderTableARN   string
	ProductTableARN string
}

var (
	itemReadActions = []string{
		"dynamodb:GetItem",
		"dynamodb:BatchGetItem",
		"dynamodb:Query",
		"dynamodb:DescribeTable",
		"dynamodb:CreateTable",
	}
	itemWriteActions = []string{
		"dynamodb:GetItem",
		"dynamodb:BatchGetItem",
		"dynamodb:Query",
		"dynamodb:PutItem",
		"dynamodb:UpdateItem",
		"dynamodb:DeleteItem",
		"dynamodb:BatchWriteItem",
		"dynamodb:DescribeTable",
		"dynamodb:CreateTable",
	}
	identityAdminActions = []string{
		"cognito-idp:AdminCreateUser",
		"cognito-idp:AdminDeleteUser",
		"cognito-idp:AdminDisableUser",
		"cognito-idp:AdminEnableUser",
		"cognito-idp:AdminGetUser",
		"cognito-idp:ListUsers",
		"cognito-idp:AdminUpdateUserAttributes",
	}
	identityReadActions = []string{
		"cognito-idp:AdminGetUser",
		"cognito-idp:ListUsers",
	}
)

// tenantScoped builds the leading-key condition that keeps a statement
// inside one tenant's partition even when table ARNs are shared.
func tenantScoped(tenantID string) Condition {
	return Condition{
		"ForAllValues:StringEquals": {
			"dynamodb:LeadingKeys": []string{tenantID},
		},
	}
}

// RenderAdminPolicy renders the tenant-admin access policy: read/write
// on all tenant-scoped data resources plus identity administration on
// the tenant's authentication domain.
func RenderAdminPolicy(tenantID, domainARN string, res DataResources) (Document, error) {
	if tenantID == "" {
		return Document{}, apperr.New(apperr.InvalidArgument, "tenant id is required")
	}
	return Document{
		Version: version,
		Statement: []Statement{
			{
				Effect: "Allow",
				Action: itemWriteActions,
				Resource: []string{
					res.UserTableARN,
					res.UserTableARN + "/*",
					res.OrderTableARN,
					res.ProductTableARN,
				},
				Condition: tenantScoped(tenantID),
			},
			{
				Effect:   "Allow",
				Action:   identityAdminActions,
				Resource: []string{domainARN},
			},
		},
	}, nil
}

// RenderUserPolicy renders the standard-user access policy: read-only
// on most data resources, read/write only on the order resource, and
// read-only identity actions.
func RenderUserPolicy(tenantID, domainARN string, res DataResources) (Document, error) {
	if tenantID == "" {
		return Document{}, apperr.New(apperr.InvalidArgument, "tenant id is required")
	}
	return Document{
		Version: version,
		Statement: []Statement{
			{
				Effect: "Allow",
				Action: itemReadActions,
				Resource: []string{
					res.UserTableARN,
					res.UserTableARN + "/*",
					res.ProductTableARN,
				},
				Condition: tenantScoped(tenantID),
			},
			{
				Effect:    "Allow",
				Action:    itemWriteActions,
				Resource:  []string{res.OrderTableARN},
				Condition: tenantScoped(tenantID),
			},
			{
				Effect:   "Allow",
				Action:   identityReadActions,
				Resource: []string{domainARN},
			},
		},
	}, nil
}

// BrokerTrust renders the assume-role trust policy shared by the three
// tenant roles: only principals federated through the tenant's broker,
// and only authenticated ones, may assume them.
func BrokerTrust(brokerID string) Document {
	return Document{
		Version: version,
		Statement: []Statement{
			{
				Effect:    "Allow",
				Principal: map[string]string{"Federated": "cognito-identity.amazonaws.com"},
				Action:    []string{"sts:AssumeRoleWithWebIdentity"},
				Condition: Condition{
					"StringEquals": {
						"cognito-identity.amazonaws.com:aud": brokerID,
					},
					"ForAnyValue:StringLike": {
						"cognito-identity.amazonaws.com:amr": "authenticated",
					},
				},
			},
		},
	}
}
