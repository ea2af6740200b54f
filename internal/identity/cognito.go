package identity

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	ciptypes "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"

	"saasid/pkg/apperr"
	"saasid/pkg/awsx"
	"saasid/pkg/config"
	"saasid/pkg/token"
)

// cognito implements Provisioner on AWS Cognito user pools.
type cognito struct {
	base     aws.Config
	endpoint string
	client   *cip.Client
}

func NewCognito(base aws.Config, cfg config.Config) Provisioner {
	c := &cognito{base: base, endpoint: cfg.AWSEndpointURL}
	c.client = c.newClient(base)
	return c
}

func (c *cognito) newClient(awsCfg aws.Config) *cip.Client {
	return cip.NewFromConfig(awsCfg, func(o *cip.Options) {
		if c.endpoint != "" {
			o.BaseEndpoint = aws.String(c.endpoint)
		}
	})
}

// customAttr builds one custom string attribute of the domain schema.
func customAttr(name string, mutable bool) ciptypes.SchemaAttributeType {
	return ciptypes.SchemaAttributeType{
		Name:                   aws.String(name),
		AttributeDataType:      ciptypes.AttributeDataTypeString,
		DeveloperOnlyAttribute: aws.Bool(false),
		Mutable:                aws.Bool(mutable),
		Required:               aws.Bool(false),
		StringAttributeConstraints: &ciptypes.StringAttributeConstraintsType{
			MinLength: aws.String("1"),
			MaxLength: aws.String("256"),
		},
	}
}

func (c *cognito) CreateDomain(ctx context.Context, tenantID string) (DomainHandle, error) {
	if tenantID == "" {
		return DomainHandle{}, apperr.New(apperr.InvalidArgument, "tenant id is required")
	}
	out, err := c.client.CreateUserPool(ctx, &cip.CreateUserPoolInput{
		PoolName: aws.String(tenantID),
		AdminCreateUserConfig: &ciptypes.AdminCreateUserConfigType{
			AllowAdminCreateUserOnly: true,
		},
		AliasAttributes:        []ciptypes.AliasAttributeType{ciptypes.AliasAttributeTypePhoneNumber},
		AutoVerifiedAttributes: []ciptypes.VerifiedAttributeType{ciptypes.VerifiedAttributeTypeEmail},
		MfaConfiguration:       ciptypes.UserPoolMfaTypeOff,
		Policies: &ciptypes.UserPoolPolicyType{
			PasswordPolicy: &ciptypes.PasswordPolicyType{
				MinimumLength:    aws.Int32(8),
				RequireLowercase: true,
				RequireUppercase: true,
				RequireNumbers:   true,
				RequireSymbols:   false,
			},
		},
		Schema: []ciptypes.SchemaAttributeType{
			customAttr("tenant_id", false),
			customAttr("tier", true),
			{Name: aws.String("email"), Required: aws.Bool(true)},
			customAttr("company_name", true),
			customAttr("role", true),
			customAttr("account_name", true),
		},
	})
	if err != nil {
		return DomainHandle{}, apperr.Wrap(err, apperr.UpstreamFailure, "create user pool")
	}
	pool := out.UserPool
	if pool == nil || pool.Id == nil {
		return DomainHandle{}, apperr.New(apperr.UpstreamFailure, "create user pool returned no pool")
	}
	return DomainHandle{
		ID:   aws.ToString(pool.Id),
		ARN:  aws.ToString(pool.Arn),
		Name: aws.ToString(pool.Name),
	}, nil
}

func (c *cognito) CreateClient(ctx context.Context, domain DomainHandle) (ClientHandle, error) {
	out, err := c.client.CreateUserPoolClient(ctx, &cip.CreateUserPoolClientInput{
		UserPoolId:           aws.String(domain.ID),
		ClientName:           aws.String(domain.Name),
		GenerateSecret:       false,
		RefreshTokenValidity: 0,
		ReadAttributes: []string{
			"email", "family_name", "given_name", "phone_number", "preferred_username",
			"custom:tier", "custom:tenant_id", "custom:company_name", "custom:account_name", "custom:role",
		},
		WriteAttributes: []string{
			"email", "family_name", "given_name", "phone_number", "preferred_username",
			"custom:tier", "custom:role",
		},
		ExplicitAuthFlows: []ciptypes.ExplicitAuthFlowsType{
			ciptypes.ExplicitAuthFlowsTypeAllowAdminUserPasswordAuth,
			ciptypes.ExplicitAuthFlowsTypeAllowCustomAuth,
			ciptypes.ExplicitAuthFlowsTypeAllowRefreshTokenAuth,
			ciptypes.ExplicitAuthFlowsTypeAllowUserSrpAuth,
		},
	})
	if err != nil {
		return ClientHandle{}, apperr.Wrap(err, apperr.UpstreamFailure, "create user pool client")
	}
	cl := out.UserPoolClient
	if cl == nil || cl.ClientId == nil {
		return ClientHandle{}, apperr.New(apperr.UpstreamFailure, "create user pool client returned no client")
	}
	return ClientHandle{ID: aws.ToString(cl.ClientId), Name: aws.ToString(cl.ClientName)}, nil
}

func (c *cognito) CreateIdentity(ctx context.Context, domainID string, attrs Attributes) (Created, error) {
	out, err := c.client.AdminCreateUser(ctx, &cip.AdminCreateUserInput{
		UserPoolId:             aws.String(domainID),
		Username:               aws.String(attrs.UserName),
		DesiredDeliveryMediums: []ciptypes.DeliveryMediumType{ciptypes.DeliveryMediumTypeEmail},
		ForceAliasCreation:     true,
		UserAttributes: []ciptypes.AttributeType{
			{Name: aws.String("email"), Value: aws.String(attrs.Email)},
			{Name: aws.String("custom:tenant_id"), Value: aws.String(attrs.TenantID)},
			{Name: aws.String("given_name"), Value: aws.String(attrs.FirstName)},
			{Name: aws.String("family_name"), Value: aws.String(attrs.LastName)},
			{Name: aws.String("custom:role"), Value: aws.String(attrs.Role)},
			{Name: aws.String("custom:tier"), Value: aws.String(attrs.Tier)},
		},
	})
	if err != nil {
		if isAttributeRejection(err) {
			return Created{}, apperr.Wrap(err, apperr.IdentityCreationFailed, "domain rejected identity attributes")
		}
		return Created{}, apperr.Wrap(err, apperr.UpstreamFailure, "create identity")
	}
	if out.User == nil {
		return Created{}, apperr.New(apperr.UpstreamFailure, "create identity returned no user")
	}
	created := Created{ExternalID: aws.ToString(out.User.Username)}
	for _, a := range out.User.Attributes {
		if aws.ToString(a.Name) == "sub" {
			created.SubjectID = aws.ToString(a.Value)
			break
		}
	}
	return created, nil
}

func (c *cognito) DeleteDomain(ctx context.Context, domainID string) error {
	_, err := c.client.DeleteUserPool(ctx, &cip.DeleteUserPoolInput{UserPoolId: aws.String(domainID)})
	if err != nil {
		var nf *ciptypes.ResourceNotFoundException
		if errors.As(err, &nf) {
			return apperr.Wrap(err, apperr.NotFound, "user pool already absent")
		}
		return apperr.Wrap(err, apperr.UpstreamFailure, "delete user pool")
	}
	return nil
}

func (c *cognito) ListIdentities(ctx context.Context, domainID string, creds *token.Credentials) ([]Summary, error) {
	client := c.client
	if creds != nil {
		client = c.newClient(awsx.WithCredentials(c.base, creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken))
	}
	var (
		users []Summary
		next  *string
	)
	for {
		out, err := client.ListUsers(ctx, &cip.ListUsersInput{
			UserPoolId:      aws.String(domainID),
			PaginationToken: next,
		})
		if err != nil {
			var nf *ciptypes.ResourceNotFoundException
			if errors.As(err, &nf) {
				return nil, apperr.Wrap(err, apperr.NotFound, "user pool not found")
			}
			return nil, apperr.Wrap(err, apperr.UpstreamFailure, "list users")
		}
		for _, u := range out.Users {
			s := Summary{
				UserName: aws.ToString(u.Username),
				Enabled:  u.Enabled,
				Status:   string(u.UserStatus),
			}
			for _, a := range u.Attributes {
				if aws.ToString(a.Name) == "email" {
					s.Email = aws.ToString(a.Value)
					break
				}
			}
			users = append(users, s)
		}
		if out.PaginationToken == nil {
			return users, nil
		}
		next = out.PaginationToken
	}
}

// isAttributeRejection classifies AdminCreateUser failures that stem
// from the attribute set rather than the upstream system.
func isAttributeRejection(err error) bool {
	var invalid *ciptypes.InvalidParameterException
	var exists *ciptypes.UsernameExistsException
	return errors.As(err, &invalid) || errors.As(err, &exists)
}
