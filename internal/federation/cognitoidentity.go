package federation

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	ci "github.com/aws/aws-sdk-go-v2/service/cognitoidentity"
	citypes "github.com/aws/aws-sdk-go-v2/service/cognitoidentity/types"

	"saasid/internal/identity"
	"saasid/pkg/apperr"
	"saasid/pkg/config"
)

const (
	roleClaim      = "custom:role"
	adminRoleValue = "TENANT_ADMIN"
	userRoleValue  = "TENANT_USER"
)

// cognitoIdentity implements Provisioner on AWS Cognito identity pools.
type cognitoIdentity struct {
	client *ci.Client
	region string
}

func NewCognitoIdentity(base aws.Config, cfg config.Config) Provisioner {
	client := ci.NewFromConfig(base, func(o *ci.Options) {
		if cfg.AWSEndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
		}
	})
	return &cognitoIdentity{client: client, region: cfg.AWSRegion}
}

// providerName is the broker's view of the authentication domain.
func (f *cognitoIdentity) providerName(domainID string) string {
	return fmt.Sprintf("cognito-idp.%s.amazonaws.com/%s", f.region, domainID)
}

func (f *cognitoIdentity) CreateBroker(ctx context.Context, domain identity.DomainHandle, client identity.ClientHandle) (BrokerHandle, error) {
	out, err := f.client.CreateIdentityPool(ctx, &ci.CreateIdentityPoolInput{
		IdentityPoolName:               aws.String(client.Name),
		AllowUnauthenticatedIdentities: false,
		CognitoIdentityProviders: []citypes.CognitoIdentityProvider{
			{
				ClientId:             aws.String(client.ID),
				ProviderName:         aws.String(f.providerName(domain.ID)),
				ServerSideTokenCheck: aws.Bool(true),
			},
		},
	})
	if err != nil {
		return BrokerHandle{}, apperr.Wrap(err, apperr.UpstreamFailure, "create identity pool")
	}
	if out.IdentityPoolId == nil {
		return BrokerHandle{}, apperr.New(apperr.UpstreamFailure, "create identity pool returned no id")
	}
	return BrokerHandle{ID: aws.ToString(out.IdentityPoolId)}, nil
}

func (f *cognitoIdentity) SetRoleSelectionRules(ctx context.Context, domain identity.DomainHandle, client identity.ClientHandle, broker BrokerHandle, roles RoleRefs) error {
	provider := f.providerName(domain.ID) + ":" + client.ID
	_, err := f.client.SetIdentityPoolRoles(ctx, &ci.SetIdentityPoolRolesInput{
		IdentityPoolId: aws.String(broker.ID),
		Roles: map[string]string{
			"authenticated": roles.AuthRoleARN,
		},
		RoleMappings: map[string]citypes.RoleMapping{
			provider: {
				Type: citypes.RoleMappingTypeRules,
				// Neither-or-both matches deny. Mapping a default role here
				// would hand unknown role claims a working credential set.
				AmbiguousRoleResolution: citypes.AmbiguousRoleResolutionTypeDeny,
				RulesConfiguration: &citypes.RulesConfigurationType{
					Rules: []citypes.MappingRule{
						{
							Claim:     aws.String(roleClaim),
							MatchType: citypes.MappingRuleMatchTypeEquals,
							RoleARN:   aws.String(roles.AdminRoleARN),
							Value:     aws.String(adminRoleValue),
						},
						{
							Claim:     aws.String(roleClaim),
							MatchType: citypes.MappingRuleMatchTypeEquals,
							RoleARN:   aws.String(roles.UserRoleARN),
							Value:     aws.String(userRoleValue),
						},
					},
				},
			},
		},
	})
	if err != nil {
		return apperr.Wrap(err, apperr.UpstreamFailure, "set identity pool roles")
	}
	return nil
}

func (f *cognitoIdentity) DeleteBroker(ctx context.Context, brokerID string) error {
	_, err := f.client.DeleteIdentityPool(ctx, &ci.DeleteIdentityPoolInput{IdentityPoolId: aws.String(brokerID)})
	if err != nil {
		var nf *citypes.ResourceNotFoundException
		if errors.As(err, &nf) {
			return apperr.Wrap(err, apperr.NotFound, "identity pool already absent")
		}
		return apperr.Wrap(err, apperr.UpstreamFailure, "delete identity pool")
	}
	return nil
}
