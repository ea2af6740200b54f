package roles

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"go.uber.org/zap"

	"saasid/internal/policy"
	"saasid/pkg/apperr"
	"saasid/pkg/config"
)

// iamProvisioner implements Provisioner on AWS IAM.
type iamProvisioner struct {
	client *iam.Client
	prefix string
	log    *zap.SugaredLogger
}

func NewIAM(base aws.Config, cfg config.Config, log *zap.SugaredLogger) Provisioner {
	client := iam.NewFromConfig(base, func(o *iam.Options) {
		if cfg.AWSEndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
		}
	})
	return &iamProvisioner{client: client, prefix: cfg.RolePrefix, log: log}
}

func (p *iamProvisioner) createRole(ctx context.Context, roleName, brokerID string) (Handle, error) {
	trust, err := policy.BrokerTrust(brokerID).JSON()
	if err != nil {
		return Handle{}, apperr.Wrap(err, apperr.UpstreamFailure, "render trust policy")
	}
	out, err := p.client.CreateRole(ctx, &iam.CreateRoleInput{
		RoleName:                 aws.String(roleName),
		AssumeRolePolicyDocument: aws.String(trust),
	})
	if err != nil {
		return Handle{}, apperr.Wrap(err, apperr.UpstreamFailure, "create role "+roleName)
	}
	return Handle{Name: aws.ToString(out.Role.RoleName), ARN: aws.ToString(out.Role.Arn)}, nil
}

func (p *iamProvisioner) attachPolicy(ctx context.Context, roleName, policyName string, doc policy.Document) error {
	raw, err := doc.JSON()
	if err != nil {
		return apperr.Wrap(err, apperr.UpstreamFailure, "render "+policyName)
	}
	_, err = p.client.PutRolePolicy(ctx, &iam.PutRolePolicyInput{
		RoleName:       aws.String(roleName),
		PolicyName:     aws.String(policyName),
		PolicyDocument: aws.String(raw),
	})
	if err != nil {
		return apperr.Wrap(err, apperr.UpstreamFailure, "attach "+policyName)
	}
	return nil
}

func (p *iamProvisioner) CreateAuthRole(ctx context.Context, tenantID, brokerID string) (Handle, error) {
	return p.createRole(ctx, AuthRoleName(p.prefix, tenantID), brokerID)
}

func (p *iamProvisioner) CreateAdminRole(ctx context.Context, tenantID, brokerID, domainARN string, res policy.DataResources) (Handle, error) {
	doc, err := policy.RenderAdminPolicy(tenantID, domainARN, res)
	if err != nil {
		return Handle{}, err
	}
	role, err := p.createRole(ctx, AdminRoleName(p.prefix, tenantID), brokerID)
	if err != nil {
		return Handle{}, err
	}
	if err := p.attachPolicy(ctx, role.Name, AdminPolicyName, doc); err != nil {
		return Handle{}, err
	}
	return role, nil
}

func (p *iamProvisioner) CreateUserRole(ctx context.Context, tenantID, brokerID, domainARN string, res policy.DataResources) (Handle, error) {
	doc, err := policy.RenderUserPolicy(tenantID, domainARN, res)
	if err != nil {
		return Handle{}, err
	}
	role, err := p.createRole(ctx, UserRoleName(p.prefix, tenantID), brokerID)
	if err != nil {
		return Handle{}, err
	}
	if err := p.attachPolicy(ctx, role.Name, UserPolicyName, doc); err != nil {
		return Handle{}, err
	}
	return role, nil
}

func (p *iamProvisioner) DeleteRole(ctx context.Context, roleName, policyName string) error {
	if policyName != "" {
		_, err := p.client.DeleteRolePolicy(ctx, &iam.DeleteRolePolicyInput{
			RoleName:   aws.String(roleName),
			PolicyName: aws.String(policyName),
		})
		if err != nil && !isNoSuchEntity(err) {
			// Best effort: an attached policy we cannot detach should not
			// leave the role itself behind.
			p.log.Warnw("detach role policy", "role", roleName, "policy", policyName, "err", err)
		}
	}
	_, err := p.client.DeleteRole(ctx, &iam.DeleteRoleInput{RoleName: aws.String(roleName)})
	if err != nil {
		if isNoSuchEntity(err) {
			return apperr.Wrap(err, apperr.NotFound, "role already absent")
		}
		return apperr.Wrap(err, apperr.UpstreamFailure, "delete role "+roleName)
	}
	return nil
}

func isNoSuchEntity(err error) bool {
	var nse *iamtypes.NoSuchEntityException
	return errors.As(err, &nse)
}
