// Package awsx centralizes AWS SDK client configuration so every
// capability (identity domain, federated broker, role store, record
// tables) is constructed the same way: one region, one optional
// endpoint override for LocalStack-style development. Per-service
// constructors apply the endpoint via their own functional options.
package awsx

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"saasid/pkg/config"
)

// Load builds the process-wide AWS config from the service config.
func Load(ctx context.Context, cfg config.Config) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

// WithCredentials returns a copy of base using short-lived credentials
// obtained from the credential broker (tenant-scoped calls run under
// the caller's own access policy, not the system role).
func WithCredentials(base aws.Config, accessKeyID, secretAccessKey, sessionToken string) aws.Config {
	out := base.Copy()
	out.Credentials = credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, sessionToken)
	return out
}
