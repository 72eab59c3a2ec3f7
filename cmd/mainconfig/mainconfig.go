// Package mainconfig holds wiring shared by the api and outbox-worker binaries.
package mainconfig

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	appconfig "github.com/wolfman30/clinic-ops-platform/internal/config"
)

// LoadAWSConfig builds the SDK config for SQS and SES. Static keys win over the
// default chain, and AWS_ENDPOINT_OVERRIDE points every client at LocalStack.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	if cfg == nil {
		return aws.Config{}, fmt.Errorf("mainconfig: config is required")
	}
	loaders := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	if key, secret := strings.TrimSpace(cfg.AWSAccessKeyID), strings.TrimSpace(cfg.AWSSecretAccessKey); key != "" && secret != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(key, secret, ""),
		))
	}
	if endpoint := strings.TrimSpace(cfg.AWSEndpointOverride); endpoint != "" {
		loaders = append(loaders, config.WithBaseEndpoint(endpoint))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("mainconfig: load aws config: %w", err)
	}
	return awsCfg, nil
}
