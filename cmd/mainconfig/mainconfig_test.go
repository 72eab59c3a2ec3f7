package mainconfig

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"

	appconfig "github.com/wolfman30/clinic-ops-platform/internal/config"
)

func TestLoadAWSConfigRequiresConfig(t *testing.T) {
	if _, err := LoadAWSConfig(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestLoadAWSConfigStaticCredentialsAndEndpoint(t *testing.T) {
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	cfg := &appconfig.Config{
		AWSRegion:           "us-west-2",
		AWSAccessKeyID:      "test",
		AWSSecretAccessKey:  "secret",
		AWSEndpointOverride: "http://localhost:4566",
	}

	awsCfg, err := LoadAWSConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if awsCfg.Region != "us-west-2" {
		t.Fatalf("expected region override, got %s", awsCfg.Region)
	}
	if aws.ToString(awsCfg.BaseEndpoint) != "http://localhost:4566" {
		t.Fatalf("expected localstack endpoint, got %v", awsCfg.BaseEndpoint)
	}
	creds, err := awsCfg.Credentials.Retrieve(context.Background())
	if err != nil {
		t.Fatalf("retrieve credentials: %v", err)
	}
	if creds.AccessKeyID != "test" {
		t.Fatalf("expected static credentials, got %s", creds.AccessKeyID)
	}
}
