package aws

import (
	"context"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"

	appconfig "github.com/imrishuroy/go-orderflow-loyalty/internal/config"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/errs"
)

const defaultRegion = "us-east-1"

// LoadAWSConfig loads the shared SDK config for the configured region.
// The endpoint override (localstack, dynamodb-local) is applied per client in NewAWSClients.
func LoadAWSConfig(ctx context.Context, cfg appconfig.AWSConfig) (sdkaws.Config, error) {
	region := cfg.Region
	if region == "" {
		region = defaultRegion // default fallback
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
	)
	if err != nil {
		return awsCfg, errs.Wrap(err, "failed to load AWS config")
	}

	return awsCfg, nil
}
