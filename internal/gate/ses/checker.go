// Package ses answers account-level sending status queries against AWS SES.
package ses

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
)

// Config holds the SES client settings.
type Config struct {
	// Region is the AWS region to query, normally taken from the first
	// relay credential.
	Region string

	// AccessKey and SecretKey are optional static credentials. When empty
	// the SDK's default credential chain is used.
	AccessKey string
	SecretKey string
}

// Checker queries whether the SES account is currently allowed to send.
type Checker struct {
	client *ses.Client
	region string
}

// NewChecker creates a checker for the given region.
func NewChecker(ctx context.Context, cfg Config) (*Checker, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("ses checker: region is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &Checker{
		client: ses.NewFromConfig(awsCfg),
		region: cfg.Region,
	}, nil
}

// Region returns the region the checker queries.
func (c *Checker) Region() string {
	return c.region
}

// SendingEnabled reports whether SES currently allows the account to send.
func (c *Checker) SendingEnabled(ctx context.Context) (bool, error) {
	out, err := c.client.GetAccountSendingEnabled(ctx, &ses.GetAccountSendingEnabledInput{})
	if err != nil {
		return false, fmt.Errorf("getting account sending status: %w", err)
	}
	return out.Enabled, nil
}
