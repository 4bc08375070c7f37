package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"golang.org/x/time/rate"
)

// Settings selects the account, region and request budget for EC2 calls.
type Settings struct {
	Region string
	// AccessKeyID and SecretAccessKey, when both set, replace the default
	// credential chain.
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	// RoleARN, when set, is assumed on top of the base credentials.
	RoleARN    string
	ExternalID string
	// RequestsPerSecond limits EC2 calls; zero means unlimited.
	RequestsPerSecond float64
	Burst             int
}

// LoadConfig builds an aws.Config from settings. Authentication falls back
// to the default AWS credential chain (env vars, shared config, instance
// profile).
func LoadConfig(ctx context.Context, s Settings) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if s.Region != "" {
		opts = append(opts, config.WithRegion(s.Region))
	}
	if s.AccessKeyID != "" && s.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.AccessKeyID, s.SecretAccessKey, s.SessionToken),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}

	if s.RoleARN != "" {
		var roleOpts []func(*stscreds.AssumeRoleOptions)
		if s.ExternalID != "" {
			externalID := s.ExternalID
			roleOpts = append(roleOpts, func(o *stscreds.AssumeRoleOptions) {
				o.ExternalID = &externalID
			})
		}
		provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(cfg), s.RoleARN, roleOpts...)
		cfg.Credentials = aws.NewCredentialsCache(provider)
	}
	return cfg, nil
}

// Limiter returns the client-side limiter described by settings.
func (s Settings) Limiter() *rate.Limiter {
	if s.RequestsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := s.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(s.RequestsPerSecond), burst)
}

// NewFromSettings loads AWS configuration and returns a Provisioner backed by
// a real EC2 client.
func NewFromSettings(ctx context.Context, s Settings, opts ...Option) (*Provisioner, error) {
	cfg, err := LoadConfig(ctx, s)
	if err != nil {
		return nil, err
	}
	opts = append([]Option{WithLimiter(s.Limiter())}, opts...)
	return New(ec2.NewFromConfig(cfg), opts...), nil
}
