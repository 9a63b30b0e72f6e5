package config

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/fpang/qr-checkin/internal/validation"
	"github.com/rs/zerolog/log"
)

// ParameterGetter is the subset of the SSM client used here.
type ParameterGetter interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// LoadAWS loads the default AWS config (environment, shared profile, IMDS).
func LoadAWS(ctx context.Context) (aws.Config, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return cfg, nil
}

// ResolveSSM replaces APIURL with the value of the SSM parameter named by
// APIURLSSMParam, unless the URL was given explicitly by flag or env.
// With no parameter configured it does nothing.
func (c *Config) ResolveSSM(ctx context.Context, client ParameterGetter) error {
	if c.APIURLSSMParam == "" || c.Source == "flag" || c.Source == "env" {
		return nil
	}

	ssmStart := time.Now()
	result, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(c.APIURLSSMParam),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("read %s from SSM: %w", c.APIURLSSMParam, err)
	}
	if result.Parameter == nil || aws.ToString(result.Parameter.Value) == "" {
		return fmt.Errorf("SSM parameter %s is empty", c.APIURLSSMParam)
	}

	resolved := *c
	resolved.APIURL = aws.ToString(result.Parameter.Value)
	if err := validation.Struct(resolved); err != nil {
		return fmt.Errorf("SSM parameter %s: %w", c.APIURLSSMParam, err)
	}
	c.APIURL = resolved.APIURL
	c.Source = "ssm"

	log.Debug().Str("param", c.APIURLSSMParam).Dur("elapsed", time.Since(ssmStart)).Msg("API URL loaded from SSM")
	return nil
}

// NewSSMClient builds an SSM client from cfg.
func NewSSMClient(cfg aws.Config) *ssm.Client {
	return ssm.NewFromConfig(cfg)
}
