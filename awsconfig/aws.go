// Package awsconfig creates aws.Config.
package awsconfig

import (
	"context"
	"errors"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Options define how credentials are obtained.
// When AccessKeyID and SecretAccessKey are empty, the SDK default
// credential chain is used.
type Options struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	RoleArn         string // optional AssumeRole
	RoleExternalID  string
	RoleSessionName string
	Logger          *zap.Logger
	Trace           bool // wrap the SDK http client with otelhttp
}

// ErrMissingRegion is returned when Options.Region is empty.
var ErrMissingRegion = errors.New("awsconfig: missing region")

// AwsConfig creates one aws.Config.
// It logs the caller identity but does not fail if it cannot be retrieved.
func AwsConfig(ctx context.Context, opt Options) (aws.Config, error) {
	const me = "AwsConfig"

	if opt.Region == "" {
		return aws.Config{}, ErrMissingRegion
	}

	logger := opt.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	loadOptions := []func(*config.LoadOptions) error{
		config.WithRegion(opt.Region),
	}

	if opt.AccessKeyID != "" || opt.SecretAccessKey != "" {
		logger.Info(me+": using static credentials",
			zap.String("access_key_id", opt.AccessKeyID))
		loadOptions = append(loadOptions, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opt.AccessKeyID, opt.SecretAccessKey, "")))
	}

	if opt.Trace {
		loadOptions = append(loadOptions, config.WithHTTPClient(&http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}))
	}

	cfg, errConfig := config.LoadDefaultConfig(ctx, loadOptions...)
	if errConfig != nil {
		return cfg, errConfig
	}

	if opt.RoleArn != "" {
		//
		// AssumeRole
		//
		logger.Info(me+": AssumeRole", zap.String("role_arn", opt.RoleArn))
		clientSts := sts.NewFromConfig(cfg)
		cfg.Credentials = aws.NewCredentialsCache(
			stscreds.NewAssumeRoleProvider(
				clientSts,
				opt.RoleArn,
				func(o *stscreds.AssumeRoleOptions) {
					o.RoleSessionName = opt.RoleSessionName
					if opt.RoleExternalID != "" {
						o.ExternalID = aws.String(opt.RoleExternalID)
					}
				},
			),
		)
	}

	{
		// show caller identity
		clientSts := sts.NewFromConfig(cfg)
		respSts, errSts := clientSts.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
		if errSts != nil {
			logger.Error(me+": GetCallerIdentity", zap.Error(errSts))
		} else {
			logger.Info(me+": GetCallerIdentity",
				zap.String("account", aws.ToString(respSts.Account)),
				zap.String("arn", aws.ToString(respSts.Arn)),
				zap.String("user_id", aws.ToString(respSts.UserId)))
		}
	}

	return cfg, nil
}
