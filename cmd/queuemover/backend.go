package main

import (
	"context"

	"github.com/udhos/queuemover/awsconfig"
	"github.com/udhos/queuemover/cmd/queuemover/zlog"
	"github.com/udhos/queuemover/queue"
)

// newQueueClient creates the client for the configured backend.
// The returned close function releases backend connections.
func newQueueClient(ctx context.Context, app *application) (queue.Client, func(), error) {
	c := app.config

	switch c.queueBackend {
	case backendRedis:
		zlog.Infof("queue backend redis: addr=%s key=%s visibility_timeout=%v",
			c.redisAddr, c.redisKey, c.redisVisibilityTimeout)
		r := queue.NewRedis(queue.RedisOptions{
			Addr:                  c.redisAddr,
			Password:              c.redisPassword,
			Key:                   c.redisKey,
			TLS:                   c.redisTLS,
			TLSInsecureSkipVerify: c.redisTLSInsecureSkipVerify,
			ClientName:            app.me,
			VisibilityTimeout:     c.redisVisibilityTimeout,
		})
		closer := func() {
			if err := r.Close(); err != nil {
				zlog.Errorf("redis close: %v", err)
			}
		}
		return r, closer, nil
	}

	region, errRegion := c.region()
	if errRegion != nil {
		return nil, nil, errRegion
	}

	zlog.Infof("queue backend sqs: region=%s role=%s", region, c.queueRoleARN)

	cfg, errConfig := awsconfig.AwsConfig(ctx, awsconfig.Options{
		Region:          region,
		AccessKeyID:     c.awsAccessKeyID,
		SecretAccessKey: c.awsSecretAccessKey,
		RoleArn:         c.queueRoleARN,
		RoleExternalID:  c.queueRoleExternalID,
		RoleSessionName: app.me,
		Logger:          zlog.Logger,
		Trace:           app.tracing != nil,
	})
	if errConfig != nil {
		return nil, nil, errConfig
	}

	return queue.NewSQSFromConfig(cfg), func() {}, nil
}
