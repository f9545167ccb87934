package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/udhos/queuemover/env"
	"github.com/udhos/queuemover/mover"
	"github.com/udhos/queuemover/queue"
)

const (
	backendSQS   = "sqs"
	backendRedis = "redis"
)

type appConfig struct {
	debug                      bool
	awsAccessKeyID             string
	awsSecretAccessKey         string
	awsDefaultCredentials      bool
	awsRegion                  string
	queueURLTodo               string
	queueURLCompleted          string
	queueRoleARN               string
	queueRoleExternalID        string
	queueBackend               string
	maxMessages                int
	waitSeconds                int
	concurrency                int
	interval                   time.Duration
	reportFormat               string
	redisAddr                  string
	redisPassword              string
	redisKey                   string
	redisVisibilityTimeout     time.Duration
	redisTLS                   bool
	redisTLSInsecureSkipVerify bool
	healthAddr                 string
	healthPath                 string
	metricsAddr                string
	metricsPath                string
	metricsMaskPath            bool
	metricsNamespace           string
	metricsBucketsLatencyHTTP  []float64
	metricsBucketsLatencyQueue []float64
	jaegerURL                  string
}

func newConfig(roleSessionName string) appConfig {

	env := env.New(roleSessionName)

	return appConfig{
		debug:                      env.Bool("DEBUG", false),
		awsAccessKeyID:             env.String("AWS_ACCESS_KEY_ID", ""),
		awsSecretAccessKey:         env.String("AWS_SECRET_ACCESS_KEY", ""),
		awsDefaultCredentials:      env.Bool("AWS_DEFAULT_CREDENTIALS", false), // allow sdk default chain: env, profile, instance role
		awsRegion:                  env.String("AWS_REGION", ""),               // empty: taken from queue url
		queueURLTodo:               env.String("QUEUE_URL_TODO", ""),
		queueURLCompleted:          env.String("QUEUE_URL_COMPLETED", ""),
		queueRoleARN:               env.String("QUEUE_ROLE_ARN", ""),
		queueRoleExternalID:        env.String("QUEUE_ROLE_EXTERNAL_ID", ""),
		queueBackend:               env.String("QUEUE_BACKEND", backendSQS),
		maxMessages:                env.Int("MAX_MESSAGES", 5),
		waitSeconds:                env.Int("WAIT_SECONDS", 2),
		concurrency:                env.Int("CONCURRENCY", 1),
		interval:                   env.Duration("INTERVAL", 0), // 0: run single cycle then exit
		reportFormat:               env.String("REPORT_FORMAT", mover.FormatNone),
		redisAddr:                  env.String("REDIS_ADDR", "localhost:6379"),
		redisPassword:              env.String("REDIS_PASSWORD", ""),
		redisKey:                   env.String("REDIS_KEY", "queuemover"),
		redisVisibilityTimeout:     env.Duration("REDIS_VISIBILITY_TIMEOUT", 30*time.Second),
		redisTLS:                   env.Bool("REDIS_TLS", false),
		redisTLSInsecureSkipVerify: env.Bool("REDIS_TLS_INSECURE_SKIP_VERIFY", false),
		healthAddr:                 env.String("HEALTH_ADDR", ":8888"),
		healthPath:                 env.String("HEALTH_PATH", "/health"),
		metricsAddr:                env.String("METRICS_ADDR", ":3000"),
		metricsPath:                env.String("METRICS_PATH", "/metrics"),
		metricsMaskPath:            env.Bool("METRICS_MASK_PATH", true),
		metricsNamespace:           env.String("METRICS_NAMESPACE", ""),
		metricsBucketsLatencyHTTP:  env.Float64Slice("METRICS_BUCKETS_LATENCY_HTTP", []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5, 10}),
		metricsBucketsLatencyQueue: env.Float64Slice("METRICS_BUCKETS_LATENCY_QUEUE", []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5, 10, 20}),
		jaegerURL:                  env.String("JAEGER_URL", ""), // empty disables tracing
	}
}

var errConfiguration = errors.New("configuration error")

func configErrorf(format string, a ...any) error {
	return fmt.Errorf("%w: %s", errConfiguration, fmt.Sprintf(format, a...))
}

// validate rejects unusable configurations before any cycle runs.
func (c appConfig) validate() error {
	if c.queueURLTodo == "" {
		return configErrorf("missing QUEUE_URL_TODO")
	}
	if c.queueURLCompleted == "" {
		return configErrorf("missing QUEUE_URL_COMPLETED")
	}
	if c.queueURLTodo == c.queueURLCompleted {
		return configErrorf("QUEUE_URL_TODO and QUEUE_URL_COMPLETED are the same queue: %s", c.queueURLTodo)
	}

	switch c.queueBackend {
	case backendSQS:
		if err := c.validateCredentials(); err != nil {
			return err
		}
		if _, err := c.region(); err != nil {
			return err
		}
	case backendRedis:
		if c.redisAddr == "" {
			return configErrorf("missing REDIS_ADDR")
		}
		if c.redisVisibilityTimeout <= 0 {
			return configErrorf("REDIS_VISIBILITY_TIMEOUT must be positive: %v", c.redisVisibilityTimeout)
		}
	default:
		return configErrorf("unsupported QUEUE_BACKEND=%s (supported: %s, %s)",
			c.queueBackend, backendSQS, backendRedis)
	}

	switch c.reportFormat {
	case mover.FormatNone, mover.FormatJSON, mover.FormatYAML:
	default:
		return configErrorf("unsupported REPORT_FORMAT=%s (supported: %s, %s, %s)",
			c.reportFormat, mover.FormatNone, mover.FormatJSON, mover.FormatYAML)
	}

	if c.concurrency < 1 {
		return configErrorf("CONCURRENCY must be at least 1: %d", c.concurrency)
	}
	if c.interval < 0 {
		return configErrorf("INTERVAL must not be negative: %v", c.interval)
	}

	return nil
}

func (c appConfig) validateCredentials() error {
	hasID := c.awsAccessKeyID != ""
	hasSecret := c.awsSecretAccessKey != ""

	if hasID != hasSecret {
		return configErrorf("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set together")
	}
	if !hasID && !c.awsDefaultCredentials {
		return configErrorf("missing AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY (set AWS_DEFAULT_CREDENTIALS=true to use the sdk default chain)")
	}
	return nil
}

// region returns AWS_REGION or, when empty, the region shared by both queue urls.
func (c appConfig) region() (string, error) {
	if c.awsRegion != "" {
		return c.awsRegion, nil
	}

	regionTodo, errTodo := queue.GetRegion(c.queueURLTodo)
	if errTodo != nil {
		return "", configErrorf("missing AWS_REGION: %v", errTodo)
	}

	regionCompleted, errCompleted := queue.GetRegion(c.queueURLCompleted)
	if errCompleted != nil {
		return "", configErrorf("missing AWS_REGION: %v", errCompleted)
	}

	if regionTodo != regionCompleted {
		return "", configErrorf("queues in different regions: todo=%s completed=%s",
			regionTodo, regionCompleted)
	}

	return regionTodo, nil
}
