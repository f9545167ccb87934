// Package tracing initializes open telemetry tracing.
package tracing

import (
	"context"
	"time"

	"go.opentelemetry.io/contrib/propagators/b3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

/*
Tracing for queuemover:

1) Init registers the tracer provider and the b3 propagator globally.
2) Spans are opened around each cycle and each relocation (see package mover).
3) The aws sdk http client is wrapped with otelhttp (see package awsconfig),
   so SQS calls become child spans.
4) Health and metrics servers use otelgin middleware.
*/

// Tracing holds the provider so it can be flushed on exit.
type Tracing struct {
	provider *tracesdk.TracerProvider
	logger   *zap.Logger
}

// Init creates a jaeger exporter for url and registers it globally.
// Empty url disables tracing: Init returns nil and no error.
func Init(service, url string, logger *zap.Logger) (*Tracing, error) {
	if url == "" {
		logger.Info("tracing disabled: empty collector url")
		return nil, nil
	}

	logger.Info("tracing enabled",
		zap.String("service", service),
		zap.String("collector", url))

	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(url)))
	if err != nil {
		return nil, err
	}

	tp := tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(service),
		)),
	)

	otel.SetTracerProvider(tp)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		b3.New(b3.WithInjectEncoding(b3.B3MultipleHeader)),
	))

	return &Tracing{provider: tp, logger: logger}, nil
}

// Tracer returns a named tracer, or nil when tracing is disabled.
func (t *Tracing) Tracer(name string) trace.Tracer {
	if t == nil {
		return nil
	}
	return t.provider.Tracer(name)
}

// Shutdown flushes pending spans, waiting at most timeout.
func (t *Tracing) Shutdown(timeout time.Duration) {
	if t == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := t.provider.Shutdown(ctx); err != nil {
		t.logger.Error("tracing shutdown", zap.Error(err))
	}
}
