package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfga/datagate/internal/build"
)

type tracerConfig struct {
	endpoint      string
	serviceName   string
	samplingRatio float64
}

type TracerOption func(c *tracerConfig)

// WithOTLPEndpoint sets the host:port of the OTLP/gRPC collector.
func WithOTLPEndpoint(endpoint string) TracerOption {
	return func(c *tracerConfig) {
		c.endpoint = endpoint
	}
}

func WithServiceName(serviceName string) TracerOption {
	return func(c *tracerConfig) {
		c.serviceName = serviceName
	}
}

// WithSamplingRatio sets the fraction of root spans that are sampled.
func WithSamplingRatio(samplingRatio float64) TracerOption {
	return func(c *tracerConfig) {
		c.samplingRatio = samplingRatio
	}
}

// MustNewTracerProvider installs a global tracer provider exporting spans to an
// OTLP/gRPC collector. Child spans follow the sampling decision of their parent.
func MustNewTracerProvider(opts ...TracerOption) *sdktrace.TracerProvider {
	cfg := &tracerConfig{serviceName: "datagate"}
	for _, opt := range opts {
		opt(cfg)
	}

	res, err := newResource(cfg.serviceName)
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithEndpoint(cfg.endpoint),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create the otlp trace exporter: %v", err))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(newSampler(cfg.samplingRatio)),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exp),
	)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	otel.SetTracerProvider(tp)

	return tp
}

func newResource(serviceName string) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", build.Version),
			attribute.String("vcs.commit", build.Commit),
		))
}

func newSampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case ratio <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}

// TraceError marks the span as failed.
func TraceError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
