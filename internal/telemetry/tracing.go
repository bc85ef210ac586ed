package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// TracingOptions describes the process being traced and where spans go.
type TracingOptions struct {
	ServiceName string
	Version     string
	// Endpoint is the host:port of an OTLP gRPC collector.
	Endpoint   string
	SampleRate float64
}

// SetupTracing installs the global tracer provider and W3C propagator.
// Call the returned function on exit to flush buffered spans.
func SetupTracing(ctx context.Context, opts TracingOptions) (func(context.Context) error, error) {
	res, err := tracingResource(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}
	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(opts.Endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("otlp exporter %s: %w", opts.Endpoint, err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(Sampler(opts.SampleRate)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return tp.Shutdown, nil
}

func tracingResource(ctx context.Context, opts TracingOptions) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{semconv.ServiceNameKey.String(opts.ServiceName)}
	if opts.Version != "" {
		attrs = append(attrs, semconv.ServiceVersionKey.String(opts.Version))
	}
	return resource.New(ctx, resource.WithAttributes(attrs...))
}

// Tracer returns a named tracer from the global provider. Before
// SetupTracing runs it yields no-op spans.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// Sampler turns a rate into a sampler. Rates at or above 1 keep every
// trace and rates at or below 0 drop them; in between, root spans are
// sampled by trace ID and children follow their parent.
func Sampler(rate float64) sdktrace.Sampler {
	if rate >= 1 {
		return sdktrace.AlwaysSample()
	}
	if rate <= 0 {
		return sdktrace.NeverSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
}
