// Package observability wires OpenTelemetry tracing for searchsync.
// Each pipeline cycle stage emits a span; export goes to stdout, which
// is sufficient for a single-binary replicator in development and can
// be swapped for an OTLP exporter without touching call sites.
package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var (
	tracer   trace.Tracer = noop.NewTracerProvider().Tracer("searchsync")
	initOnce sync.Once
)

// TracingConfig contains tracing configuration.
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	Enabled        bool
	SamplingRate   float64
	BatchTimeout   time.Duration
}

// DefaultTracingConfig returns the standard tracing setup.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName:    "searchsync",
		ServiceVersion: "1.0.0",
		Enabled:        false,
		SamplingRate:   0.1,
		BatchTimeout:   5 * time.Second,
	}
}

// Initialize sets up the tracer provider. When tracing is disabled the
// global tracer stays a no-op and span creation costs nothing.
func Initialize(cfg TracingConfig) error {
	var err error

	initOnce.Do(func() {
		if !cfg.Enabled {
			return
		}

		var res *resource.Resource
		res, err = resource.New(context.Background(),
			resource.WithAttributes(
				semconv.ServiceNameKey.String(cfg.ServiceName),
				semconv.ServiceVersionKey.String(cfg.ServiceVersion),
			),
		)
		if err != nil {
			err = fmt.Errorf("failed to create resource: %w", err)
			return
		}

		var exporter sdktrace.SpanExporter
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			err = fmt.Errorf("failed to create stdout exporter: %w", err)
			return
		}

		var sampler sdktrace.Sampler
		switch {
		case cfg.SamplingRate <= 0:
			sampler = sdktrace.NeverSample()
		case cfg.SamplingRate >= 1.0:
			sampler = sdktrace.AlwaysSample()
		default:
			sampler = sdktrace.TraceIDRatioBased(cfg.SamplingRate)
		}

		tp := sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sampler),
			sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(cfg.BatchTimeout)),
		)

		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))

		tracer = tp.Tracer(cfg.ServiceName)
	})

	return err
}

// GetTracer returns the global tracer.
func GetTracer() trace.Tracer {
	return tracer
}

// Shutdown flushes and stops the tracer provider.
func Shutdown(ctx context.Context) error {
	if tp, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); ok {
		if err := tp.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown tracer: %w", err)
		}
	}
	return nil
}
