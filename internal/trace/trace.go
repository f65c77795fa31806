// Package trace owns the process-wide tracer. Until Init enables tracing,
// StartSpan hands back the span already in the context and costs nothing.
package trace

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "trading-toolkit"

type Config struct {
	Enabled bool
	// Exporter replaces the pretty-printing stdout exporter. Spans are
	// exported synchronously when it is set.
	Exporter sdktrace.SpanExporter
}

// ConfigFromEnv enables tracing when LOG_TRACING_ENABLED is "true".
func ConfigFromEnv() Config {
	return Config{Enabled: os.Getenv("LOG_TRACING_ENABLED") == "true"}
}

var (
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	enabled  bool
)

func Init() error { return InitWith(ConfigFromEnv()) }

func InitWith(cfg Config) error {
	enabled, tracer, provider = false, nil, nil
	if !cfg.Enabled {
		return nil
	}

	var export sdktrace.TracerProviderOption
	if cfg.Exporter != nil {
		export = sdktrace.WithSyncer(cfg.Exporter)
	} else {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("stdout span exporter: %w", err)
		}
		export = sdktrace.WithBatcher(exp)
	}

	provider = sdktrace.NewTracerProvider(
		export,
		sdktrace.WithResource(resource.NewSchemaless(semconv.ServiceName(serviceName))),
	)
	otel.SetTracerProvider(provider)
	tracer = provider.Tracer(serviceName)
	enabled = true
	return nil
}

// Shutdown flushes pending spans.
func Shutdown(ctx context.Context) error {
	if provider == nil {
		return nil
	}
	return provider.Shutdown(ctx)
}

func Enabled() bool { return enabled }

func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if !enabled {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// End closes span, marking it failed when err is non-nil.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// GetTraceFields returns the ids of the active span for log correlation.
func GetTraceFields(ctx context.Context) (traceID, spanID string, ok bool) {
	if !enabled {
		return "", "", false
	}
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return "", "", false
	}
	return sc.TraceID().String(), sc.SpanID().String(), true
}
