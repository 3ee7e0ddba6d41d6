// Package tracing configura o OpenTelemetry com exportador stdout.
// Quando desabilitado, StartSpan devolve o span já presente no contexto (no-op).
package tracing

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "mt5-history"

var (
	mu       sync.RWMutex
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
)

func Init(enabled bool, version string) error {
	if !enabled {
		return nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return err
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	mu.Lock()
	provider = tp
	tracer = tp.Tracer(serviceName)
	mu.Unlock()
	return nil
}

func Shutdown(ctx context.Context) error {
	mu.RLock()
	tp := provider
	mu.RUnlock()
	if tp != nil {
		return tp.Shutdown(ctx)
	}
	return nil
}

func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	mu.RLock()
	t := tracer
	mu.RUnlock()
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.Start(ctx, name, opts...)
}
