// Package telemetry configures OpenTelemetry tracing.
package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope for application spans.
const TracerName = "github.com/AtRiskMedia/splittest-go"

var ErrUnknownExporter = errors.New("unknown trace exporter")

// Config selects the trace exporter.
type Config struct {
	ServiceName    string
	ServiceVersion string
	// TraceExporter is "stdout" or "none".
	TraceExporter string
}

// Init installs a global tracer provider and returns its shutdown func.
// With exporter "none" the global no-op provider is left in place.
func Init(cfg Config) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	switch cfg.TraceExporter {
	case "", "none":
		return noop, nil
	case "stdout":
	default:
		return noop, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.TraceExporter)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return noop, fmt.Errorf("create exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// Tracer returns the application tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}
