// Package tracing records one OpenTelemetry span per invocation, tagged
// with the project, the outcome kind and the run ID.
package tracing

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/deixis/tinker/internal/config"
)

const tracerName = "github.com/deixis/tinker/internal/artisan"

// Setup installs the global TracerProvider and returns its shutdown
// function, which flushes pending spans. Spans are written to w, never to
// stdout, which carries results and the MCP stream.
func Setup(cfg config.TraceConfig, version string, w io.Writer) (func(context.Context) error, error) {
	noopShutdown := func(context.Context) error { return nil }

	if !cfg.Enabled || cfg.Exporter == "noop" {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return noopShutdown, nil
	}
	if cfg.Exporter != "stdout" && cfg.Exporter != "" {
		return nil, fmt.Errorf("unsupported exporter: %s", cfg.Exporter)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("create span exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", "tinker"),
			attribute.String("service.version", version),
		)),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// StartInvocation starts the span for one operation, named
// "artisan.<operation>".
func StartInvocation(ctx context.Context, operation, project string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("artisan.project", project))
	return otel.Tracer(tracerName).Start(ctx, "artisan."+operation, trace.WithAttributes(attrs...))
}

// EndInvocation tags span with the outcome and ends it. A non-nil err marks
// the span failed; non-zero exits are not failures of the invocation.
func EndInvocation(span trace.Span, kind, runID string, exitCode int, err error) {
	span.SetAttributes(
		attribute.String("artisan.kind", kind),
		attribute.Int("artisan.exit_code", exitCode),
	)
	if runID != "" {
		span.SetAttributes(attribute.String("artisan.run_id", runID))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
