package observability

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/IshaanNene/jepx/internal/config"
)

// Tracing owns the process-wide tracer provider. A Tracing for the "none"
// exporter is a no-op.
type Tracing struct {
	provider *sdktrace.TracerProvider
}

// SetupTracing builds the exporter named in cfg and installs its provider as
// the global one. Stdout spans are written to w.
func SetupTracing(ctx context.Context, cfg *config.TracingConfig, w io.Writer) (*Tracing, error) {
	if cfg.Exporter == "" || cfg.Exporter == "none" {
		return &Tracing{}, nil
	}

	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName("jepx"),
			semconv.ServiceVersion(config.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("trace resource: %w", err)
	}

	exporter, err := newSpanExporter(ctx, cfg, w)
	if err != nil {
		return nil, fmt.Errorf("%s trace exporter: %w", cfg.Exporter, err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(r),
	)
	otel.SetTracerProvider(tp)
	return &Tracing{provider: tp}, nil
}

func newSpanExporter(ctx context.Context, cfg *config.TracingConfig, w io.Writer) (sdktrace.SpanExporter, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	switch cfg.Exporter {
	case "stdout":
		return stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	case "otlp":
		var opts []otlptracehttp.Option
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpointURL(cfg.Endpoint))
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unknown exporter %q", cfg.Exporter)
	}
}

// Provider returns the installed provider, or the global one when tracing is off.
func (t *Tracing) Provider() trace.TracerProvider {
	if t == nil || t.provider == nil {
		return otel.GetTracerProvider()
	}
	return t.provider
}

// Shutdown flushes pending spans.
func (t *Tracing) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}
