package tracing

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// ProviderConfig selects the span exporter.
type ProviderConfig struct {
	ServiceName string
	// Exporter is "otlp", "console" or "none"
	Exporter string
	// Protocol is "grpc" or "http" for the otlp exporter
	Protocol string
	Endpoint string
	Insecure bool
	Headers  map[string]string
	Timeout  time.Duration
}

// Setup installs a global tracer provider and returns its shutdown func.
// With Exporter "none" tracing stays disabled and StartSpan is a no-op.
func Setup(ctx context.Context, cfg ProviderConfig, logger ectologger.Logger) (func(context.Context) error, error) {
	if cfg.Exporter == "" || cfg.Exporter == "none" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := newExporter(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	SetTracer(tp.Tracer(cfg.ServiceName))

	return tp.Shutdown, nil
}

func newExporter(ctx context.Context, cfg ProviderConfig, logger ectologger.Logger) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "console":
		return &consoleExporter{logger: logger}, nil
	case "otlp":
		switch cfg.Protocol {
		case "grpc":
			opts := []otlptracegrpc.Option{
				otlptracegrpc.WithEndpoint(cfg.Endpoint),
				otlptracegrpc.WithTimeout(cfg.Timeout),
			}
			if cfg.Insecure {
				opts = append(opts, otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
				opts = append(opts, otlptracegrpc.WithInsecure())
			}
			if len(cfg.Headers) > 0 {
				opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
			}
			return otlptracegrpc.New(ctx, opts...)
		case "http":
			opts := []otlptracehttp.Option{
				otlptracehttp.WithEndpoint(cfg.Endpoint),
				otlptracehttp.WithTimeout(cfg.Timeout),
			}
			if cfg.Insecure {
				opts = append(opts, otlptracehttp.WithInsecure())
			}
			if len(cfg.Headers) > 0 {
				opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
			}
			return otlptracehttp.New(ctx, opts...)
		default:
			return nil, fmt.Errorf("unsupported OTLP protocol: %s (use 'grpc' or 'http')", cfg.Protocol)
		}
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %s", cfg.Exporter)
	}
}

// consoleExporter writes finished spans to the debug log.
type consoleExporter struct {
	logger ectologger.Logger
}

func (c *consoleExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, span := range spans {
		c.logger.WithFields(map[string]any{
			"trace_id": span.SpanContext().TraceID().String(),
			"span_id":  span.SpanContext().SpanID().String(),
			"duration": span.EndTime().Sub(span.StartTime()).String(),
			"status":   span.Status().Code.String(),
		}).Debugf("span %s", span.Name())
	}
	return nil
}

func (c *consoleExporter) Shutdown(ctx context.Context) error {
	return nil
}
