package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/profile-service/config"
)

var (
	tracer          trace.Tracer
	tracerProvider  *sdktrace.TracerProvider
	detectedService string
)

// InitTracing initializes OpenTelemetry tracing from the tracing config.
// The service name comes from OTEL_SERVICE_NAME, then SERVICE_NAME.
//
// Example:
//
//	cfg := config.Load()
//	tp, err := middleware.InitTracing(cfg)
//	defer middleware.Shutdown(context.Background())
func InitTracing(cfg *config.Config) (*sdktrace.TracerProvider, error) {
	// Skip tracing initialization if disabled
	if !cfg.Tracing.Enabled {
		return nil, errors.New("tracing is disabled (TRACING_ENABLED=false)")
	}
	// Validate tracing configuration
	if cfg.Tracing.Endpoint == "" {
		return nil, errors.New("OTEL_COLLECTOR_ENDPOINT is required when tracing is enabled")
	}
	if cfg.Tracing.SampleRate < 0 || cfg.Tracing.SampleRate > 1.0 {
		return nil, fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got: %.2f", cfg.Tracing.SampleRate)
	}

	// Bound exporter construction so a dead collector cannot stall startup
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// OTLP HTTP exporter with gzip; the collector usually listens on :4318
	exporter, err := otlptracehttp.New(
		ctx,
		otlptracehttp.WithEndpoint(cfg.Tracing.Endpoint),
		otlptracehttp.WithInsecure(), // Use TLS in production
		otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	// partial detection failure still yields a usable fallback resource
	res, _ := CreateResource(context.Background(), cfg.Tracing.ServiceName)

	// Store detected service name for middleware usage
	detectedService = GetServiceName(res)
	if detectedService == "" || detectedService == unknownService {
		detectedService = cfg.Service.Name
	}

	// Batch export configuration
	// BatchTimeout: how often spans are flushed
	// ExportTimeout: max time to wait for one export
	// Sampler: ratio of new root traces kept; sampled parents are always followed
	tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(5*time.Second),
			sdktrace.WithExportTimeout(30*time.Second),
			sdktrace.WithMaxExportBatchSize(cfg.Tracing.MaxExportBatchSize),
		),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.Tracing.SampleRate))),
	)

	// Set global tracer provider
	otel.SetTracerProvider(tracerProvider)

	// Set global propagator for trace context propagation (W3C Trace Context)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	// Tracer used by StartSpan across handlers, services, repositories and uploads
	tracer = otel.Tracer(detectedService)

	return tracerProvider, nil
}

// shouldTrace skips health checks, metrics endpoints, and static resources
func shouldTrace(path string) bool {
	skipPaths := []string{
		"/health", "/ready", "/metrics", "/favicon.ico",
	}
	for _, skip := range skipPaths {
		if strings.HasPrefix(path, skip) {
			return false
		}
	}
	return true
}

// TracingMiddleware returns a Gin middleware for OpenTelemetry tracing.
// Register it after InitTracing so it picks up the detected service name.
//
// Usage:
//
//	r := gin.New()
//	r.Use(middleware.TracingMiddleware())
func TracingMiddleware() gin.HandlerFunc {
	serviceName := detectedService
	if serviceName == "" {
		serviceName = unknownService
	}

	// Wrap otelgin middleware with request filtering
	otelMiddleware := otelgin.Middleware(
		serviceName,
		otelgin.WithTracerProvider(otel.GetTracerProvider()),
	)

	return func(c *gin.Context) {
		// Skip tracing for health checks and metrics endpoints
		if !shouldTrace(c.Request.URL.Path) {
			c.Next()
			return
		}

		// Apply OpenTelemetry middleware
		otelMiddleware(c)
	}
}

// GetTracer returns the tracer instance with auto-detected service name.
// Before InitTracing runs (or with tracing disabled) it returns the global
// no-op tracer, so spans cost nothing.
func GetTracer() trace.Tracer {
	if tracer == nil {
		serviceName := detectedService
		if serviceName == "" {
			serviceName = unknownService
		}
		return otel.Tracer(serviceName)
	}
	return tracer
}

// StartSpan starts a new span with the given name
//
// Usage:
//
//	ctx, span := middleware.StartSpan(ctx, "database.query")
//	defer span.End()
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	//nolint:spancheck // span is returned to caller who is responsible for calling span.End()
	return GetTracer().Start(ctx, name, opts...)
}

// Shutdown flushes pending spans and shuts the tracer provider down.
// A no-op when tracing was never initialized.
//
// Call it last during shutdown, after the HTTP server and document store,
// so spans from in-flight requests are exported.
func Shutdown(ctx context.Context) error {
	if tracerProvider == nil {
		return nil
	}

	// Flush remaining spans before shutdown
	if err := tracerProvider.ForceFlush(ctx); err != nil {
		return fmt.Errorf("failed to flush traces: %w", err)
	}
	if err := tracerProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown tracer provider: %w", err)
	}

	return nil
}

// AddSpanEvent adds an event to the current span if it's recording
//
// Usage:
//
//	middleware.AddSpanEvent(ctx, "upload.stored",
//	    attribute.String("upload.filename", name),
//	)
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}
