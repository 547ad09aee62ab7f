package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"go-identity-service/internal/config"
)

// InitTracing configures the global tracer provider. When tracing is
// disabled it still returns a provider so callers can defer Shutdown
// unconditionally.
func InitTracing(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdktrace.TracerProvider, error) {
	if !cfg.OTELTracingEnabled {
		logger.InfoContext(ctx, "tracing disabled")
		return sdktrace.NewTracerProvider(), nil
	}

	if err := validateOTLPEndpoint(cfg.OTELExporterOTLPEndpoint); err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(
			sdktrace.TraceIDRatioBased(clampRatio(cfg.OTELTraceSamplingRatio)),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.InfoContext(ctx, "tracing initialized",
		slog.String("endpoint", cfg.OTELExporterOTLPEndpoint),
		slog.Float64("sampling_ratio", cfg.OTELTraceSamplingRatio),
	)
	return tp, nil
}

func newResource(ctx context.Context, cfg *config.Config) (*resource.Resource, error) {
	return resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.OTELServiceName),
			semconv.DeploymentEnvironment(cfg.OTELEnvironment),
		),
	)
}

// validateOTLPEndpoint rejects malformed host:port endpoints up front
// so misconfiguration fails at startup instead of on first export.
func validateOTLPEndpoint(endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("otlp endpoint is empty")
	}
	if _, err := url.Parse("//" + endpoint); err != nil {
		return fmt.Errorf("invalid otlp endpoint %q: %w", endpoint, err)
	}
	return nil
}

func clampRatio(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
