package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"go-identity-service/internal/config"
)

// Runtime bundles the OTEL providers the process owns. Every field is
// non-nil after InitRuntime succeeds; disabled signals get no-op
// providers so shutdown paths stay uniform.
type Runtime struct {
	MeterProvider  *sdkmetric.MeterProvider
	TracerProvider *sdktrace.TracerProvider
	LoggerProvider *sdklog.LoggerProvider

	// LogHandler is non-nil only when OTLP log export is enabled; the
	// caller fans it in next to the stdout handler.
	LogHandler slog.Handler
}

func (r *Runtime) Shutdown(ctx context.Context) error {
	if r == nil {
		return nil
	}
	var errs []error
	if r.LoggerProvider != nil {
		if err := r.LoggerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown logger provider: %w", err))
		}
	}
	if r.MeterProvider != nil {
		if err := r.MeterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	if r.TracerProvider != nil {
		if err := r.TracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

// InitRuntime wires up metrics, tracing and log export per config.
func InitRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	r := &Runtime{}

	if cfg.OTELMetricsEnabled {
		if err := validateOTLPEndpoint(cfg.OTELExporterOTLPEndpoint); err != nil {
			return nil, fmt.Errorf("init metrics: %w", err)
		}
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
		if cfg.OTELExporterOTLPInsecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		exporter, err := otlpmetrichttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create metric exporter: %w", err)
		}
		res, err := newResource(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("create metric resource: %w", err)
		}
		r.MeterProvider = sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
			sdkmetric.WithResource(res),
		)
		otel.SetMeterProvider(r.MeterProvider)
	} else {
		r.MeterProvider = sdkmetric.NewMeterProvider()
	}

	tp, err := InitTracing(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	r.TracerProvider = tp

	if cfg.OTELLogsEnabled {
		if err := validateOTLPEndpoint(cfg.OTELExporterOTLPEndpoint); err != nil {
			return nil, fmt.Errorf("init log export: %w", err)
		}
		opts := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
		if cfg.OTELExporterOTLPInsecure {
			opts = append(opts, otlploghttp.WithInsecure())
		}
		exporter, err := otlploghttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create log exporter: %w", err)
		}
		res, err := newResource(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("create log resource: %w", err)
		}
		r.LoggerProvider = sdklog.NewLoggerProvider(
			sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
			sdklog.WithResource(res),
		)
		r.LogHandler = otelslog.NewHandler(cfg.OTELServiceName,
			otelslog.WithLoggerProvider(r.LoggerProvider),
		)
	}

	return r, nil
}
