package otelcol

import (
	"context"
	"fmt"

	"contaminer/pkg/config"
	"contaminer/pkg/otelcol/exporters"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("otelcol",
	fx.Provide(NewTracerProvider),
	fx.Invoke(Register),
)

func defaultTraceProviderOption(cfg *config.Config) []trace.TracerProviderOption {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.AppName),
		attribute.String("deployment.environment", cfg.AppEnv),
	))
	if err != nil {
		res = resource.Default()
	}
	return []trace.TracerProviderOption{
		trace.WithResource(res),
	}
}

func ProvideTrace(exporter trace.SpanExporter, opts ...trace.TracerProviderOption) *trace.TracerProvider {
	if exporter != nil {
		opts = append(opts, trace.WithBatcher(exporter))
	}
	return trace.NewTracerProvider(opts...)
}

// NewTracerProvider exports spans to OTEL.ADDR over OTEL.PROTOCOL. Without an
// address spans are recorded but never exported.
func NewTracerProvider(cfg *config.Config) (*trace.TracerProvider, error) {
	opts := defaultTraceProviderOption(cfg)
	if cfg.Otel.Addr == "" {
		return ProvideTrace(nil, opts...), nil
	}

	var (
		exporter trace.SpanExporter
		err      error
	)
	switch cfg.Otel.Protocol {
	case "", "grpc":
		exporter, err = exporters.ProvideGrpc(cfg)
	case "http":
		exporter, err = exporters.ProvideHttp(cfg)
	default:
		return nil, fmt.Errorf("unknown OTEL.PROTOCOL %q", cfg.Otel.Protocol)
	}
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}
	return ProvideTrace(exporter, opts...), nil
}

// Register installs tp as the global tracer provider and flushes it on stop.
func Register(lc fx.Lifecycle, tp *trace.TracerProvider, cfg *config.Config) {
	otel.SetTracerProvider(tp)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			zap.L().Info("[Otel] tracer provider installed",
				zap.String("addr", cfg.Otel.Addr),
				zap.String("protocol", cfg.Otel.Protocol),
			)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})
}
