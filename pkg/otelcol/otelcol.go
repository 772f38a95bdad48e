package otelcol

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"refhire-rewards/pkg/config"
	"refhire-rewards/pkg/otelcol/exporters"
)

// Module wires the trace pipeline end to end: OTLP exporter, batching
// provider, global registration and a flush on shutdown. Apps that skip
// this module keep the noop provider and emit nothing.
var Module = fx.Module("otelcol",
	fx.Provide(
		fx.Annotate(ProvideExporter, fx.As(new(sdktrace.SpanExporter))),
		ProvideTrace,
	),
	fx.Invoke(Register),
)

// ProvideExporter picks the OTLP wire protocol from config; http is the
// default.
func ProvideExporter(cfg *config.Config) (*otlptrace.Exporter, error) {
	if cfg.Otel.Protocol == "grpc" {
		return exporters.ProvideGrpc(cfg)
	}
	return exporters.ProvideHttp(cfg)
}

// ProvideTrace builds a tracer provider that batches spans into the
// exporter, tagged with the app's service identity.
func ProvideTrace(cfg *config.Config, exporter sdktrace.SpanExporter) *sdktrace.TracerProvider {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.AppName),
		attribute.String("service.version", cfg.AppVersion),
	))
	if err != nil {
		res = resource.Default()
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)
}

// Register installs the provider and the W3C propagators globally, so
// otel.Tracer call sites and the gorm plugin record real spans.
func Register(lc fx.Lifecycle, tp *sdktrace.TracerProvider) {
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := tp.Shutdown(ctx); err != nil {
				zap.L().Warn("[OTEL] Tracer provider shutdown", zap.Error(err))
			}
			return nil
		},
	})
}
