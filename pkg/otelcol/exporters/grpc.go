package exporters

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"

	"refhire-rewards/pkg/config"
)

// ProvideGrpc builds an OTLP trace exporter over gRPC, for collectors
// that only listen on 4317.
func ProvideGrpc(cfg *config.Config) (*otlptrace.Exporter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithInsecure(),
	}
	if cfg.Otel.Endpoint != "" {
		opts = append(opts, otlptracegrpc.WithEndpoint(cfg.Otel.Endpoint))
	}

	return otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
}
