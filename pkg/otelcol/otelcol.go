package otelcol

import (
	"context"
	"fmt"
	"strings"
	"time"

	"progression-engine/pkg/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("otelcol", fx.Invoke(Register))

func defaultTraceProviderOption() []trace.TracerProviderOption {
	return []trace.TracerProviderOption{
		trace.WithResource(resource.Default()),
	}
}

func ProvideTrace(exporter trace.SpanExporter, opts ...trace.TracerProviderOption) *trace.TracerProvider {
	if len(opts) == 0 {
		opts = defaultTraceProviderOption()
	}

	opts = append(opts, trace.WithBatcher(exporter))

	return trace.NewTracerProvider(opts...)
}

// NewExporter builds an OTLP span exporter for OTEL.PROTOCOL (grpc or http).
func NewExporter(cfg *config.Config) (*otlptrace.Exporter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch strings.ToLower(cfg.Otel.Protocol) {
	case "http":
		opts := []otlptracehttp.Option{otlptracehttp.WithCompression(otlptracehttp.GzipCompression)}
		if cfg.Otel.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.Otel.Endpoint))
		}
		if cfg.Otel.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	case "grpc", "":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithCompressor("gzip")}
		if cfg.Otel.Endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.Otel.Endpoint))
		}
		if cfg.Otel.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
	default:
		return nil, fmt.Errorf("unsupported OTEL.PROTOCOL %q", cfg.Otel.Protocol)
	}
}

// Register installs the global tracer provider when OTEL.ENABLED is set.
// Without it spans go to the no-op provider.
func Register(lc fx.Lifecycle, cfg *config.Config) error {
	if !cfg.Otel.Enabled {
		return nil
	}

	exporter, err := NewExporter(cfg)
	if err != nil {
		zap.L().Error("failed to create otlp exporter", zap.Error(err))
		return err
	}
	tp := ProvideTrace(exporter)
	otel.SetTracerProvider(tp)
	zap.L().Info("otlp tracing enabled", zap.String("protocol", cfg.Otel.Protocol), zap.String("endpoint", cfg.Otel.Endpoint))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})
	return nil
}
