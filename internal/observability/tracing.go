package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/sandeepkv93/social-realtime-backend/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func InitTracing(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdktrace.TracerProvider, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if !cfg.OTELTracingEnabled {
		tp := sdktrace.NewTracerProvider()
		otel.SetTracerProvider(tp)
		logger.Info("otel tracing disabled")
		return tp, nil
	}

	endpoint, insecure, err := otlpEndpoint(cfg)
	if err != nil {
		return nil, err
	}
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
	if insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp trace exporter: %w", err)
	}
	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create trace resource: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(clampRatio(cfg.OTELTraceSamplingRatio)))),
	)
	otel.SetTracerProvider(tp)
	logger.Info("otel tracing initialized", "endpoint", endpoint, "sampling_ratio", clampRatio(cfg.OTELTraceSamplingRatio))
	return tp, nil
}

// otlpEndpoint reduces the configured endpoint to the host:port the gRPC
// exporters dial. https endpoints use TLS unless insecure is forced.
func otlpEndpoint(cfg *config.Config) (string, bool, error) {
	raw := strings.TrimSpace(cfg.OTELExporterOTLPEndpoint)
	if raw == "" {
		return "", false, fmt.Errorf("invalid otlp endpoint: empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("invalid otlp endpoint %q: %w", cfg.OTELExporterOTLPEndpoint, err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("invalid otlp endpoint %q: missing host", cfg.OTELExporterOTLPEndpoint)
	}
	return u.Host, cfg.OTELExporterOTLPInsecure || u.Scheme != "https", nil
}

func clampRatio(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
