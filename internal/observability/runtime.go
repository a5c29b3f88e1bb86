package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sandeepkv93/social-realtime-backend/internal/config"

	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Runtime owns the OpenTelemetry providers for the process. Providers are
// started logs, metrics, tracing and stopped in the reverse order so the
// gateway's last disconnect records still reach the log exporter.
type Runtime struct {
	MeterProvider  *sdkmetric.MeterProvider
	TracerProvider *sdktrace.TracerProvider
	LoggerProvider *sdklog.LoggerProvider

	stops []stopFunc
}

type stopFunc struct {
	name string
	fn   func(context.Context) error
}

func InitRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	rt := &Runtime{}

	lp, err := InitLogging(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init logs: %w", err)
	}
	if lp != nil {
		rt.LoggerProvider = lp
		rt.stops = append(rt.stops, stopFunc{"logs", lp.Shutdown})
	}

	mp, err := InitMetrics(ctx, cfg, logger)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("init metrics: %w", err), rt.Shutdown(ctx))
	}
	rt.MeterProvider = mp
	rt.stops = append(rt.stops, stopFunc{"metrics", mp.Shutdown})

	tp, err := InitTracing(ctx, cfg, logger)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("init tracing: %w", err), rt.Shutdown(ctx))
	}
	rt.TracerProvider = tp
	rt.stops = append(rt.stops, stopFunc{"tracing", tp.Shutdown})
	return rt, nil
}

func (r *Runtime) Shutdown(ctx context.Context) error {
	if r == nil {
		return nil
	}
	var errs []error
	for i := len(r.stops) - 1; i >= 0; i-- {
		s := r.stops[i]
		if err := s.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown %s: %w", s.name, err))
		}
	}
	r.stops = nil
	return errors.Join(errs...)
}
