package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sandeepkv93/social-realtime-backend/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

const meterName = "social-realtime-backend"

type AppMetrics struct {
	authCounter          metric.Int64Counter
	sessionCounter       metric.Int64Counter
	sessionCleanupCount  metric.Int64Counter
	repositoryCounter    metric.Int64Counter
	tokenCounter         metric.Int64Counter
	gatewayConnections   metric.Int64UpDownCounter
	gatewayEventCounter  metric.Int64Counter
	actionLockDuplicates metric.Int64Counter
	rateLimitCounter     metric.Int64Counter
	redisCommandCounter  metric.Int64Counter
	redisKeyspaceCounter metric.Int64Counter
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	endpoint, insecure, err := otlpEndpoint(cfg)
	if err != nil {
		return nil, err
	}
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(endpoint)}
	if insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	m, err := newAppMetrics(mp.Meter(meterName))
	if err != nil {
		return nil, err
	}
	metricsMu.Lock()
	appMetrics = m
	metricsMu.Unlock()

	logger.Info("otel metrics initialized", "endpoint", endpoint)
	return mp, nil
}

func newResource(ctx context.Context, cfg *config.Config) (*resource.Resource, error) {
	return resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.OTELServiceName),
			attribute.String("deployment.environment", cfg.OTELEnvironment),
		),
	)
}

func newAppMetrics(meter metric.Meter) (*AppMetrics, error) {
	var (
		m   AppMetrics
		err error
	)
	counters := []struct {
		name string
		dst  *metric.Int64Counter
	}{
		{"auth.requests", &m.authCounter},
		{"session.events", &m.sessionCounter},
		{"session.cleanup.removed", &m.sessionCleanupCount},
		{"repository.operations", &m.repositoryCounter},
		{"auth.token.validations", &m.tokenCounter},
		{"gateway.events", &m.gatewayEventCounter},
		{"gateway.action_lock.duplicates", &m.actionLockDuplicates},
		{"http.rate_limit.decisions", &m.rateLimitCounter},
		{"redis.commands", &m.redisCommandCounter},
		{"redis.keyspace.lookups", &m.redisKeyspaceCounter},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name)
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", c.name, err)
		}
	}
	m.gatewayConnections, err = meter.Int64UpDownCounter("gateway.connections.active")
	if err != nil {
		return nil, fmt.Errorf("create gateway connections gauge: %w", err)
	}
	return &m, nil
}

func currentMetrics() *AppMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

// RecordAuthEvent counts register/login/refresh/logout attempts by outcome.
func RecordAuthEvent(ctx context.Context, flow, provider, outcome string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.authCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("flow", flow),
		attribute.String("provider", provider),
		attribute.String("outcome", outcome),
	))
}

// RecordSessionEvent counts lifecycle transitions such as create, reuse,
// evict, validate, timeout and revoke.
func RecordSessionEvent(ctx context.Context, event, outcome string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.sessionCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", event),
		attribute.String("outcome", outcome),
	))
}

func RecordSessionCleanup(ctx context.Context, removed int) {
	m := currentMetrics()
	if m == nil || removed <= 0 {
		return
	}
	m.sessionCleanupCount.Add(ctx, int64(removed))
}

func RecordRepositoryOperation(ctx context.Context, entity, op, outcome string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.repositoryCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))
}

func RecordTokenValidation(ctx context.Context, outcome string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.tokenCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func RecordGatewayConnection(ctx context.Context, delta int64) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.gatewayConnections.Add(ctx, delta)
}

func RecordGatewayEvent(ctx context.Context, event, outcome string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.gatewayEventCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", event),
		attribute.String("outcome", outcome),
	))
}

func RecordActionLockDuplicate(ctx context.Context, action string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.actionLockDuplicates.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

func RecordRateLimitDecision(ctx context.Context, scope, outcome, mode, keyType string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.rateLimitCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("outcome", outcome),
		attribute.String("mode", mode),
		attribute.String("key_type", keyType),
	))
}
