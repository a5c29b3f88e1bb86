package observability

import (
	"context"
	"errors"
	"io"
	"strings"
	"log/slog"
	"testing"

	"github.com/sandeepkv93/social-realtime-backend/internal/config"
)

func TestRuntimeShutdownNilAndEmpty(t *testing.T) {
	var r *Runtime
	if err := r.Shutdown(context.Background()); err != nil {
		t.Fatalf("nil runtime shutdown: %v", err)
	}

	r = &Runtime{}
	if err := r.Shutdown(context.Background()); err != nil {
		t.Fatalf("empty runtime shutdown: %v", err)
	}
}

func TestRuntimeShutdownReverseOrder(t *testing.T) {
	var order []string
	stop := func(name string, err error) stopFunc {
		return stopFunc{name: name, fn: func(context.Context) error {
			order = append(order, name)
			return err
		}}
	}
	r := &Runtime{stops: []stopFunc{
		stop("logs", nil),
		stop("metrics", errors.New("exporter unavailable")),
		stop("tracing", nil),
	}}
	err := r.Shutdown(context.Background())
	if strings.Join(order, ",") != "tracing,metrics,logs" {
		t.Fatalf("unexpected shutdown order %v", order)
	}
	if err == nil || !strings.Contains(err.Error(), "shutdown metrics: exporter unavailable") {
		t.Fatalf("expected metrics shutdown error, got %v", err)
	}
	if err := r.Shutdown(context.Background()); err != nil {
		t.Fatalf("second shutdown must be a no-op: %v", err)
	}
}

func TestInitRuntimeAllDisabled(t *testing.T) {
	cfg := &config.Config{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r, err := InitRuntime(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("init runtime disabled: %v", err)
	}
	if r == nil || r.MeterProvider == nil || r.TracerProvider == nil {
		t.Fatalf("expected runtime providers, got %+v", r)
	}
	if r.LoggerProvider != nil {
		t.Fatal("expected no logger provider when otel logs are disabled")
	}
	if err := r.Shutdown(context.Background()); err != nil {
		t.Fatalf("runtime shutdown: %v", err)
	}
}

func TestInitRuntimeExporterErrorBranches(t *testing.T) {
	cases := map[string]*config.Config{
		"logs":    {OTELLogsEnabled: true},
		"metrics": {OTELMetricsEnabled: true},
		"tracing": {OTELTracingEnabled: true, OTELTraceSamplingRatio: 1},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			cfg.OTELExporterOTLPEndpoint = "%"
			cfg.OTELExporterOTLPInsecure = true
			cfg.OTELServiceName = "svc"
			cfg.OTELEnvironment = "test"
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			if _, err := InitRuntime(context.Background(), cfg, logger); err == nil {
				t.Fatalf("expected runtime init error from %s exporter", name)
			}
		})
	}
}
