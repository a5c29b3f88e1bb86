package observability

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/sandeepkv93/social-realtime-backend/internal/config"
)

func TestInitTracingDisabledBranch(t *testing.T) {
	cfg := &config.Config{OTELTracingEnabled: false}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tp, err := InitTracing(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("init tracing disabled: %v", err)
	}
	if tp == nil {
		t.Fatal("expected tracer provider")
	}
	_ = tp.Shutdown(context.Background())
}

func TestInitTracingExporterErrorBranch(t *testing.T) {
	cfg := &config.Config{
		OTELTracingEnabled:       true,
		OTELExporterOTLPEndpoint: "%",
		OTELExporterOTLPInsecure: true,
		OTELServiceName:          "svc",
		OTELEnvironment:          "test",
		OTELTraceSamplingRatio:   1.0,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if _, err := InitTracing(context.Background(), cfg, logger); err == nil {
		t.Fatal("expected tracing init error for invalid endpoint")
	}
}

func TestOTLPEndpoint(t *testing.T) {
	cases := []struct {
		raw          string
		forced       bool
		wantHost     string
		wantInsecure bool
	}{
		{raw: "localhost:4317", wantHost: "localhost:4317", wantInsecure: true},
		{raw: "https://collector:4317/v1/traces", wantHost: "collector:4317", wantInsecure: false},
		{raw: "https://collector:4317", forced: true, wantHost: "collector:4317", wantInsecure: true},
	}
	for _, tc := range cases {
		host, insecure, err := otlpEndpoint(&config.Config{OTELExporterOTLPEndpoint: tc.raw, OTELExporterOTLPInsecure: tc.forced})
		if err != nil {
			t.Fatalf("otlpEndpoint(%q): %v", tc.raw, err)
		}
		if host != tc.wantHost || insecure != tc.wantInsecure {
			t.Fatalf("otlpEndpoint(%q)=(%q,%v) want (%q,%v)", tc.raw, host, insecure, tc.wantHost, tc.wantInsecure)
		}
	}
	if _, _, err := otlpEndpoint(&config.Config{OTELExporterOTLPEndpoint: " "}); err == nil {
		t.Fatal("expected error for empty endpoint")
	}
}

func TestClampRatio(t *testing.T) {
	if clampRatio(-1) != 0 {
		t.Fatal("expected lower clamp to 0")
	}
	if clampRatio(2) != 1 {
		t.Fatal("expected upper clamp to 1")
	}
	if clampRatio(0.5) != 0.5 {
		t.Fatal("expected in-range value unchanged")
	}
}
