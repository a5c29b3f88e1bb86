package config

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	stageParse    = "parse"
	stageValidate = "validation"
)

var (
	loadMetricsOnce sync.Once
	loadCounter     metric.Int64Counter
)

type loadOutcome struct {
	profile       string
	redis         bool
	oauth         bool
	sessionPolicy int
	err           error
}

func (o loadOutcome) attributes() []attribute.KeyValue {
	if o.err != nil {
		return []attribute.KeyValue{
			attribute.String("profile", profileLabel(o.profile)),
			attribute.String("outcome", "error"),
			attribute.String("error_class", loadErrorClass(o.err)),
		}
	}
	backend := "memory"
	if o.redis {
		backend = "redis"
	}
	return []attribute.KeyValue{
		attribute.String("profile", profileLabel(o.profile)),
		attribute.String("outcome", "success"),
		attribute.String("error_class", "none"),
		attribute.String("realtime_backend", backend),
		attribute.Bool("google_oauth", o.oauth),
		attribute.String("session_limit", strconv.Itoa(o.sessionPolicy)),
	}
}

func recordLoadOutcome(ctx context.Context, o loadOutcome) {
	loadMetricsOnce.Do(func() {
		counter, err := otel.Meter("social-realtime-backend/config").Int64Counter("config.load.events")
		if err == nil {
			loadCounter = counter
		}
	})
	if loadCounter == nil {
		return
	}
	loadCounter.Add(ctx, 1, metric.WithAttributes(o.attributes()...))
}

// profileLabel folds APP_ENV aliases so dashboards group dev and development together.
func profileLabel(profile string) string {
	switch v := strings.ToLower(strings.TrimSpace(profile)); v {
	case "":
		return "unknown"
	case "dev":
		return "development"
	case "prod":
		return "production"
	default:
		return v
	}
}

func loadErrorClass(err error) string {
	if err == nil {
		return "none"
	}
	var le *LoadError
	if errors.As(err, &le) {
		return le.Stage
	}
	return "load"
}
