package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env      string
	HTTPPort string

	DatabaseURL string

	RedisEnabled   bool
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string

	JWTIssuer          string
	JWTAudience        string
	JWTAccessSecret    string
	JWTRefreshSecret   string
	JWTAccessTTL       time.Duration
	JWTRefreshTTL      time.Duration
	BcryptCost         int
	CookieDomain       string
	CookieSecure       bool
	CookieSameSite     string
	CORSAllowedOrigins []string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	OAuthStateSecret   string

	SessionMaxConcurrent     int
	SessionInactivityTimeout time.Duration
	SessionLifetime          time.Duration
	SessionCleanupInterval   time.Duration

	ActionLockGrace  time.Duration
	WSSendBuffer     int
	WSInboundBuffer  int
	WSAllowedOrigins []string

	AuthRateLimitPerMin int
	APIRateLimitPerMin  int
	MaxBodyBytes        int64

	LogLevel                  string
	LogFormat                 string
	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsEnabled        bool
	OTELTracingEnabled        bool
	OTELLogsEnabled           bool
	OTELMetricsExportInterval time.Duration
	OTELTraceSamplingRatio    float64
	OTELHTTPEnabled           bool

	ShutdownTimeout       time.Duration
	ShutdownHTTPDrainTime time.Duration
	ShutdownObservability time.Duration
}

// LoadError reports which stage of Load rejected the environment.
type LoadError struct {
	Stage string
	Key   string
	Err   error
}

func (e *LoadError) Error() string {
	if e.Stage == stageParse {
		return fmt.Sprintf("parse %s: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("validate config: %v", e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func Load() (*Config, error) {
	cfg, err := load()
	if err != nil {
		recordLoadOutcome(context.Background(), loadOutcome{profile: os.Getenv("APP_ENV"), err: err})
		return nil, err
	}
	recordLoadOutcome(context.Background(), loadOutcome{
		profile:       cfg.Env,
		redis:         cfg.RedisEnabled,
		oauth:         cfg.GoogleOAuthEnabled(),
		sessionPolicy: cfg.SessionMaxConcurrent,
	})
	return cfg, nil
}

func load() (*Config, error) {
	cfg := &Config{
		Env:                      getEnv("APP_ENV", "development"),
		HTTPPort:                 getEnv("HTTP_PORT", "8080"),
		DatabaseURL:              os.Getenv("DATABASE_URL"),
		RedisEnabled:             getEnvBool("REDIS_ENABLED", false),
		RedisAddr:                getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:            os.Getenv("REDIS_PASSWORD"),
		RedisDB:                  getEnvInt("REDIS_DB", 0),
		RedisKeyPrefix:           getEnv("REDIS_KEY_PREFIX", "social"),
		JWTIssuer:                getEnv("JWT_ISSUER", "social-realtime-backend"),
		JWTAudience:              getEnv("JWT_AUDIENCE", "social-realtime-backend-api"),
		JWTAccessSecret:          os.Getenv("JWT_ACCESS_SECRET"),
		JWTRefreshSecret:         os.Getenv("JWT_REFRESH_SECRET"),
		BcryptCost:               getEnvInt("BCRYPT_COST", 12),
		CookieDomain:             os.Getenv("COOKIE_DOMAIN"),
		CookieSecure:             getEnvBool("COOKIE_SECURE", true),
		CookieSameSite:           strings.ToLower(getEnv("COOKIE_SAMESITE", "lax")),
		CORSAllowedOrigins:       splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		GoogleClientID:           os.Getenv("GOOGLE_OAUTH_CLIENT_ID"),
		GoogleClientSecret:       os.Getenv("GOOGLE_OAUTH_CLIENT_SECRET"),
		GoogleRedirectURL:        getEnv("GOOGLE_OAUTH_REDIRECT_URL", "http://localhost:8080/api/v1/auth/google/callback"),
		OAuthStateSecret:         os.Getenv("OAUTH_STATE_SECRET"),
		SessionMaxConcurrent:     getEnvInt("SESSION_MAX_CONCURRENT", 3),
		WSSendBuffer:             getEnvInt("WS_SEND_BUFFER", 64),
		WSInboundBuffer:          getEnvInt("WS_INBOUND_BUFFER", 32),
		WSAllowedOrigins:         splitCSV(getEnv("WS_ALLOWED_ORIGINS", "")),
		AuthRateLimitPerMin:      getEnvInt("AUTH_RATE_LIMIT_PER_MIN", 30),
		APIRateLimitPerMin:       getEnvInt("API_RATE_LIMIT_PER_MIN", 120),
		MaxBodyBytes:             int64(getEnvInt("HTTP_MAX_BODY_BYTES", 1<<20)),
		LogLevel:                 getEnv("LOG_LEVEL", "info"),
		LogFormat:                strings.ToLower(getEnv("LOG_FORMAT", "")),
		OTELServiceName:          getEnv("OTEL_SERVICE_NAME", "social-realtime-backend"),
		OTELEnvironment:          getEnv("OTEL_ENVIRONMENT", getEnv("APP_ENV", "development")),
		OTELExporterOTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELExporterOTLPInsecure: getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELMetricsEnabled:       getEnvBool("OTEL_METRICS_ENABLED", false),
		OTELTracingEnabled:       getEnvBool("OTEL_TRACING_ENABLED", false),
		OTELLogsEnabled:          getEnvBool("OTEL_LOGS_ENABLED", false),
		OTELHTTPEnabled:          getEnvBool("OTEL_HTTP_ENABLED", true),
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"JWT_ACCESS_TTL", "15m", &cfg.JWTAccessTTL},
		{"JWT_REFRESH_TTL", "168h", &cfg.JWTRefreshTTL},
		{"SESSION_INACTIVITY_TIMEOUT", "30m", &cfg.SessionInactivityTimeout},
		{"SESSION_LIFETIME", "168h", &cfg.SessionLifetime},
		{"SESSION_CLEANUP_INTERVAL", "1h", &cfg.SessionCleanupInterval},
		{"ACTION_LOCK_GRACE", "2s", &cfg.ActionLockGrace},
		{"OTEL_METRICS_EXPORT_INTERVAL", "15s", &cfg.OTELMetricsExportInterval},
		{"SHUTDOWN_TIMEOUT", "20s", &cfg.ShutdownTimeout},
		{"SHUTDOWN_HTTP_DRAIN_TIMEOUT", "10s", &cfg.ShutdownHTTPDrainTime},
		{"SHUTDOWN_OBSERVABILITY_TIMEOUT", "5s", &cfg.ShutdownObservability},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(getEnv(d.key, d.def))
		if err != nil {
			return nil, &LoadError{Stage: stageParse, Key: d.key, Err: err}
		}
		*d.dst = v
	}

	ratio, err := strconv.ParseFloat(getEnv("OTEL_TRACE_SAMPLING_RATIO", "1"), 64)
	if err != nil {
		return nil, &LoadError{Stage: stageParse, Key: "OTEL_TRACE_SAMPLING_RATIO", Err: err}
	}
	cfg.OTELTraceSamplingRatio = ratio

	if err := cfg.Validate(); err != nil {
		return nil, &LoadError{Stage: stageValidate, Err: err}
	}
	return cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, "development") || strings.EqualFold(c.Env, "dev")
}

func (c *Config) GoogleOAuthEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

func (c *Config) Validate() error {
	var errs []string
	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if len(c.JWTAccessSecret) < 32 {
		errs = append(errs, "JWT_ACCESS_SECRET must be at least 32 chars")
	}
	if len(c.JWTRefreshSecret) < 32 {
		errs = append(errs, "JWT_REFRESH_SECRET must be at least 32 chars")
	}
	if c.JWTAccessSecret == c.JWTRefreshSecret {
		errs = append(errs, "JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if c.JWTAccessTTL <= 0 || c.JWTAccessTTL > time.Hour {
		errs = append(errs, "JWT_ACCESS_TTL must be between 1s and 1h")
	}
	if c.JWTRefreshTTL <= 0 || c.JWTRefreshTTL > (30*24*time.Hour) {
		errs = append(errs, "JWT_REFRESH_TTL must be between 1s and 30d")
	}
	if (c.GoogleClientID == "") != (c.GoogleClientSecret == "") {
		errs = append(errs, "GOOGLE_OAUTH_CLIENT_ID and GOOGLE_OAUTH_CLIENT_SECRET must be set together")
	}
	if c.GoogleOAuthEnabled() && len(c.OAuthStateSecret) < 32 {
		errs = append(errs, "OAUTH_STATE_SECRET must be at least 32 chars when google oauth is enabled")
	}
	if c.SessionMaxConcurrent <= 0 {
		errs = append(errs, "SESSION_MAX_CONCURRENT must be > 0")
	}
	if c.SessionInactivityTimeout <= 0 {
		errs = append(errs, "SESSION_INACTIVITY_TIMEOUT must be > 0")
	}
	if c.SessionLifetime <= 0 {
		errs = append(errs, "SESSION_LIFETIME must be > 0")
	}
	if c.SessionCleanupInterval <= 0 {
		errs = append(errs, "SESSION_CLEANUP_INTERVAL must be > 0")
	}
	if c.ActionLockGrace < 0 {
		errs = append(errs, "ACTION_LOCK_GRACE must be >= 0")
	}
	if c.WSSendBuffer <= 0 || c.WSInboundBuffer <= 0 {
		errs = append(errs, "WS_SEND_BUFFER and WS_INBOUND_BUFFER must be > 0")
	}
	if c.RedisEnabled && strings.TrimSpace(c.RedisAddr) == "" {
		errs = append(errs, "REDIS_ADDR is required when REDIS_ENABLED=true")
	}
	if c.AuthRateLimitPerMin <= 0 {
		errs = append(errs, "AUTH_RATE_LIMIT_PER_MIN must be > 0")
	}
	if c.APIRateLimitPerMin <= 0 {
		errs = append(errs, "API_RATE_LIMIT_PER_MIN must be > 0")
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, "HTTP_MAX_BODY_BYTES must be > 0")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errs = append(errs, "BCRYPT_COST must be between 4 and 31")
	}
	switch c.CookieSameSite {
	case "lax", "strict", "none":
	default:
		errs = append(errs, "COOKIE_SAMESITE must be one of lax, strict, none")
	}
	switch c.LogFormat {
	case "", "json", "text", "console":
	default:
		errs = append(errs, "LOG_FORMAT must be one of json, text, console")
	}
	if c.OTELTraceSamplingRatio < 0 || c.OTELTraceSamplingRatio > 1 {
		errs = append(errs, "OTEL_TRACE_SAMPLING_RATIO must be between 0 and 1")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trim := strings.TrimSpace(p)
		if trim != "" {
			out = append(out, trim)
		}
	}
	return out
}
