package config

import (
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
	RedisURL    string

	StateSigningSecret string
	CookieDomain       string
	CookieSecure       bool
	CORSAllowedOrigins []string

	AppBaseURL            string
	WebRedirectURIs       []string
	MobileRedirectSchemes []string

	GoogleClientID      string
	GoogleClientSecret  string
	GoogleRedirectURL   string
	DiscordClientID     string
	DiscordClientSecret string
	DiscordRedirectURL  string

	TurnstileSecret string

	StorageEndpoint     string
	StorageAccessKey    string
	StorageSecretKey    string
	StorageBucket       string
	StorageUseSSL       bool
	StoragePublicBaseURL string

	AuthRateLimitPerMin int
	APIRateLimitPerMin  int

	SessionSweepInterval time.Duration

	LogLevel string

	OTELLogsEnabled          bool
	OTELMetricsEnabled       bool
	OTELTracingEnabled       bool
	OTELExporterOTLPEndpoint string
	OTELExporterOTLPInsecure bool
	OTELServiceName          string
	OTELEnvironment          string
	OTELTraceSamplingRatio   float64
}

func Load() (*Config, error) {
	cfg := &Config{
		Env:                  getEnv("APP_ENV", "development"),
		HTTPPort:             getEnv("HTTP_PORT", "8080"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisURL:             getEnv("REDIS_URL", "redis://localhost:6379/0"),
		StateSigningSecret:   os.Getenv("OAUTH_STATE_SECRET"),
		CookieDomain:         os.Getenv("COOKIE_DOMAIN"),
		CookieSecure:         getEnvBool("COOKIE_SECURE", true),
		CORSAllowedOrigins:   splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		AppBaseURL:           getEnv("APP_BASE_URL", "http://localhost:8080"),
		WebRedirectURIs:      splitCSV(getEnv("WEB_REDIRECT_URIS", "http://localhost:3000")),
		MobileRedirectSchemes: splitCSV(getEnv("MOBILE_REDIRECT_SCHEMES", "app")),
		GoogleClientID:       os.Getenv("GOOGLE_OAUTH_CLIENT_ID"),
		GoogleClientSecret:   os.Getenv("GOOGLE_OAUTH_CLIENT_SECRET"),
		GoogleRedirectURL:    getEnv("GOOGLE_OAUTH_REDIRECT_URL", "http://localhost:8080/api/v1/auth/google/callback"),
		DiscordClientID:      os.Getenv("DISCORD_OAUTH_CLIENT_ID"),
		DiscordClientSecret:  os.Getenv("DISCORD_OAUTH_CLIENT_SECRET"),
		DiscordRedirectURL:   getEnv("DISCORD_OAUTH_REDIRECT_URL", "http://localhost:8080/api/v1/auth/discord/callback"),
		TurnstileSecret:      os.Getenv("TURNSTILE_SECRET"),
		StorageEndpoint:      getEnv("STORAGE_ENDPOINT", "localhost:9000"),
		StorageAccessKey:     os.Getenv("STORAGE_ACCESS_KEY"),
		StorageSecretKey:     os.Getenv("STORAGE_SECRET_KEY"),
		StorageBucket:        getEnv("STORAGE_BUCKET", "user-icons"),
		StorageUseSSL:        getEnvBool("STORAGE_USE_SSL", false),
		StoragePublicBaseURL: getEnv("STORAGE_PUBLIC_BASE_URL", "http://localhost:9000/user-icons"),
		AuthRateLimitPerMin:  getEnvInt("AUTH_RATE_LIMIT_PER_MIN", 30),
		APIRateLimitPerMin:   getEnvInt("API_RATE_LIMIT_PER_MIN", 120),
		LogLevel:             getEnv("LOG_LEVEL", "info"),

		OTELLogsEnabled:          getEnvBool("OTEL_LOGS_ENABLED", false),
		OTELMetricsEnabled:       getEnvBool("OTEL_METRICS_ENABLED", false),
		OTELTracingEnabled:       getEnvBool("OTEL_TRACING_ENABLED", false),
		OTELExporterOTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		OTELExporterOTLPInsecure: getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELServiceName:          getEnv("OTEL_SERVICE_NAME", "go-identity-service"),
		OTELEnvironment:          getEnv("OTEL_ENVIRONMENT", "development"),
	}

	ratio, err := strconv.ParseFloat(getEnv("OTEL_TRACE_SAMPLING_RATIO", "0.1"), 64)
	if err != nil {
		return nil, fmt.Errorf("parse OTEL_TRACE_SAMPLING_RATIO: %w", err)
	}
	cfg.OTELTraceSamplingRatio = ratio

	sweep, err := time.ParseDuration(getEnv("SESSION_SWEEP_INTERVAL", "1h"))
	if err != nil {
		return nil, fmt.Errorf("parse SESSION_SWEEP_INTERVAL: %w", err)
	}
	cfg.SessionSweepInterval = sweep

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string
	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if len(c.StateSigningSecret) < 16 {
		errs = append(errs, "OAUTH_STATE_SECRET must be at least 16 chars")
	}
	if c.GoogleClientID == "" {
		errs = append(errs, "GOOGLE_OAUTH_CLIENT_ID is required")
	}
	if c.GoogleClientSecret == "" {
		errs = append(errs, "GOOGLE_OAUTH_CLIENT_SECRET is required")
	}
	if len(c.WebRedirectURIs) == 0 {
		errs = append(errs, "WEB_REDIRECT_URIS must list at least one origin")
	}
	if c.AuthRateLimitPerMin <= 0 {
		errs = append(errs, "AUTH_RATE_LIMIT_PER_MIN must be > 0")
	}
	if c.APIRateLimitPerMin <= 0 {
		errs = append(errs, "API_RATE_LIMIT_PER_MIN must be > 0")
	}
	if c.SessionSweepInterval < time.Minute {
		errs = append(errs, "SESSION_SWEEP_INTERVAL must be at least 1m")
	}
	if c.OTELTraceSamplingRatio < 0 || c.OTELTraceSamplingRatio > 1 {
		errs = append(errs, "OTEL_TRACE_SAMPLING_RATIO must be in [0, 1]")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// IsDevelopment reports whether the service runs without production
// hardening (dev email gateway, captcha bypass).
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
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
