// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Routing provider settings.
	RoutingProvider string // "google" or "mock"
	GoogleMapsKey   string
	RoutingBaseURL  string // Overrides the Directions API host; empty uses the default.
	RoutingTimeout  time.Duration

	// Gateway protection.
	BreakerFailureThreshold int
	BreakerWindow           time.Duration
	BreakerReopenTimeout    time.Duration
	QuotaDailyBudget        int
	GatewayMaxInFlight      int

	// Travel-time cache.
	CacheBackend string // "memory", "redis", "postgres" or "sqlite"
	CacheTTL     time.Duration
	CacheScope   string // "ttl" or "run"
	RedisURL     string
	DatabaseURL  string
	DBPath       string

	// Search.
	SearchConcurrency int

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	var errs []error
	intVal := func(key string, def int) int {
		v, err := envInt(key, def)
		errs = append(errs, err)
		return v
	}
	durVal := func(key string, def time.Duration) time.Duration {
		v, err := envDuration(key, def)
		errs = append(errs, err)
		return v
	}
	boolVal := func(key string, def bool) bool {
		v, err := envBool(key, def)
		errs = append(errs, err)
		return v
	}

	cfg := Config{
		Port:                    envStr("PORT", "8080"),
		ReadTimeout:             durVal("READ_TIMEOUT", 10*time.Second),
		WriteTimeout:            durVal("WRITE_TIMEOUT", 120*time.Second),
		RoutingProvider:         strings.ToLower(envStr("ROUTING_PROVIDER", "google")),
		GoogleMapsKey:           envStr("GOOGLE_MAPS_API_KEY", ""),
		RoutingBaseURL:          envStr("ROUTING_BASE_URL", ""),
		RoutingTimeout:          durVal("ROUTING_TIMEOUT", 10*time.Second),
		BreakerFailureThreshold: intVal("BREAKER_FAILURE_THRESHOLD", 5),
		BreakerWindow:           durVal("BREAKER_WINDOW", 60*time.Second),
		BreakerReopenTimeout:    durVal("BREAKER_REOPEN_TIMEOUT", 30*time.Second),
		QuotaDailyBudget:        intVal("QUOTA_DAILY_BUDGET", 2500),
		GatewayMaxInFlight:      intVal("GATEWAY_MAX_IN_FLIGHT", 8),
		CacheBackend:            strings.ToLower(envStr("CACHE_BACKEND", "memory")),
		CacheTTL:                durVal("CACHE_TTL", 15*time.Minute),
		CacheScope:              strings.ToLower(envStr("CACHE_SCOPE", "ttl")),
		RedisURL:                envStr("REDIS_URL", "redis://localhost:6379/0"),
		DatabaseURL:             envStr("DATABASE_URL", ""),
		DBPath:                  envStr("DB_PATH", "data/app.db"),
		SearchConcurrency:       intVal("SEARCH_CONCURRENCY", 4),
		OTELEndpoint:            envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:            boolVal("OTEL_INSECURE", true),
		ServiceName:             envStr("OTEL_SERVICE_NAME", "meeting-point-service"),
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present and consistent.
func (c Config) Validate() error {
	switch c.RoutingProvider {
	case "google":
		if strings.TrimSpace(c.GoogleMapsKey) == "" {
			return fmt.Errorf("config: GOOGLE_MAPS_API_KEY is required when ROUTING_PROVIDER=google")
		}
	case "mock":
	default:
		return fmt.Errorf("config: ROUTING_PROVIDER must be google or mock, got %q", c.RoutingProvider)
	}

	switch c.CacheBackend {
	case "memory":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("config: REDIS_URL is required when CACHE_BACKEND=redis")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required when CACHE_BACKEND=postgres")
		}
	case "sqlite":
		if c.DBPath == "" {
			return fmt.Errorf("config: DB_PATH is required when CACHE_BACKEND=sqlite")
		}
	default:
		return fmt.Errorf("config: CACHE_BACKEND must be memory, redis, postgres or sqlite, got %q", c.CacheBackend)
	}

	if c.CacheScope != "ttl" && c.CacheScope != "run" {
		return fmt.Errorf("config: CACHE_SCOPE must be ttl or run, got %q", c.CacheScope)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("config: CACHE_TTL must be positive")
	}
	if c.BreakerFailureThreshold <= 0 {
		return fmt.Errorf("config: BREAKER_FAILURE_THRESHOLD must be positive")
	}
	if c.QuotaDailyBudget <= 0 {
		return fmt.Errorf("config: QUOTA_DAILY_BUDGET must be positive")
	}
	if c.GatewayMaxInFlight <= 0 {
		return fmt.Errorf("config: GATEWAY_MAX_IN_FLIGHT must be positive")
	}
	if c.SearchConcurrency <= 0 {
		return fmt.Errorf("config: SEARCH_CONCURRENCY must be positive")
	}
	return nil
}

// Get returns the environment value for key, or fallback when unset.
func Get(key, fallback string) string {
	return envStr(key, fallback)
}

func envStr(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}
