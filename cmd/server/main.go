package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"meeting-point-service/internal/adapters/cache"
	"meeting-point-service/internal/adapters/routing"
	"meeting-point-service/internal/api"
	"meeting-point-service/internal/config"
	"meeting-point-service/internal/domain"
	"meeting-point-service/internal/gateway"
	"meeting-point-service/internal/platform/db"
	"meeting-point-service/internal/platform/telemetry"
	"meeting-point-service/internal/ports"
	"meeting-point-service/internal/search"
	"meeting-point-service/internal/services"
)

const version = "0.1.0"

// main is the application composition root.
// It wires concrete adapters (routing provider, cache backend) behind ports and starts the HTTP server.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			log.Printf("telemetry shutdown: %v", err)
		}
	}()

	provider, err := newProvider(cfg)
	if err != nil {
		log.Fatal(err)
	}

	travelCache, closer, err := newCache(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer closer.Close()

	gw, err := gateway.New(provider, travelCache, gateway.Config{
		FailureThreshold: cfg.BreakerFailureThreshold,
		FailureWindow:    cfg.BreakerWindow,
		ReopenTimeout:    cfg.BreakerReopenTimeout,
		DailyBudget:      cfg.QuotaDailyBudget,
		CallTimeout:      cfg.RoutingTimeout,
		MaxInFlight:      int64(cfg.GatewayMaxInFlight),
	})
	if err != nil {
		log.Fatal(err)
	}

	engine := search.New(gw, search.Config{Concurrency: cfg.SearchConcurrency})
	orchestrator := services.NewOrchestrator(engine, gw, services.CacheScope(cfg.CacheScope))
	router := api.NewRouter(gw, orchestrator, domain.DefaultSingaporeRegion(), domain.DefaultSearchConfig())

	// Timeouts are tuned for cold-cache optimizations (many provider round trips).
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Printf("server shutdown: %v", err)
		}
	}()

	log.Printf("Server listening addr=:%s provider=%s cache=%s scope=%s", cfg.Port, provider.Name(), cfg.CacheBackend, cfg.CacheScope)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}

func newProvider(cfg config.Config) (ports.RoutingProvider, error) {
	if cfg.RoutingProvider == "mock" {
		log.Println("Using mock routing provider")
		return routing.NewMockRoutingProvider(), nil
	}

	opts := []routing.DirectionsOption{}
	if cfg.RoutingBaseURL != "" {
		opts = append(opts, routing.WithBaseURL(cfg.RoutingBaseURL))
	}
	return routing.NewGoogleDirectionsProvider(cfg.GoogleMapsKey, opts...)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// newCache builds the configured travel-time cache. The returned closer
// releases the backing connection.
func newCache(ctx context.Context, cfg config.Config) (ports.TravelTimeCache, io.Closer, error) {
	switch cfg.CacheBackend {
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("new cache: parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("new cache: ping redis: %w", err)
		}
		return cache.NewRedisTravelTimeCache(client, cfg.CacheTTL), client, nil

	case "postgres":
		conn, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return newSQLCache(ctx, conn, cache.DialectPostgres, cfg.CacheTTL)

	case "sqlite":
		conn, err := db.OpenSQLite(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return newSQLCache(ctx, conn, cache.DialectSQLite, cfg.CacheTTL)

	default:
		return cache.NewMemoryTravelTimeCache(cfg.CacheTTL, cache.DefaultMaxEntries), nopCloser{}, nil
	}
}

func newSQLCache(ctx context.Context, conn *sql.DB, dialect cache.Dialect, ttl time.Duration) (ports.TravelTimeCache, io.Closer, error) {
	if err := cache.InitSchema(conn, dialect); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("new cache: %w", err)
	}

	c := cache.NewSQLTravelTimeCache(conn, dialect, ttl)
	go purgeLoop(ctx, c, ttl)
	return c, conn, nil
}

// purgeLoop deletes expired rows so the table does not grow without bound.
func purgeLoop(ctx context.Context, c *cache.SQLTravelTimeCache, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := c.PurgeExpired(ctx)
			if err != nil {
				log.Printf("cache purge failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("cache purge removed=%d", n)
			}
		}
	}
}
