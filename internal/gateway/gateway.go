// Package gateway turns (origin, destination, mode) lookups into travel-time
// results while shielding the routing provider behind a circuit breaker, a
// daily quota, a result cache and bounded concurrent dispatch.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"meeting-point-service/internal/domain"
	"meeting-point-service/internal/ports"
)

// Config tunes the protection policies. Zero fields fall back to DefaultConfig.
type Config struct {
	FailureThreshold int
	FailureWindow    time.Duration
	ReopenTimeout    time.Duration

	DailyBudget   int
	QuotaLocation *time.Location

	CallTimeout      time.Duration
	MaxInFlight      int64
	BatchConcurrency int

	Region     domain.BoundingBox
	RegionHint string
}

// Singapore time; the quota resets at local midnight.
var sgt = time.FixedZone("SGT", 8*60*60)

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		FailureWindow:    60 * time.Second,
		ReopenTimeout:    30 * time.Second,
		DailyBudget:      2500,
		QuotaLocation:    sgt,
		CallTimeout:      10 * time.Second,
		MaxInFlight:      8,
		BatchConcurrency: 8,
		Region:           domain.ServiceRegion,
		RegionHint:       "sg",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.FailureWindow <= 0 {
		c.FailureWindow = d.FailureWindow
	}
	if c.ReopenTimeout <= 0 {
		c.ReopenTimeout = d.ReopenTimeout
	}
	if c.DailyBudget <= 0 {
		c.DailyBudget = d.DailyBudget
	}
	if c.QuotaLocation == nil {
		c.QuotaLocation = d.QuotaLocation
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = d.CallTimeout
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = d.MaxInFlight
	}
	if c.BatchConcurrency <= 0 {
		c.BatchConcurrency = d.BatchConcurrency
	}
	if c.Region == (domain.BoundingBox{}) {
		c.Region = d.Region
	}
	return c
}

// Provider vocabulary for each logical mode.
var providerModes = map[domain.TransportMode]string{
	domain.ModeTransit: "transit",
	domain.ModeWalking: "walking",
	domain.ModeDriving: "driving",
	domain.ModeCycling: "bicycling",
}

// Gateway is safe for concurrent use. Its breaker, quota and cache state
// live for as long as the instance does.
type Gateway struct {
	provider ports.RoutingProvider
	cache    ports.TravelTimeCache
	cfg      Config

	guard   *guard
	sem     *semaphore.Weighted
	flight  singleflight.Group
	metrics *metrics
}

type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces the time source used by the breaker and quota (tests).
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New builds a gateway. cache may be nil to disable caching.
func New(provider ports.RoutingProvider, cache ports.TravelTimeCache, cfg Config, opts ...Option) (*Gateway, error) {
	if provider == nil {
		return nil, errors.New("new gateway: routing provider is nil")
	}

	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	cfg = cfg.withDefaults()
	return &Gateway{
		provider: provider,
		cache:    cache,
		cfg:      cfg,
		guard:    newGuard(cfg, o.now),
		sem:      semaphore.NewWeighted(cfg.MaxInFlight),
		metrics:  newMetrics(),
	}, nil
}

// GetTravelTime resolves one lookup. Failures are reported in the result,
// never as a Go error.
func (g *Gateway) GetTravelTime(
	ctx context.Context,
	origin domain.Coordinate,
	destination domain.Coordinate,
	mode domain.TransportMode,
) domain.TravelTimeResult {
	source := g.provider.Name()

	if !g.cfg.Region.Contains(origin) {
		return domain.ErrorResult(domain.ErrorKindValidation, source,
			fmt.Sprintf("origin %s is outside the supported service region", origin))
	}
	if !g.cfg.Region.Contains(destination) {
		return domain.ErrorResult(domain.ErrorKindValidation, source,
			fmt.Sprintf("destination %s is outside the supported service region", destination))
	}

	providerMode, ok := providerModes[mode]
	if !ok {
		return domain.ErrorResult(domain.ErrorKindValidation, source,
			fmt.Sprintf("unsupported transport mode %q", mode))
	}

	req := domain.TravelTimeRequest{Origin: origin, Destination: destination, Mode: mode}
	key := req.CacheKey()

	if res, ok := g.cached(ctx, key); ok {
		return res
	}

	// Coalesce concurrent misses for the same key into one provider call.
	v, _, _ := g.flight.Do(key, func() (any, error) {
		if res, ok := g.cached(ctx, key); ok {
			return res, nil
		}
		return g.fetch(ctx, req, providerMode, key), nil
	})
	return v.(domain.TravelTimeResult)
}

func (g *Gateway) cached(ctx context.Context, key string) (domain.TravelTimeResult, bool) {
	if g.cache == nil {
		return domain.TravelTimeResult{}, false
	}

	res, ok, err := g.cache.Get(ctx, key)
	if err != nil {
		log.Printf("gateway: cache read failed key=%s err=%v", key, err)
		return domain.TravelTimeResult{}, false
	}
	if !ok {
		return domain.TravelTimeResult{}, false
	}

	g.metrics.cacheHit(ctx)
	res.Cached = true
	return res, true
}

// fetch runs the breaker/quota admission and, if allowed, the provider call.
func (g *Gateway) fetch(
	ctx context.Context,
	req domain.TravelTimeRequest,
	providerMode string,
	key string,
) domain.TravelTimeResult {
	source := g.provider.Name()

	t, kind, msg := g.guard.admit()
	if kind != domain.ErrorKindNone {
		g.metrics.fastFail(ctx, kind)
		return domain.ErrorResult(kind, source, msg)
	}

	// In-flight calls run to completion even if the caller cancels, so the
	// breaker and quota always see a settled outcome.
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.cfg.CallTimeout)
	defer cancel()

	if err := g.sem.Acquire(callCtx, 1); err != nil {
		g.guard.settle(t, outcomeAborted)
		return domain.ErrorResult(domain.ErrorKindNetwork, source,
			fmt.Sprintf("timed out waiting for a provider slot after %s", g.cfg.CallTimeout))
	}
	resp, err := g.provider.Route(callCtx, ports.RouteRequest{
		Origin:      req.Origin,
		Destination: req.Destination,
		Mode:        providerMode,
		Region:      g.cfg.RegionHint,
	})
	g.sem.Release(1)

	if err != nil {
		g.fail(ctx, t, "network")
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.ErrorResult(domain.ErrorKindNetwork, source,
				fmt.Sprintf("provider call timed out after %s: %v", g.cfg.CallTimeout, err))
		}
		return domain.ErrorResult(domain.ErrorKindNetwork, source, fmt.Sprintf("network error: %v", err))
	}

	if resp.Status != ports.RouteStatusOK {
		g.fail(ctx, t, "provider")
		msg := resp.ErrorMessage
		if msg == "" {
			msg = "no route returned"
		}
		return domain.ErrorResult(domain.ErrorKindProvider, source,
			fmt.Sprintf("provider returned %s: %s", resp.Status, msg))
	}
	if len(resp.Legs) == 0 {
		g.fail(ctx, t, "provider")
		return domain.ErrorResult(domain.ErrorKindProvider, source, "provider returned OK without route legs")
	}

	g.guard.settle(t, outcomeSuccess)
	g.metrics.providerCall(ctx, "success")

	res := resultFromLeg(resp.Legs[0], source)
	if g.cache != nil {
		if err := g.cache.Put(ctx, key, res); err != nil {
			log.Printf("gateway: cache write failed key=%s err=%v", key, err)
		}
	}
	return res
}

func (g *Gateway) fail(ctx context.Context, t ticket, reason string) {
	if g.guard.settle(t, outcomeFailure) {
		g.metrics.breakerTrip(ctx)
	}
	g.metrics.providerCall(ctx, reason)
}

// resultFromLeg converts the first route leg. A traffic-aware duration is
// preferred and reported with higher confidence.
func resultFromLeg(leg ports.RouteLeg, source string) domain.TravelTimeResult {
	seconds := leg.DurationSeconds
	confidence := 0.9
	if leg.DurationInTrafficSeconds > 0 {
		seconds = leg.DurationInTrafficSeconds
		confidence = 0.95
	}

	return domain.TravelTimeResult{
		Status:     domain.StatusSuccess,
		Duration:   seconds / 60,
		Distance:   leg.DistanceMeters / 1000,
		Confidence: confidence,
		Source:     source,
	}
}

// ServiceStatus returns a read-only snapshot of breaker and quota state.
func (g *Gateway) ServiceStatus() ports.ServiceStatus {
	return g.guard.snapshot()
}

// ClearCache drops all cached results.
func (g *Gateway) ClearCache(ctx context.Context) error {
	if g.cache == nil {
		return nil
	}
	if err := g.cache.Clear(ctx); err != nil {
		return fmt.Errorf("gateway: clear cache: %w", err)
	}
	return nil
}
