package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meeting-point-service/internal/adapters/cache"
	"meeting-point-service/internal/adapters/routing"
	"meeting-point-service/internal/domain"
	"meeting-point-service/internal/ports"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var (
	bishan     = domain.Coordinate{Lat: 1.3510, Lng: 103.8483}
	outram     = domain.Coordinate{Lat: 1.2803, Lng: 103.8395}
	payaLebar  = domain.Coordinate{Lat: 1.3177, Lng: 103.8927}
	buonaVista = domain.Coordinate{Lat: 1.3072, Lng: 103.7903}
	newYork    = domain.Coordinate{Lat: 40.7128, Lng: -74.0060}
)

func newTestGateway(t *testing.T, cfg Config) (*Gateway, *routing.MockRoutingProvider, *fakeClock) {
	t.Helper()

	// 10:00 SGT
	clock := &fakeClock{now: time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC)}
	provider := routing.NewMockRoutingProvider()
	c := cache.NewMemoryTravelTimeCache(15*time.Minute, 0)
	c.SetClock(clock.Now)

	gw, err := New(provider, c, cfg, WithClock(clock.Now))
	require.NoError(t, err)
	return gw, provider, clock
}

// distinct destinations so that calls never share a cache key
func destination(i int) domain.Coordinate {
	return domain.Coordinate{Lat: 1.30 + float64(i)*0.0005, Lng: 103.85}
}

func TestGetTravelTimeRejectsOutOfRegion(t *testing.T) {
	gw, provider, _ := newTestGateway(t, Config{})

	res := gw.GetTravelTime(context.Background(), newYork, bishan, domain.ModeTransit)

	assert.Equal(t, domain.StatusError, res.Status)
	assert.Equal(t, domain.ErrorKindValidation, res.ErrorKind)
	assert.Contains(t, res.Error, "outside the supported service region")
	assert.Equal(t, 0, provider.Calls())

	st := gw.ServiceStatus()
	assert.Equal(t, 0, st.QuotaUsed)
	assert.Equal(t, ports.BreakerClosed, st.BreakerState)
	assert.Equal(t, 0, st.ConsecutiveFailures)
}

func TestGetTravelTimeSuccessIsCached(t *testing.T) {
	gw, provider, _ := newTestGateway(t, Config{})
	ctx := context.Background()

	first := gw.GetTravelTime(ctx, bishan, outram, domain.ModeDriving)
	require.True(t, first.OK(), first.Error)
	assert.False(t, first.Cached)
	assert.Greater(t, first.Duration, 0.0)
	assert.Greater(t, first.Distance, 7.0)
	assert.Equal(t, 0.9, first.Confidence)
	assert.Equal(t, "mock", first.Source)

	second := gw.GetTravelTime(ctx, bishan, outram, domain.ModeDriving)
	require.True(t, second.OK())
	assert.True(t, second.Cached)
	assert.Equal(t, first.Duration, second.Duration)

	// different mode is a different key
	walk := gw.GetTravelTime(ctx, bishan, outram, domain.ModeWalking)
	require.True(t, walk.OK())
	assert.False(t, walk.Cached)
	assert.Greater(t, walk.Duration, first.Duration)

	assert.Equal(t, 2, provider.Calls())
	assert.Equal(t, 2, gw.ServiceStatus().QuotaUsed)
}

func TestCacheHitBypassesOpenBreaker(t *testing.T) {
	gw, provider, _ := newTestGateway(t, Config{FailureThreshold: 1})
	ctx := context.Background()

	require.True(t, gw.GetTravelTime(ctx, bishan, outram, domain.ModeTransit).OK())

	provider.FailAll(&routing.MockStep{Err: errors.New("connection reset")})
	require.False(t, gw.GetTravelTime(ctx, bishan, payaLebar, domain.ModeTransit).OK())
	require.Equal(t, ports.BreakerOpen, gw.ServiceStatus().BreakerState)

	res := gw.GetTravelTime(ctx, bishan, outram, domain.ModeTransit)
	assert.True(t, res.OK())
	assert.True(t, res.Cached)
	assert.Equal(t, 2, provider.Calls())
}

func TestBreakerOpensAndFailsFast(t *testing.T) {
	gw, provider, _ := newTestGateway(t, Config{FailureThreshold: 3, ReopenTimeout: 30 * time.Second})
	ctx := context.Background()

	provider.FailAll(&routing.MockStep{Err: errors.New("dial tcp: connection refused")})
	for i := 0; i < 3; i++ {
		res := gw.GetTravelTime(ctx, bishan, destination(i), domain.ModeTransit)
		require.Equal(t, domain.ErrorKindNetwork, res.ErrorKind)
		assert.Contains(t, res.Error, "connection refused")
	}

	res := gw.GetTravelTime(ctx, bishan, destination(9), domain.ModeTransit)
	assert.Equal(t, domain.ErrorKindCircuitOpen, res.ErrorKind)
	assert.Equal(t, 3, provider.Calls(), "open breaker must not reach the provider")

	st := gw.ServiceStatus()
	assert.Equal(t, ports.BreakerOpen, st.BreakerState)
	assert.False(t, st.CanMakeRequest)
	assert.Equal(t, int64(30000), st.MsUntilProbe)
	assert.Equal(t, 0, st.QuotaUsed, "failed calls do not consume quota")
}

func TestBreakerHalfOpenAdmitsSingleProbe(t *testing.T) {
	gw, provider, clock := newTestGateway(t, Config{FailureThreshold: 2, ReopenTimeout: 30 * time.Second})
	ctx := context.Background()

	provider.FailAll(&routing.MockStep{Status: "UNKNOWN_ERROR", Message: "backend error"})
	for i := 0; i < 2; i++ {
		res := gw.GetTravelTime(ctx, bishan, destination(i), domain.ModeTransit)
		require.Equal(t, domain.ErrorKindProvider, res.ErrorKind)
		assert.Contains(t, res.Error, "UNKNOWN_ERROR")
	}
	require.Equal(t, ports.BreakerOpen, gw.ServiceStatus().BreakerState)

	clock.Advance(30 * time.Second)
	provider.FailAll(nil)

	st := gw.ServiceStatus()
	assert.Equal(t, ports.BreakerHalfOpen, st.BreakerState)
	assert.True(t, st.CanMakeRequest)
	assert.Equal(t, int64(0), st.MsUntilProbe)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	provider.OnCall(func(ports.RouteRequest) {
		once.Do(func() {
			close(entered)
			<-release
		})
	})

	probeDone := make(chan domain.TravelTimeResult, 1)
	go func() {
		probeDone <- gw.GetTravelTime(ctx, bishan, destination(5), domain.ModeTransit)
	}()
	<-entered

	blocked := gw.GetTravelTime(ctx, bishan, destination(6), domain.ModeTransit)
	assert.Equal(t, domain.ErrorKindCircuitOpen, blocked.ErrorKind)
	assert.Contains(t, blocked.Error, "probe")
	assert.False(t, gw.ServiceStatus().CanMakeRequest)

	close(release)
	probe := <-probeDone
	require.True(t, probe.OK(), probe.Error)

	st = gw.ServiceStatus()
	assert.Equal(t, ports.BreakerClosed, st.BreakerState)
	assert.Equal(t, 0, st.ConsecutiveFailures)
	assert.Equal(t, 3, provider.Calls())

	assert.True(t, gw.GetTravelTime(ctx, bishan, destination(7), domain.ModeTransit).OK())
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	gw, provider, clock := newTestGateway(t, Config{FailureThreshold: 1, ReopenTimeout: 10 * time.Second})
	ctx := context.Background()

	provider.FailAll(&routing.MockStep{Err: errors.New("timeout")})
	require.False(t, gw.GetTravelTime(ctx, bishan, destination(0), domain.ModeTransit).OK())

	clock.Advance(10 * time.Second)
	res := gw.GetTravelTime(ctx, bishan, destination(1), domain.ModeTransit)
	assert.Equal(t, domain.ErrorKindNetwork, res.ErrorKind)

	st := gw.ServiceStatus()
	assert.Equal(t, ports.BreakerOpen, st.BreakerState)
	assert.Equal(t, int64(10000), st.MsUntilProbe, "timeout restarts after a failed probe")
	assert.Equal(t, 2, provider.Calls())
}

func TestBreakerFailuresOutsideWindowDoNotAccumulate(t *testing.T) {
	gw, provider, clock := newTestGateway(t, Config{FailureThreshold: 2, FailureWindow: time.Minute})
	ctx := context.Background()

	provider.FailAll(&routing.MockStep{Err: errors.New("reset")})
	gw.GetTravelTime(ctx, bishan, destination(0), domain.ModeTransit)
	clock.Advance(2 * time.Minute)
	gw.GetTravelTime(ctx, bishan, destination(1), domain.ModeTransit)

	st := gw.ServiceStatus()
	assert.Equal(t, ports.BreakerClosed, st.BreakerState)
	assert.Equal(t, 1, st.ConsecutiveFailures)
}

func TestBreakerCountsFailuresInRollingWindow(t *testing.T) {
	gw, provider, clock := newTestGateway(t, Config{FailureThreshold: 3, FailureWindow: time.Minute})
	ctx := context.Background()

	provider.FailAll(&routing.MockStep{Err: errors.New("reset")})

	// Failures at 0s, 50s, 70s and 75s. No fixed window starting at 0s holds
	// three of them, but 50s..75s falls inside one 60s span.
	gw.GetTravelTime(ctx, bishan, destination(0), domain.ModeTransit)
	clock.Advance(50 * time.Second)
	gw.GetTravelTime(ctx, bishan, destination(1), domain.ModeTransit)
	clock.Advance(20 * time.Second)
	gw.GetTravelTime(ctx, bishan, destination(2), domain.ModeTransit)

	st := gw.ServiceStatus()
	require.Equal(t, ports.BreakerClosed, st.BreakerState)
	require.Equal(t, 2, st.ConsecutiveFailures, "the 0s failure has aged out")

	clock.Advance(5 * time.Second)
	gw.GetTravelTime(ctx, bishan, destination(3), domain.ModeTransit)

	st = gw.ServiceStatus()
	assert.Equal(t, ports.BreakerOpen, st.BreakerState)
	assert.False(t, st.CanMakeRequest)
	assert.Equal(t, 4, provider.Calls())
}

func TestSuccessResetsConsecutiveFailures(t *testing.T) {
	gw, provider, _ := newTestGateway(t, Config{FailureThreshold: 3})
	ctx := context.Background()

	provider.Script(
		routing.MockStep{Err: errors.New("reset")},
		routing.MockStep{Err: errors.New("reset")},
	)
	gw.GetTravelTime(ctx, bishan, destination(0), domain.ModeTransit)
	gw.GetTravelTime(ctx, bishan, destination(1), domain.ModeTransit)
	require.Equal(t, 2, gw.ServiceStatus().ConsecutiveFailures)

	require.True(t, gw.GetTravelTime(ctx, bishan, destination(2), domain.ModeTransit).OK())
	assert.Equal(t, 0, gw.ServiceStatus().ConsecutiveFailures)
}

func TestQuotaExhaustionAndReset(t *testing.T) {
	gw, provider, clock := newTestGateway(t, Config{DailyBudget: 2})
	ctx := context.Background()

	require.True(t, gw.GetTravelTime(ctx, bishan, destination(0), domain.ModeTransit).OK())
	require.True(t, gw.GetTravelTime(ctx, bishan, destination(1), domain.ModeTransit).OK())

	res := gw.GetTravelTime(ctx, bishan, destination(2), domain.ModeTransit)
	assert.Equal(t, domain.ErrorKindQuotaExceeded, res.ErrorKind)
	assert.Contains(t, res.Error, "quota")
	assert.Equal(t, 2, provider.Calls())

	st := gw.ServiceStatus()
	assert.Equal(t, ports.BreakerClosed, st.BreakerState, "quota is independent of the breaker")
	assert.False(t, st.CanMakeRequest)
	assert.Equal(t, 0, st.QuotaRemaining)
	assert.Equal(t, time.Date(2026, 3, 3, 0, 0, 0, 0, sgt).UTC(), st.QuotaResetsAt.UTC())

	// already-cached keys are still served
	assert.True(t, gw.GetTravelTime(ctx, bishan, destination(0), domain.ModeTransit).Cached)

	// midnight SGT is 16:00 UTC
	clock.Advance(14 * time.Hour)
	res = gw.GetTravelTime(ctx, bishan, destination(2), domain.ModeTransit)
	require.True(t, res.OK(), res.Error)
	assert.Equal(t, 1, gw.ServiceStatus().QuotaUsed)
}

func TestQuotaEnforcedUnderConcurrency(t *testing.T) {
	gw, provider, _ := newTestGateway(t, Config{DailyBudget: 20, MaxInFlight: 4})
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]domain.TravelTimeResult, 50)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = gw.GetTravelTime(ctx, bishan, destination(i), domain.ModeCycling)
		}()
	}
	wg.Wait()

	ok, quota := 0, 0
	for _, r := range results {
		switch {
		case r.OK():
			ok++
		case r.ErrorKind == domain.ErrorKindQuotaExceeded:
			quota++
		}
	}
	assert.Equal(t, 20, ok)
	assert.Equal(t, 30, quota)
	assert.Equal(t, 20, provider.Calls())
	assert.Equal(t, 20, gw.ServiceStatus().QuotaUsed)
}

func TestConcurrentMissesAreCoalesced(t *testing.T) {
	gw, provider, _ := newTestGateway(t, Config{})
	ctx := context.Background()

	release := make(chan struct{})
	provider.OnCall(func(ports.RouteRequest) { <-release })

	var wg sync.WaitGroup
	results := make([]domain.TravelTimeResult, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = gw.GetTravelTime(ctx, bishan, outram, domain.ModeTransit)
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, r := range results {
		assert.True(t, r.OK(), r.Error)
	}
	assert.Equal(t, 1, provider.Calls())
	assert.Equal(t, 1, gw.ServiceStatus().QuotaUsed)
}

func TestProviderTimeoutIsNetworkError(t *testing.T) {
	gw, provider, _ := newTestGateway(t, Config{CallTimeout: 10 * time.Millisecond})

	provider.OnCall(func(ports.RouteRequest) { time.Sleep(50 * time.Millisecond) })

	res := gw.GetTravelTime(context.Background(), bishan, outram, domain.ModeTransit)
	assert.Equal(t, domain.ErrorKindNetwork, res.ErrorKind)
	assert.Contains(t, res.Error, "timed out")
	assert.Equal(t, 1, gw.ServiceStatus().ConsecutiveFailures)
}

func TestGetBatchTravelTimesOrderAndPartialFailure(t *testing.T) {
	gw, _, _ := newTestGateway(t, Config{})

	origins := []domain.Coordinate{newYork, buonaVista}
	modes := []domain.TransportMode{domain.ModeDriving, domain.ModeWalking}

	results := gw.GetBatchTravelTimes(context.Background(), origins, payaLebar, modes)
	require.Len(t, results, 4)

	assert.Equal(t, domain.ErrorKindValidation, results[0].ErrorKind)
	assert.Equal(t, domain.ErrorKindValidation, results[1].ErrorKind)
	require.True(t, results[2].OK(), results[2].Error)
	require.True(t, results[3].OK(), results[3].Error)
	assert.Less(t, results[2].Duration, results[3].Duration, "driving beats walking")
}

func TestGetTravelTimesEmpty(t *testing.T) {
	gw, _, _ := newTestGateway(t, Config{})
	assert.Empty(t, gw.GetTravelTimes(context.Background(), nil))
}

func TestClearCache(t *testing.T) {
	gw, provider, _ := newTestGateway(t, Config{})
	ctx := context.Background()

	gw.GetTravelTime(ctx, bishan, outram, domain.ModeTransit)
	require.NoError(t, gw.ClearCache(ctx))
	res := gw.GetTravelTime(ctx, bishan, outram, domain.ModeTransit)
	assert.False(t, res.Cached)
	assert.Equal(t, 2, provider.Calls())
}

func TestNewRequiresProvider(t *testing.T) {
	_, err := New(nil, nil, Config{})
	require.Error(t, err)
}
