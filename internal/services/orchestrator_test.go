package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meeting-point-service/internal/adapters/cache"
	"meeting-point-service/internal/adapters/routing"
	"meeting-point-service/internal/domain"
	"meeting-point-service/internal/gateway"
	"meeting-point-service/internal/ports"
	"meeting-point-service/internal/search"
)

func twoUsers() domain.OptimizationRequest {
	return domain.OptimizationRequest{
		Users: []domain.UserLocation{
			{ID: "alice", Location: domain.Coordinate{Lat: 1.3000, Lng: 103.8000}, Mode: domain.ModeTransit},
			{ID: "bob", Location: domain.Coordinate{Lat: 1.3000, Lng: 103.9000}, Mode: domain.ModeDriving},
		},
		Search: domain.DefaultSearchConfig(),
		Region: domain.DefaultSingaporeRegion(),
	}
}

func newStack(t *testing.T, cfg gateway.Config) (*Orchestrator, *gateway.Gateway, *routing.MockRoutingProvider) {
	t.Helper()

	provider := routing.NewMockRoutingProvider()
	gw, err := gateway.New(provider, cache.NewMemoryTravelTimeCache(time.Hour, 0), cfg)
	require.NoError(t, err)

	engine := search.New(gw, search.Config{})
	return NewOrchestrator(engine, gw, CacheScopeTTL), gw, provider
}

func drain(r *Run) []domain.OptimizationProgress {
	var events []domain.OptimizationProgress
	for ev := range r.Progress() {
		events = append(events, ev)
	}
	return events
}

func stages(events []domain.OptimizationProgress) []domain.Stage {
	out := make([]domain.Stage, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Stage)
	}
	return out
}

func TestRunCompletesWithOrderedProgress(t *testing.T) {
	o, gw, _ := newStack(t, gateway.Config{})

	run := o.Start(context.Background(), twoUsers())
	events := drain(run)
	res, err := run.Wait()
	require.NoError(t, err)

	assert.Equal(t, []domain.Stage{
		domain.StageInitializing,
		domain.StageCoarseSearch,
		domain.StageFineSearch,
		domain.StageComplete,
	}, stages(events))

	prev := -1
	for _, ev := range events {
		assert.GreaterOrEqual(t, ev.Percent, prev)
		prev = ev.Percent
	}
	assert.Equal(t, 100, events[len(events)-1].Percent)

	assert.Equal(t, domain.RunCompleted, res.Status)
	require.NotNil(t, res.Best)
	assert.True(t, res.ConstraintsSatisfied)
	assert.Greater(t, res.Evaluated, 0)
	assert.Equal(t, run.ID(), res.RunID)
	_, perr := uuid.Parse(res.RunID)
	assert.NoError(t, perr)

	assert.Greater(t, gw.ServiceStatus().QuotaUsed, 0)
}

func TestRunRejectsInvalidRequest(t *testing.T) {
	o, _, provider := newStack(t, gateway.Config{})

	req := twoUsers()
	req.Users = req.Users[:1]

	run := o.Start(context.Background(), req)
	events := drain(run)
	res, err := run.Wait()

	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	assert.Equal(t, domain.RunFailed, res.Status)
	assert.Nil(t, res.Best)
	assert.Equal(t, []domain.Stage{domain.StageInitializing}, stages(events))
	assert.Equal(t, 0, provider.Calls())
}

func TestRunCancelledBeforeStart(t *testing.T) {
	o, _, provider := newStack(t, gateway.Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run := o.Start(ctx, twoUsers())
	events := drain(run)
	res, err := run.Wait()

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.RunCancelled, res.Status)
	assert.Equal(t, []domain.Stage{domain.StageInitializing}, stages(events))
	assert.Equal(t, 0, provider.Calls())
}

func TestRunDegradesWhenBreakerIsOpen(t *testing.T) {
	o, gw, provider := newStack(t, gateway.Config{FailureThreshold: 1, ReopenTimeout: time.Hour})

	provider.FailAll(&routing.MockStep{Err: errors.New("connection refused")})
	pre := gw.GetTravelTime(context.Background(),
		domain.Coordinate{Lat: 1.35, Lng: 103.85}, domain.Coordinate{Lat: 1.30, Lng: 103.85}, domain.ModeTransit)
	require.Equal(t, domain.ErrorKindNetwork, pre.ErrorKind)
	require.Equal(t, ports.BreakerOpen, gw.ServiceStatus().BreakerState)

	run := o.Start(context.Background(), twoUsers())
	events := drain(run)
	res, err := run.Wait()

	require.NoError(t, err)
	assert.Equal(t, domain.RunDegraded, res.Status)
	assert.Nil(t, res.Best)
	assert.Contains(t, res.Message, "unavailable")
	assert.Equal(t, []domain.Stage{
		domain.StageInitializing,
		domain.StageCoarseSearch,
		domain.StageComplete,
	}, stages(events))
	last := events[len(events)-1]
	assert.Equal(t, 100, last.Percent)
	assert.Equal(t, res.Message, last.Message)
	assert.Equal(t, 1, provider.Calls(), "an open breaker keeps the run off the network")
}

func TestRunDegradesWhenQuotaIsExhausted(t *testing.T) {
	o, gw, _ := newStack(t, gateway.Config{DailyBudget: 1})

	require.True(t, gw.GetTravelTime(context.Background(),
		domain.Coordinate{Lat: 1.35, Lng: 103.85}, domain.Coordinate{Lat: 1.30, Lng: 103.85}, domain.ModeTransit).OK())

	res, err := o.Optimize(context.Background(), twoUsers())
	require.NoError(t, err)
	assert.Equal(t, domain.RunDegraded, res.Status)
	assert.Equal(t, ports.BreakerClosed, gw.ServiceStatus().BreakerState)
}

// tickingClock advances by step on every read, so breaker timeouts elapse as
// the gateway works.
type tickingClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

func (c *tickingClock) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step = 0
}

// outageAfterCoarse lets the coarse phase succeed, then takes the provider
// down for the fine phase. The clock stops once Fine returns so the
// orchestrator reads the breaker state the phase ended with.
type outageAfterCoarse struct {
	PhaseSearcher
	provider *routing.MockRoutingProvider
	clock    *tickingClock
}

func (s *outageAfterCoarse) Coarse(ctx context.Context, req domain.OptimizationRequest) (search.Phase, error) {
	phase, err := s.PhaseSearcher.Coarse(ctx, req)
	s.provider.FailAll(&routing.MockStep{Err: errors.New("connection reset")})
	return phase, err
}

func (s *outageAfterCoarse) Fine(ctx context.Context, req domain.OptimizationRequest, coarse search.Phase) (search.Phase, error) {
	defer s.clock.stop()
	return s.PhaseSearcher.Fine(ctx, req, coarse)
}

func TestRunDegradesWhenBreakerStaysOpenThroughFinePhase(t *testing.T) {
	clock := &tickingClock{now: time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC), step: time.Millisecond}
	provider := routing.NewMockRoutingProvider()
	gw, err := gateway.New(provider, nil, gateway.Config{
		FailureThreshold: 1,
		ReopenTimeout:    5 * time.Millisecond,
	}, gateway.WithClock(clock.Now))
	require.NoError(t, err)

	// Count calls made while a half-open trial call holds the breaker.
	var mu sync.Mutex
	var trials int
	provider.OnCall(func(ports.RouteRequest) {
		st := gw.ServiceStatus()
		if st.BreakerState == ports.BreakerHalfOpen && !st.CanMakeRequest {
			mu.Lock()
			trials++
			mu.Unlock()
		}
	})

	searcher := &outageAfterCoarse{
		PhaseSearcher: search.New(gw, search.Config{}),
		provider:      provider,
		clock:         clock,
	}
	o := NewOrchestrator(searcher, gw, CacheScopeTTL)

	run := o.Start(context.Background(), twoUsers())
	events := drain(run)
	res, err := run.Wait()

	require.NoError(t, err)
	assert.Equal(t, domain.RunDegraded, res.Status)
	assert.Contains(t, res.Message, "fine search")
	require.NotNil(t, res.Best, "the coarse best survives the outage")
	assert.Equal(t, []domain.Stage{
		domain.StageInitializing,
		domain.StageCoarseSearch,
		domain.StageFineSearch,
		domain.StageComplete,
	}, stages(events))

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, trials, 2, "the breaker should have failed repeated half-open calls")
	assert.Equal(t, ports.BreakerOpen, gw.ServiceStatus().BreakerState)
}

func TestRunFailsWhenNothingIsEvaluable(t *testing.T) {
	o, _, provider := newStack(t, gateway.Config{FailureThreshold: 1_000_000})
	provider.FailAll(&routing.MockStep{Status: ports.RouteStatusZeroResults, Message: "no route"})

	res, err := o.Optimize(context.Background(), twoUsers())
	assert.ErrorIs(t, err, search.ErrNoEvaluableCandidates)
	assert.Equal(t, domain.RunFailed, res.Status)
}

// blockingSearcher wraps a real engine and parks Coarse until released.
type blockingSearcher struct {
	PhaseSearcher
	entered chan struct{}
	release chan struct{}
	fines   int
	mu      sync.Mutex
}

func (b *blockingSearcher) Coarse(ctx context.Context, req domain.OptimizationRequest) (search.Phase, error) {
	close(b.entered)
	<-b.release
	return b.PhaseSearcher.Coarse(context.Background(), req)
}

func (b *blockingSearcher) Fine(ctx context.Context, req domain.OptimizationRequest, coarse search.Phase) (search.Phase, error) {
	b.mu.Lock()
	b.fines++
	b.mu.Unlock()
	return b.PhaseSearcher.Fine(ctx, req, coarse)
}

func TestRunCancelledBetweenPhases(t *testing.T) {
	provider := routing.NewMockRoutingProvider()
	gw, err := gateway.New(provider, nil, gateway.Config{})
	require.NoError(t, err)

	searcher := &blockingSearcher{
		PhaseSearcher: search.New(gw, search.Config{}),
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	o := NewOrchestrator(searcher, gw, CacheScopeTTL)

	run := o.Start(context.Background(), twoUsers())
	<-searcher.entered
	run.Cancel()
	close(searcher.release)

	events := drain(run)
	res, err := run.Wait()

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.RunCancelled, res.Status)
	assert.Equal(t, []domain.Stage{domain.StageInitializing, domain.StageCoarseSearch}, stages(events))
	assert.Equal(t, 0, searcher.fines, "fine phase must not start after cancellation")
	// the coarse phase in flight finished and its best candidate is kept
	assert.NotNil(t, res.Best)
}

type recordingService struct {
	status ports.ServiceStatus
	clears int
	mu     sync.Mutex
}

func (s *recordingService) ServiceStatus() ports.ServiceStatus { return s.status }

func (s *recordingService) ClearCache(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clears++
	return nil
}

func TestCacheScope(t *testing.T) {
	tests := []struct {
		scope CacheScope
		want  int
	}{
		{CacheScopeRun, 1},
		{CacheScopeTTL, 0},
		{"", 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.scope), func(t *testing.T) {
			gw, err := gateway.New(routing.NewMockRoutingProvider(), nil, gateway.Config{})
			require.NoError(t, err)

			svc := &recordingService{status: ports.ServiceStatus{CanMakeRequest: true}}
			o := NewOrchestrator(search.New(gw, search.Config{}), svc, tt.scope)

			_, err = o.Optimize(context.Background(), twoUsers())
			require.NoError(t, err)
			assert.Equal(t, tt.want, svc.clears)
		})
	}
}

func TestConcurrentRunsKeepSeparateStreams(t *testing.T) {
	o, _, _ := newStack(t, gateway.Config{})

	a := o.Start(context.Background(), twoUsers())
	b := o.Start(context.Background(), twoUsers())
	require.NotEqual(t, a.ID(), b.ID())

	var wg sync.WaitGroup
	for _, r := range []*Run{a, b} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Len(t, drain(r), 4)
		}()
	}
	wg.Wait()

	ra, err := a.Wait()
	require.NoError(t, err)
	rb, err := b.Wait()
	require.NoError(t, err)
	assert.Equal(t, ra.Best.Location, rb.Best.Location)
}
