// Package search finds the meeting point with the most equitable travel
// times using a two-phase coarse-to-fine grid search.
package search

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	"meeting-point-service/internal/domain"
	"meeting-point-service/internal/equity"
	"meeting-point-service/internal/platform/obs"
	"meeting-point-service/internal/ports"
)

// ErrNoEvaluableCandidates is returned when every candidate failed at least
// one travel-time lookup, so nothing could be scored.
var ErrNoEvaluableCandidates = errors.New("no evaluable candidates")

type Config struct {
	MarginKm      float64
	TopK          int
	MaxAlternates int
	Concurrency   int
}

func DefaultConfig() Config {
	return Config{
		MarginKm:      2,
		TopK:          3,
		MaxAlternates: 4,
		Concurrency:   4,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MarginKm <= 0 {
		c.MarginKm = d.MarginKm
	}
	if c.TopK <= 0 {
		c.TopK = d.TopK
	}
	if c.MaxAlternates < 0 {
		c.MaxAlternates = d.MaxAlternates
	}
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	return c
}

type Engine struct {
	source ports.TravelTimeSource
	cfg    Config
}

func New(source ports.TravelTimeSource, cfg Config) *Engine {
	return &Engine{source: source, cfg: cfg.withDefaults()}
}

// Phase is the outcome of evaluating one batch of candidate points.
type Phase struct {
	Name   string
	Region domain.BoundingBox

	// Attempted counts dispatched points; Scored holds every candidate whose
	// lookups all succeeded, Survivors the subset meeting the constraints.
	Attempted int
	Scored    []domain.Candidate
	Survivors []domain.Candidate

	// Unavailable counts points that failed only because the gateway refused
	// to call the provider (breaker open or quota exhausted).
	Unavailable int

	seen map[pointKey]struct{}
}

func (p Phase) Evaluated() int { return len(p.Scored) }

// NoneScored reports a phase that attempted points but scored none of them,
// whatever the mix of failures.
func (p Phase) NoneScored() bool {
	return p.Attempted > 0 && len(p.Scored) == 0
}

// Search runs the coarse phase, refines around its best survivors and ranks
// the merged set.
func (e *Engine) Search(ctx context.Context, req domain.OptimizationRequest) (res domain.OptimizationResult, err error) {
	defer obs.Time(ctx, "search")(&err)

	coarse, err := e.Coarse(ctx, req)
	if err != nil {
		return domain.OptimizationResult{}, err
	}
	fine, err := e.Fine(ctx, req, coarse)
	if err != nil {
		return domain.OptimizationResult{}, err
	}

	res = e.Rank(req, coarse, fine)
	if res.Best == nil {
		return res, ErrNoEvaluableCandidates
	}
	return res, nil
}

// Coarse evaluates the grid over the users' region plus every transit hub
// that falls inside it.
func (e *Engine) Coarse(ctx context.Context, req domain.OptimizationRequest) (phase Phase, err error) {
	defer obs.Time(ctx, "search.coarse")(&err)

	if err := req.Validate(); err != nil {
		return Phase{}, err
	}

	region := searchRegion(req.Coordinates(), e.cfg.MarginKm)
	if region.Empty() {
		return Phase{}, fmt.Errorf("search: %w: users are outside the service region", domain.ErrInvalidRequest)
	}

	points := gridPoints(region, req.Search.CoarseSpacing)
	for _, hub := range req.Region.TransitHubs {
		if region.Contains(hub) {
			points = append(points, hub)
		}
	}

	phase = Phase{Name: "coarse", Region: region, seen: make(map[pointKey]struct{})}
	if err := e.evaluate(ctx, req, points, &phase); err != nil {
		return phase, fmt.Errorf("search: coarse phase: %w", err)
	}
	return phase, nil
}

// Fine lays a local grid around each of the top coarse survivors, skipping
// points the coarse phase already evaluated.
func (e *Engine) Fine(ctx context.Context, req domain.OptimizationRequest, coarse Phase) (phase Phase, err error) {
	defer obs.Time(ctx, "search.fine")(&err)

	phase = Phase{Name: "fine", Region: coarse.Region, seen: make(map[pointKey]struct{}, len(coarse.seen))}
	for k := range coarse.seen {
		phase.seen[k] = struct{}{}
	}

	centroid := domain.Centroid(req.Coordinates())
	seeds := top(sorted(coarse.Survivors, centroid), e.cfg.TopK)

	half := req.Search.CoarseSpacing / 2
	var points []domain.Coordinate
	for _, s := range seeds {
		points = append(points, localGrid(s.Location, half, req.Search.FineSpacing, coarse.Region)...)
	}

	if err := e.evaluate(ctx, req, points, &phase); err != nil {
		return phase, fmt.Errorf("search: fine phase: %w", err)
	}
	return phase, nil
}

// Rank merges the survivors of all phases. When nothing satisfies the
// constraints, the best scored candidate of the first phase is returned with
// ConstraintsSatisfied=false. Best is nil when no phase scored anything.
func (e *Engine) Rank(req domain.OptimizationRequest, phases ...Phase) domain.OptimizationResult {
	centroid := domain.Centroid(req.Coordinates())

	var survivors []domain.Candidate
	evaluated := 0
	for _, p := range phases {
		survivors = append(survivors, p.Survivors...)
		evaluated += p.Evaluated()
	}

	res := domain.OptimizationResult{
		Status:     domain.RunCompleted,
		Evaluated:  evaluated,
		Alternates: []domain.Candidate{},
	}

	ranked := dedupe(sorted(survivors, centroid))
	if len(ranked) > 0 {
		res.ConstraintsSatisfied = true
	} else {
		for _, p := range phases {
			if len(p.Scored) > 0 {
				ranked = dedupe(sorted(p.Scored, centroid))
				res.Message = "no candidate satisfies the constraints; returning the best unconstrained candidate"
				break
			}
		}
	}
	if len(ranked) == 0 {
		res.Message = "no candidate could be evaluated"
		return res
	}

	best := ranked[0]
	res.Best = &best
	res.Alternates = append(res.Alternates, top(ranked[1:], e.cfg.MaxAlternates)...)
	return res
}

// evaluate scores points not yet seen by this search, dispatching at most
// Concurrency candidates at a time. Cancellation stops further dispatch;
// candidates already in flight complete.
func (e *Engine) evaluate(ctx context.Context, req domain.OptimizationRequest, points []domain.Coordinate, phase *Phase) error {
	var todo []domain.Coordinate
	for _, p := range points {
		k := keyOf(p)
		if _, ok := phase.seen[k]; ok {
			continue
		}
		phase.seen[k] = struct{}{}
		todo = append(todo, p)
	}

	weights := make([]float64, len(req.Users))
	for i, u := range req.Users {
		weights[i] = u.EffectiveWeight()
	}

	var (
		mu        sync.Mutex
		scored    = make([]*domain.Candidate, len(todo))
		cancelErr error
	)

	var eg errgroup.Group
	eg.SetLimit(e.cfg.Concurrency)
	for i, p := range todo {
		if err := ctx.Err(); err != nil {
			cancelErr = err
			break
		}
		phase.Attempted++
		eg.Go(func() error {
			c, unavailable := e.score(ctx, req, weights, p)
			if c != nil {
				scored[i] = c
			} else if unavailable {
				mu.Lock()
				phase.Unavailable++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = eg.Wait()

	for _, c := range scored {
		if c == nil {
			continue
		}
		phase.Scored = append(phase.Scored, *c)
		if satisfies(*c, req.Constraints) {
			phase.Survivors = append(phase.Survivors, *c)
		}
	}

	log.Printf("req_id=%s run_id=%s search phase=%s attempted=%d scored=%d survivors=%d unavailable=%d",
		obs.RequestID(ctx), obs.RunID(ctx), phase.Name,
		phase.Attempted, len(phase.Scored), len(phase.Survivors), phase.Unavailable)

	return cancelErr
}

// score looks up every user's travel time to p. A nil candidate means at
// least one lookup failed; unavailable is set when all failures were gateway
// refusals rather than provider or validation errors.
func (e *Engine) score(
	ctx context.Context,
	req domain.OptimizationRequest,
	weights []float64,
	p domain.Coordinate,
) (c *domain.Candidate, unavailable bool) {
	reqs := make([]domain.TravelTimeRequest, len(req.Users))
	for i, u := range req.Users {
		reqs[i] = domain.TravelTimeRequest{Origin: u.Location, Destination: p, Mode: u.Mode}
	}

	results := e.source.GetTravelTimes(ctx, reqs)

	failed, refused := 0, 0
	normalized := make([]float64, len(results))
	for i, r := range results {
		if !r.OK() {
			failed++
			if r.ErrorKind.Unavailable() {
				refused++
			}
			continue
		}
		normalized[i] = r.Duration * req.Region.ModeFactor(req.Users[i].Mode)
	}
	if failed > 0 || len(results) != len(req.Users) {
		return nil, failed > 0 && failed == refused
	}

	return &domain.Candidate{
		Location:    p,
		TravelTimes: results,
		Metrics:     equity.WeightedMetrics(normalized, weights),
	}, false
}

// satisfies checks the hard limits. Travel time is compared on raw durations,
// the range on the normalized metrics.
func satisfies(c domain.Candidate, cons domain.OptimizationConstraints) bool {
	if cons.MaxTravelTime > 0 {
		for _, t := range c.TravelTimes {
			if t.Duration > cons.MaxTravelTime {
				return false
			}
		}
	}
	if cons.MaxTimeRange > 0 && c.Metrics.TimeRange > cons.MaxTimeRange {
		return false
	}
	return true
}
