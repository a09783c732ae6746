package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"meeting-point-service/internal/domain"
	"meeting-point-service/internal/platform/obs"
	"meeting-point-service/internal/platform/telemetry"
	"meeting-point-service/internal/ports"
	"meeting-point-service/internal/search"
)

// PhaseSearcher is the phase-by-phase view of the search engine.
type PhaseSearcher interface {
	Coarse(ctx context.Context, req domain.OptimizationRequest) (search.Phase, error)
	Fine(ctx context.Context, req domain.OptimizationRequest, coarse search.Phase) (search.Phase, error)
	Rank(req domain.OptimizationRequest, phases ...search.Phase) domain.OptimizationResult
}

// TravelTimeService is the part of the gateway the orchestrator watches.
type TravelTimeService interface {
	ServiceStatus() ports.ServiceStatus
	ClearCache(ctx context.Context) error
}

type CacheScope string

const (
	// Cached travel times live until their TTL expires.
	CacheScopeTTL CacheScope = "ttl"
	// The cache is cleared when each run ends.
	CacheScopeRun CacheScope = "run"
)

type Orchestrator struct {
	engine     PhaseSearcher
	gateway    TravelTimeService
	cacheScope CacheScope
	tracer     trace.Tracer
}

func NewOrchestrator(engine PhaseSearcher, gateway TravelTimeService, scope CacheScope) *Orchestrator {
	if scope == "" {
		scope = CacheScopeTTL
	}
	return &Orchestrator{
		engine:     engine,
		gateway:    gateway,
		cacheScope: scope,
		tracer:     telemetry.Tracer("meeting-point-service/services"),
	}
}

// Start launches one optimization run in the background. The run stops early
// when ctx is cancelled or Run.Cancel is called.
func (o *Orchestrator) Start(ctx context.Context, req domain.OptimizationRequest) *Run {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(obs.WithRunID(ctx, id))

	r := &Run{
		id:       id,
		progress: make(chan domain.OptimizationProgress, progressBuffer),
		done:     make(chan struct{}),
		cancel:   cancel,
	}

	go func() {
		defer cancel()
		res, err := o.execute(ctx, req, r)
		res.RunID = id
		r.finish(res, err)
	}()

	return r
}

// Optimize runs to completion, discarding progress events.
func (o *Orchestrator) Optimize(ctx context.Context, req domain.OptimizationRequest) (domain.OptimizationResult, error) {
	return o.Start(ctx, req).Wait()
}

func (o *Orchestrator) execute(ctx context.Context, req domain.OptimizationRequest, r *Run) (res domain.OptimizationResult, err error) {
	ctx, span := o.tracer.Start(ctx, "optimize.run", trace.WithAttributes(
		attribute.String("run_id", r.id),
		attribute.Int("users", len(req.Users)),
	))
	defer func() {
		span.SetAttributes(
			attribute.String("status", string(res.Status)),
			attribute.Int("evaluated", res.Evaluated),
		)
		if err != nil && res.Status == domain.RunFailed {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	defer obs.Time(ctx, "optimize.run")(&err)
	defer o.releaseCache(ctx)

	r.emit(domain.StageInitializing, 0, "validating request")

	if err := req.Validate(); err != nil {
		return failed(err), err
	}
	if err := ctx.Err(); err != nil {
		return cancelled(req, o.engine), err
	}

	r.emit(domain.StageCoarseSearch, 10, "evaluating coarse grid")

	coarse, err := o.engine.Coarse(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return cancelled(req, o.engine, coarse), ctx.Err()
		}
		return failed(err), err
	}
	if o.outage(coarse) {
		return degraded(r, req, o.engine, "coarse", coarse), nil
	}
	if err := ctx.Err(); err != nil {
		return cancelled(req, o.engine, coarse), err
	}

	r.emit(domain.StageFineSearch, 60, fmt.Sprintf("refining around top candidates (%d scored)", coarse.Evaluated()))

	fine, err := o.engine.Fine(ctx, req, coarse)
	if err != nil {
		if ctx.Err() != nil {
			return cancelled(req, o.engine, coarse, fine), ctx.Err()
		}
		return failed(err), err
	}
	if o.outage(fine) {
		return degraded(r, req, o.engine, "fine", coarse, fine), nil
	}
	if err := ctx.Err(); err != nil {
		return cancelled(req, o.engine, coarse, fine), err
	}

	res = o.engine.Rank(req, coarse, fine)
	if res.Best == nil {
		if coarse.Unavailable > 0 {
			return degraded(r, req, o.engine, "coarse", coarse, fine), nil
		}
		err = fmt.Errorf("optimize: %w", search.ErrNoEvaluableCandidates)
		return failed(err), err
	}

	r.emit(domain.StageComplete, 100, "optimization complete")
	return res, nil
}

// outage reports a phase that scored nothing and left the gateway refusing
// calls. Failed half-open calls surface as network errors, so the decision
// rests on the gateway state rather than on the per-lookup error kinds.
func (o *Orchestrator) outage(p search.Phase) bool {
	return p.NoneScored() && !o.gateway.ServiceStatus().CanMakeRequest
}

func (o *Orchestrator) releaseCache(ctx context.Context) {
	if o.cacheScope != CacheScopeRun {
		return
	}
	if err := o.gateway.ClearCache(context.WithoutCancel(ctx)); err != nil {
		log.Printf("run_id=%s optimize: clear run cache: %v", obs.RunID(ctx), err)
	}
}

func failed(err error) domain.OptimizationResult {
	msg := err.Error()
	if errors.Is(err, domain.ErrInvalidRequest) {
		msg = "invalid request: " + msg
	}
	return domain.OptimizationResult{
		Status:     domain.RunFailed,
		Alternates: []domain.Candidate{},
		Message:    msg,
	}
}

func cancelled(req domain.OptimizationRequest, engine PhaseSearcher, phases ...search.Phase) domain.OptimizationResult {
	res := engine.Rank(req, phases...)
	res.Status = domain.RunCancelled
	res.Message = "optimization cancelled"
	return res
}

// degraded ranks what the completed phases produced and closes the progress
// stream with a final event, so stream readers see the run end early.
func degraded(r *Run, req domain.OptimizationRequest, engine PhaseSearcher, phase string, phases ...search.Phase) domain.OptimizationResult {
	res := engine.Rank(req, phases...)
	res.Status = domain.RunDegraded
	res.Message = fmt.Sprintf("travel-time provider unavailable during %s search; returning best candidate so far", phase)
	r.emit(domain.StageComplete, 100, res.Message)
	return res
}
