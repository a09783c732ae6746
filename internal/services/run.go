package services

import (
	"context"
	"sync"

	"meeting-point-service/internal/domain"
)

// One event per stage at most, so emit never blocks on a slow subscriber.
const progressBuffer = 4

// Run is a single optimization in flight. Progress may be consumed by at most
// one subscriber; the channel closes when the run ends.
type Run struct {
	id       string
	progress chan domain.OptimizationProgress
	done     chan struct{}
	cancel   context.CancelFunc

	mu      sync.Mutex
	percent int
	result  domain.OptimizationResult
	err     error
}

func (r *Run) ID() string { return r.id }

func (r *Run) Progress() <-chan domain.OptimizationProgress { return r.progress }

// Done is closed after the result is available and Progress is closed.
func (r *Run) Done() <-chan struct{} { return r.done }

// Cancel asks the run to stop at the next phase boundary.
func (r *Run) Cancel() { r.cancel() }

// Wait blocks until the run ends. The error is non-nil for failed runs and
// is the context error for cancelled ones.
func (r *Run) Wait() (domain.OptimizationResult, error) {
	<-r.done
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result, r.err
}

func (r *Run) emit(stage domain.Stage, percent int, msg string) {
	r.mu.Lock()
	if percent < r.percent {
		percent = r.percent
	}
	r.percent = percent
	r.mu.Unlock()

	r.progress <- domain.OptimizationProgress{Stage: stage, Percent: percent, Message: msg}
}

func (r *Run) finish(res domain.OptimizationResult, err error) {
	r.mu.Lock()
	r.result = res
	r.err = err
	r.mu.Unlock()

	close(r.progress)
	close(r.done)
}
