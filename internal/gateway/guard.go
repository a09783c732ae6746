package gateway

import (
	"fmt"
	"log"
	"sync"
	"time"

	"meeting-point-service/internal/domain"
	"meeting-point-service/internal/ports"
)

// breaker is the circuit-breaker state. It has no lock of its own; every
// read and transition happens under guard.mu.
type breaker struct {
	threshold     int
	window        time.Duration
	reopenTimeout time.Duration

	state         ports.BreakerState
	failures      []time.Time // oldest first, at most threshold entries
	reopenAt      time.Time
	probeInFlight bool
}

// quota is the daily call budget. Reserved counts admitted calls that have
// not settled yet, so concurrent callers cannot overrun the budget.
type quota struct {
	budget   int
	used     int
	reserved int
	epoch    int
	resetAt  time.Time
	loc      *time.Location
}

// guard serializes all breaker and quota transitions behind one mutex.
type guard struct {
	mu      sync.Mutex
	now     func() time.Time
	breaker breaker
	quota   quota
}

// ticket is handed out by admit and must be passed back to settle exactly once.
type ticket struct {
	probe bool
	epoch int
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeFailure
	// The call never reached the provider; release the reservation only.
	outcomeAborted
)

func newGuard(cfg Config, now func() time.Time) *guard {
	loc := cfg.QuotaLocation
	if loc == nil {
		loc = time.UTC
	}
	g := &guard{
		now: now,
		breaker: breaker{
			threshold:     cfg.FailureThreshold,
			window:        cfg.FailureWindow,
			reopenTimeout: cfg.ReopenTimeout,
			state:         ports.BreakerClosed,
		},
		quota: quota{
			budget: cfg.DailyBudget,
			loc:    loc,
		},
	}
	g.quota.resetAt = nextMidnight(now(), loc)
	return g
}

func nextMidnight(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, loc)
}

// rolloverLocked starts a new quota epoch once the reset boundary passes.
func (g *guard) rolloverLocked(now time.Time) {
	if now.Before(g.quota.resetAt) {
		return
	}
	g.quota.used = 0
	g.quota.epoch++
	g.quota.resetAt = nextMidnight(now, g.quota.loc)
}

// admit decides whether a provider call may go out. On refusal it returns the
// error kind and a message; nothing is reserved in that case.
func (g *guard) admit() (ticket, domain.ErrorKind, string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.rolloverLocked(now)

	b := &g.breaker
	if b.state == ports.BreakerOpen {
		if now.Before(b.reopenAt) {
			return ticket{}, domain.ErrorKindCircuitOpen, fmt.Sprintf(
				"circuit breaker is open; retry in %dms", b.reopenAt.Sub(now).Milliseconds(),
			)
		}
		b.state = ports.BreakerHalfOpen
		b.probeInFlight = false
		log.Printf("gateway: breaker half-open, admitting probe")
	}
	if b.state == ports.BreakerHalfOpen && b.probeInFlight {
		return ticket{}, domain.ErrorKindCircuitOpen, "circuit breaker is half-open; probe request in progress"
	}

	q := &g.quota
	if q.used+q.reserved >= q.budget {
		return ticket{}, domain.ErrorKindQuotaExceeded, fmt.Sprintf(
			"daily quota of %d requests exceeded; resets at %s", q.budget, q.resetAt.Format(time.RFC3339),
		)
	}

	t := ticket{epoch: q.epoch}
	if b.state == ports.BreakerHalfOpen {
		b.probeInFlight = true
		t.probe = true
	}
	q.reserved++
	return t, domain.ErrorKindNone, ""
}

// settle records the outcome of an admitted call. It reports whether this
// outcome tripped the breaker open.
func (g *guard) settle(t ticket, o outcome) (tripped bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.rolloverLocked(now)

	q := &g.quota
	if q.reserved > 0 {
		q.reserved--
	}
	if o == outcomeSuccess && t.epoch == q.epoch {
		q.used++
	}

	b := &g.breaker
	if t.probe {
		b.probeInFlight = false
	}

	switch o {
	case outcomeSuccess:
		switch b.state {
		case ports.BreakerHalfOpen:
			if t.probe {
				b.state = ports.BreakerClosed
				b.failures = b.failures[:0]
				log.Printf("gateway: breaker closed after successful probe")
			}
		case ports.BreakerClosed:
			b.failures = b.failures[:0]
		}

	case outcomeFailure:
		switch b.state {
		case ports.BreakerHalfOpen:
			if t.probe {
				b.open(now)
				log.Printf("gateway: probe failed, breaker re-opened for %s", b.reopenTimeout)
				return true
			}
		case ports.BreakerClosed:
			b.failures = append(b.failures[b.stale(now):], now)
			if len(b.failures) >= b.threshold {
				b.open(now)
				log.Printf("gateway: breaker opened after %d failures within %s, reopen in %s",
					b.threshold, b.window, b.reopenTimeout)
				return true
			}
		}
	}

	return false
}

func (b *breaker) open(now time.Time) {
	b.state = ports.BreakerOpen
	b.reopenAt = now.Add(b.reopenTimeout)
	b.probeInFlight = false
	b.failures = b.failures[:0]
}

// stale returns how many leading failures fall outside the rolling window
// ending at now.
func (b *breaker) stale(now time.Time) int {
	n := 0
	for n < len(b.failures) && now.Sub(b.failures[n]) > b.window {
		n++
	}
	return n
}

// snapshot reports the state a caller would observe right now without
// performing any transition.
func (g *guard) snapshot() ports.ServiceStatus {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	b := g.breaker
	q := g.quota

	if !now.Before(q.resetAt) {
		q.used = 0
		q.resetAt = nextMidnight(now, q.loc)
	}

	state := b.state
	var msUntilProbe int64
	if state == ports.BreakerOpen {
		if now.Before(b.reopenAt) {
			msUntilProbe = b.reopenAt.Sub(now).Milliseconds()
		} else {
			state = ports.BreakerHalfOpen
			b.probeInFlight = false
		}
	}

	remaining := q.budget - q.used - q.reserved
	if remaining < 0 {
		remaining = 0
	}

	breakerAllows := state == ports.BreakerClosed || (state == ports.BreakerHalfOpen && !b.probeInFlight)

	return ports.ServiceStatus{
		BreakerState:        state,
		ConsecutiveFailures: len(b.failures) - b.stale(now),
		CanMakeRequest:      breakerAllows && remaining > 0,
		MsUntilProbe:        msUntilProbe,
		QuotaUsed:           q.used,
		QuotaRemaining:      remaining,
		QuotaBudget:         q.budget,
		QuotaResetsAt:       q.resetAt,
	}
}
