package routing

import (
	"context"
	"sync"
	"sync/atomic"

	"meeting-point-service/internal/ports"
)

// Average door-to-door speeds in km/h per provider mode.
var mockSpeeds = map[string]float64{
	"transit":   24,
	"walking":   4.8,
	"driving":   36,
	"bicycling": 15,
}

// Scripted outcome for the next call. Err simulates a transport failure,
// Status a provider-level failure.
type MockStep struct {
	Err     error
	Status  string
	Message string
}

// MockRoutingProvider returns travel times derived from great-circle distance
// and a fixed speed per mode. Scripted steps are consumed first, in order.
type MockRoutingProvider struct {
	calls atomic.Int64

	mu     sync.Mutex
	script []MockStep
	fail   *MockStep
	hook   func(ports.RouteRequest)
}

func NewMockRoutingProvider() *MockRoutingProvider {
	return &MockRoutingProvider{}
}

func (p *MockRoutingProvider) Name() string { return "mock" }

// Script queues outcomes consumed by the next calls.
func (p *MockRoutingProvider) Script(steps ...MockStep) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.script = append(p.script, steps...)
}

// FailAll makes every call fail with step until cleared with FailAll(nil).
func (p *MockRoutingProvider) FailAll(step *MockStep) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = step
}

// OnCall registers a hook run at the start of every call (before the script).
func (p *MockRoutingProvider) OnCall(fn func(ports.RouteRequest)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hook = fn
}

func (p *MockRoutingProvider) Calls() int { return int(p.calls.Load()) }

func (p *MockRoutingProvider) Route(ctx context.Context, req ports.RouteRequest) (ports.RouteResponse, error) {
	p.calls.Add(1)

	p.mu.Lock()
	hook := p.hook
	var step *MockStep
	if len(p.script) > 0 {
		s := p.script[0]
		p.script = p.script[1:]
		step = &s
	} else if p.fail != nil {
		s := *p.fail
		step = &s
	}
	p.mu.Unlock()

	if hook != nil {
		hook(req)
	}

	if err := ctx.Err(); err != nil {
		return ports.RouteResponse{}, err
	}

	if step != nil {
		if step.Err != nil {
			return ports.RouteResponse{}, step.Err
		}
		if step.Status != "" && step.Status != ports.RouteStatusOK {
			return ports.RouteResponse{Status: step.Status, ErrorMessage: step.Message}, nil
		}
	}

	speed, ok := mockSpeeds[req.Mode]
	if !ok {
		return ports.RouteResponse{Status: "INVALID_REQUEST", ErrorMessage: "unsupported mode " + req.Mode}, nil
	}

	km := req.Origin.DistanceKm(req.Destination)
	return ports.RouteResponse{
		Status: ports.RouteStatusOK,
		Legs: []ports.RouteLeg{{
			DurationSeconds: km / speed * 3600,
			DistanceMeters:  km * 1000,
		}},
	}, nil
}
