package gateway

import (
	"context"
	"log"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"meeting-point-service/internal/domain"
	"meeting-point-service/internal/platform/telemetry"
)

type metrics struct {
	providerCalls metric.Int64Counter
	cacheHits     metric.Int64Counter
	fastFails     metric.Int64Counter
	breakerTrips  metric.Int64Counter
}

func newMetrics() *metrics {
	meter := telemetry.Meter("meeting-point-service/gateway")
	fallback := noop.NewMeterProvider().Meter("noop")

	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			log.Printf("gateway: create counter %s: %v", name, err)
			c, _ = fallback.Int64Counter(name)
		}
		return c
	}

	return &metrics{
		providerCalls: counter("gateway.provider.calls", "Routing provider calls by outcome"),
		cacheHits:     counter("gateway.cache.hits", "Lookups served from the travel-time cache"),
		fastFails:     counter("gateway.fast_fails", "Lookups refused by the breaker or quota"),
		breakerTrips:  counter("gateway.breaker.trips", "Transitions of the circuit breaker to open"),
	}
}

func (m *metrics) providerCall(ctx context.Context, outcome string) {
	m.providerCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *metrics) cacheHit(ctx context.Context) {
	m.cacheHits.Add(ctx, 1)
}

func (m *metrics) fastFail(ctx context.Context, kind domain.ErrorKind) {
	m.fastFails.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(kind))))
}

func (m *metrics) breakerTrip(ctx context.Context) {
	m.breakerTrips.Add(ctx, 1)
}
