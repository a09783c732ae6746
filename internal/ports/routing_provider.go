package ports

import (
	"context"

	"meeting-point-service/internal/domain"
)

// Provider-level status codes.
const (
	RouteStatusOK          = "OK"
	RouteStatusZeroResults = "ZERO_RESULTS"
)

// One provider lookup. Mode is already in the provider's vocabulary.
type RouteRequest struct {
	Origin      domain.Coordinate
	Destination domain.Coordinate
	Mode        string
	Region      string
}

// One leg of a returned route.
type RouteLeg struct {
	DurationSeconds          float64
	DurationInTrafficSeconds float64
	DistanceMeters           float64
}

// Parsed provider reply. A non-OK Status is a provider-level failure and
// ErrorMessage carries the provider's explanation.
type RouteResponse struct {
	Status       string
	ErrorMessage string
	Legs         []RouteLeg
}

// Contract for the external routing service.
// A returned error means the call itself failed (transport, timeout, decode).
type RoutingProvider interface {
	Name() string
	Route(ctx context.Context, req RouteRequest) (RouteResponse, error)
}
