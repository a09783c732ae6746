package ports

import (
	"context"

	"meeting-point-service/internal/domain"
)

// Storage for successful travel-time results keyed by TravelTimeRequest.CacheKey.
// Implementations expire entries on their own TTL and must be safe for concurrent use.
type TravelTimeCache interface {
	Get(ctx context.Context, key string) (domain.TravelTimeResult, bool, error)
	Put(ctx context.Context, key string, result domain.TravelTimeResult) error
	Clear(ctx context.Context) error
}
