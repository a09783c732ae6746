package ports

import (
	"context"
	"time"

	"meeting-point-service/internal/domain"
)

type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half-open"
)

// Read-only view of the gateway's protection state.
type ServiceStatus struct {
	BreakerState        BreakerState `json:"breaker_state"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	CanMakeRequest      bool         `json:"can_make_request"`
	MsUntilProbe        int64        `json:"ms_until_probe"`
	QuotaUsed           int          `json:"quota_used"`
	QuotaRemaining      int          `json:"quota_remaining"`
	QuotaBudget         int          `json:"quota_budget"`
	QuotaResetsAt       time.Time    `json:"quota_resets_at"`
}

// What the search engine needs from the gateway.
type TravelTimeSource interface {
	// Return one result per request, in order. Never fails as a whole.
	GetTravelTimes(ctx context.Context, reqs []domain.TravelTimeRequest) []domain.TravelTimeResult
	ServiceStatus() ServiceStatus
}
