package gateway

import (
	"context"

	"golang.org/x/sync/errgroup"

	"meeting-point-service/internal/domain"
)

// GetTravelTimes resolves many lookups concurrently, bounded by
// BatchConcurrency. The result slice is aligned with reqs; individual
// failures stay in their own element.
func (g *Gateway) GetTravelTimes(ctx context.Context, reqs []domain.TravelTimeRequest) []domain.TravelTimeResult {
	out := make([]domain.TravelTimeResult, len(reqs))
	if len(reqs) == 0 {
		return out
	}

	var eg errgroup.Group
	eg.SetLimit(g.cfg.BatchConcurrency)
	for i, r := range reqs {
		eg.Go(func() error {
			out[i] = g.GetTravelTime(ctx, r.Origin, r.Destination, r.Mode)
			return nil
		})
	}
	_ = eg.Wait()

	return out
}

// GetBatchTravelTimes resolves the cross product origins x modes against one
// destination. Results are origin-major: index = originIdx*len(modes) + modeIdx.
func (g *Gateway) GetBatchTravelTimes(
	ctx context.Context,
	origins []domain.Coordinate,
	destination domain.Coordinate,
	modes []domain.TransportMode,
) []domain.TravelTimeResult {
	reqs := make([]domain.TravelTimeRequest, 0, len(origins)*len(modes))
	for _, o := range origins {
		for _, m := range modes {
			reqs = append(reqs, domain.TravelTimeRequest{Origin: o, Destination: destination, Mode: m})
		}
	}
	return g.GetTravelTimes(ctx, reqs)
}
