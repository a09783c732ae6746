package search

import (
	"sort"

	"meeting-point-service/internal/domain"
)

// less orders candidates by equity score, then average time, then distance to
// the users' centroid, then latitude and longitude.
func less(a, b domain.Candidate, centroid domain.Coordinate) bool {
	if a.Metrics.EquityScore != b.Metrics.EquityScore {
		return a.Metrics.EquityScore < b.Metrics.EquityScore
	}
	if a.Metrics.AverageTime != b.Metrics.AverageTime {
		return a.Metrics.AverageTime < b.Metrics.AverageTime
	}
	da, db := a.Location.DistanceKm(centroid), b.Location.DistanceKm(centroid)
	if da != db {
		return da < db
	}
	if a.Location.Lat != b.Location.Lat {
		return a.Location.Lat < b.Location.Lat
	}
	return a.Location.Lng < b.Location.Lng
}

// sorted returns a ranked copy of cs.
func sorted(cs []domain.Candidate, centroid domain.Coordinate) []domain.Candidate {
	out := append([]domain.Candidate(nil), cs...)
	sort.SliceStable(out, func(i, j int) bool {
		return less(out[i], out[j], centroid)
	})
	return out
}

// dedupe keeps the first occurrence of every location.
func dedupe(cs []domain.Candidate) []domain.Candidate {
	seen := make(map[pointKey]struct{}, len(cs))
	out := cs[:0:0]
	for _, c := range cs {
		k := keyOf(c.Location)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c)
	}
	return out
}

func top(cs []domain.Candidate, n int) []domain.Candidate {
	if len(cs) > n {
		return cs[:n]
	}
	return cs
}
