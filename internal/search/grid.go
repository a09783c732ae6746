package search

import (
	"math"

	"meeting-point-service/internal/domain"
)

// pointKey identifies a coordinate rounded to 1e-6 degrees (about 0.1 m).
type pointKey struct {
	lat int64
	lng int64
}

func keyOf(c domain.Coordinate) pointKey {
	return pointKey{
		lat: int64(math.Round(c.Lat * 1e6)),
		lng: int64(math.Round(c.Lng * 1e6)),
	}
}

// searchRegion is the box around the users grown by marginKm and clipped to
// the service region.
func searchRegion(users []domain.Coordinate, marginKm float64) domain.BoundingBox {
	return domain.BoundsOf(users).Expand(marginKm).Intersect(domain.ServiceRegion)
}

// gridPoints lays a regular grid over box starting at its south-west corner.
func gridPoints(box domain.BoundingBox, spacingKm float64) []domain.Coordinate {
	if box.Empty() || spacingKm <= 0 {
		return nil
	}

	dLat := domain.KmToLatDegrees(spacingKm)
	dLng := domain.KmToLngDegrees(spacingKm, (box.MinLat+box.MaxLat)/2)

	rows := int(math.Floor((box.MaxLat-box.MinLat)/dLat+1e-9)) + 1
	cols := int(math.Floor((box.MaxLng-box.MinLng)/dLng+1e-9)) + 1

	out := make([]domain.Coordinate, 0, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out = append(out, domain.Coordinate{
				Lat: box.MinLat + float64(i)*dLat,
				Lng: box.MinLng + float64(j)*dLng,
			})
		}
	}
	return out
}

// localGrid lays a fine grid of ±halfKm around center, clipped to box.
func localGrid(center domain.Coordinate, halfKm, spacingKm float64, box domain.BoundingBox) []domain.Coordinate {
	if spacingKm <= 0 {
		return nil
	}

	n := int(math.Floor(halfKm/spacingKm + 1e-9))
	dLat := domain.KmToLatDegrees(spacingKm)
	dLng := domain.KmToLngDegrees(spacingKm, center.Lat)

	out := make([]domain.Coordinate, 0, (2*n+1)*(2*n+1))
	for i := -n; i <= n; i++ {
		for j := -n; j <= n; j++ {
			c := domain.Coordinate{
				Lat: center.Lat + float64(i)*dLat,
				Lng: center.Lng + float64(j)*dLng,
			}
			if box.Contains(c) {
				out = append(out, c)
			}
		}
	}
	return out
}
