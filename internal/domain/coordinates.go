package domain

import (
	"math"
	"strconv"

	"github.com/golang/geo/s2"
)

const earthRadiusKm = 6371.0088

// Immutable geographic coordinate (WGS-84 degrees).
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Return the coordinate as "lat,lng" for external API compatibility.
func (c Coordinate) String() string {
	return strconv.FormatFloat(c.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(c.Lng, 'f', 6, 64)
}

// Great-circle distance in kilometers.
func (c Coordinate) DistanceKm(other Coordinate) float64 {
	p1 := s2.LatLngFromDegrees(c.Lat, c.Lng)
	p2 := s2.LatLngFromDegrees(other.Lat, other.Lng)
	return p1.Distance(p2).Radians() * earthRadiusKm
}

// Valid reports whether the coordinate is a finite latitude/longitude pair.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lng, 0) {
		return false
	}
	return s2.LatLngFromDegrees(c.Lat, c.Lng).IsValid()
}

// Centroid returns the unweighted geometric mean of the given coordinates.
func Centroid(coords []Coordinate) Coordinate {
	if len(coords) == 0 {
		return Coordinate{}
	}

	var lat, lng float64
	for _, c := range coords {
		lat += c.Lat
		lng += c.Lng
	}
	n := float64(len(coords))
	return Coordinate{Lat: lat / n, Lng: lng / n}
}

// Latitude/longitude rectangle.
type BoundingBox struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLng float64 `json:"max_lng"`
}

// ServiceRegion is the area the routing provider is queried for (Singapore).
var ServiceRegion = BoundingBox{
	MinLat: 1.15,
	MaxLat: 1.48,
	MinLng: 103.59,
	MaxLng: 104.10,
}

func (b BoundingBox) Contains(c Coordinate) bool {
	return c.Lat >= b.MinLat && c.Lat <= b.MaxLat && c.Lng >= b.MinLng && c.Lng <= b.MaxLng
}

// BoundsOf returns the smallest box covering all coordinates.
func BoundsOf(coords []Coordinate) BoundingBox {
	if len(coords) == 0 {
		return BoundingBox{}
	}

	b := BoundingBox{
		MinLat: coords[0].Lat,
		MaxLat: coords[0].Lat,
		MinLng: coords[0].Lng,
		MaxLng: coords[0].Lng,
	}
	for _, c := range coords[1:] {
		b.MinLat = math.Min(b.MinLat, c.Lat)
		b.MaxLat = math.Max(b.MaxLat, c.Lat)
		b.MinLng = math.Min(b.MinLng, c.Lng)
		b.MaxLng = math.Max(b.MaxLng, c.Lng)
	}
	return b
}

// Expand grows the box by marginKm on every side.
func (b BoundingBox) Expand(marginKm float64) BoundingBox {
	dLat := KmToLatDegrees(marginKm)
	dLng := KmToLngDegrees(marginKm, (b.MinLat+b.MaxLat)/2)
	return BoundingBox{
		MinLat: b.MinLat - dLat,
		MaxLat: b.MaxLat + dLat,
		MinLng: b.MinLng - dLng,
		MaxLng: b.MaxLng + dLng,
	}
}

// Intersect clips the box to other. The result may be empty (Min > Max).
func (b BoundingBox) Intersect(other BoundingBox) BoundingBox {
	return BoundingBox{
		MinLat: math.Max(b.MinLat, other.MinLat),
		MaxLat: math.Min(b.MaxLat, other.MaxLat),
		MinLng: math.Max(b.MinLng, other.MinLng),
		MaxLng: math.Min(b.MaxLng, other.MaxLng),
	}
}

func (b BoundingBox) Empty() bool {
	return b.MinLat > b.MaxLat || b.MinLng > b.MaxLng
}

const kmPerDegreeLat = 111.32

func KmToLatDegrees(km float64) float64 {
	return km / kmPerDegreeLat
}

// KmToLngDegrees converts an east-west distance at the given latitude.
func KmToLngDegrees(km float64, atLat float64) float64 {
	cos := math.Cos(atLat * math.Pi / 180)
	if cos < 1e-6 {
		cos = 1e-6
	}
	return km / (kmPerDegreeLat * cos)
}
