package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidRequest marks optimization requests rejected before any search work.
var ErrInvalidRequest = errors.New("invalid optimization request")

// Hard limits in minutes. A value <= 0 leaves that limit unbounded.
type OptimizationConstraints struct {
	MaxTravelTime float64 `json:"max_travel_time"`
	MaxTimeRange  float64 `json:"max_time_range"`
}

// Grid step sizes in kilometers.
type SearchConfig struct {
	CoarseSpacing float64 `json:"coarse_spacing"`
	FineSpacing   float64 `json:"fine_spacing"`
}

func DefaultSearchConfig() SearchConfig {
	return SearchConfig{CoarseSpacing: 1.5, FineSpacing: 0.5}
}

func (c SearchConfig) Validate() error {
	if c.CoarseSpacing <= 0 || c.FineSpacing <= 0 {
		return fmt.Errorf("search config: spacings must be positive (coarse=%v fine=%v)", c.CoarseSpacing, c.FineSpacing)
	}
	if c.FineSpacing >= c.CoarseSpacing {
		return fmt.Errorf("search config: fine spacing %v must be smaller than coarse spacing %v", c.FineSpacing, c.CoarseSpacing)
	}
	return nil
}

// Regional tuning for the search.
// VenueTypes is carried for the venue-discovery collaborator and ignored by the search.
type RegionConfig struct {
	ModeFactors map[TransportMode]float64 `json:"mode_factors"`
	TransitHubs []Coordinate              `json:"transit_hubs"`
	VenueTypes  []string                  `json:"venue_types"`
}

// ModeFactor returns the normalization factor for mode, defaulting to 1.
func (r RegionConfig) ModeFactor(m TransportMode) float64 {
	if f, ok := r.ModeFactors[m]; ok && f > 0 {
		return f
	}
	return 1
}

// DefaultSingaporeRegion returns factors and MRT interchange hubs for Singapore.
func DefaultSingaporeRegion() RegionConfig {
	return RegionConfig{
		ModeFactors: map[TransportMode]float64{
			ModeTransit: 1.0,
			ModeDriving: 1.2,
			ModeCycling: 0.9,
			ModeWalking: 0.85,
		},
		TransitHubs: []Coordinate{
			{Lat: 1.2990, Lng: 103.8455}, // Dhoby Ghaut
			{Lat: 1.2931, Lng: 103.8520}, // City Hall
			{Lat: 1.2840, Lng: 103.8515}, // Raffles Place
			{Lat: 1.2803, Lng: 103.8395}, // Outram Park
			{Lat: 1.3177, Lng: 103.8927}, // Paya Lebar
			{Lat: 1.3510, Lng: 103.8483}, // Bishan
			{Lat: 1.3497, Lng: 103.8737}, // Serangoon
			{Lat: 1.3072, Lng: 103.7903}, // Buona Vista
			{Lat: 1.3331, Lng: 103.7422}, // Jurong East
			{Lat: 1.3535, Lng: 103.9452}, // Tampines
			{Lat: 1.4370, Lng: 103.7865}, // Woodlands
		},
		VenueTypes: []string{"restaurant", "cafe", "shopping_mall"},
	}
}

type OptimizationRequest struct {
	Users       []UserLocation          `json:"users"`
	Constraints OptimizationConstraints `json:"constraints"`
	Search      SearchConfig            `json:"search"`
	Region      RegionConfig            `json:"region"`
}

// Validate checks the request shape. Region membership of user coordinates is
// left to the gateway so that such users surface as per-lookup errors.
func (r OptimizationRequest) Validate() error {
	if len(r.Users) < 2 {
		return fmt.Errorf("%w: at least 2 users are required, got %d", ErrInvalidRequest, len(r.Users))
	}

	seen := make(map[string]struct{}, len(r.Users))
	for i, u := range r.Users {
		if !u.Location.Valid() {
			return fmt.Errorf("%w: user at index %d has an invalid coordinate", ErrInvalidRequest, i)
		}
		if !u.Mode.Valid() {
			return fmt.Errorf("%w: user at index %d has unknown mode %q", ErrInvalidRequest, i, u.Mode)
		}
		if u.ID == "" {
			continue
		}
		if _, ok := seen[u.ID]; ok {
			return fmt.Errorf("%w: duplicate user id %q", ErrInvalidRequest, u.ID)
		}
		seen[u.ID] = struct{}{}
	}

	if err := r.Search.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	return nil
}

// Coordinates returns the user origins in request order.
func (r OptimizationRequest) Coordinates() []Coordinate {
	out := make([]Coordinate, 0, len(r.Users))
	for _, u := range r.Users {
		out = append(out, u.Location)
	}
	return out
}
