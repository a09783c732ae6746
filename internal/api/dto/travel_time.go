package dto

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type TravelTimeRequest struct {
	Origin      Point  `json:"origin"`
	Destination Point  `json:"destination"`
	Mode        string `json:"mode"`
}

type TravelTimeResponse struct {
	Status          string  `json:"status"`
	DurationMinutes float64 `json:"duration_minutes"`
	DistanceKm      float64 `json:"distance_km"`
	Confidence      float64 `json:"confidence"`
	Source          string  `json:"source"`
	Cached          bool    `json:"cached"`
	Error           string  `json:"error,omitempty"`
	ErrorKind       string  `json:"error_kind,omitempty"`
}
