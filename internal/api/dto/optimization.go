package dto

type UserRequest struct {
	ID     string  `json:"id"`
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Mode   string  `json:"mode"`
	Weight float64 `json:"weight"`
}

// OptimizationRequest is the POST /optimizations body. Zero spacings fall back
// to the server defaults; zero limits are unbounded.
type OptimizationRequest struct {
	Users         []UserRequest `json:"users"`
	MaxTravelTime float64       `json:"max_travel_time"`
	MaxTimeRange  float64       `json:"max_time_range"`
	CoarseSpacing float64       `json:"coarse_spacing_km"`
	FineSpacing   float64       `json:"fine_spacing_km"`
}

type UserTravelTime struct {
	UserID          string  `json:"user_id"`
	Mode            string  `json:"mode"`
	DurationMinutes float64 `json:"duration_minutes"`
	DistanceKm      float64 `json:"distance_km"`
	Confidence      float64 `json:"confidence"`
	Cached          bool    `json:"cached"`
}

type CandidateResponse struct {
	Lat         float64          `json:"lat"`
	Lng         float64          `json:"lng"`
	EquityScore float64          `json:"equity_score"`
	EquityLevel string           `json:"equity_level"`
	JainsIndex  float64          `json:"jains_index"`
	TimeRange   float64          `json:"time_range"`
	AverageTime float64          `json:"average_time"`
	TravelTimes []UserTravelTime `json:"travel_times"`
}

type OptimizationResponse struct {
	RunID                string              `json:"run_id"`
	Status               string              `json:"status"`
	Best                 *CandidateResponse  `json:"best"`
	Alternates           []CandidateResponse `json:"alternates"`
	ConstraintsSatisfied bool                `json:"constraints_satisfied"`
	Evaluated            int                 `json:"evaluated"`
	Message              string              `json:"message,omitempty"`
}

type ProgressResponse struct {
	Stage   string `json:"stage"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

// StreamEvent is one NDJSON line of a streamed optimization. Exactly one of
// Progress and Result is set, matching Type.
type StreamEvent struct {
	Type     string                `json:"type"`
	Progress *ProgressResponse     `json:"progress,omitempty"`
	Result   *OptimizationResponse `json:"result,omitempty"`
}
