package domain

// Equity summary of a set of travel times. Lower EquityScore is better.
type EquityMetrics struct {
	JainsIndex  float64 `json:"jains_index"`
	TimeRange   float64 `json:"time_range"`
	AverageTime float64 `json:"average_time"`
	EquityScore float64 `json:"equity_score"`
}

// A scored meeting-point candidate.
// TravelTimes is aligned with the request's Users slice.
type Candidate struct {
	Location    Coordinate         `json:"location"`
	TravelTimes []TravelTimeResult `json:"travel_times"`
	Metrics     EquityMetrics      `json:"metrics"`
}

// MaxDuration returns the largest raw travel time in minutes.
func (c Candidate) MaxDuration() float64 {
	max := 0.0
	for _, t := range c.TravelTimes {
		if t.Duration > max {
			max = t.Duration
		}
	}
	return max
}

type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunDegraded  RunStatus = "degraded"
	RunCancelled RunStatus = "cancelled"
	RunFailed    RunStatus = "failed"
)

// Final outcome of one optimization run.
// Best is nil only for degraded/cancelled/failed runs that never scored a candidate.
type OptimizationResult struct {
	RunID                string      `json:"run_id,omitempty"`
	Status               RunStatus   `json:"status"`
	Best                 *Candidate  `json:"best"`
	Alternates           []Candidate `json:"alternates"`
	ConstraintsSatisfied bool        `json:"constraints_satisfied"`
	Evaluated            int         `json:"evaluated"`
	Message              string      `json:"message,omitempty"`
}

type Stage string

const (
	StageInitializing Stage = "initializing"
	StageCoarseSearch Stage = "coarse-search"
	StageFineSearch   Stage = "fine-search"
	StageComplete     Stage = "complete"
)

// One progress event. Percent never decreases within a run.
type OptimizationProgress struct {
	Stage   Stage  `json:"stage"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
}
