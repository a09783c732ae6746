package domain

type TravelTimeStatus string

const (
	StatusSuccess TravelTimeStatus = "success"
	StatusError   TravelTimeStatus = "error"
)

// Classifies why a travel-time lookup failed.
type ErrorKind string

const (
	ErrorKindNone          ErrorKind = ""
	ErrorKindValidation    ErrorKind = "validation"
	ErrorKindProvider      ErrorKind = "provider"
	ErrorKindNetwork       ErrorKind = "network"
	ErrorKindQuotaExceeded ErrorKind = "quota_exceeded"
	ErrorKindCircuitOpen   ErrorKind = "circuit_open"
)

// Unavailable reports whether the failure came from the gateway refusing to
// call the provider at all (breaker open or quota spent).
func (k ErrorKind) Unavailable() bool {
	return k == ErrorKindCircuitOpen || k == ErrorKindQuotaExceeded
}

// Outcome of one (origin, destination, mode) lookup. Immutable once produced.
// Duration is in minutes and Distance in kilometers.
type TravelTimeResult struct {
	Status     TravelTimeStatus `json:"status"`
	Duration   float64          `json:"duration"`
	Distance   float64          `json:"distance"`
	Confidence float64          `json:"confidence"`
	Source     string           `json:"source"`
	Cached     bool             `json:"cached"`
	Error      string           `json:"error,omitempty"`
	ErrorKind  ErrorKind        `json:"error_kind,omitempty"`
}

func (r TravelTimeResult) OK() bool { return r.Status == StatusSuccess }

// ErrorResult builds a failed lookup result.
func ErrorResult(kind ErrorKind, source, msg string) TravelTimeResult {
	return TravelTimeResult{
		Status:    StatusError,
		Source:    source,
		Error:     msg,
		ErrorKind: kind,
	}
}

// A single travel-time lookup.
type TravelTimeRequest struct {
	Origin      Coordinate    `json:"origin"`
	Destination Coordinate    `json:"destination"`
	Mode        TransportMode `json:"mode"`
}

// CacheKey identifies the exact (origin, destination, mode) triple.
func (r TravelTimeRequest) CacheKey() string {
	return r.Origin.String() + "|" + r.Destination.String() + "|" + string(r.Mode)
}
