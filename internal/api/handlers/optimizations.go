package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"meeting-point-service/internal/api/dto"
	"meeting-point-service/internal/domain"
	"meeting-point-service/internal/equity"
	"meeting-point-service/internal/platform/obs"
	"meeting-point-service/internal/search"
	"meeting-point-service/internal/services"
)

type Optimizer interface {
	Start(ctx context.Context, req domain.OptimizationRequest) *services.Run
}

type OptimizationHandler struct {
	Optimizer Optimizer
	Region    domain.RegionConfig
	Search    domain.SearchConfig
}

// Optimize runs one meeting-point optimization. With ?stream=1 the response
// is NDJSON: one "progress" line per stage followed by a "result" line.
func (h *OptimizationHandler) Optimize(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var body dto.OptimizationRequest
	if !decodeBody(w, r, &body) {
		return
	}

	req, err := h.toDomain(body)
	if err == nil {
		err = req.Validate()
	}
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	run := h.Optimizer.Start(r.Context(), req)

	if r.URL.Query().Get("stream") == "1" {
		h.stream(w, r, req, run)
		return
	}

	for range run.Progress() {
	}
	res, err := run.Wait()
	if err != nil && res.Status == domain.RunFailed {
		log.Printf("optimize failed: req_id=%s run_id=%s err=%v", obs.RequestID(r.Context()), run.ID(), err)
	}

	writeJSON(w, r, statusForRun(res, err), toResponse(req, res))
}

func (h *OptimizationHandler) stream(w http.ResponseWriter, r *http.Request, req domain.OptimizationRequest, run *services.Run) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	send := func(ev dto.StreamEvent) {
		if err := enc.Encode(ev); err != nil {
			log.Printf("stream write failed: req_id=%s run_id=%s err=%v", obs.RequestID(r.Context()), run.ID(), err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	for p := range run.Progress() {
		send(dto.StreamEvent{Type: "progress", Progress: &dto.ProgressResponse{
			Stage:   string(p.Stage),
			Percent: p.Percent,
			Message: p.Message,
		}})
	}

	res, _ := run.Wait()
	out := toResponse(req, res)
	send(dto.StreamEvent{Type: "result", Result: &out})
}

func (h *OptimizationHandler) toDomain(body dto.OptimizationRequest) (domain.OptimizationRequest, error) {
	users := make([]domain.UserLocation, 0, len(body.Users))
	for _, u := range body.Users {
		mode, err := domain.ParseTransportMode(u.Mode)
		if err != nil {
			return domain.OptimizationRequest{}, err
		}
		users = append(users, domain.UserLocation{
			ID:       u.ID,
			Location: domain.Coordinate{Lat: u.Lat, Lng: u.Lng},
			Mode:     mode,
			Weight:   u.Weight,
		})
	}

	cfg := h.Search
	if cfg == (domain.SearchConfig{}) {
		cfg = domain.DefaultSearchConfig()
	}
	if body.CoarseSpacing > 0 {
		cfg.CoarseSpacing = body.CoarseSpacing
	}
	if body.FineSpacing > 0 {
		cfg.FineSpacing = body.FineSpacing
	}

	return domain.OptimizationRequest{
		Users: users,
		Constraints: domain.OptimizationConstraints{
			MaxTravelTime: body.MaxTravelTime,
			MaxTimeRange:  body.MaxTimeRange,
		},
		Search: cfg,
		Region: h.Region,
	}, nil
}

func statusForRun(res domain.OptimizationResult, err error) int {
	switch res.Status {
	case domain.RunCompleted, domain.RunDegraded:
		return http.StatusOK
	case domain.RunCancelled:
		return http.StatusServiceUnavailable
	}
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, search.ErrNoEvaluableCandidates):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func toResponse(req domain.OptimizationRequest, res domain.OptimizationResult) dto.OptimizationResponse {
	out := dto.OptimizationResponse{
		RunID:                res.RunID,
		Status:               string(res.Status),
		Alternates:           make([]dto.CandidateResponse, 0, len(res.Alternates)),
		ConstraintsSatisfied: res.ConstraintsSatisfied,
		Evaluated:            res.Evaluated,
		Message:              res.Message,
	}
	if res.Best != nil {
		best := toCandidate(req, *res.Best)
		out.Best = &best
	}
	for _, c := range res.Alternates {
		out.Alternates = append(out.Alternates, toCandidate(req, c))
	}
	return out
}

func toCandidate(req domain.OptimizationRequest, c domain.Candidate) dto.CandidateResponse {
	times := make([]dto.UserTravelTime, 0, len(c.TravelTimes))
	for i, t := range c.TravelTimes {
		var id, mode string
		if i < len(req.Users) {
			id, mode = req.Users[i].ID, string(req.Users[i].Mode)
		}
		times = append(times, dto.UserTravelTime{
			UserID:          id,
			Mode:            mode,
			DurationMinutes: t.Duration,
			DistanceKm:      t.Distance,
			Confidence:      t.Confidence,
			Cached:          t.Cached,
		})
	}

	return dto.CandidateResponse{
		Lat:         c.Location.Lat,
		Lng:         c.Location.Lng,
		EquityScore: c.Metrics.EquityScore,
		EquityLevel: string(equity.LevelOf(c.Metrics.JainsIndex)),
		JainsIndex:  c.Metrics.JainsIndex,
		TimeRange:   c.Metrics.TimeRange,
		AverageTime: c.Metrics.AverageTime,
		TravelTimes: times,
	}
}
