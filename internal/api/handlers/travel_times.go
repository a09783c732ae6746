package handlers

import (
	"context"
	"net/http"

	"meeting-point-service/internal/api/dto"
	"meeting-point-service/internal/domain"
)

type TravelTimeLookup interface {
	GetTravelTime(ctx context.Context, origin, destination domain.Coordinate, mode domain.TransportMode) domain.TravelTimeResult
}

type TravelTimeHandler struct {
	Gateway TravelTimeLookup
}

// Lookup resolves a single origin/destination/mode through the gateway.
func (h *TravelTimeHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req dto.TravelTimeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	mode, err := domain.ParseTransportMode(req.Mode)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	res := h.Gateway.GetTravelTime(r.Context(),
		domain.Coordinate{Lat: req.Origin.Lat, Lng: req.Origin.Lng},
		domain.Coordinate{Lat: req.Destination.Lat, Lng: req.Destination.Lng},
		mode,
	)

	writeJSON(w, r, statusForKind(res.ErrorKind), dto.TravelTimeResponse{
		Status:          string(res.Status),
		DurationMinutes: res.Duration,
		DistanceKm:      res.Distance,
		Confidence:      res.Confidence,
		Source:          res.Source,
		Cached:          res.Cached,
		Error:           res.Error,
		ErrorKind:       string(res.ErrorKind),
	})
}

func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.ErrorKindNone:
		return http.StatusOK
	case domain.ErrorKindValidation:
		return http.StatusBadRequest
	case domain.ErrorKindCircuitOpen, domain.ErrorKindQuotaExceeded:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
