package handlers

import (
	"net/http"

	"meeting-point-service/internal/ports"
)

type StatusReporter interface {
	ServiceStatus() ports.ServiceStatus
}

type StatusHandler struct {
	Gateway StatusReporter
}

// Health provides a minimal liveness check endpoint.
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// Status reports circuit-breaker and quota state for operators.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, r, http.StatusOK, h.Gateway.ServiceStatus())
}
