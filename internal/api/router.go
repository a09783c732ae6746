package api

import (
	"net/http"

	"meeting-point-service/internal/api/handlers"
	"meeting-point-service/internal/domain"
)

// Gateway is what the HTTP surface needs from the travel-time gateway.
type Gateway interface {
	handlers.StatusReporter
	handlers.TravelTimeLookup
}

// NewRouter wires HTTP handlers with their dependencies and returns an http.Handler.
// This is the API composition root (handlers stay unaware of concrete adapters).
func NewRouter(gw Gateway, optimizer handlers.Optimizer, region domain.RegionConfig, search domain.SearchConfig) http.Handler {
	mux := http.NewServeMux()

	statusHandler := &handlers.StatusHandler{Gateway: gw}
	travelHandler := &handlers.TravelTimeHandler{Gateway: gw}
	optHandler := &handlers.OptimizationHandler{
		Optimizer: optimizer,
		Region:    region,
		Search:    search,
	}

	mux.HandleFunc("/health", statusHandler.Health)
	mux.HandleFunc("/status", statusHandler.Status)
	mux.HandleFunc("/travel-times", travelHandler.Lookup)
	mux.HandleFunc("/optimizations", optHandler.Optimize)

	return requestIDMiddleware(loggingMiddleware(mux))
}
