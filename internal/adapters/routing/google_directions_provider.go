package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"meeting-point-service/internal/platform/obs"
	"meeting-point-service/internal/ports"
)

const DefaultDirectionsBaseURL = "https://maps.googleapis.com"

type directionsResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Routes       []struct {
		Legs []struct {
			Duration struct {
				Value float64 `json:"value"`
			} `json:"duration"`
			DurationInTraffic *struct {
				Value float64 `json:"value"`
			} `json:"duration_in_traffic"`
			Distance struct {
				Value float64 `json:"value"`
			} `json:"distance"`
		} `json:"legs"`
	} `json:"routes"`
}

// GoogleDirectionsProvider implements RoutingProvider using the Google Maps
// Directions API. It performs a single HTTP lookup per call with retry on
// transient failures; caching and rate protection live in the gateway.
//
// The provider is safe for concurrent use.
type GoogleDirectionsProvider struct {
	session        *http.Client
	apiKey         string
	baseURL        string
	maxAttempts    int
	initialBackoff time.Duration
}

type DirectionsOption func(*GoogleDirectionsProvider)

// WithBaseURL points the provider at another host (tests, proxies).
func WithBaseURL(u string) DirectionsOption {
	return func(g *GoogleDirectionsProvider) { g.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(c *http.Client) DirectionsOption {
	return func(g *GoogleDirectionsProvider) { g.session = c }
}

// WithRetry sets the attempt count (>= 1) and the first backoff delay.
func WithRetry(maxAttempts int, initialBackoff time.Duration) DirectionsOption {
	return func(g *GoogleDirectionsProvider) {
		if maxAttempts < 1 {
			maxAttempts = 1
		}
		g.maxAttempts = maxAttempts
		g.initialBackoff = initialBackoff
	}
}

func NewGoogleDirectionsProvider(apiKey string, opts ...DirectionsOption) (*GoogleDirectionsProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("google directions api key is empty")
	}

	provider := &GoogleDirectionsProvider{
		session:        &http.Client{Timeout: 10 * time.Second},
		apiKey:         apiKey,
		baseURL:        DefaultDirectionsBaseURL,
		maxAttempts:    2,
		initialBackoff: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(provider)
	}

	return provider, nil
}

func (g *GoogleDirectionsProvider) Name() string { return "google-directions" }

// Route fetches one origin->destination route.
// Non-OK statuses in the body are returned in the response, not as errors.
func (g *GoogleDirectionsProvider) Route(
	ctx context.Context,
	rr ports.RouteRequest,
) (_ ports.RouteResponse, err error) {
	defer obs.Time(ctx, "directions.Route")(&err)

	endpoint := g.baseURL + "/maps/api/directions/json"

	resp, err := g.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := g.newRequest(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		q := req.URL.Query()
		q.Set("origin", rr.Origin.String())
		q.Set("destination", rr.Destination.String())
		q.Set("mode", rr.Mode)
		if rr.Region != "" {
			q.Set("region", rr.Region)
		}
		if rr.Mode == "transit" || rr.Mode == "driving" {
			q.Set("departure_time", "now")
		}
		q.Set("key", g.apiKey)
		req.URL.RawQuery = q.Encode()
		return req, nil
	})
	if err != nil {
		return ports.RouteResponse{}, fmt.Errorf("directions request failed: %w", err)
	}
	defer resp.Body.Close()

	var decoded directionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return ports.RouteResponse{}, fmt.Errorf("decode directions response: %w", err)
	}

	out := ports.RouteResponse{
		Status:       decoded.Status,
		ErrorMessage: decoded.ErrorMessage,
	}
	if len(decoded.Routes) == 0 {
		return out, nil
	}

	for _, leg := range decoded.Routes[0].Legs {
		l := ports.RouteLeg{
			DurationSeconds: leg.Duration.Value,
			DistanceMeters:  leg.Distance.Value,
		}
		if leg.DurationInTraffic != nil {
			l.DurationInTrafficSeconds = leg.DurationInTraffic.Value
		}
		out.Legs = append(out.Legs, l)
	}

	return out, nil
}
