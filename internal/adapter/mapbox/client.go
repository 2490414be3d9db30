package mapbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/safe-route-service/internal/domain"
	"github.com/couchcryptid/safe-route-service/internal/observability"
)

const defaultBaseURL = "https://api.mapbox.com"

// Client implements domain.GeometryProvider and domain.DestinationGeocoder
// using the Mapbox Directions and Geocoding APIs.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Mapbox client.
func NewClient(token string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: defaultBaseURL,
		metrics: metrics,
		logger:  logger,
	}
}

// Route requests walking or driving routes with alternatives. A NoRoute answer
// yields an empty slice and a nil error.
func (c *Client) Route(ctx context.Context, origin, destination domain.Coordinate, profile domain.Profile) ([]domain.RouteGeometry, error) {
	// Mapbox uses lng,lat order.
	coords := fmt.Sprintf("%.6f,%.6f;%.6f,%.6f", origin.Lng, origin.Lat, destination.Lng, destination.Lat)
	u := fmt.Sprintf("%s/directions/v5/mapbox/%s/%s", c.baseURL, profile, coords)
	params := url.Values{
		"access_token": {c.token},
		"alternatives": {"true"},
		"geometries":   {"polyline"},
		"overview":     {"full"},
		"steps":        {"true"},
	}

	var resp directionsResponse
	if err := c.doRequest(ctx, u+"?"+params.Encode(), "directions", &resp); err != nil {
		return nil, err
	}
	if resp.Code != "" && resp.Code != "Ok" {
		c.logger.Warn("mapbox directions returned no route", "code", resp.Code, "message", resp.Message)
		c.metrics.DirectionsRequests.WithLabelValues("directions", "empty").Inc()
		return nil, nil
	}

	routes := make([]domain.RouteGeometry, 0, len(resp.Routes))
	for _, r := range resp.Routes {
		routes = append(routes, r.toDomain())
	}
	if len(routes) == 0 {
		c.metrics.DirectionsRequests.WithLabelValues("directions", "empty").Inc()
	} else {
		c.metrics.DirectionsRequests.WithLabelValues("directions", "success").Inc()
	}
	return routes, nil
}

// Geocode resolves a free-text destination to its best match. An unknown
// place yields a zero Destination and a nil error.
func (c *Client) Geocode(ctx context.Context, query string) (domain.Destination, error) {
	u := fmt.Sprintf("%s/geocoding/v5/mapbox.places/%s.json", c.baseURL, url.PathEscape(query))
	params := url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
	}

	var resp geocodeResponse
	if err := c.doRequest(ctx, u+"?"+params.Encode(), "geocode", &resp); err != nil {
		return domain.Destination{}, err
	}
	if len(resp.Features) == 0 || len(resp.Features[0].Center) != 2 {
		c.metrics.DirectionsRequests.WithLabelValues("geocode", "empty").Inc()
		return domain.Destination{}, nil
	}

	f := resp.Features[0]
	c.metrics.DirectionsRequests.WithLabelValues("geocode", "success").Inc()
	return domain.Destination{
		Name:     f.PlaceName,
		Location: domain.Coordinate{Lng: f.Center[0], Lat: f.Center[1]},
	}, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL, method string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.DirectionsAPIDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.DirectionsRequests.WithLabelValues(method, "error").Inc()
		return fmt.Errorf("%s request: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.DirectionsRequests.WithLabelValues(method, "error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("mapbox API error: status %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.metrics.DirectionsRequests.WithLabelValues(method, "error").Inc()
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Mapbox API response types.

type directionsResponse struct {
	Code    string     `json:"code"`
	Message string     `json:"message"`
	Routes  []apiRoute `json:"routes"`
}

type apiRoute struct {
	Geometry string   `json:"geometry"`
	Distance float64  `json:"distance"`
	Duration float64  `json:"duration"`
	Legs     []apiLeg `json:"legs"`
}

type apiLeg struct {
	Steps []apiStep `json:"steps"`
}

type apiStep struct {
	Name     string      `json:"name"`
	Distance float64     `json:"distance"`
	Duration float64     `json:"duration"`
	Maneuver apiManeuver `json:"maneuver"`
}

type apiManeuver struct {
	Instruction string `json:"instruction"`
	Type        string `json:"type"`
	Modifier    string `json:"modifier"`
}

func (r apiRoute) toDomain() domain.RouteGeometry {
	var steps []domain.Step
	for _, leg := range r.Legs {
		for _, s := range leg.Steps {
			maneuver := s.Maneuver.Type
			if s.Maneuver.Modifier != "" {
				maneuver += " " + s.Maneuver.Modifier
			}
			steps = append(steps, domain.Step{
				Instruction:     s.Maneuver.Instruction,
				Maneuver:        maneuver,
				Name:            s.Name,
				DistanceMeters:  s.Distance,
				DurationSeconds: s.Duration,
			})
		}
	}
	return domain.RouteGeometry{
		Geometry:        r.Geometry,
		DistanceMeters:  r.Distance,
		DurationSeconds: r.Duration,
		Steps:           steps,
	}
}

type geocodeResponse struct {
	Features []feature `json:"features"`
}

type feature struct {
	Center    []float64 `json:"center"` // [lng, lat]
	PlaceName string    `json:"place_name"`
	Text      string    `json:"text"`
	Relevance float64   `json:"relevance"`
}
