package mapbox

import (
	"context"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/couchcryptid/safe-route-service/internal/domain"
	"github.com/couchcryptid/safe-route-service/internal/observability"
)

// Provider is the combined surface the cache decorates.
type Provider interface {
	domain.GeometryProvider
	domain.DestinationGeocoder
}

// CachedProvider wraps a Provider with in-memory LRU caches for directions
// and geocoding lookups.
type CachedProvider struct {
	inner    Provider
	routes   *lru.Cache[string, []domain.RouteGeometry]
	geocodes *lru.Cache[string, domain.Destination]
	metrics  *observability.Metrics
}

// NewCachedProvider creates a cache decorator around a provider.
func NewCachedProvider(inner Provider, maxEntries int, metrics *observability.Metrics) (*CachedProvider, error) {
	routes, err := lru.New[string, []domain.RouteGeometry](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("create directions cache: %w", err)
	}
	geocodes, err := lru.New[string, domain.Destination](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("create geocode cache: %w", err)
	}
	return &CachedProvider{inner: inner, routes: routes, geocodes: geocodes, metrics: metrics}, nil
}

func (c *CachedProvider) Route(ctx context.Context, origin, destination domain.Coordinate, profile domain.Profile) ([]domain.RouteGeometry, error) {
	key := fmt.Sprintf("%s:%.5f,%.5f;%.5f,%.5f", profile, origin.Lng, origin.Lat, destination.Lng, destination.Lat)
	if routes, ok := c.routes.Get(key); ok {
		c.metrics.DirectionsCache.WithLabelValues("directions", "hit").Inc()
		return routes, nil
	}
	c.metrics.DirectionsCache.WithLabelValues("directions", "miss").Inc()

	routes, err := c.inner.Route(ctx, origin, destination, profile)
	if err != nil {
		return nil, err
	}
	// Only cache non-empty results so transient NoRoute answers can be retried.
	if len(routes) > 0 {
		c.routes.Add(key, routes)
	}
	return routes, nil
}

func (c *CachedProvider) Geocode(ctx context.Context, query string) (domain.Destination, error) {
	key := strings.ToLower(strings.TrimSpace(query))
	if dest, ok := c.geocodes.Get(key); ok {
		c.metrics.DirectionsCache.WithLabelValues("geocode", "hit").Inc()
		return dest, nil
	}
	c.metrics.DirectionsCache.WithLabelValues("geocode", "miss").Inc()

	dest, err := c.inner.Geocode(ctx, query)
	if err != nil {
		return dest, err
	}
	if dest.Name != "" {
		c.geocodes.Add(key, dest)
	}
	return dest, nil
}
