package domain

import (
	"fmt"
	"math"
)

const earthRadiusKm = 6371.0

// Coordinate is a WGS-84 position in longitude/latitude order, matching the
// GeoJSON and Mapbox convention used by every collaborator.
type Coordinate struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// Validate rejects coordinates outside the WGS-84 range.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lng) || math.IsNaN(c.Lat) {
		return fmt.Errorf("coordinate is NaN")
	}
	if c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("longitude %g out of range", c.Lng)
	}
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("latitude %g out of range", c.Lat)
	}
	return nil
}

// HaversineKm returns the great-circle distance between two coordinates in kilometres.
func HaversineKm(a, b Coordinate) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// HaversineMeters is HaversineKm in metres.
func HaversineMeters(a, b Coordinate) float64 {
	return HaversineKm(a, b) * 1000
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
