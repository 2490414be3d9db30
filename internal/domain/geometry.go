package domain

import (
	"fmt"
	"math"

	"github.com/twpayne/go-polyline"
)

// DecodePolyline decodes a precision-5 encoded polyline into coordinates.
// The encoding stores latitude first; the result is in Lng/Lat form.
func DecodePolyline(encoded string) ([]Coordinate, error) {
	if encoded == "" {
		return nil, fmt.Errorf("%w: empty polyline", ErrInvalidGeometry)
	}
	coords, rest, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidGeometry, len(rest))
	}
	if len(coords) == 0 {
		return nil, fmt.Errorf("%w: no vertices", ErrInvalidGeometry)
	}

	out := make([]Coordinate, len(coords))
	for i, c := range coords {
		out[i] = Coordinate{Lat: c[0], Lng: c[1]}
	}
	return out, nil
}

// EncodePolyline is the inverse of DecodePolyline.
func EncodePolyline(coords []Coordinate) string {
	raw := make([][]float64, len(coords))
	for i, c := range coords {
		raw[i] = []float64{c.Lat, c.Lng}
	}
	return string(polyline.EncodeCoords(raw))
}

// NearestVertex scans every vertex and returns the index of the one closest to
// p together with its distance in metres. It returns -1 for an empty path.
func NearestVertex(path []Coordinate, p Coordinate) (int, float64) {
	best := -1
	bestDist := math.Inf(1)
	for i, v := range path {
		if d := HaversineMeters(v, p); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, bestDist
}

// RemainingFrom returns a copy of path starting at index i. At the last vertex
// the result is a single-point segment.
func RemainingFrom(path []Coordinate, i int) []Coordinate {
	if len(path) == 0 {
		return nil
	}
	if i < 0 {
		i = 0
	}
	if i >= len(path) {
		i = len(path) - 1
	}
	out := make([]Coordinate, len(path)-i)
	copy(out, path[i:])
	return out
}
