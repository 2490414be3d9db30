package domain

import (
	"context"
	"fmt"
)

// Profile selects the travel mode passed to the geometry provider.
type Profile string

const (
	ProfileWalking Profile = "walking"
	ProfileDriving Profile = "driving"
)

// ParseProfile validates a profile name.
func ParseProfile(s string) (Profile, error) {
	switch Profile(s) {
	case ProfileWalking, ProfileDriving:
		return Profile(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidProfile, s)
	}
}

// Classification is the oracle's binary safety verdict for a route.
type Classification string

const (
	ClassificationSafe     Classification = "SAFE"
	ClassificationHighRisk Classification = "HIGH_RISK"
)

// Step is one turn-by-turn instruction.
type Step struct {
	Instruction     string  `json:"instruction"`
	Maneuver        string  `json:"maneuver,omitempty"`
	Name            string  `json:"name,omitempty"`
	DistanceMeters  float64 `json:"distance_m"`
	DurationSeconds float64 `json:"duration_s"`
}

// RouteGeometry is one route as returned by the geometry provider.
type RouteGeometry struct {
	Geometry        string  `json:"geometry"` // encoded polyline, precision 5
	DistanceMeters  float64 `json:"distance_m"`
	DurationSeconds float64 `json:"duration_s"`
	Steps           []Step  `json:"steps"`
}

// CandidateRoute is a route option inside one planning session.
type CandidateRoute struct {
	ID              string          `json:"id"`
	Geometry        string          `json:"geometry"`
	DistanceMeters  float64         `json:"distance_m"`
	DurationSeconds float64         `json:"duration_s"`
	Steps           []Step          `json:"steps"`
	RiskScore       *float64        `json:"risk_score"`
	Classification  *Classification `json:"classification"`
	ScoreFailed     bool            `json:"score_failed,omitempty"`
}

// IsHighRisk reports whether the candidate was classified HIGH_RISK.
func (r CandidateRoute) IsHighRisk() bool {
	return r.Classification != nil && *r.Classification == ClassificationHighRisk
}

// RiskAssessment is the oracle's answer for one route geometry.
type RiskAssessment struct {
	Score          float64
	Classification Classification
}

// Selection is the result of scoring a set of candidates. SelectedID is empty
// when no candidate may be navigated.
type Selection struct {
	Scored     []CandidateRoute `json:"candidates"`
	SelectedID string           `json:"selected_id,omitempty"`
}

// HasSelection reports whether a safe candidate was chosen.
func (s Selection) HasSelection() bool { return s.SelectedID != "" }

// Selected returns the chosen candidate, if any.
func (s Selection) Selected() (CandidateRoute, bool) {
	for _, c := range s.Scored {
		if s.HasSelection() && c.ID == s.SelectedID {
			return c, true
		}
	}
	return CandidateRoute{}, false
}

// GeometryProvider returns candidate route geometries for an origin/destination pair.
type GeometryProvider interface {
	Route(ctx context.Context, origin, destination Coordinate, profile Profile) ([]RouteGeometry, error)
}

// RiskScorer scores an encoded route geometry.
type RiskScorer interface {
	Score(ctx context.Context, geometry string) (RiskAssessment, error)
}

// Destination is a named target location.
type Destination struct {
	Name     string     `json:"name"`
	Location Coordinate `json:"coordinates"`
}

// DestinationGeocoder resolves a free-text destination query.
type DestinationGeocoder interface {
	Geocode(ctx context.Context, query string) (Destination, error)
}
