package routing

import (
	"context"
	"math"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/safe-route-service/internal/domain"
)

const (
	// ProximityMeters is how close a route vertex must pass to a cluster
	// centroid for the cluster to count against the route.
	ProximityMeters = 50.0

	// HighRiskThreshold is the aggregate score at which a route is HIGH_RISK
	// even when it only touches low-severity clusters.
	HighRiskThreshold = 20.0

	maxRouteScore = 100.0
)

// Severity buckets a cluster by intensity.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// SeverityOf maps a cluster intensity to a severity bucket.
func SeverityOf(intensity float64) Severity {
	switch {
	case intensity >= 0.9:
		return SeverityHigh
	case intensity >= 0.75:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func (s Severity) weight() float64 {
	switch s {
	case SeverityHigh:
		return 50
	case SeverityMedium:
		return 20
	default:
		return 5
	}
}

// ClusterSource yields the validated clusters as of now.
type ClusterSource interface {
	ActiveClusters(now time.Time) []domain.RiskCluster
}

// LocalScorer scores routes against the in-process risk clusters. It stands
// in for the external oracle when none is configured.
type LocalScorer struct {
	clusters ClusterSource
	clock    clockwork.Clock
}

// NewLocalScorer creates a LocalScorer. A nil clock uses the real clock.
func NewLocalScorer(clusters ClusterSource, clock clockwork.Clock) *LocalScorer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &LocalScorer{clusters: clusters, clock: clock}
}

// Score sums the severity weight of every cluster the route passes within
// ProximityMeters of, capped at 100. The route is HIGH_RISK when it touches a
// MEDIUM or HIGH cluster or its score reaches HighRiskThreshold.
func (s *LocalScorer) Score(ctx context.Context, geometry string) (domain.RiskAssessment, error) {
	if err := ctx.Err(); err != nil {
		return domain.RiskAssessment{}, err
	}

	path, err := domain.DecodePolyline(geometry)
	if err != nil {
		return domain.RiskAssessment{}, err
	}
	safe := domain.RiskAssessment{Score: 0, Classification: domain.ClassificationSafe}
	if len(path) < 2 {
		return safe, nil
	}

	var (
		total     float64
		dangerous bool
	)
	for _, c := range s.clusters.ActiveClusters(s.clock.Now()) {
		if _, d := domain.NearestVertex(path, c.Centroid); d > ProximityMeters {
			continue
		}
		sev := SeverityOf(c.Intensity)
		total += sev.weight()
		if sev != SeverityLow {
			dangerous = true
		}
	}
	total = math.Min(total, maxRouteScore)

	if dangerous || total >= HighRiskThreshold {
		return domain.RiskAssessment{Score: total, Classification: domain.ClassificationHighRisk}, nil
	}
	return domain.RiskAssessment{Score: total, Classification: domain.ClassificationSafe}, nil
}
