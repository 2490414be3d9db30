package consensus

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/couchcryptid/safe-route-service/internal/domain"
)

const (
	// ZoneRadiusKm bounds the clusters considered for a zone status.
	ZoneRadiusKm = 0.5

	minZoneScore      = 2.0
	maxZoneScore      = 10.0
	zoneScorePerPoint = 8.0

	// With no nearby clusters the score is drawn from [8.5, 9.5] so the
	// ambient display does not sit on a constant. It is not a measurement.
	quietScoreBase   = 8.5
	quietScoreJitter = 1.0
)

// ClusterSource yields the validated clusters as of now.
type ClusterSource interface {
	ActiveClusters(now time.Time) []domain.RiskCluster
}

// Estimator derives the ambient zone status around a point.
type Estimator struct {
	clusters ClusterSource

	mu  sync.Mutex
	rng *rand.Rand
}

// NewEstimator creates an Estimator. A nil rng uses the global source.
func NewEstimator(clusters ClusterSource, rng *rand.Rand) *Estimator {
	return &Estimator{clusters: clusters, rng: rng}
}

// ZoneStatus summarises validated clusters within ZoneRadiusKm of point.
func (e *Estimator) ZoneStatus(point domain.Coordinate, now time.Time) domain.ZoneStatus {
	var (
		nearby        int
		intensitySum  float64
		reportCount   int
		lightingCount int
		crowdCount    int
	)
	for _, c := range e.clusters.ActiveClusters(now) {
		if domain.HaversineKm(point, c.Centroid) > ZoneRadiusKm {
			continue
		}
		nearby++
		intensitySum += c.Intensity
		reportCount += len(c.Reports)
		for _, r := range c.Reports {
			if r.Category.AffectsLighting() {
				lightingCount++
			}
			if r.Category.AffectsCrowd() {
				crowdCount++
			}
		}
	}

	if nearby == 0 {
		return domain.ZoneStatus{
			Score:       roundTenth(quietScoreBase + e.float64()*quietScoreJitter),
			Lighting:    domain.LightingOptimal,
			Crowd:       domain.CrowdLow,
			ReportCount: 0,
		}
	}

	avg := intensitySum / float64(nearby)
	score := math.Max(minZoneScore, maxZoneScore-avg*zoneScorePerPoint)

	return domain.ZoneStatus{
		Score:       roundTenth(score),
		Lighting:    lightingFor(lightingCount),
		Crowd:       crowdFor(crowdCount),
		ReportCount: reportCount,
	}
}

func (e *Estimator) float64() float64 {
	if e.rng == nil {
		return rand.Float64()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Float64()
}

func lightingFor(n int) domain.Lighting {
	switch {
	case n > 2:
		return domain.LightingPoor
	case n > 0:
		return domain.LightingDim
	default:
		return domain.LightingAdequate
	}
}

func crowdFor(n int) domain.Crowd {
	switch {
	case n > 2:
		return domain.CrowdDense
	case n > 0:
		return domain.CrowdModerate
	default:
		return domain.CrowdLow
	}
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
