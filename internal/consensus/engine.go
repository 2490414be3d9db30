package consensus

import (
	"math"
	"time"

	"github.com/couchcryptid/safe-route-service/internal/domain"
	"github.com/couchcryptid/safe-route-service/internal/observability"
)

const (
	// ClusterRadiusKm is the join radius for clustering and the throttle radius.
	ClusterRadiusKm = 0.05
	// DecayHours is the hard age cutoff. Older reports are ignored entirely.
	DecayHours = 4.0
	// ThresholdCount is the minimum number of distinct devices in a cluster.
	ThresholdCount = 3

	minTimeMultiplier = 0.2
	mediaMultiplier   = 1.2
	baseIntensity     = 0.6
	intensityPerUnit  = 0.05
)

// ActiveClusters groups reports into validated risk clusters as of now.
//
// Assignment is first-fit in arrival order: a report joins the first cluster
// whose running-mean centroid is within ClusterRadiusKm, otherwise it seeds a
// new cluster. This is deliberately not a nearest-cluster or density-based
// algorithm; membership and centroids depend on input order.
func ActiveClusters(reports []domain.Report, now time.Time) []domain.RiskCluster {
	var clusters []domain.RiskCluster

	for _, r := range reports {
		if ageHours(r, now) > DecayHours {
			continue
		}

		joined := false
		for i := range clusters {
			c := &clusters[i]
			if domain.HaversineKm(c.Centroid, r.Location) > ClusterRadiusKm {
				continue
			}
			n := float64(len(c.Reports))
			c.Centroid = domain.Coordinate{
				Lng: (c.Centroid.Lng*n + r.Location.Lng) / (n + 1),
				Lat: (c.Centroid.Lat*n + r.Location.Lat) / (n + 1),
			}
			c.Reports = append(c.Reports, r)
			joined = true
			break
		}
		if !joined {
			clusters = append(clusters, domain.RiskCluster{
				ID:       "cluster_" + r.ID,
				Centroid: r.Location,
				Reports:  []domain.Report{r},
			})
		}
	}

	valid := clusters[:0]
	for _, c := range clusters {
		if c.DeviceCount() < ThresholdCount {
			continue
		}
		for _, r := range c.Reports {
			c.Weight += reportWeight(r, now)
		}
		c.Intensity = math.Min(1.0, baseIntensity+c.Weight*intensityPerUnit)
		valid = append(valid, c)
	}
	return valid
}

// reportWeight is timeMultiplier(age) x mediaMultiplier(hasImage).
func reportWeight(r domain.Report, now time.Time) float64 {
	w := math.Max(minTimeMultiplier, 1-ageHours(r, now)/DecayHours)
	if r.HasImage {
		w *= mediaMultiplier
	}
	return w
}

// ageHours clamps reports stamped in the future to age zero.
func ageHours(r domain.Report, now time.Time) float64 {
	age := now.Sub(r.CreatedAt)
	if age < 0 {
		return 0
	}
	return age.Hours()
}

// ReportSource yields the current report set.
type ReportSource interface {
	All() []domain.Report
}

// Engine computes clusters over a live report source.
type Engine struct {
	source  ReportSource
	metrics *observability.Metrics
}

// NewEngine creates an Engine reading from source.
func NewEngine(source ReportSource, metrics *observability.Metrics) *Engine {
	return &Engine{source: source, metrics: metrics}
}

// ActiveClusters recomputes the clusters from scratch.
func (e *Engine) ActiveClusters(now time.Time) []domain.RiskCluster {
	clusters := ActiveClusters(e.source.All(), now)
	e.metrics.ActiveClusters.Set(float64(len(clusters)))
	return clusters
}
