package routing

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/safe-route-service/internal/domain"
)

type staticClusters []domain.RiskCluster

func (s staticClusters) ActiveClusters(time.Time) []domain.RiskCluster { return s }

// straightRoute runs north from origin in 20 m steps.
func straightRoute(n int) []domain.Coordinate {
	path := make([]domain.Coordinate, n)
	for i := range path {
		path[i] = domain.Coordinate{Lng: origin.Lng, Lat: origin.Lat + float64(i)*20/111_195}
	}
	return path
}

func TestSeverityOf(t *testing.T) {
	assert.Equal(t, SeverityLow, SeverityOf(0.6))
	assert.Equal(t, SeverityLow, SeverityOf(0.74))
	assert.Equal(t, SeverityMedium, SeverityOf(0.75))
	assert.Equal(t, SeverityHigh, SeverityOf(0.9))
	assert.Equal(t, SeverityHigh, SeverityOf(1.0))
}

func TestLocalScorer_Score(t *testing.T) {
	path := straightRoute(10)
	geometry := domain.EncodePolyline(path)
	onRoute := path[4]
	offRoute := domain.Coordinate{Lng: origin.Lng + 0.01, Lat: origin.Lat}

	tests := []struct {
		name      string
		clusters  staticClusters
		wantScore float64
		wantClass domain.Classification
	}{
		{
			name:      "no clusters",
			wantScore: 0,
			wantClass: domain.ClassificationSafe,
		},
		{
			name:      "distant cluster ignored",
			clusters:  staticClusters{{Centroid: offRoute, Intensity: 1.0}},
			wantScore: 0,
			wantClass: domain.ClassificationSafe,
		},
		{
			name:      "single low cluster",
			clusters:  staticClusters{{Centroid: onRoute, Intensity: 0.65}},
			wantScore: 5,
			wantClass: domain.ClassificationSafe,
		},
		{
			name:      "medium cluster is dangerous",
			clusters:  staticClusters{{Centroid: onRoute, Intensity: 0.8}},
			wantScore: 20,
			wantClass: domain.ClassificationHighRisk,
		},
		{
			name: "low clusters add up to the threshold",
			clusters: staticClusters{
				{Centroid: path[0], Intensity: 0.6},
				{Centroid: path[3], Intensity: 0.6},
				{Centroid: path[6], Intensity: 0.6},
				{Centroid: path[9], Intensity: 0.6},
			},
			wantScore: 20,
			wantClass: domain.ClassificationHighRisk,
		},
		{
			name: "score capped at 100",
			clusters: staticClusters{
				{Centroid: path[0], Intensity: 1.0},
				{Centroid: path[4], Intensity: 1.0},
				{Centroid: path[8], Intensity: 1.0},
			},
			wantScore: 100,
			wantClass: domain.ClassificationHighRisk,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewLocalScorer(tt.clusters, clockwork.NewFakeClock())
			got, err := s.Score(context.Background(), geometry)
			require.NoError(t, err)
			assert.Equal(t, tt.wantScore, got.Score)
			assert.Equal(t, tt.wantClass, got.Classification)
		})
	}
}

func TestLocalScorer_SinglePointRouteIsSafe(t *testing.T) {
	geometry := domain.EncodePolyline([]domain.Coordinate{origin})
	s := NewLocalScorer(staticClusters{{Centroid: origin, Intensity: 1.0}}, nil)

	got, err := s.Score(context.Background(), geometry)
	require.NoError(t, err)
	assert.Equal(t, domain.ClassificationSafe, got.Classification)
}

func TestLocalScorer_InvalidGeometry(t *testing.T) {
	s := NewLocalScorer(staticClusters{}, nil)
	_, err := s.Score(context.Background(), "")
	require.ErrorIs(t, err, domain.ErrInvalidGeometry)
}
