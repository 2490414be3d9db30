package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/safe-route-service/internal/domain"
	"github.com/couchcryptid/safe-route-service/internal/navigation"
)

// ReportStore accepts and lists incident reports.
type ReportStore interface {
	Add(sub domain.ReportSubmission) (domain.Report, error)
	All() []domain.Report
}

// ClusterSource yields the validated clusters at a point in time.
type ClusterSource interface {
	ActiveClusters(now time.Time) []domain.RiskCluster
}

// ZoneEstimator summarizes ambient risk around a point.
type ZoneEstimator interface {
	ZoneStatus(point domain.Coordinate, now time.Time) domain.ZoneStatus
}

// Navigator is the navigation session surface exposed over HTTP.
type Navigator interface {
	Plan(ctx context.Context, origin domain.Coordinate, dest domain.Destination) (domain.Selection, error)
	Candidate(id string) (domain.CandidateRoute, bool)
	StartNavigation(ctx context.Context, candidate domain.CandidateRoute) error
	ExitNavigation(ctx context.Context) error
	SetProfile(ctx context.Context, p domain.Profile) error
	Snapshot() navigation.Snapshot
}

// Deps bundles the collaborators behind the API routes.
type Deps struct {
	Reports   ReportStore
	Clusters  ClusterSource
	Zones     ZoneEstimator
	Geocoder  domain.DestinationGeocoder
	Navigator Navigator
	// Positions serves the traveler's websocket. Nil disables /ws/navigation.
	Positions http.Handler
	Clock     clockwork.Clock
}

// Server exposes the REST API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	deps       Deps
	logger     *slog.Logger
}

// NewServer creates an HTTP server with the API, /healthz, /readyz, and /metrics routes.
func NewServer(addr string, deps Deps, ready sharedobs.ReadinessChecker, logger *slog.Logger) *Server {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		deps:   deps,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/reports", s.handleCreateReport)
	mux.HandleFunc("GET /api/reports", s.handleListReports)
	mux.HandleFunc("GET /api/clusters", s.handleClusters)
	mux.HandleFunc("GET /api/zone", s.handleZone)
	mux.HandleFunc("GET /api/geocode", s.handleGeocode)
	mux.HandleFunc("POST /api/routes", s.handlePlan)
	mux.HandleFunc("GET /api/navigation", s.handleSnapshot)
	mux.HandleFunc("POST /api/navigation/start", s.handleStart)
	mux.HandleFunc("POST /api/navigation/exit", s.handleExit)
	mux.HandleFunc("PUT /api/navigation/profile", s.handleProfile)
	if deps.Positions != nil {
		mux.Handle("GET /ws/navigation", deps.Positions)
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
