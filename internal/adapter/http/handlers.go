package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/couchcryptid/safe-route-service/internal/domain"
	"github.com/couchcryptid/safe-route-service/internal/routing"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

type planRequest struct {
	Origin      domain.Coordinate   `json:"origin"`
	Destination *domain.Destination `json:"destination,omitempty"`
	// Query is geocoded when Destination is omitted.
	Query string `json:"query,omitempty"`
}

type planResponse struct {
	Destination domain.Destination      `json:"destination"`
	Candidates  []domain.CandidateRoute `json:"candidates"`
	SelectedID  string                  `json:"selected_id,omitempty"`
	Error       string                  `json:"error,omitempty"`
}

type startRequest struct {
	RouteID string `json:"route_id"`
}

type profileRequest struct {
	Profile string `json:"profile"`
}

func (s *Server) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	var sub domain.ReportSubmission
	if err := decodeBody(w, r, &sub); err != nil {
		s.writeError(w, err)
		return
	}
	report, err := s.deps.Reports.Add(sub)
	if err != nil {
		s.writeError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusCreated, report)
}

func (s *Server) handleListReports(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, s.deps.Reports.All())
}

func (s *Server) handleClusters(w http.ResponseWriter, _ *http.Request) {
	clusters := s.deps.Clusters.ActiveClusters(s.deps.Clock.Now())
	if clusters == nil {
		clusters = []domain.RiskCluster{}
	}
	sharedobs.WriteJSON(w, http.StatusOK, clusters)
}

func (s *Server) handleZone(w http.ResponseWriter, r *http.Request) {
	point, err := parsePoint(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, s.deps.Zones.ZoneStatus(point, s.deps.Clock.Now()))
}

func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		sharedobs.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: "q is required"})
		return
	}
	dest, err := s.deps.Geocoder.Geocode(r.Context(), q)
	if err != nil {
		s.logger.Warn("geocode failed", "query", q, "error", err)
		sharedobs.WriteJSON(w, http.StatusBadGateway, errorResponse{Error: "geocoding unavailable"})
		return
	}
	if dest.Name == "" {
		sharedobs.WriteJSON(w, http.StatusNotFound, errorResponse{Error: "no match for " + q})
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, dest)
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := req.Origin.Validate(); err != nil {
		sharedobs.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: "origin: " + err.Error()})
		return
	}

	var dest domain.Destination
	switch {
	case req.Destination != nil:
		dest = *req.Destination
	case strings.TrimSpace(req.Query) != "":
		found, err := s.deps.Geocoder.Geocode(r.Context(), req.Query)
		if err != nil {
			s.logger.Warn("geocode failed", "query", req.Query, "error", err)
			sharedobs.WriteJSON(w, http.StatusBadGateway, errorResponse{Error: "geocoding unavailable"})
			return
		}
		if found.Name == "" {
			sharedobs.WriteJSON(w, http.StatusNotFound, errorResponse{Error: "no match for " + req.Query})
			return
		}
		dest = found
	default:
		sharedobs.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: "destination or query is required"})
		return
	}
	if err := dest.Location.Validate(); err != nil {
		sharedobs.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: "destination: " + err.Error()})
		return
	}

	sel, err := s.deps.Navigator.Plan(r.Context(), req.Origin, dest)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := planResponse{
		Destination: dest,
		Candidates:  routing.Ranked(sel.Scored),
		SelectedID:  sel.SelectedID,
	}
	if !sel.HasSelection() {
		resp.Error = domain.ErrNoSafeRoute.Error()
		sharedobs.WriteJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, s.deps.Navigator.Snapshot())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	candidate, ok := s.deps.Navigator.Candidate(req.RouteID)
	if !ok {
		sharedobs.WriteJSON(w, http.StatusNotFound, errorResponse{Error: fmt.Sprintf("unknown route %q", req.RouteID)})
		return
	}
	if err := s.deps.Navigator.StartNavigation(r.Context(), candidate); err != nil {
		s.writeError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, s.deps.Navigator.Snapshot())
}

func (s *Server) handleExit(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Navigator.ExitNavigation(r.Context())
	if errors.Is(err, domain.ErrNavigationInactive) {
		s.writeError(w, err)
		return
	}
	// A failed delete of the persisted record still leaves the controller in PLANNING.
	if err != nil {
		s.logger.Warn("exit navigation completed with errors", "error", err)
	}
	sharedobs.WriteJSON(w, http.StatusOK, s.deps.Navigator.Snapshot())
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.deps.Navigator.SetProfile(r.Context(), domain.Profile(req.Profile)); err != nil {
		s.writeError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, s.deps.Navigator.Snapshot())
}

// errBadRequest marks client input that could not be decoded.
var errBadRequest = errors.New("bad request")

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: decode body: %v", errBadRequest, err)
	}
	return nil
}

func parsePoint(r *http.Request) (domain.Coordinate, error) {
	q := r.URL.Query()
	lng, err := strconv.ParseFloat(q.Get("lng"), 64)
	if err != nil {
		return domain.Coordinate{}, fmt.Errorf("%w: lng: %v", errBadRequest, err)
	}
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		return domain.Coordinate{}, fmt.Errorf("%w: lat: %v", errBadRequest, err)
	}
	p := domain.Coordinate{Lng: lng, Lat: lat}
	if err := p.Validate(); err != nil {
		return domain.Coordinate{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return p, nil
}

// writeError maps domain errors to status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, domain.ErrInvalidReport),
		errors.Is(err, domain.ErrInvalidProfile),
		errors.Is(err, domain.ErrInvalidGeometry):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrDuplicateSubmission),
		errors.Is(err, domain.ErrNavigationActive),
		errors.Is(err, domain.ErrNavigationInactive),
		errors.Is(err, domain.ErrIdentityMismatch),
		errors.Is(err, domain.ErrPlanSuperseded):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrNoSafeRoute):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrRoutingUnavailable):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	sharedobs.WriteJSON(w, status, errorResponse{Error: err.Error()})
}
