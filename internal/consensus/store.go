package consensus

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/safe-route-service/internal/domain"
	"github.com/couchcryptid/safe-route-service/internal/observability"
)

// ThrottleWindow is how long a device is blocked from re-reporting the same area.
const ThrottleWindow = 10 * time.Minute

// Store is the append-only, in-memory sequence of incident reports.
type Store struct {
	mu      sync.RWMutex
	reports []domain.Report
	clock   clockwork.Clock
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewStore creates an empty Store. A nil clock uses the real clock.
func NewStore(clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{clock: clock, metrics: metrics, logger: logger}
}

// Add validates and appends a submission. It rejects the report with
// ErrDuplicateSubmission when the same device already reported closer than
// ClusterRadiusKm during the last ThrottleWindow.
func (s *Store) Add(sub domain.ReportSubmission) (domain.Report, error) {
	if err := sub.Validate(); err != nil {
		s.metrics.Reports.WithLabelValues("invalid").Inc()
		return domain.Report{}, err
	}

	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.reports) - 1; i >= 0; i-- {
		prev := s.reports[i]
		if prev.DeviceID != sub.DeviceID || now.Sub(prev.CreatedAt) >= ThrottleWindow {
			continue
		}
		if throttles(domain.HaversineKm(prev.Location, sub.Location)) {
			s.metrics.Reports.WithLabelValues("duplicate").Inc()
			s.logger.Warn("duplicate submission rejected",
				"device_id", sub.DeviceID,
				"previous_report_id", prev.ID,
			)
			return domain.Report{}, fmt.Errorf("device %s: %w", sub.DeviceID, domain.ErrDuplicateSubmission)
		}
	}

	report := domain.NewReport(sub, now)
	s.reports = append(s.reports, report)
	s.metrics.Reports.WithLabelValues("accepted").Inc()
	s.logger.Debug("report accepted", "report_id", report.ID, "category", report.Category, "device_id", report.DeviceID)
	return report, nil
}

// All returns a snapshot of every report in arrival order.
func (s *Store) All() []domain.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.reports)
}

// Len returns the number of stored reports.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reports)
}

// Clear drops every report.
func (s *Store) Clear() {
	s.mu.Lock()
	s.reports = nil
	s.mu.Unlock()
}

// throttles reports whether a same-device report distanceKm from an earlier
// one is a resubmission. The radius itself is exclusive.
func throttles(distanceKm float64) bool {
	return distanceKm < ClusterRadiusKm
}
