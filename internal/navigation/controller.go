package navigation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/safe-route-service/internal/domain"
	"github.com/couchcryptid/safe-route-service/internal/observability"
	"github.com/couchcryptid/safe-route-service/internal/routing"
)

const (
	// DeviationThresholdMeters is the distance from the nearest frozen-route
	// vertex beyond which the traveler is off route.
	DeviationThresholdMeters = 40.0
	// DeviationCooldown is how long after a deviation event no further
	// deviation event fires.
	DeviationCooldown = 30 * time.Second

	SessionKey   = "navigation:session"
	LastRouteKey = "navigation:last_route"
)

// Planner fetches and scores candidate routes.
type Planner interface {
	FetchCandidates(ctx context.Context, origin, destination domain.Coordinate, profile domain.Profile) ([]domain.CandidateRoute, error)
	ScoreAndSelect(ctx context.Context, candidates []domain.CandidateRoute) (domain.Selection, error)
}

// Snapshot is a copy of the controller state for display.
type Snapshot struct {
	Session    domain.Session          `json:"session"`
	Remaining  []domain.Coordinate     `json:"remaining,omitempty"`
	Candidates []domain.CandidateRoute `json:"candidates,omitempty"`
	SelectedID string                  `json:"selected_id,omitempty"`
}

// Controller owns the single navigation session. Every state change goes
// through its methods under one mutex; position fixes arrive on a watch
// goroutine and are applied under the same lock.
type Controller struct {
	planner   Planner
	store     domain.KeyValueStore
	positions domain.PositionStream
	bus       *Bus
	clock     clockwork.Clock
	metrics   *observability.Metrics
	logger    *slog.Logger

	mu            sync.Mutex
	session       domain.Session
	selection     domain.Selection
	planGen       uint64
	path          []domain.Coordinate
	remaining     []domain.Coordinate
	lastDeviation time.Time
	watchCancel   context.CancelFunc
	watchGen      uint64

	restored atomic.Bool
}

// Config bundles the collaborators of a Controller.
type Config struct {
	Planner   Planner
	Store     domain.KeyValueStore
	Positions domain.PositionStream
	Bus       *Bus
	Clock     clockwork.Clock
	Profile   domain.Profile
	Metrics   *observability.Metrics
	Logger    *slog.Logger
}

// NewController creates a Controller in PLANNING mode. A nil Clock uses the
// real clock and a nil Bus creates a private one.
func NewController(cfg Config) *Controller {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Bus == nil {
		cfg.Bus = NewBus(cfg.Logger)
	}
	if cfg.Profile == "" {
		cfg.Profile = domain.ProfileWalking
	}
	return &Controller{
		planner:   cfg.Planner,
		store:     cfg.Store,
		positions: cfg.Positions,
		bus:       cfg.Bus,
		clock:     cfg.Clock,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		session:   domain.Session{Mode: domain.ModePlanning, Profile: cfg.Profile},
	}
}

// Bus returns the event bus the controller publishes on.
func (c *Controller) Bus() *Bus { return c.bus }

// Plan fetches and scores candidates for a trip to dest. The network calls
// run without holding the lock. If a newer plan started in the meantime the
// result is discarded and ErrPlanSuperseded returned. A failed plan clears the
// previous candidates.
func (c *Controller) Plan(ctx context.Context, origin domain.Coordinate, dest domain.Destination) (domain.Selection, error) {
	c.mu.Lock()
	if c.session.Mode == domain.ModeActive {
		c.mu.Unlock()
		return domain.Selection{}, domain.ErrNavigationActive
	}
	profile := c.session.Profile
	c.planGen++
	gen := c.planGen
	c.mu.Unlock()

	sel, err := c.fetchAndScore(ctx, origin, dest, profile)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session.Mode == domain.ModeActive {
		return domain.Selection{}, domain.ErrNavigationActive
	}
	if gen != c.planGen {
		c.logger.Debug("discarding superseded plan", "destination", dest.Name)
		return domain.Selection{}, domain.ErrPlanSuperseded
	}
	if err != nil {
		// Candidates for the previous destination are no longer startable.
		c.selection = domain.Selection{}
		return domain.Selection{}, err
	}

	c.selection = sel
	c.session.Destination = dest
	if err := c.persistSessionLocked(ctx); err != nil {
		c.logger.Warn("persist planning session failed", "error", err)
	}
	return sel, nil
}

func (c *Controller) fetchAndScore(ctx context.Context, origin domain.Coordinate, dest domain.Destination, profile domain.Profile) (domain.Selection, error) {
	candidates, err := c.planner.FetchCandidates(ctx, origin, dest.Location, profile)
	if err != nil {
		return domain.Selection{}, err
	}
	return c.planner.ScoreAndSelect(ctx, candidates)
}

// Candidate returns the planned candidate with the given id.
func (c *Controller) Candidate(id string) (domain.CandidateRoute, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cand := range c.selection.Scored {
		if cand.ID == id {
			return cand, true
		}
	}
	return domain.CandidateRoute{}, false
}

// Snapshot returns a copy of the current state. Candidates are ranked.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Session:    c.session,
		Remaining:  slices.Clone(c.remaining),
		Candidates: routing.Ranked(c.selection.Scored),
		SelectedID: c.selection.SelectedID,
	}
}

// SetProfile switches the routing profile. Only allowed while PLANNING; the
// current candidates are discarded because they were computed for the old
// profile.
func (c *Controller) SetProfile(ctx context.Context, p domain.Profile) error {
	if _, err := domain.ParseProfile(string(p)); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session.Mode == domain.ModeActive {
		return domain.ErrNavigationActive
	}
	if c.session.Profile == p {
		return nil
	}
	c.session.Profile = p
	c.selection = domain.Selection{}
	c.planGen++
	if err := c.persistSessionLocked(ctx); err != nil {
		c.logger.Warn("persist planning session failed", "error", err)
	}
	return nil
}

// StartNavigation freezes candidate and enters ACTIVE. The candidate must be
// the one the last plan selected; anything else aborts with
// ErrIdentityMismatch. If the session cannot be persisted the controller
// stays in PLANNING.
func (c *Controller) StartNavigation(ctx context.Context, candidate domain.CandidateRoute) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session.Mode == domain.ModeActive {
		return domain.ErrNavigationActive
	}
	selected, ok := c.selection.Selected()
	if !ok {
		return domain.ErrNoSafeRoute
	}
	if candidate.ID != selected.ID || candidate.Geometry != selected.Geometry {
		c.logger.Error("route identity mismatch, activation aborted",
			"route_id", candidate.ID,
			"selected_id", selected.ID,
		)
		return fmt.Errorf("activate %s (selected %s): %w", candidate.ID, selected.ID, domain.ErrIdentityMismatch)
	}

	path, err := domain.DecodePolyline(selected.Geometry)
	if err != nil {
		return fmt.Errorf("freeze route %s: %w", selected.ID, err)
	}

	now := c.clock.Now()
	next := domain.Session{
		Mode:           domain.ModeActive,
		Profile:        c.session.Profile,
		RouteID:        selected.ID,
		FrozenGeometry: selected.Geometry,
		Destination:    c.session.Destination,
		ActivatedAt:    now,
	}
	if err := c.writeSession(ctx, next); err != nil {
		c.logger.Error("persist session failed, activation aborted", "route_id", selected.ID, "error", err)
		return err
	}
	if err := c.writeLastRoute(ctx, domain.ActiveRoute{RouteID: selected.ID, Geometry: selected.Geometry, SavedAt: now}); err != nil {
		c.logger.Warn("persist last route failed", "route_id", selected.ID, "error", err)
	}

	c.session = next
	c.selection = domain.Selection{}
	c.enterActiveLocked(ctx, path)

	c.logger.Info("navigation started",
		"route_id", next.RouteID,
		"destination", next.Destination.Name,
		"vertices", len(path),
	)
	return nil
}

// ExitNavigation returns to PLANNING. The position watch is cancelled and its
// handle invalidated before any other state is cleared, so a fix already in
// flight is ignored.
func (c *Controller) ExitNavigation(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session.Mode != domain.ModeActive {
		return domain.ErrNavigationInactive
	}
	routeID := c.session.RouteID

	c.stopWatchLocked()

	c.path = nil
	c.remaining = nil
	c.lastDeviation = time.Time{}
	c.selection = domain.Selection{}
	c.session = domain.Session{Mode: domain.ModePlanning, Profile: c.session.Profile}

	err := errors.Join(
		c.store.Delete(ctx, SessionKey),
		c.store.Delete(ctx, LastRouteKey),
	)
	if err != nil {
		c.logger.Error("clear persisted session failed", "route_id", routeID, "error", err)
	}

	c.metrics.NavigationActive.Set(0)
	c.bus.Publish(domain.NavigationEvent{
		Kind:    domain.EventModeChanged,
		RouteID: routeID,
		Mode:    domain.ModePlanning,
		At:      c.clock.Now(),
	})
	c.logger.Info("navigation exited", "route_id", routeID)
	return err
}

// RestoreIfPresent resumes an ACTIVE session from storage without fetching
// routes again. It reports whether navigation was resumed. An unreadable
// record is cleared and the controller starts in PLANNING.
func (c *Controller) RestoreIfPresent(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, ok, err := c.store.Get(ctx, SessionKey)
	if err != nil {
		return false, fmt.Errorf("read session: %w", err)
	}
	if !ok {
		c.restored.Store(true)
		return false, nil
	}

	var saved domain.Session
	if err := json.Unmarshal(data, &saved); err != nil {
		c.logger.Warn("discarding unreadable session record", "error", err)
		c.discardPersistedLocked(ctx)
		c.restored.Store(true)
		return false, nil
	}
	if saved.Profile != "" {
		c.session.Profile = saved.Profile
	}
	c.session.Destination = saved.Destination

	if saved.Mode != domain.ModeActive {
		c.restored.Store(true)
		return false, nil
	}

	path, err := domain.DecodePolyline(saved.FrozenGeometry)
	if err != nil {
		c.logger.Warn("discarding session with invalid geometry", "route_id", saved.RouteID, "error", err)
		c.discardPersistedLocked(ctx)
		c.session = domain.Session{Mode: domain.ModePlanning, Profile: c.session.Profile}
		c.restored.Store(true)
		return false, nil
	}

	// The cooldown start time is not persisted, so a resumed session starts disarmed.
	saved.DeviationArmed = false
	c.session = saved
	c.enterActiveLocked(ctx, path)
	c.restored.Store(true)

	c.logger.Info("navigation resumed", "route_id", saved.RouteID, "vertices", len(path))
	return true, nil
}

// CheckReadiness reports ready once RestoreIfPresent has completed.
func (c *Controller) CheckReadiness(_ context.Context) error {
	if !c.restored.Load() {
		return errors.New("navigation session not restored yet")
	}
	return nil
}

// Close stops the position watch without touching the persisted session, so
// the trip resumes on the next start.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopWatchLocked()
}

func (c *Controller) enterActiveLocked(ctx context.Context, path []domain.Coordinate) {
	c.path = path
	c.remaining = slices.Clone(path)
	c.lastDeviation = time.Time{}
	c.metrics.NavigationActive.Set(1)

	now := c.clock.Now()
	c.bus.Publish(domain.NavigationEvent{
		Kind:    domain.EventModeChanged,
		RouteID: c.session.RouteID,
		Mode:    domain.ModeActive,
		At:      now,
	})
	c.bus.Publish(domain.NavigationEvent{
		Kind:      domain.EventRemainingRouteUpdated,
		RouteID:   c.session.RouteID,
		Remaining: slices.Clone(path),
		At:        now,
	})

	c.startWatchLocked(ctx)
}

// startWatchLocked subscribes to the position stream. The subscription
// outlives the request context that started navigation.
func (c *Controller) startWatchLocked(ctx context.Context) {
	c.stopWatchLocked()

	wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	fixes, err := c.positions.Subscribe(wctx)
	if err != nil {
		cancel()
		c.logger.Warn("position watch unavailable, navigating without fixes", "error", err)
		return
	}
	c.watchCancel = cancel
	gen := c.watchGen

	go c.watch(wctx, gen, fixes)
}

func (c *Controller) stopWatchLocked() {
	if c.watchCancel != nil {
		c.watchCancel()
		c.watchCancel = nil
	}
	c.watchGen++
}

func (c *Controller) watch(ctx context.Context, gen uint64, fixes <-chan domain.PositionFix) {
	for {
		select {
		case <-ctx.Done():
			return
		case fix, ok := <-fixes:
			if !ok {
				return
			}
			c.handleFix(ctx, gen, fix)
		}
	}
}

func (c *Controller) handleFix(ctx context.Context, gen uint64, fix domain.PositionFix) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.watchGen || c.session.Mode != domain.ModeActive {
		c.metrics.PositionFixes.WithLabelValues("stale").Inc()
		return
	}
	if fix.Err != nil {
		c.metrics.PositionFixes.WithLabelValues("error").Inc()
		c.logger.Warn("position fix error, keeping session", "route_id", c.session.RouteID, "error", fix.Err)
		return
	}
	c.metrics.PositionFixes.WithLabelValues("ok").Inc()

	idx, dist := domain.NearestVertex(c.path, fix.Location)
	if idx < 0 {
		return
	}
	now := c.clock.Now()
	pos := fix.Location

	c.remaining = domain.RemainingFrom(c.path, idx)
	c.bus.Publish(domain.NavigationEvent{
		Kind:      domain.EventRemainingRouteUpdated,
		RouteID:   c.session.RouteID,
		Remaining: slices.Clone(c.remaining),
		Position:  &pos,
		At:        now,
	})

	if c.session.DeviationArmed && now.Sub(c.lastDeviation) >= DeviationCooldown {
		c.session.DeviationArmed = false
		c.persistOrWarnLocked(ctx)
	}
	if dist <= DeviationThresholdMeters || c.session.DeviationArmed {
		return
	}

	c.session.DeviationArmed = true
	c.lastDeviation = now
	c.persistOrWarnLocked(ctx)

	c.metrics.Deviations.Inc()
	c.logger.Info("deviation detected", "route_id", c.session.RouteID, "distance_m", dist)
	c.bus.Publish(domain.NavigationEvent{
		Kind:     domain.EventDeviationDetected,
		RouteID:  c.session.RouteID,
		Position: &pos,
		OffsetM:  dist,
		At:       now,
	})
}

func (c *Controller) persistSessionLocked(ctx context.Context) error {
	return c.writeSession(ctx, c.session)
}

func (c *Controller) persistOrWarnLocked(ctx context.Context) {
	if err := c.persistSessionLocked(ctx); err != nil {
		c.logger.Warn("persist session failed", "route_id", c.session.RouteID, "error", err)
	}
}

func (c *Controller) writeSession(ctx context.Context, s domain.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := c.store.Set(ctx, SessionKey, data); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

func (c *Controller) writeLastRoute(ctx context.Context, r domain.ActiveRoute) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal last route: %w", err)
	}
	return c.store.Set(ctx, LastRouteKey, data)
}

func (c *Controller) discardPersistedLocked(ctx context.Context) {
	if err := errors.Join(c.store.Delete(ctx, SessionKey), c.store.Delete(ctx, LastRouteKey)); err != nil {
		c.logger.Warn("clear persisted session failed", "error", err)
	}
}
