package routing

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/safe-route-service/internal/domain"
	"github.com/couchcryptid/safe-route-service/internal/observability"
)

// FailurePolicy decides what a candidate becomes when its scoring request fails.
type FailurePolicy int

const (
	// FailOpen treats an unscored candidate as score 0, SAFE. One flaky
	// scoring call never blocks selection, at the cost of an unscored route
	// looking safer than a scored one.
	FailOpen FailurePolicy = iota
	// FailClosed leaves the candidate unscored and excludes it from selection.
	FailClosed
)

// ParseFailurePolicy maps "open" / "closed" to a policy.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch s {
	case "open", "":
		return FailOpen, nil
	case "closed":
		return FailClosed, nil
	default:
		return FailOpen, fmt.Errorf("unknown scoring failure policy %q", s)
	}
}

func (p FailurePolicy) String() string {
	if p == FailClosed {
		return "closed"
	}
	return "open"
}

// Evaluator fetches candidate routes and selects the safest one.
type Evaluator struct {
	provider domain.GeometryProvider
	scorer   domain.RiskScorer
	policy   FailurePolicy
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(provider domain.GeometryProvider, scorer domain.RiskScorer, policy FailurePolicy, metrics *observability.Metrics, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		provider: provider,
		scorer:   scorer,
		policy:   policy,
		metrics:  metrics,
		logger:   logger,
	}
}

// FetchCandidates asks the geometry provider for routes and gives each one a
// fresh identifier. It returns ErrRoutingUnavailable when no route comes back.
func (e *Evaluator) FetchCandidates(ctx context.Context, origin, destination domain.Coordinate, profile domain.Profile) ([]domain.CandidateRoute, error) {
	routes, err := e.provider.Route(ctx, origin, destination, profile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrRoutingUnavailable, err)
	}
	if len(routes) == 0 {
		return nil, domain.ErrRoutingUnavailable
	}

	candidates := make([]domain.CandidateRoute, len(routes))
	for i, r := range routes {
		candidates[i] = domain.CandidateRoute{
			ID:              uuid.NewString(),
			Geometry:        r.Geometry,
			DistanceMeters:  r.DistanceMeters,
			DurationSeconds: r.DurationSeconds,
			Steps:           r.Steps,
		}
	}
	e.logger.Debug("candidates fetched", "count", len(candidates), "profile", profile)
	return candidates, nil
}

// ScoreAndSelect scores every candidate concurrently and, once all requests
// have returned, picks the lowest-scored candidate that is not HIGH_RISK.
// Ties go to the earlier candidate. SelectedID stays empty when nothing is
// safe. The input slice is not modified.
func (e *Evaluator) ScoreAndSelect(ctx context.Context, candidates []domain.CandidateRoute) (domain.Selection, error) {
	scored := slices.Clone(candidates)

	// Scoring failures are absorbed by the failure policy; only cancellation
	// of ctx fails the group.
	g, gctx := errgroup.WithContext(ctx)
	for i := range scored {
		g.Go(func() error {
			e.scoreOne(gctx, &scored[i])
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return domain.Selection{}, err
	}

	sel := domain.Selection{Scored: scored, SelectedID: selectSafest(scored)}
	if sel.HasSelection() {
		e.metrics.RouteSelections.WithLabelValues("selected").Inc()
		e.logger.Info("route selected", "route_id", sel.SelectedID, "candidates", len(scored))
	} else {
		e.metrics.RouteSelections.WithLabelValues("no_safe_route").Inc()
		e.logger.Warn("no safe route among candidates", "candidates", len(scored))
	}
	return sel, nil
}

// scoreOne writes only to *c, so concurrent calls on distinct elements are safe.
func (e *Evaluator) scoreOne(ctx context.Context, c *domain.CandidateRoute) {
	start := time.Now()
	assessment, err := e.scorer.Score(ctx, c.Geometry)
	e.metrics.ScoringDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		e.metrics.ScoringRequests.WithLabelValues("error").Inc()
		e.logger.Warn("route scoring failed",
			"route_id", c.ID,
			"policy", e.policy.String(),
			"error", err,
		)
		c.ScoreFailed = true
		if e.policy == FailOpen {
			setAssessment(c, domain.RiskAssessment{Score: 0, Classification: domain.ClassificationSafe})
		}
		return
	}

	e.metrics.ScoringRequests.WithLabelValues("success").Inc()
	setAssessment(c, assessment)
}

func setAssessment(c *domain.CandidateRoute, a domain.RiskAssessment) {
	score := a.Score
	class := a.Classification
	c.RiskScore = &score
	c.Classification = &class
}

// eligible reports whether c may be selected for navigation.
func eligible(c domain.CandidateRoute) bool {
	return c.RiskScore != nil && c.Classification != nil && !c.IsHighRisk()
}

func selectSafest(candidates []domain.CandidateRoute) string {
	var (
		bestID    string
		bestScore float64
	)
	for _, c := range candidates {
		if !eligible(c) {
			continue
		}
		if bestID == "" || *c.RiskScore < bestScore {
			bestID, bestScore = c.ID, *c.RiskScore
		}
	}
	return bestID
}

// Ranked orders candidates for display: selectable candidates first, then by
// ascending score, then in provider order. Unscored candidates sort last.
func Ranked(candidates []domain.CandidateRoute) []domain.CandidateRoute {
	out := slices.Clone(candidates)
	slices.SortStableFunc(out, func(a, b domain.CandidateRoute) int {
		ea, eb := eligible(a), eligible(b)
		if ea != eb {
			if ea {
				return -1
			}
			return 1
		}
		switch {
		case a.RiskScore == nil && b.RiskScore == nil:
			return 0
		case a.RiskScore == nil:
			return 1
		case b.RiskScore == nil:
			return -1
		case *a.RiskScore < *b.RiskScore:
			return -1
		case *a.RiskScore > *b.RiskScore:
			return 1
		}
		return 0
	})
	return out
}
