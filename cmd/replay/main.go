// Command replay feeds a report fixture through the consensus store and
// prints the resulting clusters and, optionally, the zone status at a point.
// Each report is submitted at its own timestamp on a fake clock, so throttling
// and decay behave exactly as they would have live.
//
// Usage:
//
//	go run ./cmd/replay \
//	  -reports data/mock/reports_sample.json \
//	  -at 2026-03-14T21:00:00Z \
//	  -lng 73.4050 -lat 18.7450
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/safe-route-service/internal/consensus"
	"github.com/couchcryptid/safe-route-service/internal/domain"
	"github.com/couchcryptid/safe-route-service/internal/observability"
)

type output struct {
	At       time.Time              `json:"at"`
	Replay   consensus.ReplayResult `json:"replay"`
	Reports  int                    `json:"reports"`
	Clusters []domain.RiskCluster   `json:"clusters"`
	Zone     *zoneOutput            `json:"zone,omitempty"`
}

type zoneOutput struct {
	Point domain.Coordinate `json:"coordinates"`
	domain.ZoneStatus
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	reportsPath := flag.String("reports", "data/mock/reports_sample.json", "path to the report fixture")
	atFlag := flag.String("at", "", "evaluation time (RFC3339); defaults to the latest report")
	lng := flag.Float64("lng", math.NaN(), "zone longitude")
	lat := flag.Float64("lat", math.NaN(), "zone latitude")
	seed := flag.Uint64("seed", 1, "seed for the no-report zone baseline")
	flag.Parse()

	f, err := os.Open(*reportsPath)
	if err != nil {
		return fmt.Errorf("open fixture: %w", err)
	}
	defer f.Close()

	entries, err := consensus.ReadFixture(f)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("fixture %s has no reports", *reportsPath)
	}

	at := latest(entries)
	if *atFlag != "" {
		if at, err = time.Parse(time.RFC3339, *atFlag); err != nil {
			return fmt.Errorf("parse -at: %w", err)
		}
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	metrics := observability.NewMetricsForTesting()
	clock := clockwork.NewFakeClockAt(earliest(entries))
	store := consensus.NewStore(clock, metrics, logger)

	result := consensus.Replay(entries, clock, store)
	engine := consensus.NewEngine(store, metrics)

	out := output{
		At:       at,
		Replay:   result,
		Reports:  store.Len(),
		Clusters: engine.ActiveClusters(at),
	}
	if out.Clusters == nil {
		out.Clusters = []domain.RiskCluster{}
	}

	if !math.IsNaN(*lng) || !math.IsNaN(*lat) {
		point := domain.Coordinate{Lng: *lng, Lat: *lat}
		if err := point.Validate(); err != nil {
			return fmt.Errorf("zone point: %w", err)
		}
		estimator := consensus.NewEstimator(engine, rand.New(rand.NewPCG(*seed, *seed)))
		out.Zone = &zoneOutput{Point: point, ZoneStatus: estimator.ZoneStatus(point, at)}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func earliest(entries []consensus.FixtureReport) time.Time {
	t := entries[0].CreatedAt
	for _, e := range entries[1:] {
		if e.CreatedAt.Before(t) {
			t = e.CreatedAt
		}
	}
	return t
}

func latest(entries []consensus.FixtureReport) time.Time {
	t := entries[0].CreatedAt
	for _, e := range entries[1:] {
		if e.CreatedAt.After(t) {
			t = e.CreatedAt
		}
	}
	return t
}
