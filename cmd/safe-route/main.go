package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"

	badgeradapter "github.com/couchcryptid/safe-route-service/internal/adapter/badger"
	httpadapter "github.com/couchcryptid/safe-route-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/safe-route-service/internal/adapter/kafka"
	"github.com/couchcryptid/safe-route-service/internal/adapter/mapbox"
	"github.com/couchcryptid/safe-route-service/internal/adapter/oracle"
	wsadapter "github.com/couchcryptid/safe-route-service/internal/adapter/websocket"
	"github.com/couchcryptid/safe-route-service/internal/config"
	"github.com/couchcryptid/safe-route-service/internal/consensus"
	"github.com/couchcryptid/safe-route-service/internal/domain"
	"github.com/couchcryptid/safe-route-service/internal/navigation"
	"github.com/couchcryptid/safe-route-service/internal/observability"
	"github.com/couchcryptid/safe-route-service/internal/pipeline"
	"github.com/couchcryptid/safe-route-service/internal/routing"
)

const eventBuffer = 64

// readiness is ready when every check passes.
type readiness []sharedobs.ReadinessChecker

func (r readiness) CheckReadiness(ctx context.Context) error {
	for _, c := range r {
		if err := c.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	// Risk consensus.
	reports := consensus.NewStore(clock, metrics, logger)
	engine := consensus.NewEngine(reports, metrics)
	zones := consensus.NewEstimator(engine, nil)

	// Route evaluation.
	client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
	provider, err := mapbox.NewCachedProvider(client, cfg.MapboxCacheSize, metrics)
	if err != nil {
		logger.Error("failed to create directions cache", "error", err)
		os.Exit(1)
	}

	var scorer domain.RiskScorer
	if cfg.OracleURL != "" {
		scorer = oracle.NewClient(cfg.OracleURL, cfg.OracleToken, cfg.OracleTimeout, logger)
		logger.Info("route scoring via oracle", "url", cfg.OracleURL)
	} else {
		scorer = routing.NewLocalScorer(engine, clock)
		logger.Info("route scoring via local clusters")
	}

	policy, err := routing.ParseFailurePolicy(cfg.ScoringFailPolicy)
	if err != nil {
		logger.Error("invalid scoring policy", "error", err)
		os.Exit(1)
	}
	evaluator := routing.NewEvaluator(provider, scorer, policy, metrics, logger)

	// Navigation session.
	storeCfg := badgeradapter.InMemoryConfig()
	if cfg.SessionDBPath != "" {
		storeCfg = badgeradapter.DefaultConfig(cfg.SessionDBPath)
	}
	storeCfg.Logger = logger
	sessions, err := badgeradapter.Open(storeCfg)
	if err != nil {
		logger.Error("failed to open session store", "error", err)
		os.Exit(1)
	}

	hub := wsadapter.NewHub(clock, logger)
	bus := navigation.NewBus(logger)
	ctrl := navigation.NewController(navigation.Config{
		Planner:   evaluator,
		Store:     sessions,
		Positions: hub,
		Bus:       bus,
		Clock:     clock,
		Profile:   domain.Profile(cfg.RoutingProfile),
		Metrics:   metrics,
		Logger:    logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if resumed, err := ctrl.RestoreIfPresent(ctx); err != nil {
		logger.Error("session restore failed", "error", err)
		os.Exit(1)
	} else if resumed {
		logger.Info("resumed active navigation", "route_id", ctrl.Snapshot().Session.RouteID)
	}

	wsEvents, unsubscribeWS := bus.Subscribe(eventBuffer)
	go hub.Broadcast(ctx, wsEvents)

	checks := readiness{ctrl, sessions}

	// Report ingest and event fan-out over Kafka.
	var (
		reader *kafkaadapter.Reader
		writer *kafkaadapter.Writer
	)
	unsubscribeKafka := func() {}
	if cfg.KafkaEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		writer = kafkaadapter.NewWriter(cfg, logger)

		p := pipeline.New(reader, pipeline.NewTransformer(logger), reports, logger, metrics, cfg.BatchSize)
		checks = append(checks, p)

		go func() {
			if err := p.Run(ctx); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()

		var kafkaEvents <-chan domain.NavigationEvent
		kafkaEvents, unsubscribeKafka = bus.Subscribe(eventBuffer)
		go writer.Forward(ctx, kafkaEvents)
		logger.Info("kafka enabled", "reports_topic", cfg.KafkaReportsTopic, "events_topic", cfg.KafkaEventsTopic)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.Deps{
		Reports:   reports,
		Clusters:  engine,
		Zones:     zones,
		Geocoder:  provider,
		Navigator: ctrl,
		Positions: hub,
		Clock:     clock,
	}, checks, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	ctrl.Close()
	unsubscribeWS()
	unsubscribeKafka()
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if err := sessions.Close(); err != nil {
		logger.Error("session store close error", "error", err)
	}

	logger.Info("shutdown complete")
}
