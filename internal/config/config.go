package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Scoring failure policies.
const (
	FailOpen   = "open"
	FailClosed = "closed"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Report ingestion and navigation event fan-out over Kafka.
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaReportsTopic  string
	KafkaEventsTopic   string
	KafkaGroupID       string
	BatchSize          int
	BatchFlushInterval time.Duration

	// Mapbox directions and geocoding.
	MapboxToken     string
	MapboxTimeout   time.Duration
	MapboxCacheSize int

	// Route risk oracle. An empty URL selects the in-process scorer.
	OracleURL         string
	OracleToken       string
	OracleTimeout     time.Duration
	ScoringFailPolicy string

	// Session persistence. An empty path keeps sessions in memory.
	SessionDBPath  string
	RoutingProfile string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	mapboxTimeout, err := parsePositiveDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	oracleTimeout, err := parsePositiveDuration("ORACLE_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		KafkaEnabled:       os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaReportsTopic:  sharedcfg.EnvOrDefault("KAFKA_REPORTS_TOPIC", "incident-reports"),
		KafkaEventsTopic:   sharedcfg.EnvOrDefault("KAFKA_EVENTS_TOPIC", "navigation-events"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "safe-route-service"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		MapboxToken:     os.Getenv("MAPBOX_TOKEN"),
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parseMapboxCacheSize(),

		OracleURL:         os.Getenv("ORACLE_URL"),
		OracleToken:       os.Getenv("ORACLE_TOKEN"),
		OracleTimeout:     oracleTimeout,
		ScoringFailPolicy: sharedcfg.EnvOrDefault("SCORING_FAIL_POLICY", FailOpen),

		SessionDBPath:  os.Getenv("SESSION_DB_PATH"),
		RoutingProfile: sharedcfg.EnvOrDefault("ROUTING_PROFILE", "walking"),
	}

	if cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_TOKEN is required")
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaReportsTopic == "" {
			return nil, errors.New("KAFKA_REPORTS_TOPIC is required")
		}
	}
	if cfg.ScoringFailPolicy != FailOpen && cfg.ScoringFailPolicy != FailClosed {
		return nil, fmt.Errorf("invalid SCORING_FAIL_POLICY %q: must be open or closed", cfg.ScoringFailPolicy)
	}
	if cfg.RoutingProfile != "walking" && cfg.RoutingProfile != "driving" {
		return nil, fmt.Errorf("invalid ROUTING_PROFILE %q: must be walking or driving", cfg.RoutingProfile)
	}

	return cfg, nil
}

func parsePositiveDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
