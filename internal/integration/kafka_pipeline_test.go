//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/safe-route-service/internal/adapter/kafka"
	"github.com/couchcryptid/safe-route-service/internal/config"
	"github.com/couchcryptid/safe-route-service/internal/consensus"
	"github.com/couchcryptid/safe-route-service/internal/domain"
	"github.com/couchcryptid/safe-route-service/internal/observability"
	"github.com/couchcryptid/safe-route-service/internal/pipeline"
)

const (
	testReportsTopic = "test-reports"
	testEventsTopic  = "test-events"
)

func testConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaReportsTopic:  testReportsTopic,
		KafkaEventsTopic:   testEventsTopic,
		KafkaGroupID:       fmt.Sprintf("%s-%d", group, time.Now().UnixNano()),
		BatchFlushInterval: 2 * time.Second,
	}
}

func produce(ctx context.Context, t *testing.T, broker string, msgs ...kafkago.Message) {
	t.Helper()
	producer := &kafkago.Writer{
		Addr:  kafkago.TCP(broker),
		Topic: testReportsTopic,
	}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx, msgs...))
}

func runPipeline(ctx context.Context, t *testing.T, cfg *config.Config, store *consensus.Store, metrics *observability.Metrics) func() {
	t.Helper()
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	p := pipeline.New(reader, pipeline.NewTransformer(discardLogger()), store, discardLogger(), metrics, 50)
	pctx, cancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pctx) }()

	return func() {
		cancel()
		require.NoError(t, <-errCh)
	}
}

// TestReportIngestEndToEnd publishes the report fixture to Kafka and checks
// that the pipeline lands every non-throttled report in the store.
func TestReportIngestEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testReportsTopic)

	entries := loadFixture(t)
	msgs := make([]kafkago.Message, 0, len(entries))
	for _, e := range entries {
		payload, err := json.Marshal(e.ReportSubmission)
		require.NoError(t, err)
		msgs = append(msgs, kafkago.Message{Key: []byte(e.DeviceID), Value: payload})
	}
	produce(ctx, t, broker, msgs...)

	metrics := observability.NewMetricsForTesting()
	store := consensus.NewStore(clockwork.NewRealClock(), metrics, discardLogger())
	stop := runPipeline(ctx, t, testConfig(broker, "test-ingest"), store, metrics)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.IngestMessages) >= float64(len(entries))
	}, 90*time.Second, 200*time.Millisecond, "pipeline did not consume the fixture")
	stop()

	// Each device resubmits once within the throttle window.
	assert.Equal(t, 7, store.Len())
	assert.InDelta(t, 2.0, testutil.ToFloat64(metrics.IngestErrors.WithLabelValues("duplicate")), 1e-9)

	engine := consensus.NewEngine(store, metrics)
	clusters := engine.ActiveClusters(time.Now())
	require.Len(t, clusters, 1, "only the station hotspot reaches three devices")
	assert.Equal(t, 4, clusters[0].DeviceCount())
}

// TestReportIngestSkipsPoisonPill verifies an undecodable message is committed
// and skipped while the valid message behind it is stored.
func TestReportIngestSkipsPoisonPill(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testReportsTopic)

	valid, err := json.Marshal(loadFixture(t)[0].ReportSubmission)
	require.NoError(t, err)
	produce(ctx, t, broker,
		kafkago.Message{Key: []byte("bad"), Value: []byte("not-json{{{")},
		kafkago.Message{Key: []byte("good"), Value: valid},
	)

	metrics := observability.NewMetricsForTesting()
	store := consensus.NewStore(clockwork.NewRealClock(), metrics, discardLogger())
	stop := runPipeline(ctx, t, testConfig(broker, "test-poison"), store, metrics)

	require.Eventually(t, func() bool { return store.Len() == 1 },
		60*time.Second, 200*time.Millisecond)
	stop()

	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.IngestErrors.WithLabelValues("parse")), 1e-9)
}

// TestNavigationEventsPublished forwards bus events through the writer and
// reads them back from the events topic.
func TestNavigationEventsPublished(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testEventsTopic)

	cfg := testConfig(broker, "test-events")
	cfg.BatchFlushInterval = 100 * time.Millisecond
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	at := time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC)
	events := make(chan domain.NavigationEvent, 2)
	events <- domain.NavigationEvent{Kind: domain.EventModeChanged, RouteID: "route_a", Mode: domain.ModeActive, At: at}
	events <- domain.NavigationEvent{
		Kind:     domain.EventDeviationDetected,
		RouteID:  "route_a",
		Position: &domain.Coordinate{Lng: 73.41, Lat: 18.75},
		OffsetM:  62.5,
		At:       at.Add(time.Minute),
	}
	close(events)
	writer.Forward(ctx, events)

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testEventsTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	kinds := make([]domain.EventKind, 0, 2)
	for range 2 {
		readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := consumer.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read from events topic")

		headers := make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
		assert.Equal(t, "route_a", string(msg.Key))
		_, err = time.Parse(time.RFC3339, headers["emitted_at"])
		assert.NoError(t, err, "emitted_at should be RFC3339")

		var ev domain.NavigationEvent
		require.NoError(t, json.Unmarshal(msg.Value, &ev))
		assert.Equal(t, string(ev.Kind), headers["event_type"])
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []domain.EventKind{domain.EventModeChanged, domain.EventDeviationDetected}, kinds)
}
