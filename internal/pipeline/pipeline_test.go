package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/safe-route-service/internal/domain"
	"github.com/couchcryptid/safe-route-service/internal/observability"
	"github.com/couchcryptid/safe-route-service/internal/pipeline"
)

// --- mocks ---

// mockExtractor returns its batches in order, then blocks until cancelled.
type mockExtractor struct {
	batches [][]domain.RawEvent
	errs    []error
	index   atomic.Int64
}

func (m *mockExtractor) ExtractBatch(ctx context.Context, _ int) ([]domain.RawEvent, error) {
	i := int(m.index.Add(1) - 1)
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i >= len(m.batches) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.batches[i], nil
}

type mockLoader struct {
	mu     sync.Mutex
	loaded []domain.ReportSubmission
	err    error
}

func (m *mockLoader) Add(sub domain.ReportSubmission) (domain.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.Report{}, m.err
	}
	m.loaded = append(m.loaded, sub)
	return domain.NewReport(sub, time.Now()), nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func makeRawEvent(t *testing.T, device string, category domain.Category) domain.RawEvent {
	t.Helper()
	sub := domain.ReportSubmission{
		Category: category,
		Location: domain.Coordinate{Lng: 73.4050, Lat: 18.7450},
		DeviceID: device,
	}
	data, err := json.Marshal(sub)
	require.NoError(t, err)
	return domain.RawEvent{Key: []byte(device), Value: data, Topic: "incident-reports"}
}

func runFor(t *testing.T, p *pipeline.Pipeline, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	require.NoError(t, p.Run(ctx))
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	raw := makeRawEvent(t, "dev_d1", domain.CategoryPoorLighting)

	ext := &mockExtractor{batches: [][]domain.RawEvent{{raw}}}
	ldr := &mockLoader{}
	metrics := observability.NewMetricsForTesting()

	p := pipeline.New(ext, pipeline.NewTransformer(discardLogger()), ldr, discardLogger(), metrics, 50)
	require.Error(t, p.CheckReadiness(context.Background()))

	runFor(t, p, 300*time.Millisecond)

	want := []domain.ReportSubmission{{
		Category: domain.CategoryPoorLighting,
		Location: domain.Coordinate{Lng: 73.4050, Lat: 18.7450},
		DeviceID: "dev_d1",
	}}
	if diff := cmp.Diff(want, ldr.loaded); diff != "" {
		t.Errorf("loaded submissions mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, p.Ready())
	require.NoError(t, p.CheckReadiness(context.Background()))
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.IngestMessages), 1e-9)
	assert.Zero(t, testutil.ToFloat64(metrics.IngestRunning))
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	ext := &mockExtractor{}
	ldr := &mockLoader{}

	p := pipeline.New(ext, pipeline.NewTransformer(discardLogger()), ldr, discardLogger(), observability.NewMetricsForTesting(), 50)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Run(ctx))
	assert.Empty(t, ldr.loaded)
	assert.False(t, p.Ready())
}

func TestPipeline_Run_SkipsPoisonPill(t *testing.T) {
	var committed []string
	var mu sync.Mutex
	commit := func(name string) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			committed = append(committed, name)
			mu.Unlock()
			return nil
		}
	}

	bad := domain.RawEvent{Value: []byte("not-json{{{"), Commit: commit("bad")}
	unknown := domain.RawEvent{Value: []byte(`{"category":"Noise","coordinates":{"lng":1,"lat":1},"device_id":"d"}`), Commit: commit("unknown")}
	good := makeRawEvent(t, "dev_d2", domain.CategorySuspiciousLoitering)
	good.Commit = commit("good")

	ext := &mockExtractor{batches: [][]domain.RawEvent{{bad, unknown, good}}}
	ldr := &mockLoader{}
	metrics := observability.NewMetricsForTesting()

	p := pipeline.New(ext, pipeline.NewTransformer(discardLogger()), ldr, discardLogger(), metrics, 50)
	runFor(t, p, 300*time.Millisecond)

	require.Len(t, ldr.loaded, 1)
	assert.Equal(t, "dev_d2", ldr.loaded[0].DeviceID)
	assert.Equal(t, []string{"bad", "unknown", "good"}, committed, "every message is committed so poison pills are not redelivered")
	assert.InDelta(t, 2.0, testutil.ToFloat64(metrics.IngestErrors.WithLabelValues("parse")), 1e-9)
}

func TestPipeline_Run_DuplicateCommitted(t *testing.T) {
	commitCalled := false
	raw := makeRawEvent(t, "dev_d1", domain.CategoryPoorLighting)
	raw.Commit = func(context.Context) error {
		commitCalled = true
		return nil
	}

	ext := &mockExtractor{batches: [][]domain.RawEvent{{raw}}}
	ldr := &mockLoader{err: domain.ErrDuplicateSubmission}
	metrics := observability.NewMetricsForTesting()

	p := pipeline.New(ext, pipeline.NewTransformer(discardLogger()), ldr, discardLogger(), metrics, 50)
	runFor(t, p, 300*time.Millisecond)

	assert.True(t, commitCalled)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.IngestErrors.WithLabelValues("duplicate")), 1e-9)
}

func TestPipeline_Run_BacksOffOnExtractError(t *testing.T) {
	raw := makeRawEvent(t, "dev_d3", domain.CategoryPhysicalThreat)
	ext := &mockExtractor{
		errs:    []error{errors.New("broker down")},
		batches: [][]domain.RawEvent{nil, {raw}},
	}
	ldr := &mockLoader{}

	p := pipeline.New(ext, pipeline.NewTransformer(discardLogger()), ldr, discardLogger(), observability.NewMetricsForTesting(), 50)
	runFor(t, p, time.Second)

	require.Len(t, ldr.loaded, 1, "pipeline recovers after the first extract error")
}

func TestReportTransformer_KeyFallsBackToDeviceID(t *testing.T) {
	raw := domain.RawEvent{
		Key:   []byte("dev_key"),
		Value: []byte(`{"category":"Verbal Harassment","coordinates":{"lng":73.4,"lat":18.7}}`),
	}

	sub, err := pipeline.NewTransformer(discardLogger()).Transform(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "dev_key", sub.DeviceID)
	assert.Equal(t, domain.CategoryVerbalHarassment, sub.Category)
}
