package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"

	"github.com/couchcryptid/safe-route-service/internal/domain"
	"github.com/couchcryptid/safe-route-service/internal/observability"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// BatchExtractor reads up to batchSize raw events from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// Transformer converts a raw message into a report submission.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawEvent) (domain.ReportSubmission, error)
}

// ReportLoader stores one submission.
type ReportLoader interface {
	Add(sub domain.ReportSubmission) (domain.Report, error)
}

// Pipeline orchestrates the extract-transform-load loop for incident reports.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      ReportLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
	batchSize   int
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, t Transformer, l ReportLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
	}
}

// CheckReadiness returns nil once the pipeline has processed at least one batch.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("report pipeline has not processed any messages yet")
	}
	return nil
}

// Ready reports whether a batch has been processed.
func (p *Pipeline) Ready() bool {
	return p.ready.Load()
}

// Run executes the batch loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("report pipeline started", "batch_size", p.batchSize)
	p.metrics.IngestRunning.Set(1)
	defer p.metrics.IngestRunning.Set(0)

	backoff := initialBackoff

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("report pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx, &backoff) {
			return nil
		}
	}
}

// processBatch runs one extract-transform-load cycle. Returns false if the pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration) bool {
	start := time.Now()

	rawBatch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return p.backoffOrStop(ctx, backoff)
	}

	if len(rawBatch) == 0 {
		return ctx.Err() == nil
	}

	p.metrics.IngestMessages.Add(float64(len(rawBatch)))
	p.metrics.IngestBatchSize.Observe(float64(len(rawBatch)))
	*backoff = initialBackoff

	accepted := p.transformAndLoad(ctx, rawBatch)

	p.metrics.IngestBatchDuration.Observe(time.Since(start).Seconds())
	p.ready.Store(true)
	p.logger.Debug("report batch processed", "batch_size", len(rawBatch), "accepted", accepted)
	return true
}

// transformAndLoad parses and stores each message, then commits its offset.
// Messages that fail to parse or are rejected by the store are skipped: a
// retry would be rejected again. Returns the number of accepted reports.
func (p *Pipeline) transformAndLoad(ctx context.Context, rawBatch []domain.RawEvent) int {
	accepted := 0
	for _, raw := range rawBatch {
		sub, err := p.transformer.Transform(ctx, raw)
		if err != nil {
			p.logger.Warn("parse failed, skipping message",
				"error", err,
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			p.metrics.IngestErrors.WithLabelValues("parse").Inc()
			p.commitOffset(ctx, raw)
			continue
		}

		if _, err := p.loader.Add(sub); err != nil {
			reason := "rejected"
			if errors.Is(err, domain.ErrDuplicateSubmission) {
				reason = "duplicate"
			}
			p.logger.Warn("report rejected, skipping message",
				"error", err,
				"device_id", sub.DeviceID,
				"offset", raw.Offset,
			)
			p.metrics.IngestErrors.WithLabelValues(reason).Inc()
			p.commitOffset(ctx, raw)
			continue
		}

		accepted++
		p.commitOffset(ctx, raw)
	}
	return accepted
}

// backoffOrStop sleeps with the current backoff and advances it. Returns false
// if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !retry.SleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = retry.NextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw domain.RawEvent) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}
