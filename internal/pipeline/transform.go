package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/safe-route-service/internal/domain"
)

// ReportTransformer implements Transformer by decoding the JSON submission in
// the message value.
type ReportTransformer struct {
	logger *slog.Logger
}

// NewTransformer creates a ReportTransformer.
func NewTransformer(logger *slog.Logger) *ReportTransformer {
	return &ReportTransformer{logger: logger}
}

func (t *ReportTransformer) Transform(_ context.Context, raw domain.RawEvent) (domain.ReportSubmission, error) {
	sub, err := domain.ParseReportMessage(raw)
	if err != nil {
		return domain.ReportSubmission{}, err
	}
	t.logger.Debug("report parsed", "device_id", sub.DeviceID, "category", sub.Category, "offset", raw.Offset)
	return sub, nil
}
