package signal

import (
	"context"

	"github.com/hwanginhyeok/stock/internal/models"
)

// NoopSink discards records; used when no history database is configured
type NoopSink struct{}

func (NoopSink) Record(context.Context, *models.AnalysisRecord) error { return nil }

func (NoopSink) Close() error { return nil }
