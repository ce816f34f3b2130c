package interfaces

import (
	"context"

	"github.com/hwanginhyeok/stock/internal/models"
)

// RecordSink receives every analysis record the engine produces.
// The engine only emits; persistence and querying belong to the sink.
type RecordSink interface {
	Record(ctx context.Context, record *models.AnalysisRecord) error
	Close() error
}

// LatestResults is the read-only view exporters and report generators use.
// Returned records are copies.
type LatestResults interface {
	// Latest returns the most recent record for a ticker
	Latest(ticker string) (*models.AnalysisRecord, bool)

	// LatestOn returns the record computed for a ticker on a YYYY-MM-DD date
	LatestOn(ticker, date string) (*models.AnalysisRecord, bool)
}
