// Package interfaces defines the contracts between the engine and its collaborators
package interfaces

import (
	"context"
	"time"

	"github.com/hwanginhyeok/stock/internal/models"
)

// SeriesSource supplies price series and fundamental snapshots.
// Implementations wrap their own failures in models.UpstreamUnavailableError.
type SeriesSource interface {
	// FetchSeries returns an ascending series for the request
	FetchSeries(ctx context.Context, req SeriesRequest) (*models.TimeSeries, error)

	// FetchFundamentals returns the company snapshot in effect at asOf.
	// A zero asOf means the latest available snapshot.
	FetchFundamentals(ctx context.Context, ticker string, asOf time.Time) (*models.Fundamentals, error)
}

// SeriesRequest selects one price series
type SeriesRequest struct {
	Source      string
	Ticker      string
	Granularity models.Granularity
	Period      string    // lookback such as "1y"; empty means the source default
	AsOf        time.Time // bars after this instant are excluded; zero means latest
}
