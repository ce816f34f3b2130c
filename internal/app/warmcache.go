package app

import (
	"context"
	"os"
	"time"

	"github.com/hwanginhyeok/stock/internal/common"
	"github.com/hwanginhyeok/stock/internal/interfaces"
)

// warmCache screens the watchlist on startup so series, fundamentals and
// scores are cached before the first query.
func warmCache(ctx context.Context, service interfaces.SignalService, reqs []interfaces.AnalysisRequest, logger *common.Logger) {
	// Check env var override
	if os.Getenv("STOCK_WARM_CACHE") == "off" {
		logger.Info().Msg("Warm cache: disabled via STOCK_WARM_CACHE=off")
		return
	}

	if len(reqs) == 0 {
		logger.Info().Msg("Warm cache: no watchlist configured, skipping")
		return
	}

	start := time.Now()
	logger.Info().Int("tickers", len(reqs)).Msg("Warm cache: starting")

	records, err := service.ScreenTickers(ctx, reqs)
	if err != nil {
		// Partial results are still cached
		logger.Warn().Err(err).Msg("Warm cache: some tickers failed")
	}

	logger.Info().
		Int("tickers", len(reqs)).
		Int("ranked", len(records)).
		Dur("elapsed", time.Since(start)).
		Msg("Warm cache: complete")
}
