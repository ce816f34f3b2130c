package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hwanginhyeok/stock/internal/common"
	"github.com/hwanginhyeok/stock/internal/interfaces"
)

// cachePruner is the slice of the cache store the scheduler needs
type cachePruner interface {
	Prune(ctx context.Context) (int, error)
}

// startScheduler re-screens the watchlist and prunes expired cache entries on
// fixed intervals until ctx is cancelled. A non-positive interval disables
// that job.
func startScheduler(ctx context.Context, service interfaces.SignalService, cache cachePruner, watchlist func() []interfaces.AnalysisRequest, logger *common.Logger, refresh, prune time.Duration) {
	var refreshC, pruneC <-chan time.Time
	if refresh > 0 {
		t := time.NewTicker(refresh)
		defer t.Stop()
		refreshC = t.C
	}
	if prune > 0 {
		t := time.NewTicker(prune)
		defer t.Stop()
		pruneC = t.C
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Scheduler: stopped")
			return
		case <-refreshC:
			refreshWatchlist(ctx, service, watchlist(), logger)
		case <-pruneC:
			pruneCache(ctx, cache, logger)
		}
	}
}

func refreshWatchlist(ctx context.Context, service interfaces.SignalService, reqs []interfaces.AnalysisRequest, logger *common.Logger) {
	if len(reqs) == 0 {
		return
	}
	start := time.Now()

	records, err := service.ScreenTickers(ctx, reqs)
	if err != nil {
		logger.Warn().Err(err).Msg("Watchlist refresh: some tickers failed")
	}

	logger.Info().
		Int("tickers", len(reqs)).
		Int("ranked", len(records)).
		Dur("elapsed", time.Since(start)).
		Msg("Watchlist refresh: complete")
}

func pruneCache(ctx context.Context, cache cachePruner, logger *common.Logger) {
	start := time.Now()

	removed, err := cache.Prune(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Cache prune: failed")
		return
	}

	logger.Info().
		Int("removed", removed).
		Dur("elapsed", time.Since(start)).
		Msg("Cache prune: complete")
}

// newScreenCron schedules job on a six-field cron spec (seconds first).
// The returned cron is not started.
func newScreenCron(spec string, job func()) (*cron.Cron, error) {
	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc(spec, job); err != nil {
		return nil, fmt.Errorf("invalid server.screen_cron %q: %w", spec, err)
	}
	return c, nil
}
