package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"

	"github.com/hwanginhyeok/stock/internal/clients/eodhd"
	"github.com/hwanginhyeok/stock/internal/clients/filesource"
	"github.com/hwanginhyeok/stock/internal/common"
	"github.com/hwanginhyeok/stock/internal/interfaces"
	"github.com/hwanginhyeok/stock/internal/models"
	"github.com/hwanginhyeok/stock/internal/services/signal"
	"github.com/hwanginhyeok/stock/internal/storage/cachefs"
	"github.com/hwanginhyeok/stock/internal/storage/sqlitedb"
)

// App holds the initialized cache, series source, history database and
// analysis service. It is the shared core behind every stock-engine command.
type App struct {
	Config        *common.Config
	Logger        *common.Logger
	Cache         *cachefs.Store
	Source        interfaces.SeriesSource
	SourceName    string
	History       *sqlitedb.Sink // nil when storage.sqlite_path is empty
	SignalService *signal.Service
	Registry      *prometheus.Registry
	StartupTime   time.Time

	schedulerCancel context.CancelFunc
	warmCacheCancel context.CancelFunc
	screenCron      *cron.Cron
	background      sync.WaitGroup
	closeOnce       sync.Once
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// resolveConfigPath picks the provided path, then STOCK_CONFIG, then
// stock.toml next to the binary, then config/stock.toml.
func resolveConfigPath(configPath, binDir string) string {
	if configPath == "" {
		configPath = os.Getenv("STOCK_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "stock.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/stock.toml" // fallback for development
		}
	}
	return configPath
}

func resolvePath(binDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(binDir, path)
}

// NewApp loads configuration and wires the cache, source, history and
// analysis service. configPath may be empty, in which case the default
// resolution logic is used. Overrides run after the file and environment
// are applied, before anything is opened.
func NewApp(configPath string, overrides ...func(*common.Config)) (*App, error) {
	startupStart := time.Now()

	// Load version from .version file (fallback if ldflags not set)
	common.LoadVersionFromFile()

	binDir := getBinaryDir()

	config, err := common.LoadConfig(resolveConfigPath(configPath, binDir))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Resolve relative data paths to binary directory
	config.Cache.Path = resolvePath(binDir, config.Cache.Path)
	config.Storage.SQLitePath = resolvePath(binDir, config.Storage.SQLitePath)
	config.Sources.File.Dir = resolvePath(binDir, config.Sources.File.Dir)

	for _, override := range overrides {
		override(config)
	}

	logger := common.NewLoggerFromConfig(config.Logging)
	return newApp(config, logger, startupStart)
}

// NewAppWithConfig wires an App from an already loaded configuration
func NewAppWithConfig(config *common.Config, logger *common.Logger) (*App, error) {
	return newApp(config, logger, time.Now())
}

func newApp(config *common.Config, logger *common.Logger, startupStart time.Time) (*App, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	source, sourceName, err := newSource(config, logger)
	if err != nil {
		return nil, err
	}

	cache, err := cachefs.NewStore(logger.WithComponent("cache"), config.Cache.Path,
		cachefs.WithDisabled(config.Cache.Disabled),
		cachefs.WithRegisterer(registry),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	var (
		history *sqlitedb.Sink
		sink    interfaces.RecordSink = signal.NoopSink{}
	)
	if config.Storage.SQLitePath != "" {
		history, err = sqlitedb.NewSink(logger.WithComponent("history"), config.Storage.SQLitePath)
		if err != nil {
			cache.Close()
			return nil, fmt.Errorf("failed to initialize history: %w", err)
		}
		sink = history
	}

	signalService, err := signal.NewService(logger.WithComponent("signal"), config, source, cache,
		signal.WithSink(sink),
		signal.WithRegisterer(registry),
	)
	if err != nil {
		if history != nil {
			history.Close()
		}
		cache.Close()
		return nil, fmt.Errorf("failed to initialize signal service: %w", err)
	}

	a := &App{
		Config:        config,
		Logger:        logger,
		Cache:         cache,
		Source:        source,
		SourceName:    sourceName,
		History:       history,
		SignalService: signalService,
		Registry:      registry,
		StartupTime:   startupStart,
	}

	logger.Info().
		Str("source", sourceName).
		Bool("history", history != nil).
		Dur("startup", time.Since(startupStart)).
		Msg("App initialized")

	return a, nil
}

// newSource builds the series collaborator named by sources.default
func newSource(config *common.Config, logger *common.Logger) (interfaces.SeriesSource, string, error) {
	name := strings.ToLower(strings.TrimSpace(config.Sources.Default))
	switch name {
	case "", filesource.SourceName:
		return filesource.NewSource(logger.WithComponent("filesource"), config.Sources.File.Dir), filesource.SourceName, nil
	case eodhd.SourceName:
		cfg := config.Sources.EODHD
		if cfg.APIKey == "" {
			return nil, "", &models.ConfigurationError{Component: "sources", Field: "eodhd.api_key", Reason: "required when the eodhd source is selected"}
		}
		opts := []eodhd.ClientOption{
			eodhd.WithLogger(logger.WithComponent("eodhd")),
			eodhd.WithTimeout(cfg.GetTimeout()),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, eodhd.WithBaseURL(cfg.BaseURL))
		}
		if cfg.RateLimit > 0 {
			opts = append(opts, eodhd.WithRateLimit(cfg.RateLimit))
		}
		return eodhd.NewClient(cfg.APIKey, opts...), eodhd.SourceName, nil
	default:
		return nil, "", &models.ConfigurationError{Component: "sources", Field: "default", Reason: fmt.Sprintf("unknown source %q", config.Sources.Default)}
	}
}

// Request builds an analysis request for ticker against the configured source
func (a *App) Request(ticker string) interfaces.AnalysisRequest {
	return interfaces.AnalysisRequest{
		Source:      a.SourceName,
		Ticker:      ticker,
		Granularity: models.GranularityDaily,
	}
}

// Watchlist returns requests for the configured screening watchlist
func (a *App) Watchlist() []interfaces.AnalysisRequest {
	reqs := make([]interfaces.AnalysisRequest, 0, len(a.Config.Screening.Watchlist))
	for _, ticker := range a.Config.Screening.Watchlist {
		reqs = append(reqs, a.Request(ticker))
	}
	return reqs
}

// StartWarmCache screens the watchlist in the background so the first query is fast.
func (a *App) StartWarmCache() {
	ctx, cancel := context.WithCancel(context.Background())
	a.warmCacheCancel = cancel
	a.background.Add(1)
	go func() {
		defer a.background.Done()
		warmCache(ctx, a.SignalService, a.Watchlist(), a.Logger)
	}()
}

// StartScheduler re-screens the watchlist and prunes the cache on the
// configured intervals, and re-screens on server.screen_cron when set. A zero
// interval disables that job.
func (a *App) StartScheduler() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.schedulerCancel = cancel

	if spec := a.Config.Server.ScreenCron; spec != "" {
		c, err := newScreenCron(spec, func() {
			refreshWatchlist(ctx, a.SignalService, a.Watchlist(), a.Logger)
		})
		if err != nil {
			return err
		}
		c.Start()
		a.screenCron = c
		a.Logger.Info().Str("spec", spec).Msg("Scheduler: screen cron registered")
	}

	refresh := a.Config.Server.GetRefreshInterval()
	prune := a.Config.Server.GetPruneInterval()
	if refresh <= 0 && prune <= 0 {
		a.Logger.Info().Msg("Scheduler: interval jobs disabled")
		return nil
	}

	a.background.Add(1)
	go func() {
		defer a.background.Done()
		startScheduler(ctx, a.SignalService, a.Cache, a.Watchlist, a.Logger, refresh, prune)
	}()
	return nil
}

// Close stops background work and closes the history database and cache
func (a *App) Close() {
	a.closeOnce.Do(func() {
		if a.schedulerCancel != nil {
			a.schedulerCancel()
		}
		if a.warmCacheCancel != nil {
			a.warmCacheCancel()
		}
		if a.screenCron != nil {
			<-a.screenCron.Stop().Done()
		}
		a.background.Wait()

		if a.History != nil {
			if err := a.History.Close(); err != nil {
				a.Logger.Warn().Err(err).Msg("Failed to close history")
			}
		}
		if err := a.Cache.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close cache")
		}
	})
}
