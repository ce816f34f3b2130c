package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, []int{5, 20, 60, 120}, cfg.Technical.SMAPeriods)
	assert.Equal(t, 14, cfg.Technical.RSIPeriod)
	assert.Equal(t, MACDConfig{Fast: 12, Slow: 26, Signal: 9}, cfg.Technical.MACD)
	assert.InDelta(t, 1.0, cfg.Technical.Weights.RSI+cfg.Technical.Weights.MACD+
		cfg.Technical.Weights.Trend+cfg.Technical.Weights.Bollinger, 1e-9)
	assert.InDelta(t, 1.0, cfg.Screening.Weights.Technical+cfg.Screening.Weights.Fundamental, 1e-9)
	assert.Equal(t, 10, cfg.Screening.TopN)
	assert.Equal(t, 0.5, cfg.Fundamental.MaxMissingFraction)
	assert.Equal(t, SentimentLabels{ExtremeFear: 25, Fear: 45, Greed: 55, ExtremeGreed: 75}, cfg.Sentiment.Labels)
}

func TestConfig_CacheTTLs(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want time.Duration
	}{
		{"parsed", "30m", 30 * time.Minute},
		{"empty falls back", "", FreshnessSeries},
		{"garbage falls back", "soon", FreshnessSeries},
		{"zero falls back", "0s", FreshnessSeries},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := CacheConfig{SeriesTTL: tt.in}
			assert.Equal(t, tt.want, c.GetSeriesTTL())
		})
	}
}

func TestLoadConfig_TOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.toml")
	content := `
environment = "production"

[cache]
path = "/tmp/engine-cache"
scores_ttl = "2h"

[technical]
sma_periods = [10, 50]
rsi_period = 9

[technical.weights]
rsi = 0.4
macd = 0.2
trend = 0.2
bollinger = 0.2

[screening]
top_n = 3
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "/tmp/engine-cache", cfg.Cache.Path)
	assert.Equal(t, 2*time.Hour, cfg.Cache.GetScoresTTL())
	assert.Equal(t, []int{10, 50}, cfg.Technical.SMAPeriods)
	assert.Equal(t, 9, cfg.Technical.RSIPeriod)
	assert.Equal(t, 0.4, cfg.Technical.Weights.RSI)
	assert.Equal(t, 3, cfg.Screening.TopN)
	// Untouched sections keep defaults
	assert.Equal(t, 26, cfg.Technical.MACD.Slow)
}

func TestLoadConfig_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	content := `
fundamental:
  valuation:
    per_max: 20
  max_missing_fraction: 0.25
sentiment:
  labels:
    extreme_fear: 20
    fear: 40
    greed: 60
    extreme_greed: 80
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 20.0, cfg.Fundamental.Valuation.PERMax)
	assert.Equal(t, 5.0, cfg.Fundamental.Valuation.PBRMax)
	assert.Equal(t, 0.25, cfg.Fundamental.MaxMissingFraction)
	assert.Equal(t, 80.0, cfg.Sentiment.Labels.ExtremeGreed)
}

func TestLoadConfig_LaterFileWins(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.toml")
	second := filepath.Join(dir, "b.toml")
	require.NoError(t, os.WriteFile(first, []byte("[screening]\ntop_n = 5\nworkers = 2\n"), 0644))
	require.NoError(t, os.WriteFile(second, []byte("[screening]\ntop_n = 7\n"), 0644))

	cfg, err := LoadConfig(first, second, filepath.Join(dir, "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Screening.TopN)
	assert.Equal(t, 2, cfg.Screening.Workers)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[cache\npath = "), 0644))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv("STOCK_ENV", "prod")
	t.Setenv("STOCK_LOG_LEVEL", "debug")
	t.Setenv("STOCK_DATA_PATH", "/var/lib/stock")
	t.Setenv("STOCK_CACHE_DISABLED", "true")
	t.Setenv("STOCK_SCREENING_WORKERS", "8")
	t.Setenv("STOCK_SOURCE", "eodhd")
	t.Setenv("STOCK_EODHD_API_KEY", "secret")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, filepath.Join("/var/lib/stock", "cache"), cfg.Cache.Path)
	assert.Equal(t, filepath.Join("/var/lib/stock", "analysis.db"), cfg.Storage.SQLitePath)
	assert.True(t, cfg.Cache.Disabled)
	assert.Equal(t, 8, cfg.Screening.Workers)
	assert.Equal(t, "eodhd", cfg.Sources.Default)
	assert.Equal(t, "secret", cfg.Sources.EODHD.APIKey)
}

func TestEODHDConfig_GetTimeout(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"10s", 10 * time.Second},
		{"", 30 * time.Second},
		{"soon", 30 * time.Second},
	}
	for _, tt := range tests {
		c := EODHDConfig{Timeout: tt.in}
		assert.Equal(t, tt.want, c.GetTimeout(), tt.in)
	}
}

func TestConfig_EnvOverrides_IgnoresInvalid(t *testing.T) {
	t.Setenv("STOCK_SCREENING_WORKERS", "-3")
	t.Setenv("STOCK_CACHE_DISABLED", "maybe")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	assert.Equal(t, 4, cfg.Screening.Workers)
	assert.False(t, cfg.Cache.Disabled)
}

func TestServerConfig_Intervals(t *testing.T) {
	cfg := NewDefaultConfig()
	assert.Equal(t, time.Hour, cfg.Server.GetRefreshInterval())
	assert.Equal(t, 6*time.Hour, cfg.Server.GetPruneInterval())
	assert.Equal(t, "127.0.0.1:9464", cfg.Server.Address())

	off := ServerConfig{}
	assert.Zero(t, off.GetRefreshInterval())
	assert.Zero(t, off.GetPruneInterval())
}

func TestConfig_WatchlistEnv(t *testing.T) {
	t.Setenv("STOCK_WATCHLIST", " 005930.KS, ,000660.KS ")
	t.Setenv("STOCK_SERVER_PORT", "8080")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	assert.Equal(t, []string{"005930.KS", "000660.KS"}, cfg.Screening.Watchlist)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadConfig_ExampleFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "..", "config", "stock.toml"))
	require.NoError(t, err)

	defaults := NewDefaultConfig()
	assert.Equal(t, defaults.Technical.Weights, cfg.Technical.Weights)
	assert.Equal(t, defaults.Screening.Thresholds, cfg.Screening.Thresholds)
	assert.Equal(t, time.Hour, cfg.Server.GetRefreshInterval())
	assert.Equal(t, "0 40 15 * * 1-5", cfg.Server.ScreenCron)
	assert.Len(t, cfg.Screening.Watchlist, 3)
}
