// Package common provides shared utilities for the analysis engine
package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the engine
type Config struct {
	Environment string            `toml:"environment" yaml:"environment"`
	Logging     LoggingConfig     `toml:"logging" yaml:"logging"`
	Cache       CacheConfig       `toml:"cache" yaml:"cache"`
	Storage     StorageConfig     `toml:"storage" yaml:"storage"`
	Sources     SourcesConfig     `toml:"sources" yaml:"sources"`
	Technical   TechnicalConfig   `toml:"technical" yaml:"technical"`
	Trend       TrendConfig       `toml:"trend" yaml:"trend"`
	Fundamental FundamentalConfig `toml:"fundamental" yaml:"fundamental"`
	Sentiment   SentimentConfig   `toml:"sentiment" yaml:"sentiment"`
	Screening   ScreeningConfig   `toml:"screening" yaml:"screening"`
	Server      ServerConfig      `toml:"server" yaml:"server"`
}

// ServerConfig holds the long-running serve mode settings
type ServerConfig struct {
	Host            string `toml:"host" yaml:"host"`
	Port            int    `toml:"port" yaml:"port"`
	RefreshInterval string `toml:"refresh_interval" yaml:"refresh_interval"` // watchlist re-screen cadence; empty disables
	PruneInterval   string `toml:"prune_interval" yaml:"prune_interval"`     // cache prune cadence; empty disables
	ScreenCron      string `toml:"screen_cron" yaml:"screen_cron"`           // six-field cron spec (seconds first); empty disables
}

// GetRefreshInterval returns the watchlist refresh cadence, zero when disabled
func (c *ServerConfig) GetRefreshInterval() time.Duration {
	return parseDuration(c.RefreshInterval, 0)
}

// GetPruneInterval returns the cache prune cadence, zero when disabled
func (c *ServerConfig) GetPruneInterval() time.Duration {
	return parseDuration(c.PruneInterval, 0)
}

// Address returns host:port for the HTTP listener
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"` // "console" or "json"
}

// CacheConfig holds the on-disk cache location and per-category TTLs
type CacheConfig struct {
	Path         string `toml:"path" yaml:"path"`
	Disabled     bool   `toml:"disabled" yaml:"disabled"`
	SeriesTTL    string `toml:"series_ttl" yaml:"series_ttl"`
	ScoresTTL    string `toml:"scores_ttl" yaml:"scores_ttl"`
	SentimentTTL string `toml:"sentiment_ttl" yaml:"sentiment_ttl"`
}

// GetSeriesTTL parses and returns the TTL for raw price series
func (c *CacheConfig) GetSeriesTTL() time.Duration {
	return parseDuration(c.SeriesTTL, FreshnessSeries)
}

// GetScoresTTL parses and returns the TTL for analyzer results
func (c *CacheConfig) GetScoresTTL() time.Duration {
	return parseDuration(c.ScoresTTL, FreshnessScores)
}

// GetSentimentTTL parses and returns the TTL for market sentiment results
func (c *CacheConfig) GetSentimentTTL() time.Duration {
	return parseDuration(c.SentimentTTL, FreshnessSentiment)
}

// StorageConfig holds the analysis history database location
type StorageConfig struct {
	SQLitePath string `toml:"sqlite_path" yaml:"sqlite_path"` // empty disables the record sink
}

// SourcesConfig selects and configures the series collaborator
type SourcesConfig struct {
	Default string           `toml:"default" yaml:"default"` // "file" or "eodhd"
	File    FileSourceConfig `toml:"file" yaml:"file"`
	EODHD   EODHDConfig      `toml:"eodhd" yaml:"eodhd"`
}

// FileSourceConfig points at a directory of JSON snapshots
type FileSourceConfig struct {
	Dir string `toml:"dir" yaml:"dir"`
}

// EODHDConfig holds EODHD API configuration
type EODHDConfig struct {
	APIKey    string `toml:"api_key" yaml:"api_key"`
	BaseURL   string `toml:"base_url" yaml:"base_url"`
	RateLimit int    `toml:"rate_limit" yaml:"rate_limit"`
	Timeout   string `toml:"timeout" yaml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *EODHDConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 30*time.Second)
}

// MACDConfig holds MACD periods
type MACDConfig struct {
	Fast   int `toml:"fast" yaml:"fast"`
	Slow   int `toml:"slow" yaml:"slow"`
	Signal int `toml:"signal" yaml:"signal"`
}

// BollingerConfig holds Bollinger band parameters
type BollingerConfig struct {
	Period int     `toml:"period" yaml:"period"`
	StdDev float64 `toml:"std_dev" yaml:"std_dev"`
}

// TechnicalWeights are the sub-score weights; they must sum to 1.0
type TechnicalWeights struct {
	RSI       float64 `toml:"rsi" yaml:"rsi"`
	MACD      float64 `toml:"macd" yaml:"macd"`
	Trend     float64 `toml:"trend" yaml:"trend"`
	Bollinger float64 `toml:"bollinger" yaml:"bollinger"`
}

// SignalThresholds bucket a technical score into bullish/neutral/bearish
type SignalThresholds struct {
	Bullish float64 `toml:"bullish" yaml:"bullish"` // score >= bullish
	Bearish float64 `toml:"bearish" yaml:"bearish"` // score <= bearish
}

// TechnicalConfig holds technical analyzer parameters
type TechnicalConfig struct {
	SMAPeriods       []int            `toml:"sma_periods" yaml:"sma_periods"`
	EMAPeriods       []int            `toml:"ema_periods" yaml:"ema_periods"`
	RSIPeriod        int              `toml:"rsi_period" yaml:"rsi_period"`
	RSIOverbought    float64          `toml:"rsi_overbought" yaml:"rsi_overbought"`
	RSIOversold      float64          `toml:"rsi_oversold" yaml:"rsi_oversold"`
	MACD             MACDConfig       `toml:"macd" yaml:"macd"`
	Bollinger        BollingerConfig  `toml:"bollinger" yaml:"bollinger"`
	GoldenCrossPairs [][2]int         `toml:"golden_cross_pairs" yaml:"golden_cross_pairs"`
	MomentumScale    float64          `toml:"momentum_scale" yaml:"momentum_scale"` // MACD histogram % giving ~76/24 sub-score
	MinBars          int              `toml:"min_bars" yaml:"min_bars"`
	Weights          TechnicalWeights `toml:"weights" yaml:"weights"`
	Thresholds       SignalThresholds `toml:"thresholds" yaml:"thresholds"`
}

// TrendConfig holds trend analyzer parameters
type TrendConfig struct {
	ATRPeriod            int     `toml:"atr_period" yaml:"atr_period"`
	ADXPeriod            int     `toml:"adx_period" yaml:"adx_period"`
	SupertrendPeriod     int     `toml:"supertrend_period" yaml:"supertrend_period"`
	SupertrendMultiplier float64 `toml:"supertrend_multiplier" yaml:"supertrend_multiplier"`
	RSIPeriod            int     `toml:"rsi_period" yaml:"rsi_period"`
}

// ValuationThresholds are absolute valuation bands
type ValuationThresholds struct {
	PERMax float64 `toml:"per_max" yaml:"per_max"`
	PBRMax float64 `toml:"pbr_max" yaml:"pbr_max"`
}

// ProfitabilityThresholds are absolute profitability bands in percent
type ProfitabilityThresholds struct {
	ROEMin             float64 `toml:"roe_min" yaml:"roe_min"`
	OperatingMarginMin float64 `toml:"operating_margin_min" yaml:"operating_margin_min"`
}

// GrowthThresholds are absolute growth bands in percent
type GrowthThresholds struct {
	RevenueGrowthMin  float64 `toml:"revenue_growth_min" yaml:"revenue_growth_min"`
	EarningsGrowthMin float64 `toml:"earnings_growth_min" yaml:"earnings_growth_min"`
}

// FundamentalConfig holds fundamental analyzer parameters
type FundamentalConfig struct {
	Valuation          ValuationThresholds     `toml:"valuation" yaml:"valuation"`
	Profitability      ProfitabilityThresholds `toml:"profitability" yaml:"profitability"`
	Growth             GrowthThresholds        `toml:"growth" yaml:"growth"`
	MaxMissingFraction float64                 `toml:"max_missing_fraction" yaml:"max_missing_fraction"`
}

// SentimentLabels are ascending cut points for the fear/greed labels
type SentimentLabels struct {
	ExtremeFear  float64 `toml:"extreme_fear" yaml:"extreme_fear"`   // score < extreme_fear
	Fear         float64 `toml:"fear" yaml:"fear"`                   // score < fear
	Greed        float64 `toml:"greed" yaml:"greed"`                 // score > greed
	ExtremeGreed float64 `toml:"extreme_greed" yaml:"extreme_greed"` // score > extreme_greed
}

// SentimentConfig holds market sentiment index parameters
type SentimentConfig struct {
	RSIPeriod        int             `toml:"rsi_period" yaml:"rsi_period"`
	MomentumLookback int             `toml:"momentum_lookback" yaml:"momentum_lookback"`
	Labels           SentimentLabels `toml:"labels" yaml:"labels"`
}

// ScreeningWeights fuse technical and fundamental scores; they must sum to 1.0
type ScreeningWeights struct {
	Technical   float64 `toml:"technical" yaml:"technical"`
	Fundamental float64 `toml:"fundamental" yaml:"fundamental"`
}

// GradeThresholds are descending cut points for the recommendation grade
type GradeThresholds struct {
	StrongPositive float64 `toml:"strong_positive" yaml:"strong_positive"`
	Positive       float64 `toml:"positive" yaml:"positive"`
	Neutral        float64 `toml:"neutral" yaml:"neutral"`
}

// ScreeningConfig holds screener parameters
type ScreeningConfig struct {
	Weights         ScreeningWeights `toml:"weights" yaml:"weights"`
	SentimentWeight float64          `toml:"sentiment_weight" yaml:"sentiment_weight"`
	Thresholds      GradeThresholds  `toml:"thresholds" yaml:"thresholds"`
	TopN            int              `toml:"top_n" yaml:"top_n"`
	Workers         int              `toml:"workers" yaml:"workers"`
	Watchlist       []string         `toml:"watchlist" yaml:"watchlist"` // tickers screened when none are given
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Cache: CacheConfig{
			Path:         "data/cache",
			SeriesTTL:    "4h",
			ScoresTTL:    "4h",
			SentimentTTL: "6h",
		},
		Storage: StorageConfig{
			SQLitePath: "data/analysis.db",
		},
		Sources: SourcesConfig{
			Default: "file",
			File:    FileSourceConfig{Dir: "data/snapshots"},
			EODHD: EODHDConfig{
				BaseURL:   "https://eodhd.com/api",
				RateLimit: 10,
				Timeout:   "30s",
			},
		},
		Technical: TechnicalConfig{
			SMAPeriods:       []int{5, 20, 60, 120},
			EMAPeriods:       []int{12, 26},
			RSIPeriod:        14,
			RSIOverbought:    70,
			RSIOversold:      30,
			MACD:             MACDConfig{Fast: 12, Slow: 26, Signal: 9},
			Bollinger:        BollingerConfig{Period: 20, StdDev: 2},
			GoldenCrossPairs: [][2]int{{5, 20}, {20, 60}},
			MomentumScale:    1.0,
			Weights:          TechnicalWeights{RSI: 0.25, MACD: 0.25, Trend: 0.25, Bollinger: 0.25},
			Thresholds:       SignalThresholds{Bullish: 60, Bearish: 40},
		},
		Trend: TrendConfig{
			ATRPeriod:            14,
			ADXPeriod:            14,
			SupertrendPeriod:     10,
			SupertrendMultiplier: 3.0,
			RSIPeriod:            14,
		},
		Fundamental: FundamentalConfig{
			Valuation:          ValuationThresholds{PERMax: 30, PBRMax: 5},
			Profitability:      ProfitabilityThresholds{ROEMin: 10, OperatingMarginMin: 10},
			Growth:             GrowthThresholds{RevenueGrowthMin: 5, EarningsGrowthMin: 10},
			MaxMissingFraction: 0.5,
		},
		Sentiment: SentimentConfig{
			RSIPeriod:        14,
			MomentumLookback: 20,
			Labels:           SentimentLabels{ExtremeFear: 25, Fear: 45, Greed: 55, ExtremeGreed: 75},
		},
		Screening: ScreeningConfig{
			Weights:         ScreeningWeights{Technical: 0.5, Fundamental: 0.5},
			SentimentWeight: 0,
			Thresholds:      GradeThresholds{StrongPositive: 80, Positive: 60, Neutral: 40},
			TopN:            10,
			Workers:         4,
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            9464,
			RefreshInterval: "1h",
			PruneInterval:   "6h",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides.
// Files ending in .yaml or .yml are parsed as YAML, everything else as TOML.
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Later files override earlier
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(data, config)
		default:
			err = toml.Unmarshal(data, config)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("STOCK_ENV"); env != "" {
		config.Environment = env
	}

	if level := os.Getenv("STOCK_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if format := os.Getenv("STOCK_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}

	if path := os.Getenv("STOCK_DATA_PATH"); path != "" {
		config.Cache.Path = filepath.Join(path, "cache")
		config.Storage.SQLitePath = filepath.Join(path, "analysis.db")
	}

	if source := os.Getenv("STOCK_SOURCE"); source != "" {
		config.Sources.Default = source
	}

	if key := os.Getenv("STOCK_EODHD_API_KEY"); key != "" {
		config.Sources.EODHD.APIKey = key
	}

	if v := os.Getenv("STOCK_CACHE_DISABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Cache.Disabled = b
		}
	}

	if port := os.Getenv("STOCK_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil && p > 0 {
			config.Server.Port = p
		}
	}

	if list := os.Getenv("STOCK_WATCHLIST"); list != "" {
		var tickers []string
		for _, t := range strings.Split(list, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tickers = append(tickers, t)
			}
		}
		config.Screening.Watchlist = tickers
	}

	if v := os.Getenv("STOCK_SCREENING_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Screening.Workers = n
		}
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
