package analysis

import (
	"fmt"
	"math"

	"github.com/hwanginhyeok/stock/internal/common"
	"github.com/hwanginhyeok/stock/internal/models"
	"github.com/hwanginhyeok/stock/internal/signals"
)

// ADX levels separating weak, moderate and strong trends
const (
	adxStrong   = 25.0
	adxModerate = 20.0
)

// RSI bounds used for the trend summary state
const (
	trendRSIOverbought = 70.0
	trendRSIOversold   = 30.0
)

// TrendAnalyzer computes ATR, ADX and Supertrend readings for a series
type TrendAnalyzer struct {
	cfg common.TrendConfig
}

// NewTrendAnalyzer validates the configuration and creates an analyzer
func NewTrendAnalyzer(cfg common.TrendConfig) (*TrendAnalyzer, error) {
	configErr := func(field, reason string) error {
		return &models.ConfigurationError{Component: "trend", Field: field, Reason: reason}
	}
	if cfg.ATRPeriod <= 0 {
		return nil, configErr("atr_period", "must be positive")
	}
	if cfg.ADXPeriod <= 0 {
		return nil, configErr("adx_period", "must be positive")
	}
	if cfg.SupertrendPeriod <= 0 {
		return nil, configErr("supertrend_period", "must be positive")
	}
	if cfg.SupertrendMultiplier <= 0 || math.IsNaN(cfg.SupertrendMultiplier) {
		return nil, configErr("supertrend_multiplier", "must be positive")
	}
	if cfg.RSIPeriod <= 0 {
		return nil, configErr("rsi_period", "must be positive")
	}
	return &TrendAnalyzer{cfg: cfg}, nil
}

// MinBars returns the shortest series the analyzer accepts
func (a *TrendAnalyzer) MinBars() int {
	return max(a.cfg.ATRPeriod, 2*a.cfg.ADXPeriod-1, a.cfg.SupertrendPeriod, a.cfg.RSIPeriod)
}

// Analyze computes the trend readings for the latest bar of a series
func (a *TrendAnalyzer) Analyze(series *models.TimeSeries) (*models.TrendResult, error) {
	if n := series.Len(); n < a.MinBars() {
		return nil, &models.InsufficientDataError{Indicator: "trend", Required: a.MinBars(), Available: n}
	}

	atr, err := signals.ATR(series.Bars, a.cfg.ATRPeriod)
	if err != nil {
		return nil, fmt.Errorf("failed to compute ATR for %s: %w", series.Ticker, err)
	}

	adx, err := signals.ADX(series.Bars, a.cfg.ADXPeriod)
	if err != nil {
		return nil, fmt.Errorf("failed to compute ADX for %s: %w", series.Ticker, err)
	}

	st, err := signals.Supertrend(series.Bars, a.cfg.SupertrendPeriod, a.cfg.SupertrendMultiplier)
	if err != nil {
		return nil, fmt.Errorf("failed to compute Supertrend for %s: %w", series.Ticker, err)
	}

	rsi, err := signals.RSI(series.Closes(), a.cfg.RSIPeriod)
	if err != nil {
		return nil, fmt.Errorf("failed to compute RSI for %s: %w", series.Ticker, err)
	}

	adxValue := adx.ADX.Last()
	return &models.TrendResult{
		Ticker:              series.Ticker,
		ATR:                 math.Max(0, atr.Last()),
		ADX:                 adxValue,
		PlusDI:              adx.PlusDI.Last(),
		MinusDI:             adx.MinusDI.Last(),
		SupertrendDirection: st.LastDirection(),
		SupertrendLevel:     st.Level.Last(),
		Strength:            classifyStrength(adxValue),
		RSI:                 round1(rsi.Last()),
		RSIState:            signals.ClassifyRSI(rsi.Last(), trendRSIOverbought, trendRSIOversold),
	}, nil
}

func classifyStrength(adx float64) models.TrendStrength {
	switch {
	case adx >= adxStrong:
		return models.StrengthStrong
	case adx >= adxModerate:
		return models.StrengthModerate
	default:
		return models.StrengthWeak
	}
}
