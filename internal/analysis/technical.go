// Package analysis turns indicator series and company metrics into bounded scores
package analysis

import (
	"fmt"
	"math"
	"slices"

	"github.com/hwanginhyeok/stock/internal/common"
	"github.com/hwanginhyeok/stock/internal/models"
	"github.com/hwanginhyeok/stock/internal/signals"
)

const weightTolerance = 1e-6

// Points added or removed per SMA the price sits above or below
const trendStep = 12.0

// smaTolerance is the relative distance under which a price sits on its SMA
// and a Bollinger band counts as zero width
const smaTolerance = 1e-9

// TechnicalAnalyzer scores a price series from its indicator set
type TechnicalAnalyzer struct {
	cfg      common.TechnicalConfig
	computer *signals.Computer
	minBars  int
}

// NewTechnicalAnalyzer validates the configuration and creates an analyzer
func NewTechnicalAnalyzer(cfg common.TechnicalConfig) (*TechnicalAnalyzer, error) {
	if err := validateTechnical(cfg); err != nil {
		return nil, err
	}

	computer := signals.NewComputer(signals.Params{
		SMAPeriods:      slices.Clone(cfg.SMAPeriods),
		EMAPeriods:      slices.Clone(cfg.EMAPeriods),
		RSIPeriod:       cfg.RSIPeriod,
		MACDFast:        cfg.MACD.Fast,
		MACDSlow:        cfg.MACD.Slow,
		MACDSignal:      cfg.MACD.Signal,
		BollingerPeriod: cfg.Bollinger.Period,
		BollingerK:      cfg.Bollinger.StdDev,
	})

	return &TechnicalAnalyzer{
		cfg:      cfg,
		computer: computer,
		minBars:  max(cfg.MinBars, computer.Params().MinBars()),
	}, nil
}

func validateTechnical(cfg common.TechnicalConfig) error {
	configErr := func(field, reason string) error {
		return &models.ConfigurationError{Component: "technical", Field: field, Reason: reason}
	}

	w := cfg.Weights
	for name, v := range map[string]float64{"rsi": w.RSI, "macd": w.MACD, "trend": w.Trend, "bollinger": w.Bollinger} {
		if v < 0 || math.IsNaN(v) {
			return configErr("weights."+name, "must be non-negative")
		}
	}
	if sum := w.RSI + w.MACD + w.Trend + w.Bollinger; math.Abs(sum-1) > weightTolerance {
		return configErr("weights", fmt.Sprintf("must sum to 1.0, got %.6f", sum))
	}

	if len(cfg.SMAPeriods) == 0 {
		return configErr("sma_periods", "at least one period is required")
	}
	for _, p := range append(slices.Clone(cfg.SMAPeriods), cfg.EMAPeriods...) {
		if p <= 0 {
			return configErr("sma_periods/ema_periods", fmt.Sprintf("period %d must be positive", p))
		}
	}
	if cfg.RSIPeriod <= 0 {
		return configErr("rsi_period", "must be positive")
	}
	if !(cfg.RSIOversold > 0 && cfg.RSIOversold < 50 && cfg.RSIOverbought > 50 && cfg.RSIOverbought < 100) {
		return configErr("rsi_oversold/rsi_overbought", "must satisfy 0 < oversold < 50 < overbought < 100")
	}
	if cfg.MACD.Fast <= 0 || cfg.MACD.Signal <= 0 || cfg.MACD.Fast >= cfg.MACD.Slow {
		return configErr("macd", "periods must be positive with fast < slow")
	}
	if cfg.Bollinger.Period < 2 || cfg.Bollinger.StdDev <= 0 {
		return configErr("bollinger", "period must be at least 2 and std_dev positive")
	}
	if cfg.MomentumScale <= 0 {
		return configErr("momentum_scale", "must be positive")
	}
	if cfg.MinBars < 0 {
		return configErr("min_bars", "must not be negative")
	}
	for _, pair := range cfg.GoldenCrossPairs {
		if pair[0] >= pair[1] {
			return configErr("golden_cross_pairs", fmt.Sprintf("short period %d must be below long period %d", pair[0], pair[1]))
		}
		if !slices.Contains(cfg.SMAPeriods, pair[0]) || !slices.Contains(cfg.SMAPeriods, pair[1]) {
			return configErr("golden_cross_pairs", fmt.Sprintf("pair %d/%d must use configured sma_periods", pair[0], pair[1]))
		}
	}

	th := cfg.Thresholds
	if !(th.Bearish >= 0 && th.Bearish < th.Bullish && th.Bullish <= 100) {
		return configErr("thresholds", "must satisfy 0 <= bearish < bullish <= 100")
	}
	return nil
}

// MinBars returns the shortest series the analyzer accepts
func (a *TechnicalAnalyzer) MinBars() int {
	return a.minBars
}

// Analyze computes the technical score for a series
func (a *TechnicalAnalyzer) Analyze(series *models.TimeSeries) (*models.TechnicalResult, error) {
	if n := series.Len(); n < a.minBars {
		return nil, &models.InsufficientDataError{Indicator: "technical", Required: a.minBars, Available: n}
	}

	snap, err := a.computer.Compute(series.Closes())
	if err != nil {
		return nil, fmt.Errorf("failed to compute indicators for %s: %w", series.Ticker, err)
	}

	price := snap.Close
	rsiSub := rsiScore(snap.RSI.Last(), a.cfg.RSIOversold, a.cfg.RSIOverbought)
	if snap.Flat {
		// RSI has no gains or losses to compare
		rsiSub = models.NeutralScore
	}
	subScores := map[string]float64{
		models.SubScoreRSI:       rsiSub,
		models.SubScoreMACD:      macdScore(snap.MACD.Histogram.Last(), price, a.cfg.MomentumScale),
		models.SubScoreTrend:     trendScore(price, snap),
		models.SubScoreBollinger: bollingerScore(price, snap.Bollinger.Lower.Last(), snap.Bollinger.Upper.Last()),
	}

	w := a.cfg.Weights
	total := w.RSI*subScores[models.SubScoreRSI] +
		w.MACD*subScores[models.SubScoreMACD] +
		w.Trend*subScores[models.SubScoreTrend] +
		w.Bollinger*subScores[models.SubScoreBollinger]
	score := round1(clampScore(total))

	return &models.TechnicalResult{
		Score:      score,
		SubScores:  subScores,
		Signal:     a.classify(score),
		Indicators: snap.Latest(),
		Events:     a.detectEvents(snap),
		Close:      price,
		Bars:       series.Len(),
	}, nil
}

func (a *TechnicalAnalyzer) classify(score float64) models.TechnicalSignal {
	switch {
	case score >= a.cfg.Thresholds.Bullish:
		return models.SignalBullish
	case score <= a.cfg.Thresholds.Bearish:
		return models.SignalBearish
	default:
		return models.SignalNeutral
	}
}

func (a *TechnicalAnalyzer) detectEvents(snap *signals.Snapshot) []string {
	if snap.Flat {
		return nil
	}
	var events []string

	rsi := snap.RSI.Last()
	if rsi >= a.cfg.RSIOverbought {
		events = append(events, "rsi_overbought")
	} else if rsi <= a.cfg.RSIOversold {
		events = append(events, "rsi_oversold")
	}

	line, sig := snap.MACD.Line.Last(), snap.MACD.Signal.Last()
	if line > sig {
		events = append(events, "macd_bullish")
	} else if line < sig {
		events = append(events, "macd_bearish")
	}

	for _, pair := range a.cfg.GoldenCrossPairs {
		switch signals.DetectCrossover(snap.SMA[pair[0]], snap.SMA[pair[1]]) {
		case "golden_cross":
			events = append(events, fmt.Sprintf("golden_cross_sma%d_sma%d", pair[0], pair[1]))
		case "death_cross":
			events = append(events, fmt.Sprintf("death_cross_sma%d_sma%d", pair[0], pair[1]))
		}
	}

	if snap.Close > snap.Bollinger.Upper.Last() {
		events = append(events, "bollinger_upper_breakout")
	}
	if snap.Close < snap.Bollinger.Lower.Last() {
		events = append(events, "bollinger_lower_breakout")
	}

	return events
}

// rsiScore peaks at 100 for RSI 50 and falls to 60 at either bound.
// Beyond a bound the score starts at 40 and reaches 0 at RSI 0 or 100.
func rsiScore(rsi, oversold, overbought float64) float64 {
	switch {
	case math.IsNaN(rsi):
		return models.NeutralScore
	case rsi > overbought:
		return clampScore(40 * (100 - rsi) / (100 - overbought))
	case rsi < oversold:
		return clampScore(40 * rsi / oversold)
	case rsi <= 50:
		return 60 + 40*(rsi-oversold)/(50-oversold)
	default:
		return 60 + 40*(overbought-rsi)/(overbought-50)
	}
}

// macdScore maps the histogram as a percentage of price through tanh
func macdScore(histogram, price, scale float64) float64 {
	if price == 0 || math.IsNaN(histogram) {
		return models.NeutralScore
	}
	pct := histogram / price * 100
	return clampScore(50 + 50*math.Tanh(pct/scale))
}

// trendScore moves 12 points per SMA the price is above or below. A price
// on the SMA moves nothing.
func trendScore(price float64, snap *signals.Snapshot) float64 {
	score := models.NeutralScore
	for _, period := range snap.SMAPeriods() {
		sma := snap.SMA[period].Last()
		if sma <= 0 {
			continue
		}
		switch {
		case math.Abs(price-sma) <= smaTolerance*sma:
		case price > sma:
			score += trendStep
		default:
			score -= trendStep
		}
	}
	return clampScore(score)
}

// bollingerScore rewards closes near the lower band (mean reversion)
func bollingerScore(price, lower, upper float64) float64 {
	width := upper - lower
	if width <= smaTolerance*math.Abs(upper+lower)/2 || math.IsNaN(width) {
		return models.NeutralScore
	}
	position := (price - lower) / width
	return clampScore((1-position)*80 + 10)
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) {
		return models.NeutralScore
	}
	return math.Max(0, math.Min(100, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
