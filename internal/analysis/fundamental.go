package analysis

import (
	"math"

	"github.com/guregu/null/v6"

	"github.com/hwanginhyeok/stock/internal/common"
	"github.com/hwanginhyeok/stock/internal/models"
)

// Fixed category weights
const (
	ValuationWeight     = 0.33
	ProfitabilityWeight = 0.33
	GrowthWeight        = 0.34
)

// Per-percentage-point sensitivities, each capped at categorySwing
const (
	categorySwing     = 25.0
	roeFactor         = 1.5
	marginFactor      = 0.9
	revenueFactor     = 1.2
	earningsFactor    = 0.9
	cheapRatioOfLimit = 0.5
)

// Metric names reported in FundamentalResult.Missing
const (
	MetricPER             = "per"
	MetricPBR             = "pbr"
	MetricROE             = "roe"
	MetricOperatingMargin = "operating_margin"
	MetricRevenueGrowth   = "revenue_growth"
	MetricEarningsGrowth  = "earnings_growth"
)

const fundamentalMetricCount = 6

// FundamentalAnalyzer scores valuation, profitability and growth metrics
type FundamentalAnalyzer struct {
	cfg common.FundamentalConfig
}

// bands are the effective comparison thresholds for one analysis
type bands struct {
	perMax, pbrMax                float64
	roeMin, marginMin             float64
	revenueMin, earningsGrowthMin float64
}

// NewFundamentalAnalyzer validates the configuration and creates an analyzer
func NewFundamentalAnalyzer(cfg common.FundamentalConfig) (*FundamentalAnalyzer, error) {
	configErr := func(field, reason string) error {
		return &models.ConfigurationError{Component: "fundamental", Field: field, Reason: reason}
	}
	if cfg.Valuation.PERMax <= 0 {
		return nil, configErr("valuation.per_max", "must be positive")
	}
	if cfg.Valuation.PBRMax <= 0 {
		return nil, configErr("valuation.pbr_max", "must be positive")
	}
	if cfg.MaxMissingFraction < 0 || cfg.MaxMissingFraction > 1 || math.IsNaN(cfg.MaxMissingFraction) {
		return nil, configErr("max_missing_fraction", "must be within [0,1]")
	}
	return &FundamentalAnalyzer{cfg: cfg}, nil
}

func (a *FundamentalAnalyzer) bandsFor(baseline *models.FundamentalBaseline) bands {
	b := bands{
		perMax:            a.cfg.Valuation.PERMax,
		pbrMax:            a.cfg.Valuation.PBRMax,
		roeMin:            a.cfg.Profitability.ROEMin,
		marginMin:         a.cfg.Profitability.OperatingMarginMin,
		revenueMin:        a.cfg.Growth.RevenueGrowthMin,
		earningsGrowthMin: a.cfg.Growth.EarningsGrowthMin,
	}
	if baseline == nil {
		return b
	}
	if baseline.PERMax.Valid && baseline.PERMax.Float64 > 0 {
		b.perMax = baseline.PERMax.Float64
	}
	if baseline.PBRMax.Valid && baseline.PBRMax.Float64 > 0 {
		b.pbrMax = baseline.PBRMax.Float64
	}
	override := func(dst *float64, v null.Float) {
		if v.Valid && !math.IsNaN(v.Float64) {
			*dst = v.Float64
		}
	}
	override(&b.roeMin, baseline.ROEMin)
	override(&b.marginMin, baseline.OperatingMarginMin)
	override(&b.revenueMin, baseline.RevenueGrowthMin)
	override(&b.earningsGrowthMin, baseline.EarningsGrowthMin)
	return b
}

// Analyze scores a fundamentals snapshot. A non-nil baseline replaces the
// configured band for every metric it carries.
func (a *FundamentalAnalyzer) Analyze(snap *models.Fundamentals, baseline *models.FundamentalBaseline) (*models.FundamentalResult, error) {
	metrics := []struct {
		name  string
		value null.Float
	}{
		{MetricPER, snap.PER},
		{MetricPBR, snap.PBR},
		{MetricROE, snap.ROE},
		{MetricOperatingMargin, snap.OperatingMargin},
		{MetricRevenueGrowth, snap.RevenueGrowth},
		{MetricEarningsGrowth, snap.EarningsGrowth},
	}

	var missing []string
	for _, m := range metrics {
		if !present(m.value) {
			missing = append(missing, m.name)
		}
	}
	if float64(len(missing))/fundamentalMetricCount > a.cfg.MaxMissingFraction {
		return nil, &models.DataInsufficientError{
			Ticker:      snap.Ticker,
			Missing:     missing,
			Total:       fundamentalMetricCount,
			MaxFraction: a.cfg.MaxMissingFraction,
		}
	}

	b := a.bandsFor(baseline)
	valuation := valuationScore(snap.PER, snap.PBR, b)
	profitability := profitabilityScore(snap.ROE, snap.OperatingMargin, b)
	growth := growthScore(snap.RevenueGrowth, snap.EarningsGrowth, b)

	result := &models.FundamentalResult{
		Score:         Combine(valuation, profitability, growth),
		Valuation:     round1(valuation.ValueOrZero()),
		Profitability: round1(profitability.ValueOrZero()),
		Growth:        round1(growth.ValueOrZero()),
		Missing:       missing,
	}
	// Categories without inputs report the neutral score
	if !valuation.Valid {
		result.Valuation = models.NeutralScore
	}
	if !profitability.Valid {
		result.Profitability = models.NeutralScore
	}
	if !growth.Valid {
		result.Growth = models.NeutralScore
	}
	if baseline != nil {
		result.Baseline = baseline.Name
	}
	return result, nil
}

// Combine applies the fixed 33/33/34 weights. A null category counts as 50.
func Combine(valuation, profitability, growth null.Float) float64 {
	orNeutral := func(v null.Float) float64 {
		if !v.Valid || math.IsNaN(v.Float64) {
			return models.NeutralScore
		}
		return clampScore(v.Float64)
	}
	total := ValuationWeight*orNeutral(valuation) +
		ProfitabilityWeight*orNeutral(profitability) +
		GrowthWeight*orNeutral(growth)
	return round1(clampScore(total))
}

func present(v null.Float) bool {
	return v.Valid && !math.IsNaN(v.Float64) && !math.IsInf(v.Float64, 0)
}

// valuationScore rewards PER and PBR below their limits. Non-positive
// multiples (loss-making or negative book) carry no signal.
func valuationScore(per, pbr null.Float, b bands) null.Float {
	if !present(per) && !present(pbr) {
		return null.Float{}
	}
	score := models.NeutralScore
	score += multipleAdjustment(per, b.perMax)
	score += multipleAdjustment(pbr, b.pbrMax)
	return null.FloatFrom(clampScore(score))
}

func multipleAdjustment(v null.Float, limit float64) float64 {
	if !present(v) || v.Float64 <= 0 {
		return 0
	}
	switch {
	case v.Float64 <= limit*cheapRatioOfLimit:
		return categorySwing
	case v.Float64 <= limit:
		return categorySwing * (1 - v.Float64/limit)
	default:
		return -categorySwing
	}
}

func profitabilityScore(roe, margin null.Float, b bands) null.Float {
	if !present(roe) && !present(margin) {
		return null.Float{}
	}
	score := models.NeutralScore
	score += thresholdAdjustment(roe, b.roeMin, roeFactor)
	score += thresholdAdjustment(margin, b.marginMin, marginFactor)
	return null.FloatFrom(clampScore(score))
}

func growthScore(revenue, earnings null.Float, b bands) null.Float {
	if !present(revenue) && !present(earnings) {
		return null.Float{}
	}
	score := models.NeutralScore
	score += thresholdAdjustment(revenue, b.revenueMin, revenueFactor)
	score += thresholdAdjustment(earnings, b.earningsGrowthMin, earningsFactor)
	return null.FloatFrom(clampScore(score))
}

// thresholdAdjustment converts a fractional metric to percent and scores its
// distance from the minimum, capped at categorySwing either way
func thresholdAdjustment(v null.Float, minimum, factor float64) float64 {
	if !present(v) {
		return 0
	}
	pct := v.Float64 * 100
	if pct >= minimum {
		return math.Min(categorySwing, (pct-minimum)*factor)
	}
	return -math.Min(categorySwing, (minimum-pct)*factor)
}
