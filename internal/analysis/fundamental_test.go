package analysis

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hwanginhyeok/stock/internal/common"
	"github.com/hwanginhyeok/stock/internal/models"
)

func newFundamental(t *testing.T) *FundamentalAnalyzer {
	t.Helper()
	a, err := NewFundamentalAnalyzer(common.NewDefaultConfig().Fundamental)
	require.NoError(t, err)
	return a
}

func healthySnapshot() *models.Fundamentals {
	return &models.Fundamentals{
		Ticker:          "GOOD",
		PER:             null.FloatFrom(10),
		PBR:             null.FloatFrom(1),
		ROE:             null.FloatFrom(0.20),
		OperatingMargin: null.FloatFrom(0.15),
		RevenueGrowth:   null.FloatFrom(0.10),
		EarningsGrowth:  null.FloatFrom(0.20),
	}
}

func TestCombine_MissingCategoryIsNeutral(t *testing.T) {
	score := Combine(null.Float{}, null.FloatFrom(80), null.FloatFrom(70))
	assert.InDelta(t, 50*0.33+80*0.33+70*0.34, score, 0.05)
	assert.Equal(t, 66.7, score)
}

func TestFundamentalAnalyzer_AllMetrics(t *testing.T) {
	result, err := newFundamental(t).Analyze(healthySnapshot(), nil)
	require.NoError(t, err)

	// PER 10 and PBR 1 are both under half their limits
	assert.Equal(t, 100.0, result.Valuation)
	// ROE 20% is 10 points over 10% (x1.5), margin 15% is 5 over 10% (x0.9)
	assert.Equal(t, 69.5, result.Profitability)
	// Revenue 10% is 5 over 5% (x1.2), earnings 20% is 10 over 10% (x0.9)
	assert.Equal(t, 65.0, result.Growth)
	assert.Equal(t, 78.0, result.Score)
	assert.Empty(t, result.Missing)
}

func TestFundamentalAnalyzer_MissingValuation(t *testing.T) {
	snap := healthySnapshot()
	snap.PER = null.Float{}
	snap.PBR = null.Float{}

	result, err := newFundamental(t).Analyze(snap, nil)
	require.NoError(t, err)

	assert.Equal(t, 50.0, result.Valuation)
	assert.Equal(t, []string{MetricPER, MetricPBR}, result.Missing)
	assert.Equal(t, 61.5, result.Score)
}

func TestFundamentalAnalyzer_TooManyMissing(t *testing.T) {
	snap := &models.Fundamentals{Ticker: "THIN", PER: null.FloatFrom(12)}

	_, err := newFundamental(t).Analyze(snap, nil)
	var insufficient *models.DataInsufficientError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, "THIN", insufficient.Ticker)
	assert.Len(t, insufficient.Missing, 5)
	assert.Equal(t, 6, insufficient.Total)
}

func TestFundamentalAnalyzer_HalfMissingIsAllowed(t *testing.T) {
	snap := &models.Fundamentals{
		Ticker:         "HALF",
		PER:            null.FloatFrom(12),
		ROE:            null.FloatFrom(0.1),
		EarningsGrowth: null.FloatFrom(0.1),
	}

	result, err := newFundamental(t).Analyze(snap, nil)
	require.NoError(t, err)
	assert.Len(t, result.Missing, 3)
}

func TestFundamentalAnalyzer_NaNCountsAsMissing(t *testing.T) {
	snap := healthySnapshot()
	snap.ROE = null.FloatFrom(math.NaN())

	result, err := newFundamental(t).Analyze(snap, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{MetricROE}, result.Missing)
	// Margin alone: 50 + 4.5
	assert.Equal(t, 54.5, result.Profitability)
}

func TestFundamentalAnalyzer_Valuation(t *testing.T) {
	tests := []struct {
		name     string
		per, pbr float64
		expected float64
	}{
		{"expensive on both", 60, 10, 0},
		{"between half and limit", 20, 2.5, 50 + 25*(1-20.0/30) + 25},
		{"negative earnings carry no signal", -5, 1, 75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := healthySnapshot()
			snap.PER = null.FloatFrom(tt.per)
			snap.PBR = null.FloatFrom(tt.pbr)

			result, err := newFundamental(t).Analyze(snap, nil)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, result.Valuation, 0.05)
		})
	}
}

func TestFundamentalAnalyzer_BaselineOverridesBands(t *testing.T) {
	snap := healthySnapshot()
	snap.PER = null.FloatFrom(20)
	snap.PBR = null.Float{}

	a := newFundamental(t)

	absolute, err := a.Analyze(snap, nil)
	require.NoError(t, err)
	assert.InDelta(t, 58.3, absolute.Valuation, 0.05)

	baseline := &models.FundamentalBaseline{Name: "semiconductors", PERMax: null.FloatFrom(15)}
	relative, err := a.Analyze(snap, baseline)
	require.NoError(t, err)
	assert.Equal(t, 25.0, relative.Valuation, "PER 20 is above the sector limit of 15")
	assert.Equal(t, "semiconductors", relative.Baseline)
	assert.Equal(t, absolute.Profitability, relative.Profitability, "fields absent from the baseline keep configured bands")
}

func TestFundamentalAnalyzer_Capped(t *testing.T) {
	snap := healthySnapshot()
	snap.ROE = null.FloatFrom(2.0)
	snap.OperatingMargin = null.FloatFrom(-3.0)

	result, err := newFundamental(t).Analyze(snap, nil)
	require.NoError(t, err)
	assert.Equal(t, 50.0, result.Profitability, "each metric moves at most 25 points")
}

func TestFundamentalAnalyzer_ScoresBounded(t *testing.T) {
	a := newFundamental(t)
	r := rand.New(rand.NewPCG(3, 5))
	maybe := func(scale, offset float64) null.Float {
		if r.IntN(5) == 0 {
			return null.Float{}
		}
		return null.FloatFrom(r.Float64()*scale + offset)
	}

	for i := 0; i < 500; i++ {
		snap := &models.Fundamentals{
			Ticker:          "RND",
			PER:             maybe(200, -50),
			PBR:             maybe(40, -5),
			ROE:             maybe(4, -2),
			OperatingMargin: maybe(2, -1),
			RevenueGrowth:   maybe(6, -3),
			EarningsGrowth:  maybe(10, -5),
		}
		result, err := a.Analyze(snap, nil)
		if err != nil {
			var insufficient *models.DataInsufficientError
			require.True(t, errors.As(err, &insufficient))
			continue
		}
		for _, v := range []float64{result.Score, result.Valuation, result.Profitability, result.Growth} {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 100.0)
		}
	}
}

func TestNewFundamentalAnalyzer_Validation(t *testing.T) {
	cfg := common.NewDefaultConfig().Fundamental
	cfg.MaxMissingFraction = 1.5

	_, err := NewFundamentalAnalyzer(cfg)
	var cfgErr *models.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "max_missing_fraction", cfgErr.Field)
}
