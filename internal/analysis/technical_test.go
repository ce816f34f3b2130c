package analysis

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hwanginhyeok/stock/internal/common"
	"github.com/hwanginhyeok/stock/internal/models"
)

func newTechnical(t *testing.T) *TechnicalAnalyzer {
	t.Helper()
	a, err := NewTechnicalAnalyzer(common.NewDefaultConfig().Technical)
	require.NoError(t, err)
	return a
}

func TestNewTechnicalAnalyzer_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *common.TechnicalConfig)
		field  string
	}{
		{"weights do not sum to one", func(c *common.TechnicalConfig) { c.Weights.RSI = 0.15 }, "weights"},
		{"negative weight", func(c *common.TechnicalConfig) {
			c.Weights.RSI = -0.25
			c.Weights.MACD = 0.75
		}, "weights.rsi"},
		{"inverted thresholds", func(c *common.TechnicalConfig) {
			c.Thresholds.Bullish = 40
			c.Thresholds.Bearish = 60
		}, "thresholds"},
		{"cross pair outside sma periods", func(c *common.TechnicalConfig) { c.GoldenCrossPairs = [][2]int{{5, 50}} }, "golden_cross_pairs"},
		{"macd fast not below slow", func(c *common.TechnicalConfig) { c.MACD.Fast = 26 }, "macd"},
		{"rsi bounds inverted", func(c *common.TechnicalConfig) {
			c.RSIOverbought = 30
			c.RSIOversold = 70
		}, "rsi_oversold/rsi_overbought"},
		{"zero momentum scale", func(c *common.TechnicalConfig) { c.MomentumScale = 0 }, "momentum_scale"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := common.NewDefaultConfig().Technical
			tt.mutate(&cfg)

			_, err := NewTechnicalAnalyzer(cfg)
			var cfgErr *models.ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "expected ConfigurationError, got %v", err)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestTechnicalAnalyzer_MinBars(t *testing.T) {
	a := newTechnical(t)
	assert.Equal(t, 120, a.MinBars())

	cfg := common.NewDefaultConfig().Technical
	cfg.MinBars = 200
	a, err := NewTechnicalAnalyzer(cfg)
	require.NoError(t, err)
	assert.Equal(t, 200, a.MinBars())
}

func TestTechnicalAnalyzer_RejectsShortSeries(t *testing.T) {
	a := newTechnical(t)

	_, err := a.Analyze(makeSeries("AAA", linearCloses(100, 1, 119)))
	var insufficient *models.InsufficientDataError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, 120, insufficient.Required)
	assert.Equal(t, 119, insufficient.Available)
}

func TestTechnicalAnalyzer_SteadyUptrend(t *testing.T) {
	a := newTechnical(t)

	result, err := a.Analyze(makeSeries("UP", linearCloses(100, 1, 150)))
	require.NoError(t, err)

	assert.Equal(t, 98.0, result.SubScores[models.SubScoreTrend], "close above all four SMAs")
	assert.Equal(t, 0.0, result.SubScores[models.SubScoreRSI], "RSI 100 is maximally overbought")
	assert.Greater(t, result.SubScores[models.SubScoreMACD], 50.0)
	assert.Equal(t, 249.0, result.Close)
	assert.Equal(t, 150, result.Bars)
	assert.Contains(t, result.Events, "rsi_overbought")
	assert.Equal(t, 100.0, result.Indicators["rsi"])
	assert.InDelta(t, 247.0, result.Indicators["sma_5"], 1e-9)
	assert.GreaterOrEqual(t, result.Score, 0.0)
	assert.LessOrEqual(t, result.Score, 100.0)
}

func TestTechnicalAnalyzer_BreakoutEvents(t *testing.T) {
	a := newTechnical(t)

	result, err := a.Analyze(makeSeries("JMP", flatThenJump(150, 200, 130)))
	require.NoError(t, err)

	assert.Contains(t, result.Events, "golden_cross_sma5_sma20")
	assert.Contains(t, result.Events, "golden_cross_sma20_sma60")
	assert.Contains(t, result.Events, "bollinger_upper_breakout")
	assert.Contains(t, result.Events, "macd_bullish")
	assert.Contains(t, result.Events, "rsi_overbought")
}

func TestTechnicalAnalyzer_FlatSeriesIsNeutral(t *testing.T) {
	a := newTechnical(t)

	for _, price := range []float64{50, 100, 100.1} {
		result, err := a.Analyze(makeSeries("FLAT", flatThenJump(price, price, 150)))
		require.NoError(t, err)

		assert.Equal(t, 50.0, result.SubScores[models.SubScoreRSI], "no gains or losses")
		assert.Equal(t, 50.0, result.SubScores[models.SubScoreMACD])
		assert.Equal(t, 50.0, result.SubScores[models.SubScoreTrend], "close sits on every SMA")
		assert.Equal(t, 50.0, result.SubScores[models.SubScoreBollinger], "zero band width")
		assert.Equal(t, 50.0, result.Score)
		assert.Equal(t, models.SignalNeutral, result.Signal)
		assert.Empty(t, result.Events)
	}
}

func TestTechnicalAnalyzer_ScoresBounded(t *testing.T) {
	a := newTechnical(t)
	r := rand.New(rand.NewPCG(7, 11))

	for i := 0; i < 100; i++ {
		result, err := a.Analyze(makeSeries("RND", randomCloses(r, 120+r.IntN(100))))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, result.Score, 0.0)
		assert.LessOrEqual(t, result.Score, 100.0)
		for name, sub := range result.SubScores {
			assert.GreaterOrEqual(t, sub, 0.0, name)
			assert.LessOrEqual(t, sub, 100.0, name)
		}
		assert.Contains(t, []models.TechnicalSignal{models.SignalBullish, models.SignalBearish, models.SignalNeutral}, result.Signal)
	}
}

func TestRSIScore(t *testing.T) {
	tests := []struct {
		rsi      float64
		expected float64
	}{
		{50, 100},
		{40, 80},
		{60, 80},
		{30, 60},
		{70, 60},
		{80, 26.667},
		{20, 26.667},
		{100, 0},
		{0, 0},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.expected, rsiScore(tt.rsi, 30, 70), 0.01, "rsi=%v", tt.rsi)
	}
}

func TestMACDScore(t *testing.T) {
	assert.Equal(t, 50.0, macdScore(0, 100, 1))
	assert.Equal(t, 50.0, macdScore(5, 0, 1), "zero close is neutral")
	assert.InDelta(t, 50+50*0.7616, macdScore(1, 100, 1), 0.01, "1% histogram")
	assert.InDelta(t, 50-50*0.7616, macdScore(-1, 100, 1), 0.01)
	assert.Less(t, macdScore(1, 100, 1), macdScore(2, 100, 1))
}

func TestBollingerScore(t *testing.T) {
	assert.Equal(t, 90.0, bollingerScore(90, 90, 110))
	assert.Equal(t, 10.0, bollingerScore(110, 90, 110))
	assert.Equal(t, 50.0, bollingerScore(100, 90, 110))
	assert.Equal(t, 50.0, bollingerScore(100, 100, 100))
	assert.Equal(t, 50.0, bollingerScore(100.1, 100.1-1e-12, 100.1+1e-12), "rounding noise is zero width")
	assert.Equal(t, 0.0, bollingerScore(200, 90, 110), "far above the band clamps to 0")
}

func TestTechnicalAnalyzer_Classify(t *testing.T) {
	a := newTechnical(t)

	assert.Equal(t, models.SignalBullish, a.classify(60))
	assert.Equal(t, models.SignalNeutral, a.classify(59.9))
	assert.Equal(t, models.SignalNeutral, a.classify(40.1))
	assert.Equal(t, models.SignalBearish, a.classify(40))
}
