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

func newSentiment(t *testing.T) *SentimentIndex {
	t.Helper()
	s, err := NewSentimentIndex(common.NewDefaultConfig().Sentiment)
	require.NoError(t, err)
	return s
}

func TestSentimentIndex_Compute(t *testing.T) {
	tests := []struct {
		name     string
		in       SentimentInputs
		score    float64
		label    models.SentimentLabel
		volScore float64
	}{
		{"calm market", SentimentInputs{Volatility: 10, RSI: 50, Momentum: 0}, 70, models.LabelGreed, 100},
		{"stressed market", SentimentInputs{Volatility: 40, RSI: 30, Momentum: -10}, 16, models.LabelExtremeFear, 10},
		{"floors at zero", SentimentInputs{Volatility: 100, RSI: -5, Momentum: -100}, 0, models.LabelExtremeFear, 0},
		{"caps at hundred", SentimentInputs{Volatility: 0, RSI: 150, Momentum: 100}, 100, models.LabelExtremeGreed, 100},
		{"middle of the road", SentimentInputs{Volatility: 25, RSI: 50, Momentum: 0}, 52, models.LabelNeutral, 55},
	}

	s := newSentiment(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := s.Compute(tt.in)
			assert.InDelta(t, tt.score, result.Score, 0.05)
			assert.Equal(t, tt.label, result.Label)
			assert.InDelta(t, tt.volScore, result.Volatility.Score, 0.05)
		})
	}
}

func TestSentimentIndex_Label(t *testing.T) {
	s := newSentiment(t)

	tests := []struct {
		score float64
		want  models.SentimentLabel
	}{
		{0, models.LabelExtremeFear},
		{24.9, models.LabelExtremeFear},
		{25, models.LabelFear},
		{44.9, models.LabelFear},
		{45, models.LabelNeutral},
		{55, models.LabelNeutral},
		{55.1, models.LabelGreed},
		{75, models.LabelGreed},
		{75.1, models.LabelExtremeGreed},
		{100, models.LabelExtremeGreed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.Label(tt.score), "score=%v", tt.score)
	}
}

func TestSentimentIndex_ConfiguredCutPoints(t *testing.T) {
	cfg := common.NewDefaultConfig().Sentiment
	cfg.Labels = common.SentimentLabels{ExtremeFear: 20, Fear: 40, Greed: 60, ExtremeGreed: 80}
	s, err := NewSentimentIndex(cfg)
	require.NoError(t, err)

	assert.Equal(t, models.LabelNeutral, s.Label(58))
	assert.Equal(t, models.LabelFear, s.Label(22))
}

func TestNewSentimentIndex_Validation(t *testing.T) {
	cfg := common.NewDefaultConfig().Sentiment
	cfg.Labels.Fear = 80

	_, err := NewSentimentIndex(cfg)
	var cfgErr *models.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "labels", cfgErr.Field)
}

func TestSentimentIndex_FromSeries(t *testing.T) {
	s := newSentiment(t)
	vix := makeSeries("^VIX", linearCloses(30, -0.5, 21))
	indices := []*models.TimeSeries{
		makeSeries("^GSPC", linearCloses(100, 1, 40)),
		makeSeries("^IXIC", linearCloses(200, 2, 40)),
		makeSeries("SHORT", linearCloses(50, 1, 10)),
	}

	result, err := s.FromSeries(vix, indices)
	require.NoError(t, err)

	assert.Equal(t, 20.0, result.Volatility.Value)
	assert.Equal(t, 70.0, result.Volatility.Score)
	assert.Equal(t, 100.0, result.RSI.Value, "steady rallies have no losses")
	// 20-bar returns: 139/119 and 278/238
	assert.InDelta(t, 16.81, result.Momentum.Value, 0.01)
	assert.Equal(t, 100.0, result.Momentum.Score)
	assert.Equal(t, 88.0, result.Score)
	assert.Equal(t, models.LabelExtremeGreed, result.Label)
}

func TestSentimentIndex_FromSeries_NoUsableIndices(t *testing.T) {
	s := newSentiment(t)

	in, err := s.Inputs(makeSeries("^VIX", []float64{20}), nil)
	require.NoError(t, err)
	assert.Equal(t, SentimentInputs{Volatility: 20, RSI: 50, Momentum: 0}, in)

	result := s.Compute(in)
	assert.Equal(t, 58.0, result.Score)
}

func TestSentimentIndex_FromSeries_EmptyVolatility(t *testing.T) {
	_, err := newSentiment(t).FromSeries(&models.TimeSeries{Ticker: "^VIX"}, nil)
	var insufficient *models.InsufficientDataError
	require.True(t, errors.As(err, &insufficient))
}

func TestSentimentIndex_ScoresBounded(t *testing.T) {
	s := newSentiment(t)
	r := rand.New(rand.NewPCG(9, 9))
	for i := 0; i < 1000; i++ {
		result := s.Compute(SentimentInputs{
			Volatility: r.Float64() * 90,
			RSI:        r.Float64()*140 - 20,
			Momentum:   r.Float64()*60 - 30,
		})
		assert.GreaterOrEqual(t, result.Score, 0.0)
		assert.LessOrEqual(t, result.Score, 100.0)
	}
}

func TestDiagnose(t *testing.T) {
	up := models.TrendResult{SupertrendDirection: models.DirectionUp, RSIState: models.RSINeutral}
	down := models.TrendResult{SupertrendDirection: models.DirectionDown, RSIState: models.RSINeutral}
	upHot := models.TrendResult{SupertrendDirection: models.DirectionUp, RSIState: models.RSIOverbought}
	downCold := models.TrendResult{SupertrendDirection: models.DirectionDown, RSIState: models.RSIOversold}

	tests := []struct {
		name    string
		score   float64
		trends  []models.TrendResult
		verdict models.Verdict
		net     float64
	}{
		{"greed with rising trends", 65, []models.TrendResult{up, up, down}, models.VerdictBullish, 1},
		{"fear with falling trends", 35, []models.TrendResult{down, down, up}, models.VerdictBearish, -1},
		{"extreme greed without trend support", 85, []models.TrendResult{upHot, down}, models.VerdictCautionOverbought, -0.5},
		{"extreme fear without trend support", 15, []models.TrendResult{downCold, up}, models.VerdictOpportunityOversold, 0.5},
		{"mixed", 50, []models.TrendResult{up, down}, models.VerdictNeutral, 0},
		{"no trends", 90, nil, models.VerdictCautionOverbought, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Diagnose(models.SentimentIndexResult{Score: tt.score}, tt.trends)
			assert.Equal(t, tt.verdict, d.Verdict)
			assert.Equal(t, tt.net, d.NetSignal)
			assert.Equal(t, tt.score, d.SentimentScore)
			assert.NotEmpty(t, d.Description)
		})
	}
}
