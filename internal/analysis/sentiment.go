package analysis

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/hwanginhyeok/stock/internal/common"
	"github.com/hwanginhyeok/stock/internal/models"
	"github.com/hwanginhyeok/stock/internal/signals"
)

// Component weights of the fear/greed index
const (
	VolatilityWeight = 0.40
	RSIWeight        = 0.30
	MomentumWeight   = 0.30
)

// Diagnosis cut points on the fear/greed score
const (
	diagnosisGreed        = 60.0
	diagnosisFear         = 40.0
	diagnosisOverheated   = 80.0
	diagnosisCapitulation = 20.0
)

// SentimentInputs are the raw readings the index normalizes
type SentimentInputs struct {
	Volatility float64 // volatility index level, e.g. VIX
	RSI        float64 // broad-market RSI
	Momentum   float64 // broad-market return in percent
}

// SentimentIndex computes the composite fear/greed score
type SentimentIndex struct {
	cfg common.SentimentConfig
}

// NewSentimentIndex validates the configuration and creates an index
func NewSentimentIndex(cfg common.SentimentConfig) (*SentimentIndex, error) {
	configErr := func(field, reason string) error {
		return &models.ConfigurationError{Component: "sentiment", Field: field, Reason: reason}
	}
	l := cfg.Labels
	if !(l.ExtremeFear >= 0 && l.ExtremeFear <= l.Fear && l.Fear <= l.Greed && l.Greed <= l.ExtremeGreed && l.ExtremeGreed <= 100) {
		return nil, configErr("labels", "cut points must ascend within [0,100]")
	}
	if cfg.RSIPeriod <= 0 {
		return nil, configErr("rsi_period", "must be positive")
	}
	if cfg.MomentumLookback <= 0 {
		return nil, configErr("momentum_lookback", "must be positive")
	}
	return &SentimentIndex{cfg: cfg}, nil
}

// Compute normalizes each input to [0,100] and applies the 40/30/30 weights
func (s *SentimentIndex) Compute(in SentimentInputs) models.SentimentIndexResult {
	volScore := normalizeVolatility(in.Volatility)
	rsiScore := normalizeRSI(in.RSI)
	momScore := normalizeMomentum(in.Momentum)

	score := round1(clampScore(VolatilityWeight*volScore + RSIWeight*rsiScore + MomentumWeight*momScore))
	return models.SentimentIndexResult{
		Score:      score,
		Label:      s.Label(score),
		Volatility: models.SentimentComponent{Value: in.Volatility, Score: round1(volScore)},
		RSI:        models.SentimentComponent{Value: round1(in.RSI), Score: round1(rsiScore)},
		Momentum:   models.SentimentComponent{Value: math.Round(in.Momentum*100) / 100, Score: round1(momScore)},
	}
}

// Label buckets a score with the configured cut points
func (s *SentimentIndex) Label(score float64) models.SentimentLabel {
	l := s.cfg.Labels
	switch {
	case score < l.ExtremeFear:
		return models.LabelExtremeFear
	case score < l.Fear:
		return models.LabelFear
	case score <= l.Greed:
		return models.LabelNeutral
	case score <= l.ExtremeGreed:
		return models.LabelGreed
	default:
		return models.LabelExtremeGreed
	}
}

// Inputs derives the index inputs from series: the latest volatility close,
// the mean latest RSI and the mean lookback return across the index series.
// Index series too short for either reading are skipped; when none remain
// the component falls back to its neutral input.
func (s *SentimentIndex) Inputs(volatility *models.TimeSeries, indices []*models.TimeSeries) (SentimentInputs, error) {
	if volatility.Len() == 0 {
		return SentimentInputs{}, &models.InsufficientDataError{Indicator: "volatility", Required: 1, Available: 0}
	}

	var rsis, momenta []float64
	for _, idx := range indices {
		closes := idx.Closes()
		if rsi, err := signals.RSI(closes, s.cfg.RSIPeriod); err == nil {
			rsis = append(rsis, rsi.Last())
		}
		if ret, err := signals.Returns(closes, s.cfg.MomentumLookback); err == nil {
			momenta = append(momenta, ret.Last())
		}
	}

	in := SentimentInputs{
		Volatility: volatility.Last().Close,
		RSI:        models.NeutralScore,
		Momentum:   0,
	}
	if len(rsis) > 0 {
		in.RSI = stat.Mean(rsis, nil)
	}
	if len(momenta) > 0 {
		in.Momentum = stat.Mean(momenta, nil)
	}
	return in, nil
}

// FromSeries derives the inputs from series and computes the index
func (s *SentimentIndex) FromSeries(volatility *models.TimeSeries, indices []*models.TimeSeries) (models.SentimentIndexResult, error) {
	in, err := s.Inputs(volatility, indices)
	if err != nil {
		return models.SentimentIndexResult{}, err
	}
	return s.Compute(in), nil
}

// normalizeVolatility maps 10 to 100 and 43.3 to 0
func normalizeVolatility(v float64) float64 {
	if math.IsNaN(v) {
		return models.NeutralScore
	}
	return clampScore(100 - (v-10)*3)
}

func normalizeRSI(r float64) float64 {
	return clampScore(r)
}

// normalizeMomentum maps -10% to 10, 0% to 50 and +10% to 90
func normalizeMomentum(m float64) float64 {
	if math.IsNaN(m) {
		return models.NeutralScore
	}
	return clampScore(50 + 4*m)
}

// Diagnose combines the index with per-index trend readings into a verdict.
// Supertrend direction counts one signal; an RSI extreme counts half a signal
// against the move.
func Diagnose(index models.SentimentIndexResult, trends []models.TrendResult) models.MarketDiagnosis {
	var bullish, bearish float64
	for _, t := range trends {
		switch t.SupertrendDirection {
		case models.DirectionUp:
			bullish++
		case models.DirectionDown:
			bearish++
		}
		switch t.RSIState {
		case models.RSIOverbought:
			bearish += 0.5
		case models.RSIOversold:
			bullish += 0.5
		}
	}
	net := bullish - bearish

	d := models.MarketDiagnosis{
		SentimentScore: index.Score,
		BullishSignals: bullish,
		BearishSignals: bearish,
		NetSignal:      round1(net),
	}

	score := index.Score
	switch {
	case score >= diagnosisGreed && net > 0:
		d.Verdict = models.VerdictBullish
		d.Description = "Broad strength: sentiment sits in greed and index trends support the advance."
	case score <= diagnosisFear && net < 0:
		d.Verdict = models.VerdictBearish
		d.Description = "Broad weakness: sentiment sits in fear and index trends point lower."
	case score >= diagnosisOverheated:
		d.Verdict = models.VerdictCautionOverbought
		d.Description = "Market is overheated; extreme greed often precedes a correction."
	case score <= diagnosisCapitulation:
		d.Verdict = models.VerdictOpportunityOversold
		d.Description = "Market is in extreme fear; historically a window for long-term entries."
	default:
		d.Verdict = models.VerdictNeutral
		d.Description = "No clear direction; bullish and bearish signals are mixed."
	}
	return d
}
