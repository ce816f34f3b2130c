package models

import (
	"maps"
	"slices"
	"time"
)

// TechnicalSignal buckets a technical score
type TechnicalSignal string

const (
	SignalBullish TechnicalSignal = "bullish"
	SignalBearish TechnicalSignal = "bearish"
	SignalNeutral TechnicalSignal = "neutral"
)

// TrendDirection is the Supertrend direction flag
type TrendDirection string

const (
	DirectionUp   TrendDirection = "up"
	DirectionDown TrendDirection = "down"
)

// SentimentLabel buckets a fear/greed score
type SentimentLabel string

const (
	LabelExtremeFear  SentimentLabel = "extreme_fear"
	LabelFear         SentimentLabel = "fear"
	LabelNeutral      SentimentLabel = "neutral"
	LabelGreed        SentimentLabel = "greed"
	LabelExtremeGreed SentimentLabel = "extreme_greed"
)

// Grade is the screener recommendation
type Grade string

const (
	GradeStrongPositive Grade = "strong_positive"
	GradePositive       Grade = "positive"
	GradeNeutral        Grade = "neutral"
	GradeNegative       Grade = "negative"
)

// Technical sub-score names
const (
	SubScoreRSI       = "rsi"
	SubScoreMACD      = "macd"
	SubScoreTrend     = "trend"
	SubScoreBollinger = "bollinger"
)

// NeutralScore is the value used wherever an input cannot be scored
const NeutralScore = 50.0

// TechnicalResult is the output of the technical analyzer
type TechnicalResult struct {
	Score      float64            `json:"score"`
	SubScores  map[string]float64 `json:"sub_scores"`
	Signal     TechnicalSignal    `json:"signal"`
	Indicators map[string]float64 `json:"indicators,omitempty"`
	Events     []string           `json:"events,omitempty"`
	Close      float64            `json:"close"`
	Bars       int                `json:"bars"`
}

// FundamentalResult is the output of the fundamental analyzer
type FundamentalResult struct {
	Score         float64  `json:"score"`
	Valuation     float64  `json:"valuation"`
	Profitability float64  `json:"profitability"`
	Growth        float64  `json:"growth"`
	Missing       []string `json:"missing,omitempty"`
	Baseline      string   `json:"baseline,omitempty"`
}

// TrendStrength classifies an ADX reading
type TrendStrength string

const (
	StrengthStrong   TrendStrength = "strong"
	StrengthModerate TrendStrength = "moderate"
	StrengthWeak     TrendStrength = "weak"
)

// RSIState classifies an RSI reading
type RSIState string

const (
	RSIOverbought RSIState = "overbought"
	RSIOversold   RSIState = "oversold"
	RSINeutral    RSIState = "neutral"
)

// TrendResult is the output of the trend analyzer
type TrendResult struct {
	Ticker              string         `json:"ticker,omitempty"`
	ATR                 float64        `json:"atr"`
	ADX                 float64        `json:"adx"`
	PlusDI              float64        `json:"plus_di"`
	MinusDI             float64        `json:"minus_di"`
	SupertrendDirection TrendDirection `json:"supertrend_direction"`
	SupertrendLevel     float64        `json:"supertrend_level"`
	Strength            TrendStrength  `json:"strength"`
	RSI                 float64        `json:"rsi"`
	RSIState            RSIState       `json:"rsi_state"`
}

// SentimentComponent is one weighted input of the fear/greed index
type SentimentComponent struct {
	Value float64 `json:"value"`
	Score float64 `json:"score"`
}

// SentimentIndexResult is the composite market fear/greed reading
type SentimentIndexResult struct {
	Score      float64            `json:"score"`
	Label      SentimentLabel     `json:"label"`
	Volatility SentimentComponent `json:"volatility"`
	RSI        SentimentComponent `json:"rsi"`
	Momentum   SentimentComponent `json:"momentum"`
}

// ScreenerResult is the fused recommendation for one ticker
type ScreenerResult struct {
	CompositeScore   float64  `json:"composite_score"`
	Grade            Grade    `json:"grade"`
	TechnicalScore   float64  `json:"technical_score"`
	FundamentalScore float64  `json:"fundamental_score"`
	NewsSentiment    *float64 `json:"news_sentiment,omitempty"`
}

// Verdict is the overall market diagnosis
type Verdict string

const (
	VerdictBullish             Verdict = "bullish"
	VerdictBearish             Verdict = "bearish"
	VerdictCautionOverbought   Verdict = "caution_overbought"
	VerdictOpportunityOversold Verdict = "opportunity_oversold"
	VerdictNeutral             Verdict = "neutral"
)

// MarketDiagnosis combines the sentiment index with per-index trend readings
type MarketDiagnosis struct {
	Verdict        Verdict `json:"verdict"`
	Description    string  `json:"description"`
	SentimentScore float64 `json:"sentiment_score"`
	BullishSignals float64 `json:"bullish_signals"`
	BearishSignals float64 `json:"bearish_signals"`
	NetSignal      float64 `json:"net_signal"`
}

// MarketSentimentReport is the full market-wide output
type MarketSentimentReport struct {
	Index     SentimentIndexResult `json:"index"`
	Trends    []TrendResult        `json:"trends"`
	Diagnosis MarketDiagnosis      `json:"diagnosis"`
	AsOf      time.Time            `json:"as_of"`
}

// AnalysisRecord is the plain record emitted per ticker and date
type AnalysisRecord struct {
	ID          string             `json:"id"`
	Ticker      string             `json:"ticker"`
	Source      string             `json:"source"`
	Date        string             `json:"date"`
	Technical   TechnicalResult    `json:"technical"`
	Trend       *TrendResult       `json:"trend,omitempty"`
	Fundamental *FundamentalResult `json:"fundamental,omitempty"`
	Screener    ScreenerResult     `json:"screener"`
	Degraded    []string           `json:"degraded,omitempty"`
	ComputedAt  time.Time          `json:"computed_at"`
}

// Clone returns a deep copy of the record
func (r *AnalysisRecord) Clone() *AnalysisRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Technical.SubScores = maps.Clone(r.Technical.SubScores)
	c.Technical.Indicators = maps.Clone(r.Technical.Indicators)
	c.Technical.Events = slices.Clone(r.Technical.Events)
	if r.Trend != nil {
		t := *r.Trend
		c.Trend = &t
	}
	if r.Fundamental != nil {
		f := *r.Fundamental
		f.Missing = slices.Clone(r.Fundamental.Missing)
		c.Fundamental = &f
	}
	if r.Screener.NewsSentiment != nil {
		s := *r.Screener.NewsSentiment
		c.Screener.NewsSentiment = &s
	}
	c.Degraded = slices.Clone(r.Degraded)
	return &c
}
