package analysis

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/hwanginhyeok/stock/internal/common"
	"github.com/hwanginhyeok/stock/internal/models"
)

// Screener fuses technical and fundamental scores into a graded composite
type Screener struct {
	cfg common.ScreeningConfig
}

// NewScreener validates the weight pair and grade thresholds
func NewScreener(cfg common.ScreeningConfig) (*Screener, error) {
	configErr := func(field, reason string) error {
		return &models.ConfigurationError{Component: "screening", Field: field, Reason: reason}
	}
	w := cfg.Weights
	if math.IsNaN(w.Technical) || math.IsNaN(w.Fundamental) || w.Technical < 0 || w.Fundamental < 0 {
		return nil, configErr("weights", "must be non-negative numbers")
	}
	if sum := w.Technical + w.Fundamental; math.Abs(sum-1) > weightTolerance {
		return nil, configErr("weights", fmt.Sprintf("must sum to 1.0, got %.6f", sum))
	}
	if cfg.SentimentWeight < 0 || cfg.SentimentWeight > 1 || math.IsNaN(cfg.SentimentWeight) {
		return nil, configErr("sentiment_weight", "must be within [0,1]")
	}
	th := cfg.Thresholds
	if !(th.StrongPositive <= 100 && th.StrongPositive > th.Positive && th.Positive > th.Neutral && th.Neutral >= 0) {
		return nil, configErr("thresholds", "must satisfy 100 >= strong_positive > positive > neutral >= 0")
	}
	if cfg.TopN < 0 {
		return nil, configErr("top_n", "must not be negative")
	}
	return &Screener{cfg: cfg}, nil
}

// Screen computes the composite score and grade. A news sentiment in
// [-1,1] is blended in when sentiment_weight is positive.
func (s *Screener) Screen(technical, fundamental float64, newsSentiment *float64) models.ScreenerResult {
	tech := clampScore(technical)
	fund := clampScore(fundamental)

	composite := s.cfg.Weights.Technical*tech + s.cfg.Weights.Fundamental*fund

	result := models.ScreenerResult{
		TechnicalScore:   tech,
		FundamentalScore: fund,
	}

	if newsSentiment != nil && !math.IsNaN(*newsSentiment) {
		sentiment := math.Max(-1, math.Min(1, *newsSentiment))
		result.NewsSentiment = &sentiment
		if ws := s.cfg.SentimentWeight; ws > 0 {
			composite = (1-ws)*composite + ws*(50+50*sentiment)
		}
	}

	result.CompositeScore = round1(clampScore(composite))
	result.Grade = s.Grade(result.CompositeScore)
	return result
}

// Grade buckets a composite score with the configured thresholds
func (s *Screener) Grade(score float64) models.Grade {
	th := s.cfg.Thresholds
	switch {
	case score >= th.StrongPositive:
		return models.GradeStrongPositive
	case score >= th.Positive:
		return models.GradePositive
	case score >= th.Neutral:
		return models.GradeNeutral
	default:
		return models.GradeNegative
	}
}

// Rank orders records by composite score (highest first, ticker as tie
// break) and keeps the configured top_n. A top_n of zero keeps everything.
func (s *Screener) Rank(records []*models.AnalysisRecord) []*models.AnalysisRecord {
	ranked := slices.Clone(records)
	slices.SortStableFunc(ranked, func(a, b *models.AnalysisRecord) int {
		if a.Screener.CompositeScore != b.Screener.CompositeScore {
			if a.Screener.CompositeScore > b.Screener.CompositeScore {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Ticker, b.Ticker)
	})
	if s.cfg.TopN > 0 && len(ranked) > s.cfg.TopN {
		ranked = ranked[:s.cfg.TopN]
	}
	return ranked
}
