package interfaces

import (
	"context"
	"time"

	"github.com/hwanginhyeok/stock/internal/models"
)

// TechnicalScorer scores a price series from its indicators
type TechnicalScorer interface {
	MinBars() int
	Analyze(series *models.TimeSeries) (*models.TechnicalResult, error)
}

// TrendScorer measures trend direction and strength
type TrendScorer interface {
	MinBars() int
	Analyze(series *models.TimeSeries) (*models.TrendResult, error)
}

// FundamentalScorer scores a company snapshot, optionally against a peer baseline
type FundamentalScorer interface {
	Analyze(snap *models.Fundamentals, baseline *models.FundamentalBaseline) (*models.FundamentalResult, error)
}

// SignalService runs the full analysis pipeline
type SignalService interface {
	// AnalyzeTicker produces and emits one analysis record
	AnalyzeTicker(ctx context.Context, req AnalysisRequest) (*models.AnalysisRecord, error)

	// ScreenTickers analyzes tickers in parallel and returns them ranked
	ScreenTickers(ctx context.Context, reqs []AnalysisRequest) ([]*models.AnalysisRecord, error)

	// MarketSentiment builds the fear/greed index and market diagnosis
	MarketSentiment(ctx context.Context, req SentimentRequest) (*models.MarketSentimentReport, error)

	// Invalidate drops every cached entry for a ticker
	Invalidate(ctx context.Context, source, ticker string) (int, error)
}

// AnalysisRequest selects a ticker and optional extra inputs
type AnalysisRequest struct {
	Source           string
	Ticker           string
	Granularity      models.Granularity
	Period           string
	AsOf             time.Time
	NewsSentiment    *float64 // in [-1, 1]; nil when no news score is available
	Baseline         *models.FundamentalBaseline
	SkipFundamentals bool
}

// SentimentRequest names the volatility gauge and the indices feeding the
// market sentiment index
type SentimentRequest struct {
	Source      string
	Volatility  string   // e.g. ^VIX
	Indices     []string // e.g. ^KS11, ^KQ11
	Granularity models.Granularity
	Period      string
	AsOf        time.Time
}
