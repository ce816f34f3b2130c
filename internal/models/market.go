// Package models defines data structures for the analysis engine
package models

import (
	"fmt"
	"time"

	"github.com/guregu/null/v6"
)

// Granularity of a price series
type Granularity string

const (
	GranularityDaily   Granularity = "1d"
	GranularityWeekly  Granularity = "1wk"
	GranularityMonthly Granularity = "1mo"
)

// Bar represents a single OHLCV price bar
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
}

// TimeSeries is an ascending (oldest first) OHLCV series for one ticker.
// Calendar gaps are allowed; duplicate or out-of-order timestamps are not.
type TimeSeries struct {
	Ticker      string      `json:"ticker"`
	Source      string      `json:"source"`
	Granularity Granularity `json:"granularity"`
	Bars        []Bar       `json:"bars"`
}

// Len returns the number of bars in the series
func (s *TimeSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Bars)
}

// Validate checks that timestamps are strictly increasing
func (s *TimeSeries) Validate() error {
	for i := 1; i < len(s.Bars); i++ {
		if !s.Bars[i].Timestamp.After(s.Bars[i-1].Timestamp) {
			return fmt.Errorf("series %s: timestamp at row %d (%s) is not after row %d (%s)",
				s.Ticker, i, s.Bars[i].Timestamp.Format(time.RFC3339), i-1, s.Bars[i-1].Timestamp.Format(time.RFC3339))
		}
	}
	return nil
}

// Until returns a copy of the series holding only bars at or before asOf.
// A zero asOf returns a copy of the full series.
func (s *TimeSeries) Until(asOf time.Time) *TimeSeries {
	out := &TimeSeries{
		Ticker:      s.Ticker,
		Source:      s.Source,
		Granularity: s.Granularity,
	}
	n := len(s.Bars)
	if !asOf.IsZero() {
		n = 0
		for n < len(s.Bars) && !s.Bars[n].Timestamp.After(asOf) {
			n++
		}
	}
	out.Bars = make([]Bar, n)
	copy(out.Bars, s.Bars[:n])
	return out
}

// Closes extracts close prices in series order
func (s *TimeSeries) Closes() []float64 {
	closes := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		closes[i] = b.Close
	}
	return closes
}

// Last returns the most recent bar. The series must not be empty.
func (s *TimeSeries) Last() Bar {
	return s.Bars[len(s.Bars)-1]
}

// Fundamentals is a point-in-time snapshot of company metrics.
// Ratios are fractions (0.15 means 15%). Null means the collector had no value.
type Fundamentals struct {
	Ticker          string     `json:"ticker"`
	AsOf            time.Time  `json:"as_of"`
	PER             null.Float `json:"per"`
	PBR             null.Float `json:"pbr"`
	ROE             null.Float `json:"roe"`
	OperatingMargin null.Float `json:"operating_margin"`
	RevenueGrowth   null.Float `json:"revenue_growth"`
	EarningsGrowth  null.Float `json:"earnings_growth"`
	MarketCap       null.Float `json:"market_cap"`
	DividendYield   null.Float `json:"dividend_yield"`
	Sector          string     `json:"sector,omitempty"`
}

// FundamentalBaseline is a peer or sector reference supplied by a collaborator.
// Valid fields replace the configured absolute bands for that metric and use
// the same units (PER/PBR as multiples, the rest in percent).
type FundamentalBaseline struct {
	Name               string     `json:"name"`
	PERMax             null.Float `json:"per_max"`
	PBRMax             null.Float `json:"pbr_max"`
	ROEMin             null.Float `json:"roe_min"`
	OperatingMarginMin null.Float `json:"operating_margin_min"`
	RevenueGrowthMin   null.Float `json:"revenue_growth_min"`
	EarningsGrowthMin  null.Float `json:"earnings_growth_min"`
}
