// Package signals provides signal computation
package signals

import (
	"fmt"
	"math"
	"slices"
)

// Params selects the indicator windows a Computer evaluates
type Params struct {
	SMAPeriods      []int
	EMAPeriods      []int
	RSIPeriod       int
	MACDFast        int
	MACDSlow        int
	MACDSignal      int
	BollingerPeriod int
	BollingerK      float64
}

// MinBars returns the longest window any configured indicator needs
func (p Params) MinBars() int {
	need := max(p.RSIPeriod, p.BollingerPeriod, p.MACDSlow+p.MACDSignal-1)
	for _, period := range p.SMAPeriods {
		need = max(need, period)
	}
	for _, period := range p.EMAPeriods {
		need = max(need, period)
	}
	return need
}

// Snapshot holds every indicator series computed for one close series
type Snapshot struct {
	Close     float64
	Flat      bool // no close-to-close change anywhere in the series
	SMA       map[int]Series
	EMA       map[int]Series
	RSI       Series
	MACD      MACDResult
	Bollinger BollingerResult
}

// Latest returns the most recent value of each indicator keyed by name
// (sma_N, ema_N, rsi, macd, macd_signal, macd_histogram, bb_lower, bb_mid, bb_upper)
func (s *Snapshot) Latest() map[string]float64 {
	out := make(map[string]float64, len(s.SMA)+len(s.EMA)+7)
	for period, series := range s.SMA {
		out[fmt.Sprintf("sma_%d", period)] = round4(series.Last())
	}
	for period, series := range s.EMA {
		out[fmt.Sprintf("ema_%d", period)] = round4(series.Last())
	}
	out["rsi"] = round4(s.RSI.Last())
	out["macd"] = round4(s.MACD.Line.Last())
	out["macd_signal"] = round4(s.MACD.Signal.Last())
	out["macd_histogram"] = round4(s.MACD.Histogram.Last())
	out["bb_lower"] = round4(s.Bollinger.Lower.Last())
	out["bb_mid"] = round4(s.Bollinger.Mid.Last())
	out["bb_upper"] = round4(s.Bollinger.Upper.Last())
	return out
}

// SMAPeriods returns the computed SMA periods in ascending order
func (s *Snapshot) SMAPeriods() []int {
	periods := make([]int, 0, len(s.SMA))
	for p := range s.SMA {
		periods = append(periods, p)
	}
	slices.Sort(periods)
	return periods
}

// Computer computes all configured indicators for a close series
type Computer struct {
	params Params
}

// NewComputer creates a new signal computer
func NewComputer(params Params) *Computer {
	return &Computer{params: params}
}

// Params returns the windows this computer evaluates
func (c *Computer) Params() Params {
	return c.params
}

// Compute calculates all indicator series. The input must be oldest first
// and at least MinBars long.
func (c *Computer) Compute(closes []float64) (*Snapshot, error) {
	p := c.params
	snap := &Snapshot{
		SMA: make(map[int]Series, len(p.SMAPeriods)),
		EMA: make(map[int]Series, len(p.EMAPeriods)),
	}
	if len(closes) > 0 {
		snap.Close = closes[len(closes)-1]
		snap.Flat = !slices.ContainsFunc(closes, func(c float64) bool { return c != closes[0] })
	}

	for _, period := range p.SMAPeriods {
		sma, err := SMA(closes, period)
		if err != nil {
			return nil, err
		}
		snap.SMA[period] = sma
	}

	for _, period := range p.EMAPeriods {
		ema, err := EMA(closes, period)
		if err != nil {
			return nil, err
		}
		snap.EMA[period] = ema
	}

	var err error
	if snap.RSI, err = RSI(closes, p.RSIPeriod); err != nil {
		return nil, err
	}
	if snap.MACD, err = MACD(closes, p.MACDFast, p.MACDSlow, p.MACDSignal); err != nil {
		return nil, err
	}
	if snap.Bollinger, err = Bollinger(closes, p.BollingerPeriod, p.BollingerK); err != nil {
		return nil, err
	}

	return snap, nil
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
