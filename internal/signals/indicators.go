// Package signals provides technical indicator calculations
package signals

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/hwanginhyeok/stock/internal/models"
)

// Series is an indicator output aligned index-for-index with its input.
// Values before Start are warm-up slots and hold zero.
type Series struct {
	Values []float64
	Start  int
}

// Len returns the number of slots in the series
func (s Series) Len() int {
	return len(s.Values)
}

// Valid reports whether slot i holds a defined value
func (s Series) Valid(i int) bool {
	return i >= s.Start && i < len(s.Values)
}

// Last returns the most recent value, or 0 when no slot is defined
func (s Series) Last() float64 {
	if len(s.Values) == 0 || s.Start >= len(s.Values) {
		return 0
	}
	return s.Values[len(s.Values)-1]
}

// Prev returns the value one slot before the last and whether it is defined
func (s Series) Prev() (float64, bool) {
	i := len(s.Values) - 2
	if !s.Valid(i) {
		return 0, false
	}
	return s.Values[i], true
}

// Defined returns the defined tail of the series
func (s Series) Defined() []float64 {
	if s.Start >= len(s.Values) {
		return nil
	}
	return s.Values[s.Start:]
}

func requireLength(name string, period, required, available int) error {
	if period <= 0 || available < required {
		return &models.InsufficientDataError{Indicator: name, Required: required, Available: available}
	}
	return nil
}

// SMA calculates the Simple Moving Average over a rolling window
func SMA(values []float64, period int) (Series, error) {
	if err := requireLength("sma", period, period, len(values)); err != nil {
		return Series{}, err
	}

	out := make([]float64, len(values))
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return Series{Values: out, Start: period - 1}, nil
}

// ewm runs an exponentially weighted mean seeded with the first value
func ewm(values []float64, alpha float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	avg := values[0]
	out[0] = avg
	for i := 1; i < len(values); i++ {
		avg += alpha * (values[i] - avg)
		out[i] = avg
	}
	return out
}

// EMA calculates the Exponential Moving Average with alpha = 2/(period+1),
// seeded with the first value
func EMA(values []float64, period int) (Series, error) {
	if err := requireLength("ema", period, period, len(values)); err != nil {
		return Series{}, err
	}
	out := ewm(values, 2.0/float64(period+1))
	zeroBefore(out, period-1)
	return Series{Values: out, Start: period - 1}, nil
}

// RSI calculates the Relative Strength Index using Wilder smoothing.
// A zero average loss yields 100 when there were gains and 50 when the
// price never moved.
func RSI(values []float64, period int) (Series, error) {
	if err := requireLength("rsi", period, period, len(values)); err != nil {
		return Series{}, err
	}

	gains := make([]float64, len(values))
	losses := make([]float64, len(values))
	for i := 1; i < len(values); i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			gains[i] = change
		} else {
			losses[i] = -change
		}
	}

	alpha := 1.0 / float64(period)
	avgGain := ewm(gains, alpha)
	avgLoss := ewm(losses, alpha)

	out := make([]float64, len(values))
	for i := period - 1; i < len(values); i++ {
		if avgLoss[i] == 0 {
			if avgGain[i] == 0 {
				out[i] = 50
			} else {
				out[i] = 100
			}
			continue
		}
		rs := avgGain[i] / avgLoss[i]
		out[i] = 100 - (100 / (1 + rs))
	}
	return Series{Values: out, Start: period - 1}, nil
}

// MACDResult holds the three MACD series
type MACDResult struct {
	Line      Series
	Signal    Series
	Histogram Series
}

// MACD calculates Moving Average Convergence Divergence.
// The line is EMA(fast) - EMA(slow) and the signal is EMA(signal) of the line.
func MACD(values []float64, fast, slow, signal int) (MACDResult, error) {
	if fast <= 0 || slow <= 0 || signal <= 0 || fast >= slow {
		return MACDResult{}, &models.InsufficientDataError{Indicator: "macd", Required: slow + signal - 1, Available: len(values)}
	}
	if err := requireLength("macd", slow, slow+signal-1, len(values)); err != nil {
		return MACDResult{}, err
	}

	fastEMA := ewm(values, 2.0/float64(fast+1))
	slowEMA := ewm(values, 2.0/float64(slow+1))

	line := make([]float64, len(values))
	for i := range values {
		line[i] = fastEMA[i] - slowEMA[i]
	}
	sig := ewm(line, 2.0/float64(signal+1))
	hist := make([]float64, len(values))
	for i := range values {
		hist[i] = line[i] - sig[i]
	}

	lineStart := slow - 1
	sigStart := slow + signal - 2
	zeroBefore(line, lineStart)
	zeroBefore(sig, sigStart)
	zeroBefore(hist, sigStart)

	return MACDResult{
		Line:      Series{Values: line, Start: lineStart},
		Signal:    Series{Values: sig, Start: sigStart},
		Histogram: Series{Values: hist, Start: sigStart},
	}, nil
}

// BollingerResult holds the three band series
type BollingerResult struct {
	Lower Series
	Mid   Series
	Upper Series
}

// Bollinger calculates Bollinger Bands as SMA +/- k sample standard deviations
func Bollinger(values []float64, period int, k float64) (BollingerResult, error) {
	if err := requireLength("bollinger", period, period, len(values)); err != nil {
		return BollingerResult{}, err
	}

	lower := make([]float64, len(values))
	mid := make([]float64, len(values))
	upper := make([]float64, len(values))
	for i := period - 1; i < len(values); i++ {
		window := values[i-period+1 : i+1]
		mean, std := stat.MeanStdDev(window, nil)
		if math.IsNaN(std) {
			std = 0
		}
		mid[i] = mean
		lower[i] = mean - k*std
		upper[i] = mean + k*std
	}

	start := period - 1
	return BollingerResult{
		Lower: Series{Values: lower, Start: start},
		Mid:   Series{Values: mid, Start: start},
		Upper: Series{Values: upper, Start: start},
	}, nil
}

// TrueRange returns the per-bar true range. The first bar uses high - low.
func TrueRange(bars []models.Bar) []float64 {
	tr := make([]float64, len(bars))
	for i, b := range bars {
		if i == 0 {
			tr[i] = b.High - b.Low
			continue
		}
		prevClose := bars[i-1].Close
		tr[i] = math.Max(b.High-b.Low, math.Max(math.Abs(b.High-prevClose), math.Abs(b.Low-prevClose)))
	}
	return tr
}

// ATR calculates the Wilder-smoothed Average True Range
func ATR(bars []models.Bar, period int) (Series, error) {
	if err := requireLength("atr", period, period, len(bars)); err != nil {
		return Series{}, err
	}
	out := ewm(TrueRange(bars), 1.0/float64(period))
	zeroBefore(out, period-1)
	return Series{Values: out, Start: period - 1}, nil
}

// ADXResult holds the directional movement series
type ADXResult struct {
	ADX     Series
	PlusDI  Series
	MinusDI Series
}

// ADX calculates the Average Directional Index with +DI and -DI.
// All outputs are clamped to [0,100]; a zero ATR or zero DI sum yields 0.
func ADX(bars []models.Bar, period int) (ADXResult, error) {
	if err := requireLength("adx", period, 2*period-1, len(bars)); err != nil {
		return ADXResult{}, err
	}

	n := len(bars)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		up := bars[i].High - bars[i-1].High
		down := bars[i-1].Low - bars[i].Low
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}

	alpha := 1.0 / float64(period)
	atr := ewm(TrueRange(bars), alpha)
	sPlus := ewm(plusDM, alpha)
	sMinus := ewm(minusDM, alpha)

	diStart := period - 1
	plusDI := make([]float64, n)
	minusDI := make([]float64, n)
	dx := make([]float64, n-diStart)
	for i := diStart; i < n; i++ {
		if atr[i] > 0 {
			plusDI[i] = clamp(100*sPlus[i]/atr[i], 0, 100)
			minusDI[i] = clamp(100*sMinus[i]/atr[i], 0, 100)
		}
		if sum := plusDI[i] + minusDI[i]; sum > 0 {
			dx[i-diStart] = 100 * math.Abs(plusDI[i]-minusDI[i]) / sum
		}
	}

	adxStart := 2*period - 2
	adx := make([]float64, n)
	for i, v := range ewm(dx, alpha) {
		if idx := i + diStart; idx >= adxStart {
			adx[idx] = clamp(v, 0, 100)
		}
	}

	return ADXResult{
		ADX:     Series{Values: adx, Start: adxStart},
		PlusDI:  Series{Values: plusDI, Start: diStart},
		MinusDI: Series{Values: minusDI, Start: diStart},
	}, nil
}

// SupertrendResult holds the trailing stop level and direction per bar.
// Direction is +1 for up and -1 for down; warm-up slots hold 0.
type SupertrendResult struct {
	Level     Series
	Direction []int
}

// LastDirection returns the direction of the most recent bar
func (r SupertrendResult) LastDirection() models.TrendDirection {
	if len(r.Direction) > 0 && r.Direction[len(r.Direction)-1] > 0 {
		return models.DirectionUp
	}
	return models.DirectionDown
}

// Supertrend calculates the ATR-based Supertrend with hl2 +/- multiplier*ATR bands
func Supertrend(bars []models.Bar, period int, multiplier float64) (SupertrendResult, error) {
	atr, err := ATR(bars, period)
	if err != nil {
		return SupertrendResult{}, err
	}

	closes := make([]float64, len(bars))
	upper := make([]float64, len(bars))
	lower := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
		if i < atr.Start {
			continue
		}
		hl2 := (b.High + b.Low) / 2
		upper[i] = hl2 + multiplier*atr.Values[i]
		lower[i] = hl2 - multiplier*atr.Values[i]
	}

	return supertrend(closes, upper, lower, atr.Start), nil
}

// SupertrendFromBands runs the Supertrend direction logic over precomputed
// basic bands. The direction flips only when a close strictly crosses the
// active band; touching it does not.
func SupertrendFromBands(closes, upper, lower []float64) (SupertrendResult, error) {
	if len(closes) == 0 || len(upper) != len(closes) || len(lower) != len(closes) {
		return SupertrendResult{}, &models.InsufficientDataError{Indicator: "supertrend", Required: 1, Available: len(closes)}
	}
	return supertrend(closes, slices.Clone(upper), slices.Clone(lower), 0), nil
}

func supertrend(closes, upper, lower []float64, start int) SupertrendResult {
	n := len(closes)
	level := make([]float64, n)
	dir := make([]int, n)

	for i := start; i < n; i++ {
		if i > start {
			// Final bands only tighten unless the previous close broke through
			if !(lower[i] > lower[i-1] || closes[i-1] < lower[i-1]) {
				lower[i] = lower[i-1]
			}
			if !(upper[i] < upper[i-1] || closes[i-1] > upper[i-1]) {
				upper[i] = upper[i-1]
			}
		}

		up := i > start && dir[i-1] > 0
		switch {
		case !up && closes[i] > upper[i]:
			up = true
		case up && closes[i] < lower[i]:
			up = false
		}

		if up {
			dir[i] = 1
			level[i] = lower[i]
		} else {
			dir[i] = -1
			level[i] = upper[i]
		}
	}

	return SupertrendResult{Level: Series{Values: level, Start: start}, Direction: dir}
}

// Returns computes percentage change over lookback bars
func Returns(values []float64, lookback int) (Series, error) {
	if err := requireLength("returns", lookback, lookback+1, len(values)); err != nil {
		return Series{}, err
	}
	out := make([]float64, len(values))
	for i := lookback; i < len(values); i++ {
		if prev := values[i-lookback]; prev != 0 {
			out[i] = (values[i] - prev) / prev * 100
		}
	}
	return Series{Values: out, Start: lookback}, nil
}

// DetectCrossover compares the last two defined slots of a short and long
// moving average. Returns "golden_cross", "death_cross", or "none".
func DetectCrossover(short, long Series) string {
	prevShort, okShort := short.Prev()
	prevLong, okLong := long.Prev()
	if !okShort || !okLong {
		return "none"
	}
	shortNow, longNow := short.Last(), long.Last()

	// Golden cross: short crosses above long
	if prevShort <= prevLong && shortNow > longNow {
		return "golden_cross"
	}

	// Death cross: short crosses below long
	if prevShort >= prevLong && shortNow < longNow {
		return "death_cross"
	}

	return "none"
}

// ClassifyRSI classifies an RSI value against the given bounds
func ClassifyRSI(rsi, overbought, oversold float64) models.RSIState {
	if rsi >= overbought {
		return models.RSIOverbought
	}
	if rsi <= oversold {
		return models.RSIOversold
	}
	return models.RSINeutral
}

// DistanceToSMA calculates percentage distance from current price to SMA
func DistanceToSMA(currentPrice, sma float64) float64 {
	if sma == 0 {
		return 0
	}
	return ((currentPrice - sma) / sma) * 100
}

func zeroBefore(values []float64, start int) {
	for i := 0; i < start && i < len(values); i++ {
		values[i] = 0
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
