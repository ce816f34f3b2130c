package analysis

import (
	"math/rand/v2"
	"time"

	"github.com/hwanginhyeok/stock/internal/models"
)

func makeSeries(ticker string, closes []float64) *models.TimeSeries {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, len(closes))
	for i, c := range closes {
		bars[i] = models.Bar{
			Timestamp: start.AddDate(0, 0, i),
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    1000,
		}
	}
	return &models.TimeSeries{Ticker: ticker, Source: "test", Granularity: models.GranularityDaily, Bars: bars}
}

func linearCloses(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

func flatThenJump(flat, jump float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = flat
	}
	out[n-1] = jump
	return out
}

func randomCloses(r *rand.Rand, n int) []float64 {
	out := make([]float64, n)
	price := 20 + r.Float64()*200
	for i := range out {
		price *= 1 + (r.Float64()-0.5)*0.1
		out[i] = price
	}
	return out
}
