package sqlitedb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hwanginhyeok/stock/internal/common"
	"github.com/hwanginhyeok/stock/internal/models"
)

func newTestSink(t *testing.T) *Sink {
	t.Helper()
	s, err := NewSink(common.NewSilentLogger(), filepath.Join(t.TempDir(), "db", "analysis.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecord(id, ticker, date string, composite float64) *models.AnalysisRecord {
	return &models.AnalysisRecord{
		ID:     id,
		Ticker: ticker,
		Source: "yahoo",
		Date:   date,
		Technical: models.TechnicalResult{
			Score:     61.2,
			Signal:    models.SignalBullish,
			SubScores: map[string]float64{models.SubScoreRSI: 70},
		},
		Fundamental: &models.FundamentalResult{Score: 55.5, Valuation: 60, Profitability: 50, Growth: 56},
		Screener: models.ScreenerResult{
			CompositeScore:   composite,
			Grade:            models.GradePositive,
			TechnicalScore:   61.2,
			FundamentalScore: 55.5,
		},
		ComputedAt: time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC),
	}
}

func TestSink_RecordAndLoad(t *testing.T) {
	ctx := context.Background()
	s := newTestSink(t)

	rec := testRecord("r1", "005930.KS", "2024-06-03", 58.4)
	require.NoError(t, s.Record(ctx, rec))

	got, err := s.Load(ctx, "yahoo", "005930.KS", "2024-06-03")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestSink_SameDayReplaces(t *testing.T) {
	ctx := context.Background()
	s := newTestSink(t)

	require.NoError(t, s.Record(ctx, testRecord("r1", "005930.KS", "2024-06-03", 58.4)))
	require.NoError(t, s.Record(ctx, testRecord("r2", "005930.KS", "2024-06-03", 71.0)))

	history, err := s.History(ctx, "005930.KS", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "r2", history[0].ID)
	assert.Equal(t, 71.0, history[0].CompositeScore)
}

func TestSink_HistoryOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	s := newTestSink(t)

	for i, date := range []string{"2024-06-01", "2024-06-03", "2024-06-02"} {
		require.NoError(t, s.Record(ctx, testRecord(date, "000660.KS", date, float64(50+i))))
	}
	require.NoError(t, s.Record(ctx, testRecord("other", "005930.KS", "2024-06-03", 40)))

	history, err := s.History(ctx, "000660.KS", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "2024-06-03", history[0].Date)
	assert.Equal(t, "2024-06-02", history[1].Date)
	assert.Equal(t, models.GradePositive, history[0].Grade)
	assert.True(t, history[0].FundamentalScore.Valid)
	assert.Equal(t, 55.5, history[0].FundamentalScore.Float64)
}

func TestSink_NullFundamentalAndDegraded(t *testing.T) {
	ctx := context.Background()
	s := newTestSink(t)

	rec := testRecord("r1", "035720.KS", "2024-06-03", 50)
	rec.Fundamental = nil
	rec.Degraded = []string{"fundamental: data insufficient", "trend: insufficient data"}
	require.NoError(t, s.Record(ctx, rec))

	history, err := s.History(ctx, "035720.KS", 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.False(t, history[0].FundamentalScore.Valid)
	assert.Equal(t, rec.Degraded, history[0].Degraded)
	assert.Equal(t, rec.ComputedAt, history[0].ComputedAt)
}

func TestSink_LoadMissing(t *testing.T) {
	s := newTestSink(t)
	_, err := s.Load(context.Background(), "yahoo", "NONE", "2024-01-01")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestSink_ReopenKeepsRows(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "analysis.db")

	s, err := NewSink(common.NewSilentLogger(), path)
	require.NoError(t, err)
	require.NoError(t, s.Record(ctx, testRecord("r1", "005930.KS", "2024-06-03", 58.4)))
	require.NoError(t, s.Close())

	s, err = NewSink(common.NewSilentLogger(), path)
	require.NoError(t, err)
	defer s.Close()

	history, err := s.History(ctx, "005930.KS", 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
