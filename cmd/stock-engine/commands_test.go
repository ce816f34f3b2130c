package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hwanginhyeok/stock/internal/common"
	"github.com/hwanginhyeok/stock/internal/models"
	"github.com/hwanginhyeok/stock/internal/storage/sqlitedb"
)

func writeFile(t *testing.T, path string, v any) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func writeSeries(t *testing.T, snapshots, ticker string, closes []float64) {
	t.Helper()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	series := models.TimeSeries{Ticker: ticker, Source: "file", Granularity: models.GranularityDaily}
	for i, c := range closes {
		series.Bars = append(series.Bars, models.Bar{
			Timestamp: start.AddDate(0, 0, i),
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    1000,
		})
	}
	writeFile(t, filepath.Join(snapshots, "file", ticker+"_1d.json"), series)
}

func writeFundamentals(t *testing.T, snapshots, ticker string) {
	t.Helper()
	writeFile(t, filepath.Join(snapshots, "fundamentals", ticker+".json"), models.Fundamentals{
		Ticker:          ticker,
		AsOf:            time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		PER:             null.FloatFrom(12),
		PBR:             null.FloatFrom(1.2),
		ROE:             null.FloatFrom(0.15),
		OperatingMargin: null.FloatFrom(0.12),
		RevenueGrowth:   null.FloatFrom(0.10),
		EarningsGrowth:  null.FloatFrom(0.08),
	})
}

func rising(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

// testEnv is a data root with snapshots for AAA and BBB
type testEnv struct {
	root      string
	snapshots string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("STOCK_WARM_CACHE", "off")
	root := t.TempDir()
	env := &testEnv{root: root, snapshots: filepath.Join(root, "snapshots")}
	writeSeries(t, env.snapshots, "AAA", rising(150, 100, 0.5))
	writeFundamentals(t, env.snapshots, "AAA")
	writeSeries(t, env.snapshots, "BBB", rising(150, 200, -0.5))
	writeFundamentals(t, env.snapshots, "BBB")
	return env
}

func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	base := []string{
		"--config", filepath.Join(e.root, "missing.toml"),
		"--data", e.root,
		"--snapshots", e.snapshots,
		"--source", "file",
		"--log-level", "error",
	}
	var out bytes.Buffer
	err := run(context.Background(), append(base, args...), &out)
	return out.String(), err
}

func TestAnalyzeCommand(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "analyze", "AAA")
	require.NoError(t, err)

	var record models.AnalysisRecord
	require.NoError(t, json.Unmarshal([]byte(out), &record))
	assert.Equal(t, "AAA", record.Ticker)
	assert.Equal(t, "file", record.Source)
	assert.Equal(t, "2024-05-29", record.Date)
	assert.NotNil(t, record.Fundamental)
	assert.NotEmpty(t, record.Screener.Grade)
}

func TestAnalyzeCommand_Options(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "analyze", "AAA", "BBB", "--skip-fundamentals", "--as-of", "2024-05-20", "--news-sentiment", "0.5")
	require.NoError(t, err)

	var records []models.AnalysisRecord
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, "2024-05-20", r.Date)
		assert.Nil(t, r.Fundamental)
		assert.Contains(t, r.Degraded, "fundamental: skipped")
		require.NotNil(t, r.Screener.NewsSentiment)
		assert.Equal(t, 0.5, *r.Screener.NewsSentiment)
	}
}

func TestAnalyzeCommand_Errors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing ticker file", []string{"analyze", "ZZZ"}, "ZZZ"},
		{"bad as-of", []string{"analyze", "AAA", "--as-of", "last tuesday"}, "--as-of"},
		{"bad granularity", []string{"analyze", "AAA", "--granularity", "1h"}, "--granularity"},
		{"news out of range", []string{"analyze", "AAA", "--news-sentiment", "2"}, "--news-sentiment"},
		{"no args", []string{"analyze"}, "arg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.run(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestAnalyzeCommand_Baseline(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(env.root, "semis.json")
	writeFile(t, path, models.FundamentalBaseline{PERMax: null.FloatFrom(15)})

	out, err := env.run(t, "analyze", "AAA", "--baseline", path)
	require.NoError(t, err)

	var record models.AnalysisRecord
	require.NoError(t, json.Unmarshal([]byte(out), &record))
	require.NotNil(t, record.Fundamental)
	assert.Equal(t, "semis", record.Fundamental.Baseline)
}

func TestScreenCommand(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "screen", "BBB", "AAA", "ZZZ")
	require.NoError(t, err)

	var records []models.AnalysisRecord
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 2)
	assert.GreaterOrEqual(t, records[0].Screener.CompositeScore, records[1].Screener.CompositeScore)
}

func TestScreenCommand_Errors(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "screen", "ZZZ", "YYY")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ZZZ")

	_, err = env.run(t, "screen")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watchlist")
}

func TestScreenCommand_Watchlist(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv("STOCK_WATCHLIST", "AAA,BBB")

	out, err := env.run(t, "screen")
	require.NoError(t, err)

	var records []models.AnalysisRecord
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	assert.Len(t, records, 2)
}

func TestSentimentCommand(t *testing.T) {
	env := newTestEnv(t)
	writeSeries(t, env.snapshots, "^VIX", rising(60, 15, 0))
	writeSeries(t, env.snapshots, "^KS11", rising(60, 2500, 5))

	out, err := env.run(t, "sentiment", "--vix", "^VIX", "--index", "^KS11", "--period", "max")
	require.NoError(t, err)

	var report models.MarketSentimentReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.InDelta(t, 50, report.Index.Score, 50)
	assert.Len(t, report.Trends, 1)
	assert.NotEmpty(t, report.Diagnosis.Verdict)
}

func TestHistoryCommand(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "analyze", "AAA")
	require.NoError(t, err)
	_, err = env.run(t, "analyze", "AAA", "--as-of", "2024-05-01")
	require.NoError(t, err)

	out, err := env.run(t, "history", "AAA", "--limit", "5")
	require.NoError(t, err)

	var summaries []sqlitedb.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &summaries))
	require.Len(t, summaries, 2)
	assert.Equal(t, "2024-05-29", summaries[0].Date)
	assert.Equal(t, "2024-05-01", summaries[1].Date)
}

func TestCacheCommands(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "analyze", "AAA")
	require.NoError(t, err)

	out, err := env.run(t, "cache", "invalidate", "AAA", "BBB")
	require.NoError(t, err)
	var removed map[string]int
	require.NoError(t, json.Unmarshal([]byte(out), &removed))
	assert.Positive(t, removed["AAA"])
	assert.Zero(t, removed["BBB"])

	out, err = env.run(t, "cache", "prune")
	require.NoError(t, err)
	var pruned map[string]int
	require.NoError(t, json.Unmarshal([]byte(out), &pruned))
	assert.Zero(t, pruned["removed"])
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"version"}, &out))

	var info common.BuildInfo
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.NotEmpty(t, info.Version)
}

func TestParseAsOf(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"", time.Time{}, false},
		{"2024-05-20", time.Date(2024, 5, 20, 23, 59, 59, 999999999, time.UTC), false},
		{"2024-05-20T09:00:00+09:00", time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC), false},
		{"20/05/2024", time.Time{}, true},
	}
	for _, tt := range tests {
		got, err := parseAsOf(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.True(t, tt.want.Equal(got), "%s: got %s", tt.in, got)
	}
}

func TestParseGranularity(t *testing.T) {
	for _, in := range []string{"1d", "1WK", "1mo"} {
		_, err := parseGranularity(in)
		assert.NoError(t, err, in)
	}
	_, err := parseGranularity("5m")
	assert.Error(t, err)
}
