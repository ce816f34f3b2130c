// Package filesource provides a SeriesSource that reads JSON snapshots from
// a directory, for offline runs and fixtures:
//
//	<dir>/<source>/<ticker>_<granularity>.json   models.TimeSeries
//	<dir>/fundamentals/<ticker>.json             one models.Fundamentals or an array of them
package filesource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/hwanginhyeok/stock/internal/common"
	"github.com/hwanginhyeok/stock/internal/interfaces"
	"github.com/hwanginhyeok/stock/internal/models"
)

// SourceName is the source tag used when a request does not name one
const SourceName = "file"

// Source reads series and fundamentals from JSON files
type Source struct {
	dir    string
	logger *common.Logger
}

var _ interfaces.SeriesSource = (*Source)(nil)

// NewSource creates a file source rooted at dir
func NewSource(logger *common.Logger, dir string) *Source {
	return &Source{dir: dir, logger: logger}
}

func fileName(s string) string {
	return strings.NewReplacer("/", "_", `\`, "_").Replace(s)
}

// SeriesPath returns the file a series request is read from
func (s *Source) SeriesPath(source, ticker string, granularity models.Granularity) string {
	if source == "" {
		source = SourceName
	}
	if granularity == "" {
		granularity = models.GranularityDaily
	}
	return filepath.Join(s.dir, fileName(source), fileName(ticker)+"_"+string(granularity)+".json")
}

// FundamentalsPath returns the file fundamentals for ticker are read from
func (s *Source) FundamentalsPath(ticker string) string {
	return filepath.Join(s.dir, "fundamentals", fileName(ticker)+".json")
}

func unavailable(source, ticker string, err error) error {
	return &models.UpstreamUnavailableError{Source: source, Ticker: ticker, Err: err}
}

// FetchSeries reads the series file and trims it to the request's as-of
// date and period
func (s *Source) FetchSeries(ctx context.Context, req interfaces.SeriesRequest) (*models.TimeSeries, error) {
	source := req.Source
	if source == "" {
		source = SourceName
	}
	if err := ctx.Err(); err != nil {
		return nil, unavailable(source, req.Ticker, err)
	}

	path := s.SeriesPath(source, req.Ticker, req.Granularity)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, unavailable(source, req.Ticker, err)
	}

	var series models.TimeSeries
	if err := json.Unmarshal(data, &series); err != nil {
		return nil, unavailable(source, req.Ticker, fmt.Errorf("failed to parse %s: %w", path, err))
	}
	if err := series.Validate(); err != nil {
		return nil, unavailable(source, req.Ticker, err)
	}
	if series.Ticker == "" {
		series.Ticker = req.Ticker
	}
	if series.Source == "" {
		series.Source = source
	}
	if series.Granularity == "" {
		series.Granularity = req.Granularity
	}

	out := series.Until(req.AsOf)
	if req.Period != "" && out.Len() > 0 {
		start, err := common.PeriodStart(req.Period, out.Last().Timestamp)
		if err != nil {
			return nil, unavailable(source, req.Ticker, err)
		}
		first := 0
		for first < len(out.Bars) && out.Bars[first].Timestamp.Before(start) {
			first++
		}
		out.Bars = out.Bars[first:]
	}

	s.logger.Debug().Str("path", path).Int("bars", out.Len()).Msg("Series loaded from file")
	return out, nil
}

// FetchFundamentals returns the latest snapshot at or before asOf. A zero
// asOf selects the latest snapshot in the file.
func (s *Source) FetchFundamentals(ctx context.Context, ticker string, asOf time.Time) (*models.Fundamentals, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(SourceName, ticker, err)
	}

	path := s.FundamentalsPath(ticker)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, unavailable(SourceName, ticker, err)
	}

	var snaps []models.Fundamentals
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		err = json.Unmarshal(data, &snaps)
	} else {
		var one models.Fundamentals
		err = json.Unmarshal(data, &one)
		snaps = []models.Fundamentals{one}
	}
	if err != nil {
		return nil, unavailable(SourceName, ticker, fmt.Errorf("failed to parse %s: %w", path, err))
	}

	slices.SortStableFunc(snaps, func(a, b models.Fundamentals) int {
		return a.AsOf.Compare(b.AsOf)
	})

	var picked *models.Fundamentals
	for i := range snaps {
		if asOf.IsZero() || !snaps[i].AsOf.After(asOf) {
			picked = &snaps[i]
		}
	}
	if picked == nil {
		return nil, unavailable(SourceName, ticker, fmt.Errorf("no fundamentals snapshot at or before %s", asOf.Format("2006-01-02")))
	}
	if picked.Ticker == "" {
		picked.Ticker = ticker
	}
	return picked, nil
}
