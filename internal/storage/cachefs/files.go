package cachefs

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/hwanginhyeok/stock/internal/models"
)

// barRow is the columnar layout of one OHLCV bar
type barRow struct {
	Timestamp int64   `parquet:"timestamp"` // unix nanoseconds, UTC
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    int64   `parquet:"volume"`
}

// metaRecord is the JSON sidecar stored per key
type metaRecord struct {
	models.CacheEntry
	Granularity  models.Granularity `json:"granularity,omitempty"`
	SeriesTicker string             `json:"series_ticker,omitempty"`
	SeriesSource string             `json:"series_source,omitempty"`
	Value        json.RawMessage    `json:"value,omitempty"`
}

// writeAtomic writes via a temp file in the target directory and renames
// it into place
func writeAtomic(target string, write func(w io.Writer) error) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if err := write(tmpFile); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

func writeMeta(path string, meta *metaRecord) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache metadata: %w", err)
	}
	data = append(data, '\n')
	return writeAtomic(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// readMeta returns os.ErrNotExist (wrapped) when the sidecar is absent
func readMeta(path string) (*metaRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("metadata file %s is empty", path)
	}
	var meta metaRecord
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metadata %s: %w", path, err)
	}
	return &meta, nil
}

func writeTable(path string, series *models.TimeSeries) error {
	rows := make([]barRow, len(series.Bars))
	for i, b := range series.Bars {
		rows[i] = barRow{
			Timestamp: b.Timestamp.UTC().UnixNano(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
	}
	return writeAtomic(path, func(w io.Writer) error {
		return parquet.Write(w, rows)
	})
}

func readTable(path string, meta *metaRecord) (*models.TimeSeries, error) {
	rows, err := parquet.ReadFile[barRow](path)
	if err != nil {
		return nil, fmt.Errorf("failed to read table %s: %w", path, err)
	}
	if len(rows) != meta.Rows {
		return nil, fmt.Errorf("table %s has %d rows, metadata expects %d", path, len(rows), meta.Rows)
	}

	series := &models.TimeSeries{
		Ticker:      meta.SeriesTicker,
		Source:      meta.SeriesSource,
		Granularity: meta.Granularity,
		Bars:        make([]models.Bar, len(rows)),
	}
	for i, r := range rows {
		series.Bars[i] = models.Bar{
			Timestamp: time.Unix(0, r.Timestamp).UTC(),
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		}
	}
	return series, nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func listMeta(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".json") && !strings.HasPrefix(name, ".tmp-") {
			ids = append(ids, strings.TrimSuffix(name, ".json"))
		}
	}
	return ids, nil
}
