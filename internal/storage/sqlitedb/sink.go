// Package sqlitedb keeps the history of emitted analysis records in SQLite
package sqlitedb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/guregu/null/v6"
	_ "modernc.org/sqlite"

	"github.com/hwanginhyeok/stock/internal/common"
	"github.com/hwanginhyeok/stock/internal/models"
)

// Sink writes analysis records to a SQLite database. One row is kept per
// source, ticker and date; a newer record for the same day replaces it.
type Sink struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *common.Logger
}

// Summary is the flat, queryable part of a stored record
type Summary struct {
	ID               string       `json:"id"`
	Ticker           string       `json:"ticker"`
	Source           string       `json:"source"`
	Date             string       `json:"date"`
	TechnicalScore   float64      `json:"technical_score"`
	FundamentalScore null.Float   `json:"fundamental_score"`
	CompositeScore   float64      `json:"composite_score"`
	Grade            models.Grade `json:"grade"`
	Degraded         []string     `json:"degraded,omitempty"`
	ComputedAt       time.Time    `json:"computed_at"`
}

// NewSink opens (or creates) the database at path and runs migrations
func NewSink(logger *common.Logger, path string) (*Sink, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	s := &Sink{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate %s: %w", path, err)
	}

	logger.Info().Str("path", path).Msg("Analysis history opened")
	return s, nil
}

func (s *Sink) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS analysis_records (
			id                TEXT PRIMARY KEY,
			ticker            TEXT NOT NULL,
			source            TEXT NOT NULL,
			date              TEXT NOT NULL,
			technical_score   REAL NOT NULL,
			fundamental_score REAL,
			composite_score   REAL NOT NULL,
			grade             TEXT NOT NULL,
			degraded          TEXT,
			payload           TEXT NOT NULL,
			computed_at       INTEGER NOT NULL,
			UNIQUE (source, ticker, date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_ticker ON analysis_records(ticker, date)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

// Record stores one analysis record
func (s *Sink) Record(ctx context.Context, record *models.AnalysisRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record %s: %w", record.ID, err)
	}

	fundamental := null.Float{}
	if record.Fundamental != nil {
		fundamental = null.FloatFrom(record.Fundamental.Score)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `INSERT INTO analysis_records
		(id, ticker, source, date, technical_score, fundamental_score,
		 composite_score, grade, degraded, payload, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source, ticker, date) DO UPDATE SET
			id = excluded.id,
			technical_score = excluded.technical_score,
			fundamental_score = excluded.fundamental_score,
			composite_score = excluded.composite_score,
			grade = excluded.grade,
			degraded = excluded.degraded,
			payload = excluded.payload,
			computed_at = excluded.computed_at`,
		record.ID, record.Ticker, record.Source, record.Date,
		record.Technical.Score, fundamental,
		record.Screener.CompositeScore, string(record.Screener.Grade),
		strings.Join(record.Degraded, ";"), string(payload), record.ComputedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert record for %s: %w", record.Ticker, err)
	}

	s.logger.Debug().Str("ticker", record.Ticker).Str("date", record.Date).Msg("Analysis record stored")
	return nil
}

// History returns up to limit summaries for a ticker, newest date first.
// A non-positive limit returns every stored row.
func (s *Sink) History(ctx context.Context, ticker string, limit int) ([]Summary, error) {
	query := `SELECT id, ticker, source, date, technical_score, fundamental_score,
		composite_score, grade, degraded, computed_at
		FROM analysis_records WHERE ticker = ? ORDER BY date DESC, source ASC`
	args := []any{ticker}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history for %s: %w", ticker, err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum      Summary
			grade    string
			degraded sql.NullString
			computed int64
		)
		if err := rows.Scan(&sum.ID, &sum.Ticker, &sum.Source, &sum.Date, &sum.TechnicalScore,
			&sum.FundamentalScore, &sum.CompositeScore, &grade, &degraded, &computed); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		sum.Grade = models.Grade(grade)
		if degraded.Valid && degraded.String != "" {
			sum.Degraded = strings.Split(degraded.String, ";")
		}
		sum.ComputedAt = time.Unix(0, computed).UTC()
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Load returns the full stored record for a source, ticker and date
func (s *Sink) Load(ctx context.Context, source, ticker, date string) (*models.AnalysisRecord, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM analysis_records WHERE source = ? AND ticker = ? AND date = ?`,
		source, ticker, date).Scan(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to load record %s/%s/%s: %w", source, ticker, date, err)
	}

	var record models.AnalysisRecord
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return nil, fmt.Errorf("failed to decode record %s/%s/%s: %w", source, ticker, date, err)
	}
	return &record, nil
}

// Close closes the database
func (s *Sink) Close() error {
	return s.db.Close()
}
