// Package cachefs implements the TTL cache for series, scores and snapshots.
// Series are stored as Parquet tables; everything else lives as JSON inside
// the per-key metadata sidecar.
package cachefs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/hwanginhyeok/stock/internal/common"
	"github.com/hwanginhyeok/stock/internal/models"
)

// FormatVersion is bumped whenever the on-disk layout changes. Entries
// written under another version read as misses.
const FormatVersion = 1

// Store is a file-backed TTL cache rooted at one directory:
//
//	<root>/tables/<source>/<id>.parquet
//	<root>/meta/<id>.json
type Store struct {
	root      string
	tablesDir string
	metaDir   string
	logger    *common.Logger
	now       func() time.Time
	disabled  bool
	reg       prometheus.Registerer

	locks   *keyedLocks
	flights singleflight.Group
	metrics *Metrics
	stats   counters
}

// Option configures a Store
type Option func(*Store)

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithRegisterer registers the store metrics with reg
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Store) { s.reg = reg }
}

// WithDisabled makes every read a miss while writes still land on disk
func WithDisabled(disabled bool) Option {
	return func(s *Store) { s.disabled = disabled }
}

// NewStore opens (creating if needed) a cache rooted at path
func NewStore(logger *common.Logger, path string, opts ...Option) (*Store, error) {
	s := &Store{
		root:      path,
		tablesDir: filepath.Join(path, "tables"),
		metaDir:   filepath.Join(path, "meta"),
		logger:    logger,
		now:       time.Now,
		locks:     newKeyedLocks(),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, dir := range []string{s.tablesDir, s.metaDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache path %s: %w", dir, err)
		}
	}
	s.metrics = NewMetrics(s.reg)

	logger.Info().Str("path", path).Bool("disabled", s.disabled).Msg("Cache store opened")
	return s, nil
}

// Path returns the cache root directory
func (s *Store) Path() string {
	return s.root
}

// Metrics returns the store's Prometheus collectors
func (s *Store) Metrics() *Metrics {
	return s.metrics
}

// Stats returns a snapshot of hit/miss/write counters
func (s *Store) Stats() Stats {
	return s.stats.snapshot()
}

// Close is a no-op for file-based storage
func (s *Store) Close() error {
	return nil
}

func (s *Store) metaPath(id string) string {
	return filepath.Join(s.metaDir, id+".json")
}

func (s *Store) tablePath(source, id string) string {
	return filepath.Join(s.tablesDir, readable(source), id+".parquet")
}

// Get returns the payload for key. Absent, expired, and unreadable entries
// are all misses; only unexpected I/O failures surface as errors.
func (s *Store) Get(ctx context.Context, key Key) (Payload, bool, error) {
	if err := ctx.Err(); err != nil {
		return Payload{}, false, err
	}
	if s.disabled {
		s.miss("disabled")
		return Payload{}, false, nil
	}

	payload, reason, err := s.lookup(key)
	if err != nil {
		return Payload{}, false, err
	}
	if reason != "" {
		s.miss(reason)
		return Payload{}, false, nil
	}

	s.stats.hits.Add(1)
	s.metrics.Hits.Inc()
	s.logger.Debug().Str("key", key.Canonical()).Msg("Cache hit")
	return payload, true, nil
}

// lookup reads one entry under its reader lock. A non-empty reason means miss.
func (s *Store) lookup(key Key) (Payload, string, error) {
	id := key.ID()
	unlock := s.locks.RLock(id)
	payload, reason, err := s.load(key, id)
	unlock()

	var formatErr *models.CacheFormatError
	if errors.As(err, &formatErr) {
		s.discardCorrupt(key, id, formatErr)
		return Payload{}, "corrupt", nil
	}
	return payload, reason, err
}

func (s *Store) load(key Key, id string) (Payload, string, error) {
	canonical := key.Canonical()
	formatErr := func(err error) error {
		return &models.CacheFormatError{Key: canonical, Err: err}
	}

	meta, err := readMeta(s.metaPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return Payload{}, "absent", nil
	}
	if err != nil {
		return Payload{}, "", formatErr(err)
	}
	if meta.Version != FormatVersion {
		return Payload{}, "", formatErr(fmt.Errorf("format version %d, want %d", meta.Version, FormatVersion))
	}
	if meta.Key != canonical {
		return Payload{}, "", formatErr(fmt.Errorf("metadata key %q does not match", meta.Key))
	}

	// Validity is evaluated on every read
	if !meta.ValidAt(s.now()) {
		return Payload{}, "expired", nil
	}

	switch meta.Format {
	case models.CacheFormatTable:
		series, err := readTable(s.tablePath(key.Source, id), meta)
		if err != nil {
			return Payload{}, "", formatErr(err)
		}
		return Payload{Series: series}, "", nil
	case models.CacheFormatScalar:
		if len(meta.Value) == 0 {
			return Payload{}, "", formatErr(errors.New("scalar entry has no value"))
		}
		return Payload{Value: meta.Value}, "", nil
	default:
		return Payload{}, "", formatErr(fmt.Errorf("unknown format tag %q", meta.Format))
	}
}

func (s *Store) discardCorrupt(key Key, id string, cause *models.CacheFormatError) {
	s.stats.formatErrors.Add(1)
	s.logger.Warn().Err(cause).Str("key", key.Canonical()).Msg("Discarding unreadable cache entry")

	unlock := s.locks.Lock(id)
	defer unlock()

	// A writer may have replaced the entry since the read
	if _, _, err := s.load(key, id); !errors.As(err, new(*models.CacheFormatError)) {
		return
	}
	if err := s.removeEntry(key.Source, id); err != nil {
		s.logger.Warn().Err(err).Str("id", id).Msg("Failed to remove unreadable cache entry")
	}
}

func (s *Store) miss(reason string) {
	s.stats.misses.Add(1)
	s.metrics.Misses.WithLabelValues(reason).Inc()
}

// Put stores payload under key, replacing any previous entry and restarting
// its TTL. Either both files land or neither does.
func (s *Store) Put(ctx context.Context, key Key, payload Payload, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl <= 0 {
		return fmt.Errorf("cache ttl must be positive, got %s", ttl)
	}
	if payload.Empty() {
		return ErrEmptyPayload
	}
	if payload.Series != nil {
		if err := payload.Series.Validate(); err != nil {
			return fmt.Errorf("failed to cache series: %w", err)
		}
	}

	id := key.ID()
	unlock := s.locks.Lock(id)
	defer unlock()

	if err := s.write(key, id, payload, ttl); err != nil {
		s.metrics.WriteErrors.Inc()
		return err
	}

	s.stats.writes.Add(1)
	s.metrics.Writes.WithLabelValues(string(payload.Format())).Inc()
	s.logger.Debug().Str("key", key.Canonical()).Str("format", string(payload.Format())).Dur("ttl", ttl).Msg("Cache write")
	return nil
}

func (s *Store) write(key Key, id string, payload Payload, ttl time.Duration) error {
	metaPath := s.metaPath(id)
	tablePath := s.tablePath(key.Source, id)

	// Drop the old sidecar first so a crash never pairs new data with old metadata
	if err := removeIfExists(metaPath); err != nil {
		return fmt.Errorf("failed to remove old cache metadata: %w", err)
	}

	meta := &metaRecord{
		CacheEntry: models.CacheEntry{
			Key:       key.Canonical(),
			ID:        id,
			Format:    payload.Format(),
			Version:   FormatVersion,
			CreatedAt: s.now().UTC(),
			TTL:       ttl,
			Ticker:    key.Ticker,
			Source:    key.Source,
		},
		Granularity: key.Granularity,
	}

	if payload.Series != nil {
		if err := writeTable(tablePath, payload.Series); err != nil {
			return fmt.Errorf("failed to write cache table: %w", err)
		}
		meta.Rows = len(payload.Series.Bars)
		meta.SeriesTicker = payload.Series.Ticker
		meta.SeriesSource = payload.Series.Source
		meta.Granularity = payload.Series.Granularity
	} else {
		if err := removeIfExists(tablePath); err != nil {
			return fmt.Errorf("failed to remove stale cache table: %w", err)
		}
		meta.Value = payload.Value
	}

	if err := writeMeta(metaPath, meta); err != nil {
		if payload.Series != nil {
			removeIfExists(tablePath)
		}
		return fmt.Errorf("failed to write cache metadata: %w", err)
	}
	return nil
}

// GetOrCompute returns the cached payload or runs compute once per key.
// Concurrent callers missing the same key wait for the single in-flight
// computation and share its result. A failed or empty computation writes
// nothing and its error reaches every waiter.
func (s *Store) GetOrCompute(ctx context.Context, key Key, ttl time.Duration, compute func(ctx context.Context) (Payload, error)) (Payload, error) {
	if payload, ok, err := s.Get(ctx, key); err != nil || ok {
		return payload, err
	}

	id := key.ID()
	ch := s.flights.DoChan(id, func() (any, error) {
		// The computation outlives any single waiter's cancellation
		fctx := context.WithoutCancel(ctx)

		// A flight that finished just before this one started may have filled the entry
		if !s.disabled {
			if payload, reason, err := s.lookup(key); err == nil && reason == "" {
				return payload, nil
			}
		}

		payload, err := compute(fctx)
		if err != nil {
			s.metrics.Computes.WithLabelValues("error").Inc()
			return nil, err
		}
		if payload.Empty() {
			s.metrics.Computes.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("compute for %s: %w", key.Canonical(), ErrEmptyPayload)
		}
		s.metrics.Computes.WithLabelValues("ok").Inc()

		if err := s.Put(fctx, key, payload, ttl); err != nil {
			s.logger.Warn().Err(err).Str("key", key.Canonical()).Msg("Failed to cache computed value")
		}
		return payload, nil
	})

	select {
	case <-ctx.Done():
		return Payload{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Payload{}, res.Err
		}
		if res.Shared {
			s.metrics.Computes.WithLabelValues("shared").Inc()
		}
		return res.Val.(Payload).clone(), nil
	}
}

// Invalidate removes the entry for key. Removing an absent key is not an error.
func (s *Store) Invalidate(ctx context.Context, key Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id := key.ID()
	unlock := s.locks.Lock(id)
	defer unlock()

	if err := s.removeEntry(key.Source, id); err != nil {
		return fmt.Errorf("failed to invalidate %s: %w", key.Canonical(), err)
	}
	return nil
}

// InvalidatePrefix removes every entry whose canonical key starts with
// prefix and returns how many were removed
func (s *Store) InvalidatePrefix(ctx context.Context, prefix string) (int, error) {
	ids, err := listMeta(s.metaDir)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		removed, err := s.removeIf(id, func(meta *metaRecord) bool {
			return meta != nil && strings.HasPrefix(meta.Key, prefix)
		})
		if err != nil {
			return count, err
		}
		if removed {
			count++
		}
	}

	s.logger.Info().Str("prefix", prefix).Int("removed", count).Msg("Cache prefix invalidated")
	return count, nil
}

// Prune removes expired, unreadable, and version-mismatched entries plus
// orphaned tables, returning the number of entries removed
func (s *Store) Prune(ctx context.Context) (int, error) {
	ids, err := listMeta(s.metaDir)
	if err != nil {
		return 0, err
	}

	now := s.now()
	count := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		removed, err := s.removeIf(id, func(meta *metaRecord) bool {
			return meta == nil || meta.Version != FormatVersion || !meta.ValidAt(now)
		})
		if err != nil {
			return count, err
		}
		if removed {
			count++
		}
	}

	orphans, err := s.removeOrphanTables()
	if err != nil {
		return count, err
	}

	s.logger.Info().Int("removed", count).Int("orphans", orphans).Msg("Cache pruned")
	return count, nil
}

// removeIf removes the entry with id when match accepts its metadata.
// Unreadable metadata is passed to match as nil.
func (s *Store) removeIf(id string, match func(meta *metaRecord) bool) (bool, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	meta, err := readMeta(s.metaPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		meta = nil
	}
	if !match(meta) {
		return false, nil
	}

	source := ""
	if meta != nil {
		source = meta.Source
	}
	if err := s.removeEntry(source, id); err != nil {
		return false, err
	}
	return true, nil
}

// removeEntry deletes the sidecar then the table. Caller holds the writer lock.
func (s *Store) removeEntry(source, id string) error {
	if err := removeIfExists(s.metaPath(id)); err != nil {
		return err
	}

	tables := []string{s.tablePath(source, id)}
	if source == "" {
		// Unknown source: look in every source directory
		matches, _ := filepath.Glob(filepath.Join(s.tablesDir, "*", id+".parquet"))
		tables = matches
	}
	for _, path := range tables {
		if err := removeIfExists(path); err != nil {
			return err
		}
	}

	s.stats.invalidations.Add(1)
	s.metrics.Invalidations.Inc()
	return nil
}

func (s *Store) removeOrphanTables() (int, error) {
	tables, err := filepath.Glob(filepath.Join(s.tablesDir, "*", "*.parquet"))
	if err != nil {
		return 0, fmt.Errorf("failed to list cache tables: %w", err)
	}

	count := 0
	for _, path := range tables {
		id := strings.TrimSuffix(filepath.Base(path), ".parquet")
		unlock := s.locks.Lock(id)
		if _, err := os.Stat(s.metaPath(id)); errors.Is(err, fs.ErrNotExist) {
			if err := removeIfExists(path); err == nil {
				count++
			}
		}
		unlock()
	}
	return count, nil
}
