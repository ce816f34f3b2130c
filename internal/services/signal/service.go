// Package signal runs the analysis pipeline: fetch, score, fuse, emit
package signal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/hwanginhyeok/stock/internal/analysis"
	"github.com/hwanginhyeok/stock/internal/common"
	"github.com/hwanginhyeok/stock/internal/interfaces"
	"github.com/hwanginhyeok/stock/internal/models"
	"github.com/hwanginhyeok/stock/internal/storage/cachefs"
)

const dateLayout = "2006-01-02"

// Service implements interfaces.SignalService
type Service struct {
	cfg    *common.Config
	source interfaces.SeriesSource
	cache  *cachefs.Store
	sink   interfaces.RecordSink
	latest *LatestRegistry
	logger *common.Logger

	technical   interfaces.TechnicalScorer
	trend       interfaces.TrendScorer
	fundamental interfaces.FundamentalScorer
	sentiment   *analysis.SentimentIndex
	screener    *analysis.Screener

	fingerprint string
	metrics     *Metrics
	reg         prometheus.Registerer
	now         func() time.Time
	newID       func() string
}

var _ interfaces.SignalService = (*Service)(nil)

// Option configures a Service
type Option func(*Service)

// WithClock replaces time.Now for computed-at stamps
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRegisterer registers the service metrics with reg
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Service) { s.reg = reg }
}

// WithSink sets where analysis records are emitted
func WithSink(sink interfaces.RecordSink) Option {
	return func(s *Service) { s.sink = sink }
}

// NewService builds every analyzer from cfg. Configuration errors surface
// here and never at call time.
func NewService(logger *common.Logger, cfg *common.Config, source interfaces.SeriesSource, cache *cachefs.Store, opts ...Option) (*Service, error) {
	technical, err := analysis.NewTechnicalAnalyzer(cfg.Technical)
	if err != nil {
		return nil, err
	}
	trend, err := analysis.NewTrendAnalyzer(cfg.Trend)
	if err != nil {
		return nil, err
	}
	fundamental, err := analysis.NewFundamentalAnalyzer(cfg.Fundamental)
	if err != nil {
		return nil, err
	}
	sentiment, err := analysis.NewSentimentIndex(cfg.Sentiment)
	if err != nil {
		return nil, err
	}
	screener, err := analysis.NewScreener(cfg.Screening)
	if err != nil {
		return nil, err
	}
	fingerprint, err := configFingerprint(cfg)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:         cfg,
		source:      source,
		cache:       cache,
		sink:        NoopSink{},
		latest:      NewLatestRegistry(),
		logger:      logger,
		technical:   technical,
		trend:       trend,
		fundamental: fundamental,
		sentiment:   sentiment,
		screener:    screener,
		fingerprint: fingerprint,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics = NewMetrics(s.reg)
	return s, nil
}

// configFingerprint hashes every setting that changes a score, so cached
// results computed under another configuration are never reused. Screening
// settings that only affect batching or ranking (workers, top_n, watchlist)
// are left out.
func configFingerprint(cfg *common.Config) (string, error) {
	data, err := json.Marshal(struct {
		Technical       common.TechnicalConfig
		Trend           common.TrendConfig
		Fundamental     common.FundamentalConfig
		Sentiment       common.SentimentConfig
		Weights         common.ScreeningWeights
		SentimentWeight float64
		Thresholds      common.GradeThresholds
	}{
		cfg.Technical, cfg.Trend, cfg.Fundamental, cfg.Sentiment,
		cfg.Screening.Weights, cfg.Screening.SentimentWeight, cfg.Screening.Thresholds,
	})
	if err != nil {
		return "", fmt.Errorf("failed to fingerprint config: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:6]), nil
}

// Latest returns the read-only view of the most recent records
func (s *Service) Latest() interfaces.LatestResults {
	return s.latest
}

// Metrics returns the service's Prometheus collectors
func (s *Service) Metrics() *Metrics {
	return s.metrics
}

func normalize(req interfaces.AnalysisRequest) interfaces.AnalysisRequest {
	if req.Granularity == "" {
		req.Granularity = models.GranularityDaily
	}
	req.Ticker = strings.TrimSpace(req.Ticker)
	return req
}

// AnalyzeTicker fetches (or reuses) the series and fundamentals, scores
// them, fuses the scores and emits the record. Short series and sparse
// fundamentals degrade to the neutral score with a note on the record;
// collaborator failures are returned untouched.
func (s *Service) AnalyzeTicker(ctx context.Context, req interfaces.AnalysisRequest) (*models.AnalysisRecord, error) {
	start := time.Now()
	req = normalize(req)
	if req.Ticker == "" {
		return nil, fmt.Errorf("ticker is required")
	}

	record, err := s.analyze(ctx, req)
	s.metrics.Duration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.Analyses.WithLabelValues("error").Inc()
		return nil, err
	}
	if len(record.Degraded) > 0 {
		s.metrics.Analyses.WithLabelValues("degraded").Inc()
	} else {
		s.metrics.Analyses.WithLabelValues("ok").Inc()
	}

	s.latest.Put(record)
	if err := s.sink.Record(ctx, record); err != nil {
		s.metrics.SinkErrors.Inc()
		s.logger.Warn().Err(err).Str("ticker", record.Ticker).Msg("Failed to emit analysis record")
	}
	return record.Clone(), nil
}

func (s *Service) analyze(ctx context.Context, req interfaces.AnalysisRequest) (*models.AnalysisRecord, error) {
	series, err := s.loadSeries(ctx, interfaces.SeriesRequest{
		Source:      req.Source,
		Ticker:      req.Ticker,
		Granularity: req.Granularity,
		Period:      req.Period,
		AsOf:        req.AsOf,
	})
	if err != nil {
		return nil, err
	}

	record := &models.AnalysisRecord{
		ID:         s.newID(),
		Ticker:     req.Ticker,
		Source:     req.Source,
		Date:       recordDate(series, req.AsOf, s.now()),
		ComputedAt: s.now().UTC(),
	}

	base := s.scoreKey(req)
	var insufficient *models.InsufficientDataError

	technical, err := cachedValue(ctx, s.cache, base.With("kind", "technical"), s.cfg.Cache.GetScoresTTL(),
		func(context.Context) (*models.TechnicalResult, error) { return s.technical.Analyze(series) })
	switch {
	case errors.As(err, &insufficient):
		record.Degraded = append(record.Degraded, "technical: "+err.Error())
		record.Technical = models.TechnicalResult{
			Score:  models.NeutralScore,
			Signal: models.SignalNeutral,
			Bars:   series.Len(),
		}
	case err != nil:
		return nil, err
	default:
		record.Technical = *technical
	}

	trend, err := cachedValue(ctx, s.cache, base.With("kind", "trend"), s.cfg.Cache.GetScoresTTL(),
		func(context.Context) (*models.TrendResult, error) {
			r, err := s.trend.Analyze(series)
			if r != nil {
				r.Ticker = req.Ticker
			}
			return r, err
		})
	switch {
	case errors.As(err, &insufficient):
		record.Degraded = append(record.Degraded, "trend: "+err.Error())
	case err != nil:
		return nil, err
	default:
		record.Trend = trend
	}

	fundamentalScore := models.NeutralScore
	if req.SkipFundamentals {
		record.Degraded = append(record.Degraded, "fundamental: skipped")
	} else {
		fundamental, err := s.scoreFundamentals(ctx, req, base)
		var sparse *models.DataInsufficientError
		switch {
		case errors.As(err, &sparse):
			record.Degraded = append(record.Degraded, "fundamental: "+err.Error())
		case err != nil:
			return nil, err
		default:
			record.Fundamental = fundamental
			fundamentalScore = fundamental.Score
		}
	}

	record.Screener = s.screener.Screen(record.Technical.Score, fundamentalScore, req.NewsSentiment)

	s.logger.Debug().
		Str("ticker", record.Ticker).
		Str("date", record.Date).
		Float64("composite", record.Screener.CompositeScore).
		Str("grade", string(record.Screener.Grade)).
		Msg("Ticker analyzed")
	return record, nil
}

func (s *Service) scoreFundamentals(ctx context.Context, req interfaces.AnalysisRequest, base cachefs.Key) (*models.FundamentalResult, error) {
	snapKey := cachefs.Key{Source: req.Source, Ticker: req.Ticker, AsOf: req.AsOf}.With("kind", "fundamentals")
	snap, err := cachedValue(ctx, s.cache, snapKey, s.cfg.Cache.GetSeriesTTL(),
		func(ctx context.Context) (*models.Fundamentals, error) {
			return s.source.FetchFundamentals(ctx, req.Ticker, req.AsOf)
		})
	if err != nil {
		return nil, err
	}

	key := base.With("kind", "fundamental")
	if req.Baseline != nil {
		fp, err := json.Marshal(req.Baseline)
		if err != nil {
			return nil, fmt.Errorf("failed to encode baseline: %w", err)
		}
		sum := sha256.Sum256(fp)
		key = key.With("baseline", hex.EncodeToString(sum[:6]))
	}
	return cachedValue(ctx, s.cache, key, s.cfg.Cache.GetScoresTTL(),
		func(context.Context) (*models.FundamentalResult, error) {
			return s.fundamental.Analyze(snap, req.Baseline)
		})
}

func (s *Service) scoreKey(req interfaces.AnalysisRequest) cachefs.Key {
	return cachefs.Key{
		Source:      req.Source,
		Ticker:      req.Ticker,
		Granularity: req.Granularity,
		Params:      map[string]string{"period": req.Period, "config": s.fingerprint},
		AsOf:        req.AsOf,
	}
}

func seriesKey(req interfaces.SeriesRequest) cachefs.Key {
	return cachefs.Key{
		Source:      req.Source,
		Ticker:      req.Ticker,
		Granularity: req.Granularity,
		Params:      map[string]string{"period": req.Period},
		AsOf:        req.AsOf,
	}
}

// loadSeries returns the cached series or fetches it. A failed fetch leaves
// the cache untouched. The result is validated and cut at req.AsOf whatever
// the collaborator returned, so no bar after the evaluation point is scored
// or cached.
func (s *Service) loadSeries(ctx context.Context, req interfaces.SeriesRequest) (*models.TimeSeries, error) {
	payload, err := s.cache.GetOrCompute(ctx, seriesKey(req), s.cfg.Cache.GetSeriesTTL(),
		func(ctx context.Context) (cachefs.Payload, error) {
			series, err := s.source.FetchSeries(ctx, req)
			if err != nil {
				return cachefs.Payload{}, err
			}
			bounded, err := boundSeries(series, req)
			if err != nil {
				return cachefs.Payload{}, err
			}
			return cachefs.SeriesPayload(bounded), nil
		})
	if err != nil {
		return nil, err
	}
	return boundSeries(payload.Series, req)
}

// boundSeries rejects unordered series and drops bars after req.AsOf
func boundSeries(series *models.TimeSeries, req interfaces.SeriesRequest) (*models.TimeSeries, error) {
	if series == nil {
		return nil, &models.UpstreamUnavailableError{Source: req.Source, Ticker: req.Ticker, Err: errors.New("no series returned")}
	}
	if err := series.Validate(); err != nil {
		return nil, &models.UpstreamUnavailableError{Source: req.Source, Ticker: req.Ticker, Err: err}
	}
	return series.Until(req.AsOf), nil
}

// cachedValue runs compute through the cache as a scalar entry
func cachedValue[T any](ctx context.Context, store *cachefs.Store, key cachefs.Key, ttl time.Duration, compute func(context.Context) (*T, error)) (*T, error) {
	payload, err := store.GetOrCompute(ctx, key, ttl, func(ctx context.Context) (cachefs.Payload, error) {
		v, err := compute(ctx)
		if err != nil {
			return cachefs.Payload{}, err
		}
		if v == nil {
			return cachefs.Payload{}, nil
		}
		return cachefs.ValuePayload(v)
	})
	if err != nil {
		return nil, err
	}
	var out T
	if err := payload.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func recordDate(series *models.TimeSeries, asOf, now time.Time) string {
	switch {
	case series.Len() > 0:
		return series.Last().Timestamp.Format(dateLayout)
	case !asOf.IsZero():
		return asOf.Format(dateLayout)
	default:
		return now.Format(dateLayout)
	}
}

// ScreenTickers analyzes every request in parallel (bounded by the
// configured worker count) and returns the successful records ranked by
// composite score. Per-ticker failures are joined into the returned error
// alongside the ranked results.
func (s *Service) ScreenTickers(ctx context.Context, reqs []interfaces.AnalysisRequest) ([]*models.AnalysisRecord, error) {
	workers := s.cfg.Screening.Workers
	if workers <= 0 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var (
		mu       sync.Mutex
		records  []*models.AnalysisRecord
		failures []error
	)
	for _, req := range reqs {
		g.Go(func() error {
			record, err := s.AnalyzeTicker(gctx, req)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				s.logger.Warn().Err(err).Str("ticker", req.Ticker).Msg("Screening skipped ticker")
				mu.Lock()
				failures = append(failures, fmt.Errorf("%s: %w", req.Ticker, err))
				mu.Unlock()
				return nil
			}
			mu.Lock()
			records = append(records, record)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ranked := s.screener.Rank(records)
	s.logger.Info().
		Int("requested", len(reqs)).
		Int("analyzed", len(records)).
		Int("failed", len(failures)).
		Int("returned", len(ranked)).
		Msg("Screening complete")
	return ranked, errors.Join(failures...)
}

// MarketSentiment builds the fear/greed index from the volatility gauge and
// the index series, adds a trend reading per index and diagnoses the market.
// Index series too short for a trend reading are left out of the diagnosis.
func (s *Service) MarketSentiment(ctx context.Context, req interfaces.SentimentRequest) (*models.MarketSentimentReport, error) {
	if req.Volatility == "" {
		return nil, fmt.Errorf("volatility ticker is required")
	}
	if req.Granularity == "" {
		req.Granularity = models.GranularityDaily
	}

	key := cachefs.Key{
		Source:      req.Source,
		Ticker:      req.Volatility,
		Granularity: req.Granularity,
		Params: map[string]string{
			"kind":    "sentiment",
			"indices": strings.Join(req.Indices, ";"),
			"period":  req.Period,
			"config":  s.fingerprint,
		},
		AsOf: req.AsOf,
	}
	return cachedValue(ctx, s.cache, key, s.cfg.Cache.GetSentimentTTL(), func(ctx context.Context) (*models.MarketSentimentReport, error) {
		return s.computeSentiment(ctx, req)
	})
}

func (s *Service) computeSentiment(ctx context.Context, req interfaces.SentimentRequest) (*models.MarketSentimentReport, error) {
	seriesReq := func(ticker string) interfaces.SeriesRequest {
		return interfaces.SeriesRequest{
			Source:      req.Source,
			Ticker:      ticker,
			Granularity: req.Granularity,
			Period:      req.Period,
			AsOf:        req.AsOf,
		}
	}

	volatility, err := s.loadSeries(ctx, seriesReq(req.Volatility))
	if err != nil {
		return nil, err
	}

	indices := make([]*models.TimeSeries, 0, len(req.Indices))
	for _, ticker := range req.Indices {
		series, err := s.loadSeries(ctx, seriesReq(ticker))
		if err != nil {
			return nil, err
		}
		indices = append(indices, series)
	}

	index, err := s.sentiment.FromSeries(volatility, indices)
	if err != nil {
		return nil, err
	}

	trends := make([]models.TrendResult, 0, len(indices))
	for _, series := range indices {
		t, err := s.trend.Analyze(series)
		if err != nil {
			s.logger.Warn().Err(err).Str("ticker", series.Ticker).Msg("Index left out of market diagnosis")
			continue
		}
		t.Ticker = series.Ticker
		trends = append(trends, *t)
	}

	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = volatility.Last().Timestamp
	}

	report := &models.MarketSentimentReport{
		Index:     index,
		Trends:    trends,
		Diagnosis: analysis.Diagnose(index, trends),
		AsOf:      asOf.UTC(),
	}
	s.logger.Info().
		Float64("score", index.Score).
		Str("label", string(index.Label)).
		Str("verdict", string(report.Diagnosis.Verdict)).
		Msg("Market sentiment computed")
	return report, nil
}

// Invalidate drops every cached entry (series, snapshots and scores) for a
// ticker under one source
func (s *Service) Invalidate(ctx context.Context, source, ticker string) (int, error) {
	return s.cache.InvalidatePrefix(ctx, cachefs.TickerPrefix(source, ticker))
}
