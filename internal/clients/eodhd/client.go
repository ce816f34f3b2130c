// Package eodhd provides a SeriesSource backed by the EODHD API
package eodhd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/guregu/null/v6"
	"golang.org/x/time/rate"

	"github.com/hwanginhyeok/stock/internal/common"
	"github.com/hwanginhyeok/stock/internal/interfaces"
	"github.com/hwanginhyeok/stock/internal/models"
)

// SourceName is the source tag stamped on series fetched from EODHD
const SourceName = "eodhd"

const (
	DefaultBaseURL   = "https://eodhd.com/api"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 10 // requests per second
)

// flexFloat decodes numbers that may arrive as numbers, strings, "N/A" or null
type flexFloat struct {
	null.Float
}

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		f.Float = null.Float{}
		return nil
	}
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		f.Float = null.FloatFrom(num)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			f.Float = null.FloatFrom(v)
		} else {
			f.Float = null.Float{}
		}
		return nil
	}
	return fmt.Errorf("cannot unmarshal %s into float64", string(data))
}

// Client implements interfaces.SeriesSource over the EODHD REST API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
	now        func() time.Time
}

var _ interfaces.SeriesSource = (*Client)(nil)

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
		}
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new EODHD client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents a non-200 response
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("EODHD API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// get performs a rate-limited GET request
func (c *Client) get(ctx context.Context, path string, params url.Values, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("api_token", c.apiKey)
	params.Set("fmt", "json")

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug().Str("url", c.baseURL+path).Msg("EODHD API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   path,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

func (c *Client) unavailable(ticker string, err error) error {
	return &models.UpstreamUnavailableError{Source: SourceName, Ticker: ticker, Err: err}
}

// eodBarResponse represents the API response for EOD data
type eodBarResponse struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

func periodParam(g models.Granularity) (string, error) {
	switch g {
	case models.GranularityDaily, "":
		return "d", nil
	case models.GranularityWeekly:
		return "w", nil
	case models.GranularityMonthly:
		return "m", nil
	default:
		return "", fmt.Errorf("unsupported granularity %q", g)
	}
}

// FetchSeries retrieves end-of-day bars in ascending order
func (c *Client) FetchSeries(ctx context.Context, req interfaces.SeriesRequest) (*models.TimeSeries, error) {
	period, err := periodParam(req.Granularity)
	if err != nil {
		return nil, c.unavailable(req.Ticker, err)
	}

	end := req.AsOf
	if end.IsZero() {
		end = c.now()
	}
	from, err := common.PeriodStart(req.Period, end)
	if err != nil {
		return nil, c.unavailable(req.Ticker, err)
	}

	params := url.Values{}
	params.Set("period", period)
	params.Set("order", "a")
	if !from.IsZero() {
		params.Set("from", from.Format("2006-01-02"))
	}
	if !req.AsOf.IsZero() {
		params.Set("to", req.AsOf.Format("2006-01-02"))
	}

	var bars []eodBarResponse
	if err := c.get(ctx, "/eod/"+url.PathEscape(req.Ticker), params, &bars); err != nil {
		return nil, c.unavailable(req.Ticker, err)
	}

	granularity := req.Granularity
	if granularity == "" {
		granularity = models.GranularityDaily
	}
	source := req.Source
	if source == "" {
		source = SourceName
	}
	series := &models.TimeSeries{
		Ticker:      req.Ticker,
		Source:      source,
		Granularity: granularity,
		Bars:        make([]models.Bar, 0, len(bars)),
	}
	for _, bar := range bars {
		date, err := time.Parse("2006-01-02", bar.Date)
		if err != nil {
			return nil, c.unavailable(req.Ticker, fmt.Errorf("bad bar date %q: %w", bar.Date, err))
		}
		series.Bars = append(series.Bars, models.Bar{
			Timestamp: date,
			Open:      bar.Open,
			High:      bar.High,
			Low:       bar.Low,
			Close:     bar.Close,
			Volume:    bar.Volume,
		})
	}
	if err := series.Validate(); err != nil {
		return nil, c.unavailable(req.Ticker, err)
	}

	c.logger.Debug().Str("ticker", req.Ticker).Int("bars", series.Len()).Msg("EODHD series fetched")
	return series, nil
}

// fundamentalsResponse holds the parts of /fundamentals the scorer uses
type fundamentalsResponse struct {
	General struct {
		Code   string `json:"Code"`
		Sector string `json:"Sector"`
	} `json:"General"`
	Highlights struct {
		MarketCapitalization       flexFloat `json:"MarketCapitalization"`
		PERatio                    flexFloat `json:"PERatio"`
		DividendYield              flexFloat `json:"DividendYield"`
		ReturnOnEquityTTM          flexFloat `json:"ReturnOnEquityTTM"`
		OperatingMarginTTM         flexFloat `json:"OperatingMarginTTM"`
		QuarterlyRevenueGrowthYOY  flexFloat `json:"QuarterlyRevenueGrowthYOY"`
		QuarterlyEarningsGrowthYOY flexFloat `json:"QuarterlyEarningsGrowthYOY"`
	} `json:"Highlights"`
	Valuation struct {
		PriceBookMRQ flexFloat `json:"PriceBookMRQ"`
	} `json:"Valuation"`
}

// FetchFundamentals retrieves the current fundamentals snapshot. EODHD only
// serves the latest snapshot, so asOf is recorded but not used for selection.
func (c *Client) FetchFundamentals(ctx context.Context, ticker string, asOf time.Time) (*models.Fundamentals, error) {
	var resp fundamentalsResponse
	if err := c.get(ctx, "/fundamentals/"+url.PathEscape(ticker), nil, &resp); err != nil {
		return nil, c.unavailable(ticker, err)
	}

	if asOf.IsZero() {
		asOf = c.now()
	}
	h := resp.Highlights
	return &models.Fundamentals{
		Ticker:          ticker,
		AsOf:            asOf,
		PER:             h.PERatio.Float,
		PBR:             resp.Valuation.PriceBookMRQ.Float,
		ROE:             h.ReturnOnEquityTTM.Float,
		OperatingMargin: h.OperatingMarginTTM.Float,
		RevenueGrowth:   h.QuarterlyRevenueGrowthYOY.Float,
		EarningsGrowth:  h.QuarterlyEarningsGrowthYOY.Float,
		MarketCap:       h.MarketCapitalization.Float,
		DividendYield:   h.DividendYield.Float,
		Sector:          resp.General.Sector,
	}, nil
}
