package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hwanginhyeok/stock/internal/app"
	"github.com/hwanginhyeok/stock/internal/common"
	"github.com/hwanginhyeok/stock/internal/interfaces"
	"github.com/hwanginhyeok/stock/internal/models"
)

const dateLayout = "2006-01-02"

// cli carries the persistent flags and the App built from them
type cli struct {
	out        io.Writer
	configPath string
	dataDir    string
	snapshots  string
	source     string
	noCache    bool
	logLevel   string

	app *app.App
}

// run builds the command tree, executes args and closes the App
func run(ctx context.Context, args []string, out io.Writer) error {
	c := &cli{out: out}
	root := c.rootCmd()
	root.SetArgs(args)
	root.SetOut(out)
	defer c.close()
	return root.ExecuteContext(ctx)
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "stock-engine",
		Short:         "Technical, fundamental and sentiment scoring for equities",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations["app"] == "none" {
				return nil
			}
			return c.open()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "config file (default: $STOCK_CONFIG, then stock.toml next to the binary)")
	flags.StringVar(&c.dataDir, "data", "", "data root holding cache/ and analysis.db")
	flags.StringVar(&c.snapshots, "snapshots", "", "snapshot directory for the file source")
	flags.StringVar(&c.source, "source", "", "series source: file or eodhd")
	flags.BoolVar(&c.noCache, "no-cache", false, "bypass cache reads (results are still written)")
	flags.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		c.newAnalyzeCmd(),
		c.newScreenCmd(),
		c.newSentimentCmd(),
		c.newHistoryCmd(),
		c.newCacheCmd(),
		c.newServeCmd(),
		newVersionCmd(c.out),
	)
	return root
}

func (c *cli) close() {
	if c.app != nil {
		c.app.Close()
	}
}

func (c *cli) open() error {
	a, err := app.NewApp(c.configPath, c.overrides)
	if err != nil {
		return err
	}
	c.app = a
	return nil
}

// overrides applies command-line flags over the loaded configuration
func (c *cli) overrides(cfg *common.Config) {
	if c.dataDir != "" {
		dir := absPath(c.dataDir)
		cfg.Cache.Path = filepath.Join(dir, "cache")
		cfg.Storage.SQLitePath = filepath.Join(dir, "analysis.db")
	}
	if c.snapshots != "" {
		cfg.Sources.File.Dir = absPath(c.snapshots)
	}
	if c.source != "" {
		cfg.Sources.Default = c.source
	}
	if c.noCache {
		cfg.Cache.Disabled = true
	}
	if c.logLevel != "" {
		cfg.Logging.Level = c.logLevel
	}
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

func (c *cli) writeJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// requestFlags are the per-ticker analysis flags shared by analyze and screen
type requestFlags struct {
	asOf             string
	granularity      string
	period           string
	newsSentiment    float64
	baselinePath     string
	skipFundamentals bool
}

func (f *requestFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.asOf, "as-of", "", "analyze as of a date (YYYY-MM-DD or RFC3339)")
	flags.StringVar(&f.granularity, "granularity", string(models.GranularityDaily), "bar granularity: 1d, 1wk or 1mo")
	flags.StringVar(&f.period, "period", "", "history window, e.g. 6mo, 1y, ytd, max")
	flags.Float64Var(&f.newsSentiment, "news-sentiment", 0, "news sentiment in [-1,1] blended into the composite")
	flags.StringVar(&f.baselinePath, "baseline", "", "JSON file with peer fundamental bands")
	flags.BoolVar(&f.skipFundamentals, "skip-fundamentals", false, "score technicals only")
}

func (f *requestFlags) requests(cmd *cobra.Command, a *app.App, tickers []string) ([]interfaces.AnalysisRequest, error) {
	asOf, err := parseAsOf(f.asOf)
	if err != nil {
		return nil, err
	}
	granularity, err := parseGranularity(f.granularity)
	if err != nil {
		return nil, err
	}

	var baseline *models.FundamentalBaseline
	if f.baselinePath != "" {
		baseline, err = loadBaseline(f.baselinePath)
		if err != nil {
			return nil, err
		}
	}

	var news *float64
	if cmd.Flags().Changed("news-sentiment") {
		v := f.newsSentiment
		if v < -1 || v > 1 {
			return nil, fmt.Errorf("--news-sentiment must be within [-1,1], got %g", v)
		}
		news = &v
	}

	reqs := make([]interfaces.AnalysisRequest, 0, len(tickers))
	for _, ticker := range tickers {
		req := a.Request(ticker)
		req.Granularity = granularity
		req.Period = f.period
		req.AsOf = asOf
		req.NewsSentiment = news
		req.Baseline = baseline
		req.SkipFundamentals = f.skipFundamentals
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// parseAsOf accepts a date (covering that whole day) or an RFC3339 instant
func parseAsOf(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseInLocation(dateLayout, s, time.UTC); err == nil {
		return d.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --as-of %q: want YYYY-MM-DD or RFC3339", s)
	}
	return t.UTC(), nil
}

func parseGranularity(s string) (models.Granularity, error) {
	switch g := models.Granularity(strings.ToLower(s)); g {
	case models.GranularityDaily, models.GranularityWeekly, models.GranularityMonthly:
		return g, nil
	default:
		return "", fmt.Errorf("invalid --granularity %q: want 1d, 1wk or 1mo", s)
	}
}

func loadBaseline(path string) (*models.FundamentalBaseline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read baseline %s: %w", path, err)
	}
	var baseline models.FundamentalBaseline
	if err := json.Unmarshal(data, &baseline); err != nil {
		return nil, fmt.Errorf("failed to parse baseline %s: %w", path, err)
	}
	if baseline.Name == "" {
		baseline.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &baseline, nil
}

func (c *cli) newAnalyzeCmd() *cobra.Command {
	var f requestFlags
	cmd := &cobra.Command{
		Use:   "analyze <ticker>...",
		Short: "Score one or more tickers and print the analysis records",
		Example: `  stock-engine analyze 005930.KS
  stock-engine analyze AAPL.US --source eodhd --period 1y --news-sentiment 0.3`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reqs, err := f.requests(cmd, c.app, args)
			if err != nil {
				return err
			}

			records := make([]*models.AnalysisRecord, 0, len(reqs))
			for _, req := range reqs {
				record, err := c.app.SignalService.AnalyzeTicker(cmd.Context(), req)
				if err != nil {
					return fmt.Errorf("failed to analyze %s: %w", req.Ticker, err)
				}
				records = append(records, record)
			}
			if len(records) == 1 {
				return c.writeJSON(records[0])
			}
			return c.writeJSON(records)
		},
	}
	f.register(cmd)
	return cmd
}

func (c *cli) newScreenCmd() *cobra.Command {
	var f requestFlags
	cmd := &cobra.Command{
		Use:   "screen [ticker]...",
		Short: "Analyze tickers in parallel and print them ranked by composite score",
		Long:  "Screens the given tickers, or the configured watchlist when none are given. Tickers that fail are reported on stderr and left out of the ranking.",
		RunE: func(cmd *cobra.Command, args []string) error {
			tickers := args
			if len(tickers) == 0 {
				tickers = c.app.Config.Screening.Watchlist
			}
			if len(tickers) == 0 {
				return errors.New("no tickers given and screening.watchlist is empty")
			}

			reqs, err := f.requests(cmd, c.app, tickers)
			if err != nil {
				return err
			}

			records, err := c.app.SignalService.ScreenTickers(cmd.Context(), reqs)
			if err != nil {
				if len(records) == 0 {
					return err
				}
				c.app.Logger.Warn().Err(err).Msg("Some tickers were not screened")
			}
			if records == nil {
				records = []*models.AnalysisRecord{}
			}
			return c.writeJSON(records)
		},
	}
	f.register(cmd)
	return cmd
}

func (c *cli) newSentimentCmd() *cobra.Command {
	var (
		volatility  string
		indices     []string
		granularity string
		period      string
		asOf        string
	)
	cmd := &cobra.Command{
		Use:     "sentiment",
		Short:   "Compute the market fear/greed index and diagnosis",
		Example: `  stock-engine sentiment --vix ^VIX --index ^KS11 --index ^KQ11`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			at, err := parseAsOf(asOf)
			if err != nil {
				return err
			}
			g, err := parseGranularity(granularity)
			if err != nil {
				return err
			}

			report, err := c.app.SignalService.MarketSentiment(cmd.Context(), interfaces.SentimentRequest{
				Source:      c.app.SourceName,
				Volatility:  volatility,
				Indices:     indices,
				Granularity: g,
				Period:      period,
				AsOf:        at,
			})
			if err != nil {
				return err
			}
			return c.writeJSON(report)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&volatility, "vix", "^VIX", "volatility index ticker")
	flags.StringSliceVar(&indices, "index", []string{"^KS11", "^KQ11"}, "broad market index ticker (repeatable)")
	flags.StringVar(&granularity, "granularity", string(models.GranularityDaily), "bar granularity: 1d, 1wk or 1mo")
	flags.StringVar(&period, "period", "6mo", "history window")
	flags.StringVar(&asOf, "as-of", "", "compute as of a date (YYYY-MM-DD or RFC3339)")
	return cmd
}

func (c *cli) newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <ticker>",
		Short: "Print stored analysis summaries for a ticker, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.app.History == nil {
				return errors.New("analysis history is disabled (storage.sqlite_path is empty)")
			}
			summaries, err := c.app.History.History(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			return c.writeJSON(summaries)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows")
	return cmd
}

func (c *cli) newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Maintain the on-disk cache",
	}

	prune := &cobra.Command{
		Use:   "prune",
		Short: "Remove expired, unreadable and orphaned cache entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := c.app.Cache.Prune(cmd.Context())
			if err != nil {
				return err
			}
			return c.writeJSON(map[string]int{"removed": removed})
		},
	}

	invalidate := &cobra.Command{
		Use:   "invalidate <ticker>...",
		Short: "Drop every cached series, snapshot and score for tickers under the active source",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			removed := make(map[string]int, len(args))
			for _, ticker := range args {
				n, err := c.app.SignalService.Invalidate(cmd.Context(), c.app.SourceName, ticker)
				if err != nil {
					return fmt.Errorf("failed to invalidate %s: %w", ticker, err)
				}
				removed[ticker] = n
			}
			return c.writeJSON(removed)
		},
	}

	cmd.AddCommand(prune, invalidate)
	return cmd
}

func newVersionCmd(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"app": "none"},
		RunE: func(cmd *cobra.Command, args []string) error {
			common.LoadVersionFromFile()
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(common.GetBuildInfo())
		},
	}
}
