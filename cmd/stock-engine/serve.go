package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/hwanginhyeok/stock/internal/app"
	"github.com/hwanginhyeok/stock/internal/common"
)

func (c *cli) newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Keep the watchlist scored and expose metrics and latest results over HTTP",
		Long: `Warms the cache with the configured watchlist, re-screens it every
server.refresh_interval, prunes the cache every server.prune_interval and
serves /metrics, /api/health, /api/version, /api/latest/{ticker} and
/api/history/{ticker} until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := c.app
			if cmd.Flags().Changed("port") {
				a.Config.Server.Port = port
			}
			common.PrintBanner(cmd.ErrOrStderr(), a.Config, a.Logger)

			if err := a.StartScheduler(); err != nil {
				return err
			}
			a.StartWarmCache()

			srv := &http.Server{
				Addr:         a.Config.Server.Address(),
				Handler:      buildMux(a),
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 60 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			errc := make(chan error, 1)
			go func() {
				a.Logger.Info().Str("addr", srv.Addr).Msg("Starting HTTP server")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errc <- err
				}
				close(errc)
			}()

			select {
			case err := <-errc:
				if err != nil {
					return err
				}
			case <-cmd.Context().Done():
				a.Logger.Info().Msg("Shutdown signal received")
			}

			common.PrintShutdownBanner(cmd.ErrOrStderr(), a.Logger)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				a.Logger.Error().Err(err).Msg("HTTP server shutdown failed")
			}
			a.Logger.Info().Msg("Server stopped")
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides server.port)")
	return cmd
}

// buildMux creates the HTTP mux with the metrics and read-only API endpoints.
func buildMux(a *app.App) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/api/health", healthHandler)
	mux.HandleFunc("/api/version", versionHandler)
	mux.HandleFunc("GET /api/latest/{ticker}", latestHandler(a))
	mux.HandleFunc("GET /api/history/{ticker}", historyHandler(a))
	return mux
}

func writeJSONResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSONResponse(w, status, map[string]string{"error": msg})
}

// healthHandler responds to GET/HEAD /api/health with {"status":"ok"}.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// versionHandler responds to GET/HEAD /api/version with version info.
func versionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, common.GetBuildInfo())
}

// latestHandler returns the newest record for a ticker, or the record for
// ?date=YYYY-MM-DD
func latestHandler(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ticker := r.PathValue("ticker")
		latest := a.SignalService.Latest()

		record, ok := latest.Latest(ticker)
		if date := r.URL.Query().Get("date"); date != "" {
			if _, err := time.Parse(dateLayout, date); err != nil {
				writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
				return
			}
			record, ok = latest.LatestOn(ticker, date)
		}
		if !ok {
			writeError(w, http.StatusNotFound, "no analysis for "+ticker)
			return
		}
		writeJSONResponse(w, http.StatusOK, record)
	}
}

// historyHandler lists stored summaries for a ticker, newest first
func historyHandler(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a.History == nil {
			writeError(w, http.StatusNotFound, "analysis history is disabled")
			return
		}
		limit := 20
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = n
		}
		summaries, err := a.History.History(r.Context(), r.PathValue("ticker"), limit)
		if err != nil {
			a.Logger.Error().Err(err).Msg("History query failed")
			writeError(w, http.StatusInternalServerError, "history query failed")
			return
		}
		writeJSONResponse(w, http.StatusOK, summaries)
	}
}
