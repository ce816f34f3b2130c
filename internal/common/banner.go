package common

import (
	"fmt"
	"io"
	"strings"

	"github.com/ternarybob/banner"
)

// PrintBanner writes the startup banner to w and logs the same facts.
func PrintBanner(w io.Writer, config *Config, logger *Logger) {
	info := GetBuildInfo()
	cachePath := config.Cache.Path
	if config.Cache.Disabled {
		cachePath = "disabled"
	}
	historyPath := config.Storage.SQLitePath
	if historyPath == "" {
		historyPath = "disabled"
	}

	lineColor := banner.ColorCyan
	textColor := banner.ColorBold + banner.ColorWhite
	width := 70
	hr := lineColor + strings.Repeat("═", width) + banner.ColorReset

	art := []string{
		`  ____ _____ ___   ____ _  __`,
		` / ___|_   _/ _ \ / ___| |/ /`,
		` \___ \ | || | | | |   | ' / `,
		`  ___) || || |_| | |___| . \ `,
		` |____/ |_| \___/ \____|_|\_\`,
	}

	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "%s\n", hr)
	fmt.Fprintf(w, "\n")
	for _, line := range art {
		fmt.Fprintf(w, "%s%s%s\n", textColor, line, banner.ColorReset)
	}
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "%s  Technical, Fundamental & Sentiment Scoring%s\n", textColor, banner.ColorReset)
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "%s\n", hr)
	fmt.Fprintf(w, "\n")

	kvPad := 16
	kvLines := [][2]string{
		{"Version", info.Version},
		{"Build", info.Build},
		{"Commit", info.GitCommit},
		{"Environment", config.Environment},
		{"Cache", cachePath},
		{"History", historyPath},
	}
	for _, kv := range kvLines {
		fmt.Fprintf(w, "%s  %-*s %s%s\n", textColor, kvPad, kv[0], kv[1], banner.ColorReset)
	}

	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "%s\n", hr)
	fmt.Fprintf(w, "\n")

	logger.Info().
		Str("version", info.Version).
		Str("build", info.Build).
		Str("commit", info.GitCommit).
		Str("environment", config.Environment).
		Str("cache_path", cachePath).
		Str("history_path", historyPath).
		Msg("Engine started")
}

// PrintShutdownBanner writes the shutdown banner to w.
func PrintShutdownBanner(w io.Writer, logger *Logger) {
	lineColor := banner.ColorCyan
	textColor := banner.ColorBold + banner.ColorWhite
	width := 42
	hr := lineColor + strings.Repeat("═", width) + banner.ColorReset

	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "%s\n", hr)
	fmt.Fprintf(w, "%s  STOCK ENGINE - SHUTTING DOWN%s\n", textColor, banner.ColorReset)
	fmt.Fprintf(w, "%s\n", hr)
	fmt.Fprintf(w, "\n")

	logger.Info().Msg("Engine shutting down")
}
