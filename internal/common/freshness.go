// Package common provides shared utilities for the analysis engine
package common

import "time"

// Default TTLs for cached artifacts
const (
	FreshnessSeries    = 4 * time.Hour
	FreshnessScores    = 4 * time.Hour
	FreshnessSentiment = 6 * time.Hour
)
