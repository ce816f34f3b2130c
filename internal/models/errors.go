package models

import (
	"fmt"
	"strings"
)

// InsufficientDataError reports a series shorter than an indicator window
type InsufficientDataError struct {
	Indicator string
	Required  int
	Available int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: need %d rows, have %d", e.Indicator, e.Required, e.Available)
}

// DataInsufficientError reports too many missing fundamental inputs
type DataInsufficientError struct {
	Ticker      string
	Missing     []string
	Total       int
	MaxFraction float64
}

func (e *DataInsufficientError) Error() string {
	return fmt.Sprintf("fundamental data for %s insufficient: %d of %d metrics missing (max %.0f%%): %s",
		e.Ticker, len(e.Missing), e.Total, e.MaxFraction*100, strings.Join(e.Missing, ", "))
}

// ConfigurationError reports an invalid component configuration at construction
type ConfigurationError struct {
	Component string
	Field     string
	Reason    string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s configuration: %s %s", e.Component, e.Field, e.Reason)
}

// CacheFormatError reports an unreadable or version-mismatched cache entry
type CacheFormatError struct {
	Key string
	Err error
}

func (e *CacheFormatError) Error() string {
	return fmt.Sprintf("cache entry '%s' unreadable: %v", e.Key, e.Err)
}

func (e *CacheFormatError) Unwrap() error { return e.Err }

// UpstreamUnavailableError wraps a failed collaborator fetch
type UpstreamUnavailableError struct {
	Source string
	Ticker string
	Err    error
}

func (e *UpstreamUnavailableError) Error() string {
	return fmt.Sprintf("upstream %s unavailable for %s: %v", e.Source, e.Ticker, e.Err)
}

func (e *UpstreamUnavailableError) Unwrap() error { return e.Err }
