package models

import "time"

// CacheFormat tags how a cache payload is laid out on disk
type CacheFormat string

const (
	// CacheFormatTable is a columnar series file next to the metadata record
	CacheFormatTable CacheFormat = "table"
	// CacheFormatScalar is a structured value held inside the metadata record
	CacheFormatScalar CacheFormat = "scalar-metadata"
)

// CacheEntry is the metadata record kept for every cache key
type CacheEntry struct {
	Key       string        `json:"key"`
	ID        string        `json:"id"`
	Format    CacheFormat   `json:"format_tag"`
	Version   int           `json:"version"`
	CreatedAt time.Time     `json:"created_at"`
	TTL       time.Duration `json:"ttl"`
	Ticker    string        `json:"ticker,omitempty"`
	Source    string        `json:"source,omitempty"`
	Rows      int           `json:"rows,omitempty"`
}

// ExpiresAt returns the instant the entry stops being valid
func (e *CacheEntry) ExpiresAt() time.Time {
	return e.CreatedAt.Add(e.TTL)
}

// ValidAt reports whether the entry is still fresh at now.
// It is evaluated on every read and never memoised.
func (e *CacheEntry) ValidAt(now time.Time) bool {
	return now.Before(e.ExpiresAt())
}
