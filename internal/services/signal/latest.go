package signal

import (
	"context"
	"strings"
	"sync"

	gocache "github.com/patrickmn/go-cache"

	"github.com/hwanginhyeok/stock/internal/interfaces"
	"github.com/hwanginhyeok/stock/internal/models"
)

// LatestRegistry keeps the most recent record per ticker and per
// ticker/date in memory for exporters and report generators
type LatestRegistry struct {
	mu      sync.Mutex
	records *gocache.Cache
}

var _ interfaces.LatestResults = (*LatestRegistry)(nil)

// NewLatestRegistry creates an empty registry. Entries never expire; a newer
// record replaces an older one.
func NewLatestRegistry() *LatestRegistry {
	return &LatestRegistry{records: gocache.New(gocache.NoExpiration, 0)}
}

func latestKey(ticker string) string {
	return "latest|" + ticker
}

func datedKey(ticker, date string) string {
	return "on|" + ticker + "|" + date
}

// Put stores a copy of record. The per-ticker latest entry only moves
// forward in date; a same-date record replaces the previous one.
func (r *LatestRegistry) Put(record *models.AnalysisRecord) {
	c := record.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.records.Set(datedKey(c.Ticker, c.Date), c, gocache.NoExpiration)

	if prev, ok := r.records.Get(latestKey(c.Ticker)); ok {
		if prev.(*models.AnalysisRecord).Date > c.Date {
			return
		}
	}
	r.records.Set(latestKey(c.Ticker), c, gocache.NoExpiration)
}

// Record implements interfaces.RecordSink
func (r *LatestRegistry) Record(_ context.Context, record *models.AnalysisRecord) error {
	r.Put(record)
	return nil
}

// Close implements interfaces.RecordSink
func (r *LatestRegistry) Close() error {
	r.records.Flush()
	return nil
}

// Latest returns a copy of the newest record for ticker
func (r *LatestRegistry) Latest(ticker string) (*models.AnalysisRecord, bool) {
	return r.get(latestKey(ticker))
}

// LatestOn returns a copy of the record for ticker on date (YYYY-MM-DD)
func (r *LatestRegistry) LatestOn(ticker, date string) (*models.AnalysisRecord, bool) {
	return r.get(datedKey(ticker, date))
}

func (r *LatestRegistry) get(key string) (*models.AnalysisRecord, bool) {
	v, ok := r.records.Get(key)
	if !ok {
		return nil, false
	}
	return v.(*models.AnalysisRecord).Clone(), true
}

// Len returns the number of distinct ticker/date records held
func (r *LatestRegistry) Len() int {
	n := 0
	for key := range r.records.Items() {
		if strings.HasPrefix(key, "on|") {
			n++
		}
	}
	return n
}
